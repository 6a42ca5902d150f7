// Package watcher bridges host adapter state-change notifications (Wi-Fi,
// Bluetooth) to a single subscriber sink.
//
// A Watcher owns at most one registration with the host Notifier. Start
// delivers an initial snapshot synchronously and then registers; every
// notification afterwards is turned into a StateChangeEvent carrying the
// previous and the current state. Stop removes the registration.
//
// Thread-safety: all methods are safe for concurrent use. Notifications are
// delivered to the sink in the order the Notifier hands them over, and no
// notification reaches the sink after Stop has returned.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotAuthorized is wrapped by host query errors when the platform refused
// access at call time (as opposed to the static capability check).
var ErrNotAuthorized = errors.New("watcher: not authorized")

// AdapterState is a host-defined adapter state code. Values are passed
// through verbatim; only the sentinels declared in states.go carry meaning.
type AdapterState int32

// StateChangeEvent is the record delivered to a sink. Previous is nil for
// the first event of a subscription.
type StateChangeEvent struct {
	Previous *AdapterState
	Current  AdapterState
}

type eventJSON struct {
	Previous *AdapterState `json:"previousState"`
	Current  AdapterState  `json:"currentState"`
}

// MarshalJSON encodes the event as {"previousState": null|int, "currentState": int}.
func (e StateChangeEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{Previous: e.Previous, Current: e.Current})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *StateChangeEvent) UnmarshalJSON(b []byte) error {
	var v eventJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	e.Previous, e.Current = v.Previous, v.Current
	return nil
}

// Notification is a host broadcast. Action identifies the kind of broadcast,
// Extras carries its payload.
type Notification struct {
	Action string
	Extras map[string]any
}

// Token identifies a Notifier registration.
type Token uint64

// Notifier is the host broadcast registration API.
//
// Subscribe registers handler for notifications with the given action and
// returns a token for Unsubscribe. Handlers for one action are invoked one
// at a time, in arrival order.
// Unsubscribe with an unknown token is a no-op.
type Notifier interface {
	Subscribe(action string, handler func(Notification)) (Token, error)
	Unsubscribe(tok Token) error
}

// Sink receives the events of one subscription.
//
// Implementations must not block and must not call back into the Watcher.
type Sink interface {
	Success(ev StateChangeEvent)
	Error(f *Failure)
}

// Observer is notified about deliveries and drops. Optional.
type Observer interface {
	Delivered(name string)
	Dropped(name string)
}

// WifiHost is the host surface needed by the Wi-Fi watcher.
type WifiHost interface {
	Notifier
	WifiState(ctx context.Context) (AdapterState, error)
}

// BluetoothHost is the host surface needed by the Bluetooth watcher.
type BluetoothHost interface {
	Notifier
	BluetoothState(ctx context.Context) (AdapterState, error)
}
