// Package fakehost is an in-memory host for tests and simulations: scripted
// state queries, a synchronous notifier with injectable broadcasts, and a
// toggleable permission checker.
package fakehost

import (
	"context"
	"errors"
	"sync"

	"connectivity-listener/internal/watcher"
)

// Host implements watcher.WifiHost, watcher.BluetoothHost and
// watcher.PermissionChecker.
type Host struct {
	mu sync.Mutex

	wifi     watcher.AdapterState
	wifiErr  error
	bt       watcher.AdapterState
	btErr    error
	version  watcher.Version
	caps     map[watcher.Capability]bool
	nextTok  watcher.Token
	handlers map[watcher.Token]registration
	subCalls int
	unsubErr error
	subErr   error
}

type registration struct {
	action  string
	handler func(watcher.Notification)
}

// New returns a host with Wi-Fi unknown, Bluetooth off, version 0.0 and no
// capabilities.
func New() *Host {
	return &Host{
		wifi:     watcher.WifiUnknown,
		bt:       watcher.BluetoothOff,
		caps:     make(map[watcher.Capability]bool),
		handlers: make(map[watcher.Token]registration),
	}
}

func (h *Host) SetWifiState(s watcher.AdapterState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.wifi, h.wifiErr = s, err
}

func (h *Host) SetBluetoothState(s watcher.AdapterState, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bt, h.btErr = s, err
}

func (h *Host) SetVersion(v watcher.Version) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = v
}

// Grant sets whether capability c is held.
func (h *Host) Grant(c watcher.Capability, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caps[c] = ok
}

// FailSubscribe makes subsequent Subscribe calls fail with err (nil resets).
func (h *Host) FailSubscribe(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subErr = err
}

// FailUnsubscribe makes subsequent Unsubscribe calls fail with err (nil resets).
func (h *Host) FailUnsubscribe(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubErr = err
}

func (h *Host) WifiState(ctx context.Context) (watcher.AdapterState, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.wifi, h.wifiErr
}

func (h *Host) BluetoothState(ctx context.Context) (watcher.AdapterState, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bt, h.btErr
}

func (h *Host) HostVersion() (watcher.Version, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version, nil
}

func (h *Host) HasCapability(c watcher.Capability) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caps[c], nil
}

func (h *Host) Subscribe(action string, handler func(watcher.Notification)) (watcher.Token, error) {
	if handler == nil {
		return 0, errors.New("fakehost: nil handler")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subErr != nil {
		return 0, h.subErr
	}
	h.nextTok++
	h.subCalls++
	h.handlers[h.nextTok] = registration{action: action, handler: handler}
	return h.nextTok, nil
}

func (h *Host) Unsubscribe(tok watcher.Token) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, tok)
	return h.unsubErr
}

// Registrations returns the number of live registrations for action.
func (h *Host) Registrations(action string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.handlers {
		if r.action == action {
			n++
		}
	}
	return n
}

// SubscribeCalls returns how many successful Subscribe calls were made.
func (h *Host) SubscribeCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subCalls
}

// Inject broadcasts n synchronously to every handler registered for n.Action.
func (h *Host) Inject(n watcher.Notification) {
	h.mu.Lock()
	var hs []func(watcher.Notification)
	for tok := watcher.Token(1); tok <= h.nextTok; tok++ {
		if r, ok := h.handlers[tok]; ok && r.action == n.Action {
			hs = append(hs, r.handler)
		}
	}
	h.mu.Unlock()
	for _, fn := range hs {
		fn(n)
	}
}

// InjectWifi broadcasts a Wi-Fi state change.
func (h *Host) InjectWifi(s watcher.AdapterState) {
	h.Inject(watcher.Notification{
		Action: watcher.ActionWifiStateChanged,
		Extras: map[string]any{watcher.ExtraWifiState: s},
	})
}

// InjectBluetooth broadcasts a Bluetooth state change.
func (h *Host) InjectBluetooth(s watcher.AdapterState) {
	h.Inject(watcher.Notification{
		Action: watcher.ActionBluetoothStateChanged,
		Extras: map[string]any{watcher.ExtraBluetoothState: s},
	})
}

// Recorder is a watcher.Sink that keeps everything it receives.
type Recorder struct {
	mu       sync.Mutex
	events   []watcher.StateChangeEvent
	failures []*watcher.Failure
}

func (r *Recorder) Success(ev watcher.StateChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Error(f *watcher.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func (r *Recorder) Events() []watcher.StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]watcher.StateChangeEvent(nil), r.events...)
}

func (r *Recorder) Failures() []*watcher.Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*watcher.Failure(nil), r.failures...)
}
