// Package host adapts the Linux desktop stack to the watcher collaborators:
// NetworkManager and BlueZ over the system D-Bus for adapter state queries
// and state-change notifications, Unix group membership for capability
// checks, and the kernel release as host version.
//
// Thread-safety: all methods are safe for concurrent use. Close is
// idempotent.
package host

import (
	"errors"
	"log/slog"

	"connectivity-listener/internal/watcher"
)

var (
	// ErrNoAdapter is returned by BluetoothState when BlueZ exposes no adapter.
	ErrNoAdapter = errors.New("host: no bluetooth adapter")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("host: closed")
	// ErrUnsupported is returned on platforms without a host implementation.
	ErrUnsupported = errors.New("host: unsupported platform")
)

// Options configures New.
type Options struct {
	// Adapter is the BlueZ adapter object path (e.g. /org/bluez/hci0).
	// Empty selects the first adapter reported by BlueZ.
	Adapter string

	// CapabilityGroups lists, per capability, the Unix groups granting it.
	// Root holds every capability.
	CapabilityGroups map[watcher.Capability][]string

	Logger *slog.Logger
}

// Host is the single host surface used by the watchers.
//
// Subscribe accepts watcher.ActionWifiStateChanged and
// watcher.ActionBluetoothStateChanged; other actions return an error.
// Usage constraints:
//   - The first subscription of an action installs its D-Bus match rule;
//     the last Unsubscribe of that action removes it.
//   - Handlers are invoked from a single dispatch goroutine, one at a time,
//     in signal arrival order. A handler must not block.
//   - After Unsubscribe returns the handler is not invoked for any signal
//     dispatched afterwards. A handler already running may still complete.
type Host interface {
	watcher.WifiHost
	watcher.BluetoothHost
	watcher.PermissionChecker

	// Close releases the bus connection, match rules and the dispatch
	// goroutine. Redundant calls are allowed.
	Close() error
}
