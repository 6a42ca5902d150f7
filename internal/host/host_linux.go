//go:build linux

package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	dbus "github.com/godbus/dbus/v5"

	"connectivity-listener/internal/watcher"
)

// New creates a host. The system bus is dialed lazily on first use.
func New(opts Options) Host {
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &linuxHost{
		opts:     opts,
		log:      l.With("component", "host"),
		perms:    groupChecker{groups: opts.CapabilityGroups},
		handlers: make(map[watcher.Token]handlerEntry),
		matched:  make(map[string]int),
	}
}

type handlerEntry struct {
	action string
	fn     func(watcher.Notification)
}

type linuxHost struct {
	opts  Options
	log   *slog.Logger
	perms groupChecker

	mu     sync.Mutex
	closed bool

	bus     *dbus.Conn
	adapter dbus.ObjectPath // resolved BlueZ adapter, empty until known

	// notifier state
	nextTok  watcher.Token
	handlers map[watcher.Token]handlerEntry
	matched  map[string]int // action -> live registrations
	sigCh    chan *dbus.Signal
	done     chan struct{}

	// dispatchMu is held while a signal is fanned out so that Unsubscribe
	// cannot return in the middle of a dispatch.
	dispatchMu sync.Mutex

	// cleanup functions to release resources in Close (executed once, in reverse order).
	cleanup []func()
}

// ensureBusLocked connects to the system bus if not yet connected.
func (h *linuxHost) ensureBusLocked() error {
	if h.closed {
		return ErrClosed
	}
	if h.bus != nil {
		return nil
	}
	c, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("host: connect system bus: %w", err)
	}
	h.bus = c
	// Close the bus last during cleanup.
	h.cleanup = append(h.cleanup, func() { _ = c.Close() })
	return nil
}

func (h *linuxHost) conn() (*dbus.Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureBusLocked(); err != nil {
		return nil, err
	}
	return h.bus, nil
}

func (h *linuxHost) WifiState(ctx context.Context) (watcher.AdapterState, error) {
	bus, err := h.conn()
	if err != nil {
		return watcher.WifiUnknown, err
	}
	v, err := getProperty(ctx, bus, nmService, nmPath, nmIface, nmWireless)
	if err != nil {
		return watcher.WifiUnknown, fmt.Errorf("host: read %s: %w", nmWireless, classify(err))
	}
	st, ok := wifiFromEnabled(v.Value())
	if !ok {
		return watcher.WifiUnknown, fmt.Errorf("host: %s has type %s", nmWireless, v.Signature())
	}
	return st, nil
}

func (h *linuxHost) BluetoothState(ctx context.Context) (watcher.AdapterState, error) {
	bus, err := h.conn()
	if err != nil {
		return watcher.BluetoothError, err
	}
	path, err := h.adapterPath(ctx, bus)
	if err != nil {
		return watcher.BluetoothError, err
	}
	v, err := getProperty(ctx, bus, bluezService, path, adapterIface, bluezPowerState)
	if err == nil {
		return bluetoothFromPowerState(v.Value()), nil
	}
	if isAuthError(err) {
		return watcher.BluetoothError, fmt.Errorf("host: read %s: %w", bluezPowerState, classify(err))
	}
	// Older BlueZ releases have no PowerState.
	v, err = getProperty(ctx, bus, bluezService, path, adapterIface, bluezPowered)
	if err != nil {
		return watcher.BluetoothError, fmt.Errorf("host: read %s: %w", bluezPowered, classify(err))
	}
	return bluetoothFromPowered(v.Value()), nil
}

// adapterPath returns the configured adapter or the first one BlueZ knows.
func (h *linuxHost) adapterPath(ctx context.Context, bus *dbus.Conn) (dbus.ObjectPath, error) {
	h.mu.Lock()
	if h.adapter == "" && h.opts.Adapter != "" {
		h.adapter = dbus.ObjectPath(h.opts.Adapter)
	}
	p := h.adapter
	h.mu.Unlock()
	if p != "" {
		return p, nil
	}
	adapters, err := listAdapters(ctx, bus)
	if err != nil {
		return "", err
	}
	if len(adapters) == 0 {
		return "", ErrNoAdapter
	}
	h.mu.Lock()
	h.adapter = adapters[0]
	h.mu.Unlock()
	h.log.Debug("bluetooth adapter selected", "path", adapters[0])
	return adapters[0], nil
}

func (h *linuxHost) HostVersion() (watcher.Version, error) {
	return kernelVersion()
}

func (h *linuxHost) HasCapability(c watcher.Capability) (bool, error) {
	return h.perms.HasCapability(c)
}

func (h *linuxHost) Subscribe(action string, handler func(watcher.Notification)) (watcher.Token, error) {
	if handler == nil {
		return 0, fmt.Errorf("host: nil handler")
	}
	var adapter dbus.ObjectPath
	if action == watcher.ActionBluetoothStateChanged {
		bus, err := h.conn()
		if err != nil {
			return 0, err
		}
		// Best-effort; without an adapter all adapters are watched.
		adapter, _ = h.adapterPath(context.Background(), bus)
	}
	match, ok := matchOptions(action, adapter)
	if !ok {
		return 0, fmt.Errorf("host: unsupported action %q", action)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureBusLocked(); err != nil {
		return 0, err
	}
	if h.matched[action] == 0 {
		if err := h.bus.AddMatchSignal(match...); err != nil {
			return 0, fmt.Errorf("host: AddMatchSignal(%s): %w", action, err)
		}
		h.cleanupMatchLocked(action, match)
	}
	h.startDispatchLocked()
	h.nextTok++
	tok := h.nextTok
	h.handlers[tok] = handlerEntry{action: action, fn: handler}
	h.matched[action]++
	return tok, nil
}

// cleanupMatchLocked registers removal of the match rule on Close, guarded
// so a rule already removed by Unsubscribe is not removed twice.
func (h *linuxHost) cleanupMatchLocked(action string, match []dbus.MatchOption) {
	bus := h.bus
	h.cleanup = append(h.cleanup, func() {
		h.mu.Lock()
		live := h.matched[action] > 0
		h.mu.Unlock()
		if live {
			_ = bus.RemoveMatchSignal(match...)
		}
	})
}

func (h *linuxHost) Unsubscribe(tok watcher.Token) error {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.handlers[tok]
	if !ok {
		return nil
	}
	delete(h.handlers, tok)
	h.matched[e.action]--
	if h.matched[e.action] > 0 || h.closed || h.bus == nil {
		return nil
	}
	h.matched[e.action] = 0
	match, _ := matchOptions(e.action, h.adapter)
	if err := h.bus.RemoveMatchSignal(match...); err != nil {
		return fmt.Errorf("host: RemoveMatchSignal(%s): %w", e.action, err)
	}
	return nil
}

func (h *linuxHost) startDispatchLocked() {
	if h.sigCh != nil {
		return
	}
	h.sigCh = make(chan *dbus.Signal, 32)
	h.done = make(chan struct{})
	h.bus.Signal(h.sigCh)
	bus, ch, done := h.bus, h.sigCh, h.done
	h.cleanup = append(h.cleanup, func() {
		bus.RemoveSignal(ch)
		close(done)
	})
	go h.dispatchLoop(ch, done)
}

func (h *linuxHost) dispatchLoop(ch <-chan *dbus.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			h.dispatch(sig)
		}
	}
}

func (h *linuxHost) dispatch(sig *dbus.Signal) {
	h.mu.Lock()
	adapter := h.adapter
	h.mu.Unlock()
	n, ok := translateSignal(sig, adapter)
	if !ok {
		return
	}

	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.mu.Lock()
	var fns []func(watcher.Notification)
	for tok := watcher.Token(1); tok <= h.nextTok; tok++ {
		if e, ok := h.handlers[tok]; ok && e.action == n.Action {
			fns = append(fns, e.fn)
		}
	}
	h.mu.Unlock()
	h.log.Debug("notification", "action", n.Action, "extras", n.Extras, "handlers", len(fns))
	for _, fn := range fns {
		fn(n)
	}
}

// Close is safe for concurrent and redundant calls (idempotent).
func (h *linuxHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cleanup := h.cleanup
	h.cleanup = nil
	h.mu.Unlock()

	// Run cleanup outside the lock in reverse order of registration.
	for i := len(cleanup) - 1; i >= 0; i-- {
		if cleanup[i] != nil {
			cleanup[i]()
		}
	}
	return nil
}

// Helpers

func getProperty(ctx context.Context, bus *dbus.Conn, dest string, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	call := bus.Object(dest, path).CallWithContext(ctx, propsIface+".Get", 0, iface, prop)
	if call.Err != nil {
		return v, call.Err
	}
	if err := call.Store(&v); err != nil {
		return v, err
	}
	return v, nil
}

func listAdapters(ctx context.Context, bus *dbus.Conn) ([]dbus.ObjectPath, error) {
	obj := bus.Object(bluezService, dbus.ObjectPath("/"))
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if call := obj.CallWithContext(ctx, objManagerIfc+".GetManagedObjects", 0); call.Err != nil {
		return nil, fmt.Errorf("host: GetManagedObjects: %w", classify(call.Err))
	} else if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("host: decode GetManagedObjects: %w", err)
	}
	return adaptersFrom(objs), nil
}
