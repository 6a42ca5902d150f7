// Package subscription maps subscriber attach/detach on the two fixed
// streams onto watcher Start/Stop. It is the only place enforcing one live
// session per stream.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"connectivity-listener/internal/watcher"
)

// StreamID names a subscription endpoint.
type StreamID string

const (
	StreamWifi      StreamID = "wifi_state"
	StreamBluetooth StreamID = "bluetooth_state"
)

var (
	ErrUnknownStream  = errors.New("subscription: unknown stream")
	ErrNotImplemented = errors.New("subscription: not implemented")
)

// Watcher is the part of *watcher.Watcher the manager drives.
type Watcher interface {
	Start(ctx context.Context, sink watcher.Sink) error
	Stop() error
}

// Hooks observes session changes. Optional.
type Hooks interface {
	Attached(id StreamID)
	Detached(id StreamID)
	AttachFailed(id StreamID, kind string)
}

type session struct {
	sink watcher.Sink
}

// Manager owns the sink of each stream.
type Manager struct {
	log   *slog.Logger
	hooks Hooks

	mu       sync.Mutex
	watchers map[StreamID]Watcher
	sessions map[StreamID]*session
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }
func WithHooks(h Hooks) Option         { return func(m *Manager) { m.hooks = h } }

// New returns a manager serving the given streams.
func New(watchers map[StreamID]Watcher, opts ...Option) *Manager {
	m := &Manager{
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		watchers: make(map[StreamID]Watcher, len(watchers)),
		sessions: make(map[StreamID]*session),
	}
	for id, w := range watchers {
		m.watchers[id] = w
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("component", "subscription")
	return m
}

// Streams lists the served stream ids, sorted.
func (m *Manager) Streams() []StreamID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StreamID, 0, len(m.watchers))
	for id := range m.watchers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attach starts stream id for sink. It returns false with a nil error when
// the stream already has a subscriber. The initial snapshot, or a failure,
// has been delivered to sink by the time Attach returns. A failed attach
// leaves no session behind, so a later Attach retries from scratch.
func (m *Manager) Attach(ctx context.Context, id StreamID, sink watcher.Sink) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watchers[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownStream, id)
	}
	if _, live := m.sessions[id]; live {
		m.log.Debug("attach ignored, stream busy", "stream", id)
		return false, nil
	}
	if err := w.Start(ctx, sink); err != nil {
		kind := "error"
		var f *watcher.Failure
		if errors.As(err, &f) {
			kind = string(f.Kind)
		}
		m.log.Warn("attach failed", "stream", id, "err", err)
		if m.hooks != nil {
			m.hooks.AttachFailed(id, kind)
		}
		return false, err
	}
	m.sessions[id] = &session{sink: sink}
	m.log.Info("attached", "stream", id)
	if m.hooks != nil {
		m.hooks.Attached(id)
	}
	return true, nil
}

// Detach stops stream id. Detaching an inactive or unknown stream is a no-op.
func (m *Manager) Detach(id StreamID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detachLocked(id)
}

// DetachSink stops stream id only if sink is its current subscriber.
func (m *Manager) DetachSink(id StreamID, sink watcher.Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; !ok || s.sink != sink {
		return nil
	}
	return m.detachLocked(id)
}

func (m *Manager) detachLocked(id StreamID) error {
	if _, ok := m.sessions[id]; !ok {
		return nil
	}
	delete(m.sessions, id)
	m.log.Info("detached", "stream", id)
	if m.hooks != nil {
		m.hooks.Detached(id)
	}
	if err := m.watchers[id].Stop(); err != nil {
		return fmt.Errorf("subscription: detach %s: %w", id, err)
	}
	return nil
}

// Active reports whether stream id has a subscriber.
func (m *Manager) Active(id StreamID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// Teardown detaches every live stream. Safe with nothing attached and safe
// to call more than once.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	for id := range m.sessions {
		err = multierr.Append(err, m.detachLocked(id))
	}
	return err
}

// Invoke is the generic command channel. No commands exist yet; every
// method reports ErrNotImplemented without side effects.
func (m *Manager) Invoke(_ context.Context, method string, _ any) (any, error) {
	m.log.Debug("command not implemented", "method", method)
	return nil, fmt.Errorf("%w: %q", ErrNotImplemented, method)
}
