package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Options parameterises a Watcher. Name, Action, Notifier, Query and Extract
// are required.
type Options struct {
	Name     string
	Action   string
	Notifier Notifier
	Query    func(ctx context.Context) (AdapterState, error)
	Extract  func(Notification) AdapterState
	// Unknown replaces the initial state when Query fails.
	Unknown AdapterState

	// Gate runs before anything else in Start. A non-nil failure aborts Start.
	Gate func(ctx context.Context) *Failure
	// ClassifyQueryError turns a Query error into a failure. A nil result
	// means "use Unknown".
	ClassifyQueryError func(err error) *Failure
	// Drop reports whether a notification carrying state is discarded.
	Drop func(state AdapterState) bool

	Observer Observer
	Logger   *slog.Logger
}

// Option adjusts Options built by NewWifi / NewBluetooth.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithObserver sets the delivery observer.
func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

type session struct {
	id        string
	token     Token
	sink      Sink
	lastKnown AdapterState
}

// Watcher is the generic adapter watcher.
type Watcher struct {
	opts Options
	log  *slog.Logger

	mu   sync.Mutex
	sess *session // non-nil while registered
}

// New validates opts and returns a stopped watcher.
func New(opts Options) (*Watcher, error) {
	switch {
	case opts.Name == "":
		return nil, errors.New("watcher: Name required")
	case opts.Action == "":
		return nil, errors.New("watcher: Action required")
	case opts.Notifier == nil:
		return nil, errors.New("watcher: Notifier required")
	case opts.Query == nil:
		return nil, errors.New("watcher: Query required")
	case opts.Extract == nil:
		return nil, errors.New("watcher: Extract required")
	}
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{opts: opts, log: l.With("watcher", opts.Name)}, nil
}

// Name returns the watcher name.
func (w *Watcher) Name() string { return w.opts.Name }

// Registered reports whether a host registration is live.
func (w *Watcher) Registered() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sess != nil
}

// Start begins a subscription delivering to sink.
//
//   - If a subscription is already live, Start is a no-op and returns nil.
//   - A failed Gate or an unauthorized Query delivers exactly one Failure to
//     sink and returns it; nothing is registered.
//   - Otherwise the initial snapshot {nil, state} is delivered before Start
//     returns, then the host registration is made.
func (w *Watcher) Start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return errors.New("watcher: nil sink")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sess != nil {
		w.log.Debug("start ignored, already registered", "session", w.sess.id)
		return nil
	}

	if w.opts.Gate != nil {
		if f := w.opts.Gate(ctx); f != nil {
			w.log.Warn("start refused", "kind", f.Kind, "message", f.Message)
			sink.Error(f)
			return f
		}
	}

	state, err := w.opts.Query(ctx)
	if err != nil {
		if w.opts.ClassifyQueryError != nil {
			if f := w.opts.ClassifyQueryError(err); f != nil {
				w.log.Warn("initial state query refused", "kind", f.Kind, "err", err)
				sink.Error(f)
				return f
			}
		}
		w.log.Debug("initial state query failed, using unknown", "err", err)
		state = w.opts.Unknown
	}

	s := &session{id: uuid.New().String(), sink: sink, lastKnown: state}
	sink.Success(StateChangeEvent{Current: state})
	w.delivered()

	// The session is installed before subscribing so that a notification
	// racing the Subscribe call finds it; the handler waits on w.mu.
	w.sess = s
	tok, err := w.opts.Notifier.Subscribe(w.opts.Action, func(n Notification) { w.handle(s, n) })
	if err != nil {
		w.sess = nil
		return fmt.Errorf("watcher: %s: subscribe: %w", w.opts.Name, err)
	}
	s.token = tok
	w.log.Info("registered", "session", s.id, "initial", state)
	return nil
}

// Stop removes the registration. Safe to call when not started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	s := w.sess
	w.sess = nil
	w.mu.Unlock()
	if s == nil {
		return nil
	}
	w.log.Info("unregistered", "session", s.id)
	if err := w.opts.Notifier.Unsubscribe(s.token); err != nil {
		return fmt.Errorf("watcher: %s: unsubscribe: %w", w.opts.Name, err)
	}
	return nil
}

func (w *Watcher) handle(s *session, n Notification) {
	if n.Action != w.opts.Action {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sess != s {
		// Stopped, or a newer session owns the registration.
		return
	}
	state := w.opts.Extract(n)
	if w.opts.Drop != nil && w.opts.Drop(state) {
		w.log.Debug("notification dropped", "session", s.id, "state", state)
		if w.opts.Observer != nil {
			w.opts.Observer.Dropped(w.opts.Name)
		}
		return
	}
	prev := s.lastKnown
	s.lastKnown = state
	s.sink.Success(StateChangeEvent{Previous: &prev, Current: state})
	w.delivered()
}

func (w *Watcher) delivered() {
	if w.opts.Observer != nil {
		w.opts.Observer.Delivered(w.opts.Name)
	}
}
