// Package server exposes the subscription endpoints over HTTP:
//
//	GET  /streams/wifi_state       websocket, one StateChangeEvent per message
//	GET  /streams/bluetooth_state  websocket, same; failures as ErrorMessage
//	POST /method                   command channel (no commands yet)
//	GET  /metrics                  Prometheus metrics
//
// Each stream accepts one subscriber at a time. A second client is closed
// with "stream busy". A failed attach sends one ErrorMessage and closes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"connectivity-listener/internal/subscription"
	"connectivity-listener/internal/watcher"
)

// Streams is the subscription surface the server drives.
type Streams interface {
	Streams() []subscription.StreamID
	Attach(ctx context.Context, id subscription.StreamID, sink watcher.Sink) (bool, error)
	DetachSink(id subscription.StreamID, sink watcher.Sink) error
	Invoke(ctx context.Context, method string, args any) (any, error)
	Teardown() error
}

// Options configures a Server.
type Options struct {
	SendBuffer int          // per-subscriber queue length
	Metrics    http.Handler // served at /metrics when set
	Logger     *slog.Logger
}

type Server struct {
	streams    Streams
	log        *slog.Logger
	sendBuffer int
	metrics    http.Handler
	upgrader   websocket.Upgrader
	httpSrv    *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
}

func New(streams Streams, opts Options) *Server {
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	buf := opts.SendBuffer
	if buf <= 0 {
		buf = 16
	}
	s := &Server{
		streams:    streams,
		log:        l.With("component", "server"),
		sendBuffer: buf,
		metrics:    opts.Metrics,
		clients:    make(map[*client]struct{}),
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetupRoutes registers the endpoints on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	for _, id := range s.streams.Streams() {
		mux.HandleFunc("GET /streams/"+string(id), s.handleStream(id))
	}
	mux.HandleFunc("/method", s.handleMethod)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns a mux with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("listening", "addr", ln.Addr().String())
	if err := s.httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, detaches every stream and closes
// the subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	err = multierr.Append(err, s.streams.Teardown())
	s.mu.Lock()
	for c := range s.clients {
		c.close(websocket.CloseGoingAway, "shutting down")
	}
	s.mu.Unlock()
	return err
}

func (s *Server) track(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) handleStream(id subscription.StreamID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Debug("ws upgrade error", "stream", id, "err", err)
			return
		}
		log := s.log.With("stream", id, "remote", r.RemoteAddr)
		c := newClient(conn, s.sendBuffer, log)
		s.track(c)
		defer s.untrack(c)

		attached, err := s.streams.Attach(r.Context(), id, c)
		var f *watcher.Failure
		switch {
		case errors.As(err, &f):
			// The failure is already queued on c.
			c.close(websocket.ClosePolicyViolation, string(f.Kind))
			return
		case err != nil:
			log.Error("attach failed", "err", err)
			c.close(websocket.CloseInternalServerErr, "attach failed")
			return
		case !attached:
			log.Info("stream busy, rejecting subscriber")
			c.close(websocket.CloseTryAgainLater, "stream busy")
			return
		}
		log.Info("subscriber connected")

		defer func() {
			if err := s.streams.DetachSink(id, c); err != nil {
				log.Warn("detach failed", "err", err)
			}
			c.close(websocket.CloseNormalClosure, "")
			log.Info("subscriber disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMethod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var call MethodCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil || call.Method == "" {
		writeJSON(w, http.StatusBadRequest, ErrorMessage{Error: ErrorBody{Code: CodeBadRequest, Message: "body must be {\"method\": ...}"}})
		return
	}
	res, err := s.streams.Invoke(r.Context(), call.Method, call.Args)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, subscription.ErrNotImplemented) {
			status = http.StatusNotImplemented
		}
		writeJSON(w, status, methodError(err))
		return
	}
	writeJSON(w, http.StatusOK, MethodResult{Result: res})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
