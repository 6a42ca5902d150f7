package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"connectivity-listener/internal/watcher"
)

const writeWait = 5 * time.Second

// client is the watcher.Sink of one websocket subscriber. Messages are
// queued on send and written by writePump, so the watcher never blocks on
// the network. A full queue closes the connection.
type client struct {
	conn *websocket.Conn
	log  *slog.Logger
	send chan []byte

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newClient(conn *websocket.Conn, buffer int, log *slog.Logger) *client {
	c := &client{
		conn:      conn,
		log:       log,
		send:      make(chan []byte, buffer),
		closeCode: websocket.CloseNormalClosure,
	}
	go c.writePump()
	return c
}

func (c *client) Success(ev watcher.StateChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error("encode event", "err", err)
		return
	}
	c.enqueue(data)
}

func (c *client) Error(f *watcher.Failure) {
	data, err := json.Marshal(failureMessage(f))
	if err != nil {
		c.log.Error("encode failure", "err", err)
		return
	}
	c.enqueue(data)
}

func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("subscriber too slow, closing")
		c.closeLocked(websocket.ClosePolicyViolation, "subscriber too slow")
	}
}

// close flushes queued messages, then sends a close frame with code and
// reason. Later calls are ignored.
func (c *client) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(code, reason)
}

func (c *client) closeLocked(code int, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode, c.closeReason = code, reason
	close(c.send)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debug("write failed", "err", err)
			return
		}
	}
	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
