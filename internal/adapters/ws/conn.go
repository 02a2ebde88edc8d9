package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/quickchat/signaling/internal/core"
)

var ErrBackpressure = errors.New("backpressure")
var ErrClosed = errors.New("connection closed")

// wsConn wraps a websocket connection behind a buffered send channel so the
// registry and relay can hand off frames without blocking.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{conn: c, send: make(chan core.Frame, buffer)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
