package server

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/voicebridge/voicebridge/pkg/session"
)

// writeWait bounds a single control-frame write.
const writeWait = 10 * time.Second

// wsConn adapts a fiber websocket connection to session.Conn.
//
// Gorilla-style connections allow one concurrent writer; the mutex
// serializes the pipeline goroutine, the keep-alive prober, and teardown.
type wsConn struct {
	mu     sync.Mutex
	c      *websocket.Conn
	closed bool
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

var _ session.Conn = (*wsConn)(nil)

func (w *wsConn) WriteBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return session.ErrClosed
	}
	if err := w.c.WriteMessage(websocket.BinaryMessage, data); err != nil {
		w.closed = true
		return session.ErrClosed
	}
	return nil
}

func (w *wsConn) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return session.ErrClosed
	}
	if err := w.c.WriteJSON(v); err != nil {
		w.closed = true
		return session.ErrClosed
	}
	return nil
}

func (w *wsConn) Ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return session.ErrClosed
	}
	if err := w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		w.closed = true
		return session.ErrClosed
	}
	return nil
}

func (w *wsConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.c.Close()
}
