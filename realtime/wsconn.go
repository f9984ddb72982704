package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wire envelope for events pushed to the client
type eventFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

const (
	// EventNotification is the event name carried by notification frames.
	EventNotification = "notification"

	defaultWriteTimeout = 10 * time.Second
)

// WSConn adapts a gorilla websocket connection to the [Conn] interface.
// Gorilla connections allow only one concurrent writer, so writes are
// serialized behind a mutex.
type WSConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSConn wraps ws. A writeTimeout of zero selects a 10s default.
func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WSConn{
		conn:         ws,
		writeTimeout: writeTimeout,
	}
}

// WriteNotification sends one notification frame. The write deadline is the
// sooner of the configured timeout and the context deadline.
func (c *WSConn) WriteNotification(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return c.conn.WriteJSON(eventFrame{
		Event: EventNotification,
		Data:  n,
	})
}

// Close closes the underlying websocket.
func (c *WSConn) Close() error {
	return c.conn.Close()
}
