package realtime

import (
	"context"
	"sync"
)

// Conn is one live client connection. Implementations must be safe for
// concurrent writes.
type Conn interface {
	// WriteNotification pushes one notification to the client.
	WriteNotification(ctx context.Context, n Notification) error
	// Close tears the connection down.
	Close() error
}

// Registry is a concurrent map of user id to open connections. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[Conn]struct{}),
	}
}

// Bind registers a connection under a user id. Binding the same connection
// twice is a no-op.
func (r *Registry) Bind(userID string, conn Conn) {
	if userID == "" || conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
}

// Unbind removes a connection. Unbinding an unknown connection or user is a
// no-op; the last unbind removes the user entry entirely.
func (r *Registry) Unbind(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// Connections returns a snapshot of the user's open connections.
func (r *Registry) Connections(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.conns[userID]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}

// ConnectionCount returns how many connections a user holds.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// UserCount returns how many distinct users are connected.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
