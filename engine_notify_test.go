package authcore

import (
	"context"
	"sync"
	"testing"

	"github.com/platepal/authcore/realtime"
)

type recordingConn struct {
	mu       sync.Mutex
	messages []string
}

func (c *recordingConn) WriteNotification(_ context.Context, n realtime.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, n.Message)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func TestNotifyDeliversToBoundConnections(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser(t, "alice", "alice@example.com", "correct horse battery", StatusActive)

	conn := &recordingConn{}
	env.engine.Sockets().Bind(user.ID, conn)

	delivered := env.engine.Notify(context.Background(), user.ID, "bob shared a 'Ramen'")
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.messages) != 1 || conn.messages[0] != "bob shared a 'Ramen'" {
		t.Fatalf("messages = %v", conn.messages)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricNotifyDelivered] != 1 {
		t.Fatalf("delivered counter = %d, want 1", snap.Counters[MetricNotifyDelivered])
	}
}

func TestNotifyOfflineUserIsNoOp(t *testing.T) {
	env := newTestEnv(t, nil)

	if delivered := env.engine.Notify(context.Background(), "nobody", "hello"); delivered != 0 {
		t.Fatalf("delivered = %d, want 0", delivered)
	}
}
