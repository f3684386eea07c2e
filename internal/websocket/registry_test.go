package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	id string

	mu     sync.Mutex
	closed bool
}

func (c *stubConn) ID() string            { return c.id }
func (c *stubConn) WriteJSON(v any) error { return nil }

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistryBindAndGet(t *testing.T) {
	r := NewRegistry()
	conn := &stubConn{id: "c1"}

	r.Bind(conn, "r1", "alice")

	got, ok := r.Get("r1", "alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())

	_, ok = r.Get("r1", "bob")
	assert.False(t, ok)
	_, ok = r.Get("r2", "alice")
	assert.False(t, ok)
}

func TestRegistryRebindRetiresOldConnection(t *testing.T) {
	r := NewRegistry()
	old := &stubConn{id: "c1"}
	replacement := &stubConn{id: "c2"}

	r.Bind(old, "r1", "alice")
	r.Bind(replacement, "r1", "alice")

	got, ok := r.Get("r1", "alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())

	// The replaced connection is closed asynchronously.
	require.Eventually(t, old.isClosed, time.Second, 10*time.Millisecond)
	assert.False(t, replacement.isClosed())

	// The retired connection no longer has a binding.
	_, _, ok = r.BindingOf(old)
	assert.False(t, ok)
}

func TestRegistryUnbindIdempotent(t *testing.T) {
	r := NewRegistry()
	conn := &stubConn{id: "c1"}
	r.Bind(conn, "r1", "alice")

	roomID, userID, ok := r.Unbind(conn)
	require.True(t, ok)
	assert.Equal(t, "r1", roomID)
	assert.Equal(t, "alice", userID)

	_, _, ok = r.Unbind(conn)
	assert.False(t, ok)
}

func TestRegistryStaleUnbindKeepsNewerBinding(t *testing.T) {
	r := NewRegistry()
	old := &stubConn{id: "c1"}
	replacement := &stubConn{id: "c2"}

	r.Bind(old, "r1", "alice")
	r.Bind(replacement, "r1", "alice")

	// The stale connection's cleanup must not evict the reconnect.
	_, _, ok := r.Unbind(old)
	assert.False(t, ok)

	got, ok := r.Get("r1", "alice")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
}

func TestRegistryBindingOf(t *testing.T) {
	r := NewRegistry()
	conn := &stubConn{id: "c1"}

	_, _, ok := r.BindingOf(conn)
	assert.False(t, ok)

	r.Bind(conn, "r1", "alice")

	roomID, userID, ok := r.BindingOf(conn)
	require.True(t, ok)
	assert.Equal(t, "r1", roomID)
	assert.Equal(t, "alice", userID)
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry()
	r.Bind(&stubConn{id: "c1"}, "r1", "alice")
	r.Bind(&stubConn{id: "c2"}, "r1", "bob")
	r.Bind(&stubConn{id: "c3"}, "r2", "carol")

	stats := r.Stats()
	assert.Equal(t, 3, stats["bound_connections"])
	assert.Equal(t, 2, stats["rooms_with_users"])
}
