package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func presenceContract(t *testing.T, p Presence) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := p.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.Register(ctx, "u1", Session{SocketID: "s1", Role: "admin", Instance: "a"}))
	s, ok, err := p.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Session{SocketID: "s1", Role: "admin", Instance: "a"}, s)

	// a second tab takes over; the first one's heartbeat and close must not evict it
	require.NoError(t, p.Register(ctx, "u1", Session{SocketID: "s2", Role: "admin", Instance: "b"}))
	require.NoError(t, p.Refresh(ctx, "u1", "s1"))
	s, _, err = p.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "s2", s.SocketID)
	require.NoError(t, p.Unregister(ctx, "u1", "s1"))
	s, ok, err = p.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s2", s.SocketID)

	require.NoError(t, p.Unregister(ctx, "u1", "s2"))
	_, ok, err = p.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryPresence(t *testing.T) {
	presenceContract(t, NewMemoryPresence())
}

func TestRedisPresence(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	presenceContract(t, NewRedisPresence(rdb, time.Minute))
}

func TestRedisPresence_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPresence(rdb, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, p.Register(ctx, "u9", Session{SocketID: "s", Instance: "a"}))
	mr.FastForward(31 * time.Second)

	_, ok, err := p.Lookup(ctx, "u9")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisPresence_RefreshExtendsOwnerOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPresence(rdb, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, p.Register(ctx, "u9", Session{SocketID: "s", Instance: "a"}))
	mr.FastForward(20 * time.Second)
	require.NoError(t, p.Refresh(ctx, "u9", "s"))
	mr.FastForward(20 * time.Second)

	s, ok, err := p.Lookup(ctx, "u9")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s", s.SocketID)

	// a stale socket cannot keep the entry alive
	require.NoError(t, p.Refresh(ctx, "u9", "old"))
	mr.FastForward(11 * time.Second)
	_, ok, err = p.Lookup(ctx, "u9")
	require.NoError(t, err)
	require.False(t, ok)
}
