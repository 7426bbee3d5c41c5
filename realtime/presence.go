// Package realtime pushes live events to connected browser tabs.
//
// A tab connects over a websocket and sends a register-user message with
// its profile id. Presence maps that profile to the socket and to the
// instance holding it, so any instance can address the socket: locally
// through the Hub, or through the Relay when another instance owns it.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is where a profile is currently connected.
type Session struct {
	SocketID string `json:"socketId"`
	Role     string `json:"role"`
	Instance string `json:"instance"`
}

type Presence interface {
	// Register records s for profileID, replacing an older session.
	Register(ctx context.Context, profileID string, s Session) error
	// Unregister removes profileID only while socketID is still its socket,
	// so closing an old tab does not evict a newer one.
	Unregister(ctx context.Context, profileID, socketID string) error
	// Refresh keeps socketID's session alive. It does nothing once another
	// socket owns profileID.
	Refresh(ctx context.Context, profileID, socketID string) error
	Lookup(ctx context.Context, profileID string) (Session, bool, error)
}

type MemoryPresence struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{sessions: make(map[string]Session)}
}

func (p *MemoryPresence) Register(_ context.Context, profileID string, s Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[profileID] = s
	return nil
}

func (p *MemoryPresence) Unregister(_ context.Context, profileID, socketID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.sessions[profileID]; ok && cur.SocketID == socketID {
		delete(p.sessions, profileID)
	}
	return nil
}

// Refresh is a no-op: memory sessions never expire.
func (p *MemoryPresence) Refresh(context.Context, string, string) error { return nil }

func (p *MemoryPresence) Lookup(_ context.Context, profileID string) (Session, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[profileID]
	return s, ok, nil
}

// RedisPresence shares presence between instances. Entries expire after
// ttl unless refreshed, which covers instances that die without cleanup.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func presenceKey(profileID string) string { return "presence:" + profileID }

func (p *RedisPresence) Register(ctx context.Context, profileID string, s Session) error {
	key := presenceKey(profileID)
	pipe := p.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "socket_id", s.SocketID, "role", s.Role, "instance", s.Instance)
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

var unregisterScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'socket_id') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func (p *RedisPresence) Unregister(ctx context.Context, profileID, socketID string) error {
	return unregisterScript.Run(ctx, p.rdb, []string{presenceKey(profileID)}, socketID).Err()
}

var refreshScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'socket_id') == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

func (p *RedisPresence) Refresh(ctx context.Context, profileID, socketID string) error {
	return refreshScript.Run(ctx, p.rdb, []string{presenceKey(profileID)}, socketID, p.ttl.Milliseconds()).Err()
}

func (p *RedisPresence) Lookup(ctx context.Context, profileID string) (Session, bool, error) {
	vals, err := p.rdb.HGetAll(ctx, presenceKey(profileID)).Result()
	if err != nil {
		return Session{}, false, err
	}
	if vals["socket_id"] == "" {
		return Session{}, false, nil
	}
	return Session{SocketID: vals["socket_id"], Role: vals["role"], Instance: vals["instance"]}, true, nil
}
