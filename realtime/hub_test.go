package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recordingRelay struct {
	NoopRelay
	published []string
}

func (r *recordingRelay) Publish(_ context.Context, instance string, f Frame) error {
	r.published = append(r.published, instance+"/"+f.Event)
	return nil
}

func dialHub(t *testing.T, h *Hub, profileID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, profileID, "admin")
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg outbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_RegisterEmitAndDisconnect(t *testing.T) {
	presence := NewMemoryPresence()
	h := NewHub("inst-a", presence, nil)
	conn := dialHub(t, h, "prof-1")

	require.NoError(t, conn.WriteJSON(inbound{Type: "register-user", ProfileID: "prof-1"}))
	msg := readFrame(t, conn)
	require.Equal(t, EventRegistered, msg.Event)

	online, err := h.IsOnline(context.Background(), "prof-1")
	require.NoError(t, err)
	require.True(t, online)

	delivered, err := h.Emit(context.Background(), "prof-1", EventNotification, map[string]string{"title": "hi"})
	require.NoError(t, err)
	require.True(t, delivered)

	msg = readFrame(t, conn)
	require.Equal(t, EventNotification, msg.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	require.Equal(t, "hi", data["title"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		ok, _ := h.IsOnline(context.Background(), "prof-1")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestHub_RejectsForeignProfile(t *testing.T) {
	h := NewHub("inst-a", NewMemoryPresence(), nil)
	conn := dialHub(t, h, "prof-1")

	require.NoError(t, conn.WriteJSON(inbound{Type: "register-user", ProfileID: "someone-else"}))
	msg := readFrame(t, conn)
	require.Equal(t, EventError, msg.Event)

	online, err := h.IsOnline(context.Background(), "someone-else")
	require.NoError(t, err)
	require.False(t, online)
}

func TestHub_EmitOfflineAndRemote(t *testing.T) {
	presence := NewMemoryPresence()
	relay := &recordingRelay{}
	h := NewHub("inst-a", presence, relay)
	ctx := context.Background()

	delivered, err := h.Emit(ctx, "nobody", EventRefresh, nil)
	require.NoError(t, err)
	require.False(t, delivered)

	require.NoError(t, presence.Register(ctx, "remote", Session{SocketID: "s9", Instance: "inst-b"}))
	delivered, err = h.Emit(ctx, "remote", EventRefresh, nil)
	require.NoError(t, err)
	require.True(t, delivered)

	require.NoError(t, h.Broadcast(ctx, EventAttendance, map[string]string{"action": "checked-in"}))
	require.Equal(t, []string{"inst-b/refresh", "/newAttendance"}, relay.published)
}

func TestHub_BroadcastReachesLocalSockets(t *testing.T) {
	h := NewHub("inst-a", NewMemoryPresence(), nil)
	c1 := dialHub(t, h, "p1")
	c2 := dialHub(t, h, "p2")

	// both upgrades must be registered in the hub before broadcasting
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 2
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Broadcast(context.Background(), EventAttendance, map[string]string{"name": "Ana"}))
	require.Equal(t, EventAttendance, readFrame(t, c1).Event)
	require.Equal(t, EventAttendance, readFrame(t, c2).Event)
}

type countingPresence struct {
	Presence
	refreshes atomic.Int32
}

func (p *countingPresence) Refresh(ctx context.Context, profileID, socketID string) error {
	defer p.refreshes.Add(1)
	return p.Presence.Refresh(ctx, profileID, socketID)
}

func registerTab(t *testing.T, conn *websocket.Conn, profileID string) string {
	t.Helper()
	require.NoError(t, conn.WriteJSON(inbound{Type: "register-user", ProfileID: profileID}))
	msg := readFrame(t, conn)
	require.Equal(t, EventRegistered, msg.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	return data["socketId"]
}

func TestHub_OlderTabHeartbeatKeepsNewerTab(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	presence := &countingPresence{Presence: NewRedisPresence(rdb, time.Minute)}
	h := NewHub("inst-a", presence, nil)
	ctx := context.Background()

	older := dialHub(t, h, "prof-1")
	registerTab(t, older, "prof-1")
	newer := dialHub(t, h, "prof-1")
	newerID := registerTab(t, newer, "prof-1")

	require.NoError(t, older.WriteControl(websocket.PongMessage, nil, time.Now().Add(time.Second)))
	require.Eventually(t, func() bool { return presence.refreshes.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)

	s, ok, err := presence.Lookup(ctx, "prof-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newerID, s.SocketID)

	delivered, err := h.Emit(ctx, "prof-1", EventRefresh, nil)
	require.NoError(t, err)
	require.True(t, delivered)
	require.Equal(t, EventRefresh, readFrame(t, newer).Event)
}
