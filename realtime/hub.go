package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Events pushed to clients.
const (
	EventNotification = "notification"
	EventRefresh      = "refresh"
	EventAttendance   = "newAttendance"
	EventRegistered   = "registered"
	EventError        = "error"
)

type Hub struct {
	instance string
	presence Presence
	relay    Relay
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id        string
	profileID string // from the bearer token; register-user must match it
	role      string
	conn      *websocket.Conn
	send      chan []byte
}

type inbound struct {
	Type      string `json:"type"`
	ProfileID string `json:"profile_id"`
}

type outbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewHub(instance string, presence Presence, relay Relay) *Hub {
	if relay == nil {
		relay = NoopRelay{}
	}
	return &Hub{
		instance: instance,
		presence: presence,
		relay:    relay,
		clients:  make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start subscribes to frames relayed from other instances.
func (h *Hub) Start() error {
	return h.relay.Subscribe(h.instance, func(f Frame) {
		if f.SocketID == "" && f.Origin == h.instance {
			return // our own broadcast, already delivered locally
		}
		h.deliverLocal(f)
	})
}

// Emit pushes event to profileID if it is connected anywhere.
func (h *Hub) Emit(ctx context.Context, profileID, event string, data any) (bool, error) {
	s, ok, err := h.presence.Lookup(ctx, profileID)
	if err != nil || !ok {
		return false, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return false, err
	}
	f := Frame{Event: event, Data: raw, SocketID: s.SocketID, Origin: h.instance}
	if s.Instance == h.instance {
		return h.deliverLocal(f), nil
	}
	if err := h.relay.Publish(ctx, s.Instance, f); err != nil {
		return false, err
	}
	return true, nil
}

// Broadcast pushes event to every connected socket on every instance.
func (h *Hub) Broadcast(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f := Frame{Event: event, Data: raw, Origin: h.instance}
	h.deliverLocal(f)
	return h.relay.Publish(ctx, "", f)
}

// IsOnline reports whether profileID has a registered socket.
func (h *Hub) IsOnline(ctx context.Context, profileID string) (bool, error) {
	_, ok, err := h.presence.Lookup(ctx, profileID)
	return ok, err
}

func (h *Hub) deliverLocal(f Frame) bool {
	msg, err := json.Marshal(outbound{Event: f.Event, Data: f.Data})
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if f.SocketID != "" {
		c, ok := h.clients[f.SocketID]
		return ok && c.trySend(msg)
	}
	for _, c := range h.clients {
		c.trySend(msg)
	}
	return true
}

// trySend drops the message when the client is too slow to keep up.
func (c *client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		slog.Warn("realtime: send buffer full, dropping frame", "socket", c.id)
		return false
	}
}

// ServeWS upgrades the request. profileID and role come from the caller's
// verified token.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, profileID, role string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("realtime: upgrade failed", "error", err)
		return
	}
	c := &client{
		id:        uuid.NewString(),
		profileID: profileID,
		role:      role,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	registered := false
	defer func() {
		if registered {
			if err := h.presence.Unregister(context.Background(), c.profileID, c.id); err != nil {
				slog.Warn("realtime: unregister failed", "profile", c.profileID, "error", err)
			}
		}
		h.mu.Lock()
		delete(h.clients, c.id)
		close(c.send)
		h.mu.Unlock()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if registered {
			if err := h.presence.Refresh(context.Background(), c.profileID, c.id); err != nil {
				slog.Warn("realtime: presence refresh failed", "profile", c.profileID, "error", err)
			}
		}
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, EventError, map[string]string{"message": "malformed message"})
			continue
		}
		if msg.Type != "register-user" {
			continue
		}
		if msg.ProfileID != c.profileID {
			h.reply(c, EventError, map[string]string{"message": "profile mismatch"})
			continue
		}
		if err := h.presence.Register(context.Background(), c.profileID, h.session(c)); err != nil {
			slog.Error("realtime: register failed", "profile", c.profileID, "error", err)
			h.reply(c, EventError, map[string]string{"message": "could not register"})
			continue
		}
		registered = true
		h.reply(c, EventRegistered, map[string]string{"socketId": c.id})
	}
}

func (h *Hub) session(c *client) Session {
	return Session{SocketID: c.id, Role: c.role, Instance: h.instance}
}

func (h *Hub) reply(c *client, event string, data any) {
	raw, _ := json.Marshal(data)
	h.deliverLocal(Frame{Event: event, Data: raw, SocketID: c.id})
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close drops every local connection; their read pumps clean up presence.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
}
