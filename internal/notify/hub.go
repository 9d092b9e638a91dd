package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 32
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = pongWait * 9 / 10
	maxMessageSize    = 4096
)

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type HubConfig struct {
	// SendBuffer is the number of frames queued per client before it is considered too slow.
	SendBuffer int
}

// Hub delivers notifications to the websocket clients connected to this process.
type Hub struct {
	buffer int

	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]struct{}
}

func NewHub(c HubConfig) *Hub {
	h := &Hub{
		buffer:  c.SendBuffer,
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]struct{}),
	}

	if h.buffer <= 0 {
		h.buffer = defaultSendBuffer
	}

	return h
}

// Client is one connection attached to the hub.
type Client struct {
	id   string
	send chan Envelope
}

func (c *Client) ID() string {
	return c.id
}

// Messages returns the frames queued for the client. It is closed on Unregister.
func (c *Client) Messages() <-chan Envelope {
	return c.send
}

func (h *Hub) Register(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &Client{id: id, send: make(chan Envelope, h.buffer)}
	if old, ok := h.clients[id]; ok {
		close(old.send)
	}
	h.clients[id] = c
	return c
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)

	for room, members := range h.groups {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.groups, room)
		}
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) AddToGroup(_ context.Context, room, conn string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[room]
	if !ok {
		members = make(map[string]struct{})
		h.groups[room] = members
	}
	members[conn] = struct{}{}
	return nil
}

func (h *Hub) RemoveFromGroup(_ context.Context, room, conn string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.groups[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.groups, room)
		}
	}
	return nil
}

func (h *Hub) Broadcast(ctx context.Context, room, event string, payload any) error {
	return h.BroadcastExcept(ctx, room, "", event, payload)
}

func (h *Hub) BroadcastExcept(_ context.Context, room, except, event string, payload any) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	env := Envelope{Event: event, Data: payload}

	var dropped int
	for id := range h.groups[room] {
		if id == except {
			continue
		}
		if c, ok := h.clients[id]; ok && !c.offer(env) {
			dropped++
		}
	}

	if dropped > 0 {
		return fmt.Errorf("hub: %s to room %s: %d slow clients skipped", event, room, dropped)
	}
	return nil
}

func (h *Hub) Send(_ context.Context, conn, event string, payload any) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[conn]
	if !ok {
		// A client that already went away is not an error.
		return nil
	}
	if !c.offer(Envelope{Event: event, Data: payload}) {
		return fmt.Errorf("hub: %s to %s: send buffer full", event, conn)
	}
	return nil
}

// offer must be called with the hub's lock held.
func (c *Client) offer(env Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// WritePump writes the client's frames to conn until the client is unregistered or a write
// fails.
func (c *Client) WritePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				slog.Debug("hub: write failed", "connection", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump passes every text frame read from conn to handle until the connection fails.
func (c *Client) ReadPump(conn *websocket.Conn, handle func(msg []byte)) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("hub: connection closed unexpectedly", "connection", c.id, "error", err)
			}
			return
		}
		handle(msg)
	}
}
