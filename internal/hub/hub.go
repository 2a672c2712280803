// Package hub fans lifecycle and telemetry events out to WebSocket
// subscribers, typically the companion display.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// sendQueueSize bounds the per-client backlog; a viewer that falls this
	// far behind is disconnected rather than allowed to stall broadcasts.
	sendQueueSize = 64
)

// Hub tracks connected viewers and broadcasts JSON frames to all of them.
// Delivery is best-effort: a slow or dead client is dropped, never waited on.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New creates an empty hub.
func New(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			// The display runs on a separate origin on the local network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// frame is the wire format: a type tag plus the event payload inlined.
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ServeHTTP upgrades the request and registers the connection until it
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	// Queue the hello frame before the client is visible to Broadcast.
	hello, _ := json.Marshal(frame{Type: "hello"})
	c.send <- hello

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("viewer connected", "client", c.id, "viewers", n)

	go h.writePump(c)
	h.readPump(c)
}

// Broadcast sends one event to every connected viewer without blocking.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := json.Marshal(frame{Type: event, Data: payload})
	if err != nil {
		h.log.Error("encoding broadcast", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Backlogged client; cut it loose.
			h.dropLocked(c)
		}
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all viewers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames; the feed is one-way. It returns when the
// peer disconnects.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
	h.log.Info("viewer disconnected", "client", c.id)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
}
