// Package api provides HTTP API handlers and WebSocket support
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/WispAyr/baywatch/internal/eventbus"
	"github.com/WispAyr/baywatch/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MessageType names one of the fan-out message kinds pushed to clients.
type MessageType string

const (
	MessageTypeInitialState    MessageType = "initial_state"
	MessageTypeOccupancyUpdate MessageType = "occupancy_update"
	MessageTypeModeChanged     MessageType = "mode_changed"
	MessageTypeZoneCreated     MessageType = "zone_created"
	MessageTypeZoneUpdated     MessageType = "zone_updated"
	MessageTypeZoneDeleted     MessageType = "zone_deleted"
	MessageTypeParkingEvent    MessageType = "parking_event"
)

// Message is the envelope pushed over the WebSocket connection.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Client is one attached WebSocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts messages.
// Grounded on the teacher's register/unregister/broadcast select loop;
// the subscription-filtering logic is dropped since every connected
// client gets every zone-occupancy message (there is no per-camera
// video stream to filter by here).
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger

	initial func() Message
}

// NewHub creates a new WebSocket hub. initial, if non-nil, is called to
// produce the InitialState message sent to each newly attached client.
func NewHub(initial func() Message) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     slog.Default().With("component", "websocket-hub"),
		initial:    initial,
	}
}

// Run starts the hub's main loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client connected", "total_clients", len(h.clients))

			if h.initial != nil {
				msg := h.initial()
				msg.Timestamp = time.Now()
				if data, err := json.Marshal(msg); err == nil {
					select {
					case client.send <- data:
					default:
					}
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "total_clients", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn("client buffer full, dropping message")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends msg to every connected client, best-effort.
func (h *Hub) Broadcast(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and registers a client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", "error", err)
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SubscribeBus wires the hub to the embedded eventbus: every message
// published by the occupancy/detect/scheduler/zone layers is
// re-broadcast to attached WebSocket clients.
func SubscribeBus(h *Hub, bus *eventbus.Bus) error {
	if _, err := eventbus.SubscribeJSON(bus, eventbus.SubjectOccupancyChanged, func(payload json.RawMessage) {
		h.Broadcast(Message{Type: MessageTypeOccupancyUpdate, Data: payload})
	}); err != nil {
		return err
	}
	if _, err := eventbus.SubscribeJSON(bus, eventbus.SubjectEventLogged, func(ev events.Event) {
		h.Broadcast(Message{Type: MessageTypeParkingEvent, Data: ev})
	}); err != nil {
		return err
	}
	if _, err := eventbus.SubscribeJSON(bus, eventbus.SubjectModeChanged, func(payload json.RawMessage) {
		h.Broadcast(Message{Type: MessageTypeModeChanged, Data: payload})
	}); err != nil {
		return err
	}
	if _, err := eventbus.SubscribeJSON(bus, eventbus.SubjectZoneChanged, func(change ZoneChange) {
		h.Broadcast(Message{Type: zoneChangeMessageType(change.Kind), Data: change})
	}); err != nil {
		return err
	}
	return nil
}

// ZoneChange is published on SubjectZoneChanged whenever a zone is
// created, updated, or deleted through the admin API.
type ZoneChange struct {
	Kind   string      `json:"kind"` // "created" | "updated" | "deleted"
	ZoneID string      `json:"zone_id"`
	Zone   interface{} `json:"zone,omitempty"`
}

func zoneChangeMessageType(kind string) MessageType {
	switch kind {
	case "created":
		return MessageTypeZoneCreated
	case "updated":
		return MessageTypeZoneUpdated
	default:
		return MessageTypeZoneDeleted
	}
}
