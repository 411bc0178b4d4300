// Package ws streams bridge events to WebSocket clients of the status API.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmylchreest/keylight2mqtt/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512

	sendBufferSize = 64
)

// eventMessage is the JSON form of an event on the wire
type eventMessage struct {
	Type      events.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Serial    string           `json:"serial,omitempty"`
	Attribute string           `json:"attribute,omitempty"`
	Value     string           `json:"value,omitempty"`
}

func newEventMessage(e events.Event) eventMessage {
	return eventMessage{
		Type:      e.Type,
		Timestamp: e.Timestamp,
		Serial:    e.Serial,
		Attribute: e.Attribute,
		Value:     e.Value,
	}
}

// Client is a single WebSocket connection. A nil types set receives every event.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	types map[events.EventType]bool
}

func (c *Client) wants(t events.EventType) bool {
	return c.types == nil || c.types[t]
}

// Hub fans bus events out to connected clients. Broadcasting never blocks the
// publisher: a client whose buffer is full is disconnected.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	unsub func()
}

// NewHub creates a Hub subscribed to bus
func NewHub(logger *slog.Logger, bus *events.Bus) *Hub {
	h := &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
	h.unsub = bus.Subscribe(h.broadcast)
	return h
}

func (h *Hub) broadcast(e events.Event) {
	data, err := json.Marshal(newEventMessage(e))
	if err != nil {
		h.logger.Error("ws: failed to marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(e.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: client too slow, disconnecting", "remote_addr", c.remoteAddr(), "type", e.Type)
			h.drop(c)
		}
	}
}

// drop removes c; the caller holds h.mu
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// NewClient creates a Client attached to this hub, filtered to types when
// any are given
func (h *Hub) NewClient(conn *websocket.Conn, types ...events.EventType) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	if len(types) > 0 {
		c.types = make(map[events.EventType]bool, len(types))
		for _, t := range types {
			c.types[t] = true
		}
	}
	return c
}

// Register adds c to the hub. It reports false once the hub is closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client connected", "remote_addr", c.remoteAddr(), "clients", count)
	return true
}

// Unregister removes c from the hub if it is still registered
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		h.drop(c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("ws: client disconnected", "remote_addr", c.remoteAddr(), "clients", count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the bus and disconnects every client. Later
// registrations are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
	h.mu.Unlock()

	h.unsub()
	h.logger.Info("ws: hub stopped")
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// WritePump pumps messages from the hub to the connection. It returns, and
// closes the connection, when the hub drops the client or a write fails.
func (c *Client) WritePump() {
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
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
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

// ReadPump processes control frames until the peer goes away. Data frames
// from the client are discarded.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws: read error", "error", err)
			}
			return
		}
	}
}
