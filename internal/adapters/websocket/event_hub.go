// Package websocket provides WebSocket-based event broadcasting for
// real-time dashboard monitoring.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"leadrelay/internal/core/ports"
)

var _ ports.EventSink = (*EventHub)(nil)

// EventHub fans conversation events out to all connected dashboard clients.
// Delivery is best-effort: slow clients lose messages rather than block the
// webhook path.
type EventHub struct {
	// Registered clients map (client -> struct{})
	clients map[*Client]struct{}

	// Buffered channel for events (Non-blocking, Drop-if-full strategy)
	broadcast chan []byte

	// Register/Unregister channels for client management
	register   chan *Client
	unregister chan *Client

	// Mutex for thread-safe client map access
	mu sync.RWMutex

	// Secret key for authentication
	secretKey string

	upgrader websocket.Upgrader
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

const (
	broadcastBufferSize = 256
	clientBufferSize    = 64

	// WebSocket timeouts
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// NewEventHub creates a new EventHub instance.
// secretKey authenticates dashboard connections.
func NewEventHub(secretKey string) *EventHub {
	return &EventHub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		secretKey:  secretKey,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Allow all origins for internal Dashboard (protected by secret key)
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run starts the hub's main event loop (call as goroutine)
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			slog.Info("Dashboard client connected", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			slog.Info("Dashboard client disconnected", "total", total)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				// Non-blocking send: a slow client never blocks the hub
				select {
				case client.send <- message:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish implements ports.EventSink. The event is serialized once and
// queued with a drop-if-full strategy; publishing never blocks the caller.
func (h *EventHub) Publish(event any) {
	msg, err := json.Marshal(event)
	if err != nil {
		slog.Warn("Failed to marshal event for broadcast", "error", err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		// Channel full: drop the event to protect the webhook path
	}
}

// ServeWS handles WebSocket upgrade requests
// Route: /ws/events?secret_key=YOUR_SECRET
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	queryKey := r.URL.Query().Get("secret_key")
	if queryKey == "" || queryKey != h.secretKey {
		http.Error(w, "Unauthorized: Invalid or missing secret_key", http.StatusUnauthorized)
		slog.Warn("Unauthorized WebSocket attempt", "remote_addr", r.RemoteAddr)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump handles incoming messages from client (mostly pong responses)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Clients don't send anything useful; drain the connection
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}
	}
}

// writePump sends messages from hub to client via WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the current number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
