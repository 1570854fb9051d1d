package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/protocol"
)

// Client is one WebSocket connection. Writes go through a buffered channel
// drained by a single writer goroutine.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newClient(id string, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
		logger: logger.With().Str("client_id", id).Logger(),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues a message for the client. It returns false when the client is
// closed or its buffer is full.
func (c *Client) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode WebSocket message")
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendError sends an error response correlated with a request id.
func (c *Client) SendError(requestID, msg string) bool {
	return c.Send(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.WSTypeError,
		Success: false,
		Error:   msg,
	})
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump runs until the client is closed or a write fails.
func (c *Client) writePump() {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

// Hub tracks connected clients and broadcasts to them.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// Register adds a client connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes and closes a client connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes all client connections.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// Broadcast sends a message to every client without blocking. Clients whose
// buffer is full are dropped.
func (h *Hub) Broadcast(msg protocol.WebSocketMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.Send(msg) {
			h.logger.Warn().Str("client_id", c.id).Msg("dropping slow WebSocket client")
			c.close()
			delete(h.clients, c)
		}
	}
}
