package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/state"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait = 10 * time.Second
	// sendQueueSize is how many pushes a connection may fall behind before it is dropped
	sendQueueSize = 64
)

// WSMessage represents a message pushed to a browser
type WSMessage struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection,omitempty"`
	Message    *models.Message `json:"message,omitempty"`
	FromID     int64           `json:"from_id,omitempty"`
	ToID       int64           `json:"to_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Message types sent over the browser websocket
const (
	WSTypeHello   = "hello"
	WSTypeRefresh = "refresh"
	WSTypeMessage = "message"
	WSTypeMatch   = "match"
	WSTypeError   = "error"
	WSTypePing    = "ping"
	WSTypePong    = "pong"
)

// wsConn owns the writes to one socket. Pushes are queued and written by
// writePump so a slow browser never blocks the caller.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *wsConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				// the reader sees the closed socket and unregisters
				c.close()
				return
			}
		}
	}
}

// enqueue reports false when the queue is full or the connection is closed
func (c *wsConn) enqueue(data []byte) bool {
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

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WSHub manages browser WebSocket connections, one per user
type WSHub struct {
	mu          sync.RWMutex
	connections map[int64]*wsConn
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[int64]*wsConn),
	}
}

// Register registers a new WebSocket connection for a user
func (h *WSHub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[userID]; exists {
		existing.close()
	}

	h.connections[userID] = newWSConn(conn)

	log.Info().Int64("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the WebSocket connection for a user if it is still conn
func (h *WSHub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, exists := h.connections[userID]; exists && c.conn == conn {
		c.close()
		delete(h.connections, userID)
		log.Info().Int64("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser queues a message for a specific user. A connection whose queue
// is full is dropped.
func (h *WSHub) SendToUser(userID int64, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %d is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if !c.enqueue(data) {
		h.Unregister(userID, c.conn)
		return fmt.Errorf("failed to send message: user %d is not keeping up", userID)
	}

	return nil
}

// Broadcast sends a message to every connected user
func (h *WSHub) Broadcast(message WSMessage) {
	h.mu.RLock()
	ids := make([]int64, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		if err := h.SendToUser(id, message); err != nil {
			log.Debug().Err(err).Int64("user_id", id).Msg("Failed to broadcast")
		}
	}
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// OnChange forwards a state change to the browsers it concerns. Messages go
// to both participants, request changes to both sides, everything else to
// everyone.
func (h *WSHub) OnChange(c state.Change) {
	switch {
	case c.Collection == state.CollectionMessages && c.Message != nil:
		msg := WSMessage{Type: WSTypeMessage, Collection: c.Collection, Message: c.Message}
		h.sendIfOnline(c.Message.SenderID, msg)
		h.sendIfOnline(c.Message.ReceiverID, msg)
	case c.Collection == state.CollectionMatches && c.FromID != 0:
		msg := WSMessage{Type: WSTypeMatch, Collection: c.Collection, FromID: c.FromID, ToID: c.ToID}
		h.sendIfOnline(c.FromID, msg)
		h.sendIfOnline(c.ToID, msg)
	default:
		h.Broadcast(WSMessage{Type: WSTypeRefresh, Collection: c.Collection})
	}
}

func (h *WSHub) sendIfOnline(userID int64, msg WSMessage) {
	if !h.IsOnline(userID) {
		return
	}
	if err := h.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Str("type", msg.Type).Msg("Failed to push change")
	}
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.connections {
		c.close()
		delete(h.connections, id)
	}
}
