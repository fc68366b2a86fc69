package handlers

import (
	"encoding/json"
	"net/http"

	"neonmatch-backend/internal/middleware"
	"neonmatch-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Guests open the app from any venue link
	},
}

// WebSocketHandler handles browser live-refresh connections
type WebSocketHandler struct {
	hub  *services.WSHub
	auth middleware.Authenticator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, auth middleware.Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		auth: auth,
	}
}

// HandleWebSocket handles GET /ws. The token comes from the query or the
// session cookie.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.TokenFromRequest(r)
	}

	userID, err := middleware.ValidateWebSocketToken(token, h.auth)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	if err := h.hub.SendToUser(userID, services.WSMessage{Type: services.WSTypeHello}); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to send hello message")
		return
	}

	log.Info().Int64("user_id", userID).Msg("WebSocket connection established")

	// Browsers only listen, apart from keepalive pings
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Int64("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != services.WSTypePing {
			h.sendError(userID, "Unknown message type")
			continue
		}
		if err := h.hub.SendToUser(userID, services.WSMessage{Type: services.WSTypePong}); err != nil {
			break
		}
	}
}

// sendError sends an error message to a user
func (h *WebSocketHandler) sendError(userID int64, message string) {
	if err := h.hub.SendToUser(userID, services.WSMessage{Type: services.WSTypeError, Error: message}); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to send error message")
	}
}
