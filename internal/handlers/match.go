package handlers

import (
	"encoding/json"
	"net/http"

	"neonmatch-backend/internal/middleware"
	"neonmatch-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// MatchHandler handles the dashboard, likes and match lists
type MatchHandler struct {
	matchService *services.MatchService
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(matchService *services.MatchService) *MatchHandler {
	return &MatchHandler{
		matchService: matchService,
	}
}

// SendLikeRequest represents the request body for a like
type SendLikeRequest struct {
	TargetID int64 `json:"target_id"`
}

// RespondRequest represents the request body for answering a like
type RespondRequest struct {
	Accept bool `json:"accept"`
}

// Dashboard handles GET /api/v1/dashboard
func (h *MatchHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	d, err := h.matchService.Dashboard(userID, r.URL.Query().Get("vote"))
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, d, http.StatusOK)
}

// SendLike handles POST /api/v1/likes. The result is always 200 and carries
// the message to show.
func (h *MatchHandler) SendLike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SendLikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res := h.matchService.SendLike(ctx, userID, req.TargetID)

	respondJSON(w, res, http.StatusOK)
}

// Respond handles POST /api/v1/likes/{from_id}
func (h *MatchHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	fromID, ok := userParam(r, "from_id")
	if !ok {
		respondError(w, "from_id must be a user number", http.StatusBadRequest)
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.matchService.Respond(ctx, userID, fromID, req.Accept); err != nil {
		log.Error().
			Err(err).
			Int64("user_id", userID).
			Int64("from_id", fromID).
			Msg("Failed to respond to like")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Chats handles GET /api/v1/chats
func (h *MatchHandler) Chats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	respondJSON(w, map[string]any{
		"matches": h.matchService.MatchList(userID),
	}, http.StatusOK)
}
