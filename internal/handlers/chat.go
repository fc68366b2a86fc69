package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"neonmatch-backend/internal/middleware"
	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/services"
	"neonmatch-backend/internal/state"

	"github.com/rs/zerolog/log"
)

// ChatHandler handles conversations between matches
type ChatHandler struct {
	chatService *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// GetConversation handles GET /api/v1/chats/{partner_id}
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	partnerID, ok := userParam(r, "partner_id")
	if !ok {
		respondError(w, "partner_id must be a user number", http.StatusBadRequest)
		return
	}

	conv, err := h.chatService.Conversation(userID, partnerID)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, conv, http.StatusOK)
}

// SendMessage handles POST /api/v1/chats/{partner_id}/messages. The body is
// JSON, or multipart with text, type and an optional image file.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	partnerID, ok := userParam(r, "partner_id")
	if !ok {
		respondError(w, "partner_id must be a user number", http.StatusBadRequest)
		return
	}

	var (
		req services.SendMessageRequest
		att *state.Attachment
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, services.MaxImageSize+1<<20)
		if err := r.ParseMultipartForm(services.MaxImageSize); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, "image too large", http.StatusRequestEntityTooLarge)
				return
			}
			respondError(w, "Invalid multipart body", http.StatusBadRequest)
			return
		}
		req.Text = r.FormValue("text")
		req.Type = models.MessageType(r.FormValue("type"))

		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			att = &state.Attachment{
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		case !errors.Is(err, http.ErrMissingFile):
			respondError(w, "Invalid image", http.StatusBadRequest)
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.chatService.Send(ctx, userID, partnerID, req, att)
	if err != nil {
		log.Error().
			Err(err).
			Int64("user_id", userID).
			Int64("partner_id", partnerID).
			Msg("Failed to send message")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, msg, http.StatusCreated)
}

// Wingman handles POST /api/v1/chats/{partner_id}/wingman
func (h *ChatHandler) Wingman(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	partnerID, ok := userParam(r, "partner_id")
	if !ok {
		respondError(w, "partner_id must be a user number", http.StatusBadRequest)
		return
	}

	suggestion, err := h.chatService.Wingman(ctx, userID, partnerID)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, map[string]string{"suggestion": suggestion}, http.StatusOK)
}
