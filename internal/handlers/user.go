package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"neonmatch-backend/internal/middleware"
	"neonmatch-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles registration, sessions and AI bios
type UserHandler struct {
	userService   *services.UserService
	gemini        *services.GeminiService
	secureCookies bool
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, gemini *services.GeminiService, secureCookies bool) *UserHandler {
	return &UserHandler{
		userService:   userService,
		gemini:        gemini,
		secureCookies: secureCookies,
	}
}

// GenerateBioRequest represents the request body for an AI bio
type GenerateBioRequest struct {
	Name   string `json:"name"`
	Traits string `json:"traits"`
}

// GenerateBio handles POST /api/v1/profile/bio
func (h *UserHandler) GenerateBio(w http.ResponseWriter, r *http.Request) {
	var req GenerateBioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Traits = strings.TrimSpace(req.Traits)
	if req.Name == "" || req.Traits == "" {
		respondError(w, "name and traits are required", http.StatusBadRequest)
		return
	}

	bio := h.gemini.GenerateBio(r.Context(), req.Name, req.Traits)

	respondJSON(w, map[string]string{"bio": bio}, http.StatusOK)
}

// Register handles POST /api/v1/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.userService.Register(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("name", req.Name).Msg("Failed to register user")
		respondError(w, "Error al registrarse: "+err.Error(), statusFor(err))
		return
	}

	middleware.SetSessionCookie(w, resp.Token, h.secureCookies)

	respondJSON(w, resp, http.StatusCreated)
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.userService.GetUser(userID)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, user, http.StatusOK)
}

// Logout handles DELETE /api/v1/session
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSessionCookie(w)

	w.WriteHeader(http.StatusNoContent)
}
