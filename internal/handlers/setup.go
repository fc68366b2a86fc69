package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"neonmatch-backend/internal/connection"
	"neonmatch-backend/internal/middleware"
	"neonmatch-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// SetupHandler handles connection setup and magic links
type SetupHandler struct {
	app        *services.App
	adminToken string
}

// NewSetupHandler creates a new setup handler
func NewSetupHandler(app *services.App, adminToken string) *SetupHandler {
	return &SetupHandler{
		app:        app,
		adminToken: adminToken,
	}
}

// canConfigure reports whether r may replace the connection: anyone while
// unconfigured, only admins afterwards
func (h *SetupHandler) canConfigure(r *http.Request) bool {
	return !h.app.Status().Configured || middleware.IsAdmin(r, h.adminToken)
}

// MagicLink handles GET / with optional sbUrl and sbKey parameters. The
// parameters are applied when allowed and always stripped from the URL.
func (h *SetupHandler) MagicLink(w http.ResponseWriter, r *http.Request) {
	p, ok := connection.FromQuery(r.URL.Query())
	if !ok {
		respondJSON(w, h.app.Status(), http.StatusOK)
		return
	}

	current, _ := h.app.Params()
	switch {
	case p == current:
		// already applied
	case h.canConfigure(r):
		if err := h.app.Configure(r.Context(), p); err != nil {
			log.Error().Err(err).Str("url", p.URL).Msg("Failed to apply magic link")
			if errors.Is(err, services.ErrInvalidParams) {
				respondError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
	default:
		log.Warn().Str("url", p.URL).Msg("Ignoring magic link for a different project")
	}

	http.Redirect(w, r, connection.StripQuery(r.URL), http.StatusSeeOther)
}

// Status handles GET /api/v1/status
func (h *SetupHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.app.Status(), http.StatusOK)
}

// Setup handles POST /api/v1/setup
func (h *SetupHandler) Setup(w http.ResponseWriter, r *http.Request) {
	if !h.canConfigure(r) {
		respondError(w, "Admin token required", http.StatusForbidden)
		return
	}

	var req connection.Params
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.app.Configure(r.Context(), req); err != nil {
		if errors.Is(err, services.ErrInvalidParams) {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		// saved and connected, but the first fetch failed
		log.Error().Err(err).Msg("Setup completed with errors")
		respondJSON(w, h.app.Status(), http.StatusAccepted)
		return
	}

	log.Info().Str("url", req.URL).Msg("Connection configured")

	respondJSON(w, h.app.Status(), http.StatusOK)
}
