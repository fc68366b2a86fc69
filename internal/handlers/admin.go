package handlers

import (
	"context"
	"net/http"

	"neonmatch-backend/internal/repository"
	"neonmatch-backend/internal/state"

	"github.com/rs/zerolog/log"
)

// SchemaManager manages tables over a direct database connection
type SchemaManager interface {
	EnsureSchema(ctx context.Context) error
	Reset(ctx context.Context) error
	Counts(ctx context.Context) (*repository.Counts, error)
}

// AdminHandler handles venue administration
type AdminHandler struct {
	store  *state.Store
	schema SchemaManager
}

// NewAdminHandler creates a new admin handler. schema may be nil when no
// database connection is configured.
func NewAdminHandler(store *state.Store, schema SchemaManager) *AdminHandler {
	return &AdminHandler{
		store:  store,
		schema: schema,
	}
}

// Reset handles POST /api/v1/admin/reset. With a database connection the
// tables are truncated and numbering restarts; otherwise rows are deleted
// through the API.
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.schema != nil {
		if err := h.schema.Reset(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to reset database")
			respondError(w, "Failed to reset", http.StatusInternalServerError)
			return
		}
		h.store.Clear(0)
		if err := h.store.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to refresh after reset")
		}
	} else if err := h.store.Reset(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to reset")
		respondError(w, "Failed to reset", statusFor(err))
		return
	}

	log.Warn().Msg("Venue reset by admin")

	w.WriteHeader(http.StatusNoContent)
}

// Schema handles POST /api/v1/admin/schema
func (h *AdminHandler) Schema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.schema == nil {
		respondError(w, "database connection not configured", http.StatusNotImplemented)
		return
	}

	if err := h.schema.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to ensure schema")
		respondError(w, "Failed to apply schema", http.StatusInternalServerError)
		return
	}

	counts, err := h.schema.Counts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count rows")
		respondError(w, "Failed to count rows", http.StatusInternalServerError)
		return
	}

	if h.store.Connected() {
		if err := h.store.Refresh(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to refresh after schema update")
		}
	}

	respondJSON(w, counts, http.StatusOK)
}
