package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"neonmatch-backend/internal/services"
	"neonmatch-backend/internal/state"

	"github.com/go-chi/chi/v5"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends v as a JSON response
func respondJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, state.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotMatched):
		return http.StatusForbidden
	case errors.Is(err, state.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, state.ErrInvalidProfile),
		errors.Is(err, state.ErrEmptyMessage),
		errors.Is(err, state.ErrInvalidMessageType),
		errors.Is(err, services.ErrInvalidPhoto),
		errors.Is(err, services.ErrInvalidImage),
		errors.Is(err, services.ErrInvalidParams):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// userParam reads a positive user number from the named URL parameter
func userParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
