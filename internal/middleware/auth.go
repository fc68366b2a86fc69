package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"neonmatch-backend/internal/services"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SessionCookie is the cookie carrying the session token
const SessionCookie = "neonmatch_session"

// Authenticator resolves a session token to a user number
type Authenticator interface {
	Authenticate(token string) (int64, error)
}

// StatusReporter tells whether the backend connection is configured
type StatusReporter interface {
	Status() services.Status
}

// TokenFromRequest reads the session token from the Authorization header,
// the session cookie or the token query parameter, in that order
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware creates a middleware for session authentication
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				respondError(w, "Session required", http.StatusUnauthorized)
				return
			}

			userID, err := auth.Authenticate(token)
			if err != nil {
				if errors.Is(err, services.ErrUserNotFound) {
					ClearSessionCookie(w)
					respondError(w, "Session expired", http.StatusUnauthorized)
					return
				}
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireConfigured rejects requests while no backend is configured
func RequireConfigured(app StatusReporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !app.Status().Configured {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]any{
					"error":          "server not configured",
					"setup_required": true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminMiddleware requires the admin token as a Bearer token or X-Admin-Token header
func AdminMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdmin(r, adminToken) {
				respondError(w, "Admin token required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsAdmin reports whether r carries adminToken. An empty admin token disables
// admin access.
func IsAdmin(r *http.Request, adminToken string) bool {
	if adminToken == "" {
		return false
	}
	token := r.Header.Get("X-Admin-Token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1
}

// GetUserID extracts the user number from context
func GetUserID(ctx context.Context) int64 {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0
	}
	return userID
}

// WithUserID returns ctx carrying userID
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// SetSessionCookie stores token in the session cookie
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ValidateWebSocketToken validates a session token from a WebSocket query parameter
func ValidateWebSocketToken(token string, auth Authenticator) (int64, error) {
	if token == "" {
		return 0, fmt.Errorf("token required")
	}
	return auth.Authenticate(token)
}
