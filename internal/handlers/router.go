package handlers

import (
	"net/http"

	"neonmatch-backend/internal/middleware"
	"neonmatch-backend/internal/services"
	"neonmatch-backend/internal/state"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RouterConfig holds everything the HTTP routes need
type RouterConfig struct {
	App            *services.App
	Store          *state.Store
	Users          *services.UserService
	Matches        *services.MatchService
	Chats          *services.ChatService
	Gemini         *services.GeminiService
	Hub            *services.WSHub
	Schema         SchemaManager
	AdminToken     string
	PublicURL      string
	AllowedOrigins []string
	SecureCookies  bool
	// RequestLogger is disabled in tests
	RequestLogger bool
}

// NewRouter builds the HTTP router
func NewRouter(cfg RouterConfig) http.Handler {
	setupHandler := NewSetupHandler(cfg.App, cfg.AdminToken)
	userHandler := NewUserHandler(cfg.Users, cfg.Gemini, cfg.SecureCookies)
	matchHandler := NewMatchHandler(cfg.Matches)
	chatHandler := NewChatHandler(cfg.Chats)
	inviteHandler := NewInviteHandler(cfg.App, cfg.PublicURL)
	adminHandler := NewAdminHandler(cfg.Store, cfg.Schema)
	wsHandler := NewWebSocketHandler(cfg.Hub, cfg.Users)

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if cfg.RequestLogger {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Admin-Token"},
		AllowCredentials: true,
	}).Handler)

	// Magic link onboarding
	r.Get("/", setupHandler.MagicLink)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", setupHandler.Status)
		r.Post("/setup", setupHandler.Setup)
		r.Delete("/session", userHandler.Logout)
		r.Post("/profile/bio", userHandler.GenerateBio)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireConfigured(cfg.App))
			r.Post("/register", userHandler.Register)
			r.Get("/invite", inviteHandler.Invite)
			r.Get("/invite/qr.png", inviteHandler.QRCode)

			// Session routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(cfg.Users))
				r.Get("/me", userHandler.Me)
				r.Get("/dashboard", matchHandler.Dashboard)
				r.Post("/likes", matchHandler.SendLike)
				r.Post("/likes/{from_id}", matchHandler.Respond)
				r.Get("/chats", matchHandler.Chats)
				r.Get("/chats/{partner_id}", chatHandler.GetConversation)
				r.Post("/chats/{partner_id}/messages", chatHandler.SendMessage)
				r.Post("/chats/{partner_id}/wingman", chatHandler.Wingman)
			})
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminMiddleware(cfg.AdminToken))
			r.Post("/admin/schema", adminHandler.Schema)
			r.With(middleware.RequireConfigured(cfg.App)).Post("/admin/reset", adminHandler.Reset)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}
