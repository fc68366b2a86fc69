package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neonmatch-backend/internal/config"
	"neonmatch-backend/internal/connection"
	"neonmatch-backend/internal/handlers"
	"neonmatch-backend/internal/kvstore"
	"neonmatch-backend/internal/repository"
	"neonmatch-backend/internal/services"
	"neonmatch-backend/internal/state"
	"neonmatch-backend/internal/supabase"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	configPath := os.Getenv("NEONMATCH_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Local storage for connection parameters
	kv, err := kvstore.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("Failed to open local storage")
	}

	// Optional direct database connection for admin operations
	var schema handlers.SchemaManager
	if cfg.Database.Enabled() {
		db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to ping database, admin schema operations may fail")
		} else {
			log.Info().Msg("Database connection established")
		}
		schema = repository.NewSchemaRepository(db)
	}

	// Initialize state and services
	store := state.New()
	wsHub := services.NewWSHub()
	store.OnChange(wsHub.OnChange)

	manager := connection.NewManager(kv, connection.Params{
		URL: cfg.Supabase.URL,
		Key: cfg.Supabase.Key,
	})
	app := services.NewApp(manager, store, services.SupabaseFactory(
		supabase.WithS3(supabase.S3Config{
			Region:    cfg.Supabase.S3Region,
			AccessKey: cfg.Supabase.S3AccessKey,
			SecretKey: cfg.Supabase.S3SecretKey,
			Endpoint:  cfg.Supabase.S3Endpoint,
		}),
	))
	if err := app.Start(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to start with saved connection")
	}

	generator, err := services.NewGenAIGenerator(context.Background(), cfg.Gemini.APIKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Gemini client, AI features use fallbacks")
	}
	gemini := services.NewGeminiService(generator, cfg.Gemini.Model)
	if !gemini.Enabled() {
		log.Warn().Msg("Gemini API key not set, AI features use fallbacks")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		App:            app,
		Store:          store,
		Users:          services.NewUserService(store, cfg.JWT.Secret),
		Matches:        services.NewMatchService(store),
		Chats:          services.NewChatService(store, gemini),
		Gemini:         gemini,
		Hub:            wsHub,
		Schema:         schema,
		AdminToken:     cfg.Admin.Token,
		PublicURL:      cfg.Server.PublicURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SecureCookies:  cfg.Server.SecureCookies,
		RequestLogger:  true,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Close WebSocket connections and the realtime feed
	wsHub.Close()
	app.Close()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
