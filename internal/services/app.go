package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"neonmatch-backend/internal/connection"
	"neonmatch-backend/internal/state"
	"neonmatch-backend/internal/supabase"

	"github.com/rs/zerolog/log"
)

// ErrInvalidParams is returned when connection parameters cannot be used
var ErrInvalidParams = errors.New("invalid supabase url or key")

// BackendFactory builds a backend for connection parameters. It returns nil
// when the parameters are unusable.
type BackendFactory func(p connection.Params) state.Backend

// SupabaseFactory returns a factory building Supabase clients with opts
func SupabaseFactory(opts ...supabase.Option) BackendFactory {
	return func(p connection.Params) state.Backend {
		c := supabase.New(p.URL, p.Key, opts...)
		if c == nil {
			return nil
		}
		return c
	}
}

// Status reports whether the server is ready to serve guests
type Status struct {
	Configured bool   `json:"configured"`
	Loading    bool   `json:"loading"`
	URL        string `json:"url,omitempty"`
}

// App owns the connection lifecycle: it resolves parameters, builds the
// backend client and (re)connects the shared store
type App struct {
	mu      sync.Mutex
	conns   *connection.Manager
	store   *state.Store
	factory BackendFactory
	params  connection.Params
	ready   bool
}

// NewApp creates a new app
func NewApp(conns *connection.Manager, store *state.Store, factory BackendFactory) *App {
	return &App{
		conns:   conns,
		store:   store,
		factory: factory,
	}
}

// Start connects with saved or default parameters, if any
func (a *App) Start(ctx context.Context) error {
	p, _, ok := a.conns.Resolve(nil)
	if !ok {
		log.Warn().Msg("No Supabase connection configured, waiting for setup")
		return nil
	}
	return a.connect(ctx, p)
}

// Configure validates, persists and connects with p
func (a *App) Configure(ctx context.Context, p connection.Params) error {
	if !p.Valid() {
		return ErrInvalidParams
	}
	if err := a.conns.Save(p); err != nil {
		return err
	}
	return a.connect(ctx, p)
}

// HandleMagicLink configures the app from magic-link query values. It
// reports whether the query carried connection parameters.
func (a *App) HandleMagicLink(ctx context.Context, q url.Values) (bool, error) {
	p, ok := connection.FromQuery(q)
	if !ok {
		return false, nil
	}
	return true, a.Configure(ctx, p)
}

func (a *App) connect(ctx context.Context, p connection.Params) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	backend := a.factory(p)
	if backend == nil {
		return ErrInvalidParams
	}

	a.params = p
	a.ready = true

	if err := a.store.Connect(ctx, backend); err != nil {
		// the client stays configured; the realtime feed retries on the next change
		log.Error().Err(err).Str("url", p.URL).Msg("Initial fetch failed")
		return fmt.Errorf("failed to load data: %w", err)
	}

	log.Info().Str("url", p.URL).Msg("Connected to Supabase")
	return nil
}

// Params returns the active connection parameters
func (a *App) Params() (connection.Params, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.params, a.ready
}

// Status returns the current status
func (a *App) Status() Status {
	a.mu.Lock()
	s := Status{Configured: a.ready, URL: a.params.URL}
	a.mu.Unlock()
	s.Loading = a.store.Loading()
	return s
}

// Close stops the realtime feed
func (a *App) Close() {
	a.store.Close()
}
