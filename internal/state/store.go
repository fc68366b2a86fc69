// Package state holds the in-memory view of the venue: users, match requests
// and messages. It loads them from the backend, keeps them current from the
// realtime feed and applies optimistic updates for local actions.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/supabase"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Backend is the subset of the Supabase client the store uses
type Backend interface {
	Select(ctx context.Context, table string, out any, queries ...supabase.Query) error
	Insert(ctx context.Context, table string, row any, out any) error
	Update(ctx context.Context, table string, patch any, filters ...supabase.Filter) error
	Delete(ctx context.Context, table string, filters ...supabase.Filter) error
	Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error
	PublicURL(bucket, name string) string
	Subscribe(ctx context.Context, changes ...supabase.TableChange) (supabase.Subscription, error)
}

// Collections reported in a Change
const (
	CollectionAll      = "all"
	CollectionUsers    = models.UsersTable
	CollectionMatches  = models.MatchesTable
	CollectionMessages = models.MessagesTable
)

// Change describes a state update delivered to listeners
type Change struct {
	Collection string
	// Message is set for message changes
	Message *models.Message
	// FromID and ToID are set for match request changes
	FromID int64
	ToID   int64
}

// Store is the shared application state
type Store struct {
	mu       sync.RWMutex
	backend  Backend
	gen      uint64
	// seq counts confirmed local mutations; applied is the seq at which the
	// newest applied fetch started
	seq      uint64
	applied  uint64
	cancel   context.CancelFunc
	loading  bool
	users    []models.User
	requests []models.MatchRequest
	messages []models.Message
	pending  *pendingTable

	listenersMu sync.RWMutex
	listeners   []func(Change)

	now   func() time.Time
	newID func() string
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator replaces the generator for temporary ids and object names
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// New creates an unconnected store
func New(opts ...Option) *Store {
	s := &Store{
		pending: newPendingTable(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after every state change
func (s *Store) OnChange(fn func(Change)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(c Change) {
	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Connect replaces the backend, performs a full fetch and starts consuming
// the realtime feed. A nil backend disconnects the store; every action then
// fails with ErrNotConnected.
func (s *Store) Connect(ctx context.Context, b Backend) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	gen := s.gen
	s.backend = b
	s.users = nil
	s.requests = nil
	s.messages = nil
	s.pending = newPendingTable()
	s.mu.Unlock()

	if b == nil {
		s.notify(Change{Collection: CollectionAll})
		return nil
	}

	// the feed outlives the request that configured it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	if s.gen == gen {
		s.cancel = cancel
	}
	s.mu.Unlock()

	sub, err := b.Subscribe(runCtx,
		supabase.TableChange{Table: models.UsersTable, Event: supabase.EventAll},
		supabase.TableChange{Table: models.MatchesTable, Event: supabase.EventAll},
		supabase.TableChange{Table: models.MessagesTable, Event: supabase.EventInsert},
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to subscribe to realtime changes")
	} else {
		go s.dispatch(runCtx, gen, sub)
	}

	return s.refresh(ctx, gen)
}

// Close stops the realtime feed
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Connected reports whether a backend is configured
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend != nil
}

// Loading reports whether a full fetch is in progress
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Refresh re-fetches every collection from the backend
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()
	return s.refresh(ctx, gen)
}

func (s *Store) current() (Backend, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend, s.gen
}

func (s *Store) refresh(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if gen != s.gen || s.backend == nil {
		s.mu.Unlock()
		return nil
	}
	b := s.backend
	start := s.seq
	s.loading = true
	s.mu.Unlock()

	var errs []error

	var userRows []models.UserRow
	usersErr := b.Select(ctx, models.UsersTable, &userRows, supabase.Order("id", true))
	if usersErr != nil {
		errs = append(errs, usersErr)
	}

	var matchRows []models.MatchRow
	matchesErr := b.Select(ctx, models.MatchesTable, &matchRows)
	if matchesErr != nil {
		errs = append(errs, matchesErr)
	}

	var messageRows []models.MessageRow
	messagesErr := b.Select(ctx, models.MessagesTable, &messageRows, supabase.Order("timestamp", true))
	if messagesErr != nil {
		errs = append(errs, messagesErr)
	}

	s.mu.Lock()
	// a fetch that started before the newest applied one is stale
	if gen == s.gen && start >= s.applied {
		s.applied = start
		s.pending.prune(start)
		if usersErr == nil {
			users := make([]models.User, 0, len(userRows))
			for _, r := range userRows {
				users = append(users, r.ToUser())
			}
			s.users = s.pending.applyUsers(users)
		}
		if matchesErr == nil {
			requests := make([]models.MatchRequest, 0, len(matchRows))
			for _, r := range matchRows {
				requests = append(requests, r.ToMatchRequest())
			}
			s.requests = s.pending.applyRequests(requests)
		}
		if messagesErr == nil {
			messages := make([]models.Message, 0, len(messageRows))
			for _, r := range messageRows {
				messages = append(messages, r.ToMessage())
			}
			s.messages = s.pending.applyMessages(messages)
		}
	}
	if gen == s.gen {
		s.loading = false
	}
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionAll})

	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("Failed to fetch state")
		return fmt.Errorf("failed to fetch state: %w", err)
	}

	log.Debug().
		Int("users", len(userRows)).
		Int("matches", len(matchRows)).
		Int("messages", len(messageRows)).
		Msg("State fetched")

	return nil
}

// dispatch is the single consumer of the realtime feed
func (s *Store) dispatch(ctx context.Context, gen uint64, sub supabase.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				log.Warn().Msg("Realtime feed ended")
				return
			}
			s.handleEvent(ctx, gen, ev)
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, gen uint64, ev supabase.ChangeEvent) {
	switch ev.Table {
	case models.UsersTable, models.MatchesTable:
		if err := s.refresh(ctx, gen); err != nil {
			log.Error().Err(err).Str("table", ev.Table).Msg("Failed to refresh after change")
		}
	case models.MessagesTable:
		if ev.Type != supabase.EventInsert {
			return
		}
		var row models.MessageRow
		if err := json.Unmarshal(ev.New, &row); err != nil {
			log.Error().Err(err).Msg("Failed to decode message change")
			return
		}
		s.appendRemoteMessage(gen, row.ToMessage())
	}
}

// appendRemoteMessage adds a pushed message unless one with the same id is
// already present
func (s *Store) appendRemoteMessage(gen uint64, msg models.Message) {
	s.mu.Lock()
	if gen != s.gen || s.indexOfMessage(msg.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.pending.add(remoteMessageKey(msg.ID), &pendingOp{kind: opMessage, message: msg, settled: s.bump()})
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionMessages, Message: &msg})
}

// bump records a confirmed mutation. Caller holds s.mu.
func (s *Store) bump() uint64 {
	s.seq++
	return s.seq
}

// Caller holds s.mu
func (s *Store) indexOfMessage(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Caller holds s.mu
func (s *Store) indexOfRequest(fromID, toID int64) int {
	for i := range s.requests {
		if s.requests[i].FromID == fromID && s.requests[i].ToID == toID {
			return i
		}
	}
	return -1
}

// Caller holds s.mu
func (s *Store) findUser(id int64) (models.User, bool) {
	i := sort.Search(len(s.users), func(i int) bool { return s.users[i].ID >= id })
	if i < len(s.users) && s.users[i].ID == id {
		return s.users[i], true
	}
	// users appended out of order by a concurrent registration
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}
