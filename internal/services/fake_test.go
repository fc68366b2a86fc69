package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/state"
	"neonmatch-backend/internal/supabase"
)

// memBackend is a minimal in-memory backend for service tests
type memBackend struct {
	mu       sync.Mutex
	users    []models.UserRow
	matches  []models.MatchRow
	messages []models.MessageRow
	nextUser int64
	nextMsg  int64
	clock    int64
}

func newMemBackend() *memBackend {
	return &memBackend{nextUser: 1, nextMsg: 1, clock: 1_000}
}

func copyJSON(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *memBackend) Select(ctx context.Context, table string, out any, queries ...supabase.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch table {
	case models.UsersTable:
		return copyJSON(m.users, out)
	case models.MatchesTable:
		return copyJSON(m.matches, out)
	default:
		return copyJSON(m.messages, out)
	}
}

func (m *memBackend) Insert(ctx context.Context, table string, row any, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock++
	var inserted any
	switch table {
	case models.UsersTable:
		var r models.UserRow
		if err := copyJSON(row, &r); err != nil {
			return err
		}
		r.ID = m.nextUser
		m.nextUser++
		r.JoinedAt = models.Millis(m.clock)
		m.users = append(m.users, r)
		inserted = r
	case models.MatchesTable:
		var r models.MatchRow
		if err := copyJSON(row, &r); err != nil {
			return err
		}
		r.Timestamp = models.Millis(m.clock)
		m.matches = append(m.matches, r)
		inserted = r
	default:
		var r models.MessageRow
		if err := copyJSON(row, &r); err != nil {
			return err
		}
		r.ID = m.nextMsg
		m.nextMsg++
		r.Timestamp = models.Millis(m.clock)
		m.messages = append(m.messages, r)
		inserted = r
	}
	if out == nil {
		return nil
	}
	return copyJSON(inserted, out)
}

func (m *memBackend) Update(ctx context.Context, table string, patch any, filters ...supabase.Filter) error {
	var p struct {
		Status models.MatchStatus `json:"status"`
	}
	if err := copyJSON(patch, &p); err != nil {
		return err
	}
	var from, to string
	for _, f := range filters {
		switch f.Column {
		case "from_id":
			from = f.Value
		case "to_id":
			to = f.Value
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.matches {
		r := &m.matches[i]
		if jsonInt(r.FromID) == from && jsonInt(r.ToID) == to {
			r.Status = p.Status
		}
	}
	return nil
}

func jsonInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func (m *memBackend) Delete(ctx context.Context, table string, filters ...supabase.Filter) error {
	return errors.New("not supported")
}

func (m *memBackend) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error {
	_, err := io.Copy(io.Discard, body)
	return err
}

func (m *memBackend) PublicURL(bucket, name string) string {
	return "https://cdn.test/" + bucket + "/" + name
}

func (m *memBackend) Subscribe(ctx context.Context, changes ...supabase.TableChange) (supabase.Subscription, error) {
	return nil, errors.New("realtime disabled in tests")
}

func (m *memBackend) addUser(id int64, name, bio string) {
	m.users = append(m.users, models.UserRow{ID: id, Name: name, Bio: bio})
	if id >= m.nextUser {
		m.nextUser = id + 1
	}
}

func connectedStore(t *testing.T, b *memBackend) *state.Store {
	t.Helper()
	s := state.New()
	if err := s.Connect(context.Background(), b); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

type fakeGenerator struct {
	text    string
	err     error
	prompts []string
}

func (g *fakeGenerator) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.text, g.err
}
