package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/supabase"
)

// memBackend is an in-memory backend for handler tests
type memBackend struct {
	mu       sync.Mutex
	users    []models.UserRow
	matches  []models.MatchRow
	messages []models.MessageRow
	uploads  []string
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
		if strconv.FormatInt(r.FromID, 10) == from && strconv.FormatInt(r.ToID, 10) == to {
			r.Status = p.Status
		}
	}
	return nil
}

func (m *memBackend) Delete(ctx context.Context, table string, filters ...supabase.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch table {
	case models.UsersTable:
		m.users = nil
	case models.MatchesTable:
		m.matches = nil
	case models.MessagesTable:
		m.messages = nil
	}
	return nil
}

func (m *memBackend) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, bucket+"/"+name)
	return nil
}

func (m *memBackend) PublicURL(bucket, name string) string {
	return "https://cdn.test/" + bucket + "/" + name
}

func (m *memBackend) Subscribe(ctx context.Context, changes ...supabase.TableChange) (supabase.Subscription, error) {
	return nil, errors.New("realtime disabled in tests")
}
