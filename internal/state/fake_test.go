package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/supabase"
)

var errBackendDown = errors.New("backend down")

// fakeBackend is an in-memory stand-in for the Supabase client
type fakeBackend struct {
	mu        sync.Mutex
	users     []models.UserRow
	matches   []models.MatchRow
	messages  []models.MessageRow
	nextMsgID int64
	nextUser  int64
	clock     int64

	calls      map[string]int
	insertErr  map[string]error
	updateErr  error
	uploadErr  error
	uploads    map[string][]byte
	insertHook func(table string)
	// selectHook runs after a select has taken its snapshot
	selectHook func(table string)

	events chan supabase.ChangeEvent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextMsgID: 100,
		nextUser:  1,
		clock:     1_000,
		calls:     make(map[string]int),
		insertErr: make(map[string]error),
		uploads:   make(map[string][]byte),
		events:    make(chan supabase.ChangeEvent, 16),
	}
}

func (f *fakeBackend) addUser(id int64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, models.UserRow{ID: id, Name: name, Bio: "bio " + name})
	if id >= f.nextUser {
		f.nextUser = id + 1
	}
}

func (f *fakeBackend) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeBackend) Select(ctx context.Context, table string, out any, queries ...supabase.Query) error {
	f.mu.Lock()
	f.calls["select:"+table]++
	var err error
	switch table {
	case models.UsersTable:
		err = remarshal(f.users, out)
	case models.MatchesTable:
		err = remarshal(f.matches, out)
	case models.MessagesTable:
		err = remarshal(f.messages, out)
	default:
		err = fmt.Errorf("unknown table %s", table)
	}
	hook := f.selectHook
	f.mu.Unlock()

	if hook != nil {
		hook(table)
	}
	return err
}

func (f *fakeBackend) Insert(ctx context.Context, table string, row any, out any) error {
	f.mu.Lock()
	f.calls["insert:"+table]++
	err := f.insertErr[table]
	hook := f.insertHook
	f.mu.Unlock()

	if hook != nil {
		hook(table)
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock++

	var inserted any
	switch table {
	case models.UsersTable:
		var r models.UserRow
		if err := remarshal(row, &r); err != nil {
			return err
		}
		r.ID = f.nextUser
		f.nextUser++
		r.JoinedAt = models.Millis(f.clock)
		f.users = append(f.users, r)
		inserted = r
	case models.MatchesTable:
		var r models.MatchRow
		if err := remarshal(row, &r); err != nil {
			return err
		}
		r.Timestamp = models.Millis(f.clock)
		f.matches = append(f.matches, r)
		inserted = r
	case models.MessagesTable:
		var r models.MessageRow
		if err := remarshal(row, &r); err != nil {
			return err
		}
		r.ID = f.nextMsgID
		f.nextMsgID++
		r.Timestamp = models.Millis(f.clock)
		f.messages = append(f.messages, r)
		inserted = r
	default:
		return fmt.Errorf("unknown table %s", table)
	}

	if out != nil {
		return remarshal(inserted, out)
	}
	return nil
}

func filterValue(filters []supabase.Filter, column string) (int64, bool) {
	for _, fl := range filters {
		if fl.Column == column && fl.Op == "eq" {
			n, err := strconv.ParseInt(fl.Value, 10, 64)
			return n, err == nil
		}
	}
	return 0, false
}

func (f *fakeBackend) Update(ctx context.Context, table string, patch any, filters ...supabase.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update:"+table]++
	if f.updateErr != nil {
		return f.updateErr
	}
	if table != models.MatchesTable {
		return fmt.Errorf("unsupported update on %s", table)
	}

	var p struct {
		Status models.MatchStatus `json:"status"`
	}
	if err := remarshal(patch, &p); err != nil {
		return err
	}
	from, okFrom := filterValue(filters, "from_id")
	to, okTo := filterValue(filters, "to_id")
	if !okFrom || !okTo {
		return errors.New("missing filters")
	}
	for i := range f.matches {
		if f.matches[i].FromID == from && f.matches[i].ToID == to {
			f.matches[i].Status = p.Status
		}
	}
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, table string, filters ...supabase.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete:"+table]++
	if len(filters) == 0 {
		return supabase.ErrMissingFilter
	}
	switch table {
	case models.UsersTable:
		f.users = nil
	case models.MatchesTable:
		f.matches = nil
	case models.MessagesTable:
		f.messages = nil
	}
	return nil
}

func (f *fakeBackend) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["upload:"+bucket]++
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads[bucket+"/"+name] = data
	return nil
}

func (f *fakeBackend) PublicURL(bucket, name string) string {
	return "https://cdn.test/" + bucket + "/" + name
}

func (f *fakeBackend) Subscribe(ctx context.Context, changes ...supabase.TableChange) (supabase.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["subscribe"]++
	return &fakeSubscription{events: f.events}, nil
}

type fakeSubscription struct {
	events chan supabase.ChangeEvent
}

func (s *fakeSubscription) Events() <-chan supabase.ChangeEvent { return s.events }
func (s *fakeSubscription) Close() error                        { return nil }
