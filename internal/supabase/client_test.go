package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type row struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

func TestNewRejectsBadParams(t *testing.T) {
	tests := []struct {
		url, key string
	}{
		{"", "key"},
		{"https://x.supabase.co", ""},
		{"x.supabase.co", "key"},
		{"ftp://x.supabase.co", "key"},
	}
	for _, tt := range tests {
		if c := New(tt.url, tt.key); c != nil {
			t.Errorf("New(%q, %q) should be nil", tt.url, tt.key)
		}
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var c *Client
	ctx := context.Background()

	var rows []row
	if err := c.Select(ctx, "users", &rows); err != nil || rows != nil {
		t.Fatalf("select: %v %v", err, rows)
	}
	if err := c.Insert(ctx, "users", row{Name: "x"}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Update(ctx, "users", map[string]string{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "users"); err != nil {
		t.Fatal(err)
	}
	if err := c.Upload(ctx, "b", "n", "", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if c.PublicURL("b", "n") != "" {
		t.Fatal("nil client returned a public url")
	}

	sub, err := c.Subscribe(ctx, TableChange{Table: "users"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("nil client subscription should be closed")
	}
}

func TestSelectBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/users" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer anon" {
			t.Errorf("missing auth headers")
		}
		q := r.URL.Query()
		if q.Get("select") != "*" || q.Get("order") != "id.asc" || q.Get("name") != "eq.Alex" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"id":1,"name":"Alex"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "anon")
	var rows []row
	if err := c.Select(context.Background(), "users", &rows, Order("id", true), Eq("name", "Alex")); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != 1 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestInsertReturnsRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("prefer = %s", r.Header.Get("Prefer"))
		}
		var body []row
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) != 1 {
			t.Errorf("body: %v %v", err, body)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":39,"name":"` + body[0].Name + `"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "anon")
	var out row
	if err := c.Insert(context.Background(), "users", row{Name: "Sam"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != 39 || out.Name != "Sam" {
		t.Fatalf("out = %+v", out)
	}
}

func TestUpdateAndDeleteRequireFilters(t *testing.T) {
	c := New("https://x.supabase.co", "anon")
	ctx := context.Background()
	if err := c.Update(ctx, "matches", map[string]string{"status": "accepted"}); !errors.Is(err, ErrMissingFilter) {
		t.Fatalf("update err = %v", err)
	}
	if err := c.Delete(ctx, "matches"); !errors.Is(err, ErrMissingFilter) {
		t.Fatalf("delete err = %v", err)
	}
}

func TestUpdateSendsFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("from_id") != "eq.12" || q.Get("to_id") != "eq.39" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"status":"accepted"}` {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "anon")
	err := c.Update(context.Background(), "matches", map[string]string{"status": "accepted"},
		Eq("from_id", int64(12)), Eq("to_id", int64(39)))
	if err != nil {
		t.Fatal(err)
	}
}

func TestAPIErrorIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "anon")
	err := c.Insert(context.Background(), "matches", map[string]int{"from_id": 1}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "23505" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestUploadAndPublicURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/chat-images/123_abc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "image/png" {
			t.Errorf("content type = %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "png-bytes" {
			t.Errorf("body = %s", body)
		}
		w.Write([]byte(`{"Key":"chat-images/123_abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "anon")
	if err := c.Upload(context.Background(), "chat-images", "123_abc", "image/png", strings.NewReader("png-bytes")); err != nil {
		t.Fatal(err)
	}
	want := srv.URL + "/storage/v1/object/public/chat-images/123_abc"
	if got := c.PublicURL("chat-images", "123_abc"); got != want {
		t.Fatalf("public url = %s, want %s", got, want)
	}
}

func TestSubscribeDeliversChanges(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joined := make(chan joinPayload, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/v1/websocket" || r.URL.Query().Get("apikey") != "anon" {
			t.Errorf("unexpected realtime url %s", r.URL)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read join: %v", err)
			return
		}
		var join joinPayload
		json.Unmarshal(msg.Payload, &join)
		joined <- join

		conn.WriteJSON(map[string]any{
			"topic":   channelTopic,
			"event":   "phx_reply",
			"payload": map[string]any{"status": "ok", "response": map[string]any{}},
			"ref":     msg.Ref,
		})
		conn.WriteJSON(map[string]any{
			"topic": channelTopic,
			"event": "postgres_changes",
			"payload": map[string]any{
				"ids": []int{1},
				"data": map[string]any{
					"schema": "public",
					"table":  "messages",
					"type":   "INSERT",
					"record": map[string]any{"id": 5, "sender_id": 12, "receiver_id": 39, "text": "hola"},
				},
			},
			"ref": nil,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "anon", WithHeartbeat(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := c.Subscribe(ctx,
		TableChange{Table: "users"},
		TableChange{Table: "messages", Event: EventInsert},
	)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	join := <-joined
	if len(join.Config.PostgresChanges) != 2 || join.Config.PostgresChanges[0].Event != "*" ||
		join.Config.PostgresChanges[1].Event != "INSERT" {
		t.Fatalf("join config = %+v", join.Config.PostgresChanges)
	}

	select {
	case ev := <-sub.Events():
		if ev.Table != "messages" || ev.Type != EventInsert || !strings.Contains(string(ev.New), `"hola"`) {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	// the server handler returned, so the stream must end
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("unexpected extra event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed after disconnect")
	}
}
