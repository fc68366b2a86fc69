package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventType is the kind of row change
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventAll subscribes to every kind of change
	EventAll EventType = "*"
)

// TableChange selects changes on one table of the public schema
type TableChange struct {
	Table string
	Event EventType
}

// ChangeEvent is one row change pushed by the realtime service
type ChangeEvent struct {
	Table           string
	Type            EventType
	New             json.RawMessage
	Old             json.RawMessage
	CommitTimestamp string
}

// Subscription delivers change events until closed. Events is closed when the
// connection ends; a subscription cannot be restarted.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

const channelTopic = "realtime:public_db_changes"

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type postgresChangesFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type joinPayload struct {
	Config struct {
		Broadcast struct {
			Self bool `json:"self"`
		} `json:"broadcast"`
		Presence struct {
			Key string `json:"key"`
		} `json:"presence"`
		PostgresChanges []postgresChangesFilter `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token"`
}

type changePayload struct {
	Data struct {
		Table           string          `json:"table"`
		Type            EventType       `json:"type"`
		EventType       EventType       `json:"eventType"`
		Record          json.RawMessage `json:"record"`
		New             json.RawMessage `json:"new"`
		OldRecord       json.RawMessage `json:"old_record"`
		Old             json.RawMessage `json:"old"`
		CommitTimestamp string          `json:"commit_timestamp"`
	} `json:"data"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// Subscribe opens the realtime websocket and joins a channel receiving the
// requested table changes
func (c *Client) Subscribe(ctx context.Context, changes ...TableChange) (Subscription, error) {
	if c == nil {
		return closedSubscription(), nil
	}

	u := c.baseURL.JoinPath("realtime", "v1", "websocket")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("apikey", c.key)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime: %w", err)
	}

	sub := &realtimeSubscription{
		conn:   conn,
		events: make(chan ChangeEvent, 64),
		done:   make(chan struct{}),
	}

	var join joinPayload
	join.AccessToken = c.key
	for _, ch := range changes {
		event := ch.Event
		if event == "" {
			event = EventAll
		}
		join.Config.PostgresChanges = append(join.Config.PostgresChanges, postgresChangesFilter{
			Event:  string(event),
			Schema: "public",
			Table:  ch.Table,
		})
	}

	if err := sub.send(channelTopic, "phx_join", join, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join realtime channel: %w", err)
	}

	go sub.readLoop()
	go sub.heartbeatLoop(c.heartbeat)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	log.Info().Str("topic", channelTopic).Int("tables", len(changes)).Msg("Realtime subscription started")

	return sub, nil
}

type realtimeSubscription struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	ref     atomic.Int64
	joinRef string

	events    chan ChangeEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *realtimeSubscription) Events() <-chan ChangeEvent {
	return s.events
}

func (s *realtimeSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *realtimeSubscription) send(topic, event string, payload any, isJoin bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ref := strconv.FormatInt(s.ref.Add(1), 10)
	msg := phxMessage{
		Topic:   topic,
		Event:   event,
		Payload: data,
		Ref:     &ref,
	}
	if isJoin {
		s.joinRef = ref
	}
	if s.joinRef != "" && topic == channelTopic {
		jr := s.joinRef
		msg.JoinRef = &jr
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(msg)
}

func (s *realtimeSubscription) heartbeatLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.send("phoenix", "heartbeat", struct{}{}, false); err != nil {
				log.Error().Err(err).Msg("Realtime heartbeat failed")
				s.Close()
				return
			}
		}
	}
}

func (s *realtimeSubscription) readLoop() {
	defer close(s.events)
	defer s.Close()

	for {
		var msg phxMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				log.Error().Err(err).Msg("Realtime connection lost")
			}
			return
		}

		switch msg.Event {
		case "postgres_changes":
			ev, ok := decodeChange(msg.Payload)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case "phx_reply":
			var reply replyPayload
			if err := json.Unmarshal(msg.Payload, &reply); err == nil && reply.Status != "ok" {
				log.Error().
					Str("topic", msg.Topic).
					Str("status", reply.Status).
					RawJSON("response", nonEmpty(reply.Response)).
					Msg("Realtime request rejected")
			}
		case "phx_error", "phx_close":
			log.Warn().Str("topic", msg.Topic).Str("event", msg.Event).Msg("Realtime channel closed")
			return
		}
	}
}

func decodeChange(raw json.RawMessage) (ChangeEvent, bool) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Msg("Failed to decode realtime change")
		return ChangeEvent{}, false
	}

	ev := ChangeEvent{
		Table:           p.Data.Table,
		Type:            p.Data.Type,
		New:             p.Data.Record,
		Old:             p.Data.OldRecord,
		CommitTimestamp: p.Data.CommitTimestamp,
	}
	if ev.Type == "" {
		ev.Type = p.Data.EventType
	}
	if len(ev.New) == 0 {
		ev.New = p.Data.New
	}
	if len(ev.Old) == 0 {
		ev.Old = p.Data.Old
	}
	if ev.Table == "" || ev.Type == "" {
		return ChangeEvent{}, false
	}
	return ev, true
}

func nonEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

type closedSub struct {
	events chan ChangeEvent
}

func closedSubscription() Subscription {
	ch := make(chan ChangeEvent)
	close(ch)
	return &closedSub{events: ch}
}

func (s *closedSub) Events() <-chan ChangeEvent { return s.events }
func (s *closedSub) Close() error               { return nil }
