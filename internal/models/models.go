package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Table and bucket names on the backend
const (
	UsersTable    = "users"
	MatchesTable  = "matches"
	MessagesTable = "messages"
	ChatBucket    = "chat-images"
)

// MatchStatus is the lifecycle state of a match request
type MatchStatus string

const (
	StatusPending  MatchStatus = "pending"
	StatusAccepted MatchStatus = "accepted"
	StatusRejected MatchStatus = "rejected"
)

// MessageType is the kind of chat message
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageImage      MessageType = "image"
	MessageDedication MessageType = "dedication"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageDedication:
		return true
	}
	return false
}

// User represents a registered guest. The ID is the number shown at the venue.
type User struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Bio      string  `json:"bio"`
	PhotoURL *string `json:"photo_url,omitempty"`
	JoinedAt Millis  `json:"joined_at"`
}

// MatchRequest represents a directed like from one user to another
type MatchRequest struct {
	FromID    int64       `json:"from_id"`
	ToID      int64       `json:"to_id"`
	Status    MatchStatus `json:"status"`
	Timestamp Millis      `json:"timestamp"`
}

// Involves reports whether the request links a and b in either direction
func (m MatchRequest) Involves(a, b int64) bool {
	return (m.FromID == a && m.ToID == b) || (m.FromID == b && m.ToID == a)
}

// PartnerOf returns the other side of the request for userID
func (m MatchRequest) PartnerOf(userID int64) int64 {
	if m.FromID == userID {
		return m.ToID
	}
	return m.FromID
}

// Message represents a chat message between two matched users
type Message struct {
	ID            string      `json:"id"`
	SenderID      int64       `json:"sender_id"`
	ReceiverID    int64       `json:"receiver_id"`
	Text          string      `json:"text"`
	Type          MessageType `json:"type"`
	AttachmentURL *string     `json:"attachment_url,omitempty"`
	Timestamp     Millis      `json:"timestamp"`
	Pending       bool        `json:"pending,omitempty"`
}

// Millis is a unix timestamp in milliseconds. It decodes from a JSON number or
// from an RFC 3339 string, since timestamp columns may be bigint or timestamptz.
type Millis int64

// Now returns the current time as Millis
func Now() Millis {
	return Millis(time.Now().UnixMilli())
}

// Time converts m to a time.Time
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		*m = Millis(t.UnixMilli())
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	*m = Millis(int64(f))
	return nil
}

// Postgres emits timestamptz without the "T" separator through some paths
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05.999999-07",
		"2006-01-02 15:04:05.999999-07:00",
	}
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
