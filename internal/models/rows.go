package models

import "strconv"

// UserRow is the wire shape of the users table
type UserRow struct {
	ID       int64   `json:"id,omitempty"`
	Name     string  `json:"name"`
	Bio      string  `json:"bio"`
	PhotoURL *string `json:"photo_url"`
	JoinedAt Millis  `json:"joined_at,omitempty"`
}

// MatchRow is the wire shape of the matches table
type MatchRow struct {
	FromID    int64       `json:"from_id"`
	ToID      int64       `json:"to_id"`
	Status    MatchStatus `json:"status"`
	Timestamp Millis      `json:"timestamp,omitempty"`
}

// MessageRow is the wire shape of the messages table
type MessageRow struct {
	ID            int64       `json:"id,omitempty"`
	SenderID      int64       `json:"sender_id"`
	ReceiverID    int64       `json:"receiver_id"`
	Text          string      `json:"text"`
	Type          MessageType `json:"type"`
	AttachmentURL *string     `json:"attachment_url"`
	Timestamp     Millis      `json:"timestamp,omitempty"`
}

// ToUser maps a users row to a User
func (r UserRow) ToUser() User {
	return User{
		ID:       r.ID,
		Name:     r.Name,
		Bio:      r.Bio,
		PhotoURL: r.PhotoURL,
		JoinedAt: r.JoinedAt,
	}
}

// ToMatchRequest maps a matches row to a MatchRequest
func (r MatchRow) ToMatchRequest() MatchRequest {
	return MatchRequest{
		FromID:    r.FromID,
		ToID:      r.ToID,
		Status:    r.Status,
		Timestamp: r.Timestamp,
	}
}

// ToMessage maps a messages row to a Message. Rows written before message
// types existed have no type and are treated as text.
func (r MessageRow) ToMessage() Message {
	t := r.Type
	if t == "" {
		t = MessageText
	}
	return Message{
		ID:            strconv.FormatInt(r.ID, 10),
		SenderID:      r.SenderID,
		ReceiverID:    r.ReceiverID,
		Text:          r.Text,
		Type:          t,
		AttachmentURL: r.AttachmentURL,
		Timestamp:     r.Timestamp,
	}
}
