package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/supabase"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNotConnected is returned when no backend is configured or the acting user is unknown
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidProfile is returned by Register when a field is missing
	ErrInvalidProfile = errors.New("name, bio and photo are required")
	// ErrRequestNotFound is returned when responding to a request that does not exist
	ErrRequestNotFound = errors.New("match request not found")
	// ErrNotPending is returned when responding to an already answered request
	ErrNotPending = errors.New("match request is not pending")
	// ErrEmptyMessage is returned when a message has no text and no image
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidMessageType is returned for an unknown message type
	ErrInvalidMessageType = errors.New("invalid message type")
)

// Messages shown to the user after a like
const (
	MsgConnectionError = "Error de conexión"
	MsgSelfLike        = "¡No puedes votarte a ti mismo!"
	MsgUnknownUser     = "Ese número no existe todavía."
	MsgAlreadyLiked    = "Ya habéis interactuado."
	msgLiked           = "¡Has votado al Número %d!"
)

// LikeResult is the outcome of SendLike
type LikeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Attachment is an image sent with a message
type Attachment struct {
	ContentType string
	Body        io.Reader
}

// Register creates a user on the backend and adds it locally
func (s *Store) Register(ctx context.Context, name, bio string, photoURL *string) (*models.User, error) {
	b, gen := s.current()
	if b == nil {
		return nil, ErrNotConnected
	}

	name = strings.TrimSpace(name)
	bio = strings.TrimSpace(bio)
	if name == "" || bio == "" || photoURL == nil || *photoURL == "" {
		return nil, ErrInvalidProfile
	}

	var row models.UserRow
	if err := b.Insert(ctx, models.UsersTable, models.UserRow{
		Name:     name,
		Bio:      bio,
		PhotoURL: photoURL,
	}, &row); err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	user := row.ToUser()

	s.mu.Lock()
	if gen == s.gen {
		if _, exists := s.findUser(user.ID); !exists {
			s.users = append(s.users, user)
		}
		s.pending.add(userKey(user.ID), &pendingOp{kind: opUser, user: user, settled: s.bump()})
	}
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionUsers})

	log.Info().Int64("user_id", user.ID).Str("name", user.Name).Msg("User registered")

	return &user, nil
}

// SendLike records a like from meID to targetID. It never returns an error:
// the result carries the message to show.
func (s *Store) SendLike(ctx context.Context, meID, targetID int64) LikeResult {
	b, gen := s.current()

	s.mu.Lock()
	if b == nil {
		s.mu.Unlock()
		return LikeResult{Message: MsgConnectionError}
	}
	if _, ok := s.findUser(meID); !ok {
		s.mu.Unlock()
		return LikeResult{Message: MsgConnectionError}
	}
	if targetID == meID {
		s.mu.Unlock()
		return LikeResult{Message: MsgSelfLike}
	}
	if _, ok := s.findUser(targetID); !ok {
		s.mu.Unlock()
		return LikeResult{Message: MsgUnknownUser}
	}
	for _, r := range s.requests {
		if r.Involves(meID, targetID) {
			s.mu.Unlock()
			return LikeResult{Message: MsgAlreadyLiked}
		}
	}

	req := models.MatchRequest{
		FromID:    meID,
		ToID:      targetID,
		Status:    models.StatusPending,
		Timestamp: models.Millis(s.now().UnixMilli()),
	}
	key := likeKey(meID, targetID)
	s.requests = append(s.requests, req)
	s.pending.add(key, &pendingOp{kind: opLike, request: req})
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionMatches, FromID: meID, ToID: targetID})

	err := b.Insert(ctx, models.MatchesTable, models.MatchRow{
		FromID: meID,
		ToID:   targetID,
		Status: models.StatusPending,
	}, nil)

	s.mu.Lock()
	if gen == s.gen {
		if err != nil {
			s.pending.drop(key)
			if i := s.indexOfRequest(meID, targetID); i >= 0 && s.requests[i].Status == models.StatusPending {
				s.requests = append(s.requests[:i], s.requests[i+1:]...)
			}
		} else {
			s.pending.settle(key, s.bump())
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.notify(Change{Collection: CollectionMatches, FromID: meID, ToID: targetID})
		log.Error().Err(err).Int64("from_id", meID).Int64("to_id", targetID).Msg("Failed to send like")
		return LikeResult{Message: MsgConnectionError}
	}

	log.Info().Int64("from_id", meID).Int64("to_id", targetID).Msg("Like sent")

	return LikeResult{Success: true, Message: fmt.Sprintf(msgLiked, targetID)}
}

// RespondToLike accepts or rejects the pending request fromID sent to meID.
// The status changes locally first and is rolled back if the update fails.
func (s *Store) RespondToLike(ctx context.Context, meID, fromID int64, accept bool) error {
	b, gen := s.current()
	status := models.StatusRejected
	if accept {
		status = models.StatusAccepted
	}

	s.mu.Lock()
	if b == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := s.findUser(meID); !ok {
		s.mu.Unlock()
		return ErrNotConnected
	}
	i := s.indexOfRequest(fromID, meID)
	if i < 0 {
		s.mu.Unlock()
		return ErrRequestNotFound
	}
	if s.requests[i].Status != models.StatusPending {
		s.mu.Unlock()
		return ErrNotPending
	}
	s.requests[i].Status = status
	key := respondKey(fromID, meID)
	s.pending.add(key, &pendingOp{kind: opRespond, request: s.requests[i]})
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionMatches, FromID: fromID, ToID: meID})

	err := b.Update(ctx, models.MatchesTable,
		map[string]models.MatchStatus{"status": status},
		supabase.Eq("from_id", fromID),
		supabase.Eq("to_id", meID),
	)

	s.mu.Lock()
	if gen == s.gen {
		if err != nil {
			s.pending.drop(key)
			if i := s.indexOfRequest(fromID, meID); i >= 0 && s.requests[i].Status == status {
				s.requests[i].Status = models.StatusPending
			}
		} else {
			s.pending.settle(key, s.bump())
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.notify(Change{Collection: CollectionMatches, FromID: fromID, ToID: meID})
		return fmt.Errorf("failed to respond to like: %w", err)
	}

	log.Info().
		Int64("from_id", fromID).
		Int64("to_id", meID).
		Str("status", string(status)).
		Msg("Like answered")

	return nil
}

// SendMessage appends the message locally under a temporary id, inserts it
// and swaps in the server id. An image attachment is uploaded first; if the
// upload fails the message is sent without it.
func (s *Store) SendMessage(ctx context.Context, meID, toID int64, text string, typ models.MessageType, att *Attachment) (*models.Message, error) {
	b, gen := s.current()
	if b == nil {
		return nil, ErrNotConnected
	}
	s.mu.RLock()
	_, known := s.findUser(meID)
	s.mu.RUnlock()
	if !known {
		return nil, ErrNotConnected
	}

	if typ == "" {
		typ = models.MessageText
	}
	if !typ.Valid() {
		return nil, ErrInvalidMessageType
	}
	text = strings.TrimSpace(text)
	hasImage := typ == models.MessageImage && att != nil
	if text == "" && !hasImage {
		return nil, ErrEmptyMessage
	}

	var attachmentURL *string
	if hasImage {
		name := fmt.Sprintf("%d_%s", s.now().UnixMilli(), s.randomSuffix())
		if err := b.Upload(ctx, models.ChatBucket, name, att.ContentType, att.Body); err != nil {
			log.Error().Err(err).Str("object", name).Msg("Failed to upload chat image")
		} else {
			u := b.PublicURL(models.ChatBucket, name)
			attachmentURL = &u
		}
	}

	tempID := "tmp-" + s.newID()
	msg := models.Message{
		ID:            tempID,
		SenderID:      meID,
		ReceiverID:    toID,
		Text:          text,
		Type:          typ,
		AttachmentURL: attachmentURL,
		Timestamp:     models.Millis(s.now().UnixMilli()),
		Pending:       true,
	}

	s.mu.Lock()
	if gen == s.gen {
		s.messages = append(s.messages, msg)
		s.pending.add(tempID, &pendingOp{kind: opMessage, message: msg})
	}
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionMessages, Message: &msg})

	var row models.MessageRow
	err := b.Insert(ctx, models.MessagesTable, models.MessageRow{
		SenderID:      meID,
		ReceiverID:    toID,
		Text:          text,
		Type:          typ,
		AttachmentURL: attachmentURL,
	}, &row)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to send message: %w", err)
		}
		sent := row.ToMessage()
		return &sent, nil
	}

	if err != nil {
		s.pending.drop(tempID)
		if i := s.indexOfMessage(tempID); i >= 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
		s.mu.Unlock()
		s.notify(Change{Collection: CollectionMessages, Message: &msg})
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	serverID := strconv.FormatInt(row.ID, 10)
	sent := msg
	sent.ID = serverID
	sent.Pending = false
	if row.Timestamp != 0 {
		sent.Timestamp = row.Timestamp
	}

	i := s.indexOfMessage(tempID)
	switch {
	case s.indexOfMessage(serverID) >= 0:
		// the realtime echo won the race
		if i >= 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
	case i >= 0:
		s.messages[i] = sent
	default:
		s.messages = append(s.messages, sent)
	}
	if op := s.pending.settle(tempID, s.bump()); op != nil {
		op.message = sent
	}
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionMessages, Message: &sent})

	log.Debug().
		Str("temp_id", tempID).
		Str("message_id", serverID).
		Int64("sender_id", meID).
		Int64("receiver_id", toID).
		Msg("Message sent")

	return &sent, nil
}

// Reset deletes every message, match request and user on the backend and
// clears local state
func (s *Store) Reset(ctx context.Context) error {
	b, gen := s.current()
	if b == nil {
		return ErrNotConnected
	}

	if err := b.Delete(ctx, models.MessagesTable, supabase.Gte("id", 0)); err != nil {
		return fmt.Errorf("failed to reset messages: %w", err)
	}
	if err := b.Delete(ctx, models.MatchesTable, supabase.Gte("from_id", 0)); err != nil {
		return fmt.Errorf("failed to reset matches: %w", err)
	}
	if err := b.Delete(ctx, models.UsersTable, supabase.Gte("id", 0)); err != nil {
		return fmt.Errorf("failed to reset users: %w", err)
	}

	s.Clear(gen)
	log.Warn().Msg("Server state reset")
	return nil
}

// Clear drops local state for generation gen, or the current one when gen is 0
func (s *Store) Clear(gen uint64) {
	s.mu.Lock()
	if gen == 0 {
		gen = s.gen
	}
	if gen == s.gen {
		s.users = nil
		s.requests = nil
		s.messages = nil
		s.pending = newPendingTable()
		// fetches started before the clear must not restore old rows
		s.applied = s.bump()
	}
	s.mu.Unlock()

	s.notify(Change{Collection: CollectionAll})
}

func (s *Store) randomSuffix() string {
	id := strings.ReplaceAll(s.newID(), "-", "")
	if len(id) > 7 {
		id = id[:7]
	}
	return id
}
