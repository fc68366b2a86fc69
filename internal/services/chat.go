package services

import (
	"context"
	"errors"
	"strings"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/state"
)

// MaxImageSize is the largest chat image accepted
const MaxImageSize = 10 << 20

var (
	// ErrNotMatched is returned when chatting with someone who is not a match
	ErrNotMatched = errors.New("users are not matched")
	// ErrInvalidImage is returned for attachments that are not images
	ErrInvalidImage = errors.New("attachment must be an image")
)

// ChatService handles conversations between matched users
type ChatService struct {
	store  *state.Store
	gemini *GeminiService
}

// NewChatService creates a new chat service
func NewChatService(store *state.Store, gemini *GeminiService) *ChatService {
	return &ChatService{
		store:  store,
		gemini: gemini,
	}
}

// SendMessageRequest represents a message typed by a user
type SendMessageRequest struct {
	Text string             `json:"text"`
	Type models.MessageType `json:"type"`
}

// Conversation is one chat as seen by a user
type Conversation struct {
	Partner  ProfileCard      `json:"partner"`
	Messages []models.Message `json:"messages"`
}

func (s *ChatService) partner(meID, partnerID int64) (models.User, error) {
	if _, ok := s.store.User(meID); !ok {
		return models.User{}, ErrUserNotFound
	}
	partner, ok := s.store.User(partnerID)
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	if !s.store.IsMatch(meID, partnerID) {
		return models.User{}, ErrNotMatched
	}
	return partner, nil
}

// Conversation returns the messages between meID and partnerID
func (s *ChatService) Conversation(meID, partnerID int64) (*Conversation, error) {
	partner, err := s.partner(meID, partnerID)
	if err != nil {
		return nil, err
	}
	msgs := s.store.Conversation(meID, partnerID)
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &Conversation{Partner: cardOf(partner), Messages: msgs}, nil
}

// Send sends a message, with an optional image, from meID to partnerID
func (s *ChatService) Send(ctx context.Context, meID, partnerID int64, req SendMessageRequest, att *state.Attachment) (*models.Message, error) {
	if _, err := s.partner(meID, partnerID); err != nil {
		return nil, err
	}

	typ := req.Type
	if att != nil {
		if !strings.HasPrefix(att.ContentType, "image/") {
			return nil, ErrInvalidImage
		}
		typ = models.MessageImage
	}

	return s.store.SendMessage(ctx, meID, partnerID, req.Text, typ, att)
}

// Wingman suggests the next message meID could send to partnerID
func (s *ChatService) Wingman(ctx context.Context, meID, partnerID int64) (string, error) {
	partner, err := s.partner(meID, partnerID)
	if err != nil {
		return "", err
	}
	me, _ := s.store.User(meID)

	history := HistoryFor(s.store.Conversation(meID, partnerID), meID)
	return s.gemini.WingmanSuggestion(ctx, me.Bio, partner.Bio, history), nil
}
