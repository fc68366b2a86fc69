package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"neonmatch-backend/internal/models"
	"neonmatch-backend/internal/state"
)

// MatchService handles likes, responses and the dashboard view
type MatchService struct {
	store *state.Store
}

// NewMatchService creates a new match service
func NewMatchService(store *state.Store) *MatchService {
	return &MatchService{store: store}
}

// ProfileCard is the public view of a user
type ProfileCard struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Bio      string  `json:"bio"`
	PhotoURL *string `json:"photo_url,omitempty"`
}

func cardOf(u models.User) ProfileCard {
	return ProfileCard{ID: u.ID, Name: u.Name, Bio: u.Bio, PhotoURL: u.PhotoURL}
}

// IncomingLike is a pending request with the requester's card
type IncomingLike struct {
	From      ProfileCard   `json:"from"`
	Timestamp models.Millis `json:"timestamp"`
}

// MatchCard is an accepted request seen from one side
type MatchCard struct {
	Partner     ProfileCard     `json:"partner"`
	Since       models.Millis   `json:"since"`
	LastMessage *models.Message `json:"last_message,omitempty"`
}

// Dashboard is everything the main screen shows
type Dashboard struct {
	Me            models.User    `json:"me"`
	IncomingLikes []IncomingLike `json:"incoming_likes"`
	Matches       []MatchCard    `json:"matches"`
	VoteTarget    *int64         `json:"vote_target,omitempty"`
	Loading       bool           `json:"loading"`
}

// SendLike sends a like from meID to targetID
func (s *MatchService) SendLike(ctx context.Context, meID, targetID int64) state.LikeResult {
	return s.store.SendLike(ctx, meID, targetID)
}

// Respond accepts or rejects a like fromID sent to meID
func (s *MatchService) Respond(ctx context.Context, meID, fromID int64, accept bool) error {
	return s.store.RespondToLike(ctx, meID, fromID, accept)
}

// ParseVote reads a prefilled vote target; anything but a positive number is ignored
func ParseVote(raw string) *int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// Dashboard builds the main screen for meID
func (s *MatchService) Dashboard(meID int64, vote string) (*Dashboard, error) {
	me, ok := s.store.User(meID)
	if !ok {
		return nil, ErrUserNotFound
	}

	d := &Dashboard{
		Me:            me,
		IncomingLikes: []IncomingLike{},
		VoteTarget:    ParseVote(vote),
		Loading:       s.store.Loading(),
	}

	for _, r := range s.store.IncomingLikes(meID) {
		from, ok := s.store.User(r.FromID)
		if !ok {
			continue
		}
		d.IncomingLikes = append(d.IncomingLikes, IncomingLike{From: cardOf(from), Timestamp: r.Timestamp})
	}
	sort.SliceStable(d.IncomingLikes, func(i, j int) bool {
		return d.IncomingLikes[i].Timestamp > d.IncomingLikes[j].Timestamp
	})

	d.Matches = s.MatchList(meID)

	return d, nil
}

// MatchList returns meID's matches, most recent activity first
func (s *MatchService) MatchList(meID int64) []MatchCard {
	cards := []MatchCard{}
	for _, r := range s.store.Matches(meID) {
		partnerID := r.PartnerOf(meID)
		partner, ok := s.store.User(partnerID)
		if !ok {
			continue
		}
		card := MatchCard{Partner: cardOf(partner), Since: r.Timestamp}
		if conv := s.store.Conversation(meID, partnerID); len(conv) > 0 {
			last := conv[len(conv)-1]
			card.LastMessage = &last
		}
		cards = append(cards, card)
	}

	activity := func(c MatchCard) models.Millis {
		if c.LastMessage != nil && c.LastMessage.Timestamp > c.Since {
			return c.LastMessage.Timestamp
		}
		return c.Since
	}
	sort.SliceStable(cards, func(i, j int) bool { return activity(cards[i]) > activity(cards[j]) })

	return cards
}
