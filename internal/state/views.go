package state

import (
	"slices"
	"sort"

	"neonmatch-backend/internal/models"
)

// User returns the user with the given number
func (s *Store) User(id int64) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findUser(id)
}

// Users returns every known user ordered by number
func (s *Store) Users() []models.User {
	s.mu.RLock()
	users := slices.Clone(s.users)
	s.mu.RUnlock()
	sort.SliceStable(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Requests returns every known match request
func (s *Store) Requests() []models.MatchRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.requests)
}

// Messages returns every known message in arrival order
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// IncomingLikes returns pending requests addressed to userID
func (s *Store) IncomingLikes(userID int64) []models.MatchRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MatchRequest
	for _, r := range s.requests {
		if r.ToID == userID && r.Status == models.StatusPending {
			out = append(out, r)
		}
	}
	return out
}

// Matches returns accepted requests involving userID in either direction
func (s *Store) Matches(userID int64) []models.MatchRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.MatchRequest
	for _, r := range s.requests {
		if (r.FromID == userID || r.ToID == userID) && r.Status == models.StatusAccepted {
			out = append(out, r)
		}
	}
	return out
}

// IsMatch reports whether a and b have an accepted request between them
func (s *Store) IsMatch(a, b int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.Involves(a, b) && r.Status == models.StatusAccepted {
			return true
		}
	}
	return false
}

// Conversation returns the messages between userID and partnerID ordered by
// timestamp
func (s *Store) Conversation(userID, partnerID int64) []models.Message {
	s.mu.RLock()
	var out []models.Message
	for _, m := range s.messages {
		if (m.SenderID == userID && m.ReceiverID == partnerID) ||
			(m.SenderID == partnerID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// PendingOps returns the number of optimistic operations awaiting the backend
func (s *Store) PendingOps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.inFlight()
}
