package state

import (
	"fmt"

	"neonmatch-backend/internal/models"
)

type opKind int

const (
	opMessage opKind = iota
	opLike
	opRespond
	opUser
)

// pendingOp is a local change the last fetched snapshot may not contain yet.
// settled is zero while the write is in flight, otherwise the mutation
// sequence number at which the backend confirmed it.
type pendingOp struct {
	kind    opKind
	message models.Message
	request models.MatchRequest
	user    models.User
	settled uint64
}

// pendingTable tracks local changes by key so a full re-fetch does not drop
// writes that are in flight or that landed after the fetch started. Guarded
// by Store.mu.
type pendingTable struct {
	ops   map[string]*pendingOp
	order []string
}

func newPendingTable() *pendingTable {
	return &pendingTable{ops: make(map[string]*pendingOp)}
}

func likeKey(fromID, toID int64) string {
	return fmt.Sprintf("like:%d:%d", fromID, toID)
}

func respondKey(fromID, toID int64) string {
	return fmt.Sprintf("respond:%d:%d", fromID, toID)
}

func userKey(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

func remoteMessageKey(id string) string {
	return "remote:" + id
}

func (t *pendingTable) add(key string, op *pendingOp) {
	if _, ok := t.ops[key]; !ok {
		t.order = append(t.order, key)
	}
	t.ops[key] = op
}

// settle marks the op as confirmed at seq and returns it, or nil if unknown
func (t *pendingTable) settle(key string, seq uint64) *pendingOp {
	op, ok := t.ops[key]
	if !ok {
		return nil
	}
	op.settled = seq
	return op
}

// drop forgets a failed op
func (t *pendingTable) drop(key string) {
	if _, ok := t.ops[key]; !ok {
		return
	}
	delete(t.ops, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// prune forgets ops settled at or before seq: a fetch that started at seq
// already contains them
func (t *pendingTable) prune(seq uint64) {
	kept := t.order[:0]
	for _, key := range t.order {
		op := t.ops[key]
		if op.settled != 0 && op.settled <= seq {
			delete(t.ops, key)
			continue
		}
		kept = append(kept, key)
	}
	t.order = kept
}

// inFlight counts ops still waiting for the backend
func (t *pendingTable) inFlight() int {
	n := 0
	for _, op := range t.ops {
		if op.settled == 0 {
			n++
		}
	}
	return n
}

// applyUsers adds locally registered users missing from fetched ones
func (t *pendingTable) applyUsers(users []models.User) []models.User {
	for _, key := range t.order {
		op := t.ops[key]
		if op.kind != opUser {
			continue
		}
		found := false
		for _, u := range users {
			if u.ID == op.user.ID {
				found = true
				break
			}
		}
		if !found {
			users = append(users, op.user)
		}
	}
	return users
}

// applyRequests overlays local likes and responses on fetched requests
func (t *pendingTable) applyRequests(requests []models.MatchRequest) []models.MatchRequest {
	for _, key := range t.order {
		op := t.ops[key]
		switch op.kind {
		case opLike:
			found := false
			for _, r := range requests {
				if r.Involves(op.request.FromID, op.request.ToID) {
					found = true
					break
				}
			}
			if !found {
				requests = append(requests, op.request)
			}
		case opRespond:
			for i := range requests {
				r := &requests[i]
				if r.FromID == op.request.FromID && r.ToID == op.request.ToID && r.Status == models.StatusPending {
					r.Status = op.request.Status
				}
			}
		}
	}
	return requests
}

// applyMessages appends local messages missing from fetched ones
func (t *pendingTable) applyMessages(messages []models.Message) []models.Message {
	seen := make(map[string]bool, len(messages))
	for _, m := range messages {
		seen[m.ID] = true
	}
	for _, key := range t.order {
		op := t.ops[key]
		if op.kind != opMessage || seen[op.message.ID] {
			continue
		}
		seen[op.message.ID] = true
		messages = append(messages, op.message)
	}
	return messages
}
