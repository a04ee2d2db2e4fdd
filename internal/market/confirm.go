package market

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pending is a listing or rename proposal waiting for its confirmation.
type Pending struct {
	UserID    string
	GroupID   string
	Name      string
	Rename    bool
	ExpiresAt time.Time
}

// ConfirmStore holds pending proposals in memory, keyed by a one-shot token.
// A user re-proposing for the same group replaces their earlier proposal.
// Expired entries are dropped lazily on access; a stale token can never
// mutate state.
type ConfirmStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	byToken map[string]Pending
	now     func() time.Time
}

func NewConfirmStore(ttl time.Duration) *ConfirmStore {
	return &ConfirmStore{
		ttl:     ttl,
		byToken: make(map[string]Pending),
		now:     time.Now,
	}
}

// Put stages a proposal and returns its confirmation token.
func (s *ConfirmStore) Put(p Pending) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for tok, old := range s.byToken {
		if !old.ExpiresAt.After(now) || (old.UserID == p.UserID && old.GroupID == p.GroupID) {
			delete(s.byToken, tok)
		}
	}
	p.ExpiresAt = now.Add(s.ttl)
	token := uuid.NewString()
	s.byToken[token] = p
	return token
}

// Take consumes a token. It returns ok=false for unknown, expired, or
// already-consumed tokens.
func (s *ConfirmStore) Take(token string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byToken[token]
	if !ok {
		return Pending{}, false
	}
	delete(s.byToken, token)
	if !p.ExpiresAt.After(s.now()) {
		return Pending{}, false
	}
	return p, true
}
