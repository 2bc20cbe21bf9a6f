package service

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/danukusuma/auth-service/internal/auth/domain"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

// ChallengeStore holds pending WebAuthn ceremony state in-process, keyed by
// an opaque id handed to the client. Entries are single use and TTL-bounded;
// the store is not durable truth and does not survive a restart.
type ChallengeStore struct {
	mu      sync.Mutex
	entries map[string]challengeEntry
	ttl     time.Duration
	clock   domain.Clock
}

type challengeEntry struct {
	accountID string
	session   webauthn.SessionData
	createdAt time.Time
}

func NewChallengeStore(ttl time.Duration, clock domain.Clock) *ChallengeStore {
	return &ChallengeStore{
		entries: make(map[string]challengeEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Put stores ceremony state bound to the requesting account and returns the
// opaque challenge id.
func (s *ChallengeStore) Put(accountID string, session webauthn.SessionData) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = challengeEntry{
		accountID: accountID,
		session:   session,
		createdAt: s.clock.Now(),
	}
	s.mu.Unlock()
	return id
}

// Take consumes the challenge: whatever the outcome, the entry is gone and
// the ceremony cannot be retried with the same id. Expiry and account
// mismatch both come back as ErrChallengeInvalid.
func (s *ChallengeStore) Take(id, accountID string) (*webauthn.SessionData, error) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, autherror.ErrChallengeInvalid
	}
	if s.clock.Now().Sub(entry.createdAt) > s.ttl {
		return nil, autherror.ErrChallengeInvalid
	}
	if entry.accountID != accountID {
		return nil, autherror.ErrChallengeInvalid
	}
	session := entry.session
	return &session, nil
}

// SweepExpired removes stale entries from abandoned ceremonies and reports
// how many were dropped. Take never returns an expired entry, so the sweep
// only bounds memory.
func (s *ChallengeStore) SweepExpired() int {
	cutoff := s.clock.Now().Add(-s.ttl)
	removed := 0
	s.mu.Lock()
	for id, entry := range s.entries {
		if entry.createdAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Len reports how many challenges are pending.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
