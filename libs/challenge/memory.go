package challenge

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-process Store used in dev and tests.
type MemoryStore struct {
	mu          sync.Mutex
	ttl         time.Duration
	maxAttempts int
	codes       CodeGenerator
	now         func() time.Time
	entries     map[string]*pending
}

type pending struct {
	code     string
	attempts int
	expires  time.Time
}

func NewMemoryStore(ttl time.Duration, maxAttempts int) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &MemoryStore{
		ttl:         ttl,
		maxAttempts: maxAttempts,
		codes:       RandomCodes{},
		now:         time.Now,
		entries:     map[string]*pending{},
	}
}

func (s *MemoryStore) WithCodes(gen CodeGenerator) *MemoryStore {
	s.codes = gen
	return s
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Issue(_ context.Context, userID string) (string, error) {
	code, err := s.codes.Code()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = &pending{code: code, expires: s.now().Add(s.ttl)}
	return code, nil
}

func (s *MemoryStore) Verify(_ context.Context, userID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.entries[userID]
	if !ok || s.now().After(p.expires) {
		delete(s.entries, userID)
		return false, ErrNoChallenge
	}
	if p.code == code {
		return true, nil
	}
	p.attempts++
	if p.attempts >= s.maxAttempts {
		delete(s.entries, userID)
		return false, ErrTooManyAttempts
	}
	return false, nil
}
