package otp

import (
	"context"
	"sync"
	"time"

	"github.com/shopnest-api/internal/domain"
)

// MemoryStore is a process-local Store. Entries do not survive a restart and
// are not shared between instances; use the DynamoDB or Redis store when the
// API runs with more than one replica.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.PendingVerification
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock injects a custom time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore returns an empty store. A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]domain.PendingVerification),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, v *domain.PendingVerification) error {
	Stamp(v, s.now(), s.ttl)
	s.mu.Lock()
	s.entries[v.Identifier] = *v
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Verify(_ context.Context, identifier, code string) (*domain.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[identifier]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	switch err := v.Check(code, s.now()); err {
	case nil, domain.ErrCodeExpired:
		delete(s.entries, identifier)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, err
	}
}

func (s *MemoryStore) Peek(_ context.Context, identifier string) (*domain.PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[identifier]
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	return &v, nil
}

func (s *MemoryStore) Delete(_ context.Context, identifier string) error {
	s.mu.Lock()
	delete(s.entries, identifier)
	s.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
