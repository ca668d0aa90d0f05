package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Entries expire after ttl and are swept
// lazily on Claim.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > s.ttl {
		for k, ts := range s.entries {
			if now.Sub(ts) > s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	if ts, ok := s.entries[key]; ok && now.Sub(ts) <= s.ttl {
		return false, nil
	}
	s.entries[key] = now
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked keys, including ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
