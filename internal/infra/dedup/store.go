// Package dedup remembers which notification contents were already delivered,
// so retried delivery batches do not post the same card twice.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a delivered key is remembered.
const DefaultTTL = 7 * 24 * time.Hour

// Store checks and records delivered content keys.
// Implementations must be safe for concurrent use.
type Store interface {
	// Seen reports whether key was marked and has not expired.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key as delivered.
	Mark(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store for single-instance deployments.
// Expired entries are removed lazily on access.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Seen implements Store.
func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	ts, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if s.now().Sub(ts) > s.ttl {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// Mark implements Store.
func (s *MemoryStore) Mark(_ context.Context, key string) error {
	s.mu.Lock()
	s.entries[key] = s.now()
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
