package ratelimit

import (
	"context"
	"sync"
	"time"
)

// counterEntry is one stored counter with its expiry.
type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// InMemoryCounterStore implements CounterStore with a mutex-guarded map.
// Suitable for single-instance deployments and testing; budgets are not
// shared across processes.
type InMemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]counterEntry
}

// NewInMemoryCounterStore creates an empty in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{entries: make(map[string]counterEntry)}
}

// Incr increments the counter at key, creating it with the TTL on first touch.
func (s *InMemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = counterEntry{value: 0, expiresAt: now.Add(ttl)}
	}
	e.value++
	s.entries[key] = e

	// Opportunistic cleanup keeps the map from growing one bucket per tick forever
	if len(s.entries)%64 == 0 {
		s.cleanupLocked(now)
	}
	return e.value, nil
}

// Get returns the current counter value, 0 when absent or expired.
func (s *InMemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, nil
	}
	return e.value, nil
}

// cleanupLocked removes expired entries. Caller holds the mutex.
func (s *InMemoryCounterStore) cleanupLocked(now time.Time) {
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Ensure InMemoryCounterStore implements CounterStore
var _ CounterStore = (*InMemoryCounterStore)(nil)
