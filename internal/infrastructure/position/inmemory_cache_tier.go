package position

import (
	"context"
	"sync"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// InMemoryCacheTier implements CacheTier with a mutex-guarded map. Suitable
// for single-instance deployments and testing.
type InMemoryCacheTier struct {
	mu      sync.RWMutex
	entries map[string]ordersync.SyncPosition
}

// NewInMemoryCacheTier creates an empty in-memory cache tier.
func NewInMemoryCacheTier() *InMemoryCacheTier {
	return &InMemoryCacheTier{entries: make(map[string]ordersync.SyncPosition)}
}

// Get loads the cached position for a store, (nil, nil) on a miss.
func (t *InMemoryCacheTier) Get(_ context.Context, storeCode string) (*ordersync.SyncPosition, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.entries[storeCode]
	if !ok {
		return nil, nil
	}
	copied := pos
	return &copied, nil
}

// SetIfNewer stores the position unless a strictly newer one is already
// held. The compare and the write happen under one lock.
func (t *InMemoryCacheTier) SetIfNewer(_ context.Context, storeCode string, pos *ordersync.SyncPosition) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[storeCode]; ok && existing.CapturedAt.After(pos.CapturedAt) {
		return ordersync.ErrStalePositionWrite
	}
	t.entries[storeCode] = *pos
	return nil
}

// Drop removes a cached entry. Used by tests to simulate cache eviction.
func (t *InMemoryCacheTier) Drop(storeCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, storeCode)
}

// Ensure InMemoryCacheTier implements CacheTier
var _ CacheTier = (*InMemoryCacheTier)(nil)
