package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// defaultCacheTTL keeps positions cached for several days so a normal
// restart never needs the disk tier, while an abandoned store's entry
// still expires.
const defaultCacheTTL = 7 * 24 * time.Hour

// casRetries bounds optimistic retries when another instance writes the
// same key between our read and our transaction.
const casRetries = 3

// RedisCacheTier implements the fast position tier on Redis, shared across
// process instances.
type RedisCacheTier struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCacheTier creates a Redis-backed cache tier with the default TTL.
func NewRedisCacheTier(client *redis.Client) *RedisCacheTier {
	return &RedisCacheTier{
		client:    client,
		keyPrefix: "syncpos:",
		ttl:       defaultCacheTTL,
	}
}

// Get loads the cached position for a store, (nil, nil) on a miss.
func (t *RedisCacheTier) Get(ctx context.Context, storeCode string) (*ordersync.SyncPosition, error) {
	raw, err := t.client.Get(ctx, t.keyPrefix+storeCode).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("position: failed to read cache tier: %w", err)
	}

	var pos ordersync.SyncPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("position: corrupt cached position: %w", err)
	}
	return &pos, nil
}

// SetIfNewer stores the position unless Redis already holds a strictly
// newer one. The compare and the write run as an optimistic WATCH/MULTI
// transaction so two instances racing on the same store cannot interleave
// a stale write between another instance's read and write.
func (t *RedisCacheTier) SetIfNewer(ctx context.Context, storeCode string, pos *ordersync.SyncPosition) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("position: failed to encode position: %w", err)
	}
	key := t.keyPrefix + storeCode

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var existing ordersync.SyncPosition
			// A corrupt cached value loses to any valid write
			if decodeErr := json.Unmarshal(cur, &existing); decodeErr == nil &&
				existing.CapturedAt.After(pos.CapturedAt) {
				return ordersync.ErrStalePositionWrite
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, t.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := t.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err == nil || errors.Is(err, ordersync.ErrStalePositionWrite) {
			return err
		}
		return fmt.Errorf("position: failed to write cache tier: %w", err)
	}
	return fmt.Errorf("position: cache tier write contended: %w", redis.TxFailedErr)
}

// Ensure RedisCacheTier implements CacheTier
var _ CacheTier = (*RedisCacheTier)(nil)
