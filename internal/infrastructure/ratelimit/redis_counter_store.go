package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore implements CounterStore using Redis. This is the store
// used in deployments: counters live outside the process, so budgets hold
// across restarts and across accidental concurrent instances.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a counter store backed by an existing client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr atomically increments the counter and sets its TTL on first touch.
// INCR and EXPIRE NX run in one pipeline round trip.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: failed to increment counter: %w", err)
	}
	return incr.Val(), nil
}

// Get returns the current counter value, 0 when the key does not exist.
func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: failed to read counter: %w", err)
	}
	return val, nil
}

// Ensure RedisCounterStore implements CounterStore
var _ CounterStore = (*RedisCounterStore)(nil)
