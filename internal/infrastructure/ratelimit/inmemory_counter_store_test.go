package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCounterStore_IncrAndGet(t *testing.T) {
	store := NewInMemoryCounterStore()
	ctx := context.Background()

	v, err := store.Incr(ctx, "ratelimit:dz-main:second:100", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = store.Incr(ctx, "ratelimit:dz-main:second:100", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	got, err := store.Get(ctx, "ratelimit:dz-main:second:100")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestInMemoryCounterStore_GetAbsentKey(t *testing.T) {
	store := NewInMemoryCounterStore()

	got, err := store.Get(context.Background(), "ratelimit:dz-main:hour:9")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestInMemoryCounterStore_ExpiryResetsCounter(t *testing.T) {
	store := NewInMemoryCounterStore()
	ctx := context.Background()

	_, err := store.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	v, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v, "expired counter must restart from zero")
}
