package position

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// failingCacheTier simulates an unavailable Redis.
type failingCacheTier struct{}

func (failingCacheTier) Get(context.Context, string) (*ordersync.SyncPosition, error) {
	return nil, errors.New("cache tier down")
}

func (failingCacheTier) SetIfNewer(context.Context, string, *ordersync.SyncPosition) error {
	return errors.New("cache tier down")
}

func livePosition(page int, firstID, lastID int64, capturedAt time.Time) *ordersync.SyncPosition {
	return &ordersync.SyncPosition{
		LastPage:   page,
		FirstID:    firstID,
		LastID:     lastID,
		CapturedAt: capturedAt,
		Source:     ordersync.PositionSourceLive,
	}
}

func newTestStore(t *testing.T, cache CacheTier) *Store {
	t.Helper()
	s, err := NewStore(cache, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	cache := NewInMemoryCacheTier()
	store := newTestStore(t, cache)
	ctx := context.Background()

	pos := livePosition(7, 17120, 17101, time.Now())
	require.NoError(t, store.Save(ctx, "shopA", pos))

	loaded, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 7, loaded.LastPage)
	assert.Equal(t, int64(17120), loaded.FirstID)
	assert.Equal(t, int64(17101), loaded.LastID)
	assert.Equal(t, ordersync.PositionSourceLive, loaded.Source)
}

func TestStoreLoadMissesBothTiers(t *testing.T) {
	store := newTestStore(t, NewInMemoryCacheTier())

	loaded, err := store.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStoreDiskFallbackAfterCacheEviction(t *testing.T) {
	cache := NewInMemoryCacheTier()
	store := newTestStore(t, cache)
	ctx := context.Background()

	pos := livePosition(3, 540, 521, time.Now())
	require.NoError(t, store.Save(ctx, "shopA", pos))

	// Simulate a cache flush between restarts
	cache.Drop("shopA")

	loaded, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 3, loaded.LastPage)

	// The disk hit must have backfilled the cache tier
	cached, err := cache.Get(ctx, "shopA")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 3, cached.LastPage)
}

func TestStoreSurvivesFailingCacheTier(t *testing.T) {
	store := newTestStore(t, failingCacheTier{})
	ctx := context.Background()

	pos := livePosition(2, 200, 181, time.Now())
	require.NoError(t, store.Save(ctx, "shopA", pos))

	loaded, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.LastPage)
}

func TestStoreRejectsStaleWrite(t *testing.T) {
	store := newTestStore(t, NewInMemoryCacheTier())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, "shopA", livePosition(5, 900, 881, now)))

	err := store.Save(ctx, "shopA", livePosition(4, 880, 861, now.Add(-time.Minute)))
	assert.ErrorIs(t, err, ordersync.ErrStalePositionWrite)

	// The stored position must be untouched
	loaded, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.LastPage)
}

func TestStoreAcceptsEqualTimestampRewrite(t *testing.T) {
	store := newTestStore(t, NewInMemoryCacheTier())
	ctx := context.Background()
	now := time.Now()

	pos := livePosition(5, 900, 881, now)
	require.NoError(t, store.Save(ctx, "shopA", pos))
	require.NoError(t, store.Save(ctx, "shopA", pos))
}

func TestStoreRejectsInvalidPosition(t *testing.T) {
	store := newTestStore(t, NewInMemoryCacheTier())

	bad := livePosition(0, 100, 81, time.Now())
	err := store.Save(context.Background(), "shopA", bad)
	assert.ErrorIs(t, err, ordersync.ErrInvalidSyncPosition)
}

// Two engine instances sharing both tiers: the lagging instance's save of
// an older position must be rejected even though it never observed the
// newer one.
func TestStoreConcurrentInstancesKeepNewestPosition(t *testing.T) {
	cache := NewInMemoryCacheTier()
	stateDir := t.TempDir()
	instanceA, err := NewStore(cache, stateDir, zap.NewNop())
	require.NoError(t, err)
	instanceB, err := NewStore(cache, stateDir, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	// A reads the frontier, then stalls
	require.NoError(t, instanceA.Save(ctx, "shopA", livePosition(5, 900, 881, now)))
	stalled, err := instanceA.Load(ctx, "shopA")
	require.NoError(t, err)
	require.Equal(t, 5, stalled.LastPage)

	// B advances the frontier while A is stalled
	require.NoError(t, instanceB.Save(ctx, "shopA", livePosition(7, 1040, 1021, now.Add(time.Minute))))

	// A wakes up and saves a position older than B's
	err = instanceA.Save(ctx, "shopA", livePosition(6, 970, 951, now.Add(30*time.Second)))
	assert.ErrorIs(t, err, ordersync.ErrStalePositionWrite)

	// Both tiers must still hold B's position
	loaded, err := instanceA.Load(ctx, "shopA")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.LastPage)
	cache.Drop("shopA")
	loaded, err = instanceA.Load(ctx, "shopA")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.LastPage)
}

// With the shared cache tier down, the disk tier alone must still reject
// the lagging instance's write.
func TestStoreDiskTierRejectsStaleWriteAcrossInstances(t *testing.T) {
	stateDir := t.TempDir()
	instanceA, err := NewStore(failingCacheTier{}, stateDir, zap.NewNop())
	require.NoError(t, err)
	instanceB, err := NewStore(failingCacheTier{}, stateDir, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, instanceB.Save(ctx, "shopA", livePosition(9, 3000, 2981, now)))

	err = instanceA.Save(ctx, "shopA", livePosition(8, 2960, 2941, now.Add(-time.Second)))
	assert.ErrorIs(t, err, ordersync.ErrStalePositionWrite)

	loaded, err := instanceB.Load(ctx, "shopA")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 9, loaded.LastPage)
}

func TestInMemoryCacheTierRejectsOlderPosition(t *testing.T) {
	tier := NewInMemoryCacheTier()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, tier.SetIfNewer(ctx, "shopA", livePosition(5, 900, 881, now)))

	err := tier.SetIfNewer(ctx, "shopA", livePosition(4, 880, 861, now.Add(-time.Minute)))
	assert.ErrorIs(t, err, ordersync.ErrStalePositionWrite)

	// Equal timestamp is an idempotent rewrite, not a stale write
	require.NoError(t, tier.SetIfNewer(ctx, "shopA", livePosition(5, 900, 881, now)))

	cached, err := tier.Get(ctx, "shopA")
	require.NoError(t, err)
	assert.Equal(t, 5, cached.LastPage)
}

func TestStoreTreatsCorruptFallbackFileAsAbsent(t *testing.T) {
	cache := NewInMemoryCacheTier()
	store := newTestStore(t, cache)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, "shopA", livePosition(2, 60, 41, now)))
	cache.Drop("shopA")

	// Tear the fallback file
	path := store.versionPath("shopA", now.UnixNano())
	require.NoError(t, os.WriteFile(path, []byte("{\"lastPage\": "), 0o644))

	loaded, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStoreFallsBackToOlderVersionWhenNewestIsTorn(t *testing.T) {
	cache := NewInMemoryCacheTier()
	store := newTestStore(t, cache)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, "shopA", livePosition(2, 60, 41, now)))

	// A version newer than the saved one, torn mid-write
	tornPath := store.versionPath("shopA", now.Add(time.Minute).UnixNano())
	require.NoError(t, os.WriteFile(tornPath, []byte("{\"lastPage\": "), 0o644))
	cache.Drop("shopA")

	loaded, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.LastPage)
}

func TestStoreIsolatesStores(t *testing.T) {
	store := newTestStore(t, NewInMemoryCacheTier())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "shopA", livePosition(2, 60, 41, time.Now())))
	require.NoError(t, store.Save(ctx, "shopB", livePosition(9, 3000, 2981, time.Now())))

	a, err := store.Load(ctx, "shopA")
	require.NoError(t, err)
	b, err := store.Load(ctx, "shopB")
	require.NoError(t, err)
	assert.Equal(t, 2, a.LastPage)
	assert.Equal(t, 9, b.LastPage)
}

func TestStoreSanitizesStoreCodeInFileName(t *testing.T) {
	cache := NewInMemoryCacheTier()
	store := newTestStore(t, cache)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, "../etc/shop", livePosition(1, 10, 1, now)))
	cache.Drop("../etc/shop")

	loaded, err := store.Load(ctx, "../etc/shop")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	// The fallback file must live inside the state directory
	path := store.versionPath("../etc/shop", now.UnixNano())
	assert.Equal(t, store.stateDir, filepath.Dir(path))
}

func TestStorePrunesOldVersionsAndTempFiles(t *testing.T) {
	store := newTestStore(t, NewInMemoryCacheTier())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		pos := livePosition(i+1, int64(100*(i+1)), int64(100*i+81), time.Now().Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(ctx, "shopA", pos))
	}

	entries, err := os.ReadDir(store.stateDir)
	require.NoError(t, err)
	var versionFiles int
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
		if strings.HasPrefix(e.Name(), store.filePrefix("shopA")) {
			versionFiles++
		}
	}
	// Only the newest version survives a sequence of saves
	assert.Equal(t, 1, versionFiles)
}
