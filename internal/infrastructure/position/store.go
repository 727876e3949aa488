package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// ---------------------------------------------------------------------------
// Two-Tier Position Store
// ---------------------------------------------------------------------------

// Store implements ordersync.PositionStore with two persistence tiers: a
// fast cache (Redis in production) and an on-disk JSON fallback written on
// every successful save. The disk tier carries no expiry and survives a
// cache flush; the cache tier survives losing the disk (new host) as long
// as its TTL has not elapsed.
type Store struct {
	cache    CacheTier
	stateDir string
	logger   *zap.Logger
}

// NewStore creates a two-tier position store. The state directory is
// created if it does not exist.
func NewStore(cache CacheTier, stateDir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("position: failed to create state directory: %w", err)
	}
	return &Store{
		cache:    cache,
		stateDir: stateDir,
		logger:   logger,
	}, nil
}

// Load returns the stored position for a store, trying the cache tier
// first and the disk tier second. (nil, nil) when both tiers miss. A
// failing or corrupt cache tier degrades to the disk tier, never to an
// error.
func (s *Store) Load(ctx context.Context, storeCode string) (*ordersync.SyncPosition, error) {
	cached, err := s.cache.Get(ctx, storeCode)
	if err != nil {
		s.logger.Warn("Position cache tier read failed, falling back to disk",
			zap.String("store_code", storeCode),
			zap.Error(err),
		)
	}
	if cached != nil {
		return cached, nil
	}

	fromDisk, err := s.loadDisk(storeCode)
	if err != nil {
		return nil, err
	}
	if fromDisk == nil {
		return nil, nil
	}

	// Backfill the cache so the next load is fast again. A concurrent
	// instance may have cached a newer position meanwhile; losing that
	// race is fine.
	if err := s.cache.SetIfNewer(ctx, storeCode, fromDisk); err != nil &&
		!errors.Is(err, ordersync.ErrStalePositionWrite) {
		s.logger.Warn("Failed to backfill position cache tier",
			zap.String("store_code", storeCode),
			zap.Error(err),
		)
	}
	return fromDisk, nil
}

// Save persists the position to both tiers with compare-and-set semantics
// keyed on CapturedAt: a position older than what a tier already holds is
// rejected with ErrStalePositionWrite, so a lagging instance cannot roll
// the frontier back. Each tier makes its check-and-write atomic (the disk
// tier through versioned file names, the cache tier through its own CAS).
// A cache-tier outage is logged and tolerated; the disk tier must succeed.
func (s *Store) Save(ctx context.Context, storeCode string, pos *ordersync.SyncPosition) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	if err := s.saveDisk(storeCode, pos); err != nil {
		return err
	}
	if err := s.cache.SetIfNewer(ctx, storeCode, pos); err != nil {
		if errors.Is(err, ordersync.ErrStalePositionWrite) {
			return err
		}
		s.logger.Warn("Position cache tier write failed, disk tier saved",
			zap.String("store_code", storeCode),
			zap.Error(err),
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Disk Tier
// ---------------------------------------------------------------------------

// The disk tier stores each save under a file name carrying the position's
// CapturedAt nanosecond timestamp. Writes never replace an existing
// version, so no read-compare-write window exists: readers pick the
// highest version, and a writer that finds a higher version than its own
// after landing removes its file and reports the write as stale.

// filePrefix builds the per-store file name prefix.
func (s *Store) filePrefix(storeCode string) string {
	// Store codes come from configuration but are used as file names;
	// flatten anything path-like just in case.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(storeCode)
	return "syncpos_" + safe + "."
}

// versionPath builds the fallback file path for one version of a store's
// position. Versions are zero-padded so lexical and numeric order agree.
func (s *Store) versionPath(storeCode string, version int64) string {
	return filepath.Join(s.stateDir, fmt.Sprintf("%s%020d.json", s.filePrefix(storeCode), version))
}

// diskVersions lists the stored versions for a store, newest first.
func (s *Store) diskVersions(storeCode string) ([]int64, error) {
	entries, err := os.ReadDir(s.stateDir)
	if err != nil {
		return nil, fmt.Errorf("position: failed to read state directory: %w", err)
	}

	prefix := s.filePrefix(storeCode)
	versions := make([]int64, 0, 1)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSuffix(name[len(prefix):], ".json"), 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	return versions, nil
}

// loadDisk reads the newest on-disk fallback, (nil, nil) when absent. A
// torn or corrupt version falls through to the next older one; recovery
// re-derives the position when nothing readable remains.
func (s *Store) loadDisk(storeCode string) (*ordersync.SyncPosition, error) {
	versions, err := s.diskVersions(storeCode)
	if err != nil {
		return nil, err
	}

	for _, v := range versions {
		raw, err := os.ReadFile(s.versionPath(storeCode, v))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("position: failed to read disk tier: %w", err)
		}

		var pos ordersync.SyncPosition
		if err := json.Unmarshal(raw, &pos); err != nil {
			s.logger.Warn("Corrupt position fallback file, trying older version",
				zap.String("store_code", storeCode),
				zap.Int64("version", v),
				zap.Error(err),
			)
			continue
		}
		return &pos, nil
	}
	return nil, nil
}

// saveDisk writes one version file atomically (temp file + rename), then
// checks whether a concurrent writer landed a newer version. The loser of
// that race removes its own file and reports the write as stale; at least
// one of two racing writers observes both files, so the older position
// never wins. Versions below the newest are pruned.
func (s *Store) saveDisk(storeCode string, pos *ordersync.SyncPosition) error {
	raw, err := json.MarshalIndent(pos, "", "  ")
	if err != nil {
		return fmt.Errorf("position: failed to encode position: %w", err)
	}

	version := pos.CapturedAt.UnixNano()
	target := s.versionPath(storeCode, version)
	tmp, err := os.CreateTemp(s.stateDir, "syncpos_*.tmp")
	if err != nil {
		return fmt.Errorf("position: failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("position: failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("position: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("position: failed to place fallback file: %w", err)
	}

	versions, err := s.diskVersions(storeCode)
	if err != nil {
		return err
	}
	if len(versions) > 0 && versions[0] > version {
		_ = os.Remove(target)
		return ordersync.ErrStalePositionWrite
	}
	for _, v := range versions {
		if v < version {
			_ = os.Remove(s.versionPath(storeCode, v))
		}
	}
	return nil
}

// Ensure Store implements the domain port
var _ ordersync.PositionStore = (*Store)(nil)
