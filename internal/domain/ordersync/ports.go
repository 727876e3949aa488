package ordersync

import (
	"context"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// OrderSource Port
// ---------------------------------------------------------------------------

// OrderSource fetches one page of orders from the upstream platform,
// newest-first (descending external ID). Implementations must gate every
// request through the RateGovernor before touching the network.
//
// Error contract:
//   - ErrRateLimited (wrapped, possibly as *RateLimitedError with a hint):
//     the caller decides whether to retry the same page
//   - ErrAuthFailed: fatal for the store's pass, never retried
//   - ErrUpstreamUnavailable (wrapped): transient, retryable with backoff
//   - ErrMalformedPage: response shape was not understood; skip and count
type OrderSource interface {
	// FetchPage fetches the given 1-indexed page for a store
	FetchPage(ctx context.Context, store *StoreCredential, page int) (*OrderPage, error)
}

// ---------------------------------------------------------------------------
// RateGovernor Port
// ---------------------------------------------------------------------------

// RateGovernor admits upstream requests without ever exceeding the
// configured per-window budgets. Acquire blocks (sleeps) the caller until a
// request may legally proceed; it only returns an error when the context is
// cancelled. Counter state is shared across process instances.
type RateGovernor interface {
	// Acquire blocks until one request for the store may proceed
	Acquire(ctx context.Context, storeCode string) error

	// Status reports current window consumption for operational monitoring
	Status(ctx context.Context, storeCode string) (*RateLimitStatus, error)
}

// ---------------------------------------------------------------------------
// PositionStore Port
// ---------------------------------------------------------------------------

// PositionStore persists the per-store sync frontier across restarts.
// Load returns (nil, nil) when no position is stored in any tier.
// Save is last-writer-wins by CapturedAt: an older position must not
// overwrite a newer one.
type PositionStore interface {
	Load(ctx context.Context, storeCode string) (*SyncPosition, error)
	Save(ctx context.Context, storeCode string, pos *SyncPosition) error
}

// ---------------------------------------------------------------------------
// PositionLocator Port
// ---------------------------------------------------------------------------

// PositionLocator finds the upstream page containing a target order ID when
// no trustworthy cached position exists. The returned position is tagged
// PositionSourceRecovered; when the exact ID is gone upstream the nearest
// page is returned instead, so callers must treat the result as degraded.
type PositionLocator interface {
	Locate(ctx context.Context, store *StoreCredential, targetID int64) (*SyncPosition, error)
}

// ---------------------------------------------------------------------------
// Persister Port
// ---------------------------------------------------------------------------

// UpsertOutcome reports what an idempotent upsert did.
type UpsertOutcome string

const (
	// UpsertCreated means a new order row was created
	UpsertCreated UpsertOutcome = "created"
	// UpsertUpdated means an existing row was refreshed (status change)
	UpsertUpdated UpsertOutcome = "updated"
)

// Persister is the downstream owner of imported orders. It is idempotent by
// (store, external ID); the engine only ever emits deduplicated snapshots
// into it and queries it for membership during a pass.
type Persister interface {
	// Upsert stores or refreshes one order snapshot
	Upsert(ctx context.Context, storeID uuid.UUID, snapshot *OrderSnapshot) (UpsertOutcome, error)

	// Exists returns, for the given external IDs, the subset already
	// persisted for the store, mapped to their recorded status labels
	Exists(ctx context.Context, storeID uuid.UUID, externalIDs []int64) (map[int64]string, error)

	// LatestExternalID returns the highest persisted external ID for the
	// store, or 0 when no orders have been persisted yet
	LatestExternalID(ctx context.Context, storeID uuid.UUID) (int64, error)
}

// ---------------------------------------------------------------------------
// StoreDirectory Port
// ---------------------------------------------------------------------------

// StoreDirectory resolves the stores whose orders the engine synchronizes.
type StoreDirectory interface {
	// ListActive returns all stores currently enabled for synchronization
	ListActive(ctx context.Context) ([]*StoreCredential, error)

	// FindByCode returns the store with the given code, or
	// ErrStoreNotConfigured when it does not exist
	FindByCode(ctx context.Context, code string) (*StoreCredential, error)
}
