package position

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// defaultMaxProbes bounds one locate call so the procedure always
// terminates, even against a pathological upstream.
const defaultMaxProbes = 100

// ---------------------------------------------------------------------------
// Recovery
// ---------------------------------------------------------------------------

// Recovery implements ordersync.PositionLocator. Given a target order ID
// and no trustworthy cached position, it finds the upstream page holding
// that ID in two phases: exponential range-finding (pages 1, 2, 4, 8, …)
// until a probe brackets or overshoots the target, then binary search
// inside the bracketing interval. Every probe passes through the shared
// OrderSource and is therefore rate-governed.
type Recovery struct {
	source    ordersync.OrderSource
	maxProbes int
	logger    *zap.Logger
}

// NewRecovery creates a recovery locator with the default probe budget.
func NewRecovery(source ordersync.OrderSource, logger *zap.Logger) *Recovery {
	return &Recovery{
		source:    source,
		maxProbes: defaultMaxProbes,
		logger:    logger,
	}
}

// probeState tracks the probe budget and the nearest page seen so far,
// which becomes the degraded answer when the exact ID is gone upstream.
type probeState struct {
	used         int
	bestPage     *ordersync.OrderPage
	bestDistance int64
}

// Locate finds the page containing targetID. When the ID no longer exists
// upstream the nearest probed page is returned instead; either way the
// result is tagged PositionSourceRecovered so the orchestrator widens its
// subsequent scan. ErrPositionDrift is returned when the upstream has no
// orders at all; ErrRecoveryExhausted when the probe budget runs out.
func (r *Recovery) Locate(ctx context.Context, store *ordersync.StoreCredential, targetID int64) (*ordersync.SyncPosition, error) {
	if targetID <= 0 {
		return nil, fmt.Errorf("%w: non-positive target ID %d", ordersync.ErrPositionDrift, targetID)
	}

	state := &probeState{bestDistance: -1}

	// Phase 1: exponential range-finding. left is the newest probed page
	// still entirely above the target; right the oldest probed page
	// entirely below it.
	left := 0
	right := 0
	for page := 1; ; page *= 2 {
		fetched, err := r.probe(ctx, store, page, targetID, state)
		if err != nil {
			return nil, err
		}

		if fetched.Empty() {
			if page == 1 {
				return nil, fmt.Errorf("%w: upstream has no orders", ordersync.ErrPositionDrift)
			}
			// Ran off the end of the history; the target page is earlier
			right = page
			break
		}
		if fetched.Brackets(targetID) {
			return r.finish(store, targetID, fetched, state), nil
		}
		if fetched.FirstID() < targetID {
			if page == 1 {
				// Target is newer than the newest order; page 1 is as
				// close as it gets
				return r.finishNearest(store, targetID, state)
			}
			right = page
			break
		}
		// Whole page is newer than the target; keep going deeper
		left = page
	}
	if right-left <= 1 {
		return r.finishNearest(store, targetID, state)
	}

	// Phase 2: binary search inside (left, right)
	for right-left > 1 {
		mid := left + (right-left)/2
		fetched, err := r.probe(ctx, store, mid, targetID, state)
		if err != nil {
			return nil, err
		}

		switch {
		case fetched.Empty() || fetched.FirstID() < targetID:
			right = mid
		case fetched.Brackets(targetID):
			return r.finish(store, targetID, fetched, state), nil
		default:
			left = mid
		}
	}
	return r.finishNearest(store, targetID, state)
}

// probe fetches one page, spending probe budget and tracking the nearest
// page to the target.
func (r *Recovery) probe(ctx context.Context, store *ordersync.StoreCredential, page int, targetID int64, state *probeState) (*ordersync.OrderPage, error) {
	if state.used >= r.maxProbes {
		return nil, fmt.Errorf("%w: %d probes used", ordersync.ErrRecoveryExhausted, state.used)
	}
	state.used++

	fetched, err := r.source.FetchPage(ctx, store, page)
	if err != nil {
		return nil, err
	}
	state.observe(fetched, targetID)
	return fetched, nil
}

// finish builds the recovered position from the page that brackets the
// target.
func (r *Recovery) finish(store *ordersync.StoreCredential, targetID int64, page *ordersync.OrderPage, state *probeState) *ordersync.SyncPosition {
	exact := page.Contains(targetID)
	r.logger.Info("Recovered sync position",
		zap.String("store_code", store.Code),
		zap.Int64("target_id", targetID),
		zap.Int("page", page.Page),
		zap.Bool("exact", exact),
		zap.Int("probes", state.used),
	)
	return recoveredPosition(page)
}

// finishNearest returns the nearest probed page when no page brackets the
// target anymore.
func (r *Recovery) finishNearest(store *ordersync.StoreCredential, targetID int64, state *probeState) (*ordersync.SyncPosition, error) {
	if state.bestPage == nil {
		return nil, fmt.Errorf("%w: no candidate page for ID %d", ordersync.ErrPositionDrift, targetID)
	}
	r.logger.Warn("Target order ID not found upstream, using nearest page",
		zap.String("store_code", store.Code),
		zap.Int64("target_id", targetID),
		zap.Int("nearest_page", state.bestPage.Page),
		zap.Int64("distance", state.bestDistance),
		zap.Int("probes", state.used),
	)
	return recoveredPosition(state.bestPage), nil
}

// observe records a probed page as a nearest-page candidate.
func (s *probeState) observe(page *ordersync.OrderPage, targetID int64) {
	if page.Empty() {
		return
	}
	d := distance(page, targetID)
	if s.bestDistance < 0 || d < s.bestDistance {
		s.bestDistance = d
		s.bestPage = page
	}
}

// distance measures how far targetID sits outside the page's ID range,
// 0 when bracketed.
func distance(page *ordersync.OrderPage, targetID int64) int64 {
	if targetID > page.FirstID() {
		return targetID - page.FirstID()
	}
	if targetID < page.LastID() {
		return page.LastID() - targetID
	}
	return 0
}

// recoveredPosition tags a page as a recovery result.
func recoveredPosition(page *ordersync.OrderPage) *ordersync.SyncPosition {
	return &ordersync.SyncPosition{
		LastPage:   page.Page,
		FirstID:    page.FirstID(),
		LastID:     page.LastID(),
		CapturedAt: time.Now(),
		Source:     ordersync.PositionSourceRecovered,
	}
}

// Ensure Recovery implements the domain port
var _ ordersync.PositionLocator = (*Recovery)(nil)
