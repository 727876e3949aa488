package ordersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// errPageSkipped marks a malformed page the scan steps over without
// aborting. Never escapes the orchestrator.
var errPageSkipped = errors.New("ordersync: malformed page skipped")

// Orchestrator drives one synchronization pass per store: forward scan for
// new orders, bounded backward scan for status changes, reconcile into the
// persister, position bookkeeping. Passes for the same store are
// single-flight; a pass attempted while one is running is refused with
// ErrSyncInProgress, not queued.
type Orchestrator struct {
	source    ordersync.OrderSource
	positions ordersync.PositionStore
	locator   ordersync.PositionLocator
	persister ordersync.Persister
	config    OrchestratorConfig
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool

	// sleep is swappable so tests can run retry backoff without waiting
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(
	source ordersync.OrderSource,
	positions ordersync.PositionStore,
	locator ordersync.PositionLocator,
	persister ordersync.Persister,
	config OrchestratorConfig,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		source:    source,
		positions: positions,
		locator:   locator,
		persister: persister,
		config:    config,
		logger:    logger,
		inFlight:  make(map[string]bool),
		sleep:     sleepCtx,
	}, nil
}

// SyncStore runs one full pass for a store. The returned PassResult is
// non-nil whenever a pass actually started, including failed passes;
// progress made before a failure is already persisted.
func (o *Orchestrator) SyncStore(ctx context.Context, store *ordersync.StoreCredential) (*PassResult, error) {
	if err := store.Validate(); err != nil {
		return nil, err
	}
	if !o.begin(store.Code) {
		return nil, ordersync.ErrSyncInProgress
	}
	defer o.end(store.Code)

	result := &PassResult{
		RunID:     uuid.New(),
		StoreCode: store.Code,
		StartedAt: time.Now(),
	}
	err := o.runPass(ctx, store, result)
	result.FinishedAt = time.Now()
	if err != nil {
		result.Error = err.Error()
		o.logger.Error("Sync pass failed",
			zap.String("store_code", store.Code),
			zap.String("run_id", result.RunID.String()),
			zap.Error(err),
		)
		return result, err
	}

	o.logger.Info("Sync pass finished",
		zap.String("store_code", store.Code),
		zap.String("run_id", result.RunID.String()),
		zap.Int("pages_fetched", result.PagesFetched),
		zap.Int("forward_emitted", result.ForwardEmitted),
		zap.Int("backward_emitted", result.BackwardEmitted),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("frontier_page", result.FrontierPage),
	)
	return result, nil
}

// begin marks a store as syncing; false when a pass is already running.
func (o *Orchestrator) begin(storeCode string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[storeCode] {
		return false
	}
	o.inFlight[storeCode] = true
	return true
}

func (o *Orchestrator) end(storeCode string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, storeCode)
}

// runPass executes the pass phases. Scan-level errors stop a scan but keep
// its progress; only auth failures, malformed-page overflow, persister
// failures and cancellation surface as pass errors.
func (o *Orchestrator) runPass(ctx context.Context, store *ordersync.StoreCredential, result *PassResult) error {
	latestID, err := o.persister.LatestExternalID(ctx, store.ID)
	if err != nil {
		return err
	}

	prev := o.resolvePosition(ctx, store, latestID)
	result.Recovered = prev != nil && prev.Recovered()

	pass := newPassState()

	frontier, fwdComplete, scanErr := o.forwardScan(ctx, store, latestID, result.Recovered, pass, result)
	result.ForwardComplete = fwdComplete

	// The position advances to the deepest page the forward scan observed
	// with orders; a pass with no observed orders keeps the prior frontier,
	// and an empty store records page 1.
	var next *ordersync.SyncPosition
	switch {
	case frontier != nil:
		next = ordersync.NewLivePosition(frontier)
	case prev != nil:
		next = prev
	case fwdComplete:
		next = &ordersync.SyncPosition{
			LastPage:   1,
			CapturedAt: time.Now(),
			Source:     ordersync.PositionSourceLive,
		}
	}

	// Backward scan runs against the updated frontier so the window covers
	// the pages just behind what this pass reached
	if scanErr == nil && next != nil {
		var bwdComplete bool
		bwdComplete, scanErr = o.backwardScan(ctx, store, next.LastPage, pass, result)
		result.BackwardComplete = bwdComplete
	}

	recErr := o.reconcile(ctx, store, pass, next, result)
	if scanErr != nil {
		return scanErr
	}
	return recErr
}

// resolvePosition returns the position to trust for this pass, or nil to
// start fresh from page 1. An absent, invalid or stale cached position
// triggers recovery against the latest persisted ID; a recovery failure
// degrades to a fresh start, never to a pass failure.
func (o *Orchestrator) resolvePosition(ctx context.Context, store *ordersync.StoreCredential, latestID int64) *ordersync.SyncPosition {
	pos, err := o.positions.Load(ctx, store.Code)
	if err != nil {
		o.logger.Warn("Failed to load sync position",
			zap.String("store_code", store.Code),
			zap.Error(err),
		)
		pos = nil
	}
	if pos != nil {
		if pos.Validate() == nil && !pos.StaleAfter(o.config.StaleHorizon) {
			return pos
		}
		o.logger.Info("Cached sync position stale or invalid, recovering",
			zap.String("store_code", store.Code),
			zap.Int("cached_page", pos.LastPage),
			zap.Time("captured_at", pos.CapturedAt),
		)
	}

	if latestID == 0 {
		// Nothing persisted yet; page 1 is the only sensible start
		return nil
	}

	recovered, err := o.locator.Locate(ctx, store, latestID)
	if err != nil {
		o.logger.Warn("Position recovery failed, starting from page 1",
			zap.String("store_code", store.Code),
			zap.Int64("target_id", latestID),
			zap.Error(err),
		)
		return nil
	}
	return recovered
}

// forwardScan walks pages newest-first (page 1 onward) collecting orders
// newer than latestID with the importable status, until it crosses the
// known-ID frontier, sees enough consecutive empty pages, or hits the page
// horizon. Returns the deepest page observed with orders, whether the scan
// ran to a stop condition, and any pass-fatal error.
func (o *Orchestrator) forwardScan(
	ctx context.Context,
	store *ordersync.StoreCredential,
	latestID int64,
	recovered bool,
	pass *passState,
	result *PassResult,
) (*ordersync.OrderPage, bool, error) {
	tolerance := o.config.MaxEmptyPages
	if recovered {
		// A recovered position has degraded confidence; scan further past
		// apparent gaps before concluding the history ended
		tolerance *= 2
	}

	var lastWithOrders *ordersync.OrderPage
	consecutiveEmpty := 0
	page := 1

	for scanned := 0; scanned < o.config.ForwardHorizonPages; {
		fetched, err := o.fetchPage(ctx, store, page, result)
		if errors.Is(err, errPageSkipped) {
			page++
			continue
		}
		if err != nil {
			if transient(err) {
				o.logger.Warn("Forward scan stopped early, keeping progress",
					zap.String("store_code", store.Code),
					zap.Int("page", page),
					zap.Error(err),
				)
				return lastWithOrders, false, nil
			}
			return lastWithOrders, false, err
		}
		scanned++
		result.PagesFetched++

		if fetched.Empty() {
			consecutiveEmpty++
			if consecutiveEmpty >= tolerance {
				return lastWithOrders, true, nil
			}
			page++
			continue
		}
		consecutiveEmpty = 0
		lastWithOrders = fetched

		if err := o.emitNewOrders(ctx, store, fetched, latestID, pass, result); err != nil {
			return lastWithOrders, false, err
		}

		// Everything on this page is at or below the known frontier; older
		// pages hold nothing new
		if latestID > 0 && fetched.FirstID() <= latestID {
			return lastWithOrders, true, nil
		}
		if !fetched.HasMore {
			return lastWithOrders, true, nil
		}
		page++
	}
	return lastWithOrders, true, nil
}

// emitNewOrders filters one page down to importable orders past the known
// frontier, deduplicates against the persister and the pass, and records
// the survivors.
func (o *Orchestrator) emitNewOrders(
	ctx context.Context,
	store *ordersync.StoreCredential,
	page *ordersync.OrderPage,
	latestID int64,
	pass *passState,
	result *PassResult,
) error {
	candidates := make([]ordersync.OrderSnapshot, 0, len(page.Orders))
	ids := make([]int64, 0, len(page.Orders))
	for _, order := range page.Orders {
		if order.ExternalID <= latestID || !order.Importable() || pass.has(order.ExternalID) {
			continue
		}
		candidates = append(candidates, order)
		ids = append(ids, order.ExternalID)
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, err := o.persister.Exists(ctx, store.ID, ids)
	if err != nil {
		return err
	}
	for _, order := range candidates {
		if _, known := existing[order.ExternalID]; known {
			continue
		}
		if pass.emit(order) {
			result.ForwardEmitted++
		}
	}
	return nil
}

// backwardScan re-walks the frontier page and the pages behind it looking
// for orders whose status changed since they were recorded, or that now
// show the importable status without having been persisted. The upstream
// has no updated-since feed, so this bounded re-scan is what catches
// out-of-band status flips.
func (o *Orchestrator) backwardScan(
	ctx context.Context,
	store *ordersync.StoreCredential,
	frontierPage int,
	pass *passState,
	result *PassResult,
) (bool, error) {
	// The window starts at the frontier page itself: the forward scan only
	// emits IDs past the frontier, so boundary orders whose status flipped
	// would otherwise be missed.
	start := frontierPage
	for page := start; page < start+o.config.BackwardWindowPages; page++ {
		fetched, err := o.fetchPage(ctx, store, page, result)
		if errors.Is(err, errPageSkipped) {
			continue
		}
		if err != nil {
			if transient(err) {
				o.logger.Warn("Backward scan stopped early, keeping progress",
					zap.String("store_code", store.Code),
					zap.Int("page", page),
					zap.Error(err),
				)
				return false, nil
			}
			return false, err
		}
		result.PagesFetched++

		if fetched.Empty() {
			// Past the end of the history
			return true, nil
		}

		ids := make([]int64, 0, len(fetched.Orders))
		for _, order := range fetched.Orders {
			ids = append(ids, order.ExternalID)
		}
		existing, err := o.persister.Exists(ctx, store.ID, ids)
		if err != nil {
			return false, err
		}

		for _, order := range fetched.Orders {
			if pass.has(order.ExternalID) {
				// Already emitted by the forward scan; forward wins
				continue
			}
			recorded, known := existing[order.ExternalID]
			switch {
			case known && recorded != order.Status:
				if pass.emit(order) {
					result.BackwardEmitted++
				}
			case !known && order.Importable():
				if pass.emit(order) {
					result.BackwardEmitted++
				}
			}
		}

		if !fetched.HasMore {
			return true, nil
		}
	}
	return true, nil
}

// reconcile hands the merged, deduplicated deltas to the persister and
// saves the advanced position. Runs even after a scan stopped early so
// partial progress is never thrown away.
func (o *Orchestrator) reconcile(
	ctx context.Context,
	store *ordersync.StoreCredential,
	pass *passState,
	next *ordersync.SyncPosition,
	result *PassResult,
) error {
	for _, order := range pass.merged() {
		outcome, err := o.persister.Upsert(ctx, store.ID, &order)
		if err != nil {
			return err
		}
		switch outcome {
		case ordersync.UpsertCreated:
			result.Created++
		case ordersync.UpsertUpdated:
			result.Updated++
		}
	}

	if next == nil {
		return nil
	}
	result.FrontierPage = next.LastPage
	if err := o.positions.Save(ctx, store.Code, next); err != nil {
		if errors.Is(err, ordersync.ErrStalePositionWrite) {
			o.logger.Warn("Another writer advanced the position first",
				zap.String("store_code", store.Code),
				zap.Int("page", next.LastPage),
			)
			return nil
		}
		// Orders are already persisted; the next pass recovers the
		// position from the persister if the cached one is gone
		o.logger.Error("Failed to save sync position",
			zap.String("store_code", store.Code),
			zap.Int("page", next.LastPage),
			zap.Error(err),
		)
	}
	return nil
}

// fetchPage fetches one page with bounded retries: rate-limit responses
// wait out the hint and retry the same page, transient upstream errors back
// off exponentially. Auth failures and malformed-page overflow return
// immediately; a single malformed page returns errPageSkipped.
func (o *Orchestrator) fetchPage(ctx context.Context, store *ordersync.StoreCredential, page int, result *PassResult) (*ordersync.OrderPage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		fetched, err := o.source.FetchPage(ctx, store, page)
		if err == nil {
			return fetched, nil
		}
		lastErr = err

		var delay time.Duration
		switch {
		case errors.Is(err, ordersync.ErrAuthFailed):
			return nil, err
		case errors.Is(err, ordersync.ErrMalformedPage):
			result.MalformedPages++
			if result.MalformedPages > o.config.MaxMalformedPages {
				return nil, fmt.Errorf("%w: %d pages skipped", ordersync.ErrTooManyMalformed, result.MalformedPages)
			}
			o.logger.Warn("Skipping malformed page",
				zap.String("store_code", store.Code),
				zap.Int("page", page),
				zap.Int("skipped_so_far", result.MalformedPages),
			)
			return nil, errPageSkipped
		case errors.Is(err, ordersync.ErrRateLimited):
			delay = o.config.RetryBaseDelay
			var hinted interface{ RetryAfterHint() time.Duration }
			if errors.As(err, &hinted) && hinted.RetryAfterHint() > 0 {
				delay = hinted.RetryAfterHint()
			}
		case errors.Is(err, ordersync.ErrUpstreamUnavailable):
			delay = o.config.RetryBaseDelay << attempt
		default:
			return nil, err
		}

		if attempt >= o.config.FetchRetries {
			return nil, fmt.Errorf("ordersync: page %d retries exhausted: %w", page, lastErr)
		}
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// transient reports whether a fetch error should stop only the current
// scan, keeping the pass and its progress alive.
func transient(err error) bool {
	return errors.Is(err, ordersync.ErrUpstreamUnavailable) || errors.Is(err, ordersync.ErrRateLimited)
}

// ---------------------------------------------------------------------------
// Pass State
// ---------------------------------------------------------------------------

// passState accumulates the deltas of one pass, deduplicated by external ID
// in emit order.
type passState struct {
	byID  map[int64]ordersync.OrderSnapshot
	order []int64
}

func newPassState() *passState {
	return &passState{byID: make(map[int64]ordersync.OrderSnapshot)}
}

// emit records an order once; false when the ID was already emitted.
func (p *passState) emit(order ordersync.OrderSnapshot) bool {
	if _, ok := p.byID[order.ExternalID]; ok {
		return false
	}
	p.byID[order.ExternalID] = order
	p.order = append(p.order, order.ExternalID)
	return true
}

// has reports whether the ID was already emitted this pass.
func (p *passState) has(id int64) bool {
	_, ok := p.byID[id]
	return ok
}

// merged returns the deduplicated deltas in emit order.
func (p *passState) merged() []ordersync.OrderSnapshot {
	out := make([]ordersync.OrderSnapshot, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
