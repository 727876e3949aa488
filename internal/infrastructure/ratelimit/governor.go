package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// ---------------------------------------------------------------------------
// Budgets
// ---------------------------------------------------------------------------

// Budgets holds the per-window request budgets and burst-smoothing spacing
// for one governor. Defaults sit deliberately below the upstream's stated
// limits so clock skew between us and the upstream cannot overrun them.
type Budgets struct {
	Second int64
	Minute int64
	Hour   int64
	Day    int64
	// MinSpacing is the minimum inter-request gap per store, enforced even
	// when every window is under budget
	MinSpacing time.Duration
	// FailOpenDelay is the fixed delay applied when the counter store is
	// unreachable, instead of blocking or failing the caller
	FailOpenDelay time.Duration
}

// DefaultBudgets returns the conservative production defaults.
func DefaultBudgets() Budgets {
	return Budgets{
		Second:        4,
		Minute:        40,
		Hour:          800,
		Day:           8000,
		MinSpacing:    250 * time.Millisecond,
		FailOpenDelay: 2 * time.Second,
	}
}

// Validate checks budgets are positive and nested sanely.
func (b *Budgets) Validate() error {
	if b.Second <= 0 || b.Minute <= 0 || b.Hour <= 0 || b.Day <= 0 {
		return ErrInvalidBudgets
	}
	if b.Minute < b.Second || b.Hour < b.Minute || b.Day < b.Hour {
		return ErrInvalidBudgets
	}
	if b.MinSpacing < 0 || b.FailOpenDelay < 0 {
		return ErrInvalidBudgets
	}
	return nil
}

// windows expands the budgets into the four concrete windows.
func (b *Budgets) windows() [4]Window {
	return [4]Window{
		{Kind: WindowSecond, Length: time.Second, Budget: b.Second},
		{Kind: WindowMinute, Length: time.Minute, Budget: b.Minute},
		{Kind: WindowHour, Length: time.Hour, Budget: b.Hour},
		{Kind: WindowDay, Length: 24 * time.Hour, Budget: b.Day},
	}
}

// ---------------------------------------------------------------------------
// Governor
// ---------------------------------------------------------------------------

// Governor implements ordersync.RateGovernor over a shared CounterStore.
// Callers are delayed, never failed: the only error Acquire returns is the
// caller's own context expiring.
type Governor struct {
	counters CounterStore
	budgets  Budgets
	logger   *zap.Logger

	// lastRequest tracks per-store spacing reservations in-process
	mu          sync.Mutex
	lastRequest map[string]time.Time

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGovernor creates a governor over the given counter store.
func NewGovernor(counters CounterStore, budgets Budgets, logger *zap.Logger) (*Governor, error) {
	if err := budgets.Validate(); err != nil {
		return nil, err
	}
	return &Governor{
		counters:    counters,
		budgets:     budgets,
		logger:      logger,
		lastRequest: make(map[string]time.Time),
		now:         time.Now,
		sleep:       sleepCtx,
	}, nil
}

// Acquire blocks until one upstream request for the store may proceed.
// It first reserves a spacing slot, then spends one unit in each of the
// four windows, sleeping out any window that is over budget.
func (g *Governor) Acquire(ctx context.Context, storeCode string) error {
	if err := g.sleep(ctx, g.reserveSpacing(storeCode)); err != nil {
		return err
	}

	windows := g.budgets.windows()
	for {
		wait, err := g.spend(ctx, storeCode, windows)
		if err != nil {
			// Counter store down: fail open with a fixed conservative delay
			// rather than blocking forever or crashing the scan.
			g.logger.Warn("Rate counter store unavailable, failing open",
				zap.String("store_code", storeCode),
				zap.Duration("delay", g.budgets.FailOpenDelay),
				zap.Error(err),
			)
			return g.sleep(ctx, g.budgets.FailOpenDelay)
		}
		if wait <= 0 {
			return nil
		}

		g.logger.Debug("Rate window exhausted, delaying request",
			zap.String("store_code", storeCode),
			zap.Duration("wait", wait),
		)
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// spend increments every window's counter and returns the longest wait
// until an exhausted window resets, 0 when all windows are under budget.
// Increments past the budget are harmless: they only ever make the governor
// more conservative within the same bucket.
func (g *Governor) spend(ctx context.Context, storeCode string, windows [4]Window) (time.Duration, error) {
	now := g.now()
	var wait time.Duration
	for _, w := range windows {
		count, err := g.counters.Incr(ctx, counterKey(storeCode, w, now), w.Length+ttlMargin)
		if err != nil {
			return 0, err
		}
		if count > w.Budget {
			if reset := w.untilReset(now); reset > wait {
				wait = reset
			}
		}
	}
	return wait, nil
}

// reserveSpacing claims the next admission slot for the store and returns
// how long the caller must sleep to honor it. Reserving under the mutex
// keeps concurrent callers from sharing one slot.
func (g *Governor) reserveSpacing(storeCode string) time.Duration {
	if g.budgets.MinSpacing <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	slot := g.lastRequest[storeCode].Add(g.budgets.MinSpacing)
	if slot.Before(now) {
		slot = now
	}
	g.lastRequest[storeCode] = slot
	return slot.Sub(now)
}

// Status reports current bucket counts for all four windows.
func (g *Governor) Status(ctx context.Context, storeCode string) (*ordersync.RateLimitStatus, error) {
	now := g.now()
	windows := g.budgets.windows()

	status := &ordersync.RateLimitStatus{StoreCode: storeCode}
	slots := map[WindowKind]*ordersync.WindowStatus{
		WindowSecond: &status.Second,
		WindowMinute: &status.Minute,
		WindowHour:   &status.Hour,
		WindowDay:    &status.Day,
	}
	for _, w := range windows {
		count, err := g.counters.Get(ctx, counterKey(storeCode, w, now))
		if err != nil {
			return nil, err
		}
		slots[w.Kind].Count = count
		slots[w.Kind].Limit = w.Budget
	}
	return status, nil
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ensure Governor implements the domain port
var _ ordersync.RateGovernor = (*Governor)(nil)
