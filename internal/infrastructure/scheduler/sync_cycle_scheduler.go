package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	syncapp "github.com/fulfillment/backoffice/internal/application/ordersync"
	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

// ---------------------------------------------------------------------------
// SyncCycleSchedulerConfig
// ---------------------------------------------------------------------------

// SyncCycleSchedulerConfig holds configuration for the sync cycle scheduler
type SyncCycleSchedulerConfig struct {
	// Enabled indicates if the scheduler is enabled
	Enabled bool
	// CycleInterval is the time between the start of consecutive cycles
	CycleInterval time.Duration
	// StoreCooldown is the pause between two stores within one cycle
	StoreCooldown time.Duration
	// PassTimeout is the maximum time one store's pass may run
	PassTimeout time.Duration
	// MaxHistory bounds the retained run history
	MaxHistory int
}

// DefaultSyncCycleSchedulerConfig returns default configuration
func DefaultSyncCycleSchedulerConfig() SyncCycleSchedulerConfig {
	return SyncCycleSchedulerConfig{
		Enabled:       true,
		CycleInterval: 5 * time.Minute,
		StoreCooldown: 10 * time.Second,
		PassTimeout:   15 * time.Minute,
		MaxHistory:    100,
	}
}

// Validate validates the configuration
func (c *SyncCycleSchedulerConfig) Validate() error {
	if c.CycleInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.StoreCooldown < 0 {
		return ErrInvalidConfig
	}
	if c.PassTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxHistory <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncRunner Interface
// ---------------------------------------------------------------------------

// SyncRunner runs one synchronization pass for one store. Implemented by the
// application layer's orchestrator.
type SyncRunner interface {
	SyncStore(ctx context.Context, store *ordersync.StoreCredential) (*syncapp.PassResult, error)
}

// ---------------------------------------------------------------------------
// SyncCycleScheduler
// ---------------------------------------------------------------------------

// SyncCycleScheduler drives periodic synchronization cycles: on each tick it
// walks the active stores sequentially, runs one pass per store, and pauses
// between stores. A store still busy from the previous cycle is skipped, not
// queued. Recent pass results are retained for the status endpoint.
type SyncCycleScheduler struct {
	config SyncCycleSchedulerConfig
	runner SyncRunner
	stores ordersync.StoreDirectory
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	historyMu sync.RWMutex
	history   []*syncapp.PassResult
}

// NewSyncCycleScheduler creates a new sync cycle scheduler
func NewSyncCycleScheduler(config SyncCycleSchedulerConfig, runner SyncRunner, stores ordersync.StoreDirectory, logger *zap.Logger) (*SyncCycleScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SyncCycleScheduler{
		config:  config,
		runner:  runner,
		stores:  stores,
		logger:  logger,
		history: make([]*syncapp.PassResult, 0, config.MaxHistory),
	}, nil
}

// Start starts the cycle loop. The first cycle runs immediately.
func (s *SyncCycleScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Sync cycle scheduler started",
		zap.Duration("cycle_interval", s.config.CycleInterval),
		zap.Duration("store_cooldown", s.config.StoreCooldown),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *SyncCycleScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync cycle scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync cycle scheduler stop timed out")
		return ctx.Err()
	}
}

// loop runs cycles until the context is cancelled.
func (s *SyncCycleScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CycleInterval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle runs one synchronization cycle over all active stores. Exported
// so an operator endpoint can trigger a cycle out of schedule.
func (s *SyncCycleScheduler) RunCycle(ctx context.Context) {
	stores, err := s.stores.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list active stores for sync cycle", zap.Error(err))
		return
	}
	if len(stores) == 0 {
		s.logger.Debug("No active stores, skipping sync cycle")
		return
	}

	s.logger.Info("Sync cycle starting", zap.Int("stores", len(stores)))

	for i, store := range stores {
		// Cancellation is honored between stores; a pass in flight finishes
		// or fails on its own context
		if ctx.Err() != nil {
			s.logger.Info("Sync cycle cancelled",
				zap.Int("completed_stores", i),
				zap.Int("total_stores", len(stores)),
			)
			return
		}

		s.runStore(ctx, store)

		if i < len(stores)-1 && s.config.StoreCooldown > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.StoreCooldown):
			}
		}
	}
}

// runStore runs one pass and records its result.
func (s *SyncCycleScheduler) runStore(ctx context.Context, store *ordersync.StoreCredential) {
	passCtx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
	defer cancel()

	result, err := s.runner.SyncStore(passCtx, store)
	if errors.Is(err, ordersync.ErrSyncInProgress) {
		// Previous cycle still busy with this store; skip, never queue
		s.logger.Warn("Store still syncing from a previous cycle, skipped",
			zap.String("store_code", store.Code),
		)
		return
	}
	if result != nil {
		s.addToHistory(result)
	}
	if err != nil {
		s.logger.Error("Store sync pass failed",
			zap.String("store_code", store.Code),
			zap.Error(err),
		)
	}
}

// addToHistory prepends a pass result, trimming to the configured bound.
func (s *SyncCycleScheduler) addToHistory(result *syncapp.PassResult) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]*syncapp.PassResult{result}, s.history...)
	if len(s.history) > s.config.MaxHistory {
		s.history = s.history[:s.config.MaxHistory]
	}
}

// History returns the most recent pass results, newest first.
func (s *SyncCycleScheduler) History(limit int) []*syncapp.PassResult {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]*syncapp.PassResult, limit)
	copy(result, s.history[:limit])
	return result
}

// HistoryForStore returns recent pass results for one store, newest first.
func (s *SyncCycleScheduler) HistoryForStore(storeCode string, limit int) []*syncapp.PassResult {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]*syncapp.PassResult, 0, limit)
	for _, r := range s.history {
		if r.StoreCode == storeCode {
			result = append(result, r)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result
}
