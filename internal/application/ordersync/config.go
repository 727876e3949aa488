package ordersync

import (
	"errors"
	"time"
)

// ErrInvalidOrchestratorConfig is returned when pass tunables are not usable.
var ErrInvalidOrchestratorConfig = errors.New("ordersync: invalid orchestrator configuration")

// OrchestratorConfig carries the tunables of one synchronization pass.
type OrchestratorConfig struct {
	// PageSize is the upstream page size requested per fetch
	PageSize int
	// MaxEmptyPages is how many consecutive empty pages end the forward
	// scan; doubled when the pass runs on a recovered (degraded) position
	MaxEmptyPages int
	// ForwardHorizonPages caps how many pages one forward scan may fetch
	ForwardHorizonPages int
	// BackwardWindowPages is how many pages behind the updated frontier the
	// status-change scan re-walks
	BackwardWindowPages int
	// MaxMalformedPages is how many undecodable pages may be skipped before
	// the pass aborts
	MaxMalformedPages int
	// FetchRetries bounds retries of one page on transient errors
	FetchRetries int
	// RetryBaseDelay is the first backoff step for transient retries,
	// doubled per attempt
	RetryBaseDelay time.Duration
	// StaleHorizon is the age past which a cached position is no longer
	// trusted without recovery; zero disables the age check
	StaleHorizon time.Duration
}

// DefaultOrchestratorConfig returns the production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PageSize:            20,
		MaxEmptyPages:       3,
		ForwardHorizonPages: 200,
		BackwardWindowPages: 10,
		MaxMalformedPages:   3,
		FetchRetries:        3,
		RetryBaseDelay:      time.Second,
		StaleHorizon:        72 * time.Hour,
	}
}

// Validate checks the tunables.
func (c *OrchestratorConfig) Validate() error {
	if c.PageSize < 1 {
		return ErrInvalidOrchestratorConfig
	}
	if c.MaxEmptyPages < 1 || c.ForwardHorizonPages < 1 {
		return ErrInvalidOrchestratorConfig
	}
	if c.BackwardWindowPages < 0 || c.MaxMalformedPages < 0 {
		return ErrInvalidOrchestratorConfig
	}
	if c.FetchRetries < 0 || c.RetryBaseDelay < 0 {
		return ErrInvalidOrchestratorConfig
	}
	if c.StaleHorizon < 0 {
		return ErrInvalidOrchestratorConfig
	}
	return nil
}
