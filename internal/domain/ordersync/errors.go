package ordersync

import "errors"

var (
	// Upstream API errors
	ErrRateLimited         = errors.New("ordersync: upstream rate limited")
	ErrAuthFailed          = errors.New("ordersync: upstream authentication failed")
	ErrUpstreamUnavailable = errors.New("ordersync: upstream temporarily unavailable")
	ErrMalformedPage       = errors.New("ordersync: malformed upstream page")

	// Position errors
	ErrPositionDrift      = errors.New("ordersync: cached position no longer brackets a plausible target")
	ErrRecoveryExhausted  = errors.New("ordersync: position recovery probe budget exhausted")
	ErrStalePositionWrite = errors.New("ordersync: position save rejected, newer position already stored")

	// Pass errors
	ErrSyncInProgress      = errors.New("ordersync: sync already in progress for store")
	ErrTooManyMalformed    = errors.New("ordersync: malformed page threshold exceeded")
	ErrStoreNotConfigured  = errors.New("ordersync: store not configured")
	ErrInvalidSyncPosition = errors.New("ordersync: invalid sync position")
)
