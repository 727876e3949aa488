package ordersync

import "github.com/google/uuid"

// ---------------------------------------------------------------------------
// Store Credential
// ---------------------------------------------------------------------------

// StoreCredential identifies one upstream store and carries what the engine
// needs to call its API. Credentials are owned by configuration management
// and are read-only to the engine.
type StoreCredential struct {
	// ID is the local store identifier
	ID uuid.UUID
	// Code is the short unique store code (used in counter and cache keys)
	Code string
	// Name is the display name
	Name string
	// APIBaseURL is the upstream API base endpoint for this store
	APIBaseURL string
	// APIToken is the bearer token for the upstream API
	APIToken string
	// Active indicates whether the store participates in sync cycles
	Active bool
}

// Validate checks the credential carries enough to reach the upstream.
func (c *StoreCredential) Validate() error {
	if c.Code == "" || c.APIBaseURL == "" || c.APIToken == "" {
		return ErrStoreNotConfigured
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rate Limit Status
// ---------------------------------------------------------------------------

// WindowStatus is one rate window's current consumption vs its budget.
type WindowStatus struct {
	// Count is the number of requests recorded in the current bucket
	Count int64 `json:"count"`
	// Limit is the configured budget for the window
	Limit int64 `json:"limit"`
}

// RateLimitStatus reports the four nested window counters for one store.
// Consumed by dashboards; not used by the engine's own control flow.
type RateLimitStatus struct {
	StoreCode string       `json:"store_code"`
	Second    WindowStatus `json:"second"`
	Minute    WindowStatus `json:"minute"`
	Hour      WindowStatus `json:"hour"`
	Day       WindowStatus `json:"day"`
}
