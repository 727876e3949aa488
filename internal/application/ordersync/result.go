package ordersync

import (
	"time"

	"github.com/google/uuid"
)

// PassResult summarizes one synchronization pass for a single store. The
// scheduler retains recent results for the operational status endpoint.
type PassResult struct {
	// RunID identifies this pass
	RunID uuid.UUID `json:"run_id"`
	// StoreCode is the store the pass ran for
	StoreCode string `json:"store_code"`
	// StartedAt and FinishedAt bound the pass wall-clock time
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Recovered is true when the pass ran on a recovered (degraded) position
	Recovered bool `json:"recovered"`
	// FrontierPage is the page the updated position points at
	FrontierPage int `json:"frontier_page"`
	// PagesFetched counts upstream pages fetched across both scans
	PagesFetched int `json:"pages_fetched"`
	// MalformedPages counts pages skipped for an unexpected response shape
	MalformedPages int `json:"malformed_pages"`
	// ForwardEmitted and BackwardEmitted count deltas per scan phase
	ForwardEmitted  int `json:"forward_emitted"`
	BackwardEmitted int `json:"backward_emitted"`
	// Created and Updated count persister outcomes after the merge
	Created int `json:"created"`
	Updated int `json:"updated"`
	// ForwardComplete and BackwardComplete are false when the scan stopped
	// early on an error; progress made before the stop is kept either way
	ForwardComplete  bool `json:"forward_complete"`
	BackwardComplete bool `json:"backward_complete"`
	// Error carries the pass-level failure, empty on success
	Error string `json:"error,omitempty"`
}

// Emitted returns the total number of deltas handed to the persister.
func (r *PassResult) Emitted() int {
	return r.ForwardEmitted + r.BackwardEmitted
}

// Failed returns true when the pass ended with a pass-level error.
func (r *PassResult) Failed() bool {
	return r.Error != ""
}
