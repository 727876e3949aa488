package ordersync

import "time"

// ---------------------------------------------------------------------------
// Sync Position
// ---------------------------------------------------------------------------

// PositionSource tags how a SyncPosition was obtained.
type PositionSource string

const (
	// PositionSourceLive means the position was recorded during a normal scan
	PositionSourceLive PositionSource = "live"
	// PositionSourceRecovered means the position was re-derived by the
	// recovery search and should be treated with degraded confidence
	PositionSourceRecovered PositionSource = "recovered"
)

// IsValid returns true if the source tag is valid.
func (s PositionSource) IsValid() bool {
	switch s {
	case PositionSourceLive, PositionSourceRecovered:
		return true
	default:
		return false
	}
}

// SyncPosition records how far a sync pass progressed for one store: the
// last page fetched and the inclusive ID range observed on it. The position
// is advisory, never authoritative; recovery must be able to re-derive a
// trustworthy page when the cached claim cannot be validated.
type SyncPosition struct {
	// LastPage is the 1-indexed upstream page the previous pass last fetched
	LastPage int `json:"lastPage"`
	// FirstID is the highest (newest) external ID observed on LastPage
	FirstID int64 `json:"firstId"`
	// LastID is the lowest (oldest) external ID observed on LastPage
	LastID int64 `json:"lastId"`
	// CapturedAt is when the position was recorded
	CapturedAt time.Time `json:"timestamp"`
	// Source tags whether the position came from a live scan or recovery
	Source PositionSource `json:"source"`
}

// NewLivePosition builds a live-scan position from an observed page.
func NewLivePosition(page *OrderPage) *SyncPosition {
	return &SyncPosition{
		LastPage:   page.Page,
		FirstID:    page.FirstID(),
		LastID:     page.LastID(),
		CapturedAt: time.Now(),
		Source:     PositionSourceLive,
	}
}

// Validate checks the position's internal invariants. The upstream sorts
// descending by ID, so FirstID must not be below LastID.
func (p *SyncPosition) Validate() error {
	if p.LastPage < 1 {
		return ErrInvalidSyncPosition
	}
	if p.FirstID < p.LastID {
		return ErrInvalidSyncPosition
	}
	if !p.Source.IsValid() {
		return ErrInvalidSyncPosition
	}
	return nil
}

// Brackets returns true if id falls within the position's inclusive ID range.
func (p *SyncPosition) Brackets(id int64) bool {
	return p.LastID <= id && id <= p.FirstID
}

// StaleAfter returns true if the position was captured longer ago than the
// given horizon and should no longer be trusted without re-validation.
func (p *SyncPosition) StaleAfter(horizon time.Duration) bool {
	if horizon <= 0 {
		return false
	}
	return time.Since(p.CapturedAt) > horizon
}

// Recovered returns true if the position was produced by recovery rather
// than a live scan.
func (p *SyncPosition) Recovered() bool {
	return p.Source == PositionSourceRecovered
}

// NewerThan reports whether this position was captured after other.
// A nil other always compares older.
func (p *SyncPosition) NewerThan(other *SyncPosition) bool {
	if other == nil {
		return true
	}
	return p.CapturedAt.After(other.CapturedAt)
}
