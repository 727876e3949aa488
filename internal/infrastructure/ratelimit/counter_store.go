package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Windows
// ---------------------------------------------------------------------------

// WindowKind names one of the four nested rate windows.
type WindowKind string

const (
	WindowSecond WindowKind = "second"
	WindowMinute WindowKind = "minute"
	WindowHour   WindowKind = "hour"
	WindowDay    WindowKind = "day"
)

// Window is one fixed-length rate window with its budget.
type Window struct {
	Kind   WindowKind
	Length time.Duration
	Budget int64
}

// bucket returns the fixed bucket index the given instant falls into.
func (w Window) bucket(now time.Time) int64 {
	return now.Unix() / int64(w.Length/time.Second)
}

// untilReset returns how long until the current bucket rolls over.
func (w Window) untilReset(now time.Time) time.Duration {
	elapsed := time.Duration(now.Unix()%int64(w.Length/time.Second)) * time.Second
	return w.Length - elapsed
}

// counterKey builds the shared counter key for a store, window and bucket.
// Keyed by bucket index so counters expire naturally and are never reused.
func counterKey(storeCode string, w Window, now time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", storeCode, w.Kind, w.bucket(now))
}

// ttlMargin keeps a counter alive slightly past its window so a status
// query at the window edge still sees it.
const ttlMargin = 5 * time.Second

// ---------------------------------------------------------------------------
// CounterStore Port
// ---------------------------------------------------------------------------

// CounterStore is the process-external counter backend shared by all engine
// instances. Incr must be atomic so two concurrent instances cannot
// double-spend a window budget.
type CounterStore interface {
	// Incr atomically increments the counter at key, creating it with the
	// given TTL on first touch, and returns the post-increment value
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the current counter value, 0 when absent
	Get(ctx context.Context, key string) (int64, error)
}
