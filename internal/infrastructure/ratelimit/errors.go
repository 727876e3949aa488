package ratelimit

import "errors"

var (
	// ErrInvalidBudgets indicates the configured window budgets are not usable
	ErrInvalidBudgets = errors.New("ratelimit: invalid window budgets")
)
