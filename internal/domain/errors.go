package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrStateUnavailable = errors.New("agent state unavailable")
	ErrInvalidDecision  = errors.New("invalid decision")
	ErrSigningFailed    = errors.New("signing failed")
	ErrExecutionFailed  = errors.New("execution failed")
	ErrContextDone      = errors.New("context cancelled")
	ErrLockHeld         = errors.New("lock already held")
)
