package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("lost concurrent update race")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrInvariantViolation marks allocation math gone wrong. It is a
	// programming error: never retried, never softened for the caller.
	ErrInvariantViolation = errors.New("allocation invariant violated")
)
