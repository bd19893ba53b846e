package queue

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")
	// ErrAlreadyTerminal is returned when cancelling or transitioning a task
	// that is completed, failed, or cancelled.
	ErrAlreadyTerminal = errors.New("task already terminal")
	// ErrInvalidTransition is returned for transitions the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrRateLimited is returned by Submit when a client exceeds its quota.
	ErrRateLimited = errors.New("submission quota exceeded")
)

// RateLimitError carries how long the client should wait.
type RateLimitError struct {
	ClientID   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: client %q, retry after %s", ErrRateLimited, e.ClientID, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func transitionError(from, to Status) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
