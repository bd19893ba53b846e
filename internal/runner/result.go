package runner

import (
	"time"

	"bilisub/internal/services"
)

type outcome uint8

const (
	outcomeOK outcome = iota
	outcomeRetryable
	outcomeFatal
)

// Result is the explicit outcome of one attempt.
type Result[T any] struct {
	Value      T
	Err        error
	RetryAfter time.Duration
	outcome    outcome
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Retryable marks err as worth another attempt. after is a server-provided
// minimum delay, or zero.
func Retryable[T any](err error, after time.Duration) Result[T] {
	return Result[T]{Err: err, RetryAfter: after, outcome: outcomeRetryable}
}

// Fatal marks err as final.
func Fatal[T any](err error) Result[T] {
	return Result[T]{Err: err, outcome: outcomeFatal}
}

// FromError classifies a conventional (value, error) return using the
// services failure kinds.
func FromError[T any](value T, err error) Result[T] {
	if err == nil {
		return Ok(value)
	}
	if services.Retryable(services.KindOf(err)) {
		after, _ := services.RetryAfterOf(err)
		return Retryable[T](err, after)
	}
	return Fatal[T](err)
}

// IsOK reports whether the attempt succeeded.
func (r Result[T]) IsOK() bool { return r.outcome == outcomeOK && r.Err == nil }

// IsRetryable reports whether the attempt may be repeated.
func (r Result[T]) IsRetryable() bool { return r.outcome == outcomeRetryable }
