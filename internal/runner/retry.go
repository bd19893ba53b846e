package runner

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"bilisub/internal/config"
)

// Policy controls Retry.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	// Rand returns a value in [0,1) for jitter. Defaults to math/rand/v2.
	Rand func() float64
	// Sleep waits for d or until ctx ends. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// PolicyFromConfig builds the default policy from runner settings.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxAttempts: cfg.Runner.RetryAttempts,
		Initial:     cfg.BackoffInitial(),
		Max:         cfg.BackoffMax(),
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// exponential growth capped at Max, with equal jitter so the delay lies in
// [d/2, d).
func (p Policy) Backoff(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	half := d / 2
	return half + time.Duration(random()*float64(d-half))
}

// AttemptError records how many attempts were made before giving up. Its
// message is the last attempt's error, verbatim.
type AttemptError struct {
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *AttemptError) Error() string { return e.Err.Error() }

func (e *AttemptError) Unwrap() error { return e.Err }

// AttemptsOf returns the attempt count recorded on err, or 1 for a plain error.
func AttemptsOf(err error) int {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	if err == nil {
		return 0
	}
	return 1
}

// Retry runs fn until it succeeds, returns a fatal result, or MaxAttempts is
// spent. Cancellation of ctx ends the loop with the context's cause.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) Result[T]) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}
		res := fn(ctx, attempt)
		if res.IsOK() {
			return res.Value, nil
		}
		if ctx.Err() != nil {
			return zero, context.Cause(ctx)
		}
		if !res.IsRetryable() {
			return zero, &AttemptError{Attempts: attempt, Err: res.Err}
		}
		if attempt >= maxAttempts {
			return zero, &AttemptError{Attempts: attempt, Exhausted: true, Err: res.Err}
		}
		delay := max(p.Backoff(attempt), res.RetryAfter)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, res.Err)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
