package runner

import (
	"context"
	"log/slog"
	"time"

	"bilisub/internal/logging"
	"bilisub/internal/services"
)

// Caller implements acquire.Gate: each collaborator call runs under the
// retry policy, classified through the services failure kinds. Network
// pacing happens below it, in PacedTransport.
type Caller struct {
	policy Policy
	logger *slog.Logger
}

// NewCaller builds a gate around policy.
func NewCaller(policy Policy, logger *slog.Logger) *Caller {
	return &Caller{policy: policy, logger: logging.NewComponentLogger(logger, "runner")}
}

// Do runs fn with retries. endpoint labels log lines.
func (c *Caller) Do(ctx context.Context, endpoint string, fn func(ctx context.Context) error) error {
	policy := c.policy
	logger := logging.WithContext(ctx, c.logger)
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "retrying call",
			"call_retry",
			logging.String("endpoint", endpoint),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.String("kind", string(services.KindOf(err))),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the call will be retried automatically"),
			logging.String(logging.FieldImpact, "item processing is delayed"),
		)
		if userHook != nil {
			userHook(attempt, delay, err)
		}
	}
	_, err := Retry(ctx, policy, func(ctx context.Context, _ int) Result[struct{}] {
		return FromError(struct{}{}, fn(ctx))
	})
	return err
}
