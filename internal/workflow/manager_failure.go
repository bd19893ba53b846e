package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bilisub/internal/logging"
	"bilisub/internal/queue"
	"bilisub/internal/runner"
	"bilisub/internal/services"
)

// handleFailure settles a run that did not complete. The context's cause
// decides: a cancel leaves the already-cancelled task alone, a timeout fails
// it with kind timeout, and a shutdown leaves it processing for the next
// start. Any other error fails the task with its classified kind.
func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, item *queue.Item, runErr error) error {
	cause := runErr
	if ctx.Err() != nil {
		cause = context.Cause(ctx)
	}
	persistCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(cause, runner.ErrCancelled):
		if _, err := m.store.Cancel(persistCtx, item.ID); err != nil && !errors.Is(err, queue.ErrAlreadyTerminal) {
			logger.Warn("failed to persist cancellation", logging.Error(err))
		}
		logger.Info("task aborted after cancel", logging.String(logging.FieldEventType, "task_aborted"))
		m.checkQueueCompletion(persistCtx)
		return cause

	case errors.Is(cause, runner.ErrItemTimeout):
		failure := queue.ItemError{
			Kind:     services.KindTimeout,
			Message:  fmt.Sprintf("task exceeded its %s time budget", m.cfg.ItemTimeout()),
			Attempts: runner.AttemptsOf(runErr),
		}
		return m.fail(persistCtx, logger, item, failure, cause)

	case ctx.Err() != nil:
		logger.Info("task interrupted by shutdown; it will be requeued on restart",
			logging.String(logging.FieldEventType, "task_interrupted"),
		)
		return cause

	case errors.Is(runErr, queue.ErrAlreadyTerminal), errors.Is(runErr, errNotProcessing):
		logger.Info("task settled elsewhere during processing", logging.Error(runErr))
		return nil
	}

	failure := queue.ItemError{
		Kind:     services.KindOf(runErr),
		Message:  failureMessage(runErr),
		Attempts: runner.AttemptsOf(runErr),
	}
	return m.fail(persistCtx, logger, item, failure, runErr)
}

func (m *Manager) fail(ctx context.Context, logger *slog.Logger, item *queue.Item, failure queue.ItemError, cause error) error {
	m.setLastError(cause)
	failed, err := m.store.Fail(ctx, item.ID, failure)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyTerminal) {
			logger.Info("task already terminal; failure not recorded", logging.Error(cause))
			return cause
		}
		logging.ErrorWithContext(logger, "failed to persist task failure", "task_fail_persist",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir database access"),
		)
		return err
	}
	logging.ErrorWithContext(logger, "task failed", "task_failed",
		logging.String("kind", string(failure.Kind)),
		logging.Int("attempts", failure.Attempts),
		logging.String("error_message", failure.Message),
		logging.String(logging.FieldErrorHint, hintFor(failure.Kind)),
	)
	m.setLastItem(failed)
	m.notifyFinished(ctx, failed)
	m.checkQueueCompletion(ctx)
	return cause
}

// failureMessage is the last attempt's error verbatim when a retry loop
// produced it, else the whole wrapped chain.
func failureMessage(err error) string {
	var ae *runner.AttemptError
	if errors.As(err, &ae) && ae.Err != nil {
		return strings.TrimSpace(ae.Err.Error())
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "task failed without error detail"
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindAuthRejected:
		return "supply valid BILI_SESSDATA/BILI_JCT/BILI_BUVID3 credentials"
	case services.KindNotFound:
		return "check the video id or URL"
	case services.KindRateLimited:
		return "raise runner.request_interval_seconds or lower concurrency"
	case services.KindRecognitionFailure:
		return "check the whisper binary and model with bilisub doctor"
	case services.KindTimeout:
		return "raise runner.item_timeout_seconds for long videos"
	case services.KindTransientNetwork:
		return "check network connectivity or platform.proxy"
	default:
		return "check logs for details"
	}
}
