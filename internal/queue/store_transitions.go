package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bilisub/internal/services"
)

// maxRunningProgress keeps 100 reserved for completion.
const maxRunningProgress = 99

// mutate applies fn to the current row under the task's lock inside a
// transaction, then writes the whole row back with a fresh updated_at.
func (s *Store) mutate(ctx context.Context, id string, fn func(item *Item) error) (*Item, error) {
	ctx = ensureContext(ctx)
	unlock := s.locks.lock(id)
	defer unlock()

	var updated *Item
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		item, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM tasks WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("load task: %w", err)
		}
		if err := fn(item); err != nil {
			return err
		}
		item.UpdatedAt = s.nextTimestamp(item.UpdatedAt)
		if err := writeItem(ctx, tx, item); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// nextTimestamp returns now, nudged forward so updated_at strictly increases
// even when the clock has not advanced.
func (s *Store) nextTimestamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func writeItem(ctx context.Context, tx *sql.Tx, item *Item) error {
	options, err := nullableJSON(item.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	result, err := nullableJSON(item.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var (
		errorKind    any
		errorMessage any
		attempts     int
	)
	if item.Error != nil {
		errorKind = string(item.Error.Kind)
		errorMessage = item.Error.Message
		attempts = item.Error.Attempts
	}
	_, err = tx.ExecContext(
		ctx,
		`UPDATE tasks
         SET video_id = ?, video_title = ?, video_duration_ms = ?, options_json = ?,
             status = ?, progress = ?, progress_message = ?, result_json = ?,
             error_kind = ?, error_message = ?, attempts = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(item.Video.ID),
		nullableString(item.Video.Title),
		item.Video.Duration.Milliseconds(),
		options,
		item.Status,
		item.Progress,
		nullableString(item.ProgressMessage),
		result,
		errorKind,
		errorMessage,
		attempts,
		formatTime(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// Start moves a pending task to processing.
func (s *Store) Start(ctx context.Context, id string) (*Item, error) {
	return s.mutate(ctx, id, func(item *Item) error {
		if item.Status != StatusPending {
			return transitionError(item.Status, StatusProcessing)
		}
		item.Status = StatusProcessing
		item.ProgressMessage = "started"
		return nil
	})
}

// SetVideo records the resolved video on an active task.
func (s *Store) SetVideo(ctx context.Context, id string, video Video) (*Item, error) {
	return s.mutate(ctx, id, func(item *Item) error {
		if item.Status.Terminal() {
			return transitionError(item.Status, item.Status)
		}
		item.Video = video
		return nil
	})
}

// UpdateProgress raises the progress of a processing task. Progress never
// decreases and stays below 100 until Complete.
func (s *Store) UpdateProgress(ctx context.Context, id string, percent float64, message string) (*Item, error) {
	return s.mutate(ctx, id, func(item *Item) error {
		if item.Status != StatusProcessing {
			return transitionError(item.Status, StatusProcessing)
		}
		percent = min(percent, maxRunningProgress)
		if percent > item.Progress {
			item.Progress = percent
		}
		if message = strings.TrimSpace(message); message != "" {
			item.ProgressMessage = message
		}
		return nil
	})
}

// Complete marks a processing task completed with its result.
func (s *Store) Complete(ctx context.Context, id string, result *Result) (*Item, error) {
	if result == nil {
		return nil, fmt.Errorf("complete %s: result is required", id)
	}
	return s.mutate(ctx, id, func(item *Item) error {
		if item.Status != StatusProcessing {
			return transitionError(item.Status, StatusCompleted)
		}
		item.Status = StatusCompleted
		item.Progress = 100
		item.ProgressMessage = "completed"
		if result.Note != "" {
			item.ProgressMessage = result.Note
		}
		item.Result = result
		return nil
	})
}

// Fail marks a processing task failed. The error kind is required and the
// recorded error is never replaced.
func (s *Store) Fail(ctx context.Context, id string, failure ItemError) (*Item, error) {
	if failure.Kind == "" {
		return nil, fmt.Errorf("fail %s: error kind is required", id)
	}
	if _, ok := services.ParseKind(string(failure.Kind)); !ok {
		return nil, fmt.Errorf("fail %s: unknown error kind %q", id, failure.Kind)
	}
	return s.mutate(ctx, id, func(item *Item) error {
		if item.Status != StatusProcessing {
			return transitionError(item.Status, StatusFailed)
		}
		item.Status = StatusFailed
		item.ProgressMessage = "failed"
		if item.Error == nil {
			errCopy := failure
			item.Error = &errCopy
		}
		return nil
	})
}

// Cancel moves an active task to cancelled.
func (s *Store) Cancel(ctx context.Context, id string) (*Item, error) {
	return s.mutate(ctx, id, func(item *Item) error {
		if item.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, item.Status)
		}
		item.Status = StatusCancelled
		item.ProgressMessage = "cancelled"
		return nil
	})
}

// ResetProcessing returns tasks left processing by a previous run to
// pending. Their progress restarts from zero.
func (s *Store) ResetProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, progress = 0, progress_message = 'requeued after restart', updated_at = ?
         WHERE status = ?`,
		StatusPending,
		formatTime(s.now()),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset processing tasks: %w", err)
	}
	return res.RowsAffected()
}
