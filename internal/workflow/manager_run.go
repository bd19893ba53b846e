package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bilisub/internal/acquire"
	"bilisub/internal/language"
	"bilisub/internal/logging"
	"bilisub/internal/notifications"
	"bilisub/internal/queue"
	"bilisub/internal/runner"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
)

// Start recovers tasks left behind by a previous process and begins
// processing. Tasks found processing restart from pending; every pending
// task is then admitted in creation order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	m.mu.Unlock()

	reset, err := m.store.ResetProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset interrupted tasks: %w", err)
	}
	if reset > 0 {
		m.logger.Info("requeued tasks interrupted by previous shutdown",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "tasks_requeued"),
		)
	}
	m.layout.CleanStaging(nil)

	m.runner.Start(ctx)

	pending, err := m.store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusPending}, Oldest: true})
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for _, item := range pending {
		if err := m.runner.Submit(m.job(item.ID)); err != nil && !errors.Is(err, runner.ErrDuplicate) {
			return fmt.Errorf("admit task %s: %w", item.ID, err)
		}
	}
	m.logger.Info("workflow started",
		logging.Int("concurrency", m.runner.Limit()),
		logging.Int("pending", len(pending)),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop interrupts running tasks and waits for workers to exit. Interrupted
// tasks stay processing and queued ones stay pending; both are picked up by
// the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	dropped := m.runner.Stop()
	m.logger.Info("workflow stopped",
		logging.Int("queued_left_pending", len(dropped)),
		logging.String(logging.FieldEventType, "workflow_stopped"),
	)
}

// Wait blocks until no task is queued or running.
func (m *Manager) Wait(ctx context.Context) error {
	return m.runner.Wait(ctx)
}

// Submission is one create-task request.
type Submission struct {
	ClientID string
	// QuotaKey overrides ClientID for admission quotas.
	QuotaKey    string
	Input       string
	Formats     []string
	Options     queue.Options
	CallbackURL string
	// Credential is optional and never persisted.
	Credential *acquire.Credential
}

// Submit validates a request, records it pending, and admits it to the
// runner. Empty formats and languages fall back to the configured defaults.
func (m *Manager) Submit(ctx context.Context, sub Submission) (*queue.Item, error) {
	input := strings.TrimSpace(sub.Input)
	if input == "" {
		return nil, services.Classify(services.KindInvalidInput, "submit", errors.New("input is required"))
	}
	formats := sub.Formats
	if len(formats) == 0 {
		formats = m.cfg.Subtitles.Formats
	}
	parsed, err := subtitle.ParseFormats(formats)
	if err != nil {
		return nil, services.Classify(services.KindInvalidInput, "submit", err)
	}
	normalized := make([]string, len(parsed))
	for i, f := range parsed {
		normalized[i] = string(f)
	}
	opts := sub.Options
	opts.Languages = language.NormalizeList(opts.Languages)
	if len(opts.Languages) == 0 {
		opts.Languages = append([]string(nil), m.cfg.Subtitles.Languages...)
	}
	if sub.CallbackURL != "" {
		if err := notifications.ValidateCallbackURL(sub.CallbackURL); err != nil {
			return nil, services.Classify(services.KindInvalidInput, "submit", err)
		}
	}

	item, err := m.store.Submit(ctx, queue.NewItem{
		ClientID:    sub.ClientID,
		QuotaKey:    sub.QuotaKey,
		Input:       input,
		Formats:     normalized,
		Options:     opts,
		CallbackURL: sub.CallbackURL,
	})
	if err != nil {
		return nil, err
	}
	m.stashCredential(item.ID, sub.Credential)
	if err := m.runner.Submit(m.job(item.ID)); err != nil {
		// The task stays pending and is admitted by the next Start.
		logging.WarnWithContext(m.logger, "task accepted but not admitted", "task_admit_deferred",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the task runs after the service restarts"),
		)
	}
	return item, nil
}

// Cancel marks a task cancelled and withdraws it from the runner. A running
// task aborts at its next checkpoint and its partial output is discarded.
func (m *Manager) Cancel(ctx context.Context, id string) (*queue.Item, error) {
	item, err := m.store.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	state := m.runner.Cancel(id)
	m.takeCredential(id)
	logging.WithContext(services.WithItemID(ctx, id), m.logger).Info("task cancelled",
		logging.String("runner_state", string(state)),
		logging.String(logging.FieldEventType, "task_cancelled"),
	)
	return item, nil
}

// Delete removes a terminal task and its artifacts.
func (m *Manager) Delete(ctx context.Context, id string) error {
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Status.Active() {
		return fmt.Errorf("%w: %s is %s", ErrTaskActive, id, item.Status)
	}
	return m.store.Delete(ctx, id)
}

func (m *Manager) job(id string) runner.Job {
	return runner.Job{
		ID:  id,
		Run: func(ctx context.Context) error { return m.process(ctx, id) },
	}
}
