package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilisub/internal/acquire"
	"bilisub/internal/artifacts"
	"bilisub/internal/config"
	"bilisub/internal/logging"
	"bilisub/internal/queue"
)

// BatchRequest is one CLI run.
type BatchRequest struct {
	Inputs     []string
	Formats    []string
	Options    queue.Options
	Credential *acquire.Credential
}

// BatchResult holds the final task snapshots in submission order.
type BatchResult struct {
	Items      []*queue.Item
	Report     artifacts.RunReport
	ReportPath string
}

// Failed counts tasks that did not complete.
func (r *BatchResult) Failed() int {
	return r.Report.Totals.Failed + r.Report.Totals.Cancelled
}

// RunBatch processes inputs over a private in-memory store and writes the run
// report to output_dir/report.json. Cancelling ctx interrupts running tasks;
// whatever did not finish is recorded as cancelled.
func RunBatch(ctx context.Context, cfg *config.Config, deps Deps, logger *slog.Logger, req BatchRequest, opts ...ManagerOption) (*BatchResult, error) {
	if len(req.Inputs) == 0 {
		return nil, errors.New("batch: no inputs")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	store, err := queue.OpenPath(queue.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	defer store.Close()

	mgr, err := NewManager(cfg, store, deps, logger, opts...)
	if err != nil {
		return nil, err
	}
	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Inputs))
	var submitErrs []error
	for _, input := range req.Inputs {
		item, err := mgr.Submit(ctx, Submission{
			Input:      input,
			Formats:    req.Formats,
			Options:    req.Options,
			Credential: req.Credential,
		})
		if err != nil {
			submitErrs = append(submitErrs, fmt.Errorf("%s: %w", input, err))
			continue
		}
		ids = append(ids, item.ID)
	}
	if len(ids) == 0 {
		mgr.Stop()
		return nil, errors.Join(submitErrs...)
	}

	waitErr := mgr.Wait(ctx)
	mgr.Stop()

	// Anything still active was interrupted; a batch has no restart to wait for.
	settle := context.WithoutCancel(ctx)
	items := make([]*queue.Item, 0, len(ids))
	for _, id := range ids {
		item, err := store.Get(settle, id)
		if err != nil {
			return nil, err
		}
		if item.Status.Active() {
			if cancelled, err := store.Cancel(settle, id); err == nil {
				item = cancelled
			}
		}
		items = append(items, item)
	}

	report := artifacts.BuildRunReport(cfg.Paths.OutputDir, items, time.Now())
	path, err := mgr.Layout().WriteRunReport(report)
	if err != nil {
		return nil, err
	}
	logging.NewComponentLogger(logger, "workflow").Info("batch finished",
		logging.Int("total", report.Totals.Total),
		logging.Int("completed", report.Totals.Completed),
		logging.Int("failed", report.Totals.Failed),
		logging.String("report", path),
		logging.String(logging.FieldEventType, "batch_complete"),
	)
	result := &BatchResult{Items: items, Report: report, ReportPath: path}
	if waitErr != nil {
		return result, waitErr
	}
	return result, errors.Join(submitErrs...)
}
