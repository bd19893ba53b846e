package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilisub/internal/acquire"
	"bilisub/internal/artifacts"
	"bilisub/internal/logging"
	"bilisub/internal/queue"
	"bilisub/internal/runner"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
)

// Progress bands for each pipeline stage.
const (
	progressStarted    = 5
	progressAcquireLow = 10
	progressAcquireTop = 60
	progressSynth      = 70
	progressRendered   = 90
)

const (
	stageAcquire = "acquire"
	stageSynth   = "synthesize"
	stageRender  = "render"
	stagePersist = "persist"
)

// errNotProcessing stops a run whose task left processing underneath it.
var errNotProcessing = errors.New("task is no longer processing")

// process runs one task end to end. Errors are recorded on the task; the
// returned error only informs the runner's log.
func (m *Manager) process(ctx context.Context, id string) error {
	ctx = services.WithRequestID(services.WithItemID(ctx, id), uuid.NewString())
	logger := logging.WithContext(ctx, m.logger)

	item, err := m.store.Start(ctx, id)
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyTerminal) || errors.Is(err, queue.ErrNotFound) {
			logger.Debug("task left pending before admission", logging.Error(err))
			m.takeCredential(id)
			return nil
		}
		m.setLastError(err)
		return err
	}
	m.setLastItem(item)
	m.onItemStarted(ctx)
	started := time.Now()
	logger.Info("task started",
		logging.String("input", item.Input),
		logging.String("formats", strings.Join(item.Formats, ",")),
		logging.String(logging.FieldEventType, "task_start"),
	)

	var staging *artifacts.Staging
	result, err := m.run(ctx, logger, item, &staging)
	if err == nil {
		var done *queue.Item
		done, err = m.store.Complete(ctx, id, result)
		if err == nil {
			logger.Info("task completed",
				logging.Int("authored", result.Stats.Authored),
				logging.Int("recognized", result.Stats.Recognized),
				logging.Int("files", len(result.Files)),
				logging.Duration("elapsed", time.Since(started)),
				logging.String(logging.FieldEventType, "task_complete"),
			)
			m.setLastItem(done)
			m.notifyFinished(ctx, done)
			m.checkQueueCompletion(ctx)
			return nil
		}
		// Cancelled after commit: the task is terminal, the files must go.
		if removeErr := m.layout.Remove(id); removeErr != nil {
			logger.Warn("failed to remove output of cancelled task", logging.Error(removeErr))
		}
	}
	if staging != nil {
		if discardErr := staging.Discard(); discardErr != nil {
			logger.Warn("failed to discard staging directory", logging.Error(discardErr))
		}
	}
	return m.handleFailure(ctx, logger, item, err)
}

// run executes acquisition, synthesis, and rendering. *staging is set as
// soon as a staging directory exists so the caller can discard it.
func (m *Manager) run(ctx context.Context, logger *slog.Logger, item *queue.Item, staging **artifacts.Staging) (*queue.Result, error) {
	id := item.ID
	cred := m.takeCredential(id)
	m.progress(ctx, logger, id, progressStarted, "acquiring subtitles")

	opts := item.Options
	hint := opts.LanguageHint
	if hint == "" {
		hint = m.cfg.Recognition.Language
	}
	model := opts.Model
	if model == "" {
		model = m.cfg.Recognition.Model
	}
	acqCtx := services.WithStage(ctx, stageAcquire)
	outcome, err := m.strategy.Acquire(acqCtx, acquire.Request{
		Input:        item.Input,
		Credential:   cred,
		Languages:    opts.Languages,
		Fallback:     opts.UseRecognition && m.cfg.Recognition.Enabled,
		Model:        model,
		LanguageHint: hint,
		KeepAudio:    opts.SaveAudio || m.cfg.Recognition.SaveAudio,
		Progress: func(message string, fraction float64) {
			pct := progressAcquireLow + fraction*(progressAcquireTop-progressAcquireLow)
			m.progress(acqCtx, logger, id, pct, message)
		},
	})
	if outcome.Video.ID != "" {
		if updated, videoErr := m.store.SetVideo(ctx, id, queue.Video{
			ID:       outcome.Video.ID,
			Title:    outcome.Video.Title,
			Duration: outcome.Video.Duration,
		}); videoErr == nil {
			*item = *updated
		}
	}
	if err != nil {
		return nil, err
	}
	if err := m.checkpoint(ctx, id); err != nil {
		return nil, err
	}

	synthesized := m.synth.Synthesize(outcome.Tracks)
	m.progress(services.WithStage(ctx, stageSynth), logger, id, progressSynth,
		fmt.Sprintf("synthesized %d segments", len(synthesized.Segments)))
	if err := m.checkpoint(ctx, id); err != nil {
		return nil, err
	}

	st, err := m.layout.Stage(id)
	if err != nil {
		return nil, services.Classify(services.KindInternal, stagePersist, err)
	}
	*staging = st

	files, err := m.render(services.WithStage(ctx, stageRender), item, outcome, synthesized, st)
	if err != nil {
		return nil, err
	}
	if len(outcome.Audio) > 0 {
		if err := st.WriteFile(artifacts.AudioName, outcome.Audio); err != nil {
			return nil, services.Classify(services.KindInternal, stagePersist, err)
		}
		files = append(files, artifacts.AudioName)
	}
	m.progress(services.WithStage(ctx, stageRender), logger, id, progressRendered, fmt.Sprintf("rendered %d files", len(files)))
	if err := m.checkpoint(ctx, id); err != nil {
		return nil, err
	}

	result := &queue.Result{
		Dir:             m.layout.ItemDir(id),
		Files:           files,
		Stats:           synthesized.Stats,
		Languages:       synthesized.Languages,
		NoSubtitles:     outcome.NoSubtitles,
		Note:            outcome.Note(),
		UsedRecognition: outcome.UsedRecognition,
	}
	snapshot := *item
	snapshot.Status = queue.StatusCompleted
	snapshot.Progress = 100
	snapshot.Result = result
	if err := st.WriteJSON(artifacts.ReportName, artifacts.ItemReportFor(&snapshot)); err != nil {
		return nil, services.Classify(services.KindInternal, stagePersist, err)
	}
	if _, err := st.Commit(); err != nil {
		return nil, services.Classify(services.KindInternal, stagePersist, err)
	}
	return result, nil
}

// render writes one file per requested format. A task without any segment
// gets no subtitle files; its result carries the no-subtitles note instead.
func (m *Manager) render(ctx context.Context, item *queue.Item, outcome acquire.Outcome, synthesized synth.Result, st *artifacts.Staging) ([]string, error) {
	files := []string{}
	if outcome.NoSubtitles || len(synthesized.Segments) == 0 {
		return files, nil
	}
	formats, err := subtitle.ParseFormats(item.Formats)
	if err != nil {
		return nil, services.Classify(services.KindRenderError, stageRender, err)
	}

	select {
	case m.renderSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
	defer func() { <-m.renderSlots }()

	primary := ""
	if len(synthesized.Languages) > 0 {
		primary = synthesized.Languages[0]
	}
	stats := synthesized.Stats
	fallback := outcome.Video.ID
	if fallback == "" {
		fallback = item.ID
	}
	stem := subtitle.SanitizeFilename(outcome.Video.Title, fallback)
	for _, format := range formats {
		data, err := subtitle.Render(synthesized.Segments, format, subtitle.Options{
			Video:    outcome.Video,
			Language: primary,
			Stats:    &stats,
		})
		if err != nil {
			return nil, err
		}
		name := subtitle.FileName(stem, format)
		if err := st.WriteFile(name, data); err != nil {
			return nil, services.Classify(services.KindInternal, stagePersist, err)
		}
		files = append(files, name)
	}
	return files, nil
}

// checkpoint aborts the run when its context ended or the stored task left
// processing, as happens when another process cancels it.
func (m *Manager) checkpoint(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	item, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	switch item.Status {
	case queue.StatusProcessing:
		return nil
	case queue.StatusCancelled:
		return runner.ErrCancelled
	default:
		return fmt.Errorf("%w: %s", errNotProcessing, item.Status)
	}
}

func (m *Manager) progress(ctx context.Context, logger *slog.Logger, id string, percent float64, message string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := m.store.UpdateProgress(ctx, id, percent, message); err != nil {
		logger.Debug("progress update skipped", logging.Error(err))
		return
	}
	logging.WithContext(ctx, m.logger).Debug("task progress",
		logging.Float64("percent", percent),
		logging.String("message", message),
	)
}
