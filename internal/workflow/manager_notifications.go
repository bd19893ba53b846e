package workflow

import (
	"context"
	"errors"
	"time"

	"bilisub/internal/artifacts"
	"bilisub/internal/logging"
	"bilisub/internal/notifications"
	"bilisub/internal/queue"
)

// notifyFinished publishes a terminal task to its callback URL and to ntfy.
func (m *Manager) notifyFinished(ctx context.Context, item *queue.Item) {
	if m.notifier == nil || item == nil {
		return
	}
	event := notifications.EventTaskCompleted
	payload := notifications.Payload{
		"id":                         item.ID,
		notifications.KeyTitle:       item.Video.Title,
		notifications.KeyCallbackURL: item.CallbackURL,
		notifications.KeyTask:        artifacts.ItemReportFor(item),
	}
	switch item.Status {
	case queue.StatusCompleted:
		if item.Result != nil {
			payload["files"] = len(item.Result.Files)
		}
	case queue.StatusFailed:
		event = notifications.EventTaskFailed
		if item.Error != nil {
			payload["kind"] = string(item.Error.Kind)
			payload["error"] = item.Error.Message
		}
	default:
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger := logging.WithContext(ctx, m.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send task notification")
			return
		}
		logging.WarnWithContext(logger, "task notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check callback_url reachability or ntfy_topic"),
			logging.String(logging.FieldImpact, "the client must poll for the final status"),
		)
	}
}

func (m *Manager) onItemStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = time.Now()
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			logging.WarnWithContext(m.logger, "queue stats unavailable for start notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}
	count := stats.ByStatus[queue.StatusPending] + stats.ByStatus[queue.StatusProcessing]
	if err := m.notifier.Publish(ctx, notifications.EventQueueStarted, notifications.Payload{"count": count}); err != nil {
		m.logger.Debug("queue start notification failed", logging.Error(err))
	}
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not check queue completion")
		} else {
			logging.WarnWithContext(m.logger, "queue stats unavailable for completion notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "completion notification will not be sent"),
			)
		}
		return
	}
	if stats.ByStatus[queue.StatusPending]+stats.ByStatus[queue.StatusProcessing] > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = time.Time{}
	m.mu.Unlock()

	if err := m.notifier.Publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats.ByStatus[queue.StatusCompleted],
		"failed":    stats.ByStatus[queue.StatusFailed],
		"duration":  time.Since(start),
	}); err != nil {
		m.logger.Debug("queue completion notification failed", logging.Error(err))
	}
}
