package notifications

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"bilisub/internal/config"
)

const userAgent = "bilisub/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventTaskCompleted  Event = "task.completed"
	EventTaskFailed     Event = "task.failed"
	EventQueueStarted   Event = "queue.started"
	EventQueueCompleted Event = "queue.completed"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Payload carries event fields. Task events use the keys below.
type Payload map[string]any

const (
	// KeyCallbackURL is the webhook destination of a task event.
	KeyCallbackURL = "callback_url"
	// KeyTask is the JSON-encodable task snapshot a webhook receives.
	KeyTask = "task"
	// KeyTitle is a display title for ntfy messages.
	KeyTitle = "title"
)

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the notifier for cfg: always a webhook notifier for
// per-task callbacks, plus ntfy when a topic is configured.
func NewService(cfg *config.Config) Service {
	services := multiService{newWebhookService(timeoutOrDefault(cfg.Notifications.WebhookTimeout))}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		services = append(services, &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeoutOrDefault(cfg.Notifications.RequestTimeout)},
		})
	}
	return services
}

// NewNoop returns a Service that drops every event.
func NewNoop() Service { return noopService{} }

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.Error())
	case interface{ String() string }:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func (p Payload) integer(key string) int {
	if v, ok := p[key].(int); ok {
		return v
	}
	return 0
}
