package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := formatEvent(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func formatEvent(event Event, payload Payload) (message, bool) {
	title := payload.str(KeyTitle)
	if title == "" {
		title = payload.str("id")
	}
	switch event {
	case EventTaskCompleted:
		body := fmt.Sprintf("Subtitles ready: %s", title)
		if files := payload.integer("files"); files > 0 {
			body = fmt.Sprintf("%s (%d files)", body, files)
		}
		return message{
			title: "bilisub - Task Complete",
			body:  body,
			tags:  []string{"bilisub", "task", "completed"},
		}, true
	case EventTaskFailed:
		body := fmt.Sprintf("Task failed: %s", title)
		if kind := payload.str("kind"); kind != "" {
			body = fmt.Sprintf("%s [%s]", body, kind)
		}
		if reason := payload.str("error"); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		return message{
			title:    "bilisub - Task Failed",
			body:     body,
			tags:     []string{"bilisub", "task", "failed"},
			priority: "high",
		}, true
	case EventQueueCompleted:
		processed := payload.integer("processed")
		failed := payload.integer("failed")
		duration, _ := payload["duration"].(time.Duration)
		duration = max(duration.Round(time.Second), 0)
		if failed == 0 {
			return message{
				title: "bilisub - Queue Complete",
				body:  fmt.Sprintf("Queue complete: %d tasks processed in %s", processed, duration),
				tags:  []string{"bilisub", "queue", "completed"},
			}, true
		}
		return message{
			title: "bilisub - Queue Complete (with errors)",
			body:  fmt.Sprintf("Queue complete: %d succeeded, %d failed in %s", processed, failed, duration),
			tags:  []string{"bilisub", "queue", "completed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payload.str("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if reason := payload.str("error"); reason != "" {
			b.WriteString(reason)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "bilisub - Error",
			body:     b.String(),
			tags:     []string{"bilisub", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "bilisub - Test",
			body:     "Notification system test",
			tags:     []string{"bilisub", "test"},
			priority: "low",
		}, true
	default:
		// queue.started is too chatty for a phone.
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
