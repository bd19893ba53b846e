package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// webhookBody is what a task's callback_url receives.
type webhookBody struct {
	Event  Event     `json:"event"`
	SentAt time.Time `json:"sent_at"`
	Task   any       `json:"task"`
}

type webhookService struct {
	client *http.Client
	now    func() time.Time
}

func newWebhookService(timeout time.Duration) *webhookService {
	return &webhookService{client: &http.Client{Timeout: timeout}, now: time.Now}
}

// Publish POSTs terminal task events to the payload's callback URL. Events
// without one are ignored.
func (w *webhookService) Publish(ctx context.Context, event Event, payload Payload) error {
	if event != EventTaskCompleted && event != EventTaskFailed {
		return nil
	}
	target := payload.str(KeyCallbackURL)
	if target == "" {
		return nil
	}
	if err := ValidateCallbackURL(target); err != nil {
		return err
	}

	data, err := json.Marshal(webhookBody{Event: event, SentAt: w.now().UTC(), Task: payload[KeyTask]})
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ValidateCallbackURL accepts absolute http(s) URLs only.
func ValidateCallbackURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid callback url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid callback url %q: must be absolute http(s)", raw)
	}
	return nil
}
