package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilisub/internal/services"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// Check classifies a response status. 2xx yields nil and leaves the body
// alone; anything else drains and closes the body:
// 401/403 are auth_rejected, 404/410 not_found, 429 rate_limited with the
// Retry-After hint, 5xx transient_network, other 4xx invalid_input.
func Check(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	statusErr := &StatusError{
		URL:        redactURL(resp.Request),
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return services.Classify(services.KindAuthRejected, op, statusErr)
	case code == http.StatusNotFound, code == http.StatusGone:
		return services.Classify(services.KindNotFound, op, statusErr)
	case code == http.StatusTooManyRequests:
		return services.RateLimited(op, ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), statusErr)
	case code >= 500:
		return services.Classify(services.KindTransientNetwork, op, statusErr)
	default:
		return services.Classify(services.KindInvalidInput, op, statusErr)
	}
}

// ClassifyError tags a transport error. Context cancellation passes through
// untouched so the caller's cause wins; everything else, client timeouts
// included, is transient.
func ClassifyError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Classify(services.KindTransientNetwork, op, err)
}

// ParseRetryAfter reads a Retry-After header as delta seconds or an HTTP date.
// Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func redactURL(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	u := *req.URL
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
