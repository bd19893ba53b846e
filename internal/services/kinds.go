package services

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind classifies a task failure. The value is persisted verbatim on failed
// tasks and surfaced through the service API.
type Kind string

const (
	KindTransientNetwork   Kind = "transient_network"
	KindAuthRejected       Kind = "auth_rejected"
	KindNotFound           Kind = "not_found"
	KindRecognitionFailure Kind = "recognition_failure"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindRenderError        Kind = "render_error"
	KindInvalidInput       Kind = "invalid_input"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

var knownKinds = map[Kind]struct{}{
	KindTransientNetwork:   {},
	KindAuthRejected:       {},
	KindNotFound:           {},
	KindRecognitionFailure: {},
	KindRateLimited:        {},
	KindTimeout:            {},
	KindRenderError:        {},
	KindInvalidInput:       {},
	KindCancelled:          {},
	KindInternal:           {},
}

// ParseKind converts a persisted string back into a Kind.
func ParseKind(value string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	_, ok := knownKinds[k]
	return k, ok
}

// Retryable reports whether failures of this kind are retried by the runner.
// Recognition failures are retried until the attempt budget is spent and only
// then become terminal.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTransientNetwork, KindRateLimited, KindRecognitionFailure:
		return true
	default:
		return false
	}
}

// KindError tags an error with its failure kind and an optional retry hint.
type KindError struct {
	Kind       Kind
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *KindError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *KindError) Unwrap() error { return e.Err }

// Classify tags err with kind. A nil err yields nil.
func Classify(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Op: op, Err: err}
}

// RateLimited builds a rate-limited error carrying the server's retry hint.
func RateLimited(op string, retryAfter time.Duration, err error) error {
	if err == nil {
		err = errors.New("rate limited")
	}
	return &KindError{Kind: KindRateLimited, Op: op, RetryAfter: retryAfter, Err: err}
}

// KindOf returns the failure kind for err. Unclassified errors fall back on the
// sentinel markers and on context errors; anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) && ke.Kind != "" {
		return ke.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindInvalidInput
	case errors.Is(err, ErrTransient):
		return KindTransientNetwork
	case errors.Is(err, ErrExternalTool):
		return KindRecognitionFailure
	default:
		return KindInternal
	}
}

// RetryAfterOf extracts the retry hint carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var ke *KindError
	if errors.As(err, &ke) && ke.RetryAfter > 0 {
		return ke.RetryAfter, true
	}
	return 0, false
}
