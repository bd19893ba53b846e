package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"bilisub/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "render", "write", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"render", "write", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"explicit", services.Classify(services.KindAuthRejected, "list", errors.New("401")), services.KindAuthRejected},
		{"wrapped explicit", fmt.Errorf("outer: %w", services.Classify(services.KindNotFound, "", errors.New("gone"))), services.KindNotFound},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), services.KindTimeout},
		{"canceled", context.Canceled, services.KindCancelled},
		{"marker transient", services.Wrap(services.ErrTransient, "acquire", "fetch", "", nil), services.KindTransientNetwork},
		{"marker validation", services.Wrap(services.ErrValidation, "acquire", "parse", "bad id", nil), services.KindInvalidInput},
		{"unknown", errors.New("mystery"), services.KindInternal},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		if got := services.KindOf(tc.err); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestRetryableKinds(t *testing.T) {
	retryable := []services.Kind{services.KindTransientNetwork, services.KindRateLimited, services.KindRecognitionFailure}
	for _, k := range retryable {
		if !services.Retryable(k) {
			t.Fatalf("expected %s to be retryable", k)
		}
	}
	terminal := []services.Kind{services.KindAuthRejected, services.KindNotFound, services.KindTimeout, services.KindRenderError, services.KindInvalidInput}
	for _, k := range terminal {
		if services.Retryable(k) {
			t.Fatalf("expected %s to be terminal", k)
		}
	}
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := fmt.Errorf("list: %w", services.RateLimited("list", 3*time.Second, nil))
	if services.KindOf(err) != services.KindRateLimited {
		t.Fatalf("expected rate limited kind, got %s", services.KindOf(err))
	}
	after, ok := services.RetryAfterOf(err)
	if !ok || after != 3*time.Second {
		t.Fatalf("unexpected retry hint: %v %v", after, ok)
	}
	if _, ok := services.RetryAfterOf(errors.New("plain")); ok {
		t.Fatal("expected no retry hint on plain error")
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := services.ParseKind(" Recognition_Failure "); !ok || k != services.KindRecognitionFailure {
		t.Fatalf("unexpected parse result: %v %v", k, ok)
	}
	if _, ok := services.ParseKind("bogus"); ok {
		t.Fatal("expected unknown kind to be rejected")
	}
}
