package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"bilisub/internal/acquire"
	"bilisub/internal/daemon"
	"bilisub/internal/subtitle"
	"bilisub/internal/synth"
	"bilisub/internal/testsupport"
	"bilisub/internal/workflow"
)

type noopPlatform struct{}

func (noopPlatform) Resolve(_ context.Context, input string) (subtitle.VideoRef, error) {
	return subtitle.VideoRef{ID: input, Title: input}, nil
}

func (noopPlatform) ListSubtitles(context.Context, subtitle.VideoRef, *acquire.Credential) ([]acquire.Track, error) {
	return nil, nil
}

func (noopPlatform) FetchAudio(context.Context, subtitle.VideoRef, *acquire.Credential) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type noopRecognizer struct{}

func (noopRecognizer) Transcribe(context.Context, io.Reader, string, string) ([]synth.Cue, error) {
	return nil, nil
}

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	store := testsupport.MustOpenStore(t, cfg)
	mgr, err := workflow.NewManager(cfg, store, workflow.Deps{Platform: noopPlatform{}, Recognizer: noopRecognizer{}}, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	d, err := daemon.New(cfg, store, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected api address")
	}
	if len(status.Preflight) == 0 {
		t.Fatal("expected preflight results")
	}

	resp, err := http.Get("http://" + status.APIAddress + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running || status.APIAddress != "" {
		t.Fatalf("expected daemon to be stopped: %#v", status)
	}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	build := func() *daemon.Daemon {
		store := testsupport.MustOpenStore(t, cfg)
		mgr, err := workflow.NewManager(cfg, store, workflow.Deps{Platform: noopPlatform{}, Recognizer: noopRecognizer{}}, nil)
		if err != nil {
			t.Fatalf("NewManager: %v", err)
		}
		d, err := daemon.New(cfg, store, mgr, nil)
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		return d
	}

	first := build()
	t.Cleanup(func() { first.Close() })
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := build()
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	second.Stop()
}
