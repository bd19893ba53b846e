package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"bilisub/internal/queue"
	"bilisub/internal/services"
	"bilisub/internal/subtitle"
	"bilisub/internal/testsupport"
)

func TestSubmitAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item, err := store.Submit(ctx, queue.NewItem{
		ClientID:    "web",
		Input:       "  https://www.bilibili.com/video/BV1xx411c7mD  ",
		Formats:     []string{"srt", "vtt"},
		Options:     queue.Options{Languages: []string{"zh-CN", "en"}, UseRecognition: true, Model: "small"},
		CallbackURL: "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if item.ID == "" || item.Status != queue.StatusPending || item.Progress != 0 {
		t.Fatalf("unexpected new item: %#v", item)
	}

	fetched, err := store.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Input != "https://www.bilibili.com/video/BV1xx411c7mD" {
		t.Fatalf("input not trimmed: %q", fetched.Input)
	}
	if len(fetched.Formats) != 2 || fetched.Formats[1] != "vtt" {
		t.Fatalf("formats lost: %v", fetched.Formats)
	}
	if !fetched.Options.UseRecognition || fetched.Options.Model != "small" || len(fetched.Options.Languages) != 2 {
		t.Fatalf("options lost: %#v", fetched.Options)
	}
	if fetched.CreatedAt.IsZero() || !fetched.UpdatedAt.Equal(fetched.CreatedAt) {
		t.Fatalf("unexpected timestamps: %v %v", fetched.CreatedAt, fetched.UpdatedAt)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if _, err := store.Submit(ctx, queue.NewItem{Input: " ", Formats: []string{"srt"}}); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := store.Submit(ctx, queue.NewItem{Input: "BV1xx411c7mD"}); err == nil {
		t.Fatal("expected error for missing formats")
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")

	started, err := store.Start(ctx, item.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != queue.StatusProcessing {
		t.Fatalf("expected processing, got %s", started.Status)
	}

	last := started.UpdatedAt
	progress := []float64{10, 5, 60, 150}
	want := []float64{10, 10, 60, 99}
	for i, p := range progress {
		updated, err := store.UpdateProgress(ctx, item.ID, p, fmt.Sprintf("step %d", i))
		if err != nil {
			t.Fatalf("UpdateProgress: %v", err)
		}
		if updated.Progress != want[i] {
			t.Fatalf("progress %v -> %v, want %v", p, updated.Progress, want[i])
		}
		if !updated.UpdatedAt.After(last) {
			t.Fatalf("updated_at must strictly increase: %v then %v", last, updated.UpdatedAt)
		}
		last = updated.UpdatedAt
	}

	if _, err := store.Complete(ctx, item.ID, nil); err == nil {
		t.Fatal("complete without result must fail")
	}
	done, err := store.Complete(ctx, item.ID, &queue.Result{
		Dir:   "/tmp/out",
		Files: []string{"demo.srt"},
		Stats: subtitle.Stats{Authored: 3},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != queue.StatusCompleted || done.Progress != 100 || done.Result == nil {
		t.Fatalf("unexpected completed item: %#v", done)
	}

	fetched, _ := store.Get(ctx, item.ID)
	if fetched.Result.Stats.Authored != 3 || fetched.Result.Files[0] != "demo.srt" {
		t.Fatalf("result not persisted: %#v", fetched.Result)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")
	if _, err := store.Start(ctx, item.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	failed, err := store.Fail(ctx, item.ID, queue.ItemError{Kind: services.KindRecognitionFailure, Message: "decoder crashed", Attempts: 5})
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Error == nil || failed.Error.Kind != services.KindRecognitionFailure || failed.Error.Attempts != 5 {
		t.Fatalf("error not recorded: %#v", failed.Error)
	}

	if _, err := store.Cancel(ctx, item.ID); !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal on cancel, got %v", err)
	}
	if _, err := store.Fail(ctx, item.ID, queue.ItemError{Kind: services.KindTimeout, Message: "late"}); !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal on second fail, got %v", err)
	}
	if _, err := store.Complete(ctx, item.ID, &queue.Result{}); !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal on complete, got %v", err)
	}
	fetched, _ := store.Get(ctx, item.ID)
	if fetched.Error.Message != "decoder crashed" {
		t.Fatalf("error must be immutable, got %q", fetched.Error.Message)
	}
}

func TestFailRequiresKind(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")
	if _, err := store.Fail(context.Background(), item.ID, queue.ItemError{Message: "no kind"}); err == nil {
		t.Fatal("expected error for missing kind")
	}
}

func TestFailOnlyFromProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")
	failure := queue.ItemError{Kind: services.KindInternal, Message: "boom"}
	if _, err := store.Fail(ctx, item.ID, failure); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from pending, got %v", err)
	}
	if got, _ := store.Get(ctx, item.ID); got.Status != queue.StatusPending || got.Error != nil {
		t.Fatalf("pending task changed: %+v", got)
	}
	if _, err := store.Start(ctx, item.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := store.Fail(ctx, item.ID, failure); err != nil {
		t.Fatalf("Fail from processing: %v", err)
	}
}

func TestCancelPendingAndProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	pending := testsupport.MustSubmit(t, store, "", "BV1aa411c7mD")
	cancelled, err := store.Cancel(ctx, pending.ID)
	if err != nil || cancelled.Status != queue.StatusCancelled {
		t.Fatalf("cancel pending: %v %#v", err, cancelled)
	}

	running := testsupport.MustSubmit(t, store, "", "BV1bb411c7mD")
	_, _ = store.Start(ctx, running.ID)
	cancelled, err = store.Cancel(ctx, running.ID)
	if err != nil || cancelled.Status != queue.StatusCancelled {
		t.Fatalf("cancel processing: %v %#v", err, cancelled)
	}
	if _, err := store.Start(ctx, running.ID); !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Fatalf("start after cancel: %v", err)
	}
	if _, err := store.UpdateProgress(ctx, running.ID, 50, ""); err == nil {
		t.Fatal("progress on cancelled task must fail")
	}

	if _, err := store.Cancel(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteReleasesArtifacts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	var released []string
	store.SetReleaser(func(_ context.Context, item *queue.Item) error {
		released = append(released, item.ID)
		return nil
	})
	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")
	if err := store.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(released) != 1 || released[0] != item.ID {
		t.Fatalf("releaser not called: %v", released)
	}
	if _, err := store.Get(ctx, item.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected deleted item to be gone, got %v", err)
	}
	if err := store.Delete(ctx, item.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListFiltersAndOrder(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := testsupport.MustSubmit(t, store, "alice", "BV1aa411c7mD")
	b := testsupport.MustSubmit(t, store, "bob", "BV1bb411c7mD")
	c := testsupport.MustSubmit(t, store, "alice", "BV1cc411c7mD")
	_, _ = store.Start(ctx, b.ID)

	oldest, err := store.List(ctx, queue.Filter{Oldest: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(oldest) != 3 || oldest[0].ID != a.ID || oldest[2].ID != c.ID {
		t.Fatalf("unexpected creation order: %v", ids(oldest))
	}
	newest, _ := store.List(ctx, queue.Filter{Limit: 1})
	if len(newest) != 1 || newest[0].ID != c.ID {
		t.Fatalf("expected newest first, got %v", ids(newest))
	}
	alice, _ := store.List(ctx, queue.Filter{ClientID: "alice"})
	if len(alice) != 2 {
		t.Fatalf("expected 2 tasks for alice, got %d", len(alice))
	}
	processing, _ := store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusProcessing}})
	if len(processing) != 1 || processing[0].ID != b.ID {
		t.Fatalf("unexpected processing list: %v", ids(processing))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.ByStatus[queue.StatusPending] != 2 || stats.ByStatus[queue.StatusProcessing] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestResetProcessing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")
	_, _ = store.Start(ctx, item.ID)
	_, _ = store.UpdateProgress(ctx, item.ID, 40, "halfway")

	n, err := store.ResetProcessing(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetProcessing: %d %v", n, err)
	}
	fetched, _ := store.Get(ctx, item.ID)
	if fetched.Status != queue.StatusPending || fetched.Progress != 0 {
		t.Fatalf("expected pending with zero progress, got %#v", fetched)
	}
}

func TestSubmitQuota(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Service.RateLimitRequests = 2
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		testsupport.MustSubmit(t, store, "web", fmt.Sprintf("BV1xx411c7m%d", i))
	}
	_, err := store.Submit(ctx, queue.NewItem{ClientID: "web", Input: "BV1xx411c7mZ", Formats: []string{"srt"}})
	var rl *queue.RateLimitError
	if !errors.As(err, &rl) || !errors.Is(err, queue.ErrRateLimited) || rl.RetryAfter <= 0 {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	stats, _ := store.Stats(ctx)
	if stats.Total != 2 {
		t.Fatalf("rejected submission must not be stored, total=%d", stats.Total)
	}
	// Other clients have their own window.
	testsupport.MustSubmit(t, store, "cli", "BV1xx411c7mY")

	// An anonymous submission is charged to its quota key.
	_, err = store.Submit(ctx, queue.NewItem{QuotaKey: "web", Input: "BV1xx411c7mX", Formats: []string{"srt"}})
	if !errors.Is(err, queue.ErrRateLimited) {
		t.Fatalf("expected quota key to be rate limited, got %v", err)
	}
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.MustSubmit(t, store, "", "BV1xx411c7mD")
	_, _ = store.Start(ctx, item.ID)

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			if _, err := store.UpdateProgress(ctx, item.ID, float64(p), ""); err != nil {
				t.Errorf("UpdateProgress: %v", err)
			}
		}(i)
	}
	wg.Wait()
	fetched, _ := store.Get(ctx, item.ID)
	if fetched.Progress != 40 {
		t.Fatalf("concurrent progress updates lost the maximum: %v", fetched.Progress)
	}
}

func ids(items []*queue.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
