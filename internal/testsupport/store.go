package testsupport

import (
	"context"
	"testing"

	"bilisub/internal/config"
	"bilisub/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustSubmit inserts a pending srt task for input.
func MustSubmit(t testing.TB, store *queue.Store, clientID, input string) *queue.Item {
	t.Helper()

	item, err := store.Submit(context.Background(), queue.NewItem{
		ClientID: clientID,
		Input:    input,
		Formats:  []string{"srt"},
		Options:  queue.Options{Languages: []string{"zh-CN"}},
	})
	if err != nil {
		t.Fatalf("store.Submit: %v", err)
	}
	return item
}
