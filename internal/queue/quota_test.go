package queue

import (
	"testing"
	"time"
)

func TestQuotaGateWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	gate := NewQuotaGate(2, time.Minute)
	gate.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := gate.Allow("web"); !ok {
			t.Fatalf("submission %d should be admitted", i)
		}
	}
	ok, retry := gate.Allow("web")
	if ok || retry != time.Minute {
		t.Fatalf("expected rejection with 1m retry, got ok=%v retry=%s", ok, retry)
	}

	now = now.Add(30 * time.Second)
	if ok, retry := gate.Allow("web"); ok || retry != 30*time.Second {
		t.Fatalf("expected rejection with 30s retry, got ok=%v retry=%s", ok, retry)
	}

	now = now.Add(31 * time.Second)
	if ok, _ := gate.Allow("web"); !ok {
		t.Fatal("new window should admit")
	}
	status := gate.Status()
	if len(status.Entries) != 1 || status.Entries[0].Count != 1 {
		t.Fatalf("unexpected status: %#v", status)
	}
}

func TestQuotaGatePerClientLimit(t *testing.T) {
	gate := NewQuotaGate(1, time.Minute)
	gate.SetLimit("batch", 0)
	for i := 0; i < 5; i++ {
		if ok, _ := gate.Allow("batch"); !ok {
			t.Fatal("zero limit means unlimited")
		}
	}
	if ok, _ := gate.Allow("web"); !ok {
		t.Fatal("first web submission should pass")
	}
	if ok, _ := gate.Allow("web"); ok {
		t.Fatal("second web submission should be limited")
	}
}
