package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"
)

func fakeClockPacer(interval time.Duration, now *time.Time) *Pacer {
	p := NewPacer(interval)
	p.now = func() time.Time { return *now }
	return p
}

func TestPacerSpacesSameEndpoint(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := fakeClockPacer(1500*time.Millisecond, &now)

	if w := p.Reserve("api.bilibili.com"); w != 0 {
		t.Fatalf("first reservation should not wait, got %s", w)
	}
	if w := p.Reserve("api.bilibili.com"); w != 1500*time.Millisecond {
		t.Fatalf("second reservation should wait one interval, got %s", w)
	}
	if w := p.Reserve("api.bilibili.com"); w != 3*time.Second {
		t.Fatalf("third reservation should wait two intervals, got %s", w)
	}
	if w := p.Reserve("upos.bilivideo.com"); w != 0 {
		t.Fatalf("other endpoints are independent, got %s", w)
	}

	now = now.Add(10 * time.Second)
	if w := p.Reserve("api.bilibili.com"); w != 0 {
		t.Fatalf("idle endpoint should not wait, got %s", w)
	}
}

func TestPacerConcurrentReservationsAreDistinct(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := fakeClockPacer(time.Second, &now)

	const workers = 16
	waits := make([]time.Duration, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			waits[i] = p.Reserve("api")
		}(i)
	}
	wg.Wait()
	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	for i, w := range waits {
		if w != time.Duration(i)*time.Second {
			t.Fatalf("slot %d: expected %s, got %s (all: %v)", i, time.Duration(i)*time.Second, w, waits)
		}
	}
}

func TestPacerDisabled(t *testing.T) {
	p := NewPacer(0)
	for i := 0; i < 3; i++ {
		if w := p.Reserve("api"); w != 0 {
			t.Fatalf("disabled pacer waited %s", w)
		}
	}
	var nilPacer *Pacer
	if err := nilPacer.Wait(context.Background(), "api"); err != nil {
		t.Fatalf("nil pacer should not fail: %v", err)
	}
}

func TestPacedTransportWaitsPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewPacer(time.Hour)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	client := &http.Client{Transport: &PacedTransport{Pacer: p}}
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		resp.Body.Close()
	}
	if len(slept) != 2 {
		t.Fatalf("expected the 2nd and 3rd requests to wait, got %v", slept)
	}
}
