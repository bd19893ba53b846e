package runner

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Pacer enforces a minimum interval between calls to the same endpoint,
// across every worker sharing it. Reservations are made under one lock, so
// concurrent callers receive distinct, evenly spaced slots.
type Pacer struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	next map[string]time.Time
}

// NewPacer returns a pacer with the given interval. A non-positive interval
// disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    sleepContext,
		next:     make(map[string]time.Time),
	}
}

// Interval returns the configured spacing.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Reserve claims the next free slot for endpoint and returns how long the
// caller must wait before using it.
func (p *Pacer) Reserve(endpoint string) time.Duration {
	if p == nil || p.interval <= 0 || endpoint == "" {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	slot := now
	if next, ok := p.next[endpoint]; ok && next.After(now) {
		slot = next
	}
	p.next[endpoint] = slot.Add(p.interval)
	return slot.Sub(now)
}

// Wait blocks until endpoint's reserved slot arrives or ctx ends.
func (p *Pacer) Wait(ctx context.Context, endpoint string) error {
	wait := p.Reserve(endpoint)
	if wait <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, wait)
}

// PacedTransport paces every request per host before delegating to Base.
type PacedTransport struct {
	Base  http.RoundTripper
	Pacer *Pacer
}

// RoundTrip implements http.RoundTripper.
func (t *PacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Pacer.Wait(req.Context(), req.URL.Host); err != nil {
		return nil, err
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
