package queue

import (
	"sort"
	"sync"
	"time"
)

// quotaBucket counts accepted submissions inside one window.
type quotaBucket struct {
	count   int
	resetAt time.Time
}

// QuotaGate admits at most a fixed number of submissions per client per
// window. Rejected submissions do not consume quota.
type QuotaGate struct {
	mu      sync.Mutex
	buckets map[string]*quotaBucket
	limits  map[string]int
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewQuotaGate creates a gate: max limit submissions per window per client.
// A non-positive limit admits everything.
func NewQuotaGate(limit int, window time.Duration) *QuotaGate {
	return &QuotaGate{
		buckets: make(map[string]*quotaBucket),
		limits:  make(map[string]int),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// SetLimit overrides the limit for one client.
func (g *QuotaGate) SetLimit(clientID string, limit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits[clientID] = limit
}

func (g *QuotaGate) limitFor(clientID string) int {
	if limit, ok := g.limits[clientID]; ok {
		return limit
	}
	return g.limit
}

// Allow records a submission for clientID if it fits the quota. When it does
// not, it returns false and the time until the window resets.
func (g *QuotaGate) Allow(clientID string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	limit := g.limitFor(clientID)
	if limit <= 0 || g.window <= 0 {
		return true, 0
	}
	now := g.now()
	g.pruneLocked(now)
	b, exists := g.buckets[clientID]
	if !exists || !now.Before(b.resetAt) {
		b = &quotaBucket{resetAt: now.Add(g.window)}
		g.buckets[clientID] = b
	}
	if b.count >= limit {
		return false, b.resetAt.Sub(now)
	}
	b.count++
	return true, 0
}

func (g *QuotaGate) pruneLocked(now time.Time) {
	for id, b := range g.buckets {
		if !now.Before(b.resetAt) {
			delete(g.buckets, id)
		}
	}
}

// QuotaEntry is one client's current window.
type QuotaEntry struct {
	ClientID string    `json:"client_id"`
	Count    int       `json:"count"`
	Limit    int       `json:"limit"`
	ResetAt  time.Time `json:"reset_at"`
}

// QuotaStatus is reported by the admin stats endpoint.
type QuotaStatus struct {
	Limit   int          `json:"limit"`
	Window  string       `json:"window"`
	Entries []QuotaEntry `json:"entries"`
}

// Status returns the live windows of every tracked client.
func (g *QuotaGate) Status() QuotaStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	entries := make([]QuotaEntry, 0, len(g.buckets))
	for id, b := range g.buckets {
		if now.Before(b.resetAt) {
			entries = append(entries, QuotaEntry{ClientID: id, Count: b.count, Limit: g.limitFor(id), ResetAt: b.resetAt})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ClientID < entries[j].ClientID })
	return QuotaStatus{Limit: g.limit, Window: g.window.String(), Entries: entries}
}
