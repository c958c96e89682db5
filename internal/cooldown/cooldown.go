// Package cooldown tracks per-host backoff so rate-limited domains are not
// hammered.
package cooldown

import (
	"log/slog"
	"sync"
	"time"

	"NewsGrinder/internal/sources"
)

// Status describes an active cooldown.
type Status struct {
	Host      string
	Until     time.Time
	Remaining time.Duration
}

// Tracker maps hosts to an absolute expiry. Entries only ever grow and are
// evicted lazily on lookup.
type Tracker struct {
	mu     sync.Mutex
	until  map[string]time.Time
	now    func() time.Time
	logger *slog.Logger
}

// NewTracker builds an empty tracker. A nil clock defaults to time.Now.
func NewTracker(now func() time.Time, logger *slog.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{until: map[string]time.Time{}, now: now, logger: logger}
}

// Check returns the active cooldown for the host of rawURL, or nil.
func (t *Tracker) Check(rawURL string) *Status {
	host := sources.Host(rawURL)
	if host == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.until[host]
	if !ok {
		return nil
	}
	now := t.now()
	if !now.Before(until) {
		delete(t.until, host)
		return nil
	}
	return &Status{Host: host, Until: until, Remaining: until.Sub(now)}
}

// Set raises the cooldown of the host of rawURL to now+d. A shorter cooldown
// never replaces a longer one.
func (t *Tracker) Set(rawURL string, d time.Duration, reason string) {
	host := sources.Host(rawURL)
	if host == "" || d <= 0 {
		return
	}

	t.mu.Lock()
	until := t.now().Add(d)
	if existing, ok := t.until[host]; !ok || until.After(existing) {
		t.until[host] = until
	}
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Info("domain cooldown set", "host", host, "seconds", int(d.Round(time.Second).Seconds()), "reason", reason)
	}
}
