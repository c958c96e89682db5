// Package ratelimit spaces calls on named channels and retries bounded work.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Gate tracks the earliest time the next call on a channel may fire. After
// each call the delay may grow by a fixed increment up to a cap, which lets
// the URL-decode channel back off from aggregator limits.
type Gate struct {
	mu        sync.Mutex
	name      string
	last      time.Time
	delay     time.Duration
	increment time.Duration
	max       time.Duration

	now    func() time.Time
	sleep  Sleeper
	logger *slog.Logger
}

// Option customizes a Gate.
type Option func(*Gate)

// WithGrowth makes the delay grow by increment after every call, capped at max.
// A zero max leaves the growth uncapped.
func WithGrowth(increment, max time.Duration) Option {
	return func(g *Gate) {
		g.increment = increment
		g.max = max
	}
}

// WithClock injects the time source and sleeper, mostly for tests.
func WithClock(now func() time.Time, sleep Sleeper) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// WithLogger reports long rests on the channel.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// NewGate builds a gate named after the channel it protects.
func NewGate(name string, delay time.Duration, opts ...Option) *Gate {
	g := &Gate{name: name, delay: delay, now: time.Now, sleep: Sleep}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until the channel may fire and records the call.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	wait := g.last.Add(g.delay).Sub(g.now())
	if wait > 0 {
		if wait >= time.Second && g.logger != nil {
			g.logger.Info("resting", "channel", g.name, "seconds", int(wait.Round(time.Second).Seconds()))
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}

	g.last = g.now()
	if g.increment > 0 {
		g.delay += g.increment
		if g.max > 0 && g.delay > g.max {
			g.delay = g.max
		}
	}
	return nil
}

// SetDelay replaces the spacing applied before the next call.
func (g *Gate) SetDelay(d time.Duration) {
	g.mu.Lock()
	g.delay = d
	g.mu.Unlock()
}

// Delay returns the current spacing.
func (g *Gate) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}

// Name identifies the channel.
func (g *Gate) Name() string {
	return g.name
}
