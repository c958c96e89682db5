package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SaveFunc persists the current snapshot.
type SaveFunc func(ctx context.Context) error

// Autosave debounces save requests. Saves never overlap: a request that
// arrives during a save is kept pending and scheduled once it completes.
type Autosave struct {
	delay  time.Duration
	save   SaveFunc
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	timer   *time.Timer
	paused  bool
	saving  bool
	pending bool
	unsaved bool
}

// NewAutosave builds an autosave that calls save delay after the last Queue.
func NewAutosave(delay time.Duration, save SaveFunc, logger *slog.Logger) *Autosave {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Autosave{delay: delay, save: save, logger: logger}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Queue asks for a save. While paused the request is only remembered.
func (a *Autosave) Queue() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = true
	if a.paused || a.saving {
		return
	}
	a.scheduleLocked()
}

// Pause holds saves until Resume. It returns once a running save is done,
// so the caller may mutate the table afterwards.
func (a *Autosave) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	for a.saving {
		a.cond.Wait()
	}
}

// Resume re-enables saves and flushes right away.
func (a *Autosave) Resume(ctx context.Context) {
	a.mu.Lock()
	a.paused = false
	a.mu.Unlock()
	if err := a.Flush(ctx); err != nil {
		a.logger.Error("autosave flush failed", "error", err)
	}
}

// Flush cancels a scheduled save, waits for a running one and saves now
// when a change is pending or the last save failed.
func (a *Autosave) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	for a.saving {
		a.cond.Wait()
	}
	if !a.pending && !a.unsaved {
		a.mu.Unlock()
		return nil
	}
	a.saving = true
	a.pending = false
	a.mu.Unlock()

	err := a.save(ctx)

	a.mu.Lock()
	a.finishLocked(err)
	a.mu.Unlock()
	return err
}

// Pending reports whether a requested save has not run yet.
func (a *Autosave) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

func (a *Autosave) scheduleLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *Autosave) fire() {
	a.mu.Lock()
	a.timer = nil
	if a.paused || a.saving || !a.pending {
		a.mu.Unlock()
		return
	}
	a.saving = true
	a.pending = false
	a.mu.Unlock()

	err := a.save(context.Background())
	if err != nil {
		a.logger.Error("autosave failed", "error", err)
	}

	a.mu.Lock()
	a.finishLocked(err)
	a.mu.Unlock()
}

func (a *Autosave) finishLocked(err error) {
	a.saving = false
	a.unsaved = err != nil
	a.cond.Broadcast()
	if a.pending && !a.paused {
		a.scheduleLocked()
	}
}
