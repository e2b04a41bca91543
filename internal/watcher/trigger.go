package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RebuildFunc performs a whole-tree rebuild. The triggering event is passed
// for logging; the rebuild itself always covers the full source tree.
type RebuildFunc func(ctx context.Context, reason FileEvent) error

// RebuildTrigger collapses bursts of file events into single rebuilds.
//
// The debounce is leading-edge: the first event outside the window starts a
// rebuild immediately, and every event that arrives within the window of the
// last rebuild start (or while a rebuild is running) is dropped rather than
// queued. A change dropped this way is still covered, since the rebuild that
// opened the window rescans the whole tree; a change made after that rebuild
// started fires again once the window expires.
type RebuildTrigger struct {
	window  time.Duration
	rebuild RebuildFunc
	logger  *slog.Logger

	mu         sync.Mutex
	lastStart  time.Time
	rebuilding bool
	fired      uint64
	dropped    uint64

	now func() time.Time
}

// NewRebuildTrigger creates a trigger with the given debounce window.
func NewRebuildTrigger(window time.Duration, rebuild RebuildFunc, logger *slog.Logger) *RebuildTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildTrigger{
		window:  window,
		rebuild: rebuild,
		logger:  logger,
		now:     time.Now,
	}
}

// Fire considers the event and runs a rebuild synchronously when it is the
// first qualifying event since the window opened. Returns true if a rebuild
// ran. The rebuild start time is recorded before the rebuild runs, so the
// window is measured from start to start regardless of rebuild duration or
// outcome.
func (t *RebuildTrigger) Fire(ctx context.Context, event FileEvent) bool {
	t.mu.Lock()
	now := t.now()
	if t.rebuilding || (!t.lastStart.IsZero() && now.Sub(t.lastStart) < t.window) {
		t.dropped++
		t.mu.Unlock()
		t.logger.Debug("change_dropped",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
		return false
	}
	t.lastStart = now
	t.rebuilding = true
	t.fired++
	t.mu.Unlock()

	t.logger.Info("rebuild_triggered",
		slog.String("path", event.Path),
		slog.String("op", event.Operation.String()))

	err := t.rebuild(ctx, event)

	t.mu.Lock()
	t.rebuilding = false
	t.mu.Unlock()

	if err != nil {
		t.logger.Error("rebuild_failed",
			slog.String("path", event.Path),
			slog.String("error", err.Error()))
	} else {
		t.logger.Info("rebuild_completed",
			slog.String("path", event.Path),
			slog.Duration("elapsed", t.now().Sub(now)))
	}
	return true
}

// Run consumes events from the channel until it closes or the context is
// cancelled, firing the trigger for each one.
func (t *RebuildTrigger) Run(ctx context.Context, events <-chan FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			t.logger.Debug("change_detected",
				slog.String("path", event.Path),
				slog.String("op", event.Operation.String()))
			t.Fire(ctx, event)
		}
	}
}

// Stats returns the number of rebuilds fired and events dropped.
func (t *RebuildTrigger) Stats() (fired, dropped uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired, t.dropped
}
