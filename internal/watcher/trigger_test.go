package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance trigger time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestTrigger(window time.Duration, rebuild RebuildFunc) (*RebuildTrigger, *fakeClock) {
	clock := newFakeClock()
	trig := NewRebuildTrigger(window, rebuild, nil)
	trig.now = clock.Now
	return trig, clock
}

func modifyEvent(path string) FileEvent {
	return FileEvent{Path: path, Operation: OpModify, Timestamp: time.Now()}
}

func TestRebuildTrigger_FirstEventFires(t *testing.T) {
	// Given: a trigger that records rebuild reasons
	var reasons []string
	trig, _ := newTestTrigger(2*time.Second, func(_ context.Context, reason FileEvent) error {
		reasons = append(reasons, reason.Path)
		return nil
	})

	// When: a single event fires
	fired := trig.Fire(context.Background(), modifyEvent("a.py"))

	// Then: the rebuild ran with that event as the reason
	assert.True(t, fired)
	require.Len(t, reasons, 1)
	assert.Equal(t, "a.py", reasons[0])
}

func TestRebuildTrigger_EventsInsideWindow_Dropped(t *testing.T) {
	// Given: a trigger with a 2s window
	rebuilds := 0
	trig, clock := newTestTrigger(2*time.Second, func(context.Context, FileEvent) error {
		rebuilds++
		return nil
	})

	// When: five events arrive 100ms apart
	for i := 0; i < 5; i++ {
		trig.Fire(context.Background(), modifyEvent("a.py"))
		clock.Advance(100 * time.Millisecond)
	}

	// Then: only the first triggers a rebuild
	assert.Equal(t, 1, rebuilds)
	fired, dropped := trig.Stats()
	assert.Equal(t, uint64(1), fired)
	assert.Equal(t, uint64(4), dropped)
}

func TestRebuildTrigger_SpacedEvents_EachFires(t *testing.T) {
	// Given: a trigger with a 2s window
	rebuilds := 0
	trig, clock := newTestTrigger(2*time.Second, func(context.Context, FileEvent) error {
		rebuilds++
		return nil
	})

	// When: three events arrive 3s apart
	for i := 0; i < 3; i++ {
		trig.Fire(context.Background(), modifyEvent("a.py"))
		clock.Advance(3 * time.Second)
	}

	// Then: each triggers its own rebuild
	assert.Equal(t, 3, rebuilds)
}

func TestRebuildTrigger_TieBreak_FirstEventWins(t *testing.T) {
	// Given: a trigger that records which event caused each rebuild
	var reasons []string
	trig, clock := newTestTrigger(2*time.Second, func(_ context.Context, reason FileEvent) error {
		reasons = append(reasons, reason.Path)
		return nil
	})

	// When: two events arrive 100ms apart
	trig.Fire(context.Background(), modifyEvent("first.py"))
	clock.Advance(100 * time.Millisecond)
	trig.Fire(context.Background(), modifyEvent("second.py"))

	// Then: only the first event caused a rebuild
	require.Len(t, reasons, 1)
	assert.Equal(t, "first.py", reasons[0])
}

func TestRebuildTrigger_WindowMeasuredFromStart(t *testing.T) {
	// Given: a rebuild that the clock says takes 3s
	rebuilds := 0
	var trig *RebuildTrigger
	var clock *fakeClock
	trig, clock = newTestTrigger(2*time.Second, func(context.Context, FileEvent) error {
		rebuilds++
		clock.Advance(3 * time.Second)
		return nil
	})

	// When: a second event arrives right after the first rebuild returns
	trig.Fire(context.Background(), modifyEvent("a.py"))
	trig.Fire(context.Background(), modifyEvent("b.py"))

	// Then: the window expired during the rebuild, so the second fires too
	assert.Equal(t, 2, rebuilds)
}

func TestRebuildTrigger_FailedRebuildStillOpensWindow(t *testing.T) {
	// Given: a rebuild that always fails
	attempts := 0
	trig, clock := newTestTrigger(2*time.Second, func(context.Context, FileEvent) error {
		attempts++
		return errors.New("embedder down")
	})

	// When: events arrive inside and then past the window
	trig.Fire(context.Background(), modifyEvent("a.py"))
	clock.Advance(100 * time.Millisecond)
	fired := trig.Fire(context.Background(), modifyEvent("a.py"))
	assert.False(t, fired)

	clock.Advance(3 * time.Second)
	fired = trig.Fire(context.Background(), modifyEvent("a.py"))

	// Then: failure does not reset the window, and the next event retries
	assert.True(t, fired)
	assert.Equal(t, 2, attempts)
}

func TestRebuildTrigger_ConcurrentFire_SingleRebuild(t *testing.T) {
	// Given: a rebuild that blocks until released
	started := make(chan struct{})
	release := make(chan struct{})
	rebuilds := 0
	trig, _ := newTestTrigger(time.Millisecond, func(context.Context, FileEvent) error {
		rebuilds++
		close(started)
		<-release
		return nil
	})

	// When: a second event fires while the first rebuild is running
	done := make(chan struct{})
	go func() {
		trig.Fire(context.Background(), modifyEvent("a.py"))
		close(done)
	}()
	<-started

	fired := trig.Fire(context.Background(), modifyEvent("b.py"))

	// Then: the concurrent event is dropped
	assert.False(t, fired)
	close(release)
	<-done
	assert.Equal(t, 1, rebuilds)
}

func TestRebuildTrigger_Run_ConsumesChannel(t *testing.T) {
	// Given: a trigger fed by an event channel
	rebuilds := 0
	trig, _ := newTestTrigger(time.Millisecond, func(context.Context, FileEvent) error {
		rebuilds++
		return nil
	})

	events := make(chan FileEvent, 2)
	events <- modifyEvent("a.py")
	close(events)

	// When: Run drains the channel
	trig.Run(context.Background(), events)

	// Then: the event fired a rebuild
	assert.Equal(t, 1, rebuilds)
}

func TestRebuildTrigger_Run_StopsOnContextCancel(t *testing.T) {
	// Given: a running trigger loop
	trig, _ := newTestTrigger(time.Millisecond, func(context.Context, FileEvent) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan FileEvent)

	done := make(chan struct{})
	go func() {
		trig.Run(ctx, events)
		close(done)
	}()

	// When: the context is cancelled
	cancel()

	// Then: the loop exits
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for trigger loop to stop")
	}
}
