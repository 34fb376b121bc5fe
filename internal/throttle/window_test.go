package throttle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newTestWindow(limit int, window, buffer time.Duration, clock *fakeClock) *Window {
	w := NewWindow(limit, window, buffer)
	w.now = clock.Now
	w.sleep = clock.Sleep
	return w
}

func TestWindowNeverExceedsLimit(t *testing.T) {
	clock := newFakeClock()
	window := time.Second
	w := newTestWindow(3, window, 10*time.Millisecond, clock)

	var started []time.Time
	for i := 0; i < 20; i++ {
		err := w.Execute(context.Background(), func(context.Context) error {
			started = append(started, clock.Now())
			return nil
		})
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}

	if len(started) != 20 {
		t.Fatalf("expected every call to run, got %d", len(started))
	}
	for i, from := range started {
		count := 0
		for _, ts := range started {
			if !ts.Before(from) && ts.Sub(from) < window {
				count++
			}
		}
		if count > 3 {
			t.Fatalf("window starting at call %d contains %d calls", i, count)
		}
	}
}

func TestWindowWaitsForOldestCallPlusBuffer(t *testing.T) {
	clock := newFakeClock()
	w := newTestWindow(2, time.Second, 50*time.Millisecond, clock)
	start := clock.Now()

	noop := func(context.Context) error { return nil }
	for i := 0; i < 2; i++ {
		if err := w.Execute(context.Background(), noop); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("expected no wait below the limit, clock moved to %v", got)
	}

	if err := w.Execute(context.Background(), noop); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if waited := clock.Now().Sub(start); waited != time.Second+50*time.Millisecond {
		t.Fatalf("expected wait of window plus buffer, got %v", waited)
	}
}

func callsInWindow(w *Window) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.calls)
}

func TestWindowPrunesExpiredCalls(t *testing.T) {
	clock := newFakeClock()
	w := newTestWindow(5, time.Second, 0, clock)
	for i := 0; i < 3; i++ {
		_ = w.Execute(context.Background(), func(context.Context) error { return nil })
	}
	if got := callsInWindow(w); got != 3 {
		t.Fatalf("expected 3 calls in window, got %d", got)
	}
	_ = clock.Sleep(context.Background(), time.Second)
	if got := callsInWindow(w); got != 0 {
		t.Fatalf("expected window to be empty after expiry, got %d", got)
	}
}

func TestWindowPropagatesFnError(t *testing.T) {
	w := NewWindow(1, time.Second, 0)
	boom := errors.New("boom")
	if err := w.Execute(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestWindowStopsWaitingOnCancel(t *testing.T) {
	w := NewWindow(1, time.Hour, 0)
	_ = w.Execute(context.Background(), func(context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := w.Execute(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if ran {
		t.Fatal("fn must not run after cancellation")
	}
}

func TestWindowConcurrentCallersAreDelayedNotDropped(t *testing.T) {
	window := 100 * time.Millisecond
	w := NewWindow(2, window, 0)

	var ran atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Execute(context.Background(), func(context.Context) error {
				ran.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	if ran.Load() != 6 {
		t.Fatalf("expected 6 executions, got %d", ran.Load())
	}
	if elapsed := time.Since(start); elapsed < 2*window {
		t.Fatalf("expected at least %v for three windows of calls, took %v", 2*window, elapsed)
	}
}
