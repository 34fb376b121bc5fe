package throttle

import (
	"context"
	"sync"
	"time"
)

// Window is an in-process sliding-window limiter: at most limit calls start
// within any trailing window.
type Window struct {
	limit  int
	window time.Duration
	buffer time.Duration

	mu    sync.Mutex
	calls []time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewWindow builds a limiter allowing limit calls per window. buffer is added
// to every computed wait so a retry lands after the oldest call expired.
func NewWindow(limit int, window, buffer time.Duration) *Window {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Window{
		limit:  limit,
		window: window,
		buffer: buffer,
		calls:  make([]time.Time, 0, limit),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Execute waits for a free slot in the window and runs fn.
func (w *Window) Execute(ctx context.Context, fn func(context.Context) error) error {
	for {
		wait, ok := w.reserve()
		if ok {
			return fn(ctx)
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve records a call when the window has room, otherwise it reports how
// long until the oldest call leaves the window.
func (w *Window) reserve() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.calls) < w.limit {
		w.calls = append(w.calls, now)
		return 0, true
	}
	return w.window - now.Sub(w.calls[0]) + w.buffer, false
}

func (w *Window) prune(now time.Time) {
	keep := 0
	for keep < len(w.calls) && now.Sub(w.calls[keep]) >= w.window {
		keep++
	}
	if keep == 0 {
		return
	}
	n := copy(w.calls, w.calls[keep:])
	w.calls = w.calls[:n]
}
