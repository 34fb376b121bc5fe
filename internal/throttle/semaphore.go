package throttle

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds how many operations run at once. Waiters are served in
// FIFO order and a released permit goes straight to the next waiter.
type Semaphore struct {
	weighted *semaphore.Weighted
	permits  int64
	inFlight atomic.Int64
}

// NewSemaphore returns a semaphore with the given number of permits.
func NewSemaphore(permits int) *Semaphore {
	if permits <= 0 {
		permits = 1
	}
	return &Semaphore{
		weighted: semaphore.NewWeighted(int64(permits)),
		permits:  int64(permits),
	}
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := s.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	s.inFlight.Add(1)
	return nil
}

// Release returns a permit.
func (s *Semaphore) Release() {
	s.inFlight.Add(-1)
	s.weighted.Release(1)
}

// Execute runs fn while holding a permit. The permit is released when fn
// returns or panics.
func (s *Semaphore) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()
	return fn(ctx)
}

// InFlight reports how many permits are held.
func (s *Semaphore) InFlight() int {
	return int(s.inFlight.Load())
}

// Permits reports the configured capacity.
func (s *Semaphore) Permits() int {
	return int(s.permits)
}
