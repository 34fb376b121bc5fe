package throttle

import (
	"context"
	"time"
)

// Limiter gates calls to a shared upstream. Execute never drops work: it
// waits for capacity and then runs fn. Only context cancellation ends the
// wait early.
type Limiter interface {
	Execute(ctx context.Context, fn func(context.Context) error) error
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
