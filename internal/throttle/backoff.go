package throttle

import (
	"math"
	"time"
)

// ExponentialBackoff computes retry delays as min(Base*Factor^attempt, Max).
// Attempts are zero based.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// Delay returns the wait before retrying after the given attempt.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	raw := float64(b.Base) * math.Pow(factor, float64(attempt))
	if b.Max > 0 && (raw >= float64(b.Max) || math.IsInf(raw, 1) || math.IsNaN(raw)) {
		return b.Max
	}
	if raw >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(raw)
}
