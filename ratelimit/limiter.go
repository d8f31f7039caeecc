// Package ratelimit gates outbound delivery attempts with a token
// bucket.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket with a fixed capacity and refill rate.
// Acquire never blocks; it reserves tokens and tells the caller how
// long to wait, so waits stay cancellable at the call site. Safe for
// concurrent use.
type Limiter struct {
	lim *rate.Limiter
}

// New creates a limiter with the given bucket capacity and refill rate
// in tokens per second. A non-positive refill rate disables limiting.
func New(capacity int, refillPerSec float64) *Limiter {
	if refillPerSec <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(refillPerSec), capacity)}
}

// Acquire reserves n tokens and returns how long the caller must wait
// before proceeding. Zero means the tokens were available immediately.
// The caller performs the wait itself and may abandon it on shutdown;
// an abandoned reservation simply costs the bucket those tokens.
func (l *Limiter) Acquire(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return l.lim.ReserveN(time.Now(), n).Delay()
}
