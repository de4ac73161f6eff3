package usecase

import (
	"math/rand"
	"time"
)

// Backoff computes reconnection delays: exponential growth from Base capped
// at Max, with symmetric jitter so simultaneous clients do not stampede the
// endpoint.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Jitter      float64
	MaxAttempts int
}

// DefaultBackoff matches the documented reconnect policy: base 1s, cap 30s,
// jitter ±20%, 10 attempts before escalating to a hard error.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:        time.Second,
		Max:         30 * time.Second,
		Jitter:      0.2,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}

	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}
