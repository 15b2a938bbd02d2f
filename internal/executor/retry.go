package executor

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures the exponential backoff applied between
// transient-failure retries.
type RetryPolicy struct {
	InitialBackoff time.Duration
	Multiplier     float64
	JitterFraction float64 // e.g. 0.2 for +/-20%
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultRetryPolicy is the executor's built-in backoff: 100ms initial,
// doubling, +/-20% jitter, capped at 30s, up to 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		Multiplier:     2,
		JitterFraction: 0.2,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    5,
	}
}

// backoff computes the delay before retry attempt n (0-based: the delay
// before the second overall attempt is backoff(0)).
func (p RetryPolicy) backoff(n int) time.Duration {
	raw := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(n))
	if raw > float64(p.MaxBackoff) {
		raw = float64(p.MaxBackoff)
	}

	jitter := raw * p.JitterFraction * (2*rand.Float64() - 1)
	d := time.Duration(raw + jitter)
	if d < 0 {
		d = 0
	}
	return d
}
