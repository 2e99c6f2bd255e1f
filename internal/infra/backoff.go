package infra

import (
	"math/rand/v2"
	"time"
)

// Backoff is an exponential retry delay: Base * 2^retry, capped at Max,
// then spread by up to ±Jitter of itself so retries from one burst do not
// land together.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction in [0,1]
}

// DefaultBackoff is used by the job queue and the kafka reader unless configured.
var DefaultBackoff = Backoff{Base: time.Second, Max: 60 * time.Second, Jitter: 0.2}

// CalculateBackoff returns DefaultBackoff's delay for a retry count.
func CalculateBackoff(retryCount int) time.Duration {
	return DefaultBackoff.Delay(retryCount)
}

// Delay returns the delay before retry number retryCount (0 for the first retry).
// The result never exceeds Max.
func (b Backoff) Delay(retryCount int) time.Duration {
	d := b.exponential(retryCount)

	jitter := min(b.Jitter, 1)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	d = time.Duration(float64(d) - spread + rand.Float64()*2*spread)
	if d > b.Max {
		return b.Max
	}
	return d
}

func (b Backoff) exponential(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// 2^30 base units is already far beyond any sane cap.
	if retryCount > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<retryCount)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
