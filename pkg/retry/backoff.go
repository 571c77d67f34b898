package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy paces the retries Do makes after a transient GitHub failure
// (secondary rate limit, 429 or 5xx) inside a single scrape.
type Strategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows the wait between /rate_limit attempts as
// Base * Factor^attempt up to Max. Jitter spreads concurrent scrapes
// hitting the same degraded API by up to +/- that fraction.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff keeps a full retry budget well inside the default scrape
// timeout: 250ms, 500ms, 1s, ... capped at 5s, with 20% jitter.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns how long Do sleeps before retry number attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	attempt = max(attempt, 0)

	delay := min(float64(b.Base)*math.Pow(b.Factor, float64(attempt)), float64(b.Max))
	if math.IsNaN(delay) {
		delay = float64(b.Max)
	}
	if b.Jitter > 0 {
		delay *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return time.Duration(max(delay, 0))
}
