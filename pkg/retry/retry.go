// Package retry re-runs upstream calls that failed with a transient error.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times, and after which errors, a call is retried.
// The zero Policy makes exactly one attempt.
type Policy struct {
	MaxRetries int
	Backoff    Strategy
	Retryable  func(error) bool

	// OnRetry, when set, observes every failed attempt that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, the retries are
// exhausted or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}

	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.MaxRetries || p.Retryable == nil || !p.Retryable(err) {
			return v, err
		}

		wait := backoff.Next(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return v, err
		case <-timer.C:
		}
	}
}
