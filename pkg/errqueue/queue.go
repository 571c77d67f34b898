// Package errqueue carries failures from scrape goroutines to the supervising loop.
package errqueue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultSize bounds the number of undelivered failures.
const DefaultSize = 16

// Failure is an error tagged with the component that raised it.
type Failure struct {
	Source string
	Err    error
	Time   time.Time
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Source, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Queue is a bounded, non-blocking-on-put channel of failures.
type Queue struct {
	ch      chan *Failure
	logger  *zap.Logger
	dropped atomic.Uint64
}

func New(size int, logger *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{ch: make(chan *Failure, size), logger: logger}
}

// Put enqueues err without blocking. It returns false when the queue is full and the
// failure was dropped.
func (q *Queue) Put(source string, err error) bool {
	if err == nil {
		return true
	}
	f := &Failure{Source: source, Err: err, Time: time.Now().UTC()}
	select {
	case q.ch <- f:
		return true
	default:
		n := q.dropped.Add(1)
		q.logger.Warn("error_dropped",
			zap.String("source", source),
			zap.Error(err),
			zap.Uint64("dropped_total", n))
		return false
	}
}

// Get waits up to timeout for a failure and returns nil if none arrived.
func (q *Queue) Get(timeout time.Duration) *Failure {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.ch:
		return f
	case <-timer.C:
		return nil
	}
}

// C exposes the receive side for select loops.
func (q *Queue) C() <-chan *Failure {
	return q.ch
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Guard wraps fn so that its error is published on q instead of returned. The boolean
// result reports success.
func Guard[T any](q *Queue, source string, fn func(context.Context) (T, error)) func(context.Context) (T, bool) {
	return func(ctx context.Context) (T, bool) {
		v, err := fn(ctx)
		if err != nil {
			q.Put(source, err)
			var zero T
			return zero, false
		}
		return v, true
	}
}
