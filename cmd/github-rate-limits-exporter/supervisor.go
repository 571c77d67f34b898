package main

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/theodore86/github-rate-limits-exporter/pkg/errqueue"
)

// registerShutdown sets flag on SIGTERM, SIGINT or SIGHUP. The returned func
// unregisters the handler.
func registerShutdown(flag *atomic.Bool, logger *zap.Logger) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			logger.Info("shutdown_initiated", zap.String("signal", sig.String()))
			flag.Store(true)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// supervise blocks until shutdown is set or a failure arrives on queue, checking the
// flag at least every poll.
func supervise(queue *errqueue.Queue, shutdown *atomic.Bool, poll time.Duration) error {
	for !shutdown.Load() {
		if f := queue.Get(poll); f != nil {
			return f
		}
	}
	return nil
}
