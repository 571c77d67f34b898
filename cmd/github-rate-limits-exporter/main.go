package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/theodore86/github-rate-limits-exporter/pkg/api"
	"github.com/theodore86/github-rate-limits-exporter/pkg/collector"
	"github.com/theodore86/github-rate-limits-exporter/pkg/config"
	"github.com/theodore86/github-rate-limits-exporter/pkg/errqueue"
	"github.com/theodore86/github-rate-limits-exporter/pkg/github"
	"github.com/theodore86/github-rate-limits-exporter/pkg/logging"
	"github.com/theodore86/github-rate-limits-exporter/pkg/retry"
)

var (
	Version   = "0.7.4"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const programName = "github-rate-limits-exporter"

const (
	queuePollTimeout = 1 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(programName, args)
	if err != nil {
		var helpErr *config.HelpError
		if errors.As(err, &helpErr) {
			fmt.Fprint(stdout, helpErr.Usage)
			return 0
		}
		var argErr *config.ArgumentError
		if errors.As(err, &argErr) {
			fmt.Fprint(stderr, argErr.Usage)
			fmt.Fprintln(stderr, argErr.Error())
			return 1
		}
		fmt.Fprintf(stderr, "%s: %v\n", programName, err)
		return 1
	}

	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "%s: %s\n", programName, Version)
		return 0
	}

	logger := logging.New(cfg.Verbosity).With(zap.String("component", programName))
	defer logging.Flush(logger)

	var shutdown atomic.Bool
	stop := registerShutdown(&shutdown, logger)
	defer stop()

	logger.Info("system_started", zap.String("version", Version), zap.String("commit", Commit), zap.String("build_time", BuildTime))
	if err := serve(context.Background(), cfg, logger, &shutdown, nil); err != nil {
		logger.Error("exporter_failed", zap.Error(err))
		fmt.Fprintf(stderr, "%s: %v\n", programName, err)
		return 1
	}
	logger.Info("shutdown_complete")
	return 0
}

// serve runs the exporter until shutdown is set or a failure is dequeued. When started
// is not nil it receives the bound HTTP address.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdown *atomic.Bool, started chan<- string) error {
	requester, err := cfg.NewRequester(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to create rate limits requester: %w", err)
	}

	queue := errqueue.New(errqueue.DefaultSize, logger)
	coll, err := collector.New(cfg.Account, requester, queue,
		collector.WithLogger(logger),
		collector.WithRetry(retryPolicy(cfg.MaxRetries, logger)),
	)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(coll); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := api.NewServer(cfg.BindAddress, cfg.ListenPort, reg, logger)
	if err := srv.Start(func(err error) { queue.Put("http server", err) }); err != nil {
		return err
	}
	logger.Info("exporter_started",
		zap.String("addr", srv.Addr()),
		zap.String("account", cfg.Account),
		zap.String("auth_type", string(requester.Mode())))
	if started != nil {
		started <- srv.Addr()
	}

	failure := supervise(queue, shutdown, queuePollTimeout)

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("server_stop_failed", zap.Error(err))
	}
	return failure
}

func retryPolicy(maxRetries int, logger *zap.Logger) retry.Policy {
	return retry.Policy{
		MaxRetries: maxRetries,
		Backoff:    retry.DefaultBackoff(),
		Retryable:  github.IsRetryable,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Warn("collect_retry",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}
}
