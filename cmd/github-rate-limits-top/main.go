package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/theodore86/github-rate-limits-exporter/pkg/config"
	"github.com/theodore86/github-rate-limits-exporter/pkg/logging"
)

var Version = "0.7.4"

const (
	programName    = "github-rate-limits-top"
	startupTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load(programName, os.Args[1:])
	if err != nil {
		var helpErr *config.HelpError
		if errors.As(err, &helpErr) {
			fmt.Fprint(os.Stdout, helpErr.Usage)
			os.Exit(0)
		}
		var argErr *config.ArgumentError
		if errors.As(err, &argErr) {
			fmt.Fprint(os.Stderr, argErr.Usage)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg.ShowVersion {
		fmt.Printf("%s: %s\n", programName, Version)
		os.Exit(0)
	}

	// The terminal belongs to the dashboard, so logs only go to a file and only with -v.
	logger := zap.NewNop()
	if cfg.Verbosity > 0 {
		logFile, err := tea.LogToFile(programName+".log", "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
			os.Exit(1)
		}
		defer logFile.Close()
		logger = logging.NewWithWriter(cfg.Verbosity, logFile)
	}
	defer logging.Flush(logger)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	requester, err := cfg.NewRequester(ctx, logger)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to create rate limits requester: %v\n", programName, err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(cfg.Account, requester), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
