package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"vote-monitoring/internal/ancestry"
	"vote-monitoring/internal/correlator"
	"vote-monitoring/internal/logger"
	"vote-monitoring/internal/metrics"
	"vote-monitoring/internal/pubsub"
	"vote-monitoring/internal/resolver"
	"vote-monitoring/internal/rpc"
	"vote-monitoring/internal/tower"
	"vote-monitoring/internal/tui"
)

const tuiUpdateBufferSize = 256

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream votes and check tower discipline live",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

func runWatch() error {
	cfg := loadConfig()

	// While the TUI owns the terminal, logs go to a file.
	var logWriter io.Writer = os.Stderr
	if !cfg.Debug {
		logFile, err := os.OpenFile("voteview.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logWriter = logFile
			defer logFile.Close()
		} else {
			fmt.Fprintf(os.Stderr, "warning: failed to open log file, logs may interfere with the dashboard: %v\n", err)
		}
	}
	log := logger.NewWithWriter(cfg.Debug, logWriter)
	log.Infof("config: %s", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	met := metrics.NewSet(registry)
	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr, registry, log)
		log.Infof("metrics on %s/metrics", cfg.MetricsAddr)
	}

	res := resolver.New(rpc.NewClient(cfg.RPCURL), log)

	ps, err := pubsub.Dial(ctx, cfg.WSURL, log)
	if err != nil {
		return err
	}
	defer ps.Close()

	slotCh, slotUnsub, err := ps.SubscribeSlots(ctx)
	if err != nil {
		return err
	}
	defer slotUnsub()

	voteCh, voteUnsub, err := ps.SubscribeVotes(ctx)
	if err != nil {
		return err
	}
	defer voteUnsub()

	var updates chan interface{}
	if !cfg.Debug {
		updates = make(chan interface{}, tuiUpdateBufferSize)
		go func() {
			if err := tui.Run(updates); err != nil {
				log.Errorf("dashboard error: %v", err)
			}
			// Dashboard exited (quit key), end the session.
			cancel()
		}()
		defer close(updates)
	}

	corr := correlator.New(correlator.Config{
		Log:      log,
		Ancestry: ancestry.NewTracker(cfg.AncestryCap),
		Towers:   tower.NewSet(),
		Metrics:  met,
		Updates:  updates,
		Labeler:  res.Resolve,
	})

	runErr := corr.Run(ctx, slotCh, voteCh)

	var violation *correlator.ViolationError
	switch {
	case runErr == nil:
	case errors.As(runErr, &violation):
		log.Errorf("PROTOCOL VIOLATION: %v", violation)
		fmt.Fprintf(os.Stderr, "protocol violation: %v\n", violation)
		return runErr
	case errors.Is(runErr, context.Canceled):
		log.Info("shutting down...")
	default:
		return runErr
	}

	if err := ps.Err(); err != nil {
		return err
	}
	return nil
}
