// Package main is the entry point of the Practice Hub worker.
//
// The worker runs only the scheduler: it periodically re-evaluates the
// practice log and persists any unlock the request path missed. Deploy it
// next to API servers started with SCHEDULER_ENABLED=false.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/practice-hub/practice-hub/config"
	"github.com/practice-hub/practice-hub/internal/app"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Scheduler.Enabled {
		return errors.New("SCHEDULER_ENABLED=false leaves the worker nothing to do")
	}
	if cfg.Store.Driver == config.DriverMemory {
		return errors.New("the worker needs a shared store; set STORE_DRIVER to sqlite or postgres")
	}

	log := app.NewLogger(cfg).Named("worker")
	defer func() { _ = log.Sync() }()

	log.Info("starting Practice Hub worker",
		logger.String("schedule", cfg.Scheduler.ReconcileSchedule),
		logger.String("store", cfg.Store.Driver),
		logger.String("unlock_store", cfg.Store.UnlockStoreDriver()),
	)

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn("failed to close stores", logger.Err(err))
		}
	}()

	// Unlock events reach API instances only through Redis; otherwise the
	// local bus has no subscribers and publishing is skipped.
	bus, err := app.NewEventBus(ctx, cfg, stores, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() { _ = bus.Close() }()

	flow := app.NewFlow(cfg, stores, bus, log)
	sched, err := app.NewScheduler(cfg, flow, log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := sched.Run(ctx); err != nil {
		return err
	}

	for _, res := range sched.History(5) {
		log.Info("recent run",
			logger.String("job", res.JobName),
			logger.Bool("success", res.Success()),
			logger.Duration("duration", res.Duration),
		)
	}
	log.Info("shutdown completed")
	return nil
}
