// Package main is the entry point of the Practice Hub API server.
//
// The server exposes the practice log and the achievement engine over HTTP
// and, unless disabled, runs the periodic reconciliation job in-process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/practice-hub/practice-hub/config"
	"github.com/practice-hub/practice-hub/internal/app"
	"github.com/practice-hub/practice-hub/internal/application/command"
	"github.com/practice-hub/practice-hub/internal/application/eventhandler"
	"github.com/practice-hub/practice-hub/internal/application/query"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/projections"
	httpapi "github.com/practice-hub/practice-hub/internal/interface/http"
	"github.com/practice-hub/practice-hub/internal/interface/http/handlers"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting Practice Hub server",
		logger.String("store", cfg.Store.Driver),
		logger.String("unlock_store", cfg.Store.UnlockStoreDriver()),
		logger.String("timezone", cfg.Achievements.Calendar.Location.String()),
		logger.String("week_start", cfg.Achievements.Calendar.WeekStart.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORES & EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn("failed to close stores", logger.Err(err))
		}
	}()

	bus, err := app.NewEventBus(ctx, cfg, stores, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() { _ = bus.Close() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. READ MODELS
	// ─────────────────────────────────────────────────────────────────────────
	recent := projections.NewRecentUnlocksView(cfg.Achievements.RecentFeedSize)
	if records, err := stores.Unlocks.ListUnlocks(ctx); err != nil {
		log.Warn("recent unlock feed starts empty", logger.Err(err))
	} else {
		recent.RebuildFromRecords(records)
	}

	onUnlocked := eventhandler.NewOnAchievementUnlockedHandler(recent, log)
	if err := bus.Subscribe(onUnlocked.EventType(), onUnlocked.Handle); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", onUnlocked.EventType(), err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	flow := app.NewFlow(cfg, stores, bus, log)

	recordSession := command.NewRecordSessionHandler(stores.Sessions, stores.Exercises, flow, bus, command.RecordSessionConfig{
		RequireKnownExercise: cfg.Achievements.RequireKnownExercise,
		Logger:               log,
	})
	unlockAchievement := command.NewUnlockAchievementHandler(stores.Unlocks, bus, log)
	getProgress := query.NewGetAchievementProgressHandler(flow)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	for _, dep := range stores.Dependencies {
		if dep.Optional {
			health.AddOptionalCheck(dep.Name, handlers.NewPingCheck(dep.Pinger))
		} else {
			health.AddCheck(dep.Name, handlers.NewPingCheck(dep.Pinger))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER & SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	server := httpapi.NewServer(httpConfig(cfg), httpapi.Dependencies{
		RecordSession:     recordSession,
		UnlockAchievement: unlockAchievement,
		Reconcile:         flow,
		GetProgress:       getProgress,
		Sessions:          stores.Sessions,
		Exercises:         stores.Exercises,
		Unlocks:           stores.Unlocks,
		RecentUnlocks:     recent,
		HealthChecker:     health,
		Logger:            log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if cfg.Scheduler.Enabled {
		sched, err := app.NewScheduler(cfg, flow, log)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		log.Info("scheduler disabled; reconciliation runs on new sessions and manual triggers only")
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("shutdown completed")
	return nil
}

func httpConfig(cfg *config.Config) httpapi.Config {
	c := httpapi.DefaultConfig()
	c.Host = cfg.HTTP.Host
	c.Port = cfg.HTTP.Port
	c.ReadTimeout = cfg.HTTP.ReadTimeout
	c.WriteTimeout = cfg.HTTP.WriteTimeout
	c.IdleTimeout = cfg.HTTP.IdleTimeout
	c.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	c.EnableCORS = cfg.HTTP.EnableCORS
	c.AllowedOrigins = cfg.HTTP.AllowedOrigins
	c.ShutdownTimeout = cfg.App.ShutdownTimeout
	return c
}
