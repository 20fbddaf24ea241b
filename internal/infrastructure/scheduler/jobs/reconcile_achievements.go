// Package jobs contains implementations of scheduled jobs for Practice Hub.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/practice-hub/practice-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE ACHIEVEMENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileFunc runs one reconciliation pass and reports the rule ids it
// unlocked plus the number of rules whose unlock could not be persisted.
type ReconcileFunc func(ctx context.Context) (newlyUnlocked []string, failures int, err error)

// ReconcileAchievementsJob is the periodic refresh trigger: it picks up
// unlocks that a failed insert or a missed session trigger left behind.
type ReconcileAchievementsJob struct {
	reconcile ReconcileFunc
	log       *logger.Logger
	config    ReconcileAchievementsConfig

	lastStats atomic.Value // *ReconcileStats
	now       func() time.Time
}

// ReconcileAchievementsConfig contains configuration for the job.
type ReconcileAchievementsConfig struct {
	// Timeout bounds a single run.
	Timeout time.Duration

	// FailOnPartial reports the run as failed when some unlocks were not persisted.
	FailOnPartial bool
}

// DefaultReconcileAchievementsConfig returns sensible defaults.
func DefaultReconcileAchievementsConfig() ReconcileAchievementsConfig {
	return ReconcileAchievementsConfig{
		Timeout:       time.Minute,
		FailOnPartial: false,
	}
}

// ReconcileStats contains statistics from one run.
type ReconcileStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	NewlyUnlocked []string
	Failures      int
	Err           error
}

// NewReconcileAchievementsJob creates the job.
func NewReconcileAchievementsJob(reconcile ReconcileFunc, log *logger.Logger, config ReconcileAchievementsConfig) *ReconcileAchievementsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileAchievementsJob{
		reconcile: reconcile,
		log:       log.With(logger.String("job", "reconcile_achievements")),
		config:    config,
		now:       time.Now,
	}
}

// Name returns the job name.
func (j *ReconcileAchievementsJob) Name() string {
	return "reconcile_achievements"
}

// Description returns a human-readable description.
func (j *ReconcileAchievementsJob) Description() string {
	return "Re-evaluates every achievement rule and persists unlocks that are still missing"
}

// Run executes one reconciliation pass.
func (j *ReconcileAchievementsJob) Run(ctx context.Context) error {
	stats := &ReconcileStats{StartedAt: j.now()}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	unlocked, failures, err := j.reconcile(ctx)
	stats.NewlyUnlocked = unlocked
	stats.Failures = failures
	stats.Err = err
	stats.CompletedAt = j.now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	j.lastStats.Store(stats)

	if err != nil {
		j.log.Error("reconcile run failed", logger.Err(err), logger.Latency(stats.Duration))
		return fmt.Errorf("reconcile achievements: %w", err)
	}

	j.log.Info("reconcile run completed",
		logger.Strings("newly_unlocked", unlocked),
		logger.Int("failures", failures),
		logger.Latency(stats.Duration),
	)

	if failures > 0 && j.config.FailOnPartial {
		return fmt.Errorf("reconcile achievements: %d unlocks not persisted", failures)
	}
	return nil
}

// LastStats returns the statistics of the most recent run, or nil.
func (j *ReconcileAchievementsJob) LastStats() *ReconcileStats {
	stats, _ := j.lastStats.Load().(*ReconcileStats)
	return stats
}
