package app

import (
	"context"
	"fmt"

	"github.com/practice-hub/practice-hub/config"
	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/infrastructure/scheduler"
	"github.com/practice-hub/practice-hub/internal/infrastructure/scheduler/jobs"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

// ScheduledReconcile adapts the flow to the reconcile job.
func ScheduledReconcile(flow *saga.AchievementFlowSaga) jobs.ReconcileFunc {
	return func(ctx context.Context) ([]string, int, error) {
		res, err := flow.Execute(ctx, saga.AchievementFlowInput{Trigger: saga.TriggerScheduled})
		if err != nil {
			return nil, 0, err
		}
		return res.Reconcile.NewlyUnlockedIDs(), len(res.Reconcile.Failures), nil
	}
}

// NewScheduler creates a scheduler with the reconcile_achievements job registered.
func NewScheduler(cfg *config.Config, flow *saga.AchievementFlowSaga, log *logger.Logger) (*scheduler.Scheduler, error) {
	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.ReconcileSchedule)
	if err != nil {
		return nil, err
	}

	s := scheduler.New(scheduler.Config{
		Logger:       log,
		Timezone:     cfg.Achievements.Calendar.Location,
		TickInterval: cfg.Scheduler.TickInterval,
		RunOnStart:   cfg.Scheduler.RunOnStart,
	})

	job := jobs.NewReconcileAchievementsJob(ScheduledReconcile(flow), log, jobs.ReconcileAchievementsConfig{
		Timeout:       cfg.Scheduler.JobTimeout,
		FailOnPartial: cfg.Scheduler.FailOnPartial,
	})
	if err := s.Register(job, schedule); err != nil {
		return nil, fmt.Errorf("register %s: %w", job.Name(), err)
	}
	return s, nil
}
