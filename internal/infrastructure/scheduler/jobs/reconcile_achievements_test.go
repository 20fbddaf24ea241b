package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/infrastructure/scheduler"
)

func TestReconcileAchievementsJob_Run(t *testing.T) {
	var gotDeadline bool
	job := NewReconcileAchievementsJob(func(ctx context.Context) ([]string, int, error) {
		_, gotDeadline = ctx.Deadline()
		return []string{"bpm-100"}, 1, nil
	}, nil, DefaultReconcileAchievementsConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, gotDeadline)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, []string{"bpm-100"}, stats.NewlyUnlocked)
	assert.Equal(t, 1, stats.Failures)
}

func TestReconcileAchievementsJob_FailOnPartial(t *testing.T) {
	job := NewReconcileAchievementsJob(func(context.Context) ([]string, int, error) {
		return nil, 2, nil
	}, nil, ReconcileAchievementsConfig{FailOnPartial: true})

	assert.ErrorContains(t, job.Run(context.Background()), "2 unlocks not persisted")
}

func TestReconcileAchievementsJob_Error(t *testing.T) {
	down := errors.New("store down")
	job := NewReconcileAchievementsJob(func(context.Context) ([]string, int, error) {
		return nil, 0, down
	}, nil, DefaultReconcileAchievementsConfig())

	assert.Nil(t, job.LastStats())
	assert.ErrorIs(t, job.Run(context.Background()), down)
	assert.ErrorIs(t, job.LastStats().Err, down)
}

func TestReconcileAchievementsJob_WithScheduler(t *testing.T) {
	calls := 0
	job := NewReconcileAchievementsJob(func(context.Context) ([]string, int, error) {
		calls++
		return nil, 0, nil
	}, nil, DefaultReconcileAchievementsConfig())

	s := scheduler.New(scheduler.Config{})
	require.NoError(t, s.Register(job, scheduler.NewIntervalSchedule(15*time.Minute)))

	res, err := s.RunNow(context.Background(), job.Name())
	require.NoError(t, err)
	assert.Equal(t, "reconcile_achievements", res.JobName)
	assert.Equal(t, 1, calls)
}
