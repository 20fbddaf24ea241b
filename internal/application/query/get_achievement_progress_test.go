package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

type stubEvaluator struct {
	eval *saga.Evaluation
	err  error
}

func (s stubEvaluator) Evaluate(context.Context) (*saga.Evaluation, error) {
	return s.eval, s.err
}

func timePtr(t time.Time) *time.Time { return &t }

func TestGetAchievementProgress_JoinsUnlockState(t *testing.T) {
	persisted := time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)
	estimate := time.Date(2025, 8, 19, 18, 0, 0, 0, time.UTC)

	catalog := achievement.MustCatalog(
		achievement.RuleDefinition{ID: "bpm-100", Name: "Century Club", Category: achievement.CategoryTempo, Tier: achievement.TierBronze, Kind: achievement.MetricHighestTempo, Threshold: 100},
		achievement.RuleDefinition{ID: "growth-10", Name: "Steady Progress", Category: achievement.CategoryImprovement, Tier: achievement.TierBronze, Kind: achievement.MetricMaxTempoGrowth, Threshold: 10},
		achievement.RuleDefinition{ID: "sessions-10", Name: "Getting Started", Category: achievement.CategoryConsistency, Tier: achievement.TierBronze, Kind: achievement.MetricTotalSessions, Threshold: 10},
	)
	eval := &saga.Evaluation{
		Catalog: catalog,
		Progress: []achievement.ProgressRecord{
			{RuleID: "bpm-100", CurrentValue: 110, Threshold: 100, ProgressPercent: 100, IsSatisfied: true, EstimatedSatisfiedAt: timePtr(estimate)},
			{RuleID: "growth-10", CurrentValue: 10, Threshold: 10, ProgressPercent: 100, IsSatisfied: true, EstimatedSatisfiedAt: timePtr(estimate)},
			{RuleID: "sessions-10", CurrentValue: 2, Threshold: 10, ProgressPercent: 20},
		},
		Unlocks: []achievement.UnlockRecord{{ID: "u-1", RuleID: "bpm-100", UnlockedAt: persisted}},
	}

	h := NewGetAchievementProgressHandler(stubEvaluator{eval: eval})
	res, err := h.Handle(context.Background(), GetAchievementProgressQuery{})
	require.NoError(t, err)

	want := []AchievementDTO{
		{ID: "bpm-100", Name: "Century Club", Category: "bpm", Tier: "bronze", CurrentValue: 110, Threshold: 100, ProgressPercent: 100, IsSatisfied: true, IsUnlocked: true, UnlockedAt: timePtr(persisted)},
		{ID: "growth-10", Name: "Steady Progress", Category: "improvement", Tier: "bronze", CurrentValue: 10, Threshold: 10, ProgressPercent: 100, IsSatisfied: true, UnlockedAt: timePtr(estimate)},
		{ID: "sessions-10", Name: "Getting Started", Category: "consistency", Tier: "bronze", CurrentValue: 2, Threshold: 10, ProgressPercent: 20},
	}
	if diff := cmp.Diff(want, res.Achievements); diff != "" {
		t.Errorf("achievements mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, ProgressSummaryDTO{Total: 3, Unlocked: 1, Satisfied: 2, CompletionPct: 33, PendingUnlocks: 1}, res.Summary)
}

func TestGetAchievementProgress_Filters(t *testing.T) {
	catalog := achievement.MustCatalog(achievement.DefaultRules(nil)...)
	progress := make([]achievement.ProgressRecord, 0, catalog.Len())
	for _, id := range catalog.IDs() {
		progress = append(progress, achievement.ProgressRecord{RuleID: id, Threshold: 1})
	}
	eval := &saga.Evaluation{
		Catalog:  catalog,
		Progress: progress,
		Unlocks:  []achievement.UnlockRecord{{RuleID: "streak-7", UnlockedAt: time.Now()}},
	}
	h := NewGetAchievementProgressHandler(stubEvaluator{eval: eval})

	res, err := h.Handle(context.Background(), GetAchievementProgressQuery{Category: "bpm"})
	require.NoError(t, err)
	assert.Len(t, res.Achievements, 4)
	assert.Equal(t, 23, res.Summary.Total)

	res, err = h.Handle(context.Background(), GetAchievementProgressQuery{UnlockedOnly: true})
	require.NoError(t, err)
	require.Len(t, res.Achievements, 1)
	assert.Equal(t, "streak-7", res.Achievements[0].ID)
}

func TestGetAchievementProgress_Errors(t *testing.T) {
	h := NewGetAchievementProgressHandler(stubEvaluator{err: errors.New("boom")})

	_, err := h.Handle(context.Background(), GetAchievementProgressQuery{Category: "karaoke"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetAchievementProgressQuery{})
	assert.EqualError(t, err, "boom")
}
