package achievement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

func TestNewCatalog_RejectsInvalidRules(t *testing.T) {
	valid := RuleDefinition{ID: "ok", Kind: MetricTotalSessions, Threshold: 1}

	tests := []struct {
		name string
		bad  RuleDefinition
		want error
	}{
		{"zero threshold", RuleDefinition{ID: "x", Kind: MetricTotalTime, Threshold: 0}, shared.ErrNonPositiveThresh},
		{"negative threshold", RuleDefinition{ID: "x", Kind: MetricTotalTime, Threshold: -3}, shared.ErrNonPositiveThresh},
		{"unknown kind", RuleDefinition{ID: "x", Kind: "fastestFingers", Threshold: 1}, shared.ErrUnknownMetricKind},
		{"empty id", RuleDefinition{Kind: MetricTotalTime, Threshold: 1}, shared.ErrInvalidRule},
		{"segment rule without segment", RuleDefinition{ID: "x", Kind: MetricSegmentComplete, Threshold: 1}, shared.ErrInvalidRule},
		{"duplicate id", valid, shared.ErrDuplicateRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(valid, tt.bad)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestNewCatalog_ReportsEveryProblem(t *testing.T) {
	_, err := NewCatalog(
		RuleDefinition{ID: "a", Kind: MetricTotalTime, Threshold: 0},
		RuleDefinition{ID: "b", Kind: "nope", Threshold: 1},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNonPositiveThresh))
	assert.True(t, errors.Is(err, shared.ErrUnknownMetricKind))
}

func TestMustCatalog_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustCatalog(RuleDefinition{ID: "a", Kind: MetricTotalTime, Threshold: 0})
	})
}

func TestCatalog_Lookup(t *testing.T) {
	c := MustCatalog(
		RuleDefinition{ID: "a", Kind: MetricTotalSessions, Threshold: 1},
		RuleDefinition{ID: "b", Kind: MetricHighestTempo, Threshold: 100},
	)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"a", "b"}, c.IDs())

	r, ok := c.Rule("b")
	require.True(t, ok)
	assert.Equal(t, MetricHighestTempo, r.Kind)

	_, ok = c.Rule("z")
	assert.False(t, ok)

	rules := c.Rules()
	rules[0].ID = "mutated"
	assert.True(t, c.Has("a"))
}

func TestDefaultRules(t *testing.T) {
	base, err := DefaultCatalog(nil)
	require.NoError(t, err)
	assert.Equal(t, 23, base.Len())
	assert.Equal(t, []string{"course-complete", "all-achievements"}, base.IDs()[21:])

	r, ok := base.Rule("time-10h")
	require.True(t, ok)
	assert.Equal(t, 36000.0, r.Threshold)
	assert.Equal(t, CategoryTime, r.Category)
	assert.Equal(t, TierBronze, r.Tier)

	r, ok = base.Rule("streak-30")
	require.True(t, ok)
	assert.Equal(t, TierGold, r.Tier)
	assert.Equal(t, CategoryConsistency, r.Category)

	segments := []practice.Segment{
		{ID: "2", Name: "Segment 2", Order: 2, StartDate: time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)},
		{ID: "1", Name: "Segment 1", Order: 1, StartDate: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC)},
	}
	full, err := DefaultCatalog(segments)
	require.NoError(t, err)
	assert.Equal(t, 25, full.Len())

	ids := full.IDs()
	assert.Equal(t, []string{"segment-1-complete", "segment-2-complete", "course-complete", "all-achievements"}, ids[21:])

	seg, ok := full.Rule(SegmentRuleID("1"))
	require.True(t, ok)
	assert.Equal(t, "1", seg.ScopeSegmentID)
	assert.Equal(t, "Segment 1 Complete", seg.Name)
}
