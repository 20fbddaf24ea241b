package achievement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/pkg/timeutil"
)

// day returns 18:00 UTC on the n-th day after Monday 2025-08-18.
func day(n int) time.Time {
	return time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func sess(id, exercise string, tempo, seconds int, at time.Time) practice.Session {
	return practice.Session{
		ID:              id,
		ExerciseID:      exercise,
		Tempo:           shared.Tempo(tempo),
		DurationSeconds: shared.Seconds(seconds),
		PracticedAt:     at,
	}
}

func hist(sessions ...practice.Session) History {
	return NewHistory(sessions, nil, timeutil.DefaultCalendar())
}

func TestParseMetricKind(t *testing.T) {
	k, err := ParseMetricKind("totalSessions")
	require.NoError(t, err)
	assert.Equal(t, MetricTotalSessions, k)

	k, err = ParseMetricKind(" highest_bpm ")
	require.NoError(t, err)
	assert.Equal(t, MetricHighestTempo, k)

	k, err = ParseMetricKind("allAchievementsUnlocked")
	require.NoError(t, err)
	assert.Equal(t, MetricAllAchievementsUnlocked, k)

	_, err = ParseMetricKind("fastestFingers")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnknownMetricKind))
}

func TestExtract_Basic(t *testing.T) {
	h := hist(
		sess("1", "a", 100, 600, day(0)),
		sess("2", "a", 120, 900, day(1)),
		sess("3", "b", 90, 300, day(1)),
	)

	assert.Equal(t, 3.0, Extract(MetricTotalSessions, h, Scope{}))
	assert.Equal(t, 1800.0, Extract(MetricTotalTime, h, Scope{}))
	assert.Equal(t, 120.0, Extract(MetricHighestTempo, h, Scope{}))
	assert.Equal(t, 2.0, Extract(MetricMaxSessionsPerExercise, h, Scope{}))
	assert.Equal(t, 0.0, Extract(MetricAllAchievementsUnlocked, h, Scope{}))
}

func TestExtract_EmptyHistory(t *testing.T) {
	h := hist()
	for kind := range extractors {
		assert.Equal(t, 0.0, Extract(kind, h, Scope{}), kind)
	}
}

func TestExtract_MaxTempoGrowth(t *testing.T) {
	t.Run("two sessions", func(t *testing.T) {
		h := hist(sess("1", "a", 100, 60, day(0)), sess("2", "a", 110, 60, day(1)))
		assert.Equal(t, 10.0, Extract(MetricMaxTempoGrowth, h, Scope{}))
	})

	t.Run("single session per exercise", func(t *testing.T) {
		h := hist(sess("1", "a", 100, 60, day(0)), sess("2", "b", 140, 60, day(1)))
		assert.Equal(t, 0.0, Extract(MetricMaxTempoGrowth, h, Scope{}))
	})

	t.Run("input order does not matter", func(t *testing.T) {
		h := hist(sess("2", "a", 130, 60, day(3)), sess("1", "a", 100, 60, day(0)))
		assert.Equal(t, 30.0, Extract(MetricMaxTempoGrowth, h, Scope{}))
	})

	t.Run("slower later session keeps best gain", func(t *testing.T) {
		h := hist(
			sess("1", "a", 100, 60, day(0)),
			sess("2", "a", 125, 60, day(1)),
			sess("3", "a", 105, 60, day(2)),
		)
		assert.Equal(t, 25.0, Extract(MetricMaxTempoGrowth, h, Scope{}))
	})

	t.Run("best exercise wins", func(t *testing.T) {
		h := hist(
			sess("1", "a", 100, 60, day(0)),
			sess("2", "a", 105, 60, day(1)),
			sess("3", "b", 80, 60, day(0)),
			sess("4", "b", 120, 60, day(2)),
		)
		assert.Equal(t, 40.0, Extract(MetricMaxTempoGrowth, h, Scope{}))
	})
}

func TestExtract_LongestStreak(t *testing.T) {
	var sessions []practice.Session
	for i := 0; i < 10; i++ {
		sessions = append(sessions, sess("a", "a", 100, 60, day(i)))
	}
	// two-day gap, then three more days
	for i := 12; i < 15; i++ {
		sessions = append(sessions, sess("b", "a", 100, 60, day(i)))
	}

	assert.Equal(t, 10.0, Extract(MetricLongestStreakDays, hist(sessions...), Scope{}))
}

func TestExtract_LongestStreak_SameDayCountsOnce(t *testing.T) {
	h := hist(
		sess("1", "a", 100, 60, day(0)),
		sess("2", "b", 100, 60, day(0).Add(time.Hour)),
		sess("3", "a", 100, 60, day(1)),
	)
	assert.Equal(t, 2.0, Extract(MetricLongestStreakDays, h, Scope{}))
}

func TestExtract_LongestStreak_UsesCalendarLocation(t *testing.T) {
	late := time.Date(2025, 8, 18, 23, 30, 0, 0, time.UTC)
	early := time.Date(2025, 8, 19, 0, 30, 0, 0, time.UTC)
	sessions := []practice.Session{sess("1", "a", 100, 60, late), sess("2", "a", 100, 60, early)}

	utc := NewHistory(sessions, nil, timeutil.DefaultCalendar())
	assert.Equal(t, 2.0, Extract(MetricLongestStreakDays, utc, Scope{}))

	est := timeutil.Calendar{Location: time.FixedZone("EST", -5*3600), WeekStart: time.Sunday}
	local := NewHistory(sessions, nil, est)
	assert.Equal(t, 1.0, Extract(MetricLongestStreakDays, local, Scope{}))
}

func TestExtract_PerfectWeek(t *testing.T) {
	// day(0) is Monday 2025-08-18, day(-1) the Sunday before.
	t.Run("all practised exercises in one week", func(t *testing.T) {
		h := hist(sess("1", "a", 100, 60, day(0)), sess("2", "b", 100, 60, day(2)))
		assert.Equal(t, 1.0, Extract(MetricPerfectWeek, h, Scope{}))
	})

	t.Run("exercises split across weeks", func(t *testing.T) {
		h := hist(sess("1", "a", 100, 60, day(0)), sess("2", "b", 100, 60, day(7)))
		assert.Equal(t, 0.0, Extract(MetricPerfectWeek, h, Scope{}))
	})

	t.Run("reference set is practised exercises only", func(t *testing.T) {
		exercises := []practice.Exercise{{ID: "a"}, {ID: "b"}, {ID: "c"}}
		h := NewHistory([]practice.Session{sess("1", "a", 100, 60, day(0))}, exercises, timeutil.DefaultCalendar())
		assert.Equal(t, 1.0, Extract(MetricPerfectWeek, h, Scope{}))
	})

	t.Run("week start is configurable", func(t *testing.T) {
		sessions := []practice.Session{sess("1", "a", 100, 60, day(-1)), sess("2", "b", 100, 60, day(0))}

		sunday := NewHistory(sessions, nil, timeutil.Calendar{Location: time.UTC, WeekStart: time.Sunday})
		assert.Equal(t, 1.0, Extract(MetricPerfectWeek, sunday, Scope{}))

		monday := NewHistory(sessions, nil, timeutil.Calendar{Location: time.UTC, WeekStart: time.Monday})
		assert.Equal(t, 0.0, Extract(MetricPerfectWeek, monday, Scope{}))
	})
}

func TestExtract_Completion(t *testing.T) {
	exercises := []practice.Exercise{
		{ID: "a", SegmentID: "s1"},
		{ID: "b", SegmentID: "s1"},
		{ID: "c", SegmentID: "s2"},
	}
	sessions := []practice.Session{
		sess("1", "a", 100, 60, day(0)),
		sess("2", "b", 100, 60, day(1)),
	}
	h := NewHistory(sessions, exercises, timeutil.DefaultCalendar())

	assert.Equal(t, 1.0, Extract(MetricSegmentComplete, h, Scope{SegmentID: "s1"}))
	assert.Equal(t, 0.0, Extract(MetricSegmentComplete, h, Scope{SegmentID: "s2"}))
	assert.Equal(t, 0.0, Extract(MetricSegmentComplete, h, Scope{}), "no segment scope")
	assert.Equal(t, 0.0, Extract(MetricSegmentComplete, h, Scope{SegmentID: "missing"}), "segment without exercises")
	assert.Equal(t, 0.0, Extract(MetricCourseComplete, h, Scope{}))

	noExercises := NewHistory(sessions, nil, timeutil.DefaultCalendar())
	assert.Equal(t, 0.0, Extract(MetricCourseComplete, noExercises, Scope{}))
}

func TestExtract_Scope(t *testing.T) {
	exercises := []practice.Exercise{{ID: "a", SegmentID: "s1"}, {ID: "b", SegmentID: "s2"}}
	sessions := []practice.Session{
		sess("1", "a", 100, 60, day(0)),
		sess("2", "b", 150, 60, day(1)),
		sess("3", "a", 110, 60, day(2)),
	}
	h := NewHistory(sessions, exercises, timeutil.DefaultCalendar())

	assert.Equal(t, 110.0, Extract(MetricHighestTempo, h, Scope{ExerciseID: "a"}))
	assert.Equal(t, 2.0, Extract(MetricTotalSessions, h, Scope{SegmentID: "s1"}))
	assert.Equal(t, 150.0, Extract(MetricHighestTempo, h, Scope{SegmentID: "s2"}))
	assert.Equal(t, 0.0, Extract(MetricTotalSessions, h, Scope{ExerciseID: "zzz"}))
}
