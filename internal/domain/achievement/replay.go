package achievement

import (
	"math"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
)

// replayer walks a scoped history in time order and returns the timestamp of the
// session at which the metric first reached threshold.
type replayer func(h History, scope Scope, threshold float64) (time.Time, bool)

// replayers mirrors extractors: every history-derived kind has exactly one replay rule.
var replayers = map[MetricKind]replayer{
	MetricTotalSessions:          replayTotalSessions,
	MetricTotalTime:              replayTotalTime,
	MetricHighestTempo:           replayHighestTempo,
	MetricMaxTempoGrowth:         replayMaxTempoGrowth,
	MetricLongestStreakDays:      replayLongestStreak,
	MetricPerfectWeek:            replayPerfectWeek,
	MetricMaxSessionsPerExercise: replayMaxSessionsPerExercise,
	MetricSegmentComplete:        replaySegmentComplete,
	MetricCourseComplete:         replayCourseComplete,
}

// EstimateSatisfiedAt returns when a satisfied rule first crossed its threshold.
// If replay cannot pin a session it falls back to the latest session, then to now.
func EstimateSatisfiedAt(kind MetricKind, h History, scope Scope, threshold float64, now time.Time) time.Time {
	scoped := h.Scoped(scope)
	if fn, ok := replayers[kind]; ok {
		if at, found := fn(scoped, scope, threshold); found {
			return at
		}
	}
	if last, ok := scoped.Last(); ok {
		return last.PracticedAt
	}
	return now
}

func replayTotalSessions(h History, _ Scope, threshold float64) (time.Time, bool) {
	idx := int(math.Ceil(threshold)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(h.Sessions) {
		return time.Time{}, false
	}
	return h.Sessions[idx].PracticedAt, true
}

func replayTotalTime(h History, _ Scope, threshold float64) (time.Time, bool) {
	var sum float64
	for _, s := range h.Sessions {
		sum += float64(s.DurationSeconds.Int())
		if sum >= threshold {
			return s.PracticedAt, true
		}
	}
	return time.Time{}, false
}

func replayHighestTempo(h History, _ Scope, threshold float64) (time.Time, bool) {
	for _, s := range h.Sessions {
		if float64(s.Tempo.Int()) >= threshold {
			return s.PracticedAt, true
		}
	}
	return time.Time{}, false
}

// replayMaxTempoGrowth walks all exercises together so the earliest crossing wins.
func replayMaxTempoGrowth(h History, _ Scope, threshold float64) (time.Time, bool) {
	first := make(map[string]int)
	for _, s := range h.Sessions {
		base, seen := first[s.ExerciseID]
		if !seen {
			first[s.ExerciseID] = s.Tempo.Int()
			continue
		}
		if float64(s.Tempo.Int()-base) >= threshold {
			return s.PracticedAt, true
		}
	}
	return time.Time{}, false
}

func replayLongestStreak(h History, _ Scope, threshold float64) (time.Time, bool) {
	var (
		run     int
		lastDay time.Time
	)
	for i, s := range h.Sessions {
		day := h.Calendar.StartOfDay(s.PracticedAt)
		switch {
		case i == 0:
			run = 1
		case h.Calendar.DaysBetween(lastDay, day) == 0:
			continue
		case h.Calendar.DaysBetween(lastDay, day) == 1:
			run++
		default:
			run = 1
		}
		lastDay = day
		if float64(run) >= threshold {
			return s.PracticedAt, true
		}
	}
	return time.Time{}, false
}

func replayPerfectWeek(h History, _ Scope, _ float64) (time.Time, bool) {
	practised := h.PractisedExercises()
	weeks := make(map[string]map[string]struct{})
	for _, s := range h.Sessions {
		key := h.Calendar.WeekKey(s.PracticedAt)
		if weeks[key] == nil {
			weeks[key] = make(map[string]struct{})
		}
		weeks[key][s.ExerciseID] = struct{}{}
		if len(weeks[key]) == len(practised) {
			return s.PracticedAt, true
		}
	}
	return time.Time{}, false
}

func replayMaxSessionsPerExercise(h History, _ Scope, threshold float64) (time.Time, bool) {
	counts := make(map[string]int)
	for _, s := range h.Sessions {
		counts[s.ExerciseID]++
		if float64(counts[s.ExerciseID]) >= threshold {
			return s.PracticedAt, true
		}
	}
	return time.Time{}, false
}

func replaySegmentComplete(h History, scope Scope, _ float64) (time.Time, bool) {
	if scope.SegmentID == "" {
		return time.Time{}, false
	}
	return latestFirstSession(h, h.SegmentExercises(scope.SegmentID))
}

func replayCourseComplete(h History, _ Scope, _ float64) (time.Time, bool) {
	return latestFirstSession(h, h.Exercises)
}

// latestFirstSession returns the moment the last of the exercises got its first session.
func latestFirstSession(h History, exercises []practice.Exercise) (time.Time, bool) {
	if len(exercises) == 0 {
		return time.Time{}, false
	}
	first := h.FirstSessions()
	var latest time.Time
	for _, ex := range exercises {
		at, ok := first[ex.ID]
		if !ok {
			return time.Time{}, false
		}
		if at.After(latest) {
			latest = at
		}
	}
	return latest, true
}
