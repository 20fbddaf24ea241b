// Package achievement turns the practice log into rule progress and reconciles
// satisfied rules against the persisted unlock records.
//
// The package is a pure domain layer: metric extraction and evaluation never perform I/O,
// and the only side effects happen in Reconciler through the UnlockStore contract.
package achievement

import (
	"fmt"
	"strings"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// MetricKind names how a rule's current value is derived from the practice log.
type MetricKind string

const (
	MetricTotalSessions           MetricKind = "totalSessions"
	MetricTotalTime               MetricKind = "totalTime"
	MetricHighestTempo            MetricKind = "highestTempo"
	MetricMaxTempoGrowth          MetricKind = "maxTempoGrowth"
	MetricLongestStreakDays       MetricKind = "longestStreakDays"
	MetricPerfectWeek             MetricKind = "perfectWeekFlag"
	MetricMaxSessionsPerExercise  MetricKind = "maxSessionsPerExercise"
	MetricSegmentComplete         MetricKind = "segmentComplete"
	MetricCourseComplete          MetricKind = "courseComplete"
	MetricAllAchievementsUnlocked MetricKind = "allAchievementsUnlocked"
)

// legacyKinds maps the dashboard's stored criteria names onto metric kinds.
var legacyKinds = map[string]MetricKind{
	"total_sessions":   MetricTotalSessions,
	"total_time":       MetricTotalTime,
	"highest_bpm":      MetricHighestTempo,
	"bpm_growth":       MetricMaxTempoGrowth,
	"streak_days":      MetricLongestStreakDays,
	"perfect_week":     MetricPerfectWeek,
	"exercise_mastery": MetricMaxSessionsPerExercise,
	"segment_complete": MetricSegmentComplete,
	"course_complete":  MetricCourseComplete,
	"all_achievements": MetricAllAchievementsUnlocked,
}

// IsKnown reports whether k is a supported metric kind.
func (k MetricKind) IsKnown() bool {
	if k == MetricAllAchievementsUnlocked {
		return true
	}
	_, ok := extractors[k]
	return ok
}

// String returns the kind name.
func (k MetricKind) String() string {
	return string(k)
}

// ParseMetricKind accepts both camelCase kind names and the legacy snake_case criteria names.
func ParseMetricKind(s string) (MetricKind, error) {
	s = strings.TrimSpace(s)
	if k := MetricKind(s); k.IsKnown() {
		return k, nil
	}
	if k, ok := legacyKinds[strings.ToLower(s)]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", shared.ErrUnknownMetricKind, s)
}

// Scope narrows a rule to one exercise or one segment. The zero value means the whole log.
type Scope struct {
	ExerciseID string
	SegmentID  string
}

// IsZero reports whether the scope is unrestricted.
func (s Scope) IsZero() bool {
	return s.ExerciseID == "" && s.SegmentID == ""
}

// extractor reduces a (scoped) history into a single scalar.
type extractor func(h History, scope Scope) float64

// extractors is the single dispatch point for metric computation.
// allAchievementsUnlocked is absent on purpose: it reads the unlock snapshot, not the log.
var extractors = map[MetricKind]extractor{
	MetricTotalSessions:          totalSessions,
	MetricTotalTime:              totalTime,
	MetricHighestTempo:           highestTempo,
	MetricMaxTempoGrowth:         maxTempoGrowth,
	MetricLongestStreakDays:      longestStreakDays,
	MetricPerfectWeek:            perfectWeek,
	MetricMaxSessionsPerExercise: maxSessionsPerExercise,
	MetricSegmentComplete:        segmentComplete,
	MetricCourseComplete:         courseComplete,
}

// Extract computes the metric value of kind over h.
// It returns 0 for kinds that are not history-derived.
func Extract(kind MetricKind, h History, scope Scope) float64 {
	fn, ok := extractors[kind]
	if !ok {
		return 0
	}
	return fn(h.Scoped(scope), scope)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTRACTORS
// ══════════════════════════════════════════════════════════════════════════════

func totalSessions(h History, _ Scope) float64 {
	return float64(len(h.Sessions))
}

func totalTime(h History, _ Scope) float64 {
	var sum int
	for _, s := range h.Sessions {
		sum += s.DurationSeconds.Int()
	}
	return float64(sum)
}

func highestTempo(h History, _ Scope) float64 {
	var max int
	for _, s := range h.Sessions {
		if s.Tempo.Int() > max {
			max = s.Tempo.Int()
		}
	}
	return float64(max)
}

// maxTempoGrowth is the largest gain of any exercise over its first logged tempo.
// Taking the best gain across the exercise's history (instead of only its latest
// session) keeps the value from dropping when a slower session is logged later.
func maxTempoGrowth(h History, _ Scope) float64 {
	var best int
	for _, sessions := range h.ByExercise() {
		if len(sessions) < 2 {
			continue
		}
		first := sessions[0].Tempo.Int()
		for _, s := range sessions[1:] {
			if g := s.Tempo.Int() - first; g > best {
				best = g
			}
		}
	}
	return float64(best)
}

func longestStreakDays(h History, _ Scope) float64 {
	days := h.Days()
	if len(days) == 0 {
		return 0
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if h.Calendar.DaysBetween(days[i-1], days[i]) == 1 {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 1
	}
	return float64(longest)
}

// perfectWeek is 1 when some week contains every exercise ever practised.
// The reference set is exercises with at least one session, not the full exercise list.
func perfectWeek(h History, _ Scope) float64 {
	if len(h.Sessions) == 0 {
		return 0
	}

	practised := h.PractisedExercises()
	weeks := make(map[string]map[string]struct{})
	for _, s := range h.Sessions {
		key := h.Calendar.WeekKey(s.PracticedAt)
		if weeks[key] == nil {
			weeks[key] = make(map[string]struct{})
		}
		weeks[key][s.ExerciseID] = struct{}{}
	}

	for _, set := range weeks {
		if len(set) == len(practised) {
			return 1
		}
	}
	return 0
}

func maxSessionsPerExercise(h History, _ Scope) float64 {
	var max int
	for _, sessions := range h.ByExercise() {
		if len(sessions) > max {
			max = len(sessions)
		}
	}
	return float64(max)
}

func segmentComplete(h History, scope Scope) float64 {
	if scope.SegmentID == "" {
		return 0
	}
	return boolMetric(h.allPractised(h.SegmentExercises(scope.SegmentID)))
}

func courseComplete(h History, _ Scope) float64 {
	return boolMetric(h.allPractised(h.Exercises))
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
