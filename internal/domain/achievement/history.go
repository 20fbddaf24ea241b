package achievement

import (
	"sort"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/pkg/timeutil"
)

// History is an immutable, time-ordered view of the practice log used by
// extractors and replay. Build it with NewHistory.
type History struct {
	// Sessions are sorted by PracticedAt ascending; ties keep input order.
	Sessions  []practice.Session
	Exercises []practice.Exercise
	Calendar  timeutil.Calendar
}

// NewHistory sorts sessions and binds the calendar used for day and week bucketing.
func NewHistory(sessions []practice.Session, exercises []practice.Exercise, cal timeutil.Calendar) History {
	return History{
		Sessions:  practice.SortedByTime(sessions),
		Exercises: exercises,
		Calendar:  cal,
	}
}

// Scoped narrows the history to the scope. An exercise scope keeps only that
// exercise's sessions; a segment scope keeps the sessions of the segment's exercises.
func (h History) Scoped(scope Scope) History {
	if scope.IsZero() {
		return h
	}

	keep := make(map[string]struct{})
	var exercises []practice.Exercise
	for _, ex := range h.Exercises {
		if scope.ExerciseID != "" && ex.ID != scope.ExerciseID {
			continue
		}
		if scope.SegmentID != "" && !ex.InSegment(scope.SegmentID) {
			continue
		}
		keep[ex.ID] = struct{}{}
		exercises = append(exercises, ex)
	}
	// An exercise scope still applies when the exercise is missing from reference data.
	if scope.ExerciseID != "" && scope.SegmentID == "" {
		keep[scope.ExerciseID] = struct{}{}
	}

	sessions := make([]practice.Session, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		if _, ok := keep[s.ExerciseID]; ok {
			sessions = append(sessions, s)
		}
	}

	return History{Sessions: sessions, Exercises: exercises, Calendar: h.Calendar}
}

// IsEmpty reports whether there are no sessions.
func (h History) IsEmpty() bool {
	return len(h.Sessions) == 0
}

// Last returns the most recent session.
func (h History) Last() (practice.Session, bool) {
	if len(h.Sessions) == 0 {
		return practice.Session{}, false
	}
	return h.Sessions[len(h.Sessions)-1], true
}

// ByExercise groups sessions by the exercise ID found on the sessions.
// Each group keeps time order.
func (h History) ByExercise() map[string][]practice.Session {
	groups := make(map[string][]practice.Session)
	for _, s := range h.Sessions {
		groups[s.ExerciseID] = append(groups[s.ExerciseID], s)
	}
	return groups
}

// PractisedExercises returns the set of exercise IDs with at least one session.
func (h History) PractisedExercises() map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range h.Sessions {
		set[s.ExerciseID] = struct{}{}
	}
	return set
}

// FirstSessions returns the earliest session time per exercise.
func (h History) FirstSessions() map[string]time.Time {
	first := make(map[string]time.Time)
	for _, s := range h.Sessions {
		if _, ok := first[s.ExerciseID]; !ok {
			first[s.ExerciseID] = s.PracticedAt
		}
	}
	return first
}

// Days returns the distinct practice days in the calendar's location, ascending.
func (h History) Days() []time.Time {
	seen := make(map[string]struct{})
	var days []time.Time
	for _, s := range h.Sessions {
		key := h.Calendar.DayKey(s.PracticedAt)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, h.Calendar.StartOfDay(s.PracticedAt))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// SegmentExercises returns the exercises of a segment.
func (h History) SegmentExercises(segmentID string) []practice.Exercise {
	return practice.ExercisesInSegment(h.Exercises, segmentID)
}

// allPractised reports whether every exercise has a session. An empty list is never complete.
func (h History) allPractised(exercises []practice.Exercise) bool {
	if len(exercises) == 0 {
		return false
	}
	practised := h.PractisedExercises()
	for _, ex := range exercises {
		if _, ok := practised[ex.ID]; !ok {
			return false
		}
	}
	return true
}
