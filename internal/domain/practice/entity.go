// Package practice contains the practice log domain: sessions, exercises and segments.
// This is a pure domain layer with zero external dependencies.
package practice

import (
	"sort"
	"strings"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// Session is one logged practice session. Sessions are immutable once created.
type Session struct {
	ID              string
	ExerciseID      string
	Tempo           shared.Tempo
	DurationSeconds shared.Seconds
	PracticedAt     time.Time

	// ReadyForFaster is the player's own hint that the next session can go faster.
	ReadyForFaster bool
}

// NewSessionParams contains the input for NewSession.
type NewSessionParams struct {
	ID              string
	ExerciseID      string
	Tempo           int
	DurationSeconds int
	PracticedAt     time.Time
	ReadyForFaster  bool
}

// NewSession validates params and creates a Session.
func NewSession(p NewSessionParams) (Session, error) {
	if strings.TrimSpace(p.ID) == "" {
		return Session{}, shared.NewDomainError("practice", "NewSession", shared.ErrInvalidID, "session id is required")
	}
	if strings.TrimSpace(p.ExerciseID) == "" {
		return Session{}, shared.ErrMissingExercise
	}
	if p.PracticedAt.IsZero() {
		return Session{}, shared.ErrMissingTimestamp
	}

	tempo, err := shared.NewTempo(p.Tempo)
	if err != nil {
		return Session{}, err
	}
	duration, err := shared.NewSeconds(p.DurationSeconds)
	if err != nil {
		return Session{}, err
	}

	return Session{
		ID:              p.ID,
		ExerciseID:      p.ExerciseID,
		Tempo:           tempo,
		DurationSeconds: duration,
		PracticedAt:     p.PracticedAt.UTC(),
		ReadyForFaster:  p.ReadyForFaster,
	}, nil
}

// Exercise is read-only reference data describing something to practise.
type Exercise struct {
	ID          string
	Name        string
	Description string

	// SegmentID groups exercises; empty for standalone exercises.
	SegmentID string

	DefaultTempo           int
	DefaultDurationSeconds int
}

// InSegment reports whether the exercise belongs to the given segment.
func (e Exercise) InSegment(segmentID string) bool {
	return segmentID != "" && e.SegmentID == segmentID
}

// Segment is a dated block of the course that groups exercises.
type Segment struct {
	ID        string
	Name      string
	Order     int
	StartDate time.Time
	EndDate   time.Time
}

// Contains reports whether t falls inside the segment's date range (inclusive).
func (s Segment) Contains(t time.Time) bool {
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		return false
	}
	return !t.Before(s.StartDate) && t.Before(s.EndDate.AddDate(0, 0, 1))
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// SortedByTime returns a copy of sessions ordered by PracticedAt ascending.
// Ties keep their input order.
func SortedByTime(sessions []Session) []Session {
	sorted := make([]Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PracticedAt.Before(sorted[j].PracticedAt)
	})
	return sorted
}

// ExercisesInSegment filters exercises by segment.
func ExercisesInSegment(exercises []Exercise, segmentID string) []Exercise {
	var out []Exercise
	for _, ex := range exercises {
		if ex.InSegment(segmentID) {
			out = append(out, ex)
		}
	}
	return out
}

// SortedSegments returns segments ordered by Order.
func SortedSegments(segments []Segment) []Segment {
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// CurrentSegment returns the segment whose date range contains now.
func CurrentSegment(segments []Segment, now time.Time) (Segment, bool) {
	for _, s := range SortedSegments(segments) {
		if s.Contains(now) {
			return s, true
		}
	}
	return Segment{}, false
}
