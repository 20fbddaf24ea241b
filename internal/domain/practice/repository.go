package practice

import (
	"context"
)

// SessionRepository is the append-only practice log.
// This interface is implemented by the infrastructure layer.
type SessionRepository interface {
	// ListSessions returns every logged session in no particular order.
	ListSessions(ctx context.Context) ([]Session, error)

	// AppendSession adds a session. A duplicate ID returns shared.ErrSessionExists.
	AppendSession(ctx context.Context, session Session) error
}

// ExerciseRepository exposes exercise and segment reference data.
type ExerciseRepository interface {
	// ListExercises returns all known exercises.
	ListExercises(ctx context.Context) ([]Exercise, error)

	// ListSegments returns all known segments.
	ListSegments(ctx context.Context) ([]Segment, error)

	// SaveExercise creates or replaces an exercise (used for seeding).
	SaveExercise(ctx context.Context, exercise Exercise) error

	// SaveSegment creates or replaces a segment (used for seeding).
	SaveSegment(ctx context.Context, segment Segment) error
}
