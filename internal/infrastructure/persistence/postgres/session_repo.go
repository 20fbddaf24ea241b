package postgres

import (
	"context"
	"fmt"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// SessionRepository implements practice.SessionRepository on practice_sessions.
type SessionRepository struct {
	db Querier
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(db Querier) *SessionRepository {
	return &SessionRepository{db: db}
}

const listSessionsSQL = `
	SELECT id, exercise_id, tempo, duration_seconds, practiced_at, ready_for_faster
	FROM practice_sessions
	ORDER BY practiced_at, created_at`

// ListSessions returns the whole log.
func (r *SessionRepository) ListSessions(ctx context.Context) ([]practice.Session, error) {
	rows, err := r.db.Query(ctx, listSessionsSQL)
	if err != nil {
		return nil, shared.WrapError("practice", "ListSessions", shared.ErrServiceUnavailable, "query sessions", err)
	}
	defer rows.Close()

	var sessions []practice.Session
	for rows.Next() {
		var (
			s        practice.Session
			tempo    int
			duration int
		)
		if err := rows.Scan(&s.ID, &s.ExerciseID, &tempo, &duration, &s.PracticedAt, &s.ReadyForFaster); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		s.Tempo = shared.Tempo(tempo)
		s.DurationSeconds = shared.Seconds(duration)
		s.PracticedAt = s.PracticedAt.UTC()
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("practice", "ListSessions", shared.ErrServiceUnavailable, "iterate sessions", err)
	}
	return sessions, nil
}

const appendSessionSQL = `
	INSERT INTO practice_sessions (id, exercise_id, tempo, duration_seconds, practiced_at, ready_for_faster)
	VALUES ($1, $2, $3, $4, $5, $6)`

// AppendSession inserts a session. A duplicate id yields shared.ErrSessionExists.
func (r *SessionRepository) AppendSession(ctx context.Context, s practice.Session) error {
	_, err := r.db.Exec(ctx, appendSessionSQL,
		s.ID, s.ExerciseID, s.Tempo.Int(), s.DurationSeconds.Int(), s.PracticedAt, s.ReadyForFaster,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSessionExists
		}
		return shared.WrapError("practice", "AppendSession", shared.ErrServiceUnavailable, "insert session", err)
	}
	return nil
}
