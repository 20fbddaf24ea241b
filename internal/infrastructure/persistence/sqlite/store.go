// Package sqlite implements the practice log and unlock store on an embedded
// SQLite database for single-user installs and the practicectl CLI.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"

	_ "modernc.org/sqlite"
)

// timeLayout is used for every stored instant; values are always UTC.
const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed practice and unlock repository.
type Store struct {
	db    *sql.DB
	newID func() string
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; the UNIQUE constraint still guards InsertIfAbsent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, newID: uuid.NewString}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS segments (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  sort_order INTEGER NOT NULL DEFAULT 0,
  start_date TEXT NOT NULL DEFAULT '',
  end_date TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS exercises (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  segment_id TEXT NOT NULL DEFAULT '',
  default_tempo INTEGER NOT NULL DEFAULT 0,
  default_duration_seconds INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS practice_sessions (
  id TEXT PRIMARY KEY,
  exercise_id TEXT NOT NULL,
  tempo INTEGER NOT NULL CHECK (tempo > 0),
  duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
  practiced_at TEXT NOT NULL,
  ready_for_faster INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_practice_sessions_practiced_at ON practice_sessions(practiced_at);
CREATE TABLE IF NOT EXISTS achievement_unlocks (
  id TEXT PRIMARY KEY,
  rule_id TEXT NOT NULL UNIQUE,
  unlocked_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// ListSessions returns the whole log in insertion order.
func (s *Store) ListSessions(ctx context.Context) ([]practice.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, exercise_id, tempo, duration_seconds, practiced_at, ready_for_faster
FROM practice_sessions
ORDER BY rowid`)
	if err != nil {
		return nil, shared.WrapError("practice", "ListSessions", shared.ErrServiceUnavailable, "query sessions", err)
	}
	defer rows.Close()

	var sessions []practice.Session
	for rows.Next() {
		var (
			sess            practice.Session
			tempo, duration int
			practicedAt     string
		)
		if err := rows.Scan(&sess.ID, &sess.ExerciseID, &tempo, &duration, &practicedAt, &sess.ReadyForFaster); err != nil {
			return nil, fmt.Errorf("sqlite: scan session: %w", err)
		}
		if sess.PracticedAt, err = time.Parse(timeLayout, practicedAt); err != nil {
			return nil, fmt.Errorf("sqlite: session %s: %w", sess.ID, err)
		}
		sess.Tempo = shared.Tempo(tempo)
		sess.DurationSeconds = shared.Seconds(duration)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AppendSession inserts a session.
func (s *Store) AppendSession(ctx context.Context, sess practice.Session) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO practice_sessions (id, exercise_id, tempo, duration_seconds, practiced_at, ready_for_faster)
VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ExerciseID, sess.Tempo.Int(), sess.DurationSeconds.Int(),
		sess.PracticedAt.UTC().Format(timeLayout), sess.ReadyForFaster,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrSessionExists
		}
		return shared.WrapError("practice", "AppendSession", shared.ErrServiceUnavailable, "insert session", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE DATA
// ══════════════════════════════════════════════════════════════════════════════

// ListExercises returns exercises ordered by id.
func (s *Store) ListExercises(ctx context.Context) ([]practice.Exercise, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, description, segment_id, default_tempo, default_duration_seconds
FROM exercises ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query exercises: %w", err)
	}
	defer rows.Close()

	var out []practice.Exercise
	for rows.Next() {
		var ex practice.Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.SegmentID, &ex.DefaultTempo, &ex.DefaultDurationSeconds); err != nil {
			return nil, fmt.Errorf("sqlite: scan exercise: %w", err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// ListSegments returns segments ordered by sort order.
func (s *Store) ListSegments(ctx context.Context) ([]practice.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, sort_order, start_date, end_date
FROM segments ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query segments: %w", err)
	}
	defer rows.Close()

	var out []practice.Segment
	for rows.Next() {
		var (
			seg        practice.Segment
			start, end string
		)
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Order, &start, &end); err != nil {
			return nil, fmt.Errorf("sqlite: scan segment: %w", err)
		}
		seg.StartDate, _ = parseOptionalTime(start)
		seg.EndDate, _ = parseOptionalTime(end)
		out = append(out, seg)
	}
	return out, rows.Err()
}

// SaveExercise upserts an exercise.
func (s *Store) SaveExercise(ctx context.Context, ex practice.Exercise) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO exercises (id, name, description, segment_id, default_tempo, default_duration_seconds)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  description=excluded.description,
  segment_id=excluded.segment_id,
  default_tempo=excluded.default_tempo,
  default_duration_seconds=excluded.default_duration_seconds`,
		ex.ID, ex.Name, ex.Description, ex.SegmentID, ex.DefaultTempo, ex.DefaultDurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save exercise %s: %w", ex.ID, err)
	}
	return nil
}

// SaveSegment upserts a segment.
func (s *Store) SaveSegment(ctx context.Context, seg practice.Segment) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO segments (id, name, sort_order, start_date, end_date)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  sort_order=excluded.sort_order,
  start_date=excluded.start_date,
  end_date=excluded.end_date`,
		seg.ID, seg.Name, seg.Order, formatOptionalTime(seg.StartDate), formatOptionalTime(seg.EndDate),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save segment %s: %w", seg.ID, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCKS
// ══════════════════════════════════════════════════════════════════════════════

// ListUnlocks returns unlock records, newest first.
func (s *Store) ListUnlocks(ctx context.Context) ([]achievement.UnlockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, rule_id, unlocked_at FROM achievement_unlocks`)
	if err != nil {
		return nil, shared.WrapError("achievement", "ListUnlocks", shared.ErrServiceUnavailable, "query unlocks", err)
	}
	defer rows.Close()

	var out []achievement.UnlockRecord
	for rows.Next() {
		var (
			rec achievement.UnlockRecord
			at  string
		)
		if err := rows.Scan(&rec.ID, &rec.RuleID, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan unlock: %w", err)
		}
		if rec.UnlockedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("sqlite: unlock %s: %w", rec.RuleID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	achievement.SortByUnlockedAt(out)
	return out, nil
}

// InsertIfAbsent relies on UNIQUE(rule_id): a conflicting insert affects no rows.
func (s *Store) InsertIfAbsent(ctx context.Context, ruleID string, unlockedAt time.Time) (achievement.UnlockRecord, error) {
	if err := achievement.ValidateUnlock(ruleID, unlockedAt); err != nil {
		return achievement.UnlockRecord{}, err
	}

	rec := achievement.UnlockRecord{ID: s.newID(), RuleID: ruleID, UnlockedAt: unlockedAt.UTC()}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO achievement_unlocks (id, rule_id, unlocked_at) VALUES (?, ?, ?)
ON CONFLICT(rule_id) DO NOTHING`,
		rec.ID, rec.RuleID, rec.UnlockedAt.Format(timeLayout),
	)
	if err != nil {
		return achievement.UnlockRecord{}, shared.WrapError("achievement", "InsertIfAbsent", shared.ErrServiceUnavailable, "insert unlock", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return achievement.UnlockRecord{}, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return achievement.UnlockRecord{}, achievement.ErrAlreadyUnlocked
	}
	return rec, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Join(shared.ErrInvalidFormat, err)
	}
	return t, nil
}
