// Package memory implements the practice and unlock repositories in process memory.
// It backs tests, the CLI dry-run mode and single-process deployments without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// Store holds sessions, reference data and unlock records.
// All methods are safe for concurrent use; InsertIfAbsent is atomic under the write lock.
type Store struct {
	mu sync.RWMutex

	sessions  []practice.Session
	sessionID map[string]struct{}

	exercises map[string]practice.Exercise
	segments  map[string]practice.Segment

	unlocks map[string]achievement.UnlockRecord

	// newID generates unlock record ids.
	newID func() string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessionID: make(map[string]struct{}),
		exercises: make(map[string]practice.Exercise),
		segments:  make(map[string]practice.Segment),
		unlocks:   make(map[string]achievement.UnlockRecord),
		newID:     uuid.NewString,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// ListSessions returns a copy of the log in insertion order.
func (s *Store) ListSessions(ctx context.Context) ([]practice.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]practice.Session, len(s.sessions))
	copy(out, s.sessions)
	return out, nil
}

// AppendSession adds a session to the log.
func (s *Store) AppendSession(ctx context.Context, session practice.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessionID[session.ID]; ok {
		return shared.ErrSessionExists
	}
	s.sessionID[session.ID] = struct{}{}
	s.sessions = append(s.sessions, session)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERENCE DATA
// ══════════════════════════════════════════════════════════════════════════════

// ListExercises returns exercises ordered by ID.
func (s *Store) ListExercises(ctx context.Context) ([]practice.Exercise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]practice.Exercise, 0, len(s.exercises))
	for _, ex := range s.exercises {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSegments returns segments ordered by Order.
func (s *Store) ListSegments(ctx context.Context) ([]practice.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]practice.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, seg)
	}
	return practice.SortedSegments(out), nil
}

// SaveExercise creates or replaces an exercise.
func (s *Store) SaveExercise(ctx context.Context, exercise practice.Exercise) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises[exercise.ID] = exercise
	return nil
}

// SaveSegment creates or replaces a segment.
func (s *Store) SaveSegment(ctx context.Context, segment practice.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[segment.ID] = segment
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCKS
// ══════════════════════════════════════════════════════════════════════════════

// ListUnlocks returns unlock records, newest first.
func (s *Store) ListUnlocks(ctx context.Context) ([]achievement.UnlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]achievement.UnlockRecord, 0, len(s.unlocks))
	for _, u := range s.unlocks {
		out = append(out, u)
	}
	achievement.SortByUnlockedAt(out)
	return out, nil
}

// InsertIfAbsent stores the unlock unless the rule already has one.
func (s *Store) InsertIfAbsent(ctx context.Context, ruleID string, unlockedAt time.Time) (achievement.UnlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return achievement.UnlockRecord{}, err
	}
	if err := achievement.ValidateUnlock(ruleID, unlockedAt); err != nil {
		return achievement.UnlockRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.unlocks[ruleID]; ok {
		return achievement.UnlockRecord{}, achievement.ErrAlreadyUnlocked
	}
	rec := achievement.UnlockRecord{
		ID:         s.newID(),
		RuleID:     ruleID,
		UnlockedAt: unlockedAt.UTC(),
	}
	s.unlocks[ruleID] = rec
	return rec, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
