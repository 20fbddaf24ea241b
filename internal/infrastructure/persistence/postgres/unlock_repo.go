package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// UnlockRepository implements achievement.UnlockStore on achievement_unlocks.
// Atomicity comes from the UNIQUE (rule_id) constraint.
type UnlockRepository struct {
	db    Querier
	newID func() string
}

// NewUnlockRepository creates an UnlockRepository.
func NewUnlockRepository(db Querier) *UnlockRepository {
	return &UnlockRepository{db: db, newID: uuid.NewString}
}

// ListUnlocks returns unlock records, newest first.
func (r *UnlockRepository) ListUnlocks(ctx context.Context) ([]achievement.UnlockRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, rule_id, unlocked_at
		FROM achievement_unlocks
		ORDER BY unlocked_at DESC, rule_id`)
	if err != nil {
		return nil, shared.WrapError("achievement", "ListUnlocks", shared.ErrServiceUnavailable, "query unlocks", err)
	}
	defer rows.Close()

	var records []achievement.UnlockRecord
	for rows.Next() {
		var rec achievement.UnlockRecord
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.UnlockedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan unlock: %w", err)
		}
		rec.UnlockedAt = rec.UnlockedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("achievement", "ListUnlocks", shared.ErrServiceUnavailable, "iterate unlocks", err)
	}
	return records, nil
}

const insertUnlockSQL = `
	INSERT INTO achievement_unlocks (id, rule_id, unlocked_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (rule_id) DO NOTHING
	RETURNING id, rule_id, unlocked_at`

// InsertIfAbsent inserts the unlock in one statement. When the rule already has a
// record the statement returns no row and achievement.ErrAlreadyUnlocked is returned.
func (r *UnlockRepository) InsertIfAbsent(ctx context.Context, ruleID string, unlockedAt time.Time) (achievement.UnlockRecord, error) {
	if err := achievement.ValidateUnlock(ruleID, unlockedAt); err != nil {
		return achievement.UnlockRecord{}, err
	}

	var rec achievement.UnlockRecord
	err := r.db.QueryRow(ctx, insertUnlockSQL, r.newID(), ruleID, unlockedAt.UTC()).
		Scan(&rec.ID, &rec.RuleID, &rec.UnlockedAt)
	switch {
	case err == nil:
		rec.UnlockedAt = rec.UnlockedAt.UTC()
		return rec, nil
	case IsNoRows(err), IsUniqueViolation(err):
		return achievement.UnlockRecord{}, achievement.ErrAlreadyUnlocked
	default:
		return achievement.UnlockRecord{}, shared.WrapError("achievement", "InsertIfAbsent", shared.ErrServiceUnavailable, "insert unlock", err)
	}
}
