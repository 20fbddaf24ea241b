package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// unlockValue is the JSON stored per hash field.
type unlockValue struct {
	ID         string    `json:"id"`
	RuleID     string    `json:"rule_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// UnlockStore implements achievement.UnlockStore with one hash keyed by rule id.
type UnlockStore struct {
	client *Client
	key    string
	newID  func() string
}

// NewUnlockStore creates a store for one profile ("default" when empty).
func NewUnlockStore(client *Client, profile string) *UnlockStore {
	if profile == "" {
		profile = "default"
	}
	return &UnlockStore{
		client: client,
		key:    client.Key("unlocks", profile),
		newID:  uuid.NewString,
	}
}

// ListUnlocks returns all unlock records, newest first.
func (s *UnlockStore) ListUnlocks(ctx context.Context) ([]achievement.UnlockRecord, error) {
	fields, err := s.client.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, shared.WrapError("achievement", "ListUnlocks", shared.ErrServiceUnavailable, "redis hgetall", err)
	}

	records := make([]achievement.UnlockRecord, 0, len(fields))
	for ruleID, raw := range fields {
		var v unlockValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: unlock %s: %v", ErrSerialization, ruleID, err)
		}
		records = append(records, achievement.UnlockRecord{ID: v.ID, RuleID: ruleID, UnlockedAt: v.UnlockedAt.UTC()})
	}
	achievement.SortByUnlockedAt(records)
	return records, nil
}

// InsertIfAbsent writes the record with HSETNX, which only sets a missing field.
func (s *UnlockStore) InsertIfAbsent(ctx context.Context, ruleID string, unlockedAt time.Time) (achievement.UnlockRecord, error) {
	if err := achievement.ValidateUnlock(ruleID, unlockedAt); err != nil {
		return achievement.UnlockRecord{}, err
	}

	rec := achievement.UnlockRecord{ID: s.newID(), RuleID: ruleID, UnlockedAt: unlockedAt.UTC()}
	data, err := json.Marshal(unlockValue{ID: rec.ID, RuleID: rec.RuleID, UnlockedAt: rec.UnlockedAt})
	if err != nil {
		return achievement.UnlockRecord{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	set, err := s.client.rdb.HSetNX(ctx, s.key, ruleID, data).Result()
	if err != nil {
		return achievement.UnlockRecord{}, shared.WrapError("achievement", "InsertIfAbsent", shared.ErrServiceUnavailable, "redis hsetnx", err)
	}
	if !set {
		return achievement.UnlockRecord{}, achievement.ErrAlreadyUnlocked
	}
	return rec, nil
}
