package achievement

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// ErrAlreadyUnlocked is returned by UnlockStore.InsertIfAbsent when the rule already has a record.
var ErrAlreadyUnlocked = shared.ErrUnlockConflict

// UnlockRecord is the persisted, write-once proof that a rule was satisfied.
type UnlockRecord struct {
	ID         string
	RuleID     string
	UnlockedAt time.Time
}

// ValidateUnlock checks the fields required to persist an unlock.
func ValidateUnlock(ruleID string, unlockedAt time.Time) error {
	if strings.TrimSpace(ruleID) == "" {
		return shared.ErrMissingRuleID
	}
	if unlockedAt.IsZero() {
		return shared.ErrMissingUnlockedAt
	}
	return nil
}

// UnlockStore persists unlock records. Implementations must make InsertIfAbsent
// an atomic check-and-insert so that at most one record exists per rule id.
type UnlockStore interface {
	// ListUnlocks returns every unlock record.
	ListUnlocks(ctx context.Context) ([]UnlockRecord, error)

	// InsertIfAbsent creates the record for ruleID, or returns ErrAlreadyUnlocked.
	InsertIfAbsent(ctx context.Context, ruleID string, unlockedAt time.Time) (UnlockRecord, error)
}

// UnlockedRuleIDs extracts the rule ids of records.
func UnlockedRuleIDs(records []UnlockRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.RuleID)
	}
	return ids
}

// SortByUnlockedAt orders records newest first.
func SortByUnlockedAt(records []UnlockRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UnlockedAt.After(records[j].UnlockedAt)
	})
}
