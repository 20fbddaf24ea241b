// Package projections implements read models for CQRS pattern.
// Projections are denormalized views optimized for fast reads.
// They are updated asynchronously when domain events occur.
package projections

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECENT UNLOCKS VIEW - bounded feed of the latest unlocks
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRecentUnlocksCapacity is used when the capacity is not positive.
const DefaultRecentUnlocksCapacity = 50

// RecentUnlock is one entry of the feed.
type RecentUnlock struct {
	RuleID     string    `json:"rule_id"`
	UnlockID   string    `json:"unlock_id,omitempty"`
	UnlockedAt time.Time `json:"unlocked_at"`

	// ReceivedAt is when this process saw the unlock; the UI polls with it.
	ReceivedAt time.Time `json:"received_at"`
}

// RecentUnlocksView keeps the newest unlocks, at most one entry per rule.
type RecentUnlocksView struct {
	mu sync.RWMutex

	// entries is ordered newest first.
	entries  []RecentUnlock
	byRule   map[string]struct{}
	capacity int

	lastUpdated time.Time
	version     int64

	now func() time.Time
}

// NewRecentUnlocksView creates an empty view.
func NewRecentUnlocksView(capacity int) *RecentUnlocksView {
	if capacity <= 0 {
		capacity = DefaultRecentUnlocksCapacity
	}
	return &RecentUnlocksView{
		entries:  make([]RecentUnlock, 0, capacity),
		byRule:   make(map[string]struct{}),
		capacity: capacity,
		now:      time.Now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Add records an unlock. It returns false when the rule is already in the feed.
func (v *RecentUnlocksView) Add(entry RecentUnlock) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.byRule[entry.RuleID]; ok {
		return false
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = v.now().UTC()
	}

	v.entries = append(v.entries, entry)
	v.byRule[entry.RuleID] = struct{}{}
	v.sortAndTrim()

	v.lastUpdated = entry.ReceivedAt
	v.version++
	return true
}

// RebuildFromRecords replaces the feed with persisted unlock records,
// e.g. on startup before any event has been received.
func (v *RecentUnlocksView) RebuildFromRecords(records []achievement.UnlockRecord) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now().UTC()
	v.entries = v.entries[:0]
	v.byRule = make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := v.byRule[r.RuleID]; ok {
			continue
		}
		v.entries = append(v.entries, RecentUnlock{
			RuleID:     r.RuleID,
			UnlockID:   r.ID,
			UnlockedAt: r.UnlockedAt,
			ReceivedAt: now,
		})
		v.byRule[r.RuleID] = struct{}{}
	}
	v.sortAndTrim()

	v.lastUpdated = now
	v.version++
}

// sortAndTrim must be called with the write lock held.
func (v *RecentUnlocksView) sortAndTrim() {
	sort.SliceStable(v.entries, func(i, j int) bool {
		return v.entries[i].UnlockedAt.After(v.entries[j].UnlockedAt)
	})
	if len(v.entries) <= v.capacity {
		return
	}
	for _, dropped := range v.entries[v.capacity:] {
		delete(v.byRule, dropped.RuleID)
	}
	v.entries = v.entries[:v.capacity]
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Recent returns up to limit entries, newest unlock first. limit <= 0 returns all.
func (v *RecentUnlocksView) Recent(ctx context.Context, limit int) []RecentUnlock {
	v.mu.RLock()
	defer v.mu.RUnlock()

	n := len(v.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]RecentUnlock, n)
	copy(out, v.entries[:n])
	return out
}

// ReceivedSince returns entries this process received after t, newest unlock first.
func (v *RecentUnlocksView) ReceivedSince(ctx context.Context, t time.Time) []RecentUnlock {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []RecentUnlock
	for _, e := range v.entries {
		if e.ReceivedAt.After(t) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (v *RecentUnlocksView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// GetVersion returns the current version (for cache invalidation).
func (v *RecentUnlocksView) GetVersion() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// GetLastUpdated returns the last update timestamp.
func (v *RecentUnlocksView) GetLastUpdated() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastUpdated
}
