package projections

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
)

var base = time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)

func TestRecentUnlocksView_OrderAndDedupe(t *testing.T) {
	v := NewRecentUnlocksView(10)

	assert.True(t, v.Add(RecentUnlock{RuleID: "bpm-100", UnlockedAt: base}))
	assert.True(t, v.Add(RecentUnlock{RuleID: "growth-10", UnlockedAt: base.Add(time.Hour)}))
	assert.False(t, v.Add(RecentUnlock{RuleID: "bpm-100", UnlockedAt: base.Add(2 * time.Hour)}))

	got := v.Recent(context.Background(), 0)
	require.Len(t, got, 2)
	assert.Equal(t, "growth-10", got[0].RuleID)
	assert.Equal(t, "bpm-100", got[1].RuleID)
	assert.False(t, got[0].ReceivedAt.IsZero())
	assert.Equal(t, int64(2), v.GetVersion())

	assert.Len(t, v.Recent(context.Background(), 1), 1)
}

func TestRecentUnlocksView_Capacity(t *testing.T) {
	v := NewRecentUnlocksView(3)
	for i := 0; i < 5; i++ {
		v.Add(RecentUnlock{RuleID: fmt.Sprintf("rule-%d", i), UnlockedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	got := v.Recent(context.Background(), 0)
	require.Len(t, got, 3)
	assert.Equal(t, "rule-4", got[0].RuleID)
	assert.Equal(t, "rule-2", got[2].RuleID)

	// an evicted rule may come back
	assert.True(t, v.Add(RecentUnlock{RuleID: "rule-0", UnlockedAt: base.Add(time.Hour)}))
	assert.Equal(t, 3, v.Len())
}

func TestRecentUnlocksView_RebuildAndReceivedSince(t *testing.T) {
	v := NewRecentUnlocksView(0)
	clock := base
	v.now = func() time.Time { return clock }

	v.RebuildFromRecords([]achievement.UnlockRecord{
		{ID: "u-1", RuleID: "bpm-100", UnlockedAt: base.Add(-time.Hour)},
		{ID: "u-2", RuleID: "sessions-10", UnlockedAt: base.Add(-2 * time.Hour)},
	})
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, base, v.GetLastUpdated())

	clock = base.Add(time.Minute)
	v.Add(RecentUnlock{RuleID: "streak-7", UnlockedAt: base})

	fresh := v.ReceivedSince(context.Background(), base)
	require.Len(t, fresh, 1)
	assert.Equal(t, "streak-7", fresh[0].RuleID)
}

func TestRecentUnlocksView_ConcurrentAdds(t *testing.T) {
	v := NewRecentUnlocksView(100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v.Add(RecentUnlock{RuleID: fmt.Sprintf("rule-%d", i%10), UnlockedAt: base})
			_ = v.Recent(context.Background(), 5)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, v.Len())
}
