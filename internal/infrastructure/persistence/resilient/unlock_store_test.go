package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/memory"
	"github.com/practice-hub/practice-hub/pkg/circuitbreaker"
)

type flakyStore struct {
	*memory.Store
	err   error
	calls int
}

func (f *flakyStore) InsertIfAbsent(ctx context.Context, ruleID string, at time.Time) (achievement.UnlockRecord, error) {
	f.calls++
	if f.err != nil {
		return achievement.UnlockRecord{}, f.err
	}
	return f.Store.InsertIfAbsent(ctx, ruleID, at)
}

func TestUnlockStore_ConflictsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	store := NewUnlockStore(memory.NewStore(), "unlocks", nil)
	at := time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)

	_, err := store.InsertIfAbsent(ctx, "bpm-100", at)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = store.InsertIfAbsent(ctx, "bpm-100", at)
		assert.ErrorIs(t, err, achievement.ErrAlreadyUnlocked)
	}
	assert.Equal(t, circuitbreaker.StateClosed, store.State())

	records, err := store.ListUnlocks(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.NoError(t, store.Ping(ctx))
}

func TestUnlockStore_FailsFastWhenOpen(t *testing.T) {
	ctx := context.Background()
	down := errors.New("dial tcp: connection refused")
	inner := &flakyStore{Store: memory.NewStore(), err: down}
	store := NewUnlockStore(inner, "unlocks", nil)
	at := time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.InsertIfAbsent(ctx, "bpm-100", at)
		assert.ErrorIs(t, err, down)
	}
	require.Equal(t, circuitbreaker.StateOpen, store.State())

	_, err := store.InsertIfAbsent(ctx, "bpm-120", at)
	assert.ErrorIs(t, err, shared.ErrUnlockStoreDown)
	assert.True(t, shared.IsRetryable(err))
	assert.Equal(t, 3, inner.calls)

	assert.ErrorIs(t, store.Ping(ctx), shared.ErrUnlockStoreDown)
}
