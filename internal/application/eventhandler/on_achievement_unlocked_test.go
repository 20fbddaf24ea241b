package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/projections"
)

type payloadEvent struct {
	shared.BaseEvent
	payload map[string]interface{}
}

func (e payloadEvent) Payload() map[string]interface{} { return e.payload }

func TestOnAchievementUnlocked_TypedEvent(t *testing.T) {
	view := projections.NewRecentUnlocksView(10)
	h := NewOnAchievementUnlockedHandler(view, nil)
	at := time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)

	require.NoError(t, h.Handle(shared.NewAchievementUnlockedEvent("bpm-100", "u-1", at)))
	require.NoError(t, h.Handle(shared.NewAchievementUnlockedEvent("bpm-100", "u-1", at)))

	got := view.Recent(context.Background(), 0)
	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].UnlockID)
	assert.True(t, at.Equal(got[0].UnlockedAt))
}

func TestOnAchievementUnlocked_RemotePayload(t *testing.T) {
	view := projections.NewRecentUnlocksView(10)
	h := NewOnAchievementUnlockedHandler(view, nil)

	evt := payloadEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventAchievementUnlocked, "growth-10"),
		payload: map[string]interface{}{
			"rule_id":     "growth-10",
			"unlock_id":   "u-2",
			"unlocked_at": "2025-08-19T18:00:00Z",
		},
	}
	require.NoError(t, h.Handle(evt))

	got := view.Recent(context.Background(), 0)
	require.Len(t, got, 1)
	assert.Equal(t, "growth-10", got[0].RuleID)
	assert.Equal(t, time.Date(2025, 8, 19, 18, 0, 0, 0, time.UTC), got[0].UnlockedAt)

	bad := payloadEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventAchievementUnlocked, "streak-7"),
		payload:   map[string]interface{}{"unlocked_at": "yesterday"},
	}
	assert.ErrorIs(t, h.Handle(bad), shared.ErrInvalidFormat)
}

func TestOnAchievementUnlocked_IgnoresOtherEvents(t *testing.T) {
	view := projections.NewRecentUnlocksView(10)
	h := NewOnAchievementUnlockedHandler(view, nil)

	evt := shared.NewReconcileCompletedEvent("run-1", "manual", []string{"bpm-100"}, 0)
	require.NoError(t, h.Handle(evt))
	assert.Zero(t, view.Len())
	assert.Equal(t, shared.EventAchievementUnlocked, h.EventType())
}
