package command

import (
	"context"
	"errors"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

// UnlockAchievementCommand records an unlock directly, bypassing evaluation.
// Reconciliation is the normal writer; this exists for the host's unlock endpoint.
type UnlockAchievementCommand struct {
	RuleID string

	// UnlockedAt defaults to now when zero.
	UnlockedAt time.Time

	CorrelationID string
}

// UnlockAchievementHandler handles UnlockAchievementCommand.
type UnlockAchievementHandler struct {
	store  achievement.UnlockStore
	events shared.EventPublisher
	log    *logger.Logger
	now    func() time.Time
}

// NewUnlockAchievementHandler creates the handler. events may be nil.
func NewUnlockAchievementHandler(store achievement.UnlockStore, events shared.EventPublisher, log *logger.Logger) *UnlockAchievementHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UnlockAchievementHandler{
		store:  store,
		events: events,
		log:    log.With(logger.Component("unlock_achievement")),
		now:    time.Now,
	}
}

// Handle inserts the record. A rule that is already unlocked returns
// achievement.ErrAlreadyUnlocked; unlike reconciliation, the caller sees it.
func (h *UnlockAchievementHandler) Handle(ctx context.Context, cmd UnlockAchievementCommand) (achievement.UnlockRecord, error) {
	if cmd.UnlockedAt.IsZero() {
		cmd.UnlockedAt = h.now()
	}
	if err := achievement.ValidateUnlock(cmd.RuleID, cmd.UnlockedAt); err != nil {
		return achievement.UnlockRecord{}, err
	}

	rec, err := h.store.InsertIfAbsent(ctx, cmd.RuleID, cmd.UnlockedAt.UTC())
	if err != nil {
		if !errors.Is(err, achievement.ErrAlreadyUnlocked) {
			h.log.Error("unlock insert failed", logger.RuleID(cmd.RuleID), logger.Err(err))
		}
		return achievement.UnlockRecord{}, err
	}

	if h.events != nil {
		evt := shared.NewAchievementUnlockedEvent(rec.RuleID, rec.ID, rec.UnlockedAt)
		evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		if err := h.events.Publish(evt); err != nil {
			h.log.Warn("publish unlock event failed", logger.Err(err))
		}
	}
	return rec, nil
}
