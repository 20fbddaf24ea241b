// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"fmt"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/projections"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// Feeds the recent-unlock view that the dashboard polls for toasts.
// Events may come from this process (typed) or from another instance
// through the Redis bus (payload only, times as RFC 3339 strings).
// ═══════════════════════════════════════════════════════════════════════════

// RecentUnlockFeed is the write side of the recent-unlock view.
type RecentUnlockFeed interface {
	Add(entry projections.RecentUnlock) bool
}

// OnAchievementUnlockedHandler handles achievement.unlocked events.
type OnAchievementUnlockedHandler struct {
	feed RecentUnlockFeed
	log  *logger.Logger
}

// NewOnAchievementUnlockedHandler creates the handler.
func NewOnAchievementUnlockedHandler(feed RecentUnlockFeed, log *logger.Logger) *OnAchievementUnlockedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnAchievementUnlockedHandler{
		feed: feed,
		log:  log.With(logger.String("handler", "on_achievement_unlocked")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventAchievementUnlocked {
		h.log.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	entry, err := recentUnlockFromEvent(event)
	if err != nil {
		return fmt.Errorf("on_achievement_unlocked: %w", err)
	}

	if !h.feed.Add(entry) {
		h.log.Debug("unlock already in feed", logger.RuleID(entry.RuleID))
		return nil
	}
	h.log.Info("unlock added to feed",
		logger.RuleID(entry.RuleID),
		logger.Time("unlocked_at", entry.UnlockedAt),
	)
	return nil
}

// EventType returns the event type this handler consumes.
func (h *OnAchievementUnlockedHandler) EventType() shared.EventType {
	return shared.EventAchievementUnlocked
}

func recentUnlockFromEvent(event shared.Event) (projections.RecentUnlock, error) {
	switch e := event.(type) {
	case shared.AchievementUnlockedEvent:
		return projections.RecentUnlock{RuleID: e.RuleID, UnlockID: e.UnlockID, UnlockedAt: e.UnlockedAt}, nil
	case *shared.AchievementUnlockedEvent:
		return projections.RecentUnlock{RuleID: e.RuleID, UnlockID: e.UnlockID, UnlockedAt: e.UnlockedAt}, nil
	}

	payload := event.Payload()
	ruleID, _ := payload["rule_id"].(string)
	if ruleID == "" {
		ruleID = event.AggregateID()
	}
	if ruleID == "" {
		return projections.RecentUnlock{}, shared.ErrMissingRuleID
	}
	unlockID, _ := payload["unlock_id"].(string)

	var unlockedAt time.Time
	switch v := payload["unlocked_at"].(type) {
	case time.Time:
		unlockedAt = v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return projections.RecentUnlock{}, fmt.Errorf("%w: unlocked_at %q", shared.ErrInvalidFormat, v)
		}
		unlockedAt = t
	default:
		unlockedAt = event.OccurredAt()
	}

	return projections.RecentUnlock{RuleID: ruleID, UnlockID: unlockID, UnlockedAt: unlockedAt.UTC()}, nil
}
