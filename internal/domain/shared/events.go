package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Practice events
	EventSessionLogged EventType = "practice.session_logged"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
	EventReconcileCompleted  EventType = "achievement.reconcile_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Practice Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionLoggedEvent is emitted after a session is appended to the log.
type SessionLoggedEvent struct {
	BaseEvent
	ExerciseID      string    `json:"exercise_id"`
	Tempo           int       `json:"tempo"`
	DurationSeconds int       `json:"duration_seconds"`
	PracticedAt     time.Time `json:"practiced_at"`
}

// Payload implements Event interface.
func (e SessionLoggedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"exercise_id":      e.ExerciseID,
		"tempo":            e.Tempo,
		"duration_seconds": e.DurationSeconds,
		"practiced_at":     e.PracticedAt,
	}
}

// NewSessionLoggedEvent creates a new SessionLoggedEvent.
func NewSessionLoggedEvent(sessionID, exerciseID string, tempo, durationSeconds int, practicedAt time.Time) SessionLoggedEvent {
	return SessionLoggedEvent{
		BaseEvent:       NewBaseEvent(EventSessionLogged, sessionID),
		ExerciseID:      exerciseID,
		Tempo:           tempo,
		DurationSeconds: durationSeconds,
		PracticedAt:     practicedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per rule, when its unlock record is first persisted.
type AchievementUnlockedEvent struct {
	BaseEvent
	RuleID     string    `json:"rule_id"`
	UnlockID   string    `json:"unlock_id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"rule_id":     e.RuleID,
		"unlock_id":   e.UnlockID,
		"unlocked_at": e.UnlockedAt,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(ruleID, unlockID string, unlockedAt time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:  NewBaseEvent(EventAchievementUnlocked, ruleID),
		RuleID:     ruleID,
		UnlockID:   unlockID,
		UnlockedAt: unlockedAt,
	}
}

// ReconcileCompletedEvent summarises one reconciliation run.
type ReconcileCompletedEvent struct {
	BaseEvent
	Trigger       string   `json:"trigger"`
	NewlyUnlocked []string `json:"newly_unlocked"`
	FailureCount  int      `json:"failure_count"`
}

// Payload implements Event interface.
func (e ReconcileCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"trigger":        e.Trigger,
		"newly_unlocked": e.NewlyUnlocked,
		"failure_count":  e.FailureCount,
	}
}

// NewReconcileCompletedEvent creates a new ReconcileCompletedEvent.
func NewReconcileCompletedEvent(runID, trigger string, newlyUnlocked []string, failures int) ReconcileCompletedEvent {
	return ReconcileCompletedEvent{
		BaseEvent:     NewBaseEvent(EventReconcileCompleted, runID),
		Trigger:       trigger,
		NewlyUnlocked: newlyUnlocked,
		FailureCount:  failures,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all event types.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
