// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SESSION COMMAND
// Validates and appends a practice session, then runs achievement
// reconciliation so new unlocks show up in the same response.
// ══════════════════════════════════════════════════════════════════════════════

// RecordSessionCommand contains the data of a logged session.
type RecordSessionCommand struct {
	ExerciseID      string
	Tempo           int
	DurationSeconds int

	// PracticedAt defaults to now when zero.
	PracticedAt time.Time

	ReadyForFaster bool

	CorrelationID string
}

// RecordSessionResult contains the stored session and the reconciliation outcome.
type RecordSessionResult struct {
	Session practice.Session

	// Flow is nil when reconciliation failed; the session is logged either way.
	Flow    *saga.AchievementFlowResult
	FlowErr error
}

// AchievementRunner runs one reconciliation pass.
type AchievementRunner interface {
	Execute(ctx context.Context, input saga.AchievementFlowInput) (*saga.AchievementFlowResult, error)
}

// RecordSessionHandler handles RecordSessionCommand.
type RecordSessionHandler struct {
	sessions  practice.SessionRepository
	exercises practice.ExerciseRepository
	flow      AchievementRunner
	events    shared.EventPublisher
	log       *logger.Logger

	requireKnownExercise bool
	newID                func() string
	now                  func() time.Time
}

// RecordSessionConfig configures the handler.
type RecordSessionConfig struct {
	// RequireKnownExercise rejects sessions for exercises missing from the reference data.
	RequireKnownExercise bool

	Logger *logger.Logger
}

// NewRecordSessionHandler creates the handler. flow and events may be nil.
func NewRecordSessionHandler(
	sessions practice.SessionRepository,
	exercises practice.ExerciseRepository,
	flow AchievementRunner,
	events shared.EventPublisher,
	cfg RecordSessionConfig,
) *RecordSessionHandler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &RecordSessionHandler{
		sessions:             sessions,
		exercises:            exercises,
		flow:                 flow,
		events:               events,
		log:                  cfg.Logger.With(logger.Component("record_session")),
		requireKnownExercise: cfg.RequireKnownExercise,
		newID:                uuid.NewString,
		now:                  time.Now,
	}
}

// Handle executes the command.
func (h *RecordSessionHandler) Handle(ctx context.Context, cmd RecordSessionCommand) (*RecordSessionResult, error) {
	if cmd.PracticedAt.IsZero() {
		cmd.PracticedAt = h.now()
	}

	session, err := practice.NewSession(practice.NewSessionParams{
		ID:              h.newID(),
		ExerciseID:      cmd.ExerciseID,
		Tempo:           cmd.Tempo,
		DurationSeconds: cmd.DurationSeconds,
		PracticedAt:     cmd.PracticedAt.UTC(),
		ReadyForFaster:  cmd.ReadyForFaster,
	})
	if err != nil {
		return nil, err
	}

	if h.requireKnownExercise {
		if err := h.ensureExercise(ctx, session.ExerciseID); err != nil {
			return nil, err
		}
	}

	if err := h.sessions.AppendSession(ctx, session); err != nil {
		return nil, fmt.Errorf("record_session: append: %w", err)
	}
	h.log.Info("session logged",
		logger.SessionID(session.ID),
		logger.ExerciseID(session.ExerciseID),
		logger.Int("tempo", session.Tempo.Int()),
	)

	if h.events != nil {
		evt := shared.NewSessionLoggedEvent(session.ID, session.ExerciseID, session.Tempo.Int(), session.DurationSeconds.Int(), session.PracticedAt)
		evt.BaseEvent = evt.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		if err := h.events.Publish(evt); err != nil {
			h.log.Warn("publish session event failed", logger.Err(err))
		}
	}

	result := &RecordSessionResult{Session: session}
	if h.flow == nil {
		return result, nil
	}

	flow, err := h.flow.Execute(ctx, saga.AchievementFlowInput{
		Trigger:       saga.TriggerSessionLogged,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		result.FlowErr = err
		return result, nil
	}
	result.Flow = flow
	return result, nil
}

func (h *RecordSessionHandler) ensureExercise(ctx context.Context, exerciseID string) error {
	exercises, err := h.exercises.ListExercises(ctx)
	if err != nil {
		return fmt.Errorf("record_session: list exercises: %w", err)
	}
	for _, ex := range exercises {
		if ex.ID == exerciseID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", shared.ErrExerciseNotFound, exerciseID)
}
