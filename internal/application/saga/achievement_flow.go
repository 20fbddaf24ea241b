// Package saga contains multi-step business processes that orchestrate
// several domain operations.
package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW SAGA
// Flow: Load (sessions, reference data, unlocks) → Build Catalog → Evaluate →
//       Reconcile → Publish Events
//
// Load failures abort the run. Reconciliation failures never do: they are
// reported per rule and picked up by the next trigger.
// ══════════════════════════════════════════════════════════════════════════════

// Reconciliation triggers.
const (
	TriggerSessionLogged = "session_logged"
	TriggerScheduled     = "scheduled"
	TriggerManual        = "manual"
)

// AchievementFlowInput describes one run.
type AchievementFlowInput struct {
	// Trigger names what started the run (session_logged, scheduled, manual).
	Trigger string

	// CorrelationID ties published events to the request that caused them.
	CorrelationID string
}

// AchievementFlowResult contains the outcome of a run.
type AchievementFlowResult struct {
	RunID       string
	Trigger     string
	Progress    []achievement.ProgressRecord
	Reconcile   achievement.ReconcileResult
	StartedAt   time.Time
	CompletedAt time.Time
}

// HasNewUnlocks reports whether the run unlocked anything.
func (r *AchievementFlowResult) HasNewUnlocks() bool {
	return len(r.Reconcile.NewlyUnlocked) > 0
}

// AchievementFlowStep names a step of the flow.
type AchievementFlowStep string

const (
	StepLoad    AchievementFlowStep = "load"
	StepCatalog AchievementFlowStep = "build_catalog"
)

// AchievementFlowError is returned when a run aborts.
type AchievementFlowError struct {
	Step  AchievementFlowStep
	RunID string
	Cause error
}

func (e *AchievementFlowError) Error() string {
	return fmt.Sprintf("achievement_flow: run %s failed at step %q: %v", e.RunID, e.Step, e.Cause)
}

func (e *AchievementFlowError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the next trigger is likely to succeed.
func (e *AchievementFlowError) IsRetryable() bool {
	return e.Step == StepLoad && shared.IsRetryable(e.Cause)
}

// IDGenerator generates run ids.
type IDGenerator interface {
	GenerateID() string
}

type uuidGenerator struct{}

func (uuidGenerator) GenerateID() string { return uuid.NewString() }

// ══════════════════════════════════════════════════════════════════════════════
// IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowConfig configures the saga.
type AchievementFlowConfig struct {
	// BuildCatalog builds the rule catalog from the current segments (default: achievement.DefaultCatalog).
	BuildCatalog achievement.CatalogBuilder

	// EvaluatorOptions are passed to every evaluator the saga creates.
	EvaluatorOptions []achievement.EvaluatorOption

	// PublishEvents enables achievement.unlocked and reconcile_completed events.
	PublishEvents bool

	IDGenerator IDGenerator
	Logger      *logger.Logger
	Clock       achievement.Clock
}

// DefaultAchievementFlowConfig returns default configuration.
func DefaultAchievementFlowConfig() AchievementFlowConfig {
	return AchievementFlowConfig{
		BuildCatalog:  achievement.DefaultCatalog,
		PublishEvents: true,
	}
}

// AchievementFlowSaga evaluates the practice log and persists new unlocks.
// It is safe for concurrent use; the unlock store's atomic insert keeps
// concurrent runs from creating duplicates.
type AchievementFlowSaga struct {
	sessions  practice.SessionRepository
	exercises practice.ExerciseRepository
	unlocks   achievement.UnlockStore
	events    shared.EventPublisher

	buildCatalog achievement.CatalogBuilder
	evalOpts     []achievement.EvaluatorOption
	publish      bool
	ids          IDGenerator
	log          *logger.Logger
	now          achievement.Clock
}

// NewAchievementFlowSaga creates the saga. events may be nil.
func NewAchievementFlowSaga(
	sessions practice.SessionRepository,
	exercises practice.ExerciseRepository,
	unlocks achievement.UnlockStore,
	events shared.EventPublisher,
	config AchievementFlowConfig,
) *AchievementFlowSaga {
	if config.BuildCatalog == nil {
		config.BuildCatalog = achievement.DefaultCatalog
	}
	if config.IDGenerator == nil {
		config.IDGenerator = uuidGenerator{}
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &AchievementFlowSaga{
		sessions:     sessions,
		exercises:    exercises,
		unlocks:      unlocks,
		events:       events,
		buildCatalog: config.BuildCatalog,
		evalOpts:     config.EvaluatorOptions,
		publish:      config.PublishEvents && events != nil,
		ids:          config.IDGenerator,
		log:          config.Logger.With(logger.Component("achievement_flow")),
		now:          config.Clock,
	}
}

// flowSnapshot is everything the evaluate step needs.
type flowSnapshot struct {
	sessions  []practice.Session
	exercises []practice.Exercise
	segments  []practice.Segment
	unlocks   []achievement.UnlockRecord

	unlocksErr error
}

// Evaluation is a side-effect-free evaluation of the current practice log.
type Evaluation struct {
	Catalog  *achievement.Catalog
	Progress []achievement.ProgressRecord

	// Unlocks are the persisted records the evaluation saw, newest first.
	Unlocks []achievement.UnlockRecord

	// UnlocksErr is set when the unlock store could not be listed. Unlocks is
	// then empty and only allAchievementsUnlocked rules are affected.
	UnlocksErr error
}

// Evaluate loads the log and evaluates every rule without writing anything.
func (s *AchievementFlowSaga) Evaluate(ctx context.Context) (*Evaluation, error) {
	runID := s.ids.GenerateID()
	return s.evaluate(ctx, runID, s.log.With(logger.String("run_id", runID)))
}

func (s *AchievementFlowSaga) evaluate(ctx context.Context, runID string, log *logger.Logger) (*Evaluation, error) {
	// Step 1: load sessions, reference data and unlocks concurrently
	snap, err := s.stepLoad(ctx)
	if err != nil {
		return nil, s.fail(log, StepLoad, runID, err)
	}
	if snap.unlocksErr != nil {
		log.Warn("unlock store unavailable, evaluating without unlock state", logger.Err(snap.unlocksErr))
	}

	// Step 2: catalog for the current segment list
	catalog, err := s.buildCatalog(snap.segments)
	if err != nil {
		return nil, s.fail(log, StepCatalog, runID, err)
	}

	// Step 3: evaluate
	evaluator := achievement.NewEvaluator(catalog, s.evalOpts...)
	return &Evaluation{
		Catalog:    catalog,
		Progress:   evaluator.Evaluate(snap.sessions, snap.exercises, achievement.UnlockedRuleIDs(snap.unlocks)),
		Unlocks:    snap.unlocks,
		UnlocksErr: snap.unlocksErr,
	}, nil
}

// Execute runs the flow once.
func (s *AchievementFlowSaga) Execute(ctx context.Context, input AchievementFlowInput) (*AchievementFlowResult, error) {
	runID := s.ids.GenerateID()
	if input.Trigger == "" {
		input.Trigger = TriggerManual
	}
	log := s.log.With(logger.String("run_id", runID), logger.String("trigger", input.Trigger))
	started := s.now().UTC()

	eval, err := s.evaluate(ctx, runID, log)
	if err != nil {
		return nil, err
	}

	// Step 4: reconcile, publishing one event per new unlock
	reconciler := achievement.NewReconciler(
		achievement.WithNotifier(s.notifier(log, input.CorrelationID)),
		achievement.WithReconcilerClock(s.now),
	)
	reconciled := reconciler.Reconcile(ctx, eval.Progress, s.unlocks)
	s.logReconcile(log, reconciled)

	// Step 5: summary event
	if s.publish {
		evt := shared.NewReconcileCompletedEvent(runID, input.Trigger, reconciled.NewlyUnlockedIDs(), len(reconciled.Failures))
		evt.BaseEvent = evt.BaseEvent.WithCorrelationID(input.CorrelationID)
		if err := s.events.Publish(evt); err != nil {
			log.Warn("publish reconcile summary failed", logger.Err(err))
		}
	}

	return &AchievementFlowResult{
		RunID:       runID,
		Trigger:     input.Trigger,
		Progress:    eval.Progress,
		Reconcile:   reconciled,
		StartedAt:   started,
		CompletedAt: s.now().UTC(),
	}, nil
}

func (s *AchievementFlowSaga) stepLoad(ctx context.Context) (flowSnapshot, error) {
	var snap flowSnapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sessions, err := s.sessions.ListSessions(gctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		snap.sessions = sessions
		return nil
	})
	g.Go(func() error {
		exercises, err := s.exercises.ListExercises(gctx)
		if err != nil {
			return fmt.Errorf("list exercises: %w", err)
		}
		snap.exercises = exercises
		return nil
	})
	g.Go(func() error {
		segments, err := s.exercises.ListSegments(gctx)
		if err != nil {
			return fmt.Errorf("list segments: %w", err)
		}
		snap.segments = segments
		return nil
	})
	// An unreadable unlock list does not stop the run: inserts are atomic and the
	// reconciler reports the list error itself.
	g.Go(func() error {
		records, err := s.unlocks.ListUnlocks(gctx)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			snap.unlocksErr = fmt.Errorf("list unlocks: %w", err)
			return nil
		}
		snap.unlocks = records
		return nil
	})

	if err := g.Wait(); err != nil {
		return flowSnapshot{}, err
	}
	return snap, nil
}

func (s *AchievementFlowSaga) notifier(log *logger.Logger, correlationID string) achievement.UnlockNotifier {
	return func(_ context.Context, rec achievement.UnlockRecord) {
		log.Info("achievement unlocked",
			logger.RuleID(rec.RuleID),
			logger.Time("unlocked_at", rec.UnlockedAt),
		)
		if !s.publish {
			return
		}
		evt := shared.NewAchievementUnlockedEvent(rec.RuleID, rec.ID, rec.UnlockedAt)
		evt.BaseEvent = evt.BaseEvent.WithCorrelationID(correlationID)
		if err := s.events.Publish(evt); err != nil {
			log.Warn("publish unlock event failed", logger.RuleID(rec.RuleID), logger.Err(err))
		}
	}
}

func (s *AchievementFlowSaga) logReconcile(log *logger.Logger, r achievement.ReconcileResult) {
	if r.SnapshotErr != nil {
		log.Warn("unlock snapshot unavailable, inserted without it", logger.Err(r.SnapshotErr))
	}
	for _, f := range r.Failures {
		log.Warn("unlock not persisted, will retry on next trigger", logger.RuleID(f.RuleID), logger.Err(f.Err))
	}
	if len(r.AlreadyUnlocked) > 0 {
		log.Debug("unlocks already recorded by another writer", logger.Strings("rule_ids", r.AlreadyUnlocked))
	}
	log.Info("reconcile completed",
		logger.Int("newly_unlocked", len(r.NewlyUnlocked)),
		logger.Int("failures", len(r.Failures)),
	)
}

func (s *AchievementFlowSaga) fail(log *logger.Logger, step AchievementFlowStep, runID string, err error) error {
	log.Error("achievement flow aborted", logger.String("step", string(step)), logger.Err(err))
	return &AchievementFlowError{Step: step, RunID: runID, Cause: err}
}
