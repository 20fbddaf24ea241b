package saga

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/memory"
)

var (
	d1 = time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)
	d2 = d1.AddDate(0, 0, 1)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixedIDs struct{}

func (fixedIDs) GenerateID() string { return "run-1" }

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.SaveExercise(ctx, practice.Exercise{ID: "1", Name: "Single Strokes"}))
	require.NoError(t, store.AppendSession(ctx, practice.Session{ID: "s-1", ExerciseID: "1", Tempo: 100, DurationSeconds: 60, PracticedAt: d1}))
	require.NoError(t, store.AppendSession(ctx, practice.Session{ID: "s-2", ExerciseID: "1", Tempo: 110, DurationSeconds: 60, PracticedAt: d2}))
	return store
}

func newSaga(store *memory.Store, pub shared.EventPublisher) *AchievementFlowSaga {
	cfg := DefaultAchievementFlowConfig()
	cfg.IDGenerator = fixedIDs{}
	cfg.Clock = func() time.Time { return d2.Add(time.Hour) }
	return NewAchievementFlowSaga(store, store, store, pub, cfg)
}

func TestAchievementFlow_UnlocksAndPublishes(t *testing.T) {
	store := seededStore(t)
	pub := &recordingPublisher{}
	flow := newSaga(store, pub)

	result, err := flow.Execute(context.Background(), AchievementFlowInput{Trigger: TriggerSessionLogged, CorrelationID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Len(t, result.Progress, 23)
	assert.Equal(t, []string{"bpm-100", "growth-10", "perfect-week", "course-complete"}, result.Reconcile.NewlyUnlockedIDs())
	assert.Empty(t, result.Reconcile.Failures)
	assert.True(t, result.HasNewUnlocks())

	unlocked := pub.ofType(shared.EventAchievementUnlocked)
	require.Len(t, unlocked, 4)
	assert.Equal(t, "bpm-100", unlocked[0].AggregateID())

	summary := pub.ofType(shared.EventReconcileCompleted)
	require.Len(t, summary, 1)
	assert.Equal(t, []string{"bpm-100", "growth-10", "perfect-week", "course-complete"}, summary[0].Payload()["newly_unlocked"])

	records, err := store.ListUnlocks(context.Background())
	require.NoError(t, err)
	for _, r := range records {
		if r.RuleID == "growth-10" {
			assert.True(t, d2.Equal(r.UnlockedAt), "growth unlock dates to the session that reached it")
		}
	}
}

func TestAchievementFlow_SecondRunIsNoop(t *testing.T) {
	store := seededStore(t)
	pub := &recordingPublisher{}
	flow := newSaga(store, pub)
	ctx := context.Background()

	_, err := flow.Execute(ctx, AchievementFlowInput{Trigger: TriggerManual})
	require.NoError(t, err)

	again, err := flow.Execute(ctx, AchievementFlowInput{Trigger: TriggerScheduled})
	require.NoError(t, err)
	assert.Empty(t, again.Reconcile.NewlyUnlocked)
	assert.Empty(t, again.Reconcile.Failures)
	assert.Len(t, pub.ofType(shared.EventAchievementUnlocked), 4)

	records, err := store.ListUnlocks(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestAchievementFlow_EvaluateHasNoSideEffects(t *testing.T) {
	store := seededStore(t)
	pub := &recordingPublisher{}
	flow := newSaga(store, pub)

	eval, err := flow.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23, eval.Catalog.Len())
	assert.Len(t, achievement.SatisfiedRecords(eval.Progress), 4)

	records, err := store.ListUnlocks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, pub.events)
}

type failingSessions struct {
	*memory.Store
	err error
}

func (f failingSessions) ListSessions(context.Context) ([]practice.Session, error) {
	return nil, f.err
}

func TestAchievementFlow_LoadFailureAborts(t *testing.T) {
	store := seededStore(t)
	down := shared.WrapError("practice", "ListSessions", shared.ErrServiceUnavailable, "db down", errors.New("connection refused"))
	flow := NewAchievementFlowSaga(failingSessions{store, down}, store, store, nil, DefaultAchievementFlowConfig())

	_, err := flow.Execute(context.Background(), AchievementFlowInput{})
	require.Error(t, err)

	var flowErr *AchievementFlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepLoad, flowErr.Step)
	assert.True(t, flowErr.IsRetryable())
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)

	records, err := store.ListUnlocks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

type unlistableUnlocks struct {
	*memory.Store
	err error
}

func (u unlistableUnlocks) ListUnlocks(context.Context) ([]achievement.UnlockRecord, error) {
	return nil, u.err
}

func TestAchievementFlow_UnlockListFailureStillInserts(t *testing.T) {
	store := seededStore(t)
	listErr := errors.New("unlock store list unavailable")
	pub := &recordingPublisher{}
	cfg := DefaultAchievementFlowConfig()
	cfg.Clock = func() time.Time { return d2.Add(time.Hour) }
	flow := NewAchievementFlowSaga(store, store, unlistableUnlocks{store, listErr}, pub, cfg)
	ctx := context.Background()

	result, err := flow.Execute(ctx, AchievementFlowInput{Trigger: TriggerSessionLogged})
	require.NoError(t, err)
	assert.Equal(t, []string{"bpm-100", "growth-10", "perfect-week", "course-complete"}, result.Reconcile.NewlyUnlockedIDs())
	assert.ErrorIs(t, result.Reconcile.SnapshotErr, listErr)
	assert.Empty(t, result.Reconcile.Failures)
	assert.Len(t, pub.ofType(shared.EventAchievementUnlocked), 4)

	records, err := store.ListUnlocks(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)

	// The next run still cannot list, so every satisfied rule loses its insert race.
	again, err := flow.Execute(ctx, AchievementFlowInput{Trigger: TriggerScheduled})
	require.NoError(t, err)
	assert.Empty(t, again.Reconcile.NewlyUnlocked)
	assert.ElementsMatch(t, []string{"bpm-100", "growth-10", "perfect-week", "course-complete"}, again.Reconcile.AlreadyUnlocked)
	assert.Empty(t, again.Reconcile.Failures)

	eval, err := flow.Evaluate(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, eval.UnlocksErr, listErr)
	assert.Empty(t, eval.Unlocks)
}

func TestAchievementFlow_CatalogFailure(t *testing.T) {
	store := seededStore(t)
	cfg := DefaultAchievementFlowConfig()
	cfg.BuildCatalog = func([]practice.Segment) (*achievement.Catalog, error) {
		return achievement.NewCatalog(achievement.RuleDefinition{ID: "bad", Kind: achievement.MetricTotalSessions})
	}
	flow := NewAchievementFlowSaga(store, store, store, nil, cfg)

	_, err := flow.Execute(context.Background(), AchievementFlowInput{})

	var flowErr *AchievementFlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepCatalog, flowErr.Step)
	assert.False(t, flowErr.IsRetryable())
	assert.ErrorIs(t, err, shared.ErrNonPositiveThresh)
}

func TestAchievementFlow_SegmentsExtendCatalog(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveSegment(ctx, practice.Segment{ID: "segment-1", Name: "Segment 1", Order: 1}))
	require.NoError(t, store.SaveExercise(ctx, practice.Exercise{ID: "1", Name: "Single Strokes", SegmentID: "segment-1"}))

	result, err := newSaga(store, nil).Execute(ctx, AchievementFlowInput{})
	require.NoError(t, err)

	assert.Len(t, result.Progress, 24)
	assert.Contains(t, result.Reconcile.NewlyUnlockedIDs(), "segment-segment-1-complete")
	assert.Contains(t, result.Reconcile.NewlyUnlockedIDs(), "course-complete")
}
