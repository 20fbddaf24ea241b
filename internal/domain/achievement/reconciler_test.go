package achievement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// fakeStore is an atomic in-process UnlockStore with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]achievement.UnlockRecord
	inserts int

	listErr   error
	failRules map[string]error

	// staleList makes ListUnlocks report nothing, so racing writers both reach InsertIfAbsent.
	staleList bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]achievement.UnlockRecord)}
}

func (s *fakeStore) ListUnlocks(_ context.Context) ([]achievement.UnlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.staleList {
		return nil, nil
	}
	out := make([]achievement.UnlockRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) InsertIfAbsent(_ context.Context, ruleID string, at time.Time) (achievement.UnlockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if err := s.failRules[ruleID]; err != nil {
		return achievement.UnlockRecord{}, err
	}
	if _, ok := s.records[ruleID]; ok {
		return achievement.UnlockRecord{}, achievement.ErrAlreadyUnlocked
	}
	rec := achievement.UnlockRecord{ID: "u-" + ruleID, RuleID: ruleID, UnlockedAt: at}
	s.records[ruleID] = rec
	return rec, nil
}

var (
	d1 = time.Date(2025, 8, 18, 18, 0, 0, 0, time.UTC)
	d2 = d1.AddDate(0, 0, 1)
)

func satisfied(id string, at time.Time) achievement.ProgressRecord {
	return achievement.ProgressRecord{RuleID: id, CurrentValue: 1, Threshold: 1, ProgressPercent: 100, IsSatisfied: true, EstimatedSatisfiedAt: &at}
}

func TestReconcile_UnlocksSatisfiedRules(t *testing.T) {
	store := newFakeStore()
	var notified []string
	r := achievement.NewReconciler(achievement.WithNotifier(func(_ context.Context, rec achievement.UnlockRecord) {
		notified = append(notified, rec.RuleID)
	}))

	records := []achievement.ProgressRecord{
		satisfied("growth-10", d2),
		{RuleID: "sessions-10", CurrentValue: 2, Threshold: 10, ProgressPercent: 20},
		satisfied("bpm-100", d1),
	}

	res := r.Reconcile(context.Background(), records, store)

	assert.Equal(t, []string{"growth-10", "bpm-100"}, res.NewlyUnlockedIDs())
	assert.Equal(t, []string{"growth-10", "bpm-100"}, notified)
	assert.Empty(t, res.Failures)
	assert.Empty(t, res.AlreadyUnlocked)
	assert.Equal(t, d2, store.records["growth-10"].UnlockedAt)
	assert.Equal(t, d1, store.records["bpm-100"].UnlockedAt)
}

func TestReconcile_Idempotent(t *testing.T) {
	store := newFakeStore()
	r := achievement.NewReconciler()
	records := []achievement.ProgressRecord{satisfied("a", d1), satisfied("b", d2)}

	first := r.Reconcile(context.Background(), records, store)
	require.Len(t, first.NewlyUnlocked, 2)

	second := r.Reconcile(context.Background(), records, store)
	assert.Empty(t, second.NewlyUnlocked)
	assert.Empty(t, second.Failures)
	assert.Len(t, store.records, 2)
	assert.Equal(t, 2, store.inserts, "known unlocks are not re-inserted")
}

func TestReconcile_ConflictIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.records["a"] = achievement.UnlockRecord{ID: "u-a", RuleID: "a", UnlockedAt: d1}
	store.staleList = true

	var notified int
	r := achievement.NewReconciler(achievement.WithNotifier(func(context.Context, achievement.UnlockRecord) { notified++ }))

	res := r.Reconcile(context.Background(), []achievement.ProgressRecord{satisfied("a", d2)}, store)

	assert.Empty(t, res.NewlyUnlocked)
	assert.Empty(t, res.Failures)
	assert.Equal(t, []string{"a"}, res.AlreadyUnlocked)
	assert.Zero(t, notified)
	assert.Equal(t, d1, store.records["a"].UnlockedAt, "existing record is never overwritten")
}

func TestReconcile_FailuresArePerRule(t *testing.T) {
	store := newFakeStore()
	store.failRules = map[string]error{"b": shared.ErrUnlockStoreDown}
	r := achievement.NewReconciler()

	res := r.Reconcile(context.Background(), []achievement.ProgressRecord{
		satisfied("a", d1), satisfied("b", d1), satisfied("c", d1),
	}, store)

	assert.Equal(t, []string{"a", "c"}, res.NewlyUnlockedIDs())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].RuleID)
	assert.True(t, shared.IsRetryable(res.Failures[0].Err))
}

func TestReconcile_ListFailureStillAttemptsInserts(t *testing.T) {
	store := newFakeStore()
	store.records["a"] = achievement.UnlockRecord{ID: "u-a", RuleID: "a", UnlockedAt: d1}
	store.listErr = errors.New("connection reset")
	r := achievement.NewReconciler()

	res := r.Reconcile(context.Background(), []achievement.ProgressRecord{satisfied("a", d1), satisfied("b", d1)}, store)

	require.Error(t, res.SnapshotErr)
	assert.Equal(t, []string{"b"}, res.NewlyUnlockedIDs())
	assert.Equal(t, []string{"a"}, res.AlreadyUnlocked)
	assert.Empty(t, res.Failures)
}

func TestReconcile_MissingEstimateUsesClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	r := achievement.NewReconciler(achievement.WithReconcilerClock(func() time.Time { return now }))

	rec := achievement.ProgressRecord{RuleID: "a", IsSatisfied: true}
	r.Reconcile(context.Background(), []achievement.ProgressRecord{rec}, store)

	assert.Equal(t, now, store.records["a"].UnlockedAt)
}

func TestReconcile_ConcurrentRace(t *testing.T) {
	store := newFakeStore()
	store.staleList = true
	records := []achievement.ProgressRecord{satisfied("streak-7", d1)}

	const callers = 8
	results := make([]achievement.ReconcileResult, callers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = achievement.NewReconciler().Reconcile(context.Background(), records, store)
		}(i)
	}
	close(start)
	wg.Wait()

	var newly, already int
	for _, res := range results {
		assert.Empty(t, res.Failures)
		newly += len(res.NewlyUnlocked)
		already += len(res.AlreadyUnlocked)
	}
	assert.Equal(t, 1, newly)
	assert.Equal(t, callers-1, already)
	assert.Len(t, store.records, 1)
}
