package achievement

import (
	"context"
	"errors"
	"time"
)

// RuleFailure is a per-rule storage failure. The rule stays locked and is retried
// on the next reconciliation.
type RuleFailure struct {
	RuleID string
	Err    error
}

// ReconcileResult reports what one reconciliation run did.
type ReconcileResult struct {
	// NewlyUnlocked are records inserted by this run, in evaluation order.
	NewlyUnlocked []UnlockRecord

	// AlreadyUnlocked are rule ids another writer inserted first.
	AlreadyUnlocked []string

	Failures []RuleFailure

	// SnapshotErr is set when the initial unlock listing failed.
	// Reconciliation still attempts every satisfied rule in that case.
	SnapshotErr error
}

// NewlyUnlockedIDs returns the rule ids of NewlyUnlocked.
func (r ReconcileResult) NewlyUnlockedIDs() []string {
	return UnlockedRuleIDs(r.NewlyUnlocked)
}

// UnlockNotifier is told about every record a run inserts.
type UnlockNotifier func(ctx context.Context, record UnlockRecord)

// Reconciler persists newly satisfied rules exactly once.
type Reconciler struct {
	notify UnlockNotifier
	now    Clock
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithNotifier registers the callback for new unlocks.
func WithNotifier(fn UnlockNotifier) ReconcilerOption {
	return func(r *Reconciler) {
		r.notify = fn
	}
}

// WithReconcilerClock sets the clock used when a record carries no estimate.
func WithReconcilerClock(now Clock) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile inserts an unlock for every satisfied record whose rule is not yet in store.
// A conflict on insert counts as already unlocked; any other error is reported per rule
// and does not stop the remaining rules.
func (r *Reconciler) Reconcile(ctx context.Context, records []ProgressRecord, store UnlockStore) ReconcileResult {
	var result ReconcileResult

	present := make(map[string]struct{})
	existing, err := store.ListUnlocks(ctx)
	if err != nil {
		result.SnapshotErr = err
	}
	for _, u := range existing {
		present[u.RuleID] = struct{}{}
	}

	for _, rec := range records {
		if !rec.IsSatisfied {
			continue
		}
		if _, ok := present[rec.RuleID]; ok {
			continue
		}
		present[rec.RuleID] = struct{}{}

		at := r.now().UTC()
		if rec.EstimatedSatisfiedAt != nil {
			at = *rec.EstimatedSatisfiedAt
		}

		unlock, err := store.InsertIfAbsent(ctx, rec.RuleID, at)
		switch {
		case err == nil:
			result.NewlyUnlocked = append(result.NewlyUnlocked, unlock)
			if r.notify != nil {
				r.notify(ctx, unlock)
			}
		case errors.Is(err, ErrAlreadyUnlocked):
			result.AlreadyUnlocked = append(result.AlreadyUnlocked, rec.RuleID)
		default:
			result.Failures = append(result.Failures, RuleFailure{RuleID: rec.RuleID, Err: err})
		}
	}
	return result
}
