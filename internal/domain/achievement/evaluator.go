package achievement

import (
	"math"
	"time"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/pkg/timeutil"
)

// ProgressRecord is the recomputed-on-read evaluation output for one rule.
type ProgressRecord struct {
	RuleID       string
	CurrentValue float64

	// Threshold is the effective threshold: the rule's own, or the catalog size
	// for allAchievementsUnlocked.
	Threshold float64

	ProgressPercent int
	IsSatisfied     bool

	// EstimatedSatisfiedAt is set only when IsSatisfied is true.
	EstimatedSatisfiedAt *time.Time
}

// Clock returns the current time.
type Clock func() time.Time

// Evaluator computes progress for every rule of a catalog.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	catalog  *Catalog
	calendar timeutil.Calendar
	now      Clock
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithCalendar sets the calendar used for day and week bucketing.
func WithCalendar(cal timeutil.Calendar) EvaluatorOption {
	return func(e *Evaluator) {
		e.calendar = cal
	}
}

// WithClock sets the clock used for "now" fallbacks.
func WithClock(now Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEvaluator creates an Evaluator bound to an immutable catalog.
func NewEvaluator(catalog *Catalog, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		catalog:  catalog,
		calendar: timeutil.DefaultCalendar(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the evaluator's catalog.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Evaluate returns one ProgressRecord per catalog rule, in catalog order.
// sessions may be in any order. It performs no I/O.
func (e *Evaluator) Evaluate(sessions []practice.Session, exercises []practice.Exercise, unlockedRuleIDs []string) []ProgressRecord {
	history := NewHistory(sessions, exercises, e.calendar)
	unlocked := make(map[string]struct{}, len(unlockedRuleIDs))
	for _, id := range unlockedRuleIDs {
		unlocked[id] = struct{}{}
	}

	now := e.now().UTC()
	records := make([]ProgressRecord, 0, e.catalog.Len())
	for _, rule := range e.catalog.rules {
		records = append(records, e.evaluateRule(rule, history, unlocked, now))
	}
	return records
}

// EvaluateRule evaluates a single rule by id.
func (e *Evaluator) EvaluateRule(ruleID string, sessions []practice.Session, exercises []practice.Exercise, unlockedRuleIDs []string) (ProgressRecord, bool) {
	rule, ok := e.catalog.Rule(ruleID)
	if !ok {
		return ProgressRecord{}, false
	}
	unlocked := make(map[string]struct{}, len(unlockedRuleIDs))
	for _, id := range unlockedRuleIDs {
		unlocked[id] = struct{}{}
	}
	history := NewHistory(sessions, exercises, e.calendar)
	return e.evaluateRule(rule, history, unlocked, e.now().UTC()), true
}

func (e *Evaluator) evaluateRule(rule RuleDefinition, h History, unlocked map[string]struct{}, now time.Time) ProgressRecord {
	var value, threshold float64
	if rule.Kind == MetricAllAchievementsUnlocked {
		value, threshold = e.allUnlocked(rule, unlocked)
	} else {
		value, threshold = Extract(rule.Kind, h, rule.Scope()), rule.Threshold
	}

	rec := ProgressRecord{
		RuleID:          rule.ID,
		CurrentValue:    value,
		Threshold:       threshold,
		ProgressPercent: Percent(value, threshold),
		IsSatisfied:     value >= threshold,
	}
	if !rec.IsSatisfied {
		return rec
	}

	at := now
	if rule.Kind != MetricAllAchievementsUnlocked {
		at = EstimateSatisfiedAt(rule.Kind, h, rule.Scope(), threshold, now)
	}
	rec.EstimatedSatisfiedAt = &at
	return rec
}

// allUnlocked reads the unlock snapshot: value is the number of other catalog rules
// already unlocked, threshold is the catalog size. Once every other rule is unlocked
// the value is lifted to the threshold so the rule can complete. A catalog with no
// other rule never completes it.
func (e *Evaluator) allUnlocked(rule RuleDefinition, unlocked map[string]struct{}) (float64, float64) {
	total := e.catalog.Len()
	others := 0
	for id := range unlocked {
		if id != rule.ID && e.catalog.Has(id) {
			others++
		}
	}
	if total > 1 && others >= total-1 {
		return float64(total), float64(total)
	}
	return float64(others), float64(total)
}

// Percent returns min(100, round(value/threshold*100)), floored at 0.
func Percent(value, threshold float64) int {
	if threshold <= 0 {
		return 0
	}
	p := math.Round(value / threshold * 100)
	switch {
	case p > 100:
		return 100
	case p < 0:
		return 0
	}
	return int(p)
}

// SatisfiedRecords filters records down to the satisfied ones.
func SatisfiedRecords(records []ProgressRecord) []ProgressRecord {
	var out []ProgressRecord
	for _, r := range records {
		if r.IsSatisfied {
			out = append(out, r)
		}
	}
	return out
}
