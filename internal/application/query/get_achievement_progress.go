// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENT PROGRESS QUERY
// Read model for the achievements panel: rule metadata joined with the
// recomputed progress and the persisted unlock time.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementProgressQuery filters the listing.
type GetAchievementProgressQuery struct {
	// Category limits the listing to one category (empty = all).
	Category string

	// UnlockedOnly drops rules without an unlock record.
	UnlockedOnly bool
}

// Validate checks the query parameters.
func (q *GetAchievementProgressQuery) Validate() error {
	switch achievement.Category(q.Category) {
	case "", achievement.CategoryTempo, achievement.CategoryConsistency, achievement.CategoryTime,
		achievement.CategoryImprovement, achievement.CategorySpecial, achievement.CategorySegment:
		return nil
	default:
		return fmt.Errorf("unknown category %q", q.Category)
	}
}

// AchievementDTO is one row of the achievements panel.
type AchievementDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category"`
	Tier        string `json:"tier"`

	CurrentValue    float64 `json:"current_value"`
	Threshold       float64 `json:"threshold"`
	ProgressPercent int     `json:"progress_percent"`
	IsSatisfied     bool    `json:"is_satisfied"`

	// IsUnlocked is true once a record is persisted.
	IsUnlocked bool `json:"is_unlocked"`

	// UnlockedAt is the persisted time when unlocked, otherwise the estimate
	// for a satisfied rule that has not been reconciled yet.
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// ProgressSummaryDTO aggregates the listing.
type ProgressSummaryDTO struct {
	Total          int `json:"total"`
	Unlocked       int `json:"unlocked"`
	Satisfied      int `json:"satisfied"`
	CompletionPct  int `json:"completion_percent"`
	PendingUnlocks int `json:"pending_unlocks"`
}

// GetAchievementProgressResult is the query result.
type GetAchievementProgressResult struct {
	Achievements []AchievementDTO   `json:"achievements"`
	Summary      ProgressSummaryDTO `json:"summary"`
	EvaluatedAt  time.Time          `json:"evaluated_at"`
}

// AchievementEvaluator evaluates the practice log without side effects.
type AchievementEvaluator interface {
	Evaluate(ctx context.Context) (*saga.Evaluation, error)
}

// GetAchievementProgressHandler handles GetAchievementProgressQuery.
type GetAchievementProgressHandler struct {
	evaluator AchievementEvaluator
	now       func() time.Time
}

// NewGetAchievementProgressHandler creates the handler.
func NewGetAchievementProgressHandler(evaluator AchievementEvaluator) *GetAchievementProgressHandler {
	return &GetAchievementProgressHandler{
		evaluator: evaluator,
		now:       time.Now,
	}
}

// Handle executes the query.
func (h *GetAchievementProgressHandler) Handle(ctx context.Context, query GetAchievementProgressQuery) (*GetAchievementProgressResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetAchievementProgress", shared.ErrValidation, err.Error(), err)
	}

	eval, err := h.evaluator.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	unlockedAt := make(map[string]time.Time, len(eval.Unlocks))
	for _, rec := range eval.Unlocks {
		unlockedAt[rec.RuleID] = rec.UnlockedAt
	}

	result := &GetAchievementProgressResult{
		Achievements: make([]AchievementDTO, 0, len(eval.Progress)),
		EvaluatedAt:  h.now().UTC(),
	}

	for _, p := range eval.Progress {
		rule, ok := eval.Catalog.Rule(p.RuleID)
		if !ok {
			continue
		}
		dto := toAchievementDTO(rule, p, unlockedAt)

		// Summary covers the whole catalog, not just the filtered rows
		result.Summary.Total++
		if dto.IsUnlocked {
			result.Summary.Unlocked++
		}
		if dto.IsSatisfied {
			result.Summary.Satisfied++
			if !dto.IsUnlocked {
				result.Summary.PendingUnlocks++
			}
		}

		if query.Category != "" && dto.Category != query.Category {
			continue
		}
		if query.UnlockedOnly && !dto.IsUnlocked {
			continue
		}
		result.Achievements = append(result.Achievements, dto)
	}

	result.Summary.CompletionPct = achievement.Percent(float64(result.Summary.Unlocked), float64(result.Summary.Total))
	return result, nil
}

func toAchievementDTO(rule achievement.RuleDefinition, p achievement.ProgressRecord, unlockedAt map[string]time.Time) AchievementDTO {
	dto := AchievementDTO{
		ID:              rule.ID,
		Name:            rule.Name,
		Description:     rule.Description,
		Icon:            rule.Icon,
		Category:        string(rule.Category),
		Tier:            string(rule.Tier),
		CurrentValue:    p.CurrentValue,
		Threshold:       p.Threshold,
		ProgressPercent: p.ProgressPercent,
		IsSatisfied:     p.IsSatisfied,
	}

	if at, ok := unlockedAt[rule.ID]; ok {
		dto.IsUnlocked = true
		dto.UnlockedAt = &at
	} else if p.EstimatedSatisfiedAt != nil {
		at := *p.EstimatedSatisfiedAt
		dto.UnlockedAt = &at
	}
	return dto
}
