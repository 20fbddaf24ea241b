package achievement

import (
	"errors"
	"fmt"
	"strings"

	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
)

// Category groups rules on the achievements page.
type Category string

const (
	CategoryTempo       Category = "bpm"
	CategoryConsistency Category = "consistency"
	CategoryTime        Category = "time"
	CategoryImprovement Category = "improvement"
	CategorySpecial     Category = "special"
	CategorySegment     Category = "segment"
)

// Tier is the medal level of a rule.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// RuleDefinition is one static, versioned achievement rule.
type RuleDefinition struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Category    Category
	Tier        Tier

	Kind      MetricKind
	Threshold float64

	// Optional scope restrictions.
	ScopeExerciseID string
	ScopeSegmentID  string
}

// Scope returns the rule's scope.
func (r RuleDefinition) Scope() Scope {
	return Scope{ExerciseID: r.ScopeExerciseID, SegmentID: r.ScopeSegmentID}
}

// Validate checks a single rule in isolation.
func (r RuleDefinition) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", shared.ErrInvalidRule)
	}
	if !r.Kind.IsKnown() {
		return fmt.Errorf("rule %q: %w: %q", r.ID, shared.ErrUnknownMetricKind, r.Kind)
	}
	if !(r.Threshold > 0) {
		return fmt.Errorf("rule %q: %w: %v", r.ID, shared.ErrNonPositiveThresh, r.Threshold)
	}
	if r.Kind == MetricSegmentComplete && r.ScopeSegmentID == "" {
		return fmt.Errorf("rule %q: %w: segmentComplete needs a segment scope", r.ID, shared.ErrInvalidRule)
	}
	return nil
}

// Catalog is the validated, ordered rule set. It is read-only after construction.
type Catalog struct {
	rules []RuleDefinition
	index map[string]int
}

// NewCatalog validates every rule and rejects the whole set if any rule is invalid
// or any id is repeated. All problems are reported together.
func NewCatalog(rules ...RuleDefinition) (*Catalog, error) {
	c := &Catalog{
		rules: make([]RuleDefinition, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}

	var errs []error
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.index[r.ID]; dup {
			errs = append(errs, fmt.Errorf("rule %q: %w", r.ID, shared.ErrDuplicateRule))
			continue
		}
		c.index[r.ID] = len(c.rules)
		c.rules = append(c.rules, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// MustCatalog is NewCatalog for static rule sets; it panics on invalid input.
func MustCatalog(rules ...RuleDefinition) *Catalog {
	c, err := NewCatalog(rules...)
	if err != nil {
		panic(err)
	}
	return c
}

// Rules returns the rules in declaration order.
func (c *Catalog) Rules() []RuleDefinition {
	out := make([]RuleDefinition, len(c.rules))
	copy(out, c.rules)
	return out
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Rule looks up a rule by id.
func (c *Catalog) Rule(id string) (RuleDefinition, bool) {
	i, ok := c.index[id]
	if !ok {
		return RuleDefinition{}, false
	}
	return c.rules[i], true
}

// Has reports whether id names a rule in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// IDs returns the rule ids in declaration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.rules))
	for i, r := range c.rules {
		ids[i] = r.ID
	}
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT RULE SET
// ══════════════════════════════════════════════════════════════════════════════

const hour = 3600

// DefaultRules returns the built-in rule set: the base rules, a completion rule per
// segment, then course-complete and all-achievements.
func DefaultRules(segments []practice.Segment) []RuleDefinition {
	rules := []RuleDefinition{
		tempoRule("bpm-100", "Century Club", "Hit 100 BPM on any exercise", TierBronze, 100),
		tempoRule("bpm-120", "Speed Demon", "Hit 120 BPM on any exercise", TierSilver, 120),
		tempoRule("bpm-140", "Lightning Hands", "Hit 140 BPM on any exercise", TierGold, 140),
		tempoRule("bpm-160", "Supersonic", "Hit 160 BPM on any exercise", TierPlatinum, 160),

		sessionsRule("sessions-10", "Getting Started", TierBronze, 10),
		sessionsRule("sessions-50", "Dedicated Drummer", TierSilver, 50),
		sessionsRule("sessions-100", "Practice Master", TierGold, 100),
		sessionsRule("sessions-200", "Relentless", TierPlatinum, 200),

		timeRule("time-10h", "First 10 Hours", TierBronze, 10),
		timeRule("time-25h", "Quarter Century", TierSilver, 25),
		timeRule("time-50h", "Half Century", TierGold, 50),
		timeRule("time-100h", "Centurion", TierPlatinum, 100),

		growthRule("growth-10", "Steady Progress", TierBronze, 10),
		growthRule("growth-25", "Major Breakthrough", TierSilver, 25),
		growthRule("growth-50", "Quantum Leap", TierGold, 50),
		growthRule("growth-75", "Transformation", TierPlatinum, 75),

		streakRule("streak-7", "Week Warrior", TierBronze, 7),
		streakRule("streak-14", "Two Week Streak", TierSilver, 14),
		streakRule("streak-30", "Monthly Dedication", TierGold, 30),

		{
			ID:          "perfect-week",
			Name:        "Perfect Week",
			Description: "Practice every exercise you have ever played within one week",
			Icon:        "calendar-check",
			Category:    CategorySpecial,
			Tier:        TierGold,
			Kind:        MetricPerfectWeek,
			Threshold:   1,
		},
		{
			ID:          "exercise-master",
			Name:        "Exercise Master",
			Description: "Log 20 sessions on a single exercise",
			Icon:        "medal",
			Category:    CategorySpecial,
			Tier:        TierSilver,
			Kind:        MetricMaxSessionsPerExercise,
			Threshold:   20,
		},
	}

	for _, seg := range practice.SortedSegments(segments) {
		rules = append(rules, RuleDefinition{
			ID:             SegmentRuleID(seg.ID),
			Name:           fmt.Sprintf("%s Complete", displayName(seg)),
			Description:    fmt.Sprintf("Practice every exercise in %s", displayName(seg)),
			Icon:           "flag",
			Category:       CategorySegment,
			Tier:           TierGold,
			Kind:           MetricSegmentComplete,
			Threshold:      1,
			ScopeSegmentID: seg.ID,
		})
	}

	rules = append(rules,
		RuleDefinition{
			ID:          "course-complete",
			Name:        "Course Complete",
			Description: "Practice every exercise in the course",
			Icon:        "graduation-cap",
			Category:    CategorySegment,
			Tier:        TierPlatinum,
			Kind:        MetricCourseComplete,
			Threshold:   1,
		},
		RuleDefinition{
			ID:          "all-achievements",
			Name:        "Completionist",
			Description: "Unlock every other achievement",
			Icon:        "crown",
			Category:    CategorySpecial,
			Tier:        TierPlatinum,
			Kind:        MetricAllAchievementsUnlocked,
			Threshold:   1,
		},
	)
	return rules
}

// CatalogBuilder builds a catalog for the current segment list.
type CatalogBuilder func(segments []practice.Segment) (*Catalog, error)

// DefaultCatalog builds the catalog from DefaultRules. It is a CatalogBuilder.
func DefaultCatalog(segments []practice.Segment) (*Catalog, error) {
	return NewCatalog(DefaultRules(segments)...)
}

// SegmentRuleID returns the completion rule id for a segment.
func SegmentRuleID(segmentID string) string {
	return "segment-" + segmentID + "-complete"
}

func displayName(seg practice.Segment) string {
	if seg.Name != "" {
		return seg.Name
	}
	return seg.ID
}

func tempoRule(id, name, desc string, tier Tier, bpm float64) RuleDefinition {
	return RuleDefinition{
		ID: id, Name: name, Description: desc, Icon: "zap",
		Category: CategoryTempo, Tier: tier,
		Kind: MetricHighestTempo, Threshold: bpm,
	}
}

func sessionsRule(id, name string, tier Tier, n float64) RuleDefinition {
	return RuleDefinition{
		ID: id, Name: name, Description: fmt.Sprintf("Complete %g practice sessions", n), Icon: "target",
		Category: CategoryConsistency, Tier: tier,
		Kind: MetricTotalSessions, Threshold: n,
	}
}

func timeRule(id, name string, tier Tier, hours float64) RuleDefinition {
	return RuleDefinition{
		ID: id, Name: name, Description: fmt.Sprintf("Practice for %g hours in total", hours), Icon: "clock",
		Category: CategoryTime, Tier: tier,
		Kind: MetricTotalTime, Threshold: hours * hour,
	}
}

func growthRule(id, name string, tier Tier, bpm float64) RuleDefinition {
	return RuleDefinition{
		ID: id, Name: name, Description: fmt.Sprintf("Improve an exercise by %g BPM", bpm), Icon: "trending-up",
		Category: CategoryImprovement, Tier: tier,
		Kind: MetricMaxTempoGrowth, Threshold: bpm,
	}
}

func streakRule(id, name string, tier Tier, days float64) RuleDefinition {
	return RuleDefinition{
		ID: id, Name: name, Description: fmt.Sprintf("Practice %g days in a row", days), Icon: "flame",
		Category: CategoryConsistency, Tier: tier,
		Kind: MetricLongestStreakDays, Threshold: days,
	}
}
