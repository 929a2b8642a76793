// Package recommend ranks the tool catalog against a user's purpose, role,
// budget and language needs.
package recommend

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// Defaults.
const (
	DefaultPriceCeiling = 10.0
	DefaultLimit        = 8

	highRatingThreshold = 4.0
	highScoreThreshold  = 80.0
)

// Budget is the spending tier a user accepts.
type Budget string

const (
	BudgetFree  Budget = "free"
	BudgetUnder Budget = "under10"
	BudgetAny   Budget = "any"
)

// Korean is the Korean-language requirement.
type Korean string

const (
	KoreanRequired Korean = "required"
	KoreanAny      Korean = "any"
)

// Criteria is one recommendation request.
type Criteria struct {
	Purpose string `json:"purpose,omitempty"`
	Role    string `json:"role,omitempty"`
	Budget  Budget `json:"budget"`
	Korean  Korean `json:"korean"`
}

// ParseCriteria validates raw query values. Empty budget and korean mean any.
func ParseCriteria(purpose, role, budget, korean string) (Criteria, error) {
	c := Criteria{Purpose: purpose, Role: role, Budget: BudgetAny, Korean: KoreanAny}

	switch b := Budget(budget); b {
	case "":
	case BudgetFree, BudgetUnder, BudgetAny:
		c.Budget = b
	default:
		return Criteria{}, fmt.Errorf("invalid budget %q", budget)
	}

	switch k := Korean(korean); k {
	case "":
	case KoreanRequired, KoreanAny:
		c.Korean = k
	default:
		return Criteria{}, fmt.Errorf("invalid korean %q", korean)
	}

	return c, nil
}

// Recommendation is one ranked tool with its justification.
type Recommendation struct {
	Tool    catalog.Tool  `json:"tool"`
	Level   catalog.Level `json:"level,omitempty"`
	Reasons []string      `json:"reasons"`
}

// Engine ranks tools. It holds no state beyond its settings.
type Engine struct {
	PriceCeiling float64
	Limit        int
}

// NewEngine creates an engine. Non-positive values take the defaults.
func NewEngine(priceCeiling float64, limit int) *Engine {
	if priceCeiling <= 0 {
		priceCeiling = DefaultPriceCeiling
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{PriceCeiling: priceCeiling, Limit: limit}
}

// Recommend filters tools by c's hard constraints and orders the rest by
// recommendation level, hybrid score, rating and name. An empty result is
// valid.
func (e *Engine) Recommend(tools []catalog.Tool, mappings []catalog.Mapping, c Criteria) []Recommendation {
	levels := e.levels(mappings, c)

	var out []Recommendation
	for i := range tools {
		t := &tools[i]
		if !e.fitsBudget(t, c.Budget) {
			continue
		}
		if c.Korean == KoreanRequired && !t.SupportsKorean {
			continue
		}
		lv := levels[t.ID]
		out = append(out, Recommendation{
			Tool:    *t,
			Level:   lv.level,
			Reasons: e.reasons(t, lv, c),
		})
	}

	slices.SortStableFunc(out, compare)

	if e.Limit > 0 && len(out) > e.Limit {
		out = out[:e.Limit]
	}
	return out
}

func compare(a, b Recommendation) int {
	if c := cmp.Compare(b.Level.Rank(), a.Level.Rank()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Tool.HybridScore, a.Tool.HybridScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Tool.RatingAvg, a.Tool.RatingAvg); c != 0 {
		return c
	}
	return cmp.Compare(a.Tool.Name, b.Tool.Name)
}

// fitsBudget keeps tools usable at zero cost for the free tier, adds paid
// tools priced at or below the ceiling for under10, and keeps all for any.
func (e *Engine) fitsBudget(t *catalog.Tool, b Budget) bool {
	switch b {
	case BudgetFree:
		return t.IsFree()
	case BudgetUnder:
		if t.IsFree() {
			return true
		}
		return t.MonthlyPrice != nil && *t.MonthlyPrice <= e.PriceCeiling
	}
	return true
}

type match struct {
	level catalog.Level
	scope string
	slug  string
}

// levels picks each tool's strongest level across the purpose and role
// mappings that apply to c.
func (e *Engine) levels(mappings []catalog.Mapping, c Criteria) map[string]match {
	out := make(map[string]match)
	for _, m := range mappings {
		applies := (m.Scope == catalog.ScopePurpose && c.Purpose != "" && m.Slug == c.Purpose) ||
			(m.Scope == catalog.ScopeRole && c.Role != "" && m.Slug == c.Role)
		if !applies {
			continue
		}
		if cur, ok := out[m.ToolID]; ok && cur.level.Rank() >= m.Level.Rank() {
			continue
		}
		out[m.ToolID] = match{level: m.Level, scope: m.Scope, slug: m.Slug}
	}
	return out
}

func (e *Engine) reasons(t *catalog.Tool, m match, c Criteria) []string {
	reasons := []string{}

	switch m.level {
	case catalog.LevelEssential:
		reasons = append(reasons, fmt.Sprintf("essential for %s %s", m.scope, m.slug))
	case catalog.LevelRecommended:
		reasons = append(reasons, fmt.Sprintf("recommended for %s %s", m.scope, m.slug))
	}

	switch {
	case t.Pricing == catalog.PricingFree:
		reasons = append(reasons, "completely free")
	case t.Pricing == catalog.PricingFreemium && c.Budget != BudgetAny:
		reasons = append(reasons, "free tier available")
	case c.Budget == BudgetUnder && t.MonthlyPrice != nil:
		reasons = append(reasons, fmt.Sprintf("$%.2f per month", *t.MonthlyPrice))
	}

	if t.SupportsKorean {
		reasons = append(reasons, "supports Korean")
	}
	if t.RatingAvg >= highRatingThreshold {
		reasons = append(reasons, fmt.Sprintf("rated %.1f", t.RatingAvg))
	}
	if t.HybridScore >= highScoreThreshold {
		reasons = append(reasons, fmt.Sprintf("quality score %.0f", t.HybridScore))
	}
	if t.TrendDirection == catalog.TrendUp {
		reasons = append(reasons, "trending up")
	}
	return reasons
}
