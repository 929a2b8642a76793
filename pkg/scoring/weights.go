package scoring

import (
	"context"
	"maps"
	"slices"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// Weight keys.
const (
	KeyInternalWeight = "internal_weight"
	KeyExternalWeight = "external_weight"

	KeyInternalRating  = "internal_rating"
	KeyInternalReviews = "internal_reviews"
	KeyInternalUpvotes = "internal_upvotes"
	KeyInternalVisits  = "internal_visits"

	sourceKeyPrefix = "source_"
)

// SourceWeightKey returns the reliability weight key for a source.
func SourceWeightKey(source string) string {
	return sourceKeyPrefix + source
}

// Weights maps weight keys to multipliers.
type Weights map[string]float64

// Get returns the weight for key, or 0 when absent.
func (w Weights) Get(key string) float64 {
	return w[key]
}

// GetWeight returns w[key], or 0 when absent. A missing weight means the
// signal contributes nothing.
func GetWeight(w Weights, key string) float64 {
	return w.Get(key)
}

// DefaultWeights is the built-in table used when no weights are stored.
var DefaultWeights = Weights{
	KeyInternalWeight: 0.6,
	KeyExternalWeight: 0.4,

	KeyInternalRating:  0.4,
	KeyInternalReviews: 0.2,
	KeyInternalUpvotes: 0.2,
	KeyInternalVisits:  0.2,

	SourceWeightKey(catalog.SourceAppStore):     1.0,
	SourceWeightKey(catalog.SourcePlayStore):    1.0,
	SourceWeightKey(catalog.SourceG2):           1.0,
	SourceWeightKey(catalog.SourceTrustpilot):   0.9,
	SourceWeightKey(catalog.SourceTranco):       0.7,
	SourceWeightKey(catalog.SourceOpenPageRank): 0.7,
	SourceWeightKey(catalog.SourceGitHub):       0.6,
	SourceWeightKey(catalog.SourceNewsMentions): 0.5,
}

// WeightSource reads stored weight entries.
type WeightSource interface {
	ListWeights(ctx context.Context) ([]catalog.WeightEntry, error)
}

// LoadWeights returns the global weight table from src. It falls back to
// DefaultWeights when src is nil, unreachable, or has no global entries.
func LoadWeights(ctx context.Context, src WeightSource) Weights {
	return loadFiltered(ctx, src, "")
}

// LoadWeightsByCategory returns only the entries stored for category, with
// the same fallback as LoadWeights.
func LoadWeightsByCategory(ctx context.Context, src WeightSource, category string) Weights {
	return loadFiltered(ctx, src, category)
}

func loadFiltered(ctx context.Context, src WeightSource, category string) Weights {
	entries := listEntries(ctx, src)
	w := make(Weights)
	for _, e := range entries {
		if e.Category == category {
			w[e.Key] = e.Value
		}
	}
	if len(w) == 0 {
		return maps.Clone(DefaultWeights)
	}
	return w
}

func listEntries(ctx context.Context, src WeightSource) []catalog.WeightEntry {
	if src == nil {
		return nil
	}
	entries, err := src.ListWeights(ctx)
	if err != nil {
		return nil
	}
	return entries
}

// Table is a global weight table plus per-category overrides.
type Table struct {
	Global     Weights
	Categories map[string]Weights
}

// LoadTable reads all entries once and splits them by category.
func LoadTable(ctx context.Context, src WeightSource) Table {
	t := Table{Global: make(Weights), Categories: make(map[string]Weights)}
	for _, e := range listEntries(ctx, src) {
		if e.Category == "" {
			t.Global[e.Key] = e.Value
			continue
		}
		if t.Categories[e.Category] == nil {
			t.Categories[e.Category] = make(Weights)
		}
		t.Categories[e.Category][e.Key] = e.Value
	}
	if len(t.Global) == 0 {
		t.Global = maps.Clone(DefaultWeights)
	}
	return t
}

// For returns the weights that apply to a tool category: category entries
// override global ones.
func (t Table) For(category string) Weights {
	override := t.Categories[category]
	if len(override) == 0 {
		return t.Global
	}
	w := maps.Clone(t.Global)
	if w == nil {
		w = make(Weights)
	}
	maps.Copy(w, override)
	return w
}

// MissingDefaults lists the built-in weight keys absent from the global
// table, sorted. Each one contributes nothing to any score.
func (t Table) MissingDefaults() []string {
	var missing []string
	for key := range DefaultWeights {
		if _, ok := t.Global[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}
