package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

type fakeWeightSource struct {
	entries []catalog.WeightEntry
	err     error
}

func (f *fakeWeightSource) ListWeights(context.Context) ([]catalog.WeightEntry, error) {
	return f.entries, f.err
}

func TestLoadWeights_NilSourceFallsBack(t *testing.T) {
	w := LoadWeights(context.Background(), nil)
	assert.Equal(t, DefaultWeights, w)

	// Callers may mutate the result without touching the defaults.
	w[KeyInternalWeight] = 99
	assert.Equal(t, 0.6, DefaultWeights[KeyInternalWeight])
}

func TestLoadWeights_ErrorFallsBack(t *testing.T) {
	src := &fakeWeightSource{err: errors.New("connection refused")}
	assert.Equal(t, DefaultWeights, LoadWeights(context.Background(), src))
}

func TestLoadWeights_EmptyFallsBack(t *testing.T) {
	src := &fakeWeightSource{}
	assert.Equal(t, DefaultWeights, LoadWeights(context.Background(), src))
}

func TestLoadWeights_FromSource(t *testing.T) {
	src := &fakeWeightSource{entries: []catalog.WeightEntry{
		{Key: KeyInternalWeight, Value: 0.5},
		{Key: KeyExternalWeight, Value: 0.5},
		{Key: KeyInternalRating, Value: 1, Category: "coding"},
	}}

	w := LoadWeights(context.Background(), src)
	assert.Equal(t, Weights{KeyInternalWeight: 0.5, KeyExternalWeight: 0.5}, w)

	byCat := LoadWeightsByCategory(context.Background(), src, "coding")
	assert.Equal(t, Weights{KeyInternalRating: 1}, byCat)

	missing := LoadWeightsByCategory(context.Background(), src, "music")
	assert.Equal(t, DefaultWeights, missing)
}

func TestGetWeight_MissingIsZero(t *testing.T) {
	w := Weights{"a": 2}
	assert.Equal(t, 2.0, GetWeight(w, "a"))
	assert.Equal(t, 0.0, GetWeight(w, "b"))
	assert.Equal(t, 0.0, GetWeight(nil, "b"))
}

func TestTable_CategoryOverride(t *testing.T) {
	src := &fakeWeightSource{entries: []catalog.WeightEntry{
		{Key: KeyInternalRating, Value: 0.4},
		{Key: KeyInternalVisits, Value: 0.2},
		{Key: KeyInternalRating, Value: 0.8, Category: "cat-coding"},
	}}

	table := LoadTable(context.Background(), src)

	coding := table.For("cat-coding")
	assert.Equal(t, 0.8, coding.Get(KeyInternalRating))
	assert.Equal(t, 0.2, coding.Get(KeyInternalVisits))

	other := table.For("cat-music")
	assert.Equal(t, 0.4, other.Get(KeyInternalRating))

	// Overrides never leak into the global table.
	assert.Equal(t, 0.4, table.Global.Get(KeyInternalRating))
}

func TestLoadTable_Fallback(t *testing.T) {
	table := LoadTable(context.Background(), nil)
	assert.Equal(t, DefaultWeights, table.Global)
	assert.Equal(t, DefaultWeights, table.For("anything"))
}

func TestTable_MissingDefaults(t *testing.T) {
	assert.Empty(t, LoadTable(context.Background(), nil).MissingDefaults())

	// A single stored global key replaces the whole default table.
	src := &fakeWeightSource{entries: []catalog.WeightEntry{
		{Key: KeyInternalWeight, Value: 0.5},
		{Key: KeyInternalRating, Value: 0.7, Category: "cat-coding"},
	}}
	missing := LoadTable(context.Background(), src).MissingDefaults()
	assert.Len(t, missing, len(DefaultWeights)-1)
	assert.NotContains(t, missing, KeyInternalWeight)
	assert.Contains(t, missing, KeyExternalWeight)
	assert.Contains(t, missing, KeyInternalRating)
	assert.IsNonDecreasing(t, missing)
}
