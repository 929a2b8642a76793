package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeToScale_Bounds(t *testing.T) {
	for _, v := range []float64{0, 0.5, 1, 2.5, 5, 7, 1e9} {
		for _, m := range []float64{0.1, 1, 5, 100} {
			got := NormalizeToScale(v, m)
			assert.GreaterOrEqual(t, got, 0.0, "v=%v m=%v", v, m)
			assert.LessOrEqual(t, got, 100.0, "v=%v m=%v", v, m)
		}
	}
}

func TestNormalizeToScale_NonPositiveMax(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeToScale(4, 0))
	assert.Equal(t, 0.0, NormalizeToScale(4, -5))
	assert.Equal(t, 0.0, NormalizeToScale(0, 0))
}

func TestNormalizeToScale_StarRating(t *testing.T) {
	assert.InDelta(t, 90.0, NormalizeToScale(4.5, 5), 1e-9)
	assert.Equal(t, 100.0, NormalizeToScale(5, 5))
	assert.Equal(t, 100.0, NormalizeToScale(6, 5))
}

func TestNormalizePriceInverse(t *testing.T) {
	assert.Equal(t, 100.0, NormalizePriceInverse(0, 50))
	assert.Equal(t, 0.0, NormalizePriceInverse(50, 50))
	assert.Equal(t, 100.0, NormalizePriceInverse(25, 0))
	assert.InDelta(t, 50.0, NormalizePriceInverse(25, 50), 1e-9)
	assert.Equal(t, 0.0, NormalizePriceInverse(80, 50))
}

func TestNormalizeRank(t *testing.T) {
	cases := map[float64]float64{
		1:    100,
		10:   80,
		100:  60,
		1000: 40,
	}
	for rank, want := range cases {
		assert.InDelta(t, want, NormalizeRank(rank), 0.01, "rank %v", rank)
	}
	assert.Equal(t, 0.0, NormalizeRank(0))
	assert.Equal(t, 0.0, NormalizeRank(1e9))
}

func TestNormalizeLog(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeLog(0, 1000))
	assert.InDelta(t, 100.0, NormalizeLog(1000, 1000), 1e-9)
	assert.Equal(t, 100.0, NormalizeLog(5000, 1000))

	low := NormalizeLog(10, 1000)
	high := NormalizeLog(100, 1000)
	assert.Less(t, low, high)
}

func TestClampAndRound(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-3))
	assert.Equal(t, 100.0, ClampScore(120))
	assert.Equal(t, 42.5, ClampScore(42.5))

	assert.Equal(t, 12.35, RoundScore(12.345678))
	assert.Equal(t, 12.0, RoundScore(12))
}
