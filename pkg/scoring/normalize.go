package scoring

import "math"

// NormalizeToScale maps value onto 0-100 given a known maximum.
// Returns 0 when maxValue <= 0.
func NormalizeToScale(value, maxValue float64) float64 {
	if maxValue <= 0 || value <= 0 {
		return 0
	}
	return math.Min(value/maxValue*100, 100)
}

// NormalizePriceInverse scores a price where cheaper is better.
// Free tools and a missing comparison basis both score 100.
func NormalizePriceInverse(price, maxPrice float64) float64 {
	if maxPrice <= 0 || price <= 0 {
		return 100
	}
	return math.Max((1-price/maxPrice)*100, 0)
}

// NormalizeRank maps a popularity rank (1 = best, unbounded) with a
// logarithmic decay: each order of magnitude costs 20 points.
func NormalizeRank(rank float64) float64 {
	if rank <= 0 {
		return 0
	}
	return math.Max(0, 100-math.Log10(rank)*20)
}

// NormalizeLog maps an unbounded count onto 0-100 on a log scale where
// maxValue scores 100.
func NormalizeLog(value, maxValue float64) float64 {
	if value <= 0 || maxValue <= 0 {
		return 0
	}
	return NormalizeToScale(math.Log10(1+value), math.Log10(1+maxValue))
}

// ClampScore clamps value to [0, 100].
func ClampScore(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Max(0, math.Min(100, value))
}

// RoundScore rounds to two decimal places.
func RoundScore(value float64) float64 {
	return math.Round(value*100) / 100
}
