package scoring

import (
	"math"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// DefaultTrendThreshold is the smallest hybrid change, in points, that is
// reported as movement.
const DefaultTrendThreshold = 1.0

// Trend is a tool's movement against its prior snapshot.
type Trend struct {
	Direction  catalog.TrendDirection `json:"trend_direction"`
	Magnitude  int                    `json:"trend_magnitude"`
	VisitDelta int                    `json:"weekly_visit_delta"`
}

// ComputeTrend compares current against prior. A nil prior means the tool
// is new. Movement below threshold is stable; otherwise the magnitude is the
// rounded point change, never less than the threshold.
func ComputeTrend(current catalog.Snapshot, prior *catalog.Snapshot, threshold float64) Trend {
	if prior == nil {
		return Trend{Direction: catalog.TrendNew}
	}

	tr := Trend{VisitDelta: current.VisitCount - prior.VisitCount}
	delta := RoundScore(current.HybridScore - prior.HybridScore)
	abs := math.Abs(delta)

	switch {
	case abs < threshold:
		tr.Direction = catalog.TrendStable
		return tr
	case delta > 0:
		tr.Direction = catalog.TrendUp
	default:
		tr.Direction = catalog.TrendDown
	}

	tr.Magnitude = int(math.Max(math.Round(abs), math.Ceil(threshold)))
	return tr
}

// SnapshotDate formats t as the UTC calendar day used to key snapshots.
func SnapshotDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
