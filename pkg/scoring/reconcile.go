package scoring

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// Saturation points for first-party counts on the log scale.
const (
	reviewCountCap = 1000
	upvoteCountCap = 1000
	visitCountCap  = 100000
)

// Signals are a tool's first-party inputs.
type Signals struct {
	RatingAvg   float64
	ReviewCount int
	UpvoteCount int
	VisitCount  int
}

// SignalsOf extracts first-party signals from a tool.
func SignalsOf(t *catalog.Tool) Signals {
	return Signals{
		RatingAvg:   t.RatingAvg,
		ReviewCount: t.ReviewCount,
		UpvoteCount: t.UpvoteCount,
		VisitCount:  t.VisitCount,
	}
}

// Scores is the reconciled result for one tool.
type Scores struct {
	Internal float64  `json:"internal_score"`
	External float64  `json:"external_score"`
	Hybrid   float64  `json:"hybrid_score"`
	Sources  []string `json:"contributing_sources,omitempty"`

	Confidence catalog.Confidence `json:"confidence_level"`
}

// InternalScore combines first-party signals. Absent or zero signals add 0.
func InternalScore(s Signals, w Weights) float64 {
	score := w.Get(KeyInternalRating)*NormalizeToScale(s.RatingAvg, 5) +
		w.Get(KeyInternalReviews)*NormalizeLog(float64(s.ReviewCount), reviewCountCap) +
		w.Get(KeyInternalUpvotes)*NormalizeLog(float64(s.UpvoteCount), upvoteCountCap) +
		w.Get(KeyInternalVisits)*NormalizeLog(float64(s.VisitCount), visitCountCap)
	return ClampScore(score)
}

// ExternalScore is the reliability-weighted mean of per-source scores.
// Sources without a positive weight do not contribute. It also returns the
// contributing source keys in sorted order.
func ExternalScore(records []catalog.ExternalScore, w Weights) (float64, []string) {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b catalog.ExternalScore) int {
		return cmp.Compare(a.Source, b.Source)
	})

	var sum, total float64
	var sources []string
	for _, r := range sorted {
		weight := w.Get(SourceWeightKey(r.Source))
		if weight <= 0 {
			continue
		}
		sum += ClampScore(r.NormalizedScore) * weight
		total += weight
		sources = append(sources, r.Source)
	}
	if total == 0 {
		return 0, nil
	}
	return ClampScore(sum / total), sources
}

// HybridScore blends internal and external scores. When no external source
// contributed, the tool relies entirely on its internal score.
func HybridScore(internal, external float64, hasExternal bool, w Weights) float64 {
	if !hasExternal {
		return ClampScore(internal)
	}
	return ClampScore(w.Get(KeyInternalWeight)*internal + w.Get(KeyExternalWeight)*external)
}

// Reconcile computes all derived scores for one tool. Identical inputs
// always produce identical output.
func Reconcile(s Signals, records []catalog.ExternalScore, w Weights) Scores {
	internal := InternalScore(s, w)
	external, sources := ExternalScore(records, w)
	hybrid := HybridScore(internal, external, len(sources) > 0, w)
	return Scores{
		Internal: RoundScore(internal),
		External: RoundScore(external),
		Hybrid:   RoundScore(hybrid),
		Sources:  sources,

		Confidence: catalog.ConfidenceFor(len(sources)),
	}
}

// Store is what a reconcile pass needs from persistence.
type Store interface {
	WeightSource
	AllTools(ctx context.Context) ([]catalog.Tool, error)
	AllExternalScores(ctx context.Context) ([]catalog.ExternalScore, error)
	UpdateToolScores(ctx context.Context, toolID string, u catalog.ScoreUpdate) error
	SnapshotsAsOf(ctx context.Context, date string) ([]catalog.Snapshot, error)
	UpsertSnapshot(ctx context.Context, s catalog.Snapshot) error
	MarkSourceRunning(ctx context.Context, source string) error
	MarkSourceComplete(ctx context.Context, source string, status catalog.RunStatus, lastError string) error
}

// Reconciler recomputes every tool's derived scores from the store.
type Reconciler struct {
	store     Store
	logger    *slog.Logger
	threshold float64
	window    time.Duration
}

// NewReconciler creates a reconciler. threshold is the minimum hybrid change
// that counts as movement; window is how far back the prior snapshot is.
func NewReconciler(s Store, threshold float64, window time.Duration, logger *slog.Logger) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultTrendThreshold
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: s, logger: logger, threshold: threshold, window: window}
}

// Run reconciles all tools as of now. A failure on one tool is recorded and
// the pass continues.
func (r *Reconciler) Run(ctx context.Context, now time.Time) catalog.RunResult {
	var result catalog.RunResult
	if r.store == nil {
		result.NotConfigured = true
		return result
	}

	if err := r.store.MarkSourceRunning(ctx, catalog.SourceReconcile); err != nil {
		r.logger.Warn("mark reconcile running", "error", err)
	}
	defer r.complete(ctx, &result)

	table := LoadTable(ctx, r.store)

	tools, err := r.store.AllTools(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list tools: %v", err))
		return result
	}
	result.Total = len(tools)

	scores, err := r.store.AllExternalScores(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list external scores: %v", err))
		return result
	}
	byTool := make(map[string][]catalog.ExternalScore)
	for _, s := range scores {
		byTool[s.ToolID] = append(byTool[s.ToolID], s)
	}

	cutoff := SnapshotDate(now.Add(-r.window))
	priors, err := r.store.SnapshotsAsOf(ctx, cutoff)
	if err != nil {
		// Trends degrade to "new" rather than blocking score updates.
		r.logger.Warn("load prior snapshots", "error", err)
	}
	prior := make(map[string]catalog.Snapshot, len(priors))
	for _, p := range priors {
		prior[p.ToolID] = p
	}

	today := SnapshotDate(now)
	for i := range tools {
		tool := &tools[i]
		sc := Reconcile(SignalsOf(tool), byTool[tool.ID], table.For(tool.CategoryID))

		current := catalog.Snapshot{
			ToolID:      tool.ID,
			Date:        today,
			HybridScore: sc.Hybrid,
			VisitCount:  tool.VisitCount,
		}
		var p *catalog.Snapshot
		if snap, ok := prior[tool.ID]; ok {
			p = &snap
		}
		tr := ComputeTrend(current, p, r.threshold)

		update := catalog.ScoreUpdate{
			InternalScore:    sc.Internal,
			ExternalScore:    sc.External,
			HybridScore:      sc.Hybrid,
			WeeklyVisitDelta: tr.VisitDelta,
			TrendDirection:   tr.Direction,
			TrendMagnitude:   tr.Magnitude,
			Confidence:       sc.Confidence,
		}
		if err := r.store.UpdateToolScores(ctx, tool.ID, update); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", tool.Name, err))
			result.Skipped++
			continue
		}
		if err := r.store.UpsertSnapshot(ctx, current); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s snapshot: %v", tool.Name, err))
		}
		result.Updated++
	}

	return result
}

func (r *Reconciler) complete(ctx context.Context, result *catalog.RunResult) {
	status := result.Status()
	if err := r.store.MarkSourceComplete(ctx, catalog.SourceReconcile, status, catalog.JoinErrors(result.Errors)); err != nil {
		r.logger.Warn("mark reconcile complete", "error", err)
	}
	r.logger.Info("reconcile finished",
		"status", status,
		"total", result.Total,
		"updated", result.Updated,
		"errors", len(result.Errors))
}
