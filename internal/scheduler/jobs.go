package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/toolscore/pkg/alert"
	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/collector"
	"github.com/elonfeng/toolscore/pkg/scoring"
	"github.com/elonfeng/toolscore/pkg/suggestion"
)

// ErrUnknownSource is returned by Collect for a source with no fetcher.
var ErrUnknownSource = errors.New("unknown source")

// TrendStore reads the catalog for trend alerts and remembers which tools
// were already announced for a snapshot date.
type TrendStore interface {
	AllTools(ctx context.Context) ([]catalog.Tool, error)
	AlertedTools(ctx context.Context, date string) (map[string]bool, error)
	MarkAlerted(ctx context.Context, date string, toolIDs []string) error
}

// JobsConfig wires the job set.
type JobsConfig struct {
	Runner            *collector.Runner
	Fetchers          []collector.Fetcher
	Reconciler        *scoring.Reconciler
	Merger            *suggestion.Merger
	Trends            TrendStore
	Alerts            *alert.Manager
	VoteThreshold     int
	MinTrendMagnitude int
	Logger            *slog.Logger
}

// Jobs is the set of operations the daemon, the HTTP triggers and the CLI
// share. Each job reports through alerts when it does not fully succeed.
type Jobs struct {
	runner        *collector.Runner
	fetchers      map[string]collector.Fetcher
	order         []string
	reconciler    *scoring.Reconciler
	merger        *suggestion.Merger
	trends        TrendStore
	alerts        *alert.Manager
	voteThreshold int
	minTrend      int
	logger        *slog.Logger
	now           func() time.Time
}

// NewJobs builds the job set.
func NewJobs(cfg JobsConfig) *Jobs {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	j := &Jobs{
		runner:        cfg.Runner,
		fetchers:      make(map[string]collector.Fetcher, len(cfg.Fetchers)),
		reconciler:    cfg.Reconciler,
		merger:        cfg.Merger,
		trends:        cfg.Trends,
		alerts:        cfg.Alerts,
		voteThreshold: cfg.VoteThreshold,
		minTrend:      cfg.MinTrendMagnitude,
		logger:        logger,
		now:           time.Now,
	}
	for _, f := range cfg.Fetchers {
		if _, dup := j.fetchers[f.Source()]; !dup {
			j.order = append(j.order, f.Source())
		}
		j.fetchers[f.Source()] = f
	}
	return j
}

// Sources lists the configured collector sources.
func (j *Jobs) Sources() []string {
	return j.order
}

// Collect runs the collector for one source.
func (j *Jobs) Collect(ctx context.Context, source string) (catalog.RunResult, error) {
	f, ok := j.fetchers[source]
	if !ok || j.runner == nil {
		return catalog.RunResult{}, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	res := j.runner.Run(ctx, f)
	j.notify(ctx, alert.FromRun(source, res))
	return res, nil
}

// CollectAll runs every configured collector in order.
func (j *Jobs) CollectAll(ctx context.Context) map[string]catalog.RunResult {
	out := make(map[string]catalog.RunResult, len(j.order))
	for _, src := range j.order {
		if ctx.Err() != nil {
			break
		}
		res, _ := j.Collect(ctx, src)
		out[src] = res
	}
	return out
}

// Reconcile recomputes all scores and alerts on tools trending up.
func (j *Jobs) Reconcile(ctx context.Context) catalog.RunResult {
	if j.reconciler == nil {
		return catalog.RunResult{NotConfigured: true}
	}
	res := j.reconciler.Run(ctx, j.now())
	j.notify(ctx, alert.FromRun(catalog.SourceReconcile, res))

	if res.NotConfigured || res.Updated == 0 || j.trends == nil || !j.alerts.HasNotifiers() {
		return res
	}
	if err := j.alertTrends(ctx, scoring.SnapshotDate(j.now())); err != nil {
		j.logger.Warn("trend alert", "error", err)
	}
	return res
}

// alertTrends announces rising tools once per snapshot date. Tools are
// marked only after a successful broadcast so a failed one is retried.
func (j *Jobs) alertTrends(ctx context.Context, date string) error {
	tools, err := j.trends.AllTools(ctx)
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	seen, err := j.trends.AlertedTools(ctx, date)
	if err != nil {
		return fmt.Errorf("load alerted tools: %w", err)
	}

	var fresh []catalog.Tool
	for _, t := range alert.Rising(tools, j.minTrend) {
		if !seen[t.ID] {
			fresh = append(fresh, t)
		}
	}
	n := alert.FromTrends(fresh, j.minTrend)
	if n == nil {
		return nil
	}
	if err := j.alerts.Broadcast(ctx, n); err != nil {
		return fmt.Errorf("broadcast %q: %w", n.Title, err)
	}

	ids := make([]string, len(fresh))
	for i, t := range fresh {
		ids[i] = t.ID
	}
	return j.trends.MarkAlerted(ctx, date, ids)
}

// MergeSuggestions approves suggestions over the vote threshold, then
// merges one batch of approved suggestions into the catalog.
func (j *Jobs) MergeSuggestions(ctx context.Context) (suggestion.Result, error) {
	if j.merger == nil {
		return suggestion.Result{NotConfigured: true}, nil
	}
	if _, err := j.merger.ApproveByVotes(ctx, j.voteThreshold); err != nil {
		return suggestion.Result{}, err
	}
	return j.merger.Run(ctx), nil
}

func (j *Jobs) notify(ctx context.Context, n *alert.Notification) {
	if n == nil || !j.alerts.HasNotifiers() {
		return
	}
	if err := j.alerts.Broadcast(ctx, n); err != nil {
		j.logger.Warn("alert failed", "title", n.Title, "error", err)
	}
}
