// Package collector pulls per-tool quality signals from external sources
// and stores them as normalized external scores.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// ErrNotListed means the source has no data for a tool. The runner counts it
// as skipped, not as an error.
var ErrNotListed = errors.New("not listed")

// Measurement is one source's reading for one tool.
type Measurement struct {
	Score float64
	Raw   map[string]any
}

// Fetcher reads a single source.
type Fetcher interface {
	Source() string
	Delay() time.Duration
	Fetch(ctx context.Context, identifier string) (Measurement, error)
}

// IdentifierResolver is implemented by fetchers that can derive an
// identifier when a tool has no stored external ID for the source.
type IdentifierResolver interface {
	Identifier(t *catalog.Tool) string
}

// Store is what a collector run needs from persistence.
type Store interface {
	ListToolsWithExternalIDs(ctx context.Context) ([]catalog.Tool, error)
	UpsertExternalScore(ctx context.Context, s catalog.ExternalScore) error
	MarkSourceRunning(ctx context.Context, source string) error
	MarkSourceComplete(ctx context.Context, source string, status catalog.RunStatus, lastError string) error
}

// Result is the outcome of one collector run.
type Result = catalog.RunResult

// Runner executes the shared collection loop for any fetcher.
type Runner struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a runner. A nil store makes every run a no-op.
func NewRunner(s Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: s, logger: logger, now: time.Now}
}

// Run fetches every tool that has an identifier for f's source. Tools are
// processed one at a time with f.Delay() between them.
func (r *Runner) Run(ctx context.Context, f Fetcher) Result {
	var result Result
	if r.store == nil {
		result.NotConfigured = true
		return result
	}

	source := f.Source()
	log := r.logger.With("source", source)
	if err := r.store.MarkSourceRunning(ctx, source); err != nil {
		log.Warn("mark source running", "error", err)
	}
	defer r.complete(ctx, source, &result)

	tools, err := r.store.ListToolsWithExternalIDs(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list tools: %v", err))
		return result
	}

	targets := make([]target, 0, len(tools))
	for i := range tools {
		if id := identifierFor(f, &tools[i]); id != "" {
			targets = append(targets, target{tool: &tools[i], id: id})
		}
	}
	result.Total = len(targets)

	for _, t := range targets {
		r.collectOne(ctx, f, t, &result, log)

		if err := sleep(ctx, f.Delay()); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("run interrupted: %v", err))
			break
		}
	}

	return result
}

type target struct {
	tool *catalog.Tool
	id   string
}

func (r *Runner) collectOne(ctx context.Context, f Fetcher, t target, result *Result, log *slog.Logger) {
	m, err := f.Fetch(ctx, t.id)
	if errors.Is(err, ErrNotListed) {
		log.Debug("tool not listed", "tool", t.tool.Name, "identifier", t.id)
		result.Skipped++
		return
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.tool.Name, err))
		result.Skipped++
		return
	}

	score := catalog.ExternalScore{
		ToolID:          t.tool.ID,
		Source:          f.Source(),
		NormalizedScore: scoring.RoundScore(scoring.ClampScore(m.Score)),
		RawData:         m.Raw,
		FetchedAt:       r.now().UTC(),
	}
	if err := r.store.UpsertExternalScore(ctx, score); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", t.tool.Name, err))
		result.Skipped++
		return
	}
	result.Updated++
}

func (r *Runner) complete(ctx context.Context, source string, result *Result) {
	status := result.Status()
	if err := r.store.MarkSourceComplete(ctx, source, status, catalog.JoinErrors(result.Errors)); err != nil {
		r.logger.Warn("mark source complete", "source", source, "error", err)
	}
	r.logger.Info("collector finished",
		"source", source,
		"status", status,
		"total", result.Total,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
}

func identifierFor(f Fetcher, t *catalog.Tool) string {
	if id := t.ExternalID(f.Source()); id != "" {
		return id
	}
	if res, ok := f.(IdentifierResolver); ok {
		return res.Identifier(t)
	}
	return ""
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
