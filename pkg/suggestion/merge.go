// Package suggestion promotes approved community suggestions into the tool
// catalog.
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// Defaults.
const (
	DefaultBatchSize     = 10
	DefaultVoteThreshold = 10

	maxSlugAttempts = 5
)

// Store is what merging needs from persistence. InsertTool must return an
// error wrapping catalog.ErrSlugTaken when the slug is in use.
type Store interface {
	ApproveSuggestions(ctx context.Context, minVotes int) (int, error)
	ListApprovedSuggestions(ctx context.Context, limit int) ([]catalog.Suggestion, error)
	CategoryBySlug(ctx context.Context, slug string) (*catalog.Category, error)
	InsertTool(ctx context.Context, t *catalog.Tool) error
	MarkSuggestionMerged(ctx context.Context, id, toolID string, at time.Time) error
}

// Result summarizes a merge run.
type Result struct {
	Total         int      `json:"total"`
	Merged        int      `json:"merged"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors,omitempty"`
	NotConfigured bool     `json:"not_configured,omitempty"`
}

// Merger turns approved suggestions into tools.
type Merger struct {
	store     Store
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// NewMerger creates a merger. A nil store makes every run a no-op.
func NewMerger(s Store, batchSize int, logger *slog.Logger) *Merger {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{store: s, logger: logger, batchSize: batchSize, now: time.Now}
}

// ApproveByVotes approves pending suggestions with at least threshold votes.
func (m *Merger) ApproveByVotes(ctx context.Context, threshold int) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	if threshold <= 0 {
		threshold = DefaultVoteThreshold
	}
	n, err := m.store.ApproveSuggestions(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("approve by votes: %w", err)
	}
	if n > 0 {
		m.logger.Info("suggestions approved", "count", n, "threshold", threshold)
	}
	return n, nil
}

// Run merges up to one batch of approved, unmerged suggestions. A failed
// suggestion is left untouched so the next run retries it.
func (m *Merger) Run(ctx context.Context) Result {
	var result Result
	if m.store == nil {
		result.NotConfigured = true
		return result
	}

	pending, err := m.store.ListApprovedSuggestions(ctx, m.batchSize)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list suggestions: %v", err))
		return result
	}
	result.Total = len(pending)

	for i := range pending {
		sg := &pending[i]
		if err := m.mergeOne(ctx, sg); err != nil {
			m.logger.Warn("merge suggestion failed", "suggestion", sg.ID, "tool", sg.ToolName, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sg.ToolName, err))
			result.Failed++
			continue
		}
		result.Merged++
	}

	m.logger.Info("merge finished", "total", result.Total, "merged", result.Merged, "failed", result.Failed)
	return result
}

func (m *Merger) mergeOne(ctx context.Context, sg *catalog.Suggestion) error {
	cat, err := m.store.CategoryBySlug(ctx, sg.CategorySlug)
	if err != nil {
		return fmt.Errorf("resolve category %q: %w", sg.CategorySlug, err)
	}

	base := Slugify(sg.ToolName)
	if base == "" {
		return fmt.Errorf("name %q yields an empty slug", sg.ToolName)
	}

	tool := ColdStartTool(sg, cat.ID)
	slug := base
	for attempt := 0; ; attempt++ {
		tool.ID = ""
		tool.Slug = slug
		err = m.store.InsertTool(ctx, tool)
		if err == nil {
			break
		}
		if !errors.Is(err, catalog.ErrSlugTaken) || attempt+1 >= maxSlugAttempts {
			return fmt.Errorf("insert tool: %w", err)
		}
		slug = fmt.Sprintf("%s-%d", base, m.now().UnixMilli()+int64(attempt))
	}

	if err := m.store.MarkSuggestionMerged(ctx, sg.ID, tool.ID, m.now().UTC()); err != nil {
		return fmt.Errorf("link tool %s: %w", tool.ID, err)
	}
	m.logger.Debug("suggestion merged", "suggestion", sg.ID, "tool", tool.ID, "slug", tool.Slug)
	return nil
}

// ColdStartTool builds the catalog entry for a new suggestion: zero scores,
// trend "new", Freemium pricing and no Korean support until curated.
func ColdStartTool(sg *catalog.Suggestion, categoryID string) *catalog.Tool {
	return &catalog.Tool{
		Name:           sg.ToolName,
		URL:            sg.ToolURL,
		Description:    sg.Description,
		CategoryID:     categoryID,
		Pricing:        catalog.PricingFreemium,
		SupportsKorean: false,
		TrendDirection: catalog.TrendNew,
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses runs of anything outside [a-z0-9]
// into single hyphens, trimming hyphens at either end.
func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
