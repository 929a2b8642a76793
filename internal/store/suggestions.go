package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// UpsertCategory creates or renames a category. An empty ID is assigned.
func (s *SQLiteStore) UpsertCategory(ctx context.Context, c *catalog.Category) error {
	if c.ID == "" {
		c.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, slug, name) VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name
	`, c.ID, c.Slug, c.Name)
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", c.Slug, err)
	}
	// The row may predate this call with another ID.
	return s.db.GetContext(ctx, &c.ID, "SELECT id FROM categories WHERE slug = ?", c.Slug)
}

// CategoryBySlug looks up a category.
func (s *SQLiteStore) CategoryBySlug(ctx context.Context, slug string) (*catalog.Category, error) {
	var c catalog.Category
	if err := s.db.GetContext(ctx, &c, "SELECT * FROM categories WHERE slug = ?", slug); err != nil {
		return nil, fmt.Errorf("get category %s: %w", slug, notFound(err))
	}
	return &c, nil
}

// SetMapping links a purpose or role to a tool at a level.
func (s *SQLiteStore) SetMapping(ctx context.Context, m catalog.Mapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendation_mappings (scope, slug, tool_id, level)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, slug, tool_id) DO UPDATE SET level = excluded.level
	`, m.Scope, m.Slug, m.ToolID, m.Level)
	if err != nil {
		return fmt.Errorf("set mapping %s/%s: %w", m.Scope, m.Slug, err)
	}
	return nil
}

// ListMappings returns the mappings for a purpose and a role. Empty slugs
// are ignored.
func (s *SQLiteStore) ListMappings(ctx context.Context, purpose, role string) ([]catalog.Mapping, error) {
	var or sq.Or
	if purpose != "" {
		or = append(or, sq.Eq{"scope": catalog.ScopePurpose, "slug": purpose})
	}
	if role != "" {
		or = append(or, sq.Eq{"scope": catalog.ScopeRole, "slug": role})
	}
	if len(or) == 0 {
		return nil, nil
	}

	var mappings []catalog.Mapping
	b := sq.Select("*").From("recommendation_mappings").Where(or).OrderBy("scope", "tool_id")
	if err := s.selectBuilt(ctx, &mappings, b); err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return mappings, nil
}

// InsertSuggestion stores a community suggestion. An empty ID is assigned
// and an empty status defaults to pending.
func (s *SQLiteStore) InsertSuggestion(ctx context.Context, sg *catalog.Suggestion) error {
	if sg.ID == "" {
		sg.ID = newID()
	}
	if sg.Status == "" {
		sg.Status = catalog.SuggestionPending
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = s.now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tool_suggestions (id, tool_name, tool_url, description, category_slug, votes, status, created_at)
		VALUES (:id, :tool_name, :tool_url, :description, :category_slug, :votes, :status, :created_at)
	`, sg)
	if err != nil {
		return fmt.Errorf("insert suggestion %s: %w", sg.ToolName, err)
	}
	return nil
}

// GetSuggestion returns one suggestion.
func (s *SQLiteStore) GetSuggestion(ctx context.Context, id string) (*catalog.Suggestion, error) {
	var sg catalog.Suggestion
	if err := s.db.GetContext(ctx, &sg, "SELECT * FROM tool_suggestions WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get suggestion %s: %w", id, notFound(err))
	}
	return &sg, nil
}

// VoteSuggestion adds one vote to a pending suggestion.
func (s *SQLiteStore) VoteSuggestion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tool_suggestions SET votes = votes + 1 WHERE id = ? AND status = ?",
		id, catalog.SuggestionPending)
	if err != nil {
		return fmt.Errorf("vote suggestion %s: %w", id, err)
	}
	return expectOne(res, "vote suggestion "+id)
}

// ApproveSuggestions moves pending suggestions with at least minVotes votes
// to approved and returns how many moved.
func (s *SQLiteStore) ApproveSuggestions(ctx context.Context, minVotes int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tool_suggestions SET status = ? WHERE status = ? AND votes >= ?",
		catalog.SuggestionApproved, catalog.SuggestionPending, minVotes)
	if err != nil {
		return 0, fmt.Errorf("approve suggestions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("approve suggestions: %w", err)
	}
	return int(n), nil
}

// ListApprovedSuggestions returns up to limit approved, unmerged
// suggestions, oldest first.
func (s *SQLiteStore) ListApprovedSuggestions(ctx context.Context, limit int) ([]catalog.Suggestion, error) {
	b := sq.Select("*").From("tool_suggestions").
		Where(sq.Eq{"status": string(catalog.SuggestionApproved), "merged_tool_id": nil}).
		OrderBy("created_at", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	var out []catalog.Suggestion
	if err := s.selectBuilt(ctx, &out, b); err != nil {
		return nil, fmt.Errorf("list approved suggestions: %w", err)
	}
	return out, nil
}

// MarkSuggestionMerged links a suggestion to the tool created from it.
func (s *SQLiteStore) MarkSuggestionMerged(ctx context.Context, id, toolID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tool_suggestions SET status = ?, merged_tool_id = ?, merged_at = ? WHERE id = ?",
		catalog.SuggestionMerged, toolID, at, id)
	if err != nil {
		return fmt.Errorf("mark suggestion merged %s: %w", id, err)
	}
	return expectOne(res, "mark suggestion merged "+id)
}
