package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// ToolFilter narrows ListTools. Zero fields do not filter.
type ToolFilter struct {
	CategoryID string
	Pricing    []catalog.Pricing
	KoreanOnly bool
	MinHybrid  float64
	Limit      uint64
}

// InsertTool creates a tool and its external IDs. An empty ID is assigned.
// Returns ErrSlugTaken when the slug is in use.
func (s *SQLiteStore) InsertTool(ctx context.Context, t *catalog.Tool) error {
	if t.ID == "" {
		t.ID = newID()
	}
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.TrendDirection == "" {
		t.TrendDirection = catalog.TrendNew
	}
	if t.Pricing == "" {
		t.Pricing = catalog.PricingFreemium
	}
	if t.Confidence == "" {
		t.Confidence = catalog.ConfidenceNone
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tool: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO tools (id, name, slug, category_id, url, description, pricing, monthly_price,
			supports_korean, internal_score, external_score, hybrid_score, ranking_score,
			rating_avg, review_count, upvote_count, visit_count, weekly_visit_delta,
			trend_direction, trend_magnitude, confidence_level, created_at, updated_at)
		VALUES (:id, :name, :slug, :category_id, :url, :description, :pricing, :monthly_price,
			:supports_korean, :internal_score, :external_score, :hybrid_score, :ranking_score,
			:rating_avg, :review_count, :upvote_count, :visit_count, :weekly_visit_delta,
			:trend_direction, :trend_magnitude, :confidence_level, :created_at, :updated_at)
	`, t)
	if isSlugConflict(err) {
		return fmt.Errorf("insert tool %s: %w", t.Slug, ErrSlugTaken)
	}
	if err != nil {
		return fmt.Errorf("insert tool %s: %w", t.Slug, err)
	}

	for src, ident := range t.ExternalIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tool_external_ids (tool_id, source_key, identifier) VALUES (?, ?, ?)
		`, t.ID, src, ident); err != nil {
			return fmt.Errorf("insert external id %s/%s: %w", t.Slug, src, err)
		}
	}

	return tx.Commit()
}

// SetExternalID sets a tool's identifier for a source.
func (s *SQLiteStore) SetExternalID(ctx context.Context, toolID, source, identifier string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_external_ids (tool_id, source_key, identifier)
		VALUES (?, ?, ?)
		ON CONFLICT(tool_id, source_key) DO UPDATE SET identifier = excluded.identifier
	`, toolID, source, identifier)
	if err != nil {
		return fmt.Errorf("set external id %s/%s: %w", toolID, source, err)
	}
	return nil
}

// GetToolBySlug returns one tool with its external IDs.
func (s *SQLiteStore) GetToolBySlug(ctx context.Context, slug string) (*catalog.Tool, error) {
	var t catalog.Tool
	if err := s.db.GetContext(ctx, &t, "SELECT * FROM tools WHERE slug = ?", slug); err != nil {
		return nil, fmt.Errorf("get tool %s: %w", slug, notFound(err))
	}
	ids, err := s.externalIDs(ctx, sq.Eq{"tool_id": t.ID})
	if err != nil {
		return nil, err
	}
	t.ExternalIDs = ids[t.ID]
	return &t, nil
}

// AllTools returns every tool without external IDs.
func (s *SQLiteStore) AllTools(ctx context.Context) ([]catalog.Tool, error) {
	var tools []catalog.Tool
	if err := s.db.SelectContext(ctx, &tools, "SELECT * FROM tools ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return tools, nil
}

// ListToolsWithExternalIDs returns every tool with its external IDs loaded.
func (s *SQLiteStore) ListToolsWithExternalIDs(ctx context.Context) ([]catalog.Tool, error) {
	tools, err := s.AllTools(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.externalIDs(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range tools {
		tools[i].ExternalIDs = ids[tools[i].ID]
	}
	return tools, nil
}

// ListTools returns tools matching f, best hybrid score first.
func (s *SQLiteStore) ListTools(ctx context.Context, f ToolFilter) ([]catalog.Tool, error) {
	b := sq.Select("*").From("tools").OrderBy("hybrid_score DESC", "name ASC")
	if f.CategoryID != "" {
		b = b.Where(sq.Eq{"category_id": f.CategoryID})
	}
	if len(f.Pricing) > 0 {
		pricing := make([]string, len(f.Pricing))
		for i, p := range f.Pricing {
			pricing[i] = string(p)
		}
		b = b.Where(sq.Eq{"pricing": pricing})
	}
	if f.KoreanOnly {
		b = b.Where(sq.Eq{"supports_korean": true})
	}
	if f.MinHybrid > 0 {
		b = b.Where(sq.GtOrEq{"hybrid_score": f.MinHybrid})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}

	var tools []catalog.Tool
	if err := s.selectBuilt(ctx, &tools, b); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return tools, nil
}

// CountTools returns the number of tools.
func (s *SQLiteStore) CountTools(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM tools"); err != nil {
		return 0, fmt.Errorf("count tools: %w", err)
	}
	return n, nil
}

// UpdateToolScores writes the reconciler's derived fields. The ranking score
// mirrors the hybrid score.
func (s *SQLiteStore) UpdateToolScores(ctx context.Context, toolID string, u catalog.ScoreUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tools SET
			internal_score = ?, external_score = ?, hybrid_score = ?, ranking_score = ?,
			weekly_visit_delta = ?, trend_direction = ?, trend_magnitude = ?,
			confidence_level = ?, updated_at = ?
		WHERE id = ?
	`, u.InternalScore, u.ExternalScore, u.HybridScore, u.HybridScore,
		u.WeeklyVisitDelta, u.TrendDirection, u.TrendMagnitude, u.Confidence, s.now(), toolID)
	if err != nil {
		return fmt.Errorf("update scores %s: %w", toolID, err)
	}
	return expectOne(res, "update scores "+toolID)
}

// RecordRating folds one user rating into the tool's running average.
func (s *SQLiteStore) RecordRating(ctx context.Context, toolID string, rating float64) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("record rating %s: rating %.1f out of range", toolID, rating)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tools SET
			rating_avg = (rating_avg * review_count + ?) / (review_count + 1),
			review_count = review_count + 1,
			updated_at = ?
		WHERE id = ?
	`, rating, s.now(), toolID)
	if err != nil {
		return fmt.Errorf("record rating %s: %w", toolID, err)
	}
	return expectOne(res, "record rating "+toolID)
}

// RecordVisit increments a tool's visit count.
func (s *SQLiteStore) RecordVisit(ctx context.Context, toolID string) error {
	return s.increment(ctx, toolID, "visit_count")
}

// RecordUpvote increments a tool's upvote count.
func (s *SQLiteStore) RecordUpvote(ctx context.Context, toolID string) error {
	return s.increment(ctx, toolID, "upvote_count")
}

func (s *SQLiteStore) increment(ctx context.Context, toolID, column string) error {
	query, args, err := sq.Update("tools").
		Set(column, sq.Expr(column+" + 1")).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": toolID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("increment %s %s: %w", column, toolID, err)
	}
	return expectOne(res, "increment "+column+" "+toolID)
}

func (s *SQLiteStore) externalIDs(ctx context.Context, where sq.Sqlizer) (map[string]map[string]string, error) {
	b := sq.Select("tool_id", "source_key", "identifier").From("tool_external_ids")
	if where != nil {
		b = b.Where(where)
	}
	var rows []struct {
		ToolID     string `db:"tool_id"`
		Source     string `db:"source_key"`
		Identifier string `db:"identifier"`
	}
	if err := s.selectBuilt(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list external ids: %w", err)
	}

	ids := make(map[string]map[string]string)
	for _, r := range rows {
		if ids[r.ToolID] == nil {
			ids[r.ToolID] = make(map[string]string)
		}
		ids[r.ToolID][r.Source] = r.Identifier
	}
	return ids, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
