package store

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// UpsertExternalScore stores one source's score for a tool, replacing any
// previous record for the same (tool, source).
func (s *SQLiteStore) UpsertExternalScore(ctx context.Context, e catalog.ExternalScore) error {
	raw := []byte("{}")
	if len(e.RawData) > 0 {
		b, err := json.Marshal(e.RawData)
		if err != nil {
			return fmt.Errorf("encode raw data %s/%s: %w", e.ToolID, e.Source, err)
		}
		raw = b
	}
	fetched := e.FetchedAt
	if fetched.IsZero() {
		fetched = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_external_scores (tool_id, source_key, normalized_score, raw_data, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tool_id, source_key) DO UPDATE SET
			normalized_score = excluded.normalized_score,
			raw_data = excluded.raw_data,
			fetched_at = excluded.fetched_at
	`, e.ToolID, e.Source, scoring.RoundScore(e.NormalizedScore), string(raw), fetched)
	if err != nil {
		return fmt.Errorf("upsert external score %s/%s: %w", e.ToolID, e.Source, err)
	}
	return nil
}

// AllExternalScores returns every stored external score.
func (s *SQLiteStore) AllExternalScores(ctx context.Context) ([]catalog.ExternalScore, error) {
	return s.externalScores(ctx, nil)
}

// ExternalScoresForTool returns a tool's external scores ordered by source.
func (s *SQLiteStore) ExternalScoresForTool(ctx context.Context, toolID string) ([]catalog.ExternalScore, error) {
	return s.externalScores(ctx, sq.Eq{"tool_id": toolID})
}

func (s *SQLiteStore) externalScores(ctx context.Context, where sq.Sqlizer) ([]catalog.ExternalScore, error) {
	b := sq.Select("*").From("tool_external_scores").OrderBy("tool_id", "source_key")
	if where != nil {
		b = b.Where(where)
	}
	var scores []catalog.ExternalScore
	if err := s.selectBuilt(ctx, &scores, b); err != nil {
		return nil, fmt.Errorf("list external scores: %w", err)
	}
	for i := range scores {
		if err := json.Unmarshal([]byte(scores[i].RawJSON), &scores[i].RawData); err != nil {
			return nil, fmt.Errorf("decode raw data %s/%s: %w", scores[i].ToolID, scores[i].Source, err)
		}
	}
	return scores, nil
}

// MarkSourceRunning records that a run for source has started.
func (s *SQLiteStore) MarkSourceRunning(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_data_sources (source_key, last_status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(source_key) DO UPDATE SET
			last_status = excluded.last_status,
			updated_at = excluded.updated_at
	`, source, catalog.StatusRunning, s.now())
	if err != nil {
		return fmt.Errorf("mark source running %s: %w", source, err)
	}
	return nil
}

// MarkSourceComplete records a run's terminal status and error summary.
func (s *SQLiteStore) MarkSourceComplete(ctx context.Context, source string, status catalog.RunStatus, lastError string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_data_sources (source_key, last_status, last_fetched_at, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_key) DO UPDATE SET
			last_status = excluded.last_status,
			last_fetched_at = excluded.last_fetched_at,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, source, status, now, lastError, now)
	if err != nil {
		return fmt.Errorf("mark source complete %s: %w", source, err)
	}
	return nil
}

// ListSourceStatuses returns the last run of each source, optionally
// limited to the given keys.
func (s *SQLiteStore) ListSourceStatuses(ctx context.Context, sources ...string) ([]catalog.SourceStatus, error) {
	b := sq.Select("*").From("external_data_sources").OrderBy("source_key")
	if len(sources) > 0 {
		b = b.Where(sq.Eq{"source_key": sources})
	}
	var statuses []catalog.SourceStatus
	if err := s.selectBuilt(ctx, &statuses, b); err != nil {
		return nil, fmt.Errorf("list source statuses: %w", err)
	}
	return statuses, nil
}

// ListWeights returns every stored weight entry.
func (s *SQLiteStore) ListWeights(ctx context.Context) ([]catalog.WeightEntry, error) {
	var entries []catalog.WeightEntry
	if err := s.db.SelectContext(ctx, &entries,
		"SELECT weight_key, weight_value, category FROM scoring_weights ORDER BY category, weight_key"); err != nil {
		return nil, fmt.Errorf("list weights: %w", err)
	}
	return entries, nil
}

// SetWeight creates or replaces a weight entry.
func (s *SQLiteStore) SetWeight(ctx context.Context, e catalog.WeightEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scoring_weights (weight_key, category, weight_value)
		VALUES (?, ?, ?)
		ON CONFLICT(weight_key, category) DO UPDATE SET weight_value = excluded.weight_value
	`, e.Key, e.Category, e.Value)
	if err != nil {
		return fmt.Errorf("set weight %s: %w", e.Key, err)
	}
	return nil
}

// UpsertSnapshot stores a tool's score for a day.
func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap catalog.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trend_snapshots (tool_id, snapshot_date, hybrid_score, visit_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tool_id, snapshot_date) DO UPDATE SET
			hybrid_score = excluded.hybrid_score,
			visit_count = excluded.visit_count
	`, snap.ToolID, snap.Date, snap.HybridScore, snap.VisitCount)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s/%s: %w", snap.ToolID, snap.Date, err)
	}
	return nil
}

// SnapshotsAsOf returns, per tool, the latest snapshot dated on or before
// date (YYYY-MM-DD).
func (s *SQLiteStore) SnapshotsAsOf(ctx context.Context, date string) ([]catalog.Snapshot, error) {
	var snaps []catalog.Snapshot
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT s.tool_id, s.snapshot_date, s.hybrid_score, s.visit_count
		FROM trend_snapshots s
		JOIN (
			SELECT tool_id, MAX(snapshot_date) AS latest
			FROM trend_snapshots
			WHERE snapshot_date <= ?
			GROUP BY tool_id
		) m ON s.tool_id = m.tool_id AND s.snapshot_date = m.latest
	`, date)
	if err != nil {
		return nil, fmt.Errorf("snapshots as of %s: %w", date, err)
	}
	return snaps, nil
}

// SnapshotHistory returns a tool's snapshots from since (YYYY-MM-DD) on,
// oldest first.
func (s *SQLiteStore) SnapshotHistory(ctx context.Context, toolID, since string) ([]catalog.Snapshot, error) {
	var snaps []catalog.Snapshot
	err := s.db.SelectContext(ctx, &snaps,
		"SELECT * FROM trend_snapshots WHERE tool_id = ? AND snapshot_date >= ? ORDER BY snapshot_date",
		toolID, since)
	if err != nil {
		return nil, fmt.Errorf("snapshot history %s: %w", toolID, err)
	}
	return snaps, nil
}

// AlertedTools returns the IDs of tools whose snapshot for date (YYYY-MM-DD)
// has already been announced.
func (s *SQLiteStore) AlertedTools(ctx context.Context, date string) (map[string]bool, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		"SELECT tool_id FROM trend_snapshots WHERE snapshot_date = ? AND alerted = 1", date)
	if err != nil {
		return nil, fmt.Errorf("alerted tools %s: %w", date, err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// MarkAlerted flags the date's snapshots of toolIDs as announced.
func (s *SQLiteStore) MarkAlerted(ctx context.Context, date string, toolIDs []string) error {
	if len(toolIDs) == 0 {
		return nil
	}
	query, args, err := sq.Update("trend_snapshots").
		Set("alerted", true).
		Where(sq.Eq{"snapshot_date": date, "tool_id": toolIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark alerted: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark alerted %s: %w", date, err)
	}
	return nil
}
