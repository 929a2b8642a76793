// Package catalog holds the data model shared by collectors, the reconciler,
// the recommendation engine and the store.
package catalog

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrSlugTaken is returned when a tool slug is already in use.
	ErrSlugTaken = errors.New("slug already taken")
)

// Pricing classifies how a tool is sold.
type Pricing string

const (
	PricingFree     Pricing = "Free"
	PricingFreemium Pricing = "Freemium"
	PricingPaid     Pricing = "Paid"
)

// TrendDirection describes score movement against the prior snapshot.
type TrendDirection string

const (
	TrendNew    TrendDirection = "new"
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Source keys for external signal providers.
const (
	SourceAppStore     = "app_store"
	SourcePlayStore    = "play_store"
	SourceTranco       = "tranco"
	SourceOpenPageRank = "open_pagerank"
	SourceTrustpilot   = "trustpilot"
	SourceG2           = "g2"
	SourceGitHub       = "github"
	SourceNewsMentions = "news_mentions"

	// SourceReconcile is the status key used by reconciliation runs.
	SourceReconcile = "reconcile"
)

// AllSources returns every external source key.
func AllSources() []string {
	return []string{
		SourceAppStore,
		SourcePlayStore,
		SourceTranco,
		SourceOpenPageRank,
		SourceTrustpilot,
		SourceG2,
		SourceGitHub,
		SourceNewsMentions,
	}
}

// Confidence grades a hybrid score by how many external sources back it.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ConfidenceFor maps a count of contributing sources to a confidence level.
func ConfidenceFor(sources int) Confidence {
	switch {
	case sources >= 3:
		return ConfidenceHigh
	case sources == 2:
		return ConfidenceMedium
	case sources == 1:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

// Tool is a catalog entry with its first-party signals and derived scores.
type Tool struct {
	ID               string            `json:"id" db:"id"`
	Name             string            `json:"name" db:"name"`
	Slug             string            `json:"slug" db:"slug"`
	CategoryID       string            `json:"category_id" db:"category_id"`
	URL              string            `json:"url" db:"url"`
	Description      string            `json:"description" db:"description"`
	Pricing          Pricing           `json:"pricing" db:"pricing"`
	MonthlyPrice     *float64          `json:"monthly_price,omitempty" db:"monthly_price"`
	SupportsKorean   bool              `json:"supports_korean" db:"supports_korean"`
	ExternalIDs      map[string]string `json:"external_ids,omitempty" db:"-"`
	InternalScore    float64           `json:"internal_score" db:"internal_score"`
	ExternalScore    float64           `json:"external_score" db:"external_score"`
	HybridScore      float64           `json:"hybrid_score" db:"hybrid_score"`
	RankingScore     float64           `json:"ranking_score" db:"ranking_score"`
	RatingAvg        float64           `json:"rating_avg" db:"rating_avg"`
	ReviewCount      int               `json:"review_count" db:"review_count"`
	UpvoteCount      int               `json:"upvote_count" db:"upvote_count"`
	VisitCount       int               `json:"visit_count" db:"visit_count"`
	WeeklyVisitDelta int               `json:"weekly_visit_delta" db:"weekly_visit_delta"`
	TrendDirection   TrendDirection    `json:"trend_direction" db:"trend_direction"`
	TrendMagnitude   int               `json:"trend_magnitude" db:"trend_magnitude"`
	Confidence       Confidence        `json:"confidence_level" db:"confidence_level"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

// ExternalID returns the tool's identifier for a source, or "".
func (t *Tool) ExternalID(source string) string {
	if t.ExternalIDs == nil {
		return ""
	}
	return t.ExternalIDs[source]
}

// IsFree reports whether the tool can be used at zero cost.
func (t *Tool) IsFree() bool {
	return t.Pricing == PricingFree || t.Pricing == PricingFreemium
}

// ExternalScore is one source's normalized opinion of a tool.
// At most one exists per (ToolID, Source).
type ExternalScore struct {
	ToolID          string         `json:"tool_id" db:"tool_id"`
	Source          string         `json:"source" db:"source_key"`
	NormalizedScore float64        `json:"normalized_score" db:"normalized_score"`
	RawData         map[string]any `json:"raw_data" db:"-"`
	FetchedAt       time.Time      `json:"fetched_at" db:"fetched_at"`
	RawJSON         string         `json:"-" db:"raw_data"`
}

// RunStatus is the outcome of a collector or reconcile run.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusError   RunStatus = "error"
)

// ClassifyRun derives the terminal status from run counts.
func ClassifyRun(updated, errCount int) RunStatus {
	switch {
	case errCount == 0:
		return StatusSuccess
	case updated > 0:
		return StatusPartial
	default:
		return StatusError
	}
}

// SourceStatus is the audit trail of the last run for a source.
type SourceStatus struct {
	Source        string     `json:"source" db:"source_key"`
	LastStatus    RunStatus  `json:"last_status" db:"last_status"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty" db:"last_fetched_at"`
	LastError     string     `json:"last_error,omitempty" db:"last_error"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// WeightEntry is one configured multiplier. An empty Category is global.
type WeightEntry struct {
	Key      string  `json:"key" db:"weight_key"`
	Value    float64 `json:"value" db:"weight_value"`
	Category string  `json:"category,omitempty" db:"category"`
}

// Snapshot is a tool's daily score record used for trend computation.
type Snapshot struct {
	ToolID      string  `json:"tool_id" db:"tool_id"`
	Date        string  `json:"snapshot_date" db:"snapshot_date"`
	HybridScore float64 `json:"hybrid_score" db:"hybrid_score"`
	VisitCount  int     `json:"visit_count" db:"visit_count"`
	Alerted     bool    `json:"alerted" db:"alerted"`
}

// Category groups tools.
type Category struct {
	ID   string `json:"id" db:"id"`
	Slug string `json:"slug" db:"slug"`
	Name string `json:"name" db:"name"`
}

// Level is how strongly a purpose or role recommends a tool.
type Level string

const (
	LevelNone        Level = ""
	LevelOptional    Level = "optional"
	LevelRecommended Level = "recommended"
	LevelEssential   Level = "essential"
)

// Rank orders levels; higher is stronger.
func (l Level) Rank() int {
	switch l {
	case LevelEssential:
		return 3
	case LevelRecommended:
		return 2
	case LevelOptional:
		return 1
	}
	return 0
}

// Mapping scopes.
const (
	ScopePurpose = "purpose"
	ScopeRole    = "role"
)

// Mapping links a purpose or role slug to a tool at some level.
type Mapping struct {
	Scope  string `json:"scope" db:"scope"`
	Slug   string `json:"slug" db:"slug"`
	ToolID string `json:"tool_id" db:"tool_id"`
	Level  Level  `json:"level" db:"level"`
}

// SuggestionStatus is the moderation state of a community suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionMerged   SuggestionStatus = "merged"
)

// Suggestion is a community-submitted tool awaiting promotion.
type Suggestion struct {
	ID           string           `json:"id" db:"id"`
	ToolName     string           `json:"tool_name" db:"tool_name"`
	ToolURL      string           `json:"tool_url" db:"tool_url"`
	Description  string           `json:"description" db:"description"`
	CategorySlug string           `json:"category_slug" db:"category_slug"`
	Votes        int              `json:"votes" db:"votes"`
	Status       SuggestionStatus `json:"status" db:"status"`
	MergedToolID *string          `json:"merged_tool_id,omitempty" db:"merged_tool_id"`
	MergedAt     *time.Time       `json:"merged_at,omitempty" db:"merged_at"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// ScoreUpdate carries the fields the reconciler owns on a tool.
type ScoreUpdate struct {
	InternalScore    float64
	ExternalScore    float64
	HybridScore      float64
	WeeklyVisitDelta int
	TrendDirection   TrendDirection
	TrendMagnitude   int
	Confidence       Confidence
}

// MaxStatusErrors bounds how many per-tool errors a run status keeps.
const MaxStatusErrors = 5

// JoinErrors joins the first MaxStatusErrors errors for SourceStatus.LastError.
func JoinErrors(errs []string) string {
	if len(errs) > MaxStatusErrors {
		errs = errs[:MaxStatusErrors]
	}
	return strings.Join(errs, "; ")
}

// RunResult summarizes a collector or reconcile run. It is advisory only.
type RunResult struct {
	Total         int      `json:"total"`
	Updated       int      `json:"updated"`
	Skipped       int      `json:"skipped"`
	Errors        []string `json:"errors,omitempty"`
	NotConfigured bool     `json:"not_configured,omitempty"`
}

// Status classifies the run.
func (r RunResult) Status() RunStatus {
	return ClassifyRun(r.Updated, len(r.Errors))
}
