// Package seed imports an initial catalog from a YAML file: categories,
// tools with their external IDs, purpose and role mappings, and weights.
// Importing the same file twice leaves the store unchanged.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/suggestion"
)

// File is the seed document.
type File struct {
	Categories  []Category   `yaml:"categories"`
	Tools       []Tool       `yaml:"tools"`
	Mappings    []Mapping    `yaml:"mappings"`
	Weights     []Weight     `yaml:"weights"`
	Suggestions []Suggestion `yaml:"suggestions"`
}

type Category struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

type Tool struct {
	Name           string            `yaml:"name"`
	Slug           string            `yaml:"slug"`
	Category       string            `yaml:"category"`
	URL            string            `yaml:"url"`
	Description    string            `yaml:"description"`
	Pricing        string            `yaml:"pricing"`
	MonthlyPrice   *float64          `yaml:"monthly_price"`
	SupportsKorean bool              `yaml:"supports_korean"`
	ExternalIDs    map[string]string `yaml:"external_ids"`
}

// Mapping links a purpose or role to a tool by slug.
type Mapping struct {
	Scope string `yaml:"scope"`
	Slug  string `yaml:"slug"`
	Tool  string `yaml:"tool"`
	Level string `yaml:"level"`
}

// Weight overrides a scoring weight, globally or for one category slug.
type Weight struct {
	Key      string  `yaml:"key"`
	Value    float64 `yaml:"value"`
	Category string  `yaml:"category"`
}

// Suggestion is a pending community suggestion. Without an ID, one is
// derived from the name so re-imports find the same row.
type Suggestion struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Votes       int    `yaml:"votes"`
}

// Store is what an import writes to.
type Store interface {
	UpsertCategory(ctx context.Context, c *catalog.Category) error
	InsertTool(ctx context.Context, t *catalog.Tool) error
	GetToolBySlug(ctx context.Context, slug string) (*catalog.Tool, error)
	SetExternalID(ctx context.Context, toolID, source, identifier string) error
	SetMapping(ctx context.Context, m catalog.Mapping) error
	SetWeight(ctx context.Context, e catalog.WeightEntry) error
	InsertSuggestion(ctx context.Context, sg *catalog.Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*catalog.Suggestion, error)
}

// Summary counts what an import touched.
type Summary struct {
	Categories    int `json:"categories"`
	ToolsCreated  int `json:"tools_created"`
	ToolsExisting int `json:"tools_existing"`
	Mappings      int `json:"mappings"`
	Weights       int `json:"weights"`
	Suggestions   int `json:"suggestions"`
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks enums and references within the file.
func (f *File) Validate() error {
	var errs []error

	categories := make(map[string]bool)
	for _, c := range f.Categories {
		if c.Slug == "" {
			errs = append(errs, fmt.Errorf("category %q: missing slug", c.Name))
		}
		categories[c.Slug] = true
	}

	tools := make(map[string]bool)
	for i := range f.Tools {
		t := &f.Tools[i]
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tool #%d: missing name", i+1))
			continue
		}
		if t.Slug == "" {
			t.Slug = suggestion.Slugify(t.Name)
		}
		if _, err := parsePricing(t.Pricing); err != nil {
			errs = append(errs, fmt.Errorf("tool %s: %w", t.Slug, err))
		}
		if t.Category != "" && !categories[t.Category] {
			errs = append(errs, fmt.Errorf("tool %s: unknown category %q", t.Slug, t.Category))
		}
		tools[t.Slug] = true
	}

	for _, m := range f.Mappings {
		if m.Scope != catalog.ScopePurpose && m.Scope != catalog.ScopeRole {
			errs = append(errs, fmt.Errorf("mapping %s/%s: invalid scope %q", m.Slug, m.Tool, m.Scope))
		}
		if catalog.Level(m.Level).Rank() == 0 {
			errs = append(errs, fmt.Errorf("mapping %s/%s: invalid level %q", m.Slug, m.Tool, m.Level))
		}
		if !tools[m.Tool] {
			errs = append(errs, fmt.Errorf("mapping %s: unknown tool %q", m.Slug, m.Tool))
		}
	}

	for _, w := range f.Weights {
		if w.Key == "" || w.Value < 0 {
			errs = append(errs, fmt.Errorf("weight %q: key required and value must be >= 0", w.Key))
		}
		if w.Category != "" && !categories[w.Category] {
			errs = append(errs, fmt.Errorf("weight %s: unknown category %q", w.Key, w.Category))
		}
	}

	for i := range f.Suggestions {
		sg := &f.Suggestions[i]
		if strings.TrimSpace(sg.Name) == "" {
			errs = append(errs, fmt.Errorf("suggestion #%d: missing name", i+1))
			continue
		}
		if sg.Votes < 0 {
			errs = append(errs, fmt.Errorf("suggestion %s: votes must be >= 0", sg.Name))
		}
		if sg.ID == "" {
			sg.ID = suggestionID(sg.Name)
		}
	}

	return errors.Join(errs...)
}

// suggestionID derives a stable ID from the suggested tool's slug.
func suggestionID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("toolscore:suggestion:"+suggestion.Slugify(name))).String()
}

// Apply writes f to s. Existing tools keep their scores; their external IDs
// are updated from the file.
func Apply(ctx context.Context, s Store, f *File) (Summary, error) {
	var sum Summary

	categoryIDs := make(map[string]string, len(f.Categories))
	for _, c := range f.Categories {
		cat := catalog.Category{Slug: c.Slug, Name: c.Name}
		if cat.Name == "" {
			cat.Name = c.Slug
		}
		if err := s.UpsertCategory(ctx, &cat); err != nil {
			return sum, err
		}
		categoryIDs[c.Slug] = cat.ID
		sum.Categories++
	}

	toolIDs := make(map[string]string, len(f.Tools))
	for _, t := range f.Tools {
		id, created, err := applyTool(ctx, s, t, categoryIDs[t.Category])
		if err != nil {
			return sum, err
		}
		toolIDs[t.Slug] = id
		if created {
			sum.ToolsCreated++
		} else {
			sum.ToolsExisting++
		}
	}

	for _, m := range f.Mappings {
		toolID, ok := toolIDs[m.Tool]
		if !ok {
			return sum, fmt.Errorf("mapping %s: unknown tool %q", m.Slug, m.Tool)
		}
		if err := s.SetMapping(ctx, catalog.Mapping{
			Scope:  m.Scope,
			Slug:   m.Slug,
			ToolID: toolID,
			Level:  catalog.Level(m.Level),
		}); err != nil {
			return sum, err
		}
		sum.Mappings++
	}

	for _, w := range f.Weights {
		if err := s.SetWeight(ctx, catalog.WeightEntry{
			Key:      w.Key,
			Value:    w.Value,
			Category: categoryIDs[w.Category],
		}); err != nil {
			return sum, err
		}
		sum.Weights++
	}

	for _, sg := range f.Suggestions {
		created, err := applySuggestion(ctx, s, sg)
		if err != nil {
			return sum, err
		}
		if created {
			sum.Suggestions++
		}
	}

	return sum, nil
}

// applySuggestion inserts sg unless a suggestion with its ID exists, in
// which case votes and status are left to the running system.
func applySuggestion(ctx context.Context, s Store, sg Suggestion) (bool, error) {
	_, err := s.GetSuggestion(ctx, sg.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return false, err
	}
	return true, s.InsertSuggestion(ctx, &catalog.Suggestion{
		ID:           sg.ID,
		ToolName:     strings.TrimSpace(sg.Name),
		ToolURL:      sg.URL,
		Description:  sg.Description,
		CategorySlug: sg.Category,
		Votes:        sg.Votes,
	})
}

func applyTool(ctx context.Context, s Store, t Tool, categoryID string) (string, bool, error) {
	pricing, err := parsePricing(t.Pricing)
	if err != nil {
		return "", false, fmt.Errorf("tool %s: %w", t.Slug, err)
	}
	tool := catalog.Tool{
		Name:           t.Name,
		Slug:           t.Slug,
		CategoryID:     categoryID,
		URL:            t.URL,
		Description:    t.Description,
		Pricing:        pricing,
		MonthlyPrice:   t.MonthlyPrice,
		SupportsKorean: t.SupportsKorean,
		ExternalIDs:    t.ExternalIDs,
		TrendDirection: catalog.TrendNew,
	}

	err = s.InsertTool(ctx, &tool)
	if err == nil {
		return tool.ID, true, nil
	}
	if !errors.Is(err, catalog.ErrSlugTaken) {
		return "", false, err
	}

	existing, err := s.GetToolBySlug(ctx, t.Slug)
	if err != nil {
		return "", false, err
	}
	for src, ident := range t.ExternalIDs {
		if err := s.SetExternalID(ctx, existing.ID, src, ident); err != nil {
			return "", false, err
		}
	}
	return existing.ID, false, nil
}

func parsePricing(v string) (catalog.Pricing, error) {
	switch strings.ToLower(v) {
	case "", "freemium":
		return catalog.PricingFreemium, nil
	case "free":
		return catalog.PricingFree, nil
	case "paid":
		return catalog.PricingPaid, nil
	}
	return "", fmt.Errorf("invalid pricing %q", v)
}
