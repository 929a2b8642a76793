package recommend

import (
	"context"
	"fmt"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// Catalog is what a query needs from the store.
type Catalog interface {
	AllTools(ctx context.Context) ([]catalog.Tool, error)
	ListMappings(ctx context.Context, purpose, role string) ([]catalog.Mapping, error)
}

// Service answers recommendation queries from the store.
type Service struct {
	catalog Catalog
	engine  *Engine
}

// NewService creates a service.
func NewService(c Catalog, e *Engine) *Service {
	if e == nil {
		e = NewEngine(0, 0)
	}
	return &Service{catalog: c, engine: e}
}

// Query loads the catalog and the mappings for c, then ranks.
func (s *Service) Query(ctx context.Context, c Criteria) ([]Recommendation, error) {
	tools, err := s.catalog.AllTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tools: %w", err)
	}
	mappings, err := s.catalog.ListMappings(ctx, c.Purpose, c.Role)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	return s.engine.Recommend(tools, mappings, c), nil
}
