package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// Trustpilot reads TrustScores by business domain.
type Trustpilot struct {
	opts Options
}

// NewTrustpilot creates a Trustpilot fetcher.
func NewTrustpilot(opts Options) *Trustpilot {
	return &Trustpilot{opts: opts.withDefaults("https://www.trustpilot.com", 1500*time.Millisecond)}
}

func (t *Trustpilot) Source() string       { return catalog.SourceTrustpilot }
func (t *Trustpilot) Delay() time.Duration { return t.opts.Delay }

func (t *Trustpilot) Fetch(ctx context.Context, domain string) (Measurement, error) {
	params := url.Values{}
	params.Set("name", domain)
	endpoint := t.opts.BaseURL + "/api/categories-and-header/business-unit/find?" + params.Encode()

	header := http.Header{}
	header.Set("Accept", "application/json")

	var unit trustpilotUnit
	if err := getJSON(ctx, t.opts.Client, endpoint, header, &unit, http.StatusNotFound); err != nil {
		return Measurement{}, err
	}
	if unit.TrustScore == nil {
		return Measurement{}, ErrNotListed
	}

	return Measurement{
		Score: scoring.NormalizeToScale(*unit.TrustScore, 5),
		Raw: map[string]any{
			"rating":       *unit.TrustScore,
			"review_count": unit.NumberOfReviews,
			"domain":       domain,
		},
	}, nil
}

type trustpilotUnit struct {
	TrustScore      *float64 `json:"trustScore"`
	NumberOfReviews int      `json:"numberOfReviews"`
}
