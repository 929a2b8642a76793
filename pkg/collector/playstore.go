package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// PlayStore reads app ratings from the JSON-LD on Google Play detail pages.
// The identifier is the package name, e.g. com.example.app.
type PlayStore struct {
	opts Options
}

// NewPlayStore creates a Play Store fetcher.
func NewPlayStore(opts Options) *PlayStore {
	return &PlayStore{opts: opts.withDefaults("https://play.google.com", 2*time.Second)}
}

func (p *PlayStore) Source() string       { return catalog.SourcePlayStore }
func (p *PlayStore) Delay() time.Duration { return p.opts.Delay }

func (p *PlayStore) Fetch(ctx context.Context, appID string) (Measurement, error) {
	params := url.Values{}
	params.Set("id", appID)
	params.Set("hl", "en")
	params.Set("gl", "US")

	header := http.Header{}
	header.Set("Accept", "text/html")
	header.Set("User-Agent", browserUserAgent)

	resp, err := get(ctx, p.opts.Client, p.opts.BaseURL+"/store/apps/details?"+params.Encode(), header)
	if err != nil {
		return Measurement{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusNotFound); err != nil {
		return Measurement{}, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Measurement{}, fmt.Errorf("parse document: %w", err)
	}

	// Apps with too few ratings publish no aggregateRating.
	rating, ok := extractRating(doc)
	if !ok {
		return Measurement{}, ErrNotListed
	}

	return Measurement{
		Score: scoring.NormalizeToScale(rating.Value, 5),
		Raw: map[string]any{
			"rating":       rating.Value,
			"review_count": rating.Count,
			"app_id":       appID,
		},
	}, nil
}
