package collector

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// AppStore reads ratings from the iTunes lookup API. The identifier is the
// numeric App Store ID.
type AppStore struct {
	opts Options
}

// NewAppStore creates an App Store fetcher.
func NewAppStore(opts Options) *AppStore {
	return &AppStore{opts: opts.withDefaults("https://itunes.apple.com", 500*time.Millisecond)}
}

func (a *AppStore) Source() string       { return catalog.SourceAppStore }
func (a *AppStore) Delay() time.Duration { return a.opts.Delay }

func (a *AppStore) Fetch(ctx context.Context, id string) (Measurement, error) {
	params := url.Values{}
	params.Set("id", id)
	params.Set("country", "us")

	var result itunesLookup
	if err := getJSON(ctx, a.opts.Client, a.opts.BaseURL+"/lookup?"+params.Encode(), nil, &result); err != nil {
		return Measurement{}, err
	}
	if len(result.Results) == 0 {
		return Measurement{}, errors.New("no results from iTunes API")
	}

	app := result.Results[0]
	return Measurement{
		Score: scoring.NormalizeToScale(app.AverageUserRating, 5),
		Raw: map[string]any{
			"rating":       app.AverageUserRating,
			"review_count": app.UserRatingCount,
			"version":      app.Version,
			"genre":        app.PrimaryGenreName,
		},
	}, nil
}

type itunesLookup struct {
	ResultCount int         `json:"resultCount"`
	Results     []itunesApp `json:"results"`
}

type itunesApp struct {
	AverageUserRating float64 `json:"averageUserRating"`
	UserRatingCount   int     `json:"userRatingCount"`
	Version           string  `json:"version"`
	PrimaryGenreName  string  `json:"primaryGenreName"`
}
