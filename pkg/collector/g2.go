package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// G2 reads product ratings from the JSON-LD embedded in G2 product pages.
// The identifier is the product slug.
type G2 struct {
	opts Options
}

// NewG2 creates a G2 fetcher.
func NewG2(opts Options) *G2 {
	return &G2{opts: opts.withDefaults("https://www.g2.com", 3*time.Second)}
}

func (g *G2) Source() string       { return catalog.SourceG2 }
func (g *G2) Delay() time.Duration { return g.opts.Delay }

func (g *G2) Fetch(ctx context.Context, slug string) (Measurement, error) {
	header := http.Header{}
	header.Set("Accept", "text/html")
	header.Set("User-Agent", browserUserAgent)

	resp, err := get(ctx, g.opts.Client, g.opts.BaseURL+"/products/"+url.PathEscape(slug), header)
	if err != nil {
		return Measurement{}, err
	}
	defer resp.Body.Close()

	// G2 blocks bots intermittently; a block is not a failure.
	if err := checkStatus(resp, http.StatusForbidden, http.StatusTooManyRequests); err != nil {
		return Measurement{}, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Measurement{}, fmt.Errorf("parse document: %w", err)
	}

	rating, ok := extractRating(doc)
	if !ok {
		return Measurement{}, ErrNotListed
	}

	return Measurement{
		Score: scoring.NormalizeToScale(rating.Value, 5),
		Raw: map[string]any{
			"rating":       rating.Value,
			"review_count": rating.Count,
			"slug":         slug,
		},
	}, nil
}

type aggregateRating struct {
	Value float64
	Count int
}

// extractRating returns the first Product or SoftwareApplication
// aggregateRating found in the page's JSON-LD blocks.
func extractRating(doc *goquery.Document) (aggregateRating, bool) {
	var (
		found aggregateRating
		ok    bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return true
		}
		found, ok = findAggregateRating(data)
		return !ok
	})
	return found, ok
}

func findAggregateRating(data any) (aggregateRating, bool) {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if r, ok := findAggregateRating(item); ok {
				return r, true
			}
		}
	case map[string]any:
		typ, _ := v["@type"].(string)
		if typ == "Product" || typ == "SoftwareApplication" {
			if agg, isMap := v["aggregateRating"].(map[string]any); isMap {
				value := jsonNumber(agg["ratingValue"])
				if value > 0 {
					count := jsonNumber(agg["reviewCount"])
					if count == 0 {
						count = jsonNumber(agg["ratingCount"])
					}
					return aggregateRating{Value: value, Count: int(count)}, true
				}
			}
		}
		if graph, isList := v["@graph"].([]any); isList {
			return findAggregateRating(graph)
		}
	}
	return aggregateRating{}, false
}

// jsonNumber accepts both numeric and string-encoded JSON-LD values.
func jsonNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
