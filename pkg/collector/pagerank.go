package collector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// ErrMissingAPIKey is returned by fetchers that cannot run without a token.
var ErrMissingAPIKey = errors.New("api key not configured")

// OpenPageRank reads domain authority from the Open PageRank API. Like
// Tranco, tools without an identifier use the host of their URL.
type OpenPageRank struct {
	opts Options
}

// NewOpenPageRank creates an Open PageRank fetcher. opts.Token is the API key.
func NewOpenPageRank(opts Options) *OpenPageRank {
	return &OpenPageRank{opts: opts.withDefaults("https://openpagerank.com", time.Second)}
}

func (o *OpenPageRank) Source() string       { return catalog.SourceOpenPageRank }
func (o *OpenPageRank) Delay() time.Duration { return o.opts.Delay }

// Identifier derives the domain from the tool's URL.
func (o *OpenPageRank) Identifier(tool *catalog.Tool) string {
	return ExtractDomain(tool.URL)
}

func (o *OpenPageRank) Fetch(ctx context.Context, domain string) (Measurement, error) {
	if o.opts.Token == "" {
		return Measurement{}, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Add("domains[]", domain)
	header := http.Header{}
	header.Set("API-OPR", o.opts.Token)

	var result pageRankResponse
	endpoint := o.opts.BaseURL + "/api/v1.0/getPageRank?" + params.Encode()
	if err := getJSON(ctx, o.opts.Client, endpoint, header, &result); err != nil {
		return Measurement{}, err
	}

	for _, entry := range result.Response {
		if entry.Domain != domain {
			continue
		}
		if entry.StatusCode != http.StatusOK || entry.PageRankDecimal == nil {
			return Measurement{}, ErrNotListed
		}
		pr := jsonNumber(entry.PageRankDecimal)
		return Measurement{
			Score: scoring.NormalizeToScale(pr, 10),
			Raw: map[string]any{
				"domain":            domain,
				"page_rank_decimal": pr,
				"rank":              int(jsonNumber(entry.Rank)),
			},
		}, nil
	}
	return Measurement{}, ErrNotListed
}

// Numeric fields arrive as numbers or strings depending on the domain.
type pageRankResponse struct {
	StatusCode int `json:"status_code"`
	Response   []struct {
		StatusCode      int    `json:"status_code"`
		Domain          string `json:"domain"`
		PageRankDecimal any    `json:"page_rank_decimal"`
		Rank            any    `json:"rank"`
	} `json:"response"`
}
