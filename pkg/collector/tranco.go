package collector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// Tranco reads web-popularity ranks from the Tranco list. The identifier is
// a bare domain; tools without one use the host of their URL.
type Tranco struct {
	opts Options
}

// NewTranco creates a Tranco fetcher.
func NewTranco(opts Options) *Tranco {
	return &Tranco{opts: opts.withDefaults("https://tranco-list.eu", 100*time.Millisecond)}
}

func (t *Tranco) Source() string       { return catalog.SourceTranco }
func (t *Tranco) Delay() time.Duration { return t.opts.Delay }

// Identifier derives the domain from the tool's URL.
func (t *Tranco) Identifier(tool *catalog.Tool) string {
	return ExtractDomain(tool.URL)
}

func (t *Tranco) Fetch(ctx context.Context, domain string) (Measurement, error) {
	var result trancoRanks
	endpoint := t.opts.BaseURL + "/api/ranks/domain/" + url.PathEscape(domain)
	if err := getJSON(ctx, t.opts.Client, endpoint, nil, &result); err != nil {
		return Measurement{}, err
	}
	if len(result.Ranks) == 0 || result.Ranks[0].Rank <= 0 {
		return Measurement{}, ErrNotListed
	}

	rank := result.Ranks[0].Rank
	return Measurement{
		Score: scoring.NormalizeRank(float64(rank)),
		Raw: map[string]any{
			"domain": domain,
			"rank":   rank,
		},
	}, nil
}

type trancoRanks struct {
	Domain string `json:"domain"`
	Ranks  []struct {
		Date string `json:"date"`
		Rank int    `json:"rank"`
	} `json:"ranks"`
}

// ExtractDomain returns the host of rawURL without a leading "www.", or ""
// when rawURL has no host.
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
