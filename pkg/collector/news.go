package collector

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

const (
	mentionsWindow = 7 * 24 * time.Hour
	mentionsCap    = 100
)

// NewsMentions counts recent entries in a news search feed. The identifier
// is the search query; tools without one are searched by quoted name.
type NewsMentions struct {
	opts   Options
	parser *gofeed.Parser
	now    func() time.Time
}

// NewNewsMentions creates a news mention fetcher. BaseURL is the search feed
// endpoint; the query is passed as the q parameter.
func NewNewsMentions(opts Options) *NewsMentions {
	return &NewsMentions{
		opts:   opts.withDefaults("https://news.google.com/rss/search", time.Second),
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
}

func (n *NewsMentions) Source() string       { return catalog.SourceNewsMentions }
func (n *NewsMentions) Delay() time.Duration { return n.opts.Delay }

// Identifier searches for the exact tool name.
func (n *NewsMentions) Identifier(tool *catalog.Tool) string {
	if tool.Name == "" {
		return ""
	}
	return `"` + tool.Name + `"`
}

func (n *NewsMentions) Fetch(ctx context.Context, query string) (Measurement, error) {
	params := url.Values{}
	params.Set("q", query)

	resp, err := get(ctx, n.opts.Client, n.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Measurement{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Measurement{}, err
	}

	feed, err := n.parser.Parse(resp.Body)
	if err != nil {
		return Measurement{}, fmt.Errorf("parse feed: %w", err)
	}

	cutoff := n.now().Add(-mentionsWindow)
	var (
		mentions int
		latest   string
	)
	for _, item := range feed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published == nil || published.Before(cutoff) {
			continue
		}
		if mentions == 0 {
			latest = item.Title
		}
		mentions++
	}

	return Measurement{
		Score: scoring.NormalizeLog(float64(mentions), mentionsCap),
		Raw: map[string]any{
			"query":        query,
			"mentions":     mentions,
			"latest_title": latest,
		},
	}, nil
}
