package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/scoring"
)

// starsCap is the star count that maps to a full score.
const starsCap = 100000

// GitHub reads repository popularity. The identifier is "owner/repo".
type GitHub struct {
	opts Options
}

// NewGitHub creates a GitHub fetcher. opts.Token is optional but raises the
// API rate limit.
func NewGitHub(opts Options) *GitHub {
	return &GitHub{opts: opts.withDefaults("https://api.github.com", time.Second)}
}

func (g *GitHub) Source() string       { return catalog.SourceGitHub }
func (g *GitHub) Delay() time.Duration { return g.opts.Delay }

func (g *GitHub) Fetch(ctx context.Context, repo string) (Measurement, error) {
	repo = strings.Trim(repo, "/")
	if strings.Count(repo, "/") != 1 {
		return Measurement{}, fmt.Errorf("invalid repository %q", repo)
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	if g.opts.Token != "" {
		header.Set("Authorization", "Bearer "+g.opts.Token)
	}

	var r ghRepo
	if err := getJSON(ctx, g.opts.Client, g.opts.BaseURL+"/repos/"+repo, header, &r, http.StatusNotFound); err != nil {
		return Measurement{}, err
	}

	return Measurement{
		Score: scoring.NormalizeLog(float64(r.Stars), starsCap),
		Raw: map[string]any{
			"full_name":   r.FullName,
			"stars":       r.Stars,
			"forks":       r.Forks,
			"open_issues": r.OpenIssues,
			"language":    r.Language,
			"archived":    r.Archived,
			"pushed_at":   r.PushedAt,
		},
	}, nil
}

type ghRepo struct {
	FullName   string    `json:"full_name"`
	Stars      int       `json:"stargazers_count"`
	Forks      int       `json:"forks_count"`
	OpenIssues int       `json:"open_issues_count"`
	Language   string    `json:"language"`
	Archived   bool      `json:"archived"`
	PushedAt   time.Time `json:"pushed_at"`
}
