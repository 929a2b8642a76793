package collector

import (
	"fmt"

	"github.com/elonfeng/toolscore/pkg/catalog"
)

// New returns the fetcher for a source key.
func New(source string, opts Options) (Fetcher, error) {
	switch source {
	case catalog.SourceAppStore:
		return NewAppStore(opts), nil
	case catalog.SourcePlayStore:
		return NewPlayStore(opts), nil
	case catalog.SourceTranco:
		return NewTranco(opts), nil
	case catalog.SourceOpenPageRank:
		return NewOpenPageRank(opts), nil
	case catalog.SourceTrustpilot:
		return NewTrustpilot(opts), nil
	case catalog.SourceG2:
		return NewG2(opts), nil
	case catalog.SourceGitHub:
		return NewGitHub(opts), nil
	case catalog.SourceNewsMentions:
		return NewNewsMentions(opts), nil
	}
	return nil, fmt.Errorf("unknown source %q", source)
}
