package connector

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/pkg/types"
)

const wikipediaSearchLimit = 5

var htmlTagRe = regexp.MustCompile(`<.*?>`)

// Wikipedia queries the MediaWiki search API and reports one observation
// per search hit. Snippets are stripped of markup; signal extraction from
// the text happens downstream in the engine.
type Wikipedia struct {
	base
	apiBase string // overridable in tests
	host    string
}

// NewWikipedia builds the Wikipedia connector from its manifest entry.
func NewWikipedia(spec config.ConnectorSpec, fetcher *Fetcher, bc BreakerConfig) Connector {
	return &Wikipedia{
		base:    newBase(spec, fetcher, bc),
		apiBase: "https://en.wikipedia.org/w/api.php",
		host:    "en.wikipedia.org",
	}
}

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

// Fetch implements Connector.
func (w *Wikipedia) Fetch(ctx context.Context, q types.Query) ([]types.Observation, error) {
	return w.guard(ctx, func() ([]types.Observation, error) {
		params := url.Values{}
		params.Set("action", "query")
		params.Set("list", "search")
		params.Set("format", "json")
		params.Set("srsearch", q.Text)
		params.Set("srlimit", strconv.Itoa(wikipediaSearchLimit))

		var resp wikipediaResponse
		if err := w.fetcher.FetchJSON(ctx, w.apiBase+"?"+params.Encode(), w.host, &resp); err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		obs := make([]types.Observation, 0, len(resp.Query.Search))
		for _, item := range resp.Query.Search {
			snippet := htmlTagRe.ReplaceAllString(item.Snippet, "")
			pageURL := "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(item.Title, " ", "_"))
			obs = append(obs, types.Observation{
				Source:    w.name,
				Title:     item.Title,
				Summary:   snippet,
				URL:       pageURL,
				FetchedAt: now,
			})
		}
		return obs, nil
	})
}
