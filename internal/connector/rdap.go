package connector

import (
	"context"
	"regexp"
	"time"

	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/pkg/types"
)

var domainRe = regexp.MustCompile(`^[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// RDAP resolves domain-shaped queries against the rdap.org aggregator and
// reports the registration record as one observation. Queries that are not
// domains yield zero observations without an upstream call.
type RDAP struct {
	base
	apiBase string
	host    string
}

// NewRDAP builds the RDAP connector from its manifest entry.
func NewRDAP(spec config.ConnectorSpec, fetcher *Fetcher, bc BreakerConfig) Connector {
	return &RDAP{
		base:    newBase(spec, fetcher, bc),
		apiBase: "https://rdap.org",
		host:    "rdap.org",
	}
}

// IsDomain reports whether the query text is domain-shaped.
func IsDomain(text string) bool {
	return domainRe.MatchString(text)
}

type rdapResponse struct {
	Name    string `json:"name"`
	LDHName string `json:"ldhName"`
}

// Fetch implements Connector.
func (r *RDAP) Fetch(ctx context.Context, q types.Query) ([]types.Observation, error) {
	if !IsDomain(q.Text) {
		return nil, nil
	}

	return r.guard(ctx, func() ([]types.Observation, error) {
		lookupURL := r.apiBase + "/domain/" + q.Text
		var resp rdapResponse
		if err := r.fetcher.FetchJSON(ctx, lookupURL, r.host, &resp); err != nil {
			return nil, err
		}

		summary := resp.Name
		if summary == "" {
			summary = resp.LDHName
		}
		return []types.Observation{{
			Source:    r.name,
			Title:     "RDAP data for " + q.Text,
			Summary:   summary,
			URL:       lookupURL,
			FetchedAt: time.Now().UTC(),
			Signals: map[types.SignalKind][]string{
				types.SignalDomains: {q.Text},
			},
		}}, nil
	})
}
