package connector

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/pkg/types"
)

// GitHub looks up the query as a GitHub username and reports the public
// profile as one observation with structured signals (username, blog
// domain, public email, location). An unknown user is not an error: it
// yields zero observations.
type GitHub struct {
	base
	apiBase string
	host    string
}

// NewGitHub builds the GitHub users connector from its manifest entry.
func NewGitHub(spec config.ConnectorSpec, fetcher *Fetcher, bc BreakerConfig) Connector {
	return &GitHub{
		base:    newBase(spec, fetcher, bc),
		apiBase: "https://api.github.com",
		host:    "api.github.com",
	}
}

type githubUser struct {
	Login    string `json:"login"`
	Bio      string `json:"bio"`
	HTMLURL  string `json:"html_url"`
	Blog     string `json:"blog"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// Fetch implements Connector.
func (g *GitHub) Fetch(ctx context.Context, q types.Query) ([]types.Observation, error) {
	// Usernames have no spaces; collapse the query the way a user would
	// type a handle.
	handle := strings.ToLower(strings.Join(strings.Fields(q.Text), "-"))
	if handle == "" {
		return nil, nil
	}

	return g.guard(ctx, func() ([]types.Observation, error) {
		var user githubUser
		err := g.fetcher.FetchJSON(ctx, g.apiBase+"/users/"+url.PathEscape(handle), g.host, &user)
		if err != nil {
			var status *StatusError
			if errors.As(err, &status) && status.Code == 404 {
				return nil, nil // no such user, nothing to report
			}
			return nil, err
		}
		if user.Login == "" {
			return nil, nil
		}

		signals := map[types.SignalKind][]string{
			types.SignalUsernames: {user.Login},
		}
		if user.Email != "" {
			signals[types.SignalEmails] = []string{user.Email}
		}
		if user.Location != "" {
			signals[types.SignalLocations] = []string{user.Location}
		}
		if domain := blogDomain(user.Blog); domain != "" {
			signals[types.SignalDomains] = []string{domain}
		}

		return []types.Observation{{
			Source:    g.name,
			Title:     user.Login,
			Summary:   user.Bio,
			URL:       user.HTMLURL,
			FetchedAt: time.Now().UTC(),
			Signals:   signals,
		}}, nil
	})
}

// blogDomain extracts the hostname from a profile's blog field, which may
// be a bare domain or a full URL.
func blogDomain(blog string) string {
	blog = strings.TrimSpace(blog)
	if blog == "" {
		return ""
	}
	if !strings.Contains(blog, "://") {
		blog = "https://" + blog
	}
	parsed, err := url.Parse(blog)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
