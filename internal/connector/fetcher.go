package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultMaxBytes = 1 << 20 // 1 MiB response cap
	userAgent       = "scopedb-fetcher/1.0"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Fetcher retrieves remote resources while enforcing a strict egress
// policy: https/http only, a per-call host allowlist, refusal of hosts that
// resolve to private or link-local addresses, a response size cap, and a
// content-type allowlist. It exists to keep untrusted query text from being
// turned into server-side request forgery.
type Fetcher struct {
	client       *http.Client
	maxBytes     int64
	mimePrefixes []string

	// lookup is swappable in tests.
	lookup func(ctx context.Context, host string) ([]net.IP, error)

	// allowPrivate disables the private-address guard; only tests set it,
	// to reach httptest servers on loopback.
	allowPrivate bool
}

// NewFetcher creates a fetcher with the default limits.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second, // outer safety net; callers pass tighter ctx deadlines
		},
		maxBytes:     defaultMaxBytes,
		mimePrefixes: []string{"text/", "application/json", "application/rdap+json", "application/rss+xml", "application/xml"},
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
}

// FetchJSON retrieves url (which must point at allowedHost) and decodes the
// body into v.
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL, allowedHost string, v interface{}) error {
	body, err := f.get(ctx, rawURL, allowedHost)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

// FetchText retrieves url and returns the body as a string.
func (f *Fetcher) FetchText(ctx context.Context, rawURL, allowedHost string) (string, error) {
	body, err := f.get(ctx, rawURL, allowedHost)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL, allowedHost string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("fetch: unsupported scheme %q", parsed.Scheme)
	}
	if allowedHost != "" && parsed.Hostname() != allowedHost {
		return nil, fmt.Errorf("fetch: host %q not allowlisted (want %q)", parsed.Hostname(), allowedHost)
	}
	if err := f.checkAddresses(ctx, parsed.Hostname()); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	ctype := resp.Header.Get("Content-Type")
	allowed := false
	for _, prefix := range f.mimePrefixes {
		if strings.HasPrefix(ctype, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: content type %q", ErrBadResponse, ctype)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrBadResponse, f.maxBytes)
	}
	return body, nil
}

// checkAddresses resolves host and refuses any private, loopback,
// link-local, or unspecified address. Validation only; the subsequent dial
// re-resolves, which is acceptable for the public registries we talk to.
func (f *Fetcher) checkAddresses(ctx context.Context, host string) error {
	if f.allowPrivate {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if isForbidden(ip) {
			return fmt.Errorf("fetch: refusing private address %s", ip)
		}
		return nil
	}
	ips, err := f.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("fetch: resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if isForbidden(ip) {
			return fmt.Errorf("fetch: %s resolves to private address %s", host, ip)
		}
	}
	return nil
}

func isForbidden(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
