// Package engine implements the entity resolution core: signal extraction,
// candidate clustering, signal merging, confidence scoring, and the
// aggregation orchestrator that ties them together.
package engine

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/scopedb/pkg/types"
)

var (
	emailRe  = regexp.MustCompile(`[\w.\-]+@[\w.\-]+\.[A-Za-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
	urlRe    = regexp.MustCompile(`https?://[^\s<>"')]+`)
	handleRe = regexp.MustCompile(`(?:^|[\s(])@([A-Za-z0-9_][A-Za-z0-9_\-]*)`)

	// eventRe matches prose of the form
	// "On 12 Mar 2020, Jane Doe founded Acme Corp in Sydney".
	eventRe = regexp.MustCompile(
		`On (\d{1,2} \w+ \d{4}), ([A-Z][a-z]+(?: [A-Z][a-z]+)*) ` +
			`(founded|acquired|visited) ([A-Z][a-z]+(?: [A-Z][a-z]+)*) ` +
			`in ([A-Z][a-z]+(?: [A-Z][a-z]+)*)`)
)

// ExtractSignals scans free text for identity signals: email addresses,
// phone numbers, @handles, and domains of embedded URLs. Values are raw;
// normalization happens at merge time.
func ExtractSignals(text string) map[types.SignalKind][]string {
	out := make(map[types.SignalKind][]string)

	if emails := emailRe.FindAllString(text, -1); len(emails) > 0 {
		out[types.SignalEmails] = emails
	}
	if phones := phoneRe.FindAllString(text, -1); len(phones) > 0 {
		out[types.SignalPhones] = phones
	}
	for _, m := range handleRe.FindAllStringSubmatch(text, -1) {
		out[types.SignalUsernames] = append(out[types.SignalUsernames], m[1])
	}
	for _, raw := range urlRe.FindAllString(text, -1) {
		if parsed, err := url.Parse(raw); err == nil && parsed.Hostname() != "" {
			out[types.SignalDomains] = append(out[types.SignalDomains], parsed.Hostname())
		}
	}
	return out
}

// ExtractEvents pulls who/what/when/where timeline events out of free text.
// The when field is normalized to ISO 8601 dates.
func ExtractEvents(text, source string) []types.Event {
	var events []types.Event
	for _, m := range eventRe.FindAllStringSubmatch(text, -1) {
		when, err := time.Parse("2 Jan 2006", m[1])
		if err != nil {
			continue
		}
		events = append(events, types.Event{
			Who:    m[2],
			What:   m[3],
			Where:  m[5],
			When:   when.Format("2006-01-02"),
			Source: source,
		})
	}
	return events
}

// EnrichObservation returns a copy of obs whose Signals include everything
// extractable from its title and summary text, merged with the structured
// signals the connector reported.
func EnrichObservation(obs types.Observation) types.Observation {
	extracted := ExtractSignals(obs.Title + "\n" + obs.Summary)
	if len(extracted) == 0 {
		return obs
	}

	merged := make(map[types.SignalKind][]string, len(obs.Signals)+len(extracted))
	for kind, values := range obs.Signals {
		merged[kind] = append([]string(nil), values...)
	}
	for kind, values := range extracted {
		merged[kind] = append(merged[kind], values...)
	}
	obs.Signals = merged
	return obs
}

// canonicalOrder sorts observations by (fetchedAt, source, URL) so every
// downstream step sees the same sequence regardless of connector
// completion order.
func canonicalOrder(obs []types.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].FetchedAt.Equal(obs[j].FetchedAt) {
			return obs[i].FetchedAt.Before(obs[j].FetchedAt)
		}
		if obs[i].Source != obs[j].Source {
			return obs[i].Source < obs[j].Source
		}
		return obs[i].URL < obs[j].URL
	})
}

// identityKeys returns the normalized identity-signal keys used for
// clustering: emails, domains, usernames, phones, plus the document URL.
// Locations are deliberately excluded: shared geography is not identity.
func identityKeys(obs types.Observation) []string {
	var keys []string
	if obs.URL != "" {
		keys = append(keys, "url:"+obs.URL)
	}
	for _, kind := range []types.SignalKind{
		types.SignalEmails, types.SignalDomains, types.SignalUsernames, types.SignalPhones,
	} {
		for _, raw := range obs.Signals[kind] {
			if v := NormalizeSignal(kind, raw); v != "" {
				keys = append(keys, string(kind)+":"+v)
			}
		}
	}
	return keys
}

// NormalizeSignal canonicalizes one signal value for its kind.
func NormalizeSignal(kind types.SignalKind, raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	switch kind {
	case types.SignalEmails:
		return strings.ToLower(v)
	case types.SignalDomains:
		return normalizeDomain(v)
	case types.SignalUsernames:
		return strings.ToLower(strings.TrimPrefix(v, "@"))
	case types.SignalPhones:
		return normalizePhone(v)
	case types.SignalLocations:
		return strings.Join(strings.Fields(v), " ")
	default:
		return v
	}
}

// normalizeDomain strips scheme, path, port, and a leading www label.
func normalizeDomain(v string) string {
	v = strings.ToLower(v)
	if strings.Contains(v, "://") {
		if parsed, err := url.Parse(v); err == nil && parsed.Hostname() != "" {
			v = parsed.Hostname()
		}
	}
	if i := strings.IndexAny(v, "/?#"); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, ':'); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimPrefix(v, "www.")
	return strings.TrimSuffix(v, ".")
}

// normalizePhone reduces a phone number to E.164-style form: digits with an
// optional leading +, an international 00 prefix rewritten to +.
func normalizePhone(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	return s
}
