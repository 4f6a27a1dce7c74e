// Package types defines the core data structures for the scopedb entity
// resolution system: queries, connector observations, candidate clusters,
// and aggregated entity profiles.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// EntityType is the caller-supplied hint for what kind of entity a query
// refers to.
type EntityType string

// Entity type constants. These mirror the values accepted by the public API.
const (
	TypePerson  EntityType = "person"
	TypeCompany EntityType = "company"
	TypeGroup   EntityType = "group"
	TypeAsset   EntityType = "asset"
	TypeUnknown EntityType = "unknown"
)

// ValidEntityTypes is a slice of all valid entity types for validation.
var ValidEntityTypes = []EntityType{
	TypePerson,
	TypeCompany,
	TypeGroup,
	TypeAsset,
	TypeUnknown,
}

// ParseEntityType maps a raw string to an EntityType, falling back to
// TypeUnknown for anything unrecognized.
func ParseEntityType(raw string) EntityType {
	t := EntityType(strings.ToLower(strings.TrimSpace(raw)))
	for _, valid := range ValidEntityTypes {
		if t == valid {
			return t
		}
	}
	return TypeUnknown
}

// SignalKind is a typed fact category carried by observations and profiles.
type SignalKind string

// Signal kind constants.
const (
	SignalEmails    SignalKind = "emails"
	SignalDomains   SignalKind = "domains"
	SignalUsernames SignalKind = "usernames"
	SignalPhones    SignalKind = "phones"
	SignalLocations SignalKind = "locations"
)

// SignalKinds lists every signal kind in canonical order. Profile JSON and
// merge output iterate kinds in this order so results are reproducible.
var SignalKinds = []SignalKind{
	SignalEmails,
	SignalDomains,
	SignalUsernames,
	SignalPhones,
	SignalLocations,
}

// Query is one aggregation request. Immutable once created.
type Query struct {
	Text string     `json:"text"`
	Type EntityType `json:"type"`
}

// Fingerprint returns the stable cache/coalescing key for the query:
// sha256 over the normalized text and the type hint. Normalization
// lower-cases the text and collapses interior whitespace so that
// "Jane  Doe" and "jane doe" share one aggregation run.
func (q Query) Fingerprint() string {
	normalized := strings.Join(strings.Fields(strings.ToLower(q.Text)), " ")
	sum := sha256.Sum256([]byte(normalized + "\x00" + string(q.Type)))
	return hex.EncodeToString(sum[:])
}

// Observation is one connector's raw report about a possible entity.
// Immutable once produced; owned by the aggregation run that collected it.
type Observation struct {
	// Source is the reporting connector's name.
	Source string `json:"source"`

	// Title and Summary are the human-readable description of the document.
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`

	// URL is the provenance link for this observation.
	URL string `json:"url"`

	// FetchedAt records when the connector produced the observation.
	FetchedAt time.Time `json:"fetched_at"`

	// Signals holds the typed identity signals reported for this document.
	// Values are raw as reported; normalization happens at merge time.
	Signals map[SignalKind][]string `json:"signals,omitempty"`
}

// Candidate is a cluster of observations judged to describe the same
// real-world entity. Mutable only during clustering; frozen once emitted.
type Candidate struct {
	// ID is the stable cluster key: 64-hex sha256 over the sorted distinct
	// member URLs. Stable across runs for the same observation set, so an
	// id obtained from /search resolves on a later /profile request.
	ID string `json:"id"`

	// Title and URL describe the representative member document.
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`

	// Sources is the number of distinct connectors corroborating the cluster.
	Sources int `json:"sources"`

	// Observations are the cluster members in canonical order.
	Observations []Observation `json:"-"`
}

// ClusterID derives the stable candidate id from a set of member URLs.
func ClusterID(urls []string) string {
	distinct := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		distinct = append(distinct, u)
	}
	sort.Strings(distinct)
	sum := sha256.Sum256([]byte(strings.Join(distinct, "\n")))
	return hex.EncodeToString(sum[:])
}

// SourceRef is one provenance entry in a profile's sources list.
type SourceRef struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Event is a timeline event extracted from observation text.
type Event struct {
	Who    string `json:"who"`
	What   string `json:"what"`
	When   string `json:"when"`
	Where  string `json:"where"`
	Source string `json:"source"`
}

// Profile is the aggregated entity profile returned by the /profile
// endpoint. Invariants: Signals values are deduplicated and normalized per
// kind; Sources preserves first-seen canonical order and contains every
// observation that contributed at least one signal; Confidence ∈ [0,1].
type Profile struct {
	Query         string                  `json:"query"`
	Type          EntityType              `json:"type"`
	CanonicalName string                  `json:"canonical_name,omitempty"`
	Description   string                  `json:"description,omitempty"`
	Confidence    float64                 `json:"confidence"`
	Signals       map[SignalKind][]string `json:"signals"`
	Sources       []SourceRef             `json:"sources"`
	Events        []Event                 `json:"events,omitempty"`
}
