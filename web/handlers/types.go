package handlers

import (
	"github.com/scrypster/scopedb/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SearchDoc is one candidate hit in a search response. Sources is the
// number of distinct connectors corroborating the cluster.
type SearchDoc struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Sources int    `json:"sources"`
}

// SearchResponse is the response format for GET /search. The envelope is
// always well-formed: Count equals len(Docs), and a degraded backend yields
// an empty doc list rather than a transport error.
type SearchResponse struct {
	Query string           `json:"query"`
	Type  types.EntityType `json:"type"`
	Count int              `json:"count"`
	Docs  []SearchDoc      `json:"docs"`
}

// AmbiguousCandidate is one entry in a disambiguation list.
type AmbiguousCandidate struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Sources int    `json:"sources"`
}

// AmbiguousResponse is returned by GET /profile when several clusters are
// equally plausible; the caller retries with one of the listed ids.
type AmbiguousResponse struct {
	Query      string               `json:"query"`
	Type       types.EntityType     `json:"type"`
	Ambiguous  bool                 `json:"ambiguous"`
	Candidates []AmbiguousCandidate `json:"candidates"`
}

// EntityListResponse is the response format for GET /entities.
type EntityListResponse struct {
	Entities []EntitySummary `json:"entities"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	HasMore  bool            `json:"has_more"`
}

// EntitySummary is one stored profile in a listing.
type EntitySummary struct {
	ID            string  `json:"id"`
	Query         string  `json:"query"`
	EntityType    string  `json:"entity_type"`
	CanonicalName string  `json:"canonical_name"`
	Confidence    float64 `json:"confidence"`
	UpdatedAt     string  `json:"updated_at"`
}

// GraphResponse is the response format for GET /graph: candidates related
// through shared signal values.
type GraphResponse struct {
	Nodes      []string           `json:"nodes"`
	Components [][]string         `json:"components"`
	Centrality map[string]float64 `json:"centrality"`
}

// HealthResponse is the response format for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AuditRootResponse is the response format for GET /audit/root.
type AuditRootResponse struct {
	Day    string `json:"day"`
	Root   string `json:"root"`
	Events int    `json:"events"`
}
