// Package handlers provides HTTP handlers and middleware for the scopedb
// web API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/scopedb/internal/audit"
	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/internal/engine"
	"github.com/scrypster/scopedb/internal/graph"
	"github.com/scrypster/scopedb/internal/logging"
	"github.com/scrypster/scopedb/internal/metrics"
	"github.com/scrypster/scopedb/internal/pivot"
	"github.com/scrypster/scopedb/internal/storage"
	"github.com/scrypster/scopedb/pkg/types"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	orchestrator *engine.Orchestrator
	store        storage.ProfileStore
	config       *config.Config
	metrics      *metrics.Registry
	audit        *audit.Log
	pivot        *pivot.Executor
	log          *zap.Logger
}

// NewAPIHandlers creates a new APIHandlers instance. store, metrics, audit,
// and pivot may be nil for reduced deployments; the corresponding endpoints
// then answer with an empty or error body.
func NewAPIHandlers(orch *engine.Orchestrator, store storage.ProfileStore, cfg *config.Config,
	reg *metrics.Registry, auditLog *audit.Log, pivotExec *pivot.Executor, logger *zap.Logger) *APIHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandlers{
		orchestrator: orch,
		store:        store,
		config:       cfg,
		metrics:      reg,
		audit:        auditLog,
		pivot:        pivotExec,
		log:          logger,
	}
}

// parseQuery extracts the query text and entity type from request params.
func parseQuery(r *http.Request) types.Query {
	return types.Query{
		Text: r.URL.Query().Get("q"),
		Type: types.ParseEntityType(r.URL.Query().Get("type")),
	}
}

// Search handles GET /search - run (or reuse) an aggregation and return the
// candidate list. The envelope is always well-formed with count==len(docs);
// any backend failure degrades to an empty doc list, never a transport
// error, so retrying callers see a stable contract.
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r)
	refresh := r.URL.Query().Get("refresh") == "1"

	resp := SearchResponse{
		Query: q.Text,
		Type:  q.Type,
		Docs:  []SearchDoc{},
	}

	result, err := h.orchestrator.Search(r.Context(), q, refresh)
	if err != nil {
		h.log.Warn("search degraded",
			logging.String("query", q.Text),
			zap.Error(err))
		respondJSON(w, http.StatusOK, resp)
		return
	}

	for _, c := range result.Candidates {
		resp.Docs = append(resp.Docs, SearchDoc{
			ID:      c.ID,
			Title:   c.Title,
			URL:     c.URL,
			Sources: c.Sources,
		})
	}
	resp.Count = len(resp.Docs)
	respondJSON(w, http.StatusOK, resp)
}

// Profile handles GET /profile - resolve a query to a merged entity
// profile. With an id parameter the named candidate is selected; an
// ambiguous result returns a disambiguation list; no resolvable candidate
// returns a literal null body. All outcomes are 200.
func (h *APIHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r)
	id := r.URL.Query().Get("id")
	refresh := r.URL.Query().Get("refresh") == "1"

	profile, err := h.orchestrator.Profile(r.Context(), q, id, refresh)
	if err != nil {
		var ambiguous *engine.AmbiguousError
		if errors.As(err, &ambiguous) {
			resp := AmbiguousResponse{
				Query:      q.Text,
				Type:       q.Type,
				Ambiguous:  true,
				Candidates: make([]AmbiguousCandidate, 0, len(ambiguous.Candidates)),
			}
			for _, c := range ambiguous.Candidates {
				resp.Candidates = append(resp.Candidates, AmbiguousCandidate{
					ID:      c.ID,
					Title:   c.Title,
					URL:     c.URL,
					Sources: c.Sources,
				})
			}
			respondJSON(w, http.StatusOK, resp)
			return
		}

		if !errors.Is(err, engine.ErrNoCandidate) && !errors.Is(err, engine.ErrNoSources) {
			h.log.Warn("profile degraded",
				logging.String("query", q.Text),
				zap.Error(err))
		}
		respondJSON(w, http.StatusOK, nil)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// Health handles GET /health.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ListEntities handles GET /entities - list persisted profiles.
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not configured", nil)
		return
	}

	opts := storage.ListOptions{
		Page:       parseInt(r.URL.Query().Get("page"), 1),
		Limit:      parseInt(r.URL.Query().Get("limit"), 20),
		EntityType: r.URL.Query().Get("type"),
	}

	result, err := h.store.List(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list entities", err)
		return
	}

	resp := EntityListResponse{
		Entities: make([]EntitySummary, 0, len(result.Items)),
		Total:    result.Total,
		Page:     result.Page,
		HasMore:  result.HasMore,
	}
	for _, p := range result.Items {
		resp.Entities = append(resp.Entities, EntitySummary{
			ID:            p.ID,
			Query:         p.Query,
			EntityType:    p.EntityType,
			CanonicalName: p.CanonicalName,
			Confidence:    p.Confidence,
			UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetEntity handles GET /entities/{id} - fetch one persisted profile with
// its full signal and source payload.
func (h *APIHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not configured", nil)
		return
	}

	id := r.PathValue("id")
	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "entity not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get entity", err)
		return
	}

	respondJSON(w, http.StatusOK, storedToBody(p))
}

// Export handles GET /export - dump every persisted profile as one JSON
// document for offline analysis.
func (h *APIHandlers) Export(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not configured", nil)
		return
	}

	var all []map[string]interface{}
	page := 1
	for {
		result, err := h.store.List(r.Context(), storage.ListOptions{Page: page, Limit: 100})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to export entities", err)
			return
		}
		for _, p := range result.Items {
			all = append(all, storedToBody(p))
		}
		if !result.HasMore {
			break
		}
		page++
	}

	w.Header().Set("Content-Disposition", "attachment; filename=scopedb-export.json")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"exported_at": time.Now().UTC().Format(time.RFC3339),
		"count":       len(all),
		"entities":    all,
	})
}

// Pivot handles GET /pivot - execute the pivot graph from a starting
// (type, value) pair.
func (h *APIHandlers) Pivot(w http.ResponseWriter, r *http.Request) {
	if h.pivot == nil {
		respondError(w, http.StatusServiceUnavailable, "pivot not configured", nil)
		return
	}

	startType := r.URL.Query().Get("type")
	value := r.URL.Query().Get("value")
	if startType == "" || value == "" {
		respondError(w, http.StatusBadRequest, "type and value are required", nil)
		return
	}
	depth := parseInt(r.URL.Query().Get("depth"), 3)

	if h.audit != nil {
		h.audit.Append("pivot", value, startType)
	}
	results := h.pivot.Execute(startType, value, depth)
	if results == nil {
		results = []pivot.Result{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"start_type": startType,
		"value":      value,
		"depth":      depth,
		"results":    results,
	})
}

// Graph handles GET /graph - relate a query's candidates through shared
// normalized signal values and report degree centrality and components.
func (h *APIHandlers) Graph(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r)

	result, err := h.orchestrator.Search(r.Context(), q, false)
	if err != nil {
		respondJSON(w, http.StatusOK, GraphResponse{
			Nodes:      []string{},
			Components: [][]string{},
			Centrality: map[string]float64{},
		})
		return
	}

	g := graph.New(nil)
	valueOwner := make(map[string]string) // normalized signal value -> first candidate id
	for _, c := range result.Candidates {
		seen := make(map[string]bool)
		for _, obs := range c.Observations {
			for kind, values := range obs.Signals {
				if kind == types.SignalLocations {
					continue
				}
				for _, raw := range values {
					v := engine.NormalizeSignal(kind, raw)
					if v == "" {
						continue
					}
					key := string(kind) + ":" + v
					if seen[key] {
						continue
					}
					seen[key] = true
					if owner, ok := valueOwner[key]; ok && owner != c.ID {
						g.AddEdge(owner, c.ID)
					} else if !ok {
						valueOwner[key] = c.ID
					}
				}
			}
		}
	}

	components := g.Components()
	if components == nil {
		components = [][]string{}
	}
	respondJSON(w, http.StatusOK, GraphResponse{
		Nodes:      g.Nodes(),
		Components: components,
		Centrality: g.Centrality(),
	})
}

// Metrics handles GET /metrics - export the connector health snapshot.
func (h *APIHandlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		respondError(w, http.StatusServiceUnavailable, "metrics not configured", nil)
		return
	}
	respondJSON(w, http.StatusOK, h.metrics.Export())
}

// AuditRoot handles GET /audit/root?day=YYYY-MM-DD - return the Merkle root
// over the day's audit entries for tamper-evidence checks.
func (h *APIHandlers) AuditRoot(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "audit not configured", nil)
		return
	}

	day := r.URL.Query().Get("day")
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		respondError(w, http.StatusBadRequest, "day must be YYYY-MM-DD", err)
		return
	}

	respondJSON(w, http.StatusOK, AuditRootResponse{
		Day:    day,
		Root:   h.audit.Root(day),
		Events: h.audit.Len(day),
	})
}

// storedToBody converts a stored profile record into its response form,
// re-inflating the JSON columns.
func storedToBody(p *storage.StoredProfile) map[string]interface{} {
	body := map[string]interface{}{
		"id":             p.ID,
		"query":          p.Query,
		"type":           p.EntityType,
		"canonical_name": p.CanonicalName,
		"description":    p.Description,
		"confidence":     p.Confidence,
		"created_at":     p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     p.UpdatedAt.UTC().Format(time.RFC3339),
	}

	var signals map[string][]string
	if len(p.SignalsJSON) > 0 && json.Unmarshal(p.SignalsJSON, &signals) == nil {
		body["signals"] = signals
	}
	var sources []types.SourceRef
	if len(p.SourcesJSON) > 0 && json.Unmarshal(p.SourcesJSON, &sources) == nil {
		body["sources"] = sources
	}
	var events []types.Event
	if len(p.EventsJSON) > 0 && json.Unmarshal(p.EventsJSON, &events) == nil {
		body["events"] = events
	}
	return body
}

// parseInt parses s as an int, falling back to defaultValue.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing more to do than note it.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
