package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/scopedb/internal/audit"
	"github.com/scrypster/scopedb/internal/cache"
	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/internal/connector"
	"github.com/scrypster/scopedb/internal/engine"
	"github.com/scrypster/scopedb/internal/metrics"
	"github.com/scrypster/scopedb/internal/pivot"
	"github.com/scrypster/scopedb/internal/storage/sqlite"
	"github.com/scrypster/scopedb/pkg/types"
)

// scriptedConnector returns canned observations or a canned error.
type scriptedConnector struct {
	name   string
	weight float64
	obs    []types.Observation
	err    error
}

func (s *scriptedConnector) Name() string                 { return s.name }
func (s *scriptedConnector) TrustWeight() float64         { return s.weight }
func (s *scriptedConnector) LatencyBudget() time.Duration { return time.Second }

func (s *scriptedConnector) Fetch(ctx context.Context, q types.Query) ([]types.Observation, error) {
	return s.obs, s.err
}

func scriptedObservation(source, url string, minute int, signals map[types.SignalKind][]string) types.Observation {
	return types.Observation{
		Source:    source,
		Title:     "Jane Doe",
		Summary:   "Jane Doe is a researcher.",
		URL:       url,
		FetchedAt: time.Date(2026, 1, 2, 3, minute, 0, 0, time.UTC),
		Signals:   signals,
	}
}

// newTestHandlers wires real components (orchestrator, in-memory SQLite
// store, metrics, audit, pivot) over scripted connectors.
func newTestHandlers(t *testing.T, conns ...*scriptedConnector) *APIHandlers {
	t.Helper()

	registry := connector.NewRegistry(nil, connector.BreakerConfig{})
	manifest := &config.Manifest{}
	for _, c := range conns {
		c := c
		registry.RegisterFactory(c.name, func(spec config.ConnectorSpec, _ *connector.Fetcher, _ connector.BreakerConfig) connector.Connector {
			return c
		})
		manifest.Connectors = append(manifest.Connectors, config.ConnectorSpec{
			Name:        c.name,
			TrustWeight: c.weight,
			Enabled:     true,
		})
	}
	require.NoError(t, registry.Apply(manifest))

	store, err := sqlite.NewProfileStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metricsReg := metrics.NewRegistry()
	auditLog := audit.NewLog()

	orch := engine.NewOrchestrator(engine.Options{
		Registry:    registry,
		Cache:       cache.New[*engine.RunResult](16, time.Minute, nil),
		Metrics:     metricsReg,
		Store:       store,
		Audit:       auditLog,
		RunDeadline: 5 * time.Second,
	})

	cfg := &config.Config{}
	cfg.Security.SecurityMode = "development"

	return NewAPIHandlers(orch, store, cfg, metricsReg, auditLog,
		pivot.NewExecutor(pivot.DefaultGraph()), nil)
}

func doGET(t *testing.T, handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestSearchWellFormedEnvelope(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.8, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0,
				map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}),
		}},
		&scriptedConnector{name: "beta", weight: 0.5, obs: []types.Observation{
			scriptedObservation("beta", "https://example.com/b", 1,
				map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}),
		}},
	)

	w := doGET(t, h.Search, "/search?q=jane+doe&type=person")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "jane doe", resp.Query)
	assert.Equal(t, types.TypePerson, resp.Type)
	assert.Equal(t, resp.Count, len(resp.Docs))
	require.Len(t, resp.Docs, 1)
	assert.Len(t, resp.Docs[0].ID, 64)
	assert.Equal(t, "Jane Doe", resp.Docs[0].Title)
	assert.Equal(t, 2, resp.Docs[0].Sources)
}

func TestSearchDegradesOnTotalFailure(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.8, err: context.DeadlineExceeded},
		&scriptedConnector{name: "beta", weight: 0.5, err: errors.New("boom")},
	)

	w := doGET(t, h.Search, "/search?q=jane+doe&type=person")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Docs)
	assert.Empty(t, resp.Docs)
}

func TestSearchDegradesWithNoConnectors(t *testing.T) {
	h := newTestHandlers(t)

	w := doGET(t, h.Search, "/search?q=anyone")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Docs)
}

func TestProfileResponseShape(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.9, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0,
				map[types.SignalKind][]string{types.SignalEmails: {"Jane@Example.com"}}),
		}},
		&scriptedConnector{name: "beta", weight: 0.5, obs: []types.Observation{
			scriptedObservation("beta", "https://example.com/b", 1,
				map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}),
		}},
	)

	w := doGET(t, h.Profile, "/profile?q=jane+doe&type=person")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "jane doe", body["query"])
	assert.Equal(t, "person", body["type"])
	assert.Equal(t, "Jane Doe", body["canonical_name"])
	assert.InDelta(t, 0.95, body["confidence"], 1e-9)

	signals := body["signals"].(map[string]interface{})
	emails := signals["emails"].([]interface{})
	assert.Equal(t, []interface{}{"jane@example.com"}, emails)

	sources := body["sources"].([]interface{})
	require.Len(t, sources, 2)
	first := sources[0].(map[string]interface{})
	assert.Contains(t, first, "url")
	assert.Contains(t, first, "fetched_at")
}

func TestProfileNullWhenNoCandidate(t *testing.T) {
	h := newTestHandlers(t, &scriptedConnector{name: "alpha", weight: 0.8})

	w := doGET(t, h.Profile, "/profile?q=nobody&type=person")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", strings.TrimSpace(w.Body.String()))
}

func TestProfileAmbiguousEnvelope(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.8, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0, nil),
		}},
		&scriptedConnector{name: "beta", weight: 0.6, obs: []types.Observation{
			scriptedObservation("beta", "https://example.com/b", 1, nil),
		}},
	)

	w := doGET(t, h.Profile, "/profile?q=jane+doe&type=person")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp AmbiguousResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Ambiguous)
	require.Len(t, resp.Candidates, 2)

	// Picking one of the offered ids resolves.
	w = doGET(t, h.Profile, "/profile?q=jane+doe&type=person&id="+resp.Candidates[0].ID)
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Jane Doe", body["canonical_name"])
}

func TestEntitiesListAndGet(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.9, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0,
				map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}),
		}},
	)

	// Resolving a profile persists it.
	w := doGET(t, h.Profile, "/profile?q=jane+doe&type=person")
	require.Equal(t, http.StatusOK, w.Code)

	w = doGET(t, h.ListEntities, "/entities")
	assert.Equal(t, http.StatusOK, w.Code)
	var list EntityListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Jane Doe", list.Entities[0].CanonicalName)
	assert.Equal(t, "person", list.Entities[0].EntityType)

	req := httptest.NewRequest(http.MethodGet, "/entities/"+list.Entities[0].ID, nil)
	req.SetPathValue("id", list.Entities[0].ID)
	rec := httptest.NewRecorder()
	h.GetEntity(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	var entity map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entity))
	assert.Equal(t, "jane doe", entity["query"])
	assert.NotNil(t, entity["signals"])
}

func TestGetEntityNotFound(t *testing.T) {
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/entities/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetEntity(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.9, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0,
				map[types.SignalKind][]string{types.SignalEmails: {"jane@example.com"}}),
		}},
	)
	w := doGET(t, h.Profile, "/profile?q=jane+doe&type=person")
	require.Equal(t, http.StatusOK, w.Code)

	w = doGET(t, h.Export, "/export")
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
	assert.Contains(t, w.Header().Get("Content-Disposition"), "scopedb-export.json")
}

func TestPivotEndpoint(t *testing.T) {
	h := newTestHandlers(t)

	w := doGET(t, h.Pivot, "/pivot?type=domain&value=example.com&depth=1")
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "sub.example.com", first["value"])
}

func TestPivotRequiresParams(t *testing.T) {
	h := newTestHandlers(t)

	w := doGET(t, h.Pivot, "/pivot?type=domain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.8, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0, nil),
		}},
	)
	doGET(t, h.Search, "/search?q=jane+doe")

	w := doGET(t, h.Metrics, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap.ConnectorCalls["alpha"])
	assert.EqualValues(t, 1, snap.ConnectorSuccesses["alpha"])
}

func TestAuditRootEndpoint(t *testing.T) {
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.8, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0, nil),
		}},
	)
	doGET(t, h.Search, "/search?q=jane+doe")

	day := time.Now().UTC().Format("2006-01-02")
	w := doGET(t, h.AuditRoot, "/audit/root?day="+day)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp AuditRootResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, day, resp.Day)
	assert.Equal(t, 1, resp.Events)
	assert.Len(t, resp.Root, 64)

	w = doGET(t, h.AuditRoot, "/audit/root?day=not-a-date")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandlers(t)

	w := doGET(t, h.Health, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGraphEndpoint(t *testing.T) {
	// Two candidates that stay unmerged (distinct URLs, no shared identity
	// signals) but share a location-like free-text relation via domains.
	h := newTestHandlers(t,
		&scriptedConnector{name: "alpha", weight: 0.8, obs: []types.Observation{
			scriptedObservation("alpha", "https://example.com/a", 0, nil),
			scriptedObservation("alpha", "https://example.com/b", 1, nil),
		}},
	)

	w := doGET(t, h.Graph, "/graph?q=jane+doe&type=person")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp GraphResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Nodes)
	assert.NotNil(t, resp.Components)
}
