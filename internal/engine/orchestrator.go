package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scrypster/scopedb/internal/audit"
	"github.com/scrypster/scopedb/internal/cache"
	"github.com/scrypster/scopedb/internal/connector"
	"github.com/scrypster/scopedb/internal/logging"
	"github.com/scrypster/scopedb/internal/metrics"
	"github.com/scrypster/scopedb/internal/storage"
	"github.com/scrypster/scopedb/pkg/types"
)

var (
	// ErrNoSources indicates that every connector failed, so no profile or
	// candidate list can be produced for the query.
	ErrNoSources = errors.New("no sources available")

	// ErrNoCandidate indicates that the aggregation run produced no cluster
	// matching the request (no results at all, or an unknown candidate id).
	ErrNoCandidate = errors.New("no matching candidate")

	// ErrAmbiguous indicates that multiple clusters are equally plausible and
	// the caller must pick one by id. Retrieve the candidate list with
	// errors.As on *AmbiguousError.
	ErrAmbiguous = errors.New("ambiguous candidates")
)

// AmbiguousError carries the tied candidates so the boundary can offer them
// to the caller for disambiguation.
type AmbiguousError struct {
	Candidates []types.Candidate
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous candidates: %d clusters tied", len(e.Candidates))
}

// Is lets errors.Is(err, ErrAmbiguous) match.
func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }

// EventSink receives run lifecycle events for live subscribers. Implemented
// by the websocket hub; a nil sink disables publication.
type EventSink interface {
	Publish(event string, payload interface{})
}

// RunResult is the finalized outcome of one aggregation run. It is the unit
// the cache stores: both /search and /profile derive their responses from
// the same cached run.
type RunResult struct {
	Query      types.Query        `json:"query"`
	Candidates []types.Candidate  `json:"candidates"`
	Connectors map[string]string  `json:"connectors"` // name -> "" on success, error kind on failure
	RawCount   int                `json:"raw_count"`
	Trust      map[string]float64 `json:"trust"`
	StartedAt  time.Time          `json:"started_at"`
	Duration   time.Duration      `json:"duration"`
}

// Succeeded returns the number of connectors that completed without error.
func (r *RunResult) Succeeded() int {
	n := 0
	for _, kind := range r.Connectors {
		if kind == "" {
			n++
		}
	}
	return n
}

// Options configures an Orchestrator. Registry, Cache, and Metrics are
// required; the rest may be nil/zero for reduced deployments and tests.
type Options struct {
	Registry *connector.Registry
	Cache    *cache.Cache[*RunResult]
	Metrics  *metrics.Registry
	Store    storage.ProfileStore
	Audit    *audit.Log
	Events   EventSink
	Logger   *zap.Logger

	// RunDeadline bounds one full aggregation run end to end, independent of
	// any caller deadline. Defaults to 15s.
	RunDeadline time.Duration
}

// Orchestrator executes aggregation runs: fan out to every enabled
// connector, cluster the observations, and serve candidate lists and merged
// profiles from the shared run cache.
type Orchestrator struct {
	registry    *connector.Registry
	cache       *cache.Cache[*RunResult]
	metrics     *metrics.Registry
	store       storage.ProfileStore
	audit       *audit.Log
	events      EventSink
	log         *zap.Logger
	runDeadline time.Duration
}

// NewOrchestrator constructs an Orchestrator from Options.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.RunDeadline <= 0 {
		opts.RunDeadline = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:    opts.Registry,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		store:       opts.Store,
		audit:       opts.Audit,
		events:      opts.Events,
		log:         opts.Logger,
		runDeadline: opts.RunDeadline,
	}
}

// Search returns the candidate list for a query, running the aggregation if
// no finalized result is cached. Identical concurrent queries share one run.
// Returns ErrNoSources when every connector failed.
func (o *Orchestrator) Search(ctx context.Context, q types.Query, refresh bool) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.audit != nil {
		o.audit.Append("search", q.Text, string(q.Type))
	}
	return o.run(q, refresh)
}

// Profile resolves a query to a single merged profile. With a non-empty id,
// the candidate with that cluster id is selected; otherwise the best-ranked
// cluster wins, and a tie among top clusters yields ErrAmbiguous carrying
// the tied candidates.
func (o *Orchestrator) Profile(ctx context.Context, q types.Query, id string, refresh bool) (*types.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.audit != nil {
		o.audit.Append("profile", q.Text, string(q.Type))
	}

	result, err := o.run(q, refresh)
	if err != nil {
		return nil, err
	}

	winner, err := selectCandidate(result.Candidates, id)
	if err != nil {
		return nil, err
	}

	profile := Merge(q, *winner, result.Trust)
	o.persist(winner.ID, profile)
	if o.events != nil {
		o.events.Publish("profile_resolved", map[string]interface{}{
			"query":      logging.Redact(q.Text),
			"id":         winner.ID,
			"confidence": profile.Confidence,
		})
	}
	return profile, nil
}

// run returns the cached run for the query's fingerprint or executes a new
// one. The run itself is detached from any caller context so that a caller
// abort never kills a run other requests are coalesced onto.
func (o *Orchestrator) run(q types.Query, refresh bool) (*RunResult, error) {
	return o.cache.Do(q.Fingerprint(), refresh, func() (*RunResult, error) {
		return o.runOnce(q)
	})
}

// runOnce performs one full aggregation: concurrent connector fan-out with
// per-connector latency budgets, signal enrichment, and clustering.
func (o *Orchestrator) runOnce(q types.Query) (*RunResult, error) {
	started := time.Now().UTC()
	conns := o.registry.Connectors()

	result := &RunResult{
		Query:      q,
		Connectors: make(map[string]string, len(conns)),
		Trust:      make(map[string]float64, len(conns)),
		StartedAt:  started,
	}
	for _, c := range conns {
		result.Trust[c.Name()] = c.TrustWeight()
	}

	if len(conns) == 0 {
		o.log.Warn("aggregation run with no enabled connectors",
			logging.String("query", q.Text))
		return nil, ErrNoSources
	}

	// The run owns its own deadline. Coalesced callers may come and go; the
	// run finishes (or times out) regardless. The deadline stays strictly
	// above the slowest connector budget so no source is starved by
	// configuration.
	deadline := o.runDeadline
	if slowest := o.registry.MaxLatencyBudget(); deadline <= slowest {
		deadline = slowest + time.Second
		o.log.Warn("run deadline at or below slowest connector budget, raising",
			zap.Duration("configured", o.runDeadline),
			zap.Duration("effective", deadline))
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	var (
		mu           sync.Mutex
		observations []types.Observation
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			connCtx, connCancel := context.WithTimeout(gctx, c.LatencyBudget())
			defer connCancel()

			callStart := time.Now()
			obs, err := c.Fetch(connCtx, q)
			latency := time.Since(callStart)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				cerr := connector.Classify(c.Name(), err)
				result.Connectors[c.Name()] = string(cerr.Kind)
				if o.metrics != nil {
					o.metrics.RecordCall(c.Name(), string(cerr.Kind), latency)
				}
				o.log.Warn("connector failed",
					logging.String("connector", c.Name()),
					logging.String("kind", string(cerr.Kind)),
					zap.Duration("latency", latency),
					zap.Error(cerr))
				// A failed connector degrades the run, never aborts it.
				return nil
			}

			result.Connectors[c.Name()] = ""
			if o.metrics != nil {
				o.metrics.RecordCall(c.Name(), "", latency)
			}
			for _, ob := range obs {
				observations = append(observations, EnrichObservation(ob))
			}
			return nil
		})
	}
	g.Wait()

	if result.Succeeded() == 0 {
		o.log.Warn("all connectors failed",
			logging.String("query", q.Text),
			zap.Int("connectors", len(conns)))
		return nil, ErrNoSources
	}

	result.RawCount = len(observations)
	result.Candidates = Cluster(observations)
	result.Duration = time.Since(started)
	if o.metrics != nil {
		o.metrics.RecordDedupe(result.RawCount, len(result.Candidates))
	}

	o.log.Info("aggregation run finished",
		logging.String("query", q.Text),
		zap.Int("raw", result.RawCount),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("succeeded", result.Succeeded()),
		zap.Duration("duration", result.Duration))

	if o.events != nil {
		o.events.Publish("run_completed", map[string]interface{}{
			"query":      logging.Redact(q.Text),
			"candidates": len(result.Candidates),
			"duration":   result.Duration.String(),
		})
	}
	return result, nil
}

// selectCandidate picks the cluster a profile request resolves to.
// Candidates arrive already ranked (corroboration desc, then earliest fetch,
// then id), so without an explicit id the head wins unless the top clusters
// are tied on corroboration.
func selectCandidate(candidates []types.Candidate, id string) (*types.Candidate, error) {
	if id != "" {
		for i := range candidates {
			if candidates[i].ID == id {
				return &candidates[i], nil
			}
		}
		return nil, ErrNoCandidate
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}
	if len(candidates) > 1 && candidates[0].Sources == candidates[1].Sources {
		tied := []types.Candidate{candidates[0]}
		for _, c := range candidates[1:] {
			if c.Sources != candidates[0].Sources {
				break
			}
			tied = append(tied, c)
		}
		return nil, &AmbiguousError{Candidates: tied}
	}
	return &candidates[0], nil
}

// persist writes the resolved profile to the profile store. Persistence is
// best effort; a storage failure is logged and the response still goes out.
func (o *Orchestrator) persist(id string, p *types.Profile) {
	if o.store == nil {
		return
	}

	signalsJSON, err := json.Marshal(p.Signals)
	if err != nil {
		o.log.Error("failed to marshal profile signals", zap.Error(err))
		return
	}
	sourcesJSON, err := json.Marshal(p.Sources)
	if err != nil {
		o.log.Error("failed to marshal profile sources", zap.Error(err))
		return
	}
	var eventsJSON []byte
	if len(p.Events) > 0 {
		eventsJSON, err = json.Marshal(p.Events)
		if err != nil {
			o.log.Error("failed to marshal profile events", zap.Error(err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record := &storage.StoredProfile{
		ID:            id,
		Query:         p.Query,
		EntityType:    string(p.Type),
		CanonicalName: p.CanonicalName,
		Description:   p.Description,
		Confidence:    p.Confidence,
		SignalsJSON:   signalsJSON,
		SourcesJSON:   sourcesJSON,
		EventsJSON:    eventsJSON,
	}
	if err := o.store.Save(ctx, record); err != nil {
		o.log.Error("failed to persist profile",
			logging.String("id", id),
			zap.Error(err))
	}
}
