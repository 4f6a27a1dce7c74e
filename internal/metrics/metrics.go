// Package metrics keeps process-local counters for connector health and
// aggregation quality. Counters are cheap to record on the hot path and
// exported as a point-in-time snapshot by the /metrics endpoint.
package metrics

import (
	"sync"
	"time"
)

// Registry accumulates connector call outcomes and run statistics.
// All methods are safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	calls     map[string]int64
	successes map[string]int64
	failures  map[string]map[string]int64 // connector -> error kind -> count
	latencyMS map[string]int64
	dedupe    float64
}

// NewRegistry constructs an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		calls:     make(map[string]int64),
		successes: make(map[string]int64),
		failures:  make(map[string]map[string]int64),
		latencyMS: make(map[string]int64),
	}
}

// RecordCall records the outcome of one connector invocation. kind is the
// connector error kind for failures and empty for successes.
func (r *Registry) RecordCall(connector string, kind string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[connector]++
	r.latencyMS[connector] += latency.Milliseconds()
	if kind == "" {
		r.successes[connector]++
		return
	}
	byKind := r.failures[connector]
	if byKind == nil {
		byKind = make(map[string]int64)
		r.failures[connector] = byKind
	}
	byKind[kind]++
}

// RecordDedupe records the observation deduplication ratio of the most
// recent aggregation run (unique clusters / raw observations).
func (r *Registry) RecordDedupe(raw, unique int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if raw == 0 {
		r.dedupe = 0
		return
	}
	r.dedupe = float64(unique) / float64(raw)
}

// Snapshot is an exported copy of the current counters.
type Snapshot struct {
	ConnectorCalls     map[string]int64            `json:"connector_calls"`
	ConnectorSuccesses map[string]int64            `json:"connector_successes"`
	ConnectorFailures  map[string]map[string]int64 `json:"connector_failures"`
	AvgLatencyMS       map[string]float64          `json:"avg_latency_ms"`
	DedupeRatio        float64                     `json:"dedupe_ratio"`
}

// Export returns a deep copy of the current metrics.
func (r *Registry) Export() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ConnectorCalls:     make(map[string]int64, len(r.calls)),
		ConnectorSuccesses: make(map[string]int64, len(r.successes)),
		ConnectorFailures:  make(map[string]map[string]int64, len(r.failures)),
		AvgLatencyMS:       make(map[string]float64, len(r.latencyMS)),
		DedupeRatio:        r.dedupe,
	}
	for k, v := range r.calls {
		snap.ConnectorCalls[k] = v
		if v > 0 {
			snap.AvgLatencyMS[k] = float64(r.latencyMS[k]) / float64(v)
		}
	}
	for k, v := range r.successes {
		snap.ConnectorSuccesses[k] = v
	}
	for k, byKind := range r.failures {
		inner := make(map[string]int64, len(byKind))
		for kind, n := range byKind {
			inner[kind] = n
		}
		snap.ConnectorFailures[k] = inner
	}
	return snap
}

// Reset clears all counters. Useful for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]int64)
	r.successes = make(map[string]int64)
	r.failures = make(map[string]map[string]int64)
	r.latencyMS = make(map[string]int64)
	r.dedupe = 0
}
