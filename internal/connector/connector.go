// Package connector defines the source connector capability and the
// reference implementations that wrap external data providers. Connectors
// are safe for concurrent use; each carries its own rate limiter and
// circuit breaker so one misbehaving upstream never affects another.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/pkg/types"
)

// Connector is the uniform capability wrapping one external data provider.
// A connector failure is local: it degrades result quality, never aborts an
// aggregation run. Implementations must not share mutable state across
// calls.
type Connector interface {
	// Name identifies the connector and is stamped on its observations.
	Name() string

	// TrustWeight is the per-source reliability coefficient in [0,1]
	// used in confidence combination.
	TrustWeight() float64

	// LatencyBudget bounds one Fetch call. The orchestrator enforces it
	// with a context deadline; exceeding it counts as a Timeout.
	LatencyBudget() time.Duration

	// Fetch returns zero or more observations for the query, or an error
	// classifiable via AsConnectorError.
	Fetch(ctx context.Context, q types.Query) ([]types.Observation, error)
}

// ErrorKind categorizes connector failures.
type ErrorKind string

// Connector error kinds.
const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"
	KindBadResponse ErrorKind = "bad_response"
)

// ConnectorError wraps a connector failure with its source and kind.
type ConnectorError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// Classify maps an arbitrary connector failure onto the error taxonomy.
// Context deadline and cancellation become Timeout, an open circuit or
// upstream 5xx becomes Unavailable, HTTP 429 becomes RateLimited, and
// decode failures become BadResponse.
func Classify(source string, err error) *ConnectorError {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce
	}

	kind := KindUnavailable
	var status *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case errors.Is(err, ErrCircuitOpen):
		kind = KindUnavailable
	case errors.As(err, &status):
		if status.Code == 429 {
			kind = KindRateLimited
		}
	case errors.Is(err, ErrBadResponse):
		kind = KindBadResponse
	}
	return &ConnectorError{Source: source, Kind: kind, Err: err}
}

// ErrBadResponse marks responses that arrived but could not be understood.
var ErrBadResponse = errors.New("malformed upstream response")

// base carries the manifest-derived fields and protective wrappers shared
// by all connector implementations.
type base struct {
	name    string
	weight  float64
	budget  time.Duration
	limiter *rate.Limiter
	breaker *Breaker
	fetcher *Fetcher
}

func newBase(spec config.ConnectorSpec, fetcher *Fetcher, bc BreakerConfig) base {
	return base{
		name:    spec.Name,
		weight:  spec.TrustWeight,
		budget:  spec.LatencyBudget,
		limiter: rate.NewLimiter(rate.Limit(spec.RatePerSec), 1),
		breaker: NewBreaker(spec.Name, bc),
		fetcher: fetcher,
	}
}

func (b *base) Name() string                 { return b.name }
func (b *base) TrustWeight() float64         { return b.weight }
func (b *base) LatencyBudget() time.Duration { return b.budget }

// guard applies the rate limiter and circuit breaker around one upstream
// call. The limiter wait respects the caller's deadline.
func (b *base) guard(ctx context.Context, fn func() ([]types.Observation, error)) ([]types.Observation, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := b.breaker.Execute(ctx, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Observation), nil
}

// Factory constructs a connector from its manifest entry.
type Factory func(spec config.ConnectorSpec, fetcher *Fetcher, bc BreakerConfig) Connector

// Registry builds and holds the active connector set. New providers
// register a factory; the orchestrator never changes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    []Connector
	fetcher   *Fetcher
	breakers  BreakerConfig
}

// NewRegistry creates a registry with the built-in factories registered.
func NewRegistry(fetcher *Fetcher, bc BreakerConfig) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		fetcher:   fetcher,
		breakers:  bc,
	}
	r.RegisterFactory("wikipedia", NewWikipedia)
	r.RegisterFactory("github", NewGitHub)
	r.RegisterFactory("rdap", NewRDAP)
	return r
}

// RegisterFactory makes a connector implementation available under name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Apply builds the active connector set from a manifest. Disabled entries
// are skipped; entries naming an unknown factory are an error. Called at
// startup and again by the manifest watcher on hot reload.
func (r *Registry) Apply(m *config.Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]Connector, 0, len(m.Connectors))
	for _, spec := range m.Connectors {
		if !spec.Enabled {
			continue
		}
		factory, ok := r.factories[spec.Name]
		if !ok {
			return fmt.Errorf("connector: no factory registered for %q", spec.Name)
		}
		active = append(active, factory(spec, r.fetcher, r.breakers))
	}
	// Deterministic fan-out order.
	sort.Slice(active, func(i, j int) bool { return active[i].Name() < active[j].Name() })
	r.active = active
	return nil
}

// Connectors returns the current active set.
func (r *Registry) Connectors() []Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connector, len(r.active))
	copy(out, r.active)
	return out
}

// MaxLatencyBudget returns the largest budget among active connectors,
// used to sanity-check the run deadline.
func (r *Registry) MaxLatencyBudget() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max time.Duration
	for _, c := range r.active {
		if c.LatencyBudget() > max {
			max = c.LatencyBudget()
		}
	}
	return max
}
