package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectorSpec describes one source connector in the manifest.
type ConnectorSpec struct {
	// Name identifies the connector implementation (wikipedia, github, rdap).
	Name string `yaml:"name"`

	// TrustWeight is the source reliability coefficient in (0,1].
	TrustWeight float64 `yaml:"trust_weight"`

	// LatencyBudget bounds one Fetch call; exceeding it counts as a timeout.
	LatencyBudget time.Duration `yaml:"latency_budget"`

	// RatePerSec throttles upstream calls for this connector.
	RatePerSec float64 `yaml:"rate_per_sec"`

	// Enabled toggles registration without removing the entry.
	Enabled bool `yaml:"enabled"`
}

// UnmarshalYAML decodes a connector entry, accepting Go duration syntax
// ("8s", "500ms") for latency_budget.
func (c *ConnectorSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name          string  `yaml:"name"`
		TrustWeight   float64 `yaml:"trust_weight"`
		LatencyBudget string  `yaml:"latency_budget"`
		RatePerSec    float64 `yaml:"rate_per_sec"`
		Enabled       bool    `yaml:"enabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Name = raw.Name
	c.TrustWeight = raw.TrustWeight
	c.RatePerSec = raw.RatePerSec
	c.Enabled = raw.Enabled
	if raw.LatencyBudget != "" {
		d, err := time.ParseDuration(raw.LatencyBudget)
		if err != nil {
			return fmt.Errorf("config: connector %q latency_budget: %w", raw.Name, err)
		}
		c.LatencyBudget = d
	}
	return nil
}

// Manifest is the YAML connector manifest.
type Manifest struct {
	Connectors []ConnectorSpec `yaml:"connectors"`
}

// DefaultManifest returns the built-in connector set used when no manifest
// file exists. Trust weights are configuration, not derived facts; these
// defaults favor registry-grade sources over scraped ones.
func DefaultManifest() *Manifest {
	return &Manifest{
		Connectors: []ConnectorSpec{
			{Name: "wikipedia", TrustWeight: 0.8, LatencyBudget: 8 * time.Second, RatePerSec: 1.0, Enabled: true},
			{Name: "github", TrustWeight: 0.7, LatencyBudget: 8 * time.Second, RatePerSec: 1.0, Enabled: true},
			{Name: "rdap", TrustWeight: 0.9, LatencyBudget: 8 * time.Second, RatePerSec: 1.0, Enabled: true},
		},
	}
}

// LoadManifest reads and validates a connector manifest. A missing file is
// not an error: the default manifest is returned so the service starts with
// the built-in connector set.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultManifest(), nil
		}
		return nil, fmt.Errorf("config: read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks manifest invariants: unique names, trust weights in (0,1]
// (zero is tolerated as an explicit "observations only" setting), positive
// latency budgets.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Connectors))
	for i := range m.Connectors {
		spec := &m.Connectors[i]
		if spec.Name == "" {
			return fmt.Errorf("config: connector %d has no name", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("config: duplicate connector %q", spec.Name)
		}
		seen[spec.Name] = true
		if spec.TrustWeight < 0 || spec.TrustWeight > 1 {
			return fmt.Errorf("config: connector %q trust_weight %v outside [0,1]", spec.Name, spec.TrustWeight)
		}
		if spec.LatencyBudget <= 0 {
			spec.LatencyBudget = 8 * time.Second
		}
		if spec.RatePerSec <= 0 {
			spec.RatePerSec = 1.0
		}
	}
	return nil
}
