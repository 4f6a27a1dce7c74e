package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, 15*time.Second, cfg.Aggregation.RunDeadline)
	assert.Equal(t, 5*time.Minute, cfg.Aggregation.CacheTTL)
	assert.Equal(t, "development", cfg.Security.SecurityMode)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SCOPEDB_PORT", "9100")
	t.Setenv("SCOPEDB_RUN_DEADLINE", "3s")
	t.Setenv("SCOPEDB_STORAGE_ENGINE", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Aggregation.RunDeadline)
	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
}

func TestLoadConfigIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("SCOPEDB_PORT", "not-a-number")
	t.Setenv("SCOPEDB_CACHE_TTL", "five minutes")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Aggregation.CacheTTL)
}

func TestLoadManifestMissingFileUsesDefaults(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Len(t, m.Connectors, 3)
	assert.Equal(t, "wikipedia", m.Connectors[0].Name)
}

func TestLoadManifestParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectors.yaml")
	body := `connectors:
  - name: wikipedia
    trust_weight: 0.9
    latency_budget: 2s
    rate_per_sec: 2.0
    enabled: true
  - name: github
    trust_weight: 0.5
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Connectors, 2)
	assert.Equal(t, 0.9, m.Connectors[0].TrustWeight)
	assert.Equal(t, 2*time.Second, m.Connectors[0].LatencyBudget)
	assert.False(t, m.Connectors[1].Enabled)
	// Unset budget falls back to the default.
	assert.Equal(t, 8*time.Second, m.Connectors[1].LatencyBudget)
}

func TestManifestValidateRejectsDuplicates(t *testing.T) {
	m := &Manifest{Connectors: []ConnectorSpec{
		{Name: "github", TrustWeight: 0.5},
		{Name: "github", TrustWeight: 0.7},
	}}
	assert.Error(t, m.Validate())
}

func TestManifestValidateRejectsBadWeight(t *testing.T) {
	m := &Manifest{Connectors: []ConnectorSpec{{Name: "x", TrustWeight: 1.5}}}
	assert.Error(t, m.Validate())
}
