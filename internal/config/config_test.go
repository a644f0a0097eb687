package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().TickInterval, cfg.TickInterval)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kobold.yaml")
	contents := `
tick_interval: 10s
max_concurrent_workers_per_project: 8
watchdog_idle_timeout: 5m
log_level: debug
providers:
  - name: anthropic
    api_key_env: ANTHROPIC_API_KEY
    model: claude-sonnet
    rate_per_second: 2
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.TickInterval)
	assert.Equal(t, 8, cfg.MaxConcurrentWorkersPerProject)
	assert.Equal(t, 5*time.Minute, cfg.WatchdogIdleTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "anthropic", cfg.Providers[0].Name)
}

func TestLoadConfigMalformedYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_interval: [unterminated"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverrideTakesPrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kobold.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0644))

	t.Setenv("KOBOLD_LOG_LEVEL", "trace")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.LogLevel)
}

func TestValidateRejectsNonPositiveTickInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentWorkersPerProject = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicateProviderNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers = []ProviderConfig{{Name: "anthropic"}, {Name: "anthropic"}}
	assert.Error(t, cfg.Validate())
}

func TestLoadProjectConfigMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := LoadProjectConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.AllowedExternalPaths)
}

func TestLoadProjectConfigParsesAllowedPathsAndAgentSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.json")
	contents := `{
		"allowedExternalPaths": ["/shared/libs"],
		"agents": {"kobold": {"timeout": "30s", "parallelLimit": 3}},
		"providerName": "anthropic"
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := LoadProjectConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/shared/libs"}, cfg.AllowedExternalPaths)
	assert.Equal(t, 30*time.Second, cfg.Agents.Kobold.Timeout.Duration())
	assert.Equal(t, 3, cfg.Agents.Kobold.ParallelLimit)
	assert.Equal(t, "anthropic", cfg.ProviderName)
}

func TestIsPathAllowedExactAndNestedMatches(t *testing.T) {
	cfg := &ProjectConfig{AllowedExternalPaths: []string{"/shared/libs"}}
	assert.True(t, cfg.IsPathAllowed("/shared/libs"))
	assert.True(t, cfg.IsPathAllowed("/shared/libs/pkg/a.go"))
	assert.False(t, cfg.IsPathAllowed("/shared/libs2/a.go"))
	assert.False(t, cfg.IsPathAllowed("/etc/passwd"))
}

func TestResolveProviderPrefersExplicitThenAgentTypeThenDefault(t *testing.T) {
	cfg := &Config{
		DefaultProvider:    "anthropic",
		AgentTypeProviders: map[string]string{"python": "openai"},
	}
	assert.Equal(t, "explicit-provider", cfg.ResolveProvider("explicit-provider", "python"))
	assert.Equal(t, "openai", cfg.ResolveProvider("", "python"))
	assert.Equal(t, "anthropic", cfg.ResolveProvider("", "javascript"))
}
