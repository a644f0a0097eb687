// Package config loads the orchestrator-wide YAML config and each
// project's JSON config (spec §6). The orchestrator config covers
// concurrency, watchdog and retry tuning; per-project config covers the
// things that vary per checked-out repository.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig describes one Provider Client backend entry.
type ProviderConfig struct {
	Name              string  `yaml:"name"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	RatePerSecond     float64 `yaml:"rate_per_second"`
	Burst             int     `yaml:"burst"`
	BreakerThreshold  int     `yaml:"breaker_threshold"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

// Config is the orchestrator-wide configuration (spec §2 ambient stack).
type Config struct {
	// TickInterval is how often the external ticker invokes
	// Supervisor.Tick for each registered project.
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxConcurrentWorkersPerProject caps simultaneous Workers within one
	// project's Supervisor tick (0 = unlimited).
	MaxConcurrentWorkersPerProject int `yaml:"max_concurrent_workers_per_project"`

	// WatchdogIdleTimeout is how long a worker may go without a model
	// response before the Supervisor treats it as stuck.
	WatchdogIdleTimeout time.Duration `yaml:"watchdog_idle_timeout"`

	// SaveDebounceInterval coalesces rapid task-store saves; a task
	// reaching Done bypasses this and writes immediately.
	SaveDebounceInterval time.Duration `yaml:"save_debounce_interval"`

	// MaxStepIterations bounds per-step tool-call iterations before the
	// Worker gives up on a single plan step.
	MaxStepIterations int `yaml:"max_step_iterations"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	TelemetryEnabled bool `yaml:"telemetry_enabled"`

	Providers []ProviderConfig `yaml:"providers"`

	// AgentTypeProviders maps an agent type (e.g. "python") to the provider
	// name that should handle it, consulted by the Supervisor before
	// falling back to DefaultProvider (spec §4.7.1 step 7, provider
	// resolution order: explicit > agent-type mapping > global default).
	AgentTypeProviders map[string]string `yaml:"agent_type_providers"`

	// DefaultProvider is used when a task names no provider and no
	// agent-type mapping applies.
	DefaultProvider string `yaml:"default_provider"`

	RegistryHost string `yaml:"registry_host"`
}

// ResolveProvider implements the provider resolution order of spec
// §4.7.1 step 7: an explicit provider on the task wins, then the
// agent-type mapping, then the configured default.
func (c *Config) ResolveProvider(explicit string, agentType string) string {
	if explicit != "" {
		return explicit
	}
	if p, ok := c.AgentTypeProviders[agentType]; ok && p != "" {
		return p
	}
	return c.DefaultProvider
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		TickInterval:                   5 * time.Second,
		MaxConcurrentWorkersPerProject: 4,
		WatchdogIdleTimeout:            10 * time.Minute,
		SaveDebounceInterval:           2 * time.Second,
		MaxStepIterations:              10,
		LogLevel:                       "info",
		LogDir:                         ".kobold/logs",
		TelemetryEnabled:               false,
	}
}

// applyEnvOverrides applies KOBOLD_* environment overrides, which take
// precedence over the config file (spec-independent operator convenience,
// matching the teacher's env-override layering for console settings).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KOBOLD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KOBOLD_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("KOBOLD_TELEMETRY"); v != "" {
		cfg.TelemetryEnabled = v == "true" || v == "1"
	}
}

// LoadConfig loads the orchestrator config from path. A missing file
// yields defaults (with env overrides applied), matching the teacher's
// "no config file is not an error" contract.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the configuration's internal consistency.
func (c *Config) Validate() error {
	if c.MaxConcurrentWorkersPerProject < 0 {
		return fmt.Errorf("max_concurrent_workers_per_project must be >= 0, got %d", c.MaxConcurrentWorkersPerProject)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0, got %v", c.TickInterval)
	}
	if c.MaxStepIterations <= 0 {
		return fmt.Errorf("max_step_iterations must be > 0, got %d", c.MaxStepIterations)
	}
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider entry missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %q declared more than once", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// jsonDuration marshals as a Go duration string ("30s") rather than the
// integer nanosecond count encoding/json gives time.Duration by default,
// matching the human-editable per-project config file of spec §6.
type jsonDuration time.Duration

func (d jsonDuration) Duration() time.Duration { return time.Duration(d) }

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = jsonDuration(parsed)
	return nil
}

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ProjectConfig is the per-project JSON config of spec §6: workspace
// sandbox rules and the agent runtime settings for that checkout.
type ProjectConfig struct {
	AllowedExternalPaths []string `json:"allowedExternalPaths"`

	Agents struct {
		Kobold struct {
			Timeout       jsonDuration `json:"timeout"`
			ParallelLimit int          `json:"parallelLimit"`
		} `json:"kobold"`
	} `json:"agents"`

	// ProviderName selects which orchestrator-level ProviderConfig this
	// project's tasks default to when a task doesn't name one.
	ProviderName string `json:"providerName"`
}

// LoadProjectConfig reads a project's JSON config file. A missing file
// yields a zero-value ProjectConfig (no external paths, no overrides).
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read project config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse project config: %w", err)
	}
	return cfg, nil
}

// IsPathAllowed reports whether target is inside one of the project's
// AllowedExternalPaths, consulted by the Worker's sandbox check (spec
// §4.3) once a path has already failed the working-directory containment
// check.
func (c *ProjectConfig) IsPathAllowed(target string) bool {
	for _, allowed := range c.AllowedExternalPaths {
		if allowed == "" {
			continue
		}
		if hasPathPrefix(target, allowed) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) <= len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
