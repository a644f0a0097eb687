package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	"github.com/harrison/kobold/internal/config"
	"github.com/harrison/kobold/internal/logger"
	"github.com/harrison/kobold/internal/planner"
	"github.com/harrison/kobold/internal/provider"
	"github.com/harrison/kobold/internal/providerhealth"
	"github.com/harrison/kobold/internal/registry"
	"github.com/harrison/kobold/internal/supervisor"
	"github.com/harrison/kobold/internal/telemetry"
)

// buildProviderClient registers one adapter per entry in cfg.Providers and
// wires a circuit breaker backed by Redis when KOBOLD_REDIS_URL is set,
// falling back to the in-memory store otherwise (spec §4.2, §2 ambient
// stack).
func buildProviderClient(cfg *config.Config) (*provider.Client, error) {
	client := provider.NewClient()

	breakerStore, err := buildBreakerStore()
	if err != nil {
		return nil, err
	}
	threshold, cooldown := breakerSettings(cfg)
	client.Breaker = provider.NewCircuitBreaker(breakerStore, threshold, cooldown)

	for _, pc := range cfg.Providers {
		adapter, err := buildAdapter(pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if adapter == nil {
			continue
		}
		client.Register(adapter)
		if pc.RatePerSecond > 0 {
			client.Limiter.SetLimit(pc.Name, pc.RatePerSecond, pc.Burst)
		}
	}

	return client, nil
}

func breakerSettings(cfg *config.Config) (int, time.Duration) {
	threshold := 5
	cooldown := 30 * time.Second
	for _, pc := range cfg.Providers {
		if pc.BreakerThreshold > 0 {
			threshold = pc.BreakerThreshold
		}
		if pc.BreakerCooldown > 0 {
			cooldown = pc.BreakerCooldown
		}
	}
	return threshold, cooldown
}

func buildBreakerStore() (provider.BreakerStore, error) {
	url := os.Getenv("KOBOLD_REDIS_URL")
	if url == "" {
		return provider.NewMemoryBreakerStore(), nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse KOBOLD_REDIS_URL: %w", err)
	}
	return provider.NewRedisBreakerStore(redis.NewClient(opts), "kobold:breaker"), nil
}

func buildAdapter(pc config.ProviderConfig) (provider.Adapter, error) {
	apiKey := os.Getenv(pc.APIKeyEnv)
	switch pc.Name {
	case "anthropic":
		if apiKey == "" {
			return nil, nil
		}
		return provider.NewAnthropicAdapter(apiKey, pc.Model, pc.MaxTokens), nil
	case "openai":
		if apiKey == "" {
			return nil, nil
		}
		return provider.NewOpenAIAdapter(apiKey, pc.Model), nil
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return provider.NewBedrockAdapter(bedrockruntime.NewFromConfig(awsCfg), pc.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", pc.Name)
	}
}

// buildTelemetry returns a real otel-backed Recorder when enabled, a noop
// one otherwise (spec §2 ambient stack, "telemetry is opt-in").
func buildTelemetry(cfg *config.Config) *telemetry.Recorder {
	if !cfg.TelemetryEnabled {
		return telemetry.NewNoop()
	}
	rec, err := telemetry.New()
	if err != nil {
		return telemetry.NewNoop()
	}
	return rec
}

// buildSupervisor assembles the full Supervisor dependency graph for one
// project directory: task stores, the provider client wrapped with the
// health audit trail, the planner, and telemetry.
func buildSupervisor(projectID, projectDir string, cfg *config.Config, log supervisor.Logger, telem *telemetry.Recorder, health *providerhealth.Store) (*supervisor.Supervisor, error) {
	projectCfg, err := config.LoadProjectConfig(filepath.Join(projectDir, ".kobold", "project.json"))
	if err != nil {
		return nil, fmt.Errorf("load project config: %w", err)
	}

	rawClient, err := buildProviderClient(cfg)
	if err != nil {
		return nil, err
	}
	client := &provider.AuditedClient{Inner: rawClient, Health: health}

	pg := planner.New(client, cfg.DefaultProvider)

	sup, err := supervisor.New(supervisor.Options{
		ProjectID:  projectID,
		ProjectDir: projectDir,
		WorkDir:    projectDir,
		Cfg:        cfg,
		ProjectCfg: projectCfg,
		Planner:    pg,
		Client:     client,
		Log:        log,
		Telemetry:  telem,
	})
	if err != nil {
		return nil, fmt.Errorf("build supervisor for %s: %w", projectID, err)
	}
	return sup, nil
}

// buildHealthStore opens the shared provider-health audit database.
func buildHealthStore() (*providerhealth.Store, error) {
	dbPath, err := config.GetProviderHealthDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve provider health db path: %w", err)
	}
	return providerhealth.NewStore(dbPath)
}

// buildLogger builds the console logger used by run/tick. It always writes
// to standard output; cfg.LogDir is not consulted (spec §2 ambient stack).
func buildLogger(cfg *config.Config) *logger.ConsoleLogger {
	return logger.NewConsoleLogger(os.Stdout, cfg.LogLevel)
}

// stores flattens a Supervisor's per-area task stores into the TaskLister
// slice registry.Register wants for snapshot aggregation.
func stores(sup *supervisor.Supervisor) []registry.TaskLister {
	out := make([]registry.TaskLister, 0, len(sup.Stores))
	for _, s := range sup.Stores {
		out = append(out, s)
	}
	return out
}

// projectIDFromDir derives a stable project identifier from its directory
// name; run and tick use it for every project directory they are given.
func projectIDFromDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}
