package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/kobold/internal/config"
)

func TestProjectIDFromDirUsesBaseName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Base(dir), projectIDFromDir(dir))
}

func TestCronSpecPrefersExplicitOverConfigInterval(t *testing.T) {
	cfg := &config.Config{TickInterval: 5 * time.Second}
	assert.Equal(t, "*/10 * * * *", cronSpec("*/10 * * * *", cfg))
	assert.Equal(t, "@every 5s", cronSpec("", cfg))
}

func TestBreakerSettingsFallsBackToDefaultsWithNoProviders(t *testing.T) {
	threshold, cooldown := breakerSettings(&config.Config{})
	assert.Equal(t, 5, threshold)
	assert.Equal(t, 30*time.Second, cooldown)
}

func TestBreakerSettingsUsesConfiguredProviderValues(t *testing.T) {
	cfg := &config.Config{Providers: []config.ProviderConfig{
		{Name: "anthropic", BreakerThreshold: 3, BreakerCooldown: 10 * time.Second},
	}}
	threshold, cooldown := breakerSettings(cfg)
	assert.Equal(t, 3, threshold)
	assert.Equal(t, 10*time.Second, cooldown)
}
