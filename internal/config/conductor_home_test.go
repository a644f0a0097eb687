package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetKoboldHomeWithEnvVar(t *testing.T) {
	customHome := t.TempDir()
	t.Setenv("KOBOLD_HOME", customHome)

	home, err := GetKoboldHome()
	require.NoError(t, err)
	assert.Equal(t, customHome, home)
}

func TestGetKoboldHomeFallsBackToWorkingDirectory(t *testing.T) {
	t.Setenv("KOBOLD_HOME", "")

	dir := t.TempDir()
	t.Chdir(dir)

	home, err := GetKoboldHome()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".kobold"), home)

	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetProviderHealthDBPathNestsUnderKoboldHome(t *testing.T) {
	customHome := t.TempDir()
	t.Setenv("KOBOLD_HOME", customHome)

	dbPath, err := GetProviderHealthDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(customHome, "provider-health", "attempts.db"), dbPath)

	info, err := os.Stat(filepath.Join(customHome, "provider-health"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetPlanStoreDirNestsUnderKoboldHome(t *testing.T) {
	customHome := t.TempDir()
	t.Setenv("KOBOLD_HOME", customHome)

	dir, err := GetPlanStoreDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(customHome, "plans"), dir)
}
