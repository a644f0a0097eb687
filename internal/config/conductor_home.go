package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetKoboldHome returns the orchestrator's state directory.
// Priority order:
//  1. KOBOLD_HOME environment variable (if set)
//  2. The repository root (detected by finding go.mod or a .kobold-root marker)
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist.
func GetKoboldHome() (string, error) {
	if home := os.Getenv("KOBOLD_HOME"); home != "" {
		return ensureDir(home)
	}

	repoRoot, err := findRepoRoot()
	if err == nil && repoRoot != "" {
		return ensureDir(filepath.Join(repoRoot, ".kobold"))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return ensureDir(filepath.Join(cwd, ".kobold"))
}

func ensureDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", path, err)
	}
	return path, nil
}

// findRepoRoot walks up from the working directory looking for a
// .kobold-root marker file or a go.mod declaring this module.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	current := cwd
	for {
		markerPath := filepath.Join(current, ".kobold-root")
		if _, err := os.Stat(markerPath); err == nil {
			return current, nil
		}

		goModPath := filepath.Join(current, "go.mod")
		if data, err := os.ReadFile(goModPath); err == nil {
			if strings.Contains(string(data), "github.com/harrison/kobold") {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("repository root not found (looking for .kobold-root or go.mod declaring github.com/harrison/kobold)")
}

// GetProviderHealthDBPath returns the path to the provider-health audit
// database consumed by internal/providerhealth: $KOBOLD_HOME/provider-health/attempts.db
func GetProviderHealthDBPath() (string, error) {
	home, err := GetKoboldHome()
	if err != nil {
		return "", err
	}
	dir, err := ensureDir(filepath.Join(home, "provider-health"))
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "attempts.db"), nil
}

// GetPlanStoreDir returns the root directory for the Plan Store's
// per-project plan and checkpoint files: $KOBOLD_HOME/plans
func GetPlanStoreDir() (string, error) {
	home, err := GetKoboldHome()
	if err != nil {
		return "", err
	}
	return ensureDir(filepath.Join(home, "plans"))
}
