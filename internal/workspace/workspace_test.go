package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/kobold/internal/models"
)

func TestRegisterAndClaimFile(t *testing.T) {
	r := NewRegistry()
	r.RegisterAgent("proj", "worker-1", "t1", models.AgentGenericCoding)
	r.UpdateFileMetadata("proj", "main.go", "entry point", "t1", true)

	claimed := r.ClaimedFiles("proj")
	assert.True(t, claimed["main.go"])

	meta := r.FilesWithMetadata("proj")
	assert.Equal(t, "t1", meta["main.go"].TaskID)
	assert.True(t, meta["main.go"].IsCreated)
}

func TestUnregisterAgentReleasesClaims(t *testing.T) {
	r := NewRegistry()
	r.RegisterAgent("proj", "worker-1", "t1", models.AgentGenericCoding)
	r.UpdateFileMetadata("proj", "main.go", "entry point", "t1", true)

	r.UnregisterAgent("proj", "worker-1", true, "")

	claimed := r.ClaimedFiles("proj")
	assert.False(t, claimed["main.go"])
}

func TestInferFilePurposeFromPlanStep(t *testing.T) {
	plan := &models.Plan{Steps: []models.PlanStep{
		{Title: "Add handler", FilesToCreate: []string{"handler.go"}},
	}}
	assert.Equal(t, "Add handler", InferFilePurpose("handler.go", plan))
}

func TestInferFilePurposeFallsBackOnExtension(t *testing.T) {
	assert.Equal(t, "test", InferFilePurpose("store_test.go", nil))
	assert.Equal(t, "documentation", InferFilePurpose("README.md", nil))
	assert.Equal(t, "implementation", InferFilePurpose("store.go", nil))
}

func TestProjectStructureHintsExcludesGitAndReturnsRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "internal", "pkg", "pkg.go"), []byte("package pkg"), 0644))

	hints := ProjectStructureHints(root)
	assert.Contains(t, hints, "main.go")
	assert.Contains(t, hints, filepath.Join("internal", "pkg", "pkg.go"))
	for _, h := range hints {
		assert.NotContains(t, h, ".git")
	}
}

func TestProjectStructureHintsMissingDirReturnsNil(t *testing.T) {
	hints := ProjectStructureHints(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Nil(t, hints)
}

func TestProjectsAreIsolated(t *testing.T) {
	r := NewRegistry()
	r.UpdateFileMetadata("proj-a", "a.go", "", "t1", true)
	r.UpdateFileMetadata("proj-b", "b.go", "", "t2", true)

	assert.Len(t, r.FilesWithMetadata("proj-a"), 1)
	assert.Len(t, r.FilesWithMetadata("proj-b"), 1)
}
