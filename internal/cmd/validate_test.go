package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTasksFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRunValidateAcceptsWellFormedTasks(t *testing.T) {
	dir := t.TempDir()
	writeTasksFile(t, dir, "backend-tasks.md", "- [task-1] Set up the database schema\n")

	var out bytes.Buffer
	err := runValidate([]string{dir}, &out)

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "ok (1 tasks)")
}

func TestRunValidateReportsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	writeTasksFile(t, dir, "backend-tasks.md", strings.Join([]string{
		"- [task-1] First (depends on: task-2)",
		"- [task-2] Second (depends on: task-1)",
	}, "\n")+"\n")

	var out bytes.Buffer
	err := runValidate([]string{dir}, &out)

	assert.Error(t, err)
}

func TestRunValidateReportsMissingAreaFiles(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	err := runValidate([]string{dir}, &out)

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "no *-tasks.md files found")
}
