// Package workspace implements the Workspace Context of spec §4.6: a
// per-project, process-wide view of which files exist, why, and which
// worker currently claims each one. All mutation is serialized; readers
// always see a consistent snapshot.
package workspace

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/harrison/kobold/internal/fileutil"
	"github.com/harrison/kobold/internal/models"
)

// Registry holds one ProjectWorkspace per project, created on first use.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*models.ProjectWorkspace
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{workspaces: make(map[string]*models.ProjectWorkspace)}
}

func (r *Registry) workspaceFor(projectID string) *models.ProjectWorkspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[projectID]
	if !ok {
		ws = models.NewProjectWorkspace(projectID)
		r.workspaces[projectID] = ws
	}
	return ws
}

// RegisterAgent claims the workspace slot for workerId and tracks its task
// and agent type. It does not claim any files; claims happen implicitly as
// the worker's tool calls touch paths via UpdateFileMetadata.
func (r *Registry) RegisterAgent(projectID, workerID, taskID string, agentType models.AgentType) {
	ws := r.workspaceFor(projectID)
	r.mu.Lock()
	defer r.mu.Unlock()
	ws.Workers[workerID] = models.RegisteredWorker{WorkerID: workerID, TaskID: taskID, AgentType: agentType}
}

// UnregisterAgent removes workerId from the registered worker set and
// releases every file it had claimed. success/errorMessage are accepted for
// symmetry with the spec's operation signature but are not stored here;
// callers that need an audit trail log them through providerhealth/logger.
func (r *Registry) UnregisterAgent(projectID, workerID string, success bool, errorMessage string) {
	ws := r.workspaceFor(projectID)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(ws.Workers, workerID)
	for path, owner := range ws.ClaimedFiles {
		if owner == workerID {
			delete(ws.ClaimedFiles, path)
		}
	}
}

// UpdateFileMetadata records filePath's purpose, the task responsible for
// it, and whether the task created it (vs. modified an existing file). It
// also claims filePath for taskID's worker, if one is registered for it,
// and marks the file present.
func (r *Registry) UpdateFileMetadata(projectID, filePath, purpose, taskID string, isCreation bool) {
	ws := r.workspaceFor(projectID)
	r.mu.Lock()
	defer r.mu.Unlock()
	ws.FilesPresent[filePath] = true
	ws.FileMetadata[filePath] = models.FileMetadata{Purpose: purpose, TaskID: taskID, IsCreated: isCreation}
	for workerID, w := range ws.Workers {
		if w.TaskID == taskID {
			ws.ClaimedFiles[filePath] = workerID
		}
	}
}

// InferFilePurpose makes a best-effort guess at a file's role from its path
// and extension, used when a tool call writes a file the plan didn't
// describe. plan, if non-nil, is checked first for a matching step.
func InferFilePurpose(filePath string, plan *models.Plan) string {
	if plan != nil {
		for _, step := range plan.Steps {
			for _, f := range step.FilesToCreate {
				if f == filePath {
					return step.Title
				}
			}
			for _, f := range step.FilesToModify {
				if f == filePath {
					return step.Title
				}
			}
		}
	}

	base := filepath.Base(filePath)
	switch {
	case strings.HasSuffix(base, "_test.go"), strings.Contains(base, ".test."):
		return "test"
	case strings.HasSuffix(base, ".md"):
		return "documentation"
	case strings.Contains(filePath, "config"):
		return "configuration"
	default:
		return "implementation"
	}
}

// ClaimedFiles returns the set of file paths currently claimed by an active
// worker in projectID.
func (r *Registry) ClaimedFiles(projectID string) map[string]bool {
	ws := r.workspaceFor(projectID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(ws.ClaimedFiles))
	for path := range ws.ClaimedFiles {
		out[path] = true
	}
	return out
}

// ProjectStructureHints scans root and returns relative paths of every
// source file outside the usual noise directories, for the Planner's
// planner.Request.ProjectStructureHints field (spec §4.4). A scan failure
// yields an empty slice rather than an error: a missing hint degrades the
// plan's awareness of existing structure, it doesn't block planning.
func ProjectStructureHints(root string) []string {
	result, err := fileutil.ScanDirectory(root, fileutil.ScanOptions{
		Recursive:   true,
		ExcludeDirs: []string{".git", "node_modules", "vendor", ".kobold"},
	})
	if err != nil {
		return nil
	}

	hints := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			rel = f
		}
		hints = append(hints, rel)
	}
	return hints
}

// FilesWithMetadata returns a copy of projectID's file metadata map.
func (r *Registry) FilesWithMetadata(projectID string) map[string]models.FileMetadata {
	ws := r.workspaceFor(projectID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]models.FileMetadata, len(ws.FileMetadata))
	for path, meta := range ws.FileMetadata {
		out[path] = meta
	}
	return out
}
