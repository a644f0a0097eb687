// Package registry implements the Orchestrator Registry of SPEC_FULL §4:
// one Supervisor per project, ticked independently, with an aggregated
// snapshot for operator visibility (grounded on the teacher's
// models.NewExecutionResult / Orchestrator.aggregateResults).
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrison/kobold/internal/models"
)

// Logger is the narrow seam the Registry drives.
type Logger interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// Supervisor is the narrow seam onto supervisor.Supervisor the Registry
// needs, so tests can substitute an in-memory fake.
type Supervisor interface {
	Tick(ctx context.Context) error
	FlushAndClose() error
}

// ProjectSnapshot is one project's counts, read from its area stores at the
// moment Snapshot is called, independent of the per-tick log lines
// (SPEC_FULL §4, "execution summary aggregation").
type ProjectSnapshot struct {
	ProjectID string
	Done      int
	Failed    int
	Blocked   int
	InFlight  int
	LastError string
}

// TaskLister is the narrow seam the Registry uses to build a snapshot
// without depending on taskstore.Store directly.
type TaskLister interface {
	All() []models.Task
}

// entry bundles one project's Supervisor with however many area stores it
// owns, so Snapshot can read status without the Registry re-deriving the
// Supervisor's internal per-area bookkeeping.
type entry struct {
	supervisor Supervisor
	stores     []TaskLister
}

// Registry owns one Supervisor per project and routes ticks to them
// (SPEC_FULL §5, internal/registry). It is the top-level type cmd/kobold
// drives from the external ticker.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	Log     Logger
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds or replaces the Supervisor for projectID. stores is the set
// of area-file Task Stores the Supervisor reads, used only for Snapshot.
func (r *Registry) Register(projectID string, sup Supervisor, stores ...TaskLister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[projectID] = &entry{supervisor: sup, stores: stores}
}

// Unregister removes a project, flushing its Supervisor's pending saves
// first. Safe to call on an unknown projectID.
func (r *Registry) Unregister(projectID string) error {
	r.mu.Lock()
	e, ok := r.entries[projectID]
	if ok {
		delete(r.entries, projectID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.supervisor.FlushAndClose()
}

// Tick runs one Supervisor tick for projectID. Returns an error if
// projectID is not registered.
func (r *Registry) Tick(ctx context.Context, projectID string) error {
	r.mu.Lock()
	e, ok := r.entries[projectID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: unknown project %q", projectID)
	}
	return e.supervisor.Tick(ctx)
}

// TickAll ticks every registered project. One project's error is logged and
// does not block the others — the graceful-degradation pattern the teacher
// applies across its hooks (a stuck project should not starve its peers).
func (r *Registry) TickAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Tick(ctx, id); err != nil {
			if r.Log != nil {
				r.Log.Warnf("tick %s: %v", id, err)
			}
		}
	}
}

// Snapshot aggregates every registered project's current task-status
// counts, independent of the per-tick log lines.
func (r *Registry) Snapshot() []ProjectSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ProjectSnapshot, 0, len(r.entries))
	for id, e := range r.entries {
		snap := ProjectSnapshot{ProjectID: id}
		for _, store := range e.stores {
			for _, t := range store.All() {
				switch t.Status {
				case models.StatusDone:
					snap.Done++
				case models.StatusFailed:
					snap.Failed++
				case models.StatusBlockedByFailure:
					snap.Blocked++
				case models.StatusWorking:
					snap.InFlight++
				}
				if t.ErrorMessage != "" {
					snap.LastError = t.ErrorMessage
				}
			}
		}
		out = append(out, snap)
	}
	return out
}

// FlushAll flushes every registered project's Supervisor, for use during
// process shutdown (SPEC_FULL §4, graceful shutdown).
func (r *Registry) FlushAll() error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		if err := e.supervisor.FlushAndClose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
