package taskstore

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/harrison/kobold/internal/filelock"
	"github.com/harrison/kobold/internal/models"
)

// Store is the Task Store of spec §4.1: it loads and saves the task-list
// file, serves task queries, mutates status in memory, and pairs every
// mutation with the WAL. One Store owns exactly one task-list file — the
// Supervisor holds one Store per project area file.
type Store struct {
	mu    sync.RWMutex
	path  string
	title string
	tasks map[string]*models.Task
	order []string // insertion order, preserved across Load/Save round-trips
	wal   *WAL

	// Now is the clock used to stamp WAL entries; overridable in tests.
	Now func() time.Time
}

// New returns an empty Store bound to path. Call Load to populate it from
// disk, or Save to create the file for the first time.
func New(path string) *Store {
	return &Store{
		path:  path,
		tasks: make(map[string]*models.Task),
		wal:   NewWAL(path),
		Now:   time.Now,
	}
}

// Load parses the task-list file at s.path, replacing in-memory records.
// Unknown status tokens map to Unassigned (handled inside ParseMarkdown /
// ParseTaskStatus). Returns an error if the file's structured dependencies
// contain a cycle — see taskstore.HasCycle.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.tasks = make(map[string]*models.Task)
		s.order = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read task list %s: %w", s.path, err)
	}

	tasks, err := ParseMarkdown(data)
	if err != nil {
		return fmt.Errorf("parse task list %s: %w", s.path, err)
	}
	if err := ValidateTasks(tasks); err != nil {
		return fmt.Errorf("invalid task list %s: %w", s.path, err)
	}
	if HasCycle(tasks) {
		return fmt.Errorf("task list %s contains a circular dependency", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*models.Task, len(tasks))
	s.order = make([]string, 0, len(tasks))
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
		s.order = append(s.order, t.ID)
	}
	return nil
}

// ReloadPreservingOrder re-parses the file exactly as Load does, replacing
// every in-memory record in file order; tasks no longer in the file are
// dropped. Used by the Supervisor's per-tick reload-and-reconcile step
// (spec §4.7.1 step 1), whose worker bookkeeping lives outside the Store
// and is not touched.
func (s *Store) ReloadPreservingOrder() error {
	return s.Load()
}

// All returns a snapshot copy of every task, in file order.
func (s *Store) All() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *t, true
}

// Put inserts or replaces a task record, preserving file order for
// existing ids and appending new ones at the end.
func (s *Store) Put(t models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	copy := t
	s.tasks[t.ID] = &copy
}

// UpdateStatus mutates a task's status (and, if provided, its assigned
// agent/provider) in memory. Per spec §4.1, callers needing crash safety
// must append a WAL entry via AppendTransition (or the WAL directly)
// *before* calling UpdateStatus.
func (s *Store) UpdateStatus(id string, newStatus models.TaskStatus, assignedAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	t.Status = newStatus
	if assignedAgent != "" {
		t.ProviderName = assignedAgent
	}
	if newStatus == models.StatusDone {
		t.ErrorMessage = ""
	}
	return nil
}

// SetError records an error message on a task without changing its status.
func (s *Store) SetError(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}
	t.ErrorMessage = message
	return nil
}

// ClearError removes any error message on a task.
func (s *Store) ClearError(id string) error {
	return s.SetError(id, "")
}

// AppendTransition writes a WAL entry for id's transition from prev to
// next, then mutates the in-memory record — the mandatory WAL-before-memory
// ordering of spec §9.
func (s *Store) AppendTransition(id string, prev, next models.TaskStatus, assignedAgent, errMsg string) error {
	entry := newWALEntry(s.Now(), id, prev, next, assignedAgent, errMsg)
	if err := s.wal.Append(entry); err != nil {
		return fmt.Errorf("append wal transition for %s: %w", id, err)
	}
	if err := s.UpdateStatus(id, next, assignedAgent); err != nil {
		return err
	}
	if errMsg != "" {
		return s.SetError(id, errMsg)
	}
	return nil
}

// Save atomically writes the task-list file, then checkpoints the WAL — in
// that order, per spec §4.1 ("on success, checkpoints WAL").
func (s *Store) Save() error {
	s.mu.RLock()
	data := RenderMarkdown(s.title, s.snapshotLocked())
	s.mu.RUnlock()

	if err := filelock.LockAndWrite(s.path, data); err != nil {
		return fmt.Errorf("save task list %s: %w", s.path, err)
	}
	if err := s.wal.Checkpoint(); err != nil {
		return fmt.Errorf("checkpoint wal for %s: %w", s.path, err)
	}
	return nil
}

// SetTitle sets the heading rendered at the top of the task-list file.
func (s *Store) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Store) snapshotLocked() []models.Task {
	out := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.tasks[id])
	}
	return out
}

// WAL exposes the underlying write-ahead log, e.g. for the Supervisor's
// start-up replay step (spec §4.7.1 step 3).
func (s *Store) WAL() *WAL {
	return s.wal
}

// WALIsEmpty reports whether this store's WAL currently has no entries,
// consulted by the Supervisor before attempting a replay each tick.
func (s *Store) WALIsEmpty() (bool, error) {
	return s.wal.IsEmpty()
}

// SetCommitInfo records the commit sha and changed-file list on a task
// reaching Done (invariant I3), without going through the WAL — the status
// transition itself is what crash-safety protects; commit metadata is
// written alongside it in the same in-memory mutation.
func (s *Store) SetCommitInfo(taskID, sha string, files []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok {
		t.CommitSha = sha
		t.OutputFiles = files
	}
}

// SetCheckpointSha records the pre-task HEAD sha captured just before a
// worker starts, for post-mortem diagnosis of a task that leaves the tree
// broken (SPEC_FULL §4).
func (s *Store) SetCheckpointSha(taskID, sha string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[taskID]; ok {
		t.CheckpointSha = sha
	}
}

// Path returns the task-list file path this store is bound to.
func (s *Store) Path() string {
	return s.path
}

// ReplayWAL applies every WAL entry (in order) to the in-memory task set,
// saves the task-list file, then checkpoints the WAL — spec §4.7.1 step 3
// and testable property "WAL-safety" / scenario 4 (crash recovery).
func (s *Store) ReplayWAL() error {
	entries, err := s.wal.ReadAll()
	if err != nil {
		return fmt.Errorf("read wal for replay: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if _, ok := s.Get(e.TaskID); !ok {
			continue
		}
		if err := s.UpdateStatus(e.TaskID, e.NewStatus, e.AssignedAgent); err != nil {
			return fmt.Errorf("replay wal entry for %s: %w", e.TaskID, err)
		}
		if e.ErrorMessage != "" {
			_ = s.SetError(e.TaskID, e.ErrorMessage)
		}
	}
	return s.Save()
}
