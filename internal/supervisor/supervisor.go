// Package supervisor implements the Supervisor (Drake) of spec §4.7: the
// per-project scheduler that reloads task state, recovers orphaned tasks,
// replays the write-ahead log, selects and sorts ready tasks, runs a
// stuck-worker watchdog, summons and drives Workers under a concurrency
// cap, and commits completed work.
package supervisor

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/harrison/kobold/internal/config"
	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/planner"
	"github.com/harrison/kobold/internal/planstore"
	"github.com/harrison/kobold/internal/provider"
	"github.com/harrison/kobold/internal/taskstore"
	"github.com/harrison/kobold/internal/telemetry"
	"github.com/harrison/kobold/internal/toolcap"
	"github.com/harrison/kobold/internal/vcs"
	"github.com/harrison/kobold/internal/worker"
	"github.com/harrison/kobold/internal/workspace"
)

// Logger is the narrow seam onto the logger.Logger interface the
// Supervisor drives. Declared here (rather than importing internal/logger)
// so tests can supply a minimal stub.
type Logger interface {
	LogTick(projectID string, readyCount, runningCount int)
	LogTaskStart(projectID, taskID, description string)
	LogTaskResult(projectID, taskID string, success bool, duration time.Duration, errMessage string)
	LogWatchdogTimeout(projectID, taskID string, idleFor time.Duration)
	LogCircuitBreakerOpen(provider string, consecutiveFailures int)
	LogCommit(projectID, taskID, sha, subject string)
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// PlanGenerator is the narrow seam onto the Planner.
type PlanGenerator interface {
	Plan(ctx context.Context, projectID, taskID string, req planner.Request) (*models.Plan, error)
}

// Client is the narrow seam onto the Provider Client.
type Client interface {
	SendMessage(ctx context.Context, providerName string, conversation []provider.Message, tools []provider.ToolDefinition, systemPrompt string) (provider.Response, error)
}

// Supervisor drives one project's task-list files to completion. It owns
// every *-tasks.md area file found under ProjectDir at construction time;
// dependency resolution during ready-task selection spans all of them
// (spec §4.7.1 step 4, "cross-area dependencies").
type Supervisor struct {
	ProjectID  string
	ProjectDir string
	WorkDir    string

	Stores map[string]taskStoreLike // area file path -> store

	Cfg        *config.Config
	ProjectCfg *config.ProjectConfig

	Workspace *workspace.Registry
	Planner   PlanGenerator
	PlanStore *planstore.Store
	Repo      vcs.Repository
	Client    Client
	Log       Logger
	Telemetry *telemetry.Recorder

	workers    map[string]*models.Worker // workerID -> worker
	taskWorker map[string]string         // taskID -> workerID
	taskArea   map[string]string         // taskID -> area path it lives in
	savers     map[string]*debouncedSaver

	nextWorkerID func() string

	Now func() time.Time
}

// taskStoreLike is the narrow seam onto taskstore.Store the Supervisor
// needs, so tests can substitute an in-memory fake without touching disk.
type taskStoreLike interface {
	ReloadPreservingOrder() error
	All() []models.Task
	Get(id string) (models.Task, bool)
	AppendTransition(id string, prev, next models.TaskStatus, assignedAgent, errMsg string) error
	SetError(id, message string) error
	ClearError(id string) error
	Save() error
	WALIsEmpty() (bool, error)
	ReplayWAL() error
}

func (s *Supervisor) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Supervisor) watchdogTimeout() time.Duration {
	if s.ProjectCfg != nil && s.ProjectCfg.Agents.Kobold.Timeout.Duration() > 0 {
		return s.ProjectCfg.Agents.Kobold.Timeout.Duration()
	}
	if s.Cfg != nil && s.Cfg.WatchdogIdleTimeout > 0 {
		return s.Cfg.WatchdogIdleTimeout
	}
	return 15 * time.Minute
}

func (s *Supervisor) concurrencyCap() int {
	if s.Cfg == nil || s.Cfg.MaxConcurrentWorkersPerProject <= 0 {
		return 1 << 30
	}
	return s.Cfg.MaxConcurrentWorkersPerProject
}

func (s *Supervisor) saverFor(path string, store taskStoreLike) *debouncedSaver {
	if sv, ok := s.savers[path]; ok {
		return sv
	}
	interval := 2 * time.Second
	if s.Cfg != nil && s.Cfg.SaveDebounceInterval > 0 {
		interval = s.Cfg.SaveDebounceInterval
	}
	sv := newDebouncedSaver(interval, store.Save, func(err error) {
		if s.Log != nil {
			s.Log.Warnf("debounced save for %s failed: %v", path, err)
		}
	})
	s.savers[path] = sv
	return sv
}

// FlushAndClose drains every pending debounced save (spec §4.7.2 shutdown
// sequence) and checkpoints each store's WAL.
func (s *Supervisor) FlushAndClose() error {
	var firstErr error
	for path, sv := range s.savers {
		if err := sv.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush %s: %w", path, err)
		}
	}
	return firstErr
}

// Tick runs one full scheduling pass (spec §4.7.1 steps 1-8).
func (s *Supervisor) Tick(ctx context.Context) error {
	s.Telemetry.RecordTick(ctx, s.ProjectID)

	if err := s.reloadAndReconcile(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	s.recoverOrphans()

	if err := s.replayWALIfNeeded(); err != nil {
		return fmt.Errorf("wal replay: %w", err)
	}

	ready := s.selectReady()
	taskstore.SortReady(ready)

	s.runWatchdog(ctx)

	running := s.countWorking()
	if s.Log != nil {
		s.Log.LogTick(s.ProjectID, len(ready), running)
	}

	cap := s.concurrencyCap()
	for _, task := range ready {
		if running >= cap {
			break
		}
		s.executeTask(ctx, task)
		running++
	}

	s.retireCompletedWorkers()
	return nil
}

func (s *Supervisor) reloadAndReconcile() error {
	for path, store := range s.Stores {
		if err := store.ReloadPreservingOrder(); err != nil {
			return fmt.Errorf("reload %s: %w", path, err)
		}
	}
	return nil
}

// recoverOrphans implements spec §4.7.1 step 2: a NotInitialized or
// Working task with no live mapped Worker is orphaned.
func (s *Supervisor) recoverOrphans() {
	for path, store := range s.Stores {
		for _, task := range store.All() {
			if task.Status != models.StatusNotInitialized && task.Status != models.StatusWorking {
				continue
			}
			workerID, mapped := s.taskWorker[task.ID]
			if mapped {
				if _, alive := s.workers[workerID]; alive {
					continue
				}
			}

			plan, _ := s.PlanStore.LoadPlan(s.ProjectID, task.ID)
			if plan != nil && plan.Status == models.PlanCompleted {
				_ = store.AppendTransition(task.ID, task.Status, models.StatusDone, task.ProviderName, "")
			} else {
				_ = store.AppendTransition(task.ID, task.Status, models.StatusUnassigned, "", "")
				_ = store.ClearError(task.ID)
			}
			delete(s.taskWorker, task.ID)
			s.saverFor(path, store).Request()
		}
	}
}

func (s *Supervisor) replayWALIfNeeded() error {
	for path, store := range s.Stores {
		empty, err := store.WALIsEmpty()
		if err != nil {
			return fmt.Errorf("check wal empty %s: %w", path, err)
		}
		if empty {
			continue
		}
		if err := store.ReplayWAL(); err != nil {
			return fmt.Errorf("replay wal %s: %w", path, err)
		}
	}
	return nil
}

// selectReady implements spec §4.7.1 step 4: dependency status is computed
// across every area store in the project, not just the candidate's own.
func (s *Supervisor) selectReady() []models.Task {
	depStatus := make(map[string]models.TaskStatus)
	s.taskArea = make(map[string]string)
	for path, store := range s.Stores {
		for _, t := range store.All() {
			depStatus[t.ID] = t.Status
			s.taskArea[t.ID] = path
		}
	}

	var ready []models.Task
	for path, store := range s.Stores {
		for _, task := range store.All() {
			if task.Status != models.StatusUnassigned && task.Status != models.StatusBlockedByFailure {
				continue
			}

			if task.HasFailedDependency(depStatus) {
				if task.Status != models.StatusBlockedByFailure {
					_ = store.AppendTransition(task.ID, task.Status, models.StatusBlockedByFailure, "", "")
					if s.Log != nil {
						s.Log.Warnf("task %s blocked by failed dependency", task.ID)
					}
					s.saverFor(path, store).Request()
				}
				continue
			}

			if !task.IsReady(depStatus) {
				continue
			}

			if task.Status == models.StatusBlockedByFailure {
				_ = store.AppendTransition(task.ID, task.Status, models.StatusUnassigned, "", "")
				s.saverFor(path, store).Request()
				task.Status = models.StatusUnassigned
			}

			ready = append(ready, task)
		}
	}
	return ready
}

func (s *Supervisor) countWorking() int {
	n := 0
	for _, w := range s.workers {
		if w.Status == models.WorkerWorking {
			n++
		}
	}
	return n
}

// runWatchdog implements spec §4.7.1 step 6.
func (s *Supervisor) runWatchdog(ctx context.Context) {
	timeout := s.watchdogTimeout()
	for workerID, w := range s.workers {
		if w.Status != models.WorkerWorking {
			continue
		}
		idle := s.now().Sub(w.IdleSince())
		if idle < timeout {
			continue
		}

		if s.Log != nil {
			s.Log.LogWatchdogTimeout(s.ProjectID, w.TaskID, idle)
		}
		s.Telemetry.RecordWatchdogTimeout(ctx, s.ProjectID)

		w.Status = models.WorkerFailed
		w.ErrorMessage = "stuck: exceeded watchdog idle timeout"

		if w.Plan != nil {
			w.Plan.Status = models.PlanInProgress
			_ = s.PlanStore.SavePlan(w.Plan)
		}

		path := s.taskArea[w.TaskID]
		if store, ok := s.Stores[path]; ok {
			if task, found := store.Get(w.TaskID); found {
				_ = store.AppendTransition(w.TaskID, task.Status, models.StatusFailed, task.ProviderName, w.ErrorMessage)
				s.saverFor(path, store).Request()
			}
		}

		s.Workspace.UnregisterAgent(s.ProjectID, workerID, false, w.ErrorMessage)
		_ = s.PlanStore.DeleteConversationCheckpoint(s.ProjectID, w.TaskID)
	}
}

// executeTask implements spec §4.7.1 step 7 for one ready task.
func (s *Supervisor) executeTask(ctx context.Context, task models.Task) {
	path := s.taskArea[task.ID]
	store, ok := s.Stores[path]
	if !ok {
		return
	}

	providerName := s.Cfg.ResolveProvider(task.ProviderName, string(task.AssignedAgentType))

	if s.Log != nil {
		s.Log.LogTaskStart(s.ProjectID, task.ID, task.Description)
	}
	s.Telemetry.RecordTaskStart(ctx, s.ProjectID, string(task.AssignedAgentType))
	start := s.now()

	w := &models.Worker{
		ID:        s.newWorkerID(),
		TaskID:    task.ID,
		AgentType: task.AssignedAgentType,
		Status:    models.WorkerAssigned,
		StartedAt: start,
	}
	s.workers[w.ID] = w
	s.taskWorker[task.ID] = w.ID
	s.Workspace.RegisterAgent(s.ProjectID, w.ID, task.ID, task.AssignedAgentType)

	if s.Repo != nil {
		task.CheckpointSha = vcs.CheckpointSha(ctx, s.Repo, s.WorkDir)
		if setter, ok := store.(interface{ SetCheckpointSha(taskID, sha string) }); ok {
			setter.SetCheckpointSha(task.ID, task.CheckpointSha)
		}
	}

	_ = store.AppendTransition(task.ID, task.Status, models.StatusWorking, providerName, "")
	s.saverFor(path, store).Request()

	plan, err := s.ensurePlan(ctx, task)
	if err != nil && provider.IsUnavailable(err) {
		s.deferTask(store, path, task, w, providerName, err)
		return
	}

	w.Plan = plan

	toolDispatcher := &toolcap.Dispatcher{
		WorkDir:              s.WorkDir,
		AllowedExternalPaths: s.allowedExternalPaths(),
		Log:                  s.Log,
	}
	runner := &worker.Runner{
		Client:            s.Client,
		ProviderName:      providerName,
		Tools:             toolDispatcher,
		ToolDefs:          toolcap.Definitions(),
		IterationsPerStep: s.Cfg.MaxStepIterations,
		Now:               s.Now,
	}

	ctx = provider.WithAttemptContext(ctx, s.ProjectID, task.ID)

	var runErr error
	if plan != nil {
		runErr = runner.RunPlan(ctx, w, plan)
		_ = s.PlanStore.SavePlan(plan)
	} else {
		runErr = runner.RunPlain(ctx, w, task.Description)
	}

	if runErr != nil && provider.IsUnavailable(runErr) {
		s.deferTask(store, path, task, w, providerName, runErr)
		return
	}

	duration := s.now().Sub(start)

	switch w.Status {
	case models.WorkerDone:
		s.finishDone(ctx, store, path, &task, w, providerName, duration)
	case models.WorkerFailed:
		s.finishFailed(ctx, store, path, &task, w, providerName, duration)
	default:
		// Still Working mid-tick (exhausted step budget, plan left
		// InProgress): sync status but take no terminal action.
		_ = store.AppendTransition(task.ID, models.StatusWorking, models.StatusWorking, providerName, "")
		s.saverFor(path, store).Request()
	}

	_ = runErr
}

// deferTask reverts a task from Working back to Unassigned and forgets its
// worker, for the case where the provider it needs isn't usable right now
// (circuit breaker open, or the task's provider mapping names an adapter
// that was never registered). The task is picked up again by the next
// tick's selectReady once the provider recovers, instead of being marked
// Failed (spec §4.2/§7).
func (s *Supervisor) deferTask(store taskStoreLike, path string, task models.Task, w *models.Worker, providerName string, cause error) {
	if s.Log != nil {
		if errors.Is(cause, provider.ErrCircuitOpen) {
			s.Log.LogCircuitBreakerOpen(providerName, 0)
		} else {
			s.Log.Warnf("task %s deferred, provider %s unavailable: %v", task.ID, providerName, cause)
		}
	}
	_ = store.AppendTransition(task.ID, models.StatusWorking, models.StatusUnassigned, "", "")
	s.saverFor(path, store).Request()
	delete(s.workers, w.ID)
	delete(s.taskWorker, task.ID)
	s.Workspace.UnregisterAgent(s.ProjectID, w.ID, false, "")
}

func (s *Supervisor) finishDone(ctx context.Context, store taskStoreLike, path string, task *models.Task, w *models.Worker, providerName string, duration time.Duration) {
	sha, files := s.commit(ctx, *task)

	updated := *task
	updated.CommitSha = sha
	updated.OutputFiles = files
	updated.ProviderName = providerName
	store2, ok := s.Stores[path]
	if ok {
		_ = store2.AppendTransition(task.ID, models.StatusWorking, models.StatusDone, providerName, "")
		s.putOutputFields(store2, task.ID, sha, files)
	}
	s.saverFor(path, store).RequestImmediate()

	for _, f := range files {
		purpose := workspace.InferFilePurpose(f, w.Plan)
		s.Workspace.UpdateFileMetadata(s.ProjectID, f, purpose, task.ID, false)
	}

	if s.Log != nil {
		s.Log.LogTaskResult(s.ProjectID, task.ID, true, duration, "")
		if sha != "" {
			s.Log.LogCommit(s.ProjectID, task.ID, sha, commitSubjectOf(*task))
		}
	}
	s.Telemetry.RecordTaskResult(ctx, s.ProjectID, string(task.AssignedAgentType), true, duration)
	if sha != "" {
		s.Telemetry.RecordCommit(ctx, s.ProjectID)
	}

	s.Workspace.UnregisterAgent(s.ProjectID, w.ID, true, "")
	_ = s.PlanStore.DeleteConversationCheckpoint(s.ProjectID, task.ID)
}

func (s *Supervisor) finishFailed(ctx context.Context, store taskStoreLike, path string, task *models.Task, w *models.Worker, providerName string, duration time.Duration) {
	_ = store.AppendTransition(task.ID, models.StatusWorking, models.StatusFailed, providerName, w.ErrorMessage)
	s.saverFor(path, store).RequestImmediate()

	if s.Log != nil {
		s.Log.LogTaskResult(s.ProjectID, task.ID, false, duration, w.ErrorMessage)
	}
	s.Telemetry.RecordTaskResult(ctx, s.ProjectID, string(task.AssignedAgentType), false, duration)

	s.Workspace.UnregisterAgent(s.ProjectID, w.ID, false, w.ErrorMessage)
	_ = s.PlanStore.DeleteConversationCheckpoint(s.ProjectID, task.ID)
}

// putOutputFields records commit metadata on any store that implements
// SetCommitInfo (taskstore.Store sets the fields directly, as does the test
// fake); a store without that method is left unchanged.
func (s *Supervisor) putOutputFields(store taskStoreLike, taskID, sha string, files []string) {
	if setter, ok := store.(interface {
		SetCommitInfo(taskID, sha string, files []string)
	}); ok {
		setter.SetCommitInfo(taskID, sha, files)
	}
}

func (s *Supervisor) commit(ctx context.Context, task models.Task) (string, []string) {
	if s.Repo == nil || !s.Repo.IsRepository(ctx, s.WorkDir) {
		return "", nil
	}
	if err := s.Repo.StageAll(ctx, s.WorkDir); err != nil {
		if s.Log != nil {
			s.Log.Warnf("stage all for %s: %v", task.ID, err)
		}
		return "", nil
	}
	author := fmt.Sprintf("Kobold-%s", task.AssignedAgentType)
	sha, err := s.Repo.Commit(ctx, s.WorkDir, buildCommitMessage(task), author)
	if err != nil {
		if s.Log != nil {
			s.Log.Warnf("commit for %s: %v", task.ID, err)
		}
		return "", nil
	}
	files, err := s.Repo.FilesFromCommit(ctx, s.WorkDir, sha)
	if err != nil {
		return sha, nil
	}
	return sha, files
}

func commitSubjectOf(task models.Task) string {
	msg := buildCommitMessage(task)
	for i, r := range msg {
		if r == '\n' {
			return msg[:i]
		}
	}
	return msg
}

func (s *Supervisor) ensurePlan(ctx context.Context, task models.Task) (*models.Plan, error) {
	plan, err := s.PlanStore.LoadPlan(s.ProjectID, task.ID)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		return plan, nil
	}
	if s.Planner == nil {
		return nil, nil
	}

	fileMetadata := s.Workspace.FilesWithMetadata(s.ProjectID)
	req := planner.Request{
		TaskDescription:       task.Description,
		ProjectStructureHints: workspace.ProjectStructureHints(s.WorkDir),
		WorkspaceFiles:        metadataFilePaths(fileMetadata),
		FilesClaimedByOthers:  claimedFilesSlice(s.Workspace.ClaimedFiles(s.ProjectID)),
		FileMetadata:          fileMetadata,
	}
	plan, err = s.Planner.Plan(ctx, s.ProjectID, task.ID, req)
	if err != nil {
		return nil, err
	}
	_ = s.PlanStore.SavePlan(plan)
	return plan, nil
}

func claimedFilesSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	return out
}

// metadataFilePaths lists the workspace's known files so the planner can
// tell the model which files already exist (spec §4.4's "modify-candidates
// only" rule).
func metadataFilePaths(m map[string]models.FileMetadata) []string {
	out := make([]string, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (s *Supervisor) allowedExternalPaths() []string {
	if s.ProjectCfg == nil {
		return nil
	}
	return s.ProjectCfg.AllowedExternalPaths
}

// retireCompletedWorkers implements spec §4.7.1 step 8.
func (s *Supervisor) retireCompletedWorkers() {
	for id, w := range s.workers {
		if w.Status == models.WorkerDone || w.Status == models.WorkerFailed {
			delete(s.workers, id)
			delete(s.taskWorker, w.TaskID)
		}
	}
}

// newWorkerID returns a random version-4 UUID, unless the nextWorkerID
// test seam is set.
func (s *Supervisor) newWorkerID() string {
	if s.nextWorkerID != nil {
		return s.nextWorkerID()
	}
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("worker-%d-%s", len(s.workers)+1, filepath.Base(s.ProjectDir))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
