package supervisor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/kobold/internal/config"
	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/planner"
	"github.com/harrison/kobold/internal/planstore"
	"github.com/harrison/kobold/internal/provider"
	"github.com/harrison/kobold/internal/workspace"
)

// fakeStore is an in-memory taskStoreLike for tests that never touch disk.
type fakeStore struct {
	tasks      map[string]*models.Task
	order      []string
	walEntries []string
	saveCalls  int
}

func newFakeStore(tasks ...models.Task) *fakeStore {
	fs := &fakeStore{tasks: make(map[string]*models.Task)}
	for i := range tasks {
		t := tasks[i]
		fs.tasks[t.ID] = &t
		fs.order = append(fs.order, t.ID)
	}
	return fs
}

func (f *fakeStore) ReloadPreservingOrder() error { return nil }

func (f *fakeStore) All() []models.Task {
	out := make([]models.Task, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, *f.tasks[id])
	}
	return out
}

func (f *fakeStore) Get(id string) (models.Task, bool) {
	t, ok := f.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *t, true
}

func (f *fakeStore) AppendTransition(id string, prev, next models.TaskStatus, assignedAgent, errMsg string) error {
	f.walEntries = append(f.walEntries, id)
	t, ok := f.tasks[id]
	if !ok {
		return nil
	}
	t.Status = next
	if assignedAgent != "" {
		t.ProviderName = assignedAgent
	}
	t.ErrorMessage = errMsg
	return nil
}

func (f *fakeStore) SetError(id, message string) error {
	if t, ok := f.tasks[id]; ok {
		t.ErrorMessage = message
	}
	return nil
}

func (f *fakeStore) ClearError(id string) error { return f.SetError(id, "") }

func (f *fakeStore) Save() error {
	f.saveCalls++
	return nil
}

func (f *fakeStore) WALIsEmpty() (bool, error) { return true, nil }
func (f *fakeStore) ReplayWAL() error          { return nil }

func (f *fakeStore) SetCommitInfo(taskID, sha string, files []string) {
	if t, ok := f.tasks[taskID]; ok {
		t.CommitSha = sha
		t.OutputFiles = files
	}
}

func (f *fakeStore) SetCheckpointSha(taskID, sha string) {
	if t, ok := f.tasks[taskID]; ok {
		t.CheckpointSha = sha
	}
}

type fakeRepo struct {
	isRepo     bool
	commitSha  string
	headSha    string
	commitErr  error
	files      []string
	staged     bool
}

func (r *fakeRepo) IsRepository(ctx context.Context, dir string) bool { return r.isRepo }
func (r *fakeRepo) CurrentBranch(ctx context.Context, dir string) (string, error) {
	return "main", nil
}
func (r *fakeRepo) StageAll(ctx context.Context, dir string) error {
	r.staged = true
	return nil
}
func (r *fakeRepo) Commit(ctx context.Context, dir, message, author string) (string, error) {
	if r.commitErr != nil {
		return "", r.commitErr
	}
	return r.commitSha, nil
}
func (r *fakeRepo) LastCommitSha(ctx context.Context, dir string) (string, error) {
	return r.commitSha, nil
}
func (r *fakeRepo) FilesFromCommit(ctx context.Context, dir, sha string) ([]string, error) {
	return r.files, nil
}
func (r *fakeRepo) HeadSha(ctx context.Context, dir string) (string, error) {
	return r.headSha, nil
}

// fakeClient drives the worker to a single end_turn response, completing
// whatever plan or plain task it's given in one step. Setting resp returns
// it verbatim instead, for simulating breaker-open/not-configured replies.
type fakeClient struct {
	err  error
	resp *provider.Response
}

func (c *fakeClient) SendMessage(ctx context.Context, providerName string, conversation []provider.Message, tools []provider.ToolDefinition, systemPrompt string) (provider.Response, error) {
	if c.err != nil {
		return provider.Response{}, c.err
	}
	if c.resp != nil {
		return *c.resp, nil
	}
	return provider.Response{StopReason: provider.StopEndTurn, Content: []provider.ContentBlock{{Text: "done"}}}, nil
}

type fakePlanner struct {
	plan    *models.Plan
	err     error
	lastReq planner.Request
	sawReq  bool
}

func (p *fakePlanner) Plan(ctx context.Context, projectID, taskID string, req planner.Request) (*models.Plan, error) {
	p.lastReq = req
	p.sawReq = true
	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

type fakeLog struct{}

func (fakeLog) LogTick(projectID string, readyCount, runningCount int)                    {}
func (fakeLog) LogTaskStart(projectID, taskID, description string)                        {}
func (fakeLog) LogTaskResult(projectID, taskID string, success bool, d time.Duration, e string) {}
func (fakeLog) LogWatchdogTimeout(projectID, taskID string, idleFor time.Duration)         {}
func (fakeLog) LogCircuitBreakerOpen(provider string, consecutiveFailures int)             {}
func (fakeLog) LogCommit(projectID, taskID, sha, subject string)                           {}
func (fakeLog) Warnf(format string, args ...interface{})                                   {}
func (fakeLog) Infof(format string, args ...interface{})                                   {}

func newTestSupervisor(t *testing.T, stores map[string]taskStoreLike, repo *fakeRepo, client *fakeClient, pg *fakePlanner) *Supervisor {
	t.Helper()
	return &Supervisor{
		ProjectID:  "proj-1",
		ProjectDir: t.TempDir(),
		WorkDir:    t.TempDir(),
		Stores:     stores,
		Cfg:        config.DefaultConfig(),
		Workspace:  workspace.NewRegistry(),
		Planner:    pg,
		PlanStore:  planstore.New(t.TempDir()),
		Repo:       repo,
		Client:     client,
		Log:        fakeLog{},
		workers:    make(map[string]*models.Worker),
		taskWorker: make(map[string]string),
		taskArea:   make(map[string]string),
		savers:     make(map[string]*debouncedSaver),
	}
}

func TestTickExecutesReadyTaskAndCommits(t *testing.T) {
	store := newFakeStore(models.Task{
		ID: "t1", Description: "add a thing", Status: models.StatusUnassigned,
		AssignedAgentType: models.AgentGenericCoding, ProjectID: "proj-1",
	})
	repo := &fakeRepo{isRepo: true, commitSha: "abc123", headSha: "base000", files: []string{"a.go"}}
	client := &fakeClient{}

	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, repo, client, nil)

	require.NoError(t, s.Tick(context.Background()))

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusDone, task.Status)
	assert.Equal(t, "abc123", task.CommitSha)
	assert.Equal(t, []string{"a.go"}, task.OutputFiles)
	assert.NotEmpty(t, task.CheckpointSha)
}

func TestTickFailsTaskOnProviderError(t *testing.T) {
	store := newFakeStore(models.Task{
		ID: "t1", Description: "add a thing", Status: models.StatusUnassigned,
		AssignedAgentType: models.AgentGenericCoding, ProjectID: "proj-1",
	})
	repo := &fakeRepo{isRepo: true}
	client := &fakeClient{err: assertError{"boom"}}

	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, repo, client, nil)

	require.NoError(t, s.Tick(context.Background()))

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, task.Status)
	assert.NotEmpty(t, task.ErrorMessage)
}

func TestTickDefersTaskOnCircuitBreakerOpenRatherThanFailing(t *testing.T) {
	store := newFakeStore(models.Task{
		ID: "t1", Description: "add a thing", Status: models.StatusUnassigned,
		AssignedAgentType: models.AgentGenericCoding, ProjectID: "proj-1",
	})
	client := &fakeClient{resp: &provider.Response{
		StopReason: provider.StopNotConfigured,
		Err:        fmt.Errorf("provider %q: %w", "anthropic", provider.ErrCircuitOpen),
	}}

	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, &fakeRepo{}, client, nil)

	require.NoError(t, s.Tick(context.Background()))

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusUnassigned, task.Status)
	assert.Empty(t, s.workers)
	assert.Empty(t, s.taskWorker)
}

func TestTickDefersTaskOnProviderNotConfiguredRatherThanFailing(t *testing.T) {
	store := newFakeStore(models.Task{
		ID: "t1", Description: "add a thing", Status: models.StatusUnassigned,
		AssignedAgentType: models.AgentGenericCoding, ProjectID: "proj-1",
	})
	client := &fakeClient{err: fmt.Errorf("provider %q: %w", "anthropic", provider.ErrProviderNotConfigured)}

	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, &fakeRepo{}, client, nil)

	require.NoError(t, s.Tick(context.Background()))

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusUnassigned, task.Status)
	assert.Empty(t, s.workers)
	assert.Empty(t, s.taskWorker)
}

func TestEnsurePlanPopulatesWorkspaceFilesFromMetadata(t *testing.T) {
	store := newFakeStore(models.Task{
		ID: "t1", Description: "add a thing", Status: models.StatusUnassigned,
		AssignedAgentType: models.AgentGenericCoding, ProjectID: "proj-1",
	})
	client := &fakeClient{}
	pg := &fakePlanner{plan: &models.Plan{
		ProjectID: "proj-1", TaskID: "t1",
		Steps: []models.PlanStep{{Index: 0, Title: "t", Description: "d"}},
	}}

	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, &fakeRepo{}, client, pg)
	s.Workspace.UpdateFileMetadata("proj-1", "b.go", "helper", "t0", false)
	s.Workspace.UpdateFileMetadata("proj-1", "a.go", "entrypoint", "t0", true)

	require.NoError(t, s.Tick(context.Background()))

	require.True(t, pg.sawReq)
	assert.Equal(t, []string{"a.go", "b.go"}, pg.lastReq.WorkspaceFiles)
	assert.Len(t, pg.lastReq.FileMetadata, 2)
}

func TestTickBlocksTaskWithFailedDependency(t *testing.T) {
	store := newFakeStore(
		models.Task{ID: "base", Status: models.StatusFailed, ProjectID: "proj-1"},
		models.Task{ID: "dependent", Status: models.StatusUnassigned, Dependencies: []string{"base"}, ProjectID: "proj-1"},
	)
	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, &fakeRepo{}, &fakeClient{}, nil)

	require.NoError(t, s.Tick(context.Background()))

	dep, ok := store.Get("dependent")
	require.True(t, ok)
	assert.Equal(t, models.StatusBlockedByFailure, dep.Status)
}

func TestTickUnblocksTaskOnceDependencyDone(t *testing.T) {
	store := newFakeStore(
		models.Task{ID: "base", Status: models.StatusDone, ProjectID: "proj-1"},
		models.Task{ID: "dependent", Status: models.StatusBlockedByFailure, Dependencies: []string{"base"}, ProjectID: "proj-1", AssignedAgentType: models.AgentGenericCoding, Description: "do it"},
	)
	repo := &fakeRepo{isRepo: false}
	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, repo, &fakeClient{}, nil)

	require.NoError(t, s.Tick(context.Background()))

	dep, ok := store.Get("dependent")
	require.True(t, ok)
	assert.NotEqual(t, models.StatusBlockedByFailure, dep.Status)
}

func TestTickRecoversOrphanedWorkingTaskToUnassigned(t *testing.T) {
	store := newFakeStore(models.Task{ID: "t1", Status: models.StatusWorking, ProjectID: "proj-1"})
	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, &fakeRepo{}, &fakeClient{}, nil)

	require.NoError(t, s.Tick(context.Background()))

	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusUnassigned, task.Status)
}

func TestRunWatchdogFailsStuckWorker(t *testing.T) {
	store := newFakeStore(models.Task{ID: "t1", Status: models.StatusWorking, ProjectID: "proj-1"})
	s := newTestSupervisor(t, map[string]taskStoreLike{"area-tasks.md": store}, &fakeRepo{}, &fakeClient{}, nil)
	s.taskArea["t1"] = "area-tasks.md"

	old := time.Now().Add(-1 * time.Hour)
	s.workers["w1"] = &models.Worker{ID: "w1", TaskID: "t1", Status: models.WorkerWorking, StartedAt: old}
	s.taskWorker["t1"] = "w1"
	s.Now = func() time.Time { return time.Now() }

	s.runWatchdog(context.Background())

	assert.Equal(t, models.WorkerFailed, s.workers["w1"].Status)
	task, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, task.Status)
}

func TestRetireCompletedWorkersRemovesDoneAndFailed(t *testing.T) {
	s := newTestSupervisor(t, map[string]taskStoreLike{}, &fakeRepo{}, &fakeClient{}, nil)
	s.workers["w1"] = &models.Worker{ID: "w1", TaskID: "t1", Status: models.WorkerDone}
	s.workers["w2"] = &models.Worker{ID: "w2", TaskID: "t2", Status: models.WorkerWorking}
	s.taskWorker["t1"] = "w1"
	s.taskWorker["t2"] = "w2"

	s.retireCompletedWorkers()

	_, stillThere := s.workers["w1"]
	assert.False(t, stillThere)
	_, stillWorking := s.workers["w2"]
	assert.True(t, stillWorking)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
