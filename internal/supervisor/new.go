package supervisor

import (
	"fmt"
	"path/filepath"

	"github.com/harrison/kobold/internal/config"
	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/planstore"
	"github.com/harrison/kobold/internal/taskstore"
	"github.com/harrison/kobold/internal/telemetry"
	"github.com/harrison/kobold/internal/vcs"
	"github.com/harrison/kobold/internal/workspace"
)

// Options bundles the construction parameters for New, mirroring the
// teacher's OrchestratorConfig grouping of wiring concerns.
type Options struct {
	ProjectID  string
	ProjectDir string
	WorkDir    string
	Cfg        *config.Config
	ProjectCfg *config.ProjectConfig
	Planner    PlanGenerator
	Client     Client
	Log        Logger
	Telemetry  *telemetry.Recorder
}

// New discovers every "*-tasks.md" area file under opts.ProjectDir, loads
// it into a taskstore.Store, and returns a Supervisor ready to Tick. A
// project with no area files yet is not an error: it simply has nothing
// ready to run until one is added.
func New(opts Options) (*Supervisor, error) {
	matches, err := filepath.Glob(filepath.Join(opts.ProjectDir, "*-tasks.md"))
	if err != nil {
		return nil, fmt.Errorf("glob task area files: %w", err)
	}

	stores := make(map[string]taskStoreLike, len(matches))
	for _, path := range matches {
		store := taskstore.New(path)
		if err := store.Load(); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		stores[path] = store
	}

	telem := opts.Telemetry
	if telem == nil {
		telem = telemetry.NewNoop()
	}

	planDir, err := config.GetPlanStoreDir()
	if err != nil {
		return nil, fmt.Errorf("resolve plan store dir: %w", err)
	}

	return &Supervisor{
		ProjectID:  opts.ProjectID,
		ProjectDir: opts.ProjectDir,
		WorkDir:    opts.WorkDir,
		Stores:     stores,
		Cfg:        opts.Cfg,
		ProjectCfg: opts.ProjectCfg,
		Workspace:  workspace.NewRegistry(),
		Planner:    opts.Planner,
		PlanStore:  planstore.New(planDir),
		Repo:       vcs.NewGitRepository(),
		Client:     opts.Client,
		Log:        opts.Log,
		Telemetry:  telem,
		workers:    make(map[string]*models.Worker),
		taskWorker: make(map[string]string),
		taskArea:   make(map[string]string),
		savers:     make(map[string]*debouncedSaver),
	}, nil
}
