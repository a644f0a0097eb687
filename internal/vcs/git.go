// Package vcs exposes the narrow git surface the Supervisor needs to commit
// a worker's completed task: stage, commit, and read back what changed.
// Branch creation, merge strategy and rollback UX belong to the git
// collaborator this package only calls into, never owns.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts process execution so tests can stub git without a
// real repository on disk.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, string(out))
	}
	return string(out), nil
}

// Repository is the version-control interface consumed by the Supervisor
// (spec §6): isRepository, currentBranch, stageAll, commit, lastCommitSha,
// filesFromCommit. No branching, merging, or checkpoint/rollback policy
// lives here — that UX is explicitly out of scope.
type Repository interface {
	IsRepository(ctx context.Context, dir string) bool
	CurrentBranch(ctx context.Context, dir string) (string, error)
	StageAll(ctx context.Context, dir string) error
	Commit(ctx context.Context, dir, message, authorName string) (string, error)
	LastCommitSha(ctx context.Context, dir string) (string, error)
	FilesFromCommit(ctx context.Context, dir, sha string) ([]string, error)
	HeadSha(ctx context.Context, dir string) (string, error)
}

// GitRepository implements Repository by shelling out to the git binary.
type GitRepository struct {
	Runner CommandRunner
}

// NewGitRepository constructs a GitRepository using the real process runner.
func NewGitRepository() *GitRepository {
	return &GitRepository{Runner: ExecRunner{}}
}

func (g *GitRepository) runner() CommandRunner {
	if g.Runner != nil {
		return g.Runner
	}
	return ExecRunner{}
}

// IsRepository reports whether dir is inside a git working tree.
func (g *GitRepository) IsRepository(ctx context.Context, dir string) bool {
	out, err := g.runner().Run(ctx, dir, "git", "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// CurrentBranch returns the name of the checked-out branch.
func (g *GitRepository) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.runner().Run(ctx, dir, "git", "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// StageAll runs `git add -A` so the worker's changes (created, modified and
// deleted files) are all staged ahead of Commit.
func (g *GitRepository) StageAll(ctx context.Context, dir string) error {
	if _, err := g.runner().Run(ctx, dir, "git", "add", "-A"); err != nil {
		return fmt.Errorf("stage all: %w", err)
	}
	return nil
}

// Commit creates a commit with the given message and author name, returning
// the resulting sha. Returns an error (never a zero-file commit) if nothing
// is staged — callers should check for changes before calling Commit.
func (g *GitRepository) Commit(ctx context.Context, dir, message, authorName string) (string, error) {
	author := fmt.Sprintf("%s <%s@kobold.local>", authorName, sanitizeEmailLocal(authorName))
	if _, err := g.runner().Run(ctx, dir, "git", "commit", "--author", author, "-m", message); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return g.LastCommitSha(ctx, dir)
}

// LastCommitSha returns the current HEAD sha.
func (g *GitRepository) LastCommitSha(ctx context.Context, dir string) (string, error) {
	return g.HeadSha(ctx, dir)
}

// HeadSha returns the current HEAD sha, used for pre-task checkpoint sha
// recording (SPEC_FULL §4, grounded on the teacher's git_checkpointer.go).
func (g *GitRepository) HeadSha(ctx context.Context, dir string) (string, error) {
	out, err := g.runner().Run(ctx, dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("head sha: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// FilesFromCommit returns the paths changed by the given commit, relative to
// the repository root. Used to populate TaskRecord.OutputFiles (invariant
// I3: Done => outputFiles equals the set of paths changed in commitSha).
func (g *GitRepository) FilesFromCommit(ctx context.Context, dir, sha string) ([]string, error) {
	out, err := g.runner().Run(ctx, dir, "git", "show", "--name-only", "--pretty=format:", sha)
	if err != nil {
		return nil, fmt.Errorf("files from commit %s: %w", sha, err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func sanitizeEmailLocal(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	s := b.String()
	if s == "" {
		return "kobold"
	}
	return s
}

// CheckpointSha captures HEAD before a worker starts, so a task that leaves
// the tree in a broken state can be diagnosed against a known-good point.
// This is diagnostic metadata only; rollback policy stays with the
// collaborator (SPEC_FULL §4 — supplemented from the teacher's
// git_checkpointer.go, trimmed to the read-only half since branch/rollback
// UX is explicitly out of scope here).
func CheckpointSha(ctx context.Context, repo Repository, dir string) string {
	sha, err := repo.HeadSha(ctx, dir)
	if err != nil {
		return ""
	}
	return sha
}
