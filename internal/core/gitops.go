package core

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner abstracts shell command execution so tests can inject a
// fake runner instead of shelling out to a real git binary.
type CommandRunner interface {
	Run(ctx context.Context, command string) (output string, err error)
}

// ShellCommandRunner executes commands via the system shell.
type ShellCommandRunner struct {
	WorkDir string
}

// NewShellCommandRunner returns a CommandRunner that runs real shell commands.
func NewShellCommandRunner(workDir string) *ShellCommandRunner {
	return &ShellCommandRunner{WorkDir: workDir}
}

// Run executes command via sh -c and returns combined stdout/stderr.
func (r *ShellCommandRunner) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// GitOps wraps the git subcommands ConflictResolver needs behind a
// CommandRunner. Merges and conflict extraction are driven through the git
// CLI rather than a native Go git library.
//
// A GitOps is scoped to a single working directory for its whole lifetime;
// ConflictResolver creates one per worktree rather than mutating a shared
// instance's directory between calls.
type GitOps struct {
	Runner  CommandRunner
	WorkDir string
}

// NewGitOps returns a GitOps rooted at workDir that shells out for real via sh -c.
func NewGitOps(workDir string) *GitOps {
	return &GitOps{Runner: NewShellCommandRunner(workDir), WorkDir: workDir}
}

// NewGitOpsWithRunner returns a GitOps backed by an injected runner, for tests.
func NewGitOpsWithRunner(runner CommandRunner, workDir string) *GitOps {
	return &GitOps{Runner: runner, WorkDir: workDir}
}

// WithWorkDir returns a copy of g scoped to a different directory. An
// injected Runner is shared as-is; a ShellCommandRunner is replaced by one
// rooted at workDir, so shelled-out commands run in that directory.
func (g *GitOps) WithWorkDir(workDir string) *GitOps {
	runner := g.Runner
	if _, ok := runner.(*ShellCommandRunner); ok {
		runner = NewShellCommandRunner(workDir)
	}
	return &GitOps{Runner: runner, WorkDir: workDir}
}

func (g *GitOps) run(ctx context.Context, args ...string) (string, error) {
	cmd := "git " + strings.Join(args, " ")
	return g.Runner.Run(ctx, cmd)
}

// BranchExists reports whether branch exists locally.
func (g *GitOps) BranchExists(ctx context.Context, branch string) bool {
	_, err := g.run(ctx, "rev-parse", "--verify", branch)
	return err == nil
}

// CreateBranch creates branch pointing at the current HEAD without checking it out.
func (g *GitOps) CreateBranch(ctx context.Context, branch string) error {
	_, err := g.run(ctx, "branch", branch)
	if err != nil {
		return &ExternalError{Op: "git branch", Err: err}
	}
	return nil
}

// Checkout switches the working directory to branch.
func (g *GitOps) Checkout(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "checkout", branch); err != nil {
		return &ExternalError{Op: "git checkout", Err: err}
	}
	return nil
}

// MergeFastForward fast-forwards the currently checked out branch to ref,
// used by ConflictResolver to advance the staging branch without a merge
// commit when the incoming work is a strict descendant.
func (g *GitOps) MergeFastForward(ctx context.Context, ref string) error {
	if _, err := g.run(ctx, "merge", "--ff-only", ref); err != nil {
		return &ExternalError{Op: "git merge --ff-only", Err: err}
	}
	return nil
}

// RevParse resolves ref to a commit hash.
func (g *GitOps) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := g.run(ctx, "rev-parse", ref)
	if err != nil {
		return "", &ExternalError{Op: "git rev-parse", Err: err}
	}
	return strings.TrimSpace(out), nil
}

// MergeBase returns the merge base of a and b.
func (g *GitOps) MergeBase(ctx context.Context, a, b string) (string, error) {
	out, err := g.run(ctx, "merge-base", a, b)
	if err != nil {
		return "", &ExternalError{Op: "git merge-base", Err: err}
	}
	return strings.TrimSpace(out), nil
}

// IsAncestor reports whether ancestor is an ancestor of descendant.
func (g *GitOps) IsAncestor(ctx context.Context, ancestor, descendant string) bool {
	_, err := g.run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	return err == nil
}

// Merge attempts to merge source into the currently checked out branch,
// without committing (--no-commit --no-ff so a clean fast-forward-able
// merge still produces an index we can inspect). Returns the raw output and
// whether git reported conflicts.
func (g *GitOps) Merge(ctx context.Context, source string) (output string, conflicted bool, err error) {
	out, runErr := g.run(ctx, "merge", "--no-commit", "--no-ff", source)
	if runErr == nil {
		return out, false, nil
	}
	if strings.Contains(out, "CONFLICT") || strings.Contains(out, "Automatic merge failed") {
		return out, true, nil
	}
	return out, false, &ExternalError{Op: "git merge", Err: runErr}
}

// AbortMerge discards an in-progress merge started by Merge.
func (g *GitOps) AbortMerge(ctx context.Context) error {
	_, err := g.run(ctx, "merge", "--abort")
	if err != nil {
		return &ExternalError{Op: "git merge --abort", Err: err}
	}
	return nil
}

// Commit creates a commit with the current index, used both for a clean
// merge commit and for a conflict-free fast-forward commit.
func (g *GitOps) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "commit", "-m", fmt.Sprintf("%q", message)); err != nil {
		return "", &ExternalError{Op: "git commit", Err: err}
	}
	return g.RevParse(ctx, "HEAD")
}

// ConflictedFiles lists the paths git status reports as unmerged (U*, AA, DD).
func (g *GitOps) ConflictedFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, &ExternalError{Op: "git status", Err: err}
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		status := line[:2]
		if status == "UU" || status == "AA" || status == "DD" ||
			status == "AU" || status == "UA" || status == "DU" || status == "UD" {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// ShowStage reads a conflicted file's content at a given merge stage
// (1=base, 2=ours, 3=theirs), mirroring git show :<stage>:<path>. Returns
// ("", false, nil) when that stage doesn't exist for path (e.g. the file is
// new on one side, so the base stage is absent).
func (g *GitOps) ShowStage(ctx context.Context, stage int, path string) (content string, ok bool, err error) {
	out, runErr := g.run(ctx, "show", fmt.Sprintf(":%d:%s", stage, path))
	if runErr != nil {
		return "", false, nil
	}
	return out, true, nil
}

// WorktreeAdd creates a new worktree at path, checking out a fresh branch
// (created from the current HEAD) via `git worktree add -b <branch> <path>`.
func (g *GitOps) WorktreeAdd(ctx context.Context, path, branch string) error {
	if _, err := g.run(ctx, "worktree", "add", "-b", branch, path); err != nil {
		return &ExternalError{Op: "git worktree add", Err: err}
	}
	return nil
}

// WorktreeRemove removes the worktree at path, including its admin
// directory under .git/worktrees. force allows removal of a worktree with
// uncommitted changes (used by the CLI's `reset --force`); the branch
// itself is left alone so the work stays reachable.
func (g *GitOps) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	if _, err := g.run(ctx, args...); err != nil {
		return &ExternalError{Op: "git worktree remove", Err: err}
	}
	return nil
}

// WorktreePrune removes administrative files under .git/worktrees for
// worktrees whose directory no longer exists on disk.
func (g *GitOps) WorktreePrune(ctx context.Context) error {
	if _, err := g.run(ctx, "worktree", "prune"); err != nil {
		return &ExternalError{Op: "git worktree prune", Err: err}
	}
	return nil
}

// DeleteBranch force-deletes a local branch.
func (g *GitOps) DeleteBranch(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "branch", "-D", branch); err != nil {
		return &ExternalError{Op: "git branch -D", Err: err}
	}
	return nil
}

// ListBranches lists local branch names.
func (g *GitOps) ListBranches(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, &ExternalError{Op: "git branch --list", Err: err}
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// CommitAll stages every change in the working directory and commits it
// with message, returning the new commit hash. Used to capture a task
// agent's final state in its worktree before the scheduler records it.
func (g *GitOps) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", &ExternalError{Op: "git add", Err: err}
	}
	if _, err := g.run(ctx, "commit", "-m", fmt.Sprintf("%q", message)); err != nil {
		return "", &ExternalError{Op: "git commit", Err: err}
	}
	return g.RevParse(ctx, "HEAD")
}

// HasUncommittedChanges reports whether the working directory has any
// modification git status would report, used by `reset` to decide whether a
// worktree needs --force.
func (g *GitOps) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, &ExternalError{Op: "git status", Err: err}
	}
	return strings.TrimSpace(out) != "", nil
}

// RepoName derives the repository's display name from its top-level
// directory.
func (g *GitOps) RepoName(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", &ExternalError{Op: "git rev-parse --show-toplevel", Err: err}
	}
	return filepath.Base(strings.TrimSpace(out)), nil
}

// NotesRef is the notes namespace used for per-commit JSON key/value
// attachments (workflow id, task id, phase).
const NotesRef = "refs/notes/zen"

// AddNote attaches content as a git note on commit under NotesRef,
// overwriting any existing note on that commit.
func (g *GitOps) AddNote(ctx context.Context, commit, content string) error {
	if _, err := g.run(ctx, "notes", "--ref="+NotesRef, "add", "-f", "-m", fmt.Sprintf("%q", content), commit); err != nil {
		return &ExternalError{Op: "git notes add", Err: err}
	}
	return nil
}

// ReadNote reads the note attached to commit under NotesRef. Returns
// ("", false, nil) when the commit carries no note.
func (g *GitOps) ReadNote(ctx context.Context, commit string) (content string, ok bool, err error) {
	out, runErr := g.run(ctx, "notes", "--ref="+NotesRef, "show", commit)
	if runErr != nil {
		return "", false, nil
	}
	return out, true, nil
}
