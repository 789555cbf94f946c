package core

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/zenhq/zen/internal/claude"
)

// agentExitPollInterval is how often a launched agent's session is probed
// for process exit.
const agentExitPollInterval = 2 * time.Second

// agentProbeTimeout bounds a single multiplexer probe.
const agentProbeTimeout = 100 * time.Millisecond

// maxConsecutiveProbeFailures is how many probe failures in a row mean the
// session itself is gone rather than momentarily unresponsive.
const maxConsecutiveProbeFailures = 5

// AgentLauncher is the production TaskLauncher/CommitResolver: it stands up
// a git worktree and branch for the task, launches a multiplexer session
// running the headless agent invocation inside it, and reads the worktree's
// final commit back out once the agent exits. The agent binary and the
// terminal multiplexer are both external processes; this type is where the
// core wires them together into a runnable system.
type AgentLauncher struct {
	Repo         *GitOps
	Tmux         *Tmux
	Invoker      *claude.Invoker
	WorktreeRoot string

	// PollInterval overrides agentExitPollInterval; tests shrink it.
	PollInterval time.Duration
}

// NewAgentLauncher wires repo, tmux, and invoker together. worktreeRoot is
// the directory under which per-task worktrees are created.
func NewAgentLauncher(repo *GitOps, tmux *Tmux, invoker *claude.Invoker, worktreeRoot string) *AgentLauncher {
	return &AgentLauncher{Repo: repo, Tmux: tmux, Invoker: invoker, WorktreeRoot: worktreeRoot}
}

// branchPrefix resolves to the git user's name, falling back to the OS
// username. Branch names are <git-user-or-system-user>/<sanitized-task-name>.
func branchPrefix(ctx context.Context, repo *GitOps) string {
	if name, err := repo.run(ctx, "config", "user.name"); err == nil {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return SanitizeForSession(trimmed)
		}
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return SanitizeForSession(u.Username)
	}
	return "zen"
}

// BranchNameFor computes the branch name for task: lowercase, with
// non-alphanumeric runs collapsed to a single "-".
func BranchNameFor(ctx context.Context, repo *GitOps, task *Task) string {
	return fmt.Sprintf("%s/%s", branchPrefix(ctx, repo), SanitizeForSession(task.Name))
}

// Launch prepares task's worktree and branch, creates a multiplexer session
// inside it running the headless agent invocation against task.Description,
// and returns a handle carrying an OutputReader over that session's pane and
// a Wait that blocks until the agent process exits.
func (l *AgentLauncher) Launch(ctx context.Context, task *Task) (*LaunchedAgent, error) {
	branch := BranchNameFor(ctx, l.Repo, task)

	// WorktreeAdd creates branch and worktree together via `git worktree add
	// -b`; a stray branch left over from a prior failed run (e.g. a
	// restarted task) would make that fail with "branch already exists",
	// so such leftovers are deleted first.
	if l.Repo.BranchExists(ctx, branch) {
		if err := l.Repo.DeleteBranch(ctx, branch); err != nil {
			return nil, &ExternalError{Op: "delete stale task branch", Err: err}
		}
	}

	worktreePath := filepath.Join(l.WorktreeRoot, fmt.Sprintf("%s-%s", SanitizeForSession(task.Name), task.ID.Short()))
	if err := l.Repo.WorktreeAdd(ctx, worktreePath, branch); err != nil {
		return nil, &ExternalError{Op: "add task worktree", Err: err}
	}

	task.WorktreePath = worktreePath
	task.BranchName = branch

	session := SessionName(task.Name, task.ID)
	command := l.agentCommand(task)
	if err := l.Tmux.CreateSession(ctx, session, worktreePath, command); err != nil {
		return nil, &ExternalError{Op: "create agent session", Err: err}
	}

	return &LaunchedAgent{
		Output: NewTmuxOutputReader(l.Tmux, session),
		Wait: func(waitCtx context.Context) (int, error) {
			return l.waitForExit(waitCtx, session)
		},
	}, nil
}

// waitForExit polls session until its pane process dies; remain-on-exit
// keeps the dead pane around so the exit status stays readable. Isolated
// probe failures are tolerated (the multiplexer can be momentarily busy),
// but several in a row mean the session was killed out from under us, which
// is an error, not an exit.
func (l *AgentLauncher) waitForExit(ctx context.Context, session string) (int, error) {
	interval := l.PollInterval
	if interval <= 0 {
		interval = agentExitPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, agentProbeTimeout)
			dead, exitCode, err := l.Tmux.PaneDead(probeCtx, session)
			cancel()
			if err != nil {
				failures++
				if failures >= maxConsecutiveProbeFailures {
					return 0, &ExternalError{Op: "probe agent session", Err: err}
				}
				continue
			}
			failures = 0
			if dead {
				return exitCode, nil
			}
		}
	}
}

// agentCommand builds the headless-invocation shell command: the agent
// binary invoked with a prompt argument and a JSON-output-format flag.
func (l *AgentLauncher) agentCommand(task *Task) string {
	binary := "claude"
	if l.Invoker != nil && l.Invoker.ClaudePath != "" {
		binary = l.Invoker.ClaudePath
	}
	return fmt.Sprintf("%s -p %q --output-format json", binary, task.Description)
}

// LastCommit reads the task's worktree HEAD commit, once the agent session
// has exited. Implements CommitResolver.
func (l *AgentLauncher) LastCommit(ctx context.Context, task *Task) (string, error) {
	if task.WorktreePath == "" {
		return "", &NotFoundError{Kind: "worktree", ID: task.Name}
	}
	worktreeRepo := l.Repo.WithWorkDir(task.WorktreePath)
	commit, err := worktreeRepo.RevParse(ctx, "HEAD")
	if err != nil {
		return "", &ExternalError{Op: "resolve last commit", Err: err}
	}
	return commit, nil
}

// RepoRootFromCwd resolves the repository root the orchestrator operates
// against: the current working directory, unless overridden. Kept as a
// small helper so cmd/zen doesn't duplicate os.Getwd error handling.
func RepoRootFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", &ExternalError{Op: "resolve repo root", Err: err}
	}
	return cwd, nil
}
