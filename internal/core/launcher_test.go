package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenhq/zen/internal/claude"
)

// fakeTmuxRunner is fakeGitRunner's twin for tmux commands: both GitOps and
// Tmux are CommandRunner consumers, so AgentLauncher's tests give each its
// own double rather than reusing one runner across two distinct binaries.
type fakeTmuxRunner struct {
	responses map[string][]fakeResponse
	calls     []string
}

func newFakeTmuxRunner() *fakeTmuxRunner {
	return &fakeTmuxRunner{responses: make(map[string][]fakeResponse)}
}

func (f *fakeTmuxRunner) on(command, output string, err error) {
	f.responses[command] = append(f.responses[command], fakeResponse{output: output, err: err})
}

func (f *fakeTmuxRunner) Run(_ context.Context, command string) (string, error) {
	f.calls = append(f.calls, command)
	queue := f.responses[command]
	if len(queue) == 0 {
		return "", fmt.Errorf("fakeTmuxRunner: no response configured for %q", command)
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[command] = queue[1:]
	}
	return resp.output, resp.err
}

func newTestLauncher(gitRunner *fakeGitRunner, tmuxRunner *fakeTmuxRunner) *AgentLauncher {
	return NewAgentLauncher(
		NewGitOpsWithRunner(gitRunner, "/repo"),
		NewTmuxWithRunner(tmuxRunner),
		&claude.Invoker{ClaudePath: "claude"},
		"/repo/.zen/worktrees",
	)
}

func TestAgentLauncher_Launch_CreatesWorktreeAndSession(t *testing.T) {
	gitRunner := newFakeGitRunner()
	tmuxRunner := newFakeTmuxRunner()
	launcher := newTestLauncher(gitRunner, tmuxRunner)
	task := NewTask("fix-login", "fix the login flow")

	// The worktree path and session name both derive from the task's
	// randomly generated ID, so responses are registered after the task
	// exists rather than with fixed literals.
	session := SessionName(task.Name, task.ID)
	worktreePath := "/repo/.zen/worktrees/fix-login-" + task.ID.Short()

	gitRunner.on("git config user.name", "Ada Lovelace\n", nil)
	gitRunner.on("git rev-parse --verify ada-lovelace/fix-login", "", fmt.Errorf("unknown revision"))
	gitRunner.on("git worktree add -b ada-lovelace/fix-login "+worktreePath, "", nil)
	tmuxRunner.on(fmt.Sprintf("tmux new-session -d -s %s -c %s %q",
		session, worktreePath, `claude -p "fix the login flow" --output-format json`), "", nil)
	tmuxRunner.on("tmux set-option -t "+session+" remain-on-exit on", "", nil)

	launched, err := launcher.Launch(context.Background(), task)

	require.NoError(t, err)
	require.NotNil(t, launched)
	assert.NotNil(t, launched.Output)
	assert.NotNil(t, launched.Wait)
	assert.Equal(t, "ada-lovelace/fix-login", task.BranchName)
	assert.Equal(t, worktreePath, task.WorktreePath)
	assert.Contains(t, tmuxRunner.calls, "tmux set-option -t "+session+" remain-on-exit on")
}

func TestAgentLauncher_Launch_DeletesStaleBranchBeforeWorktreeAdd(t *testing.T) {
	gitRunner := newFakeGitRunner()
	task := NewTask("retry-me", "retry the flaky step")
	branch := "ada-lovelace/retry-me"
	worktreePath := "/repo/.zen/worktrees/retry-me-" + task.ID.Short()
	session := SessionName(task.Name, task.ID)

	gitRunner.on("git config user.name", "Ada Lovelace\n", nil)
	gitRunner.on("git rev-parse --verify "+branch, "deadbeef\n", nil)
	gitRunner.on("git branch -D "+branch, "", nil)
	gitRunner.on("git worktree add -b "+branch+" "+worktreePath, "", nil)
	tmuxRunner := newFakeTmuxRunner()
	tmuxRunner.on(fmt.Sprintf("tmux new-session -d -s %s -c %s %q",
		session, worktreePath, `claude -p "retry the flaky step" --output-format json`), "", nil)
	tmuxRunner.on("tmux set-option -t "+session+" remain-on-exit on", "", nil)

	launcher := newTestLauncher(gitRunner, tmuxRunner)
	_, err := launcher.Launch(context.Background(), task)

	require.NoError(t, err)
	assert.Contains(t, gitRunner.calls, "git branch -D "+branch)
}

func TestAgentLauncher_WaitForExit_ReturnsPaneExitStatus(t *testing.T) {
	tmuxRunner := newFakeTmuxRunner()
	probe := "tmux display-message -p -t zen_wait_test #{pane_dead}:#{pane_dead_status}"
	tmuxRunner.on(probe, "0:\n", nil)  // still running on the first poll
	tmuxRunner.on(probe, "1:3\n", nil) // dead with exit status 3 on the second

	launcher := newTestLauncher(newFakeGitRunner(), tmuxRunner)
	launcher.PollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	exitCode, err := launcher.waitForExit(ctx, "zen_wait_test")

	require.NoError(t, err)
	assert.Equal(t, 3, exitCode)
}

func TestAgentLauncher_WaitForExit_ErrorsOnceSessionIsGone(t *testing.T) {
	// No probe responses configured: every poll errors, as it would once the
	// session has been killed out from under the watcher.
	launcher := newTestLauncher(newFakeGitRunner(), newFakeTmuxRunner())
	launcher.PollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := launcher.waitForExit(ctx, "zen_gone")

	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestAgentLauncher_WaitForExit_StopsOnContextCancel(t *testing.T) {
	tmuxRunner := newFakeTmuxRunner()
	probe := "tmux display-message -p -t zen_slow #{pane_dead}:#{pane_dead_status}"
	tmuxRunner.on(probe, "0:\n", nil) // queue tail repeats: always still running

	launcher := newTestLauncher(newFakeGitRunner(), tmuxRunner)
	launcher.PollInterval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := launcher.waitForExit(ctx, "zen_slow")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAgentLauncher_LastCommit_ResolvesWorktreeHead(t *testing.T) {
	gitRunner := newFakeGitRunner()
	gitRunner.on("git rev-parse HEAD", "c0ffee\n", nil)
	tmuxRunner := newFakeTmuxRunner()
	launcher := newTestLauncher(gitRunner, tmuxRunner)

	task := NewTask("done-task", "already finished")
	task.WorktreePath = "/repo/.zen/worktrees/done-task-abc"

	commit, err := launcher.LastCommit(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, "c0ffee", commit)
}

func TestAgentLauncher_LastCommit_ErrorsWithoutWorktree(t *testing.T) {
	launcher := newTestLauncher(newFakeGitRunner(), newFakeTmuxRunner())
	task := NewTask("no-worktree", "never launched")

	_, err := launcher.LastCommit(context.Background(), task)

	assert.Error(t, err)
}

func TestBranchNameFor_SanitizesAndPrefixesWithGitUser(t *testing.T) {
	gitRunner := newFakeGitRunner()
	gitRunner.on("git config user.name", "Grace Hopper\n", nil)
	ops := NewGitOpsWithRunner(gitRunner, "/repo")
	task := NewTask("Add OAuth Support!!", "")

	branch := BranchNameFor(context.Background(), ops, task)

	assert.Equal(t, "grace-hopper/add-oauth-support", branch)
}
