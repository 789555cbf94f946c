package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeForSession_LowercasesAndCollapsesRuns(t *testing.T) {
	assert.Equal(t, "add-user-auth", SanitizeForSession("Add User_Auth!!"))
}

func TestSessionName_MatchesNamingPattern(t *testing.T) {
	id := NewTaskID()
	name := SessionName("Fix Login Bug", id)
	assert.Equal(t, fmt.Sprintf("zen_fix-login-bug_%s", id.Short()), name)
}

func TestTmuxCreateSession_RunsNewSessionDetachedWithRemainOnExit(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on(`tmux new-session -d -s zen_foo -c /wt "claude --headless"`, "", nil)
	runner.on("tmux set-option -t zen_foo remain-on-exit on", "", nil)
	tmux := NewTmuxWithRunner(runner)

	err := tmux.CreateSession(context.Background(), "zen_foo", "/wt", "claude --headless")
	require.NoError(t, err)
	assert.Contains(t, runner.calls, "tmux set-option -t zen_foo remain-on-exit on")
}

func TestTmuxCreateSession_SucceedsEvenIfRemainOnExitFails(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on(`tmux new-session -d -s zen_foo -c /wt "claude --headless"`, "", nil)
	// No set-option response registered: the fake errors, and CreateSession
	// must not care.
	tmux := NewTmuxWithRunner(runner)

	err := tmux.CreateSession(context.Background(), "zen_foo", "/wt", "claude --headless")
	require.NoError(t, err)
}

func TestTmuxCapturePane_IncludesEscapeSequences(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on("tmux capture-pane -t zen_foo -p -e", "agent output\n", nil)
	tmux := NewTmuxWithRunner(runner)

	out, err := tmux.CapturePane(context.Background(), "zen_foo")
	require.NoError(t, err)
	assert.Equal(t, "agent output\n", out)
}

func TestTmuxPaneDead_ParsesDeadFlagAndExitStatus(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantDead   bool
		wantStatus int
	}{
		{"still running", "0:\n", false, 0},
		{"dead with zero status", "1:0\n", true, 0},
		{"dead with non-zero status", "1:137\n", true, 137},
		{"dead with missing status", "1:\n", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeGitRunner()
			runner.on("tmux display-message -p -t zen_foo #{pane_dead}:#{pane_dead_status}", tt.output, nil)
			tmux := NewTmuxWithRunner(runner)

			dead, status, err := tmux.PaneDead(context.Background(), "zen_foo")
			require.NoError(t, err)
			assert.Equal(t, tt.wantDead, dead)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestTmuxPaneDead_ErrorsWhenSessionIsGone(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on("tmux display-message -p -t zen_gone #{pane_dead}:#{pane_dead_status}", "", fmt.Errorf("can't find session"))
	tmux := NewTmuxWithRunner(runner)

	_, _, err := tmux.PaneDead(context.Background(), "zen_gone")
	assert.Error(t, err)
}

func TestTmuxProbeAttached_TrueWhenAttachedFlagSet(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on(`tmux list-sessions -F #{session_name}:#{session_attached} -f #{==:#{session_name},zen_foo}`, "zen_foo:1\n", nil)
	tmux := NewTmuxWithRunner(runner)

	attached, err := tmux.ProbeAttached(context.Background(), "zen_foo")
	require.NoError(t, err)
	assert.True(t, attached)
}

func TestTmuxProbeIdle_ParsesEpochSeconds(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on("tmux display-message -p -t zen_foo #{session_activity}", "1700000000\n", nil)
	tmux := NewTmuxWithRunner(runner)

	ts, err := tmux.ProbeIdle(context.Background(), "zen_foo")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0), ts)
}

func TestTmuxListSessions_EmptyWhenNoServerRunning(t *testing.T) {
	runner := newFakeGitRunner()
	runner.on("tmux list-sessions -F #{session_name}", "no server running on /tmp/tmux-0/default", fmt.Errorf("exit status 1"))
	tmux := NewTmuxWithRunner(runner)

	names, err := tmux.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTmuxAttachCommand_UsesSwitchClientWhenAlreadyInsideTmux(t *testing.T) {
	tmux := NewTmuxWithRunner(newFakeGitRunner())
	assert.Equal(t, "tmux switch-client -t zen_foo", tmux.AttachCommand("zen_foo", true))
	assert.Equal(t, "tmux attach-session -t zen_foo", tmux.AttachCommand("zen_foo", false))
}
