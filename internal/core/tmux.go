package core

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// sanitizeNamePattern matches runs of characters tmux session names should
// not carry unsanitized (anything other than lowercase alphanumerics).
var sanitizeNamePattern = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeForSession lowercases name and collapses non-alphanumeric runs
// into a single hyphen; branch and session names share this rule.
func SanitizeForSession(name string) string {
	lower := strings.ToLower(name)
	sanitized := sanitizeNamePattern.ReplaceAllString(lower, "-")
	return strings.Trim(sanitized, "-")
}

// SessionName derives a multiplexer session name for a task:
// "zen_<sanitized>_<short_id>".
func SessionName(taskName string, id TaskID) string {
	return fmt.Sprintf("zen_%s_%s", SanitizeForSession(taskName), id.Short())
}

// Tmux wraps the terminal-multiplexer operations the core consumes, shelled
// out through the same CommandRunner abstraction as GitOps. The core only
// consumes create/kill/capture/attach operations; there is no in-process
// multiplexer library to bind to.
type Tmux struct {
	Runner CommandRunner
}

// NewTmux returns a Tmux that shells out for real via sh -c.
func NewTmux() *Tmux {
	return &Tmux{Runner: NewShellCommandRunner("")}
}

// NewTmuxWithRunner returns a Tmux backed by an injected runner, for tests.
func NewTmuxWithRunner(runner CommandRunner) *Tmux {
	return &Tmux{Runner: runner}
}

func (t *Tmux) run(ctx context.Context, args ...string) (string, error) {
	return t.Runner.Run(ctx, "tmux "+strings.Join(args, " "))
}

// CreateSession starts session running command inside cwd, detached, with
// remain-on-exit set so the pane survives the command exiting: completion
// detection reads the dead pane's exit status, and the scrollback stays
// inspectable after the agent is gone.
func (t *Tmux) CreateSession(ctx context.Context, session, cwd, command string) error {
	_, err := t.run(ctx, "new-session", "-d", "-s", session, "-c", cwd, fmt.Sprintf("%q", command))
	if err != nil {
		return &ExternalError{Op: "tmux new-session", Err: err}
	}
	// Keep session alive when command exits.
	_, _ = t.run(ctx, "set-option", "-t", session, "remain-on-exit", "on")
	return nil
}

// KillSession destroys session, which kills both the multiplexer session
// and whatever process it was running. Locking a session keeps it; only
// deletion kills it.
func (t *Tmux) KillSession(ctx context.Context, session string) error {
	_, err := t.run(ctx, "kill-session", "-t", session)
	if err != nil {
		return &ExternalError{Op: "tmux kill-session", Err: err}
	}
	return nil
}

// CapturePane returns the full scrollback of session's active pane,
// escape sequences included (-e).
func (t *Tmux) CapturePane(ctx context.Context, session string) (string, error) {
	out, err := t.run(ctx, "capture-pane", "-t", session, "-p", "-e")
	if err != nil {
		return "", &ExternalError{Op: "tmux capture-pane", Err: err}
	}
	return out, nil
}

// CaptureLastLines returns the last n lines of session's active pane.
func (t *Tmux) CaptureLastLines(ctx context.Context, session string, n int) (string, error) {
	out, err := t.run(ctx, "capture-pane", "-t", session, "-p", "-S", fmt.Sprintf("-%d", n))
	if err != nil {
		return "", &ExternalError{Op: "tmux capture-pane", Err: err}
	}
	return out, nil
}

// SendKeys sends keys to session's active pane. When enter is true, a
// terminating Enter keystroke follows.
func (t *Tmux) SendKeys(ctx context.Context, session, keys string, enter bool) error {
	args := []string{"send-keys", "-t", session, fmt.Sprintf("%q", keys)}
	if enter {
		args = append(args, "Enter")
	}
	if _, err := t.run(ctx, args...); err != nil {
		return &ExternalError{Op: "tmux send-keys", Err: err}
	}
	return nil
}

// ProbeAttached reports whether any client is currently attached to session.
func (t *Tmux) ProbeAttached(ctx context.Context, session string) (bool, error) {
	out, err := t.run(ctx, "list-sessions", "-F", "#{session_name}:#{session_attached}", "-f", fmt.Sprintf("#{==:#{session_name},%s}", session))
	if err != nil {
		return false, &ExternalError{Op: "tmux list-sessions", Err: err}
	}
	return strings.Contains(out, ":1"), nil
}

// ProbeIdle returns session's activity timestamp, reported by the
// multiplexer as a Unix epoch integer.
func (t *Tmux) ProbeIdle(ctx context.Context, session string) (time.Time, error) {
	out, err := t.run(ctx, "display-message", "-p", "-t", session, "#{session_activity}")
	if err != nil {
		return time.Time{}, &ExternalError{Op: "tmux display-message", Err: err}
	}
	epoch, parseErr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if parseErr != nil {
		return time.Time{}, &ExternalError{Op: "parse session_activity", Err: parseErr}
	}
	return time.Unix(epoch, 0), nil
}

// PaneDead reports whether session's pane process has exited, and with what
// status. Relies on remain-on-exit (set by CreateSession): without it the
// whole session vanishes on exit and the probe errors instead.
func (t *Tmux) PaneDead(ctx context.Context, session string) (bool, int, error) {
	out, err := t.run(ctx, "display-message", "-p", "-t", session, "#{pane_dead}:#{pane_dead_status}")
	if err != nil {
		return false, 0, &ExternalError{Op: "tmux display-message", Err: err}
	}
	dead, status, _ := strings.Cut(strings.TrimSpace(out), ":")
	if dead != "1" {
		return false, 0, nil
	}
	exitCode := 0
	if status != "" {
		if parsed, parseErr := strconv.Atoi(status); parseErr == nil {
			exitCode = parsed
		}
	}
	return true, exitCode, nil
}

// ListSessions lists every live session name.
func (t *Tmux) ListSessions(ctx context.Context) ([]string, error) {
	out, err := t.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		// tmux exits non-zero with "no server running" when there are no
		// sessions at all; that is an empty list, not an error.
		if strings.Contains(out, "no server running") || strings.Contains(err.Error(), "no server running") {
			return nil, nil
		}
		return nil, &ExternalError{Op: "tmux list-sessions", Err: err}
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

// AttachCommand returns the shell command that attaches to session,
// switching to it via a popup when already inside a tmux session (detected
// by the caller checking $TMUX) rather than nesting a client inside a
// client.
func (t *Tmux) AttachCommand(session string, insideTmux bool) string {
	if insideTmux {
		return fmt.Sprintf("tmux switch-client -t %s", session)
	}
	return fmt.Sprintf("tmux attach-session -t %s", session)
}

// tmuxOutputReader adapts a live Tmux session into the core's OutputReader
// seam, so HealthMonitor can scan an agent's pane content the same way it
// would scan any other output source.
type tmuxOutputReader struct {
	tmux    *Tmux
	session string
}

// NewTmuxOutputReader returns an OutputReader backed by session's captured pane.
func NewTmuxOutputReader(tmux *Tmux, session string) OutputReader {
	return &tmuxOutputReader{tmux: tmux, session: session}
}

func (r *tmuxOutputReader) ReadOutput() (string, error) {
	// Multiplexer probes are wrapped in a per-call timeout (100ms); on
	// timeout the caller skips this pass rather than blocking the
	// health-check loop.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return r.tmux.CapturePane(ctx, r.session)
}
