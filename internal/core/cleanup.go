package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// orphanRemoveConcurrency bounds how many worktree removals the background
// loop runs at once, the way aristath's wave runner bounds task execution.
const orphanRemoveConcurrency = 4

// CleanupConfig controls CleanupManager's behavior.
type CleanupConfig struct {
	AutoCleanup   bool          // default true: RunBackgroundLoop removes the orphan worktrees it finds; CleanupWorkflow does not consult it
	CleanupDelay  time.Duration // grace period before a finished task's worktree is eligible
	KeepFailed    bool          // default true: never remove a Failed task's worktree
	CheckInterval time.Duration // background loop cadence, default 5 min
}

// DefaultCleanupConfig returns the default cleanup settings.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		AutoCleanup:   true,
		CleanupDelay:  0,
		KeepFailed:    true,
		CheckInterval: 5 * time.Minute,
	}
}

// Report summarizes a single cleanup_task/cleanup_workflow pass.
type Report struct {
	Removed []string // worktree paths actually removed
	Skipped []string // worktree paths left alone (not terminal, or kept-failed)
}

// SessionKiller kills a multiplexer session by name. Implemented by Tmux
// (tmux.go); CleanupManager only needs this seam.
type SessionKiller interface {
	KillSession(ctx context.Context, name string) error
}

// CleanupEventKind discriminates CleanupEvent.
type CleanupEventKind int

const (
	CleanupCheckCompleted CleanupEventKind = iota
	CleanupPerformed
	CleanupError
)

// OrphanCounts tallies detected orphans by resource kind.
type OrphanCounts struct {
	Worktrees int
	Branches  int
	Sessions  int
}

// CleanupEvent is emitted by the background loop.
type CleanupEvent struct {
	Kind    CleanupEventKind
	Counts  OrphanCounts // set for CheckCompleted/CleanupPerformed
	Message string       // set for CleanupError
}

// CleanupManager detects and removes orphaned worktrees, branches, and
// multiplexer sessions left behind by crashed or abandoned workflows, and
// performs routine cleanup of a task's worktree once it is finished.
type CleanupManager struct {
	config        CleanupConfig
	git           *GitOps
	sessions      SessionKiller
	worktreeRoot  string
	sessionPrefix string

	events  chan CleanupEvent
	stopped atomic.Bool
}

// NewCleanupManager returns a manager rooted at worktreeRoot, using git for
// worktree/branch operations and sessions (may be nil) to kill multiplexer
// sessions whose name begins with sessionPrefix.
func NewCleanupManager(config CleanupConfig, git *GitOps, sessions SessionKiller, worktreeRoot, sessionPrefix string) *CleanupManager {
	return &CleanupManager{
		config:        config,
		git:           git,
		sessions:      sessions,
		worktreeRoot:  worktreeRoot,
		sessionPrefix: sessionPrefix,
		events:        make(chan CleanupEvent, 20),
	}
}

// Events returns the background loop's outgoing event channel.
func (m *CleanupManager) Events() <-chan CleanupEvent { return m.events }

// CleanupTask removes task's worktree if it is eligible: a no-op if the task
// never got a worktree, a skip if keep_failed and the task Failed, a skip if
// the task is not in a terminal status, otherwise the worktree is removed
// and its branch is preserved for reference.
func (m *CleanupManager) CleanupTask(ctx context.Context, task *Task) (Report, error) {
	if task.WorktreePath == "" {
		return Report{}, nil
	}
	if m.config.KeepFailed && task.Status.Kind == StatusFailed {
		return Report{Skipped: []string{task.WorktreePath}}, nil
	}
	if !task.Status.Finished() {
		return Report{Skipped: []string{task.WorktreePath}}, nil
	}

	if err := m.git.WorktreeRemove(ctx, task.WorktreePath, true); err != nil {
		return Report{}, fmt.Errorf("removing worktree for task %s: %w", task.Name, err)
	}
	return Report{Removed: []string{task.WorktreePath}}, nil
}

// CleanupWorkflow sequences CleanupTask over every task, then additionally
// removes any worktree directory whose name carries stagingPrefix.
func (m *CleanupManager) CleanupWorkflow(ctx context.Context, stagingPrefix string, tasks []*Task) (Report, error) {
	var report Report
	for _, task := range tasks {
		r, err := m.CleanupTask(ctx, task)
		if err != nil {
			return report, err
		}
		report.Removed = append(report.Removed, r.Removed...)
		report.Skipped = append(report.Skipped, r.Skipped...)
	}

	entries, err := os.ReadDir(m.worktreeRoot)
	if err != nil {
		return report, nil
	}
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), stagingPrefix) {
			continue
		}
		path := filepath.Join(m.worktreeRoot, entry.Name())
		if err := m.git.WorktreeRemove(ctx, path, true); err == nil {
			report.Removed = append(report.Removed, path)
		}
	}
	return report, nil
}

// DetectOrphanWorktrees lists every directory under the worktree root whose
// name does not carry any id in knownIDs as a prefix. Substring containment
// would false-positive on short ids embedded anywhere in an unrelated name,
// so matching is on explicit prefixes only.
func (m *CleanupManager) DetectOrphanWorktrees(knownIDs []string) ([]string, error) {
	entries, err := os.ReadDir(m.worktreeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &ExternalError{Op: "read worktree root", Err: err}
	}

	var orphans []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !hasAnyPrefix(entry.Name(), knownIDs) {
			orphans = append(orphans, entry.Name())
		}
	}
	return orphans, nil
}

// DetectOrphanSessions lists multiplexer session names beginning with the
// manager's session prefix that carry none of knownIDs as a prefix of their
// id segment.
func (m *CleanupManager) DetectOrphanSessions(sessionNames []string, knownIDs []string) []string {
	var orphans []string
	for _, name := range sessionNames {
		if !strings.HasPrefix(name, m.sessionPrefix) {
			continue
		}
		if !hasAnyPrefix(strings.TrimPrefix(name, m.sessionPrefix), knownIDs) {
			orphans = append(orphans, name)
		}
	}
	return orphans
}

// DetectOrphanBranches lists branch names matching the given naming pattern
// (a prefix, e.g. "task/") that carry none of knownIDs as a prefix of the
// whole branch name, so known ids include the naming prefix ("task/abc123").
func (m *CleanupManager) DetectOrphanBranches(ctx context.Context, namingPrefix string, knownIDs []string) ([]string, error) {
	branches, err := m.git.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	var orphans []string
	for _, branch := range branches {
		if !strings.HasPrefix(branch, namingPrefix) {
			continue
		}
		if !hasAnyPrefix(branch, knownIDs) {
			orphans = append(orphans, branch)
		}
	}
	return orphans, nil
}

func hasAnyPrefix(name string, ids []string) bool {
	for _, id := range ids {
		if id != "" && strings.HasPrefix(name, id) {
			return true
		}
	}
	return false
}

// RunBackgroundLoop runs the optional periodic orphan-detection loop: every
// config.CheckInterval it detects orphan worktrees (sessions and branches are
// not scanned here; knownIDsFn supplies the current known ids each tick, kept
// as a closure so this package doesn't need to know about a running
// workflow registry), emits CheckCompleted, and — if
// AutoCleanup — removes them and emits CleanupPerformed. Errors are emitted
// as CleanupError and do not stop the loop. Shutdown is cooperative via
// Stop().
func (m *CleanupManager) RunBackgroundLoop(ctx context.Context, knownIDsFn func() []string) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.stopped.Load() {
				return
			}
			m.runOnce(ctx, knownIDsFn())
		}
	}
}

// Stop cooperatively signals RunBackgroundLoop to exit on its next tick.
func (m *CleanupManager) Stop() { m.stopped.Store(true) }

func (m *CleanupManager) runOnce(ctx context.Context, knownIDs []string) {
	orphans, err := m.DetectOrphanWorktrees(knownIDs)
	if err != nil {
		m.events <- CleanupEvent{Kind: CleanupError, Message: err.Error()}
		return
	}

	counts := OrphanCounts{Worktrees: len(orphans)}
	m.events <- CleanupEvent{Kind: CleanupCheckCompleted, Counts: counts}

	if !m.config.AutoCleanup {
		return
	}

	var (
		mu      sync.Mutex
		removed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orphanRemoveConcurrency)
	for _, name := range orphans {
		name := name
		g.Go(func() error {
			path := filepath.Join(m.worktreeRoot, name)
			if err := m.git.WorktreeRemove(gctx, path, true); err != nil {
				m.events <- CleanupEvent{Kind: CleanupError, Message: err.Error()}
				return nil // one failed removal doesn't cancel the rest of the sweep
			}
			mu.Lock()
			removed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	m.events <- CleanupEvent{Kind: CleanupPerformed, Counts: OrphanCounts{Worktrees: removed}}
}
