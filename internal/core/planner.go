package core

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zenhq/zen/internal/parser"
)

// DefaultDebounce is the default window for coalescing rapid file changes.
const DefaultDebounce = 1 * time.Second

// PlanEventKind discriminates PlanEvent.
type PlanEventKind int

const (
	PlanFileChanged PlanEventKind = iota
	PlanReplanTriggered
	PlanTasksAdded
	PlanTasksCancelled
)

// PlanEvent is emitted by ReactivePlanner when plan/design files change.
type PlanEvent struct {
	Kind  PlanEventKind
	Path  string   // set for PlanFileChanged
	Tasks []*Task  // set for PlanTasksAdded
	IDs   []TaskID // set for PlanTasksCancelled
}

// PlannerConfig controls what ReactivePlanner watches and how it debounces.
type PlannerConfig struct {
	WatchPaths        []string
	DebounceDuration  time.Duration
	RelevantPatterns  []string
}

// DefaultPlannerConfig watches the conventional planning directory for the
// file suffixes a plan revision touches.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		WatchPaths:       []string{".sop/planning"},
		DebounceDuration: DefaultDebounce,
		RelevantPatterns: []string{"plan.md", "detailed-design.md", parser.CodeTaskSuffix},
	}
}

// TaskDiff is the result of comparing the DAG's current tasks against a
// freshly discovered set: what to add, cancel, or update in place.
//
// Tasks are compared by name, not by id, since ids are regenerated every
// time a .code-task.md file is reparsed; see Design Notes for why this is
// an accepted limitation rather than a bug.
type TaskDiff struct {
	Added    []*Task
	Removed  []TaskID
	Modified []*Task
}

// HasChanges reports whether the diff carries any change at all.
func (d *TaskDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}

// ChangeCount returns the total number of added, removed, and modified tasks.
func (d *TaskDiff) ChangeCount() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// ReactivePlanner watches a repository's planning directory and keeps a
// TaskDAG in sync with the .code-task.md files it finds there, without
// disturbing tasks already running.
type ReactivePlanner struct {
	dag      *TaskDAG
	config   PlannerConfig
	repoPath string
	events   chan PlanEvent

	mu              sync.Mutex
	debounceState   map[string]time.Time
	taskNameToID    map[string]TaskID
}

// NewReactivePlanner returns a planner over dag rooted at repoPath.
func NewReactivePlanner(dag *TaskDAG, config PlannerConfig, repoPath string) *ReactivePlanner {
	return &ReactivePlanner{
		dag:           dag,
		config:        config,
		repoPath:      repoPath,
		events:        make(chan PlanEvent, 100),
		debounceState: make(map[string]time.Time),
		taskNameToID:  make(map[string]TaskID),
	}
}

// NewReactivePlannerWithDefaults returns a planner using DefaultPlannerConfig.
func NewReactivePlannerWithDefaults(dag *TaskDAG, repoPath string) *ReactivePlanner {
	return NewReactivePlanner(dag, DefaultPlannerConfig(), repoPath)
}

// Events returns the planner's outgoing event channel.
func (p *ReactivePlanner) Events() <-chan PlanEvent { return p.events }

// Config returns the planner's configuration.
func (p *ReactivePlanner) Config() PlannerConfig { return p.config }

// WatchPaths returns the paths being watched.
func (p *ReactivePlanner) WatchPaths() []string { return p.config.WatchPaths }

// Dag returns the DAG this planner keeps in sync.
func (p *ReactivePlanner) Dag() *TaskDAG { return p.dag }

// IsRelevantFile reports whether path's filename ends with one of the
// configured patterns.
func (p *ReactivePlanner) IsRelevantFile(path string) bool {
	name := filepath.Base(path)
	if name == "." || name == "/" {
		return false
	}
	for _, pattern := range p.config.RelevantPatterns {
		if strings.HasSuffix(name, pattern) {
			return true
		}
	}
	return false
}

// ShouldProcessChange reports whether a change to path falls outside the
// debounce window, recording the change time as a side effect when it does.
func (p *ReactivePlanner) ShouldProcessChange(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if last, ok := p.debounceState[path]; ok && now.Sub(last) < p.config.DebounceDuration {
		return false
	}
	p.debounceState[path] = now
	return true
}

// ClearDebounceState discards all recorded change times.
func (p *ReactivePlanner) ClearDebounceState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.debounceState = make(map[string]time.Time)
}

// RegisterTask records that name currently maps to id, for replan diffing.
func (p *ReactivePlanner) RegisterTask(name string, id TaskID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.taskNameToID[name] = id
}

// GetTaskID returns the id registered for name, if any.
func (p *ReactivePlanner) GetTaskID(name string) (TaskID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.taskNameToID[name]
	return id, ok
}

// Watch starts an fsnotify watcher over every configured path that exists,
// recursively. Relevant, non-debounced Modify/Create events are translated
// into FileChanged plan events. The caller owns the returned watcher's
// lifetime and must Close it.
func (p *ReactivePlanner) Watch() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, root := range p.config.WatchPaths {
		_ = addRecursive(watcher, root)
	}

	go p.pump(watcher)
	return watcher, nil
}

func (p *ReactivePlanner) pump(watcher *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !p.IsRelevantFile(ev.Name) {
				continue
			}
			if !p.ShouldProcessChange(ev.Name) {
				continue
			}
			p.events <- PlanEvent{Kind: PlanFileChanged, Path: ev.Name}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// addRecursive walks dir (if it exists) adding every subdirectory to the
// watcher; fsnotify does not watch recursively on its own.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			_ = watcher.Add(path)
		}
		return nil
	})
}

// OnPlanChanged handles one file-change notification: emits ReplanTriggered
// and runs a full replan.
func (p *ReactivePlanner) OnPlanChanged() {
	p.events <- PlanEvent{Kind: PlanReplanTriggered}
	p.Replan()
}

// Replan discovers the current set of .code-task.md files under the
// repository, diffs them against the DAG's current tasks, and applies
// whatever changed.
func (p *ReactivePlanner) Replan() {
	roots := []string{
		p.repoPath,
		filepath.Join(p.repoPath, ".sop"),
		filepath.Join(p.repoPath, ".sop", "planning"),
		filepath.Join(p.repoPath, ".sop", "planning", "implementation"),
	}

	discovered, _ := parser.DiscoverCodeTasks(roots)
	newTasks := make([]*Task, 0, len(discovered))
	for _, ct := range discovered {
		newTasks = append(newTasks, NewTask(ct.Name, ct.Description))
	}

	diff := p.DiffTasks(p.dag.Snapshot(), newTasks)
	if diff.HasChanges() {
		p.ApplyDiff(diff)
	}
}

// DiffTasks compares old against new by task name: entries only in new are
// additions, entries only in old are removals (unless already running,
// completed, or cancelled), and same-name entries with a changed
// description are modifications (unless the old task is running).
func (p *ReactivePlanner) DiffTasks(old, new []*Task) *TaskDiff {
	diff := &TaskDiff{}

	oldByName := make(map[string]*Task, len(old))
	newNames := make(map[string]bool, len(new))
	for _, t := range old {
		oldByName[t.Name] = t
	}
	for _, t := range new {
		newNames[t.Name] = true
	}

	for _, t := range new {
		if _, ok := oldByName[t.Name]; !ok {
			diff.Added = append(diff.Added, t)
		}
	}

	for _, t := range old {
		if newNames[t.Name] {
			continue
		}
		if t.Status.Kind == StatusRunning || t.Status.Kind == StatusCompleted || t.Status.Kind == StatusCancelled {
			continue
		}
		diff.Removed = append(diff.Removed, t.ID)
	}

	for _, t := range new {
		oldTask, ok := oldByName[t.Name]
		if !ok || oldTask.Description == t.Description {
			continue
		}
		if oldTask.Status.Kind == StatusRunning {
			continue
		}
		modified := t.Clone()
		modified.ID = oldTask.ID
		diff.Modified = append(diff.Modified, modified)
	}

	return diff
}

// ApplyDiff adds new tasks, cancels removed ones, and rewrites the
// description of modified ones, then emits the corresponding events.
func (p *ReactivePlanner) ApplyDiff(diff *TaskDiff) {
	for _, t := range diff.Added {
		p.dag.AddTask(t)
		p.RegisterTask(t.Name, t.ID)
	}
	for _, id := range diff.Removed {
		if task, ok := p.dag.GetTask(id); ok {
			task.MarkCancelled("removed during replanning")
		}
	}
	for _, modified := range diff.Modified {
		if task, ok := p.dag.GetTask(modified.ID); ok {
			task.Description = modified.Description
		}
	}

	if len(diff.Added) > 0 {
		p.events <- PlanEvent{Kind: PlanTasksAdded, Tasks: diff.Added}
	}
	if len(diff.Removed) > 0 {
		p.events <- PlanEvent{Kind: PlanTasksCancelled, IDs: diff.Removed}
	}
}
