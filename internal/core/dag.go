package core

import "sync"

// edge records one typed dependency: From must complete before To may run.
type edge struct {
	to   TaskID
	kind DependencyType
}

// TaskDAG is a directed graph of tasks over typed dependency edges. It is
// acyclic at all times: add_dependency tentatively inserts an edge and
// rejects it, leaving the graph untouched, if the result would close a
// cycle. All operations are safe for concurrent use.
type TaskDAG struct {
	mu sync.RWMutex

	tasks map[TaskID]*Task
	// forward[p] lists the typed edges out of p, i.e. tasks that depend on p.
	forward map[TaskID][]edge
	// predecessors[s] lists the task ids that must complete before s.
	predecessors map[TaskID][]TaskID
}

// NewTaskDAG returns an empty graph.
func NewTaskDAG() *TaskDAG {
	return &TaskDAG{
		tasks:        make(map[TaskID]*Task),
		forward:      make(map[TaskID][]edge),
		predecessors: make(map[TaskID][]TaskID),
	}
}

// AddTask inserts a task. Idempotent on task.ID: re-adding an id already
// present is a no-op and returns the already-stored task.
func (g *TaskDAG) AddTask(task *Task) *Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.tasks[task.ID]; ok {
		return existing
	}
	g.tasks[task.ID] = task
	return task
}

// AddDependency records that `from` must complete before `to` runs. Fails
// without mutating the graph if either endpoint is unknown, if from == to,
// or if the edge would close a cycle.
func (g *TaskDAG) AddDependency(from, to TaskID, kind DependencyType) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == to {
		return &ValidationError{Reason: "self-dependency is a cycle"}
	}
	if _, ok := g.tasks[from]; !ok {
		return &NotFoundError{Kind: "task", ID: from.String()}
	}
	if _, ok := g.tasks[to]; !ok {
		return &NotFoundError{Kind: "task", ID: to.String()}
	}

	g.forward[from] = append(g.forward[from], edge{to: to, kind: kind})
	g.predecessors[to] = append(g.predecessors[to], from)

	if g.hasCycleLocked() {
		// Roll back: the tentative edge must not survive a rejection.
		g.forward[from] = g.forward[from][:len(g.forward[from])-1]
		g.predecessors[to] = g.predecessors[to][:len(g.predecessors[to])-1]
		return &ValidationError{Reason: "adding this dependency would close a cycle"}
	}
	return nil
}

// hasCycleLocked runs DFS with white/gray/black coloring over the whole
// graph. Caller must hold g.mu.
func (g *TaskDAG) hasCycleLocked() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[TaskID]int, len(g.tasks))

	var visit func(TaskID) bool
	visit = func(node TaskID) bool {
		colors[node] = gray
		for _, e := range g.forward[node] {
			switch colors[e.to] {
			case gray:
				return true
			case white:
				if visit(e.to) {
					return true
				}
			}
		}
		colors[node] = black
		return false
	}

	for id := range g.tasks {
		if colors[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// GetTask returns the task with the given id, if present.
func (g *TaskDAG) GetTask(id TaskID) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	return t, ok
}

// HasDependency reports whether `from` must complete before `to`.
func (g *TaskDAG) HasDependency(from, to TaskID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.forward[from] {
		if e.to == to {
			return true
		}
	}
	return false
}

// GetDependency returns the dependency type from `from` to `to`, if it exists.
func (g *TaskDAG) GetDependency(from, to TaskID) (DependencyType, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.forward[from] {
		if e.to == to {
			return e.kind, true
		}
	}
	return DependencyType{}, false
}

// Dependencies returns the task ids that must complete before id runs.
func (g *TaskDAG) Dependencies(id TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]TaskID, len(g.predecessors[id]))
	copy(out, g.predecessors[id])
	return out
}

// Dependents returns the task ids that depend on id.
func (g *TaskDAG) Dependents(id TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := g.forward[id]
	out := make([]TaskID, len(edges))
	for i, e := range edges {
		out[i] = e.to
	}
	return out
}

// DependentsTransitive returns the full downstream closure of id: every
// task reachable by following dependency edges forward from id.
func (g *TaskDAG) DependentsTransitive(id TaskID) []TaskID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[TaskID]bool)
	var walk func(TaskID)
	walk = func(node TaskID) {
		for _, e := range g.forward[node] {
			if !seen[e.to] {
				seen[e.to] = true
				walk(e.to)
			}
		}
	}
	walk(id)

	out := make([]TaskID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// AllTasks returns every task currently in the graph.
func (g *TaskDAG) AllTasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t)
	}
	return out
}

// Snapshot returns a deep-enough copy of every task, suitable for diffing
// without holding the graph lock across the comparison.
func (g *TaskDAG) Snapshot() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// TaskCount returns the number of tasks in the graph.
func (g *TaskDAG) TaskCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// DependencyCount returns the number of edges in the graph.
func (g *TaskDAG) DependencyCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, edges := range g.forward {
		n += len(edges)
	}
	return n
}

// ReadyTasks returns every task not in completed whose predecessors are all
// in completed. Order is unspecified.
func (g *TaskDAG) ReadyTasks(completed map[TaskID]bool) []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*Task
	for id, task := range g.tasks {
		if completed[id] {
			continue
		}
		if g.predecessorsSatisfiedLocked(id, completed) {
			ready = append(ready, task)
		}
	}
	return ready
}

func (g *TaskDAG) predecessorsSatisfiedLocked(id TaskID, completed map[TaskID]bool) bool {
	for _, p := range g.predecessors[id] {
		if !completed[p] {
			return false
		}
	}
	return true
}

// CompleteTask marks the task Completed and sets CompletedAt. Fails if the
// task is unknown.
func (g *TaskDAG) CompleteTask(id TaskID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	task, ok := g.tasks[id]
	if !ok {
		return &NotFoundError{Kind: "task", ID: id.String()}
	}
	task.MarkCompleted(task.CommitHash)
	return nil
}

// AllComplete reports whether completed is a superset of every task id in
// the graph.
func (g *TaskDAG) AllComplete(completed map[TaskID]bool) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id := range g.tasks {
		if !completed[id] {
			return false
		}
	}
	return true
}

// PendingCount returns the number of tasks not in completed.
func (g *TaskDAG) PendingCount(completed map[TaskID]bool) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for id := range g.tasks {
		if !completed[id] {
			n++
		}
	}
	return n
}

// TopologicalOrder returns a permutation of every task id in which each
// predecessor precedes its successors. The graph's acyclic invariant
// guarantees this always succeeds; a non-nil error signals an invariant
// violation the caller should treat as a bug.
func (g *TaskDAG) TopologicalOrder() ([]TaskID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[TaskID]int, len(g.tasks))
	for id := range g.tasks {
		inDegree[id] = len(g.predecessors[id])
	}

	var queue []TaskID
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]TaskID, 0, len(g.tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, e := range g.forward[id] {
			inDegree[e.to]--
			if inDegree[e.to] == 0 {
				queue = append(queue, e.to)
			}
		}
	}

	if len(order) != len(g.tasks) {
		return nil, &ValidationError{Reason: "graph is cyclic (invariant violation)"}
	}
	return order, nil
}
