package core

import (
	"context"
	"fmt"
	"sync"
)

// TaskLauncher prepares whatever an agent needs to start work on task (a
// worktree, a branch, a multiplexer session) and returns a handle to the
// launched agent. Implemented by AgentLauncher (launcher.go); the scheduler
// only needs the seam.
type TaskLauncher interface {
	Launch(ctx context.Context, task *Task) (*LaunchedAgent, error)
}

// LaunchedAgent is a TaskLauncher's handle on a dispatched agent: the output
// reader health checks scan, and a Wait that blocks until the agent process
// exits, returning its exit code. Wait may be nil when the launcher has no
// way to observe process exit; such agents are covered only by the health
// monitor's stuck detection.
type LaunchedAgent struct {
	Output OutputReader
	Wait   func(ctx context.Context) (exitCode int, err error)
}

// CommitResolver reads the final commit hash a task's agent left behind, once
// it has exited. Optional: when absent, Scheduler records "unknown".
type CommitResolver interface {
	LastCommit(ctx context.Context, task *Task) (string, error)
}

// SchedulerEventKind discriminates SchedulerEvent.
type SchedulerEventKind int

const (
	SchedTaskStarted SchedulerEventKind = iota
	SchedTaskCompleted
	SchedTaskFailed
	SchedAllTasksComplete
)

// SchedulerEvent is emitted on the scheduler's own event channel, separate
// from the pool's agent lifecycle events. Per task: TaskStarted precedes
// TaskCompleted xor TaskFailed; AllTasksComplete is emitted at most once and
// only once every task has reached a terminal event.
type SchedulerEvent struct {
	Kind    SchedulerEventKind
	TaskID  TaskID
	AgentID AgentID
	Commit  string // set for TaskCompleted
	Error   string // set for TaskFailed
}

// ImplResult records one task's completed implementation: its worktree and
// the commit the agent left there.
type ImplResult struct {
	Task     TaskID
	Worktree string
	Commit   string
}

// Scheduler drives a TaskDAG to completion under an AgentPool's capacity cap:
// it dispatches ready tasks, observes agent lifecycle events, and marks tasks
// completed or failed accordingly. It never retries a task itself; that is
// HealthMonitor's concern.
type Scheduler struct {
	dag      *TaskDAG
	pool     *AgentPool
	launcher TaskLauncher
	commits  CommitResolver
	events   chan SchedulerEvent

	mu                 sync.Mutex
	completed          map[TaskID]bool
	inFlight           map[AgentID]TaskID
	results            []ImplResult
	allCompleteEmitted bool
}

// NewScheduler returns a scheduler driving dag through pool, using launcher
// to stand up each dispatched task's execution environment. commits may be
// nil, in which case completed tasks record "unknown" as their commit hash.
func NewScheduler(dag *TaskDAG, pool *AgentPool, launcher TaskLauncher, commits CommitResolver) *Scheduler {
	return &Scheduler{
		dag:       dag,
		pool:      pool,
		launcher:  launcher,
		commits:   commits,
		events:    make(chan SchedulerEvent, 100),
		completed: make(map[TaskID]bool),
		inFlight:  make(map[AgentID]TaskID),
	}
}

// Events returns the scheduler's outgoing event channel.
func (s *Scheduler) Events() <-chan SchedulerEvent { return s.events }

// Results returns every ImplResult recorded so far.
func (s *Scheduler) Results() []ImplResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ImplResult, len(s.results))
	copy(out, s.results)
	return out
}

// CompletedSet returns a copy of the set of completed task ids.
func (s *Scheduler) CompletedSet() map[TaskID]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[TaskID]bool, len(s.completed))
	for id := range s.completed {
		out[id] = true
	}
	return out
}

// GetReadyTasks returns the DAG-ready task ids that are not already assigned
// to an agent, so the scheduler never double-dispatches a task.
func (s *Scheduler) GetReadyTasks() []TaskID {
	s.mu.Lock()
	completed := make(map[TaskID]bool, len(s.completed))
	for id := range s.completed {
		completed[id] = true
	}
	assigned := make(map[TaskID]bool, len(s.inFlight))
	for _, taskID := range s.inFlight {
		assigned[taskID] = true
	}
	s.mu.Unlock()

	ready := s.dag.ReadyTasks(completed)
	ids := make([]TaskID, 0, len(ready))
	for _, t := range ready {
		// ReadyTasks only checks predecessor completion; it does not know
		// about a task's own status, so a Failed or Cancelled task (never
		// added to `completed`, since that set tracks successes only) would
		// otherwise keep reappearing here forever. Startable() excludes
		// those, along with Running/Completed tasks.
		if !assigned[t.ID] && t.Status.Startable() {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// DispatchReadyTasks spawns an agent for every unassigned ready task while
// the pool has capacity, emitting TaskStarted for each. Returns the number
// dispatched. A launch failure marks that task Failed and emits TaskFailed
// rather than aborting the whole dispatch pass.
func (s *Scheduler) DispatchReadyTasks(ctx context.Context) int {
	dispatched := 0
	for _, taskID := range s.GetReadyTasks() {
		if !s.pool.HasCapacity() {
			break
		}

		task, ok := s.dag.GetTask(taskID)
		if !ok {
			continue
		}

		var launched *LaunchedAgent
		if s.launcher != nil {
			var err error
			launched, err = s.launcher.Launch(ctx, task)
			if err != nil {
				task.MarkFailed(fmt.Sprintf("launch failed: %v", err))
				s.events <- SchedulerEvent{Kind: SchedTaskFailed, TaskID: taskID, Error: task.Status.Error}
				continue
			}
		}

		var reader OutputReader
		if launched != nil {
			reader = launched.Output
		}
		agentID, err := s.pool.Spawn(taskID, reader)
		if err != nil {
			// Pool went full between HasCapacity and Spawn (or some other
			// agent took the last slot); back off to the next dispatch pass.
			break
		}

		s.mu.Lock()
		s.inFlight[agentID] = taskID
		s.mu.Unlock()

		task.MarkRunning(agentID)
		if launched != nil && launched.Wait != nil {
			go s.watchAgent(ctx, agentID, launched.Wait)
		}
		s.events <- SchedulerEvent{Kind: SchedTaskStarted, TaskID: taskID, AgentID: agentID}
		dispatched++
	}
	return dispatched
}

// watchAgent blocks on the launcher's Wait and feeds the outcome into the
// pool's event channel, which Run consumes. This is the path a
// successfully-finished agent is observed on; the health monitor only
// covers agents that stop making progress without exiting. An agent the
// scheduler already released (completed, failed, or recovered) produces an
// event for an unassigned id, which handleAgentEvent ignores.
func (s *Scheduler) watchAgent(ctx context.Context, agentID AgentID, wait func(context.Context) (int, error)) {
	exitCode, err := wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.pool.emitFailed(agentID, err.Error())
		return
	}
	s.pool.emitCompleted(agentID, exitCode)
}

// HandleCompletion records taskID (assigned to agent) as Completed with
// commit, frees the agent, and emits TaskCompleted, followed by
// AllTasksComplete if every task in the DAG is now completed. Unknown agents
// are ignored silently.
func (s *Scheduler) HandleCompletion(agentID AgentID, commit string) {
	taskID, ok := s.takeAssignment(agentID)
	if !ok {
		return
	}

	task, ok := s.dag.GetTask(taskID)
	if !ok {
		return
	}
	task.MarkCompleted(commit)

	s.mu.Lock()
	s.completed[taskID] = true
	s.results = append(s.results, ImplResult{Task: taskID, Worktree: task.WorktreePath, Commit: commit})
	completed := make(map[TaskID]bool, len(s.completed))
	for id := range s.completed {
		completed[id] = true
	}
	s.mu.Unlock()

	_ = s.pool.Terminate(agentID)
	s.events <- SchedulerEvent{Kind: SchedTaskCompleted, TaskID: taskID, AgentID: agentID, Commit: commit}

	if s.dag.AllComplete(completed) {
		s.mu.Lock()
		already := s.allCompleteEmitted
		s.allCompleteEmitted = true
		s.mu.Unlock()
		if !already {
			s.events <- SchedulerEvent{Kind: SchedAllTasksComplete}
		}
	}
}

// HandleFailure records taskID (assigned to agent) as Failed with reason,
// frees the agent, and emits TaskFailed. The task's dependents become
// unreachable: they will never appear in ReadyTasks again, since their
// predecessor never joins the completed set. Unknown agents are ignored.
func (s *Scheduler) HandleFailure(agentID AgentID, reason string) {
	taskID, ok := s.takeAssignment(agentID)
	if !ok {
		return
	}

	task, ok := s.dag.GetTask(taskID)
	if !ok {
		return
	}
	task.MarkFailed(reason)

	_ = s.pool.Terminate(agentID)
	s.events <- SchedulerEvent{Kind: SchedTaskFailed, TaskID: taskID, AgentID: agentID, Error: reason}
}

func (s *Scheduler) takeAssignment(agentID AgentID) (TaskID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	taskID, ok := s.inFlight[agentID]
	if ok {
		delete(s.inFlight, agentID)
	}
	return taskID, ok
}

func (s *Scheduler) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// lastCommitFor resolves the commit to record for a completing task: the
// CommitResolver's answer if one is configured and succeeds, else "unknown".
func (s *Scheduler) lastCommitFor(ctx context.Context, taskID TaskID) string {
	if s.commits == nil {
		return "unknown"
	}
	task, ok := s.dag.GetTask(taskID)
	if !ok {
		return "unknown"
	}
	commit, err := s.commits.LastCommit(ctx, task)
	if err != nil || commit == "" {
		return "unknown"
	}
	return commit
}

// Run drives the DAG to completion: dispatch everything ready, then await
// agent events and react, repeating until every task is completed or the DAG
// is stuck (no in-flight work and nothing ready, because of failures or
// cancellations). Returns the accumulated ImplResults either way.
func (s *Scheduler) Run(ctx context.Context, agentEvents <-chan AgentEvent) ([]ImplResult, error) {
	for {
		if s.dag.AllComplete(s.CompletedSet()) {
			return s.Results(), nil
		}

		s.DispatchReadyTasks(ctx)

		if s.inFlightCount() == 0 && len(s.GetReadyTasks()) == 0 {
			return s.Results(), nil
		}

		select {
		case <-ctx.Done():
			return s.Results(), ctx.Err()
		case ev, ok := <-agentEvents:
			if !ok {
				return s.Results(), nil
			}
			s.handleAgentEvent(ctx, ev)
		}
	}
}

func (s *Scheduler) handleAgentEvent(ctx context.Context, ev AgentEvent) {
	switch ev.Kind {
	case EventCompleted:
		if ev.ExitCode == 0 {
			s.HandleCompletion(ev.AgentID, s.lastCommitFor(ctx, s.taskFor(ev.AgentID)))
		} else {
			s.HandleFailure(ev.AgentID, fmt.Sprintf("agent exited with code %d", ev.ExitCode))
		}
	case EventFailed:
		s.HandleFailure(ev.AgentID, ev.Error)
	case EventTerminated:
		// Only an *assigned* agent's termination is a failure; terminations
		// the scheduler itself issued (via HandleCompletion/HandleFailure)
		// already removed the assignment, so takeAssignment below is a
		// no-op for those and HandleFailure silently ignores it.
		s.HandleFailure(ev.AgentID, "Agent terminated")
	case EventStarted, EventStuckDetected:
		// Not actionable here: Started is this scheduler's own doing, and
		// StuckDetected is HealthMonitor's concern.
	}
}

func (s *Scheduler) taskFor(agentID AgentID) TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[agentID]
}
