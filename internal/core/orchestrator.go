package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zenhq/zen/internal/models"
)

// PlanningRunner runs the external Planning skill invocation for a workflow,
// writing plan/design files into repoPath. The agent binary and its
// headless-invocation protocol live outside this package; this interface is
// the seam SkillsOrchestrator calls through.
type PlanningRunner interface {
	RunPlanning(ctx context.Context, workflow *Workflow, repoPath string) error
}

// TaskGenerationRunner runs the external Task Generation skill invocation,
// writing `.code-task.md` files that the ReactivePlanner parses into the DAG.
type TaskGenerationRunner interface {
	RunTaskGeneration(ctx context.Context, workflow *Workflow, repoPath string) error
}

// DocRunner runs the optional Documentation phase. A failure here is
// non-critical: it is logged, not fatal.
type DocRunner interface {
	RunDocumentation(ctx context.Context, workflow *Workflow, repoPath string) error
}

// OrchestratorLogger is the logging seam SkillsOrchestrator needs;
// *logger.ConsoleLogger already satisfies it without modification, both
// through its generic Infof/Warnf/LogError methods and through the
// domain-specific LogTaskStarted-family methods used for the events a
// reader of the log is most likely to grep for.
type OrchestratorLogger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	LogError(message string)
	LogTaskStarted(taskName, agentID string)
	LogTaskCompleted(taskName, commit string)
	LogTaskFailed(taskName, reason string)
	LogAgentStuck(agentID string, idleSeconds float64)
	LogRecoveryTriggered(agentID, action string)
	LogPhaseTransition(workflowID, from, to string)
	LogCleanupReport(removed, orphansFound int)
}

// WorkflowResultKind discriminates WorkflowResult.
type WorkflowResultKind int

const (
	WorkflowResultSuccess WorkflowResultKind = iota
	WorkflowResultFailure
)

// WorkflowResult is SkillsOrchestrator.Execute's return value: success, or
// failure with the reason the workflow stopped.
type WorkflowResult struct {
	Kind   WorkflowResultKind
	Reason string // set for WorkflowResultFailure
}

func workflowSuccess() WorkflowResult { return WorkflowResult{Kind: WorkflowResultSuccess} }
func workflowFailure(reason string) WorkflowResult {
	return WorkflowResult{Kind: WorkflowResultFailure, Reason: reason}
}

// IsSuccess reports whether the workflow completed successfully.
func (r WorkflowResult) IsSuccess() bool { return r.Kind == WorkflowResultSuccess }

// SkillsOrchestrator is the top-level composer: it owns the shared agent
// pool, the reactive planner, the conflict resolver, the scheduler it builds
// per run, and the workflow state, and drives one prompt through all five
// phases.
type SkillsOrchestrator struct {
	pool     *AgentPool
	planner  *ReactivePlanner
	resolver *ConflictResolver
	health   *HealthMonitor
	launcher TaskLauncher
	commits  CommitResolver
	repoPath string
	logger   OrchestratorLogger

	planning PlanningRunner
	taskGen  TaskGenerationRunner
	docs     DocRunner
	cleanup  *CleanupManager

	workflow *Workflow
	state    *WorkflowState
}

// SetCleanup attaches an optional CleanupManager: when set, Execute sweeps
// the finished DAG once the workflow reaches Complete, removing finished
// tasks' worktrees and any leftover staging worktrees. Absent a cleanup
// manager, Execute leaves everything on disk.
func (o *SkillsOrchestrator) SetCleanup(cleanup *CleanupManager) {
	o.cleanup = cleanup
}

// NewSkillsOrchestrator wires the shared pool, planner, and resolver
// together with the external phase runners. logger may be nil; docs may be
// nil when the workflow config never enables UpdateDocs.
func NewSkillsOrchestrator(
	pool *AgentPool,
	planner *ReactivePlanner,
	resolver *ConflictResolver,
	health *HealthMonitor,
	launcher TaskLauncher,
	commits CommitResolver,
	repoPath string,
	planning PlanningRunner,
	taskGen TaskGenerationRunner,
	docs DocRunner,
	logger OrchestratorLogger,
) *SkillsOrchestrator {
	return &SkillsOrchestrator{
		pool:     pool,
		planner:  planner,
		resolver: resolver,
		health:   health,
		launcher: launcher,
		commits:  commits,
		repoPath: repoPath,
		planning: planning,
		taskGen:  taskGen,
		docs:     docs,
		logger:   logger,
	}
}

// Workflow returns the orchestrator's currently-bound workflow, or nil
// before the first call to Execute.
func (o *SkillsOrchestrator) Workflow() *Workflow { return o.workflow }

// State returns the orchestrator's currently-bound WorkflowState.
func (o *SkillsOrchestrator) State() *WorkflowState { return o.state }

func (o *SkillsOrchestrator) infof(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Infof(format, args...)
	}
}

func (o *SkillsOrchestrator) warnf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warnf(format, args...)
	}
}

// transition moves o.state to phase, logging the move through
// LogPhaseTransition when it succeeds. Callers propagate a non-nil error
// straight to o.fail.
func (o *SkillsOrchestrator) transition(to Phase) error {
	from := o.state.CurrentPhase()
	if err := o.state.Transition(to); err != nil {
		return err
	}
	if o.logger != nil {
		o.logger.LogPhaseTransition(o.workflow.ID.Short(), from.String(), to.String())
	}
	return nil
}

// Execute re-binds the orchestrator to prompt, resets workflow state, and
// runs the five phases in order. Any transition rejection
// or critical phase failure marks the workflow Failed and returns
// WorkflowResultFailure without attempting later phases; a successful run
// through Complete returns WorkflowResultSuccess.
func (o *SkillsOrchestrator) Execute(ctx context.Context, prompt string, config WorkflowConfig) WorkflowResult {
	o.workflow = NewWorkflow(prompt, config)
	o.state = NewWorkflowState(o.workflow)
	o.workflow.Status = WorkflowRunning
	o.infof("workflow %s: starting for prompt %q", o.workflow.ID.Short(), prompt)

	if err := o.planning.RunPlanning(ctx, o.workflow, o.repoPath); err != nil {
		return o.fail(fmt.Sprintf("planning failed: %v", err))
	}

	if err := o.transition(PhaseTaskGeneration); err != nil {
		return o.fail(err.Error())
	}
	if err := o.taskGen.RunTaskGeneration(ctx, o.workflow, o.repoPath); err != nil {
		return o.fail(fmt.Sprintf("task generation failed: %v", err))
	}

	if err := o.transition(PhaseImplementation); err != nil {
		return o.fail(err.Error())
	}
	if err := o.runImplementation(ctx); err != nil {
		return o.fail(err.Error())
	}

	if err := o.transition(PhaseMerging); err != nil {
		return o.fail(err.Error())
	}
	if err := o.runMerging(ctx, config.StagingPrefix); err != nil {
		return o.fail(err.Error())
	}

	if config.UpdateDocs {
		if err := o.transition(PhaseDocumentation); err != nil {
			return o.fail(err.Error())
		}
		if o.docs != nil {
			if err := o.docs.RunDocumentation(ctx, o.workflow, o.repoPath); err != nil {
				// Non-critical: logged, workflow continues.
				o.warnf("documentation phase failed (non-fatal): %v", err)
			}
		}
	}

	if err := o.transition(PhaseComplete); err != nil {
		return o.fail(err.Error())
	}
	o.workflow.Status = WorkflowCompleted
	o.runCleanup(ctx, config.StagingPrefix)
	o.infof("workflow %s: completed", o.workflow.ID.Short())
	return workflowSuccess()
}

// runCleanup sweeps the finished DAG's worktrees once the workflow reaches
// Complete. Failures are logged and swallowed: the workflow already
// succeeded, and a worktree left on disk is an annoyance, not an error.
func (o *SkillsOrchestrator) runCleanup(ctx context.Context, stagingPrefix string) {
	if o.cleanup == nil {
		return
	}
	staging := fmt.Sprintf("%s/%s", stagingPrefix, o.workflow.ID.Short())
	report, err := o.cleanup.CleanupWorkflow(ctx, staging, o.planner.Dag().Snapshot())
	if err != nil {
		o.warnf("workflow %s: cleanup: %v", o.workflow.ID.Short(), err)
	}
	if o.logger != nil {
		o.logger.LogCleanupReport(len(report.Removed), 0)
	}
}

// runImplementation runs the scheduler to completion over the planner's DAG,
// reconciling HealthMonitor recovery decisions with scheduler-level failures
// along the way; the Restart/Ready re-queue semantics live here, not in
// Scheduler itself. An empty scheduler run (an empty DAG) is success; any
// task left non-completed once the scheduler can make no further progress
// is a workflow failure.
func (o *SkillsOrchestrator) runImplementation(ctx context.Context) error {
	dag := o.planner.Dag()
	sched := NewScheduler(dag, o.pool, o.launcher, o.commits)

	stopEvents := pumpSchedulerEvents(sched, dag, o.logger)
	defer stopEvents()

	supervisor := newRecoverySupervisor(o.health, sched, dag, o.logger)
	stopHealth := supervisor.start(ctx)
	defer stopHealth()

	results, err := sched.Run(ctx, o.pool.Events())
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	o.infof("workflow %s: implementation produced %d results", o.workflow.ID.Short(), len(results))

	completed := sched.CompletedSet()
	if !dag.AllComplete(completed) {
		return fmt.Errorf("implementation incomplete: %d task(s) never reached Completed", dag.PendingCount(completed))
	}
	return nil
}

// runMerging merges every task's branch into the workflow's staging branch.
// Conflict escalation and resolver-agent spawning are a caller concern, so
// a single task's conflicts are surfaced as a failure: the first conflict
// hit stops the phase.
func (o *SkillsOrchestrator) runMerging(ctx context.Context, stagingPrefix string) error {
	staging := fmt.Sprintf("%s/%s", stagingPrefix, o.workflow.ID.Short())

	for _, task := range o.planner.Dag().Snapshot() {
		if task.Status.Kind != StatusCompleted || task.WorktreePath == "" {
			continue
		}
		result, err := o.resolver.Merge(ctx, task.WorktreePath, staging)
		if err != nil {
			return fmt.Errorf("merging task %s: %w", task.Name, err)
		}
		switch result.Kind {
		case MergeSuccess:
			o.infof("workflow %s: merged task %s at %s", o.workflow.ID.Short(), task.Name, result.Commit)
			// Anchor the merge commit back to its workflow and task via the
			// notes namespace, so `git notes --ref refs/notes/zen show` can
			// answer "where did this commit come from" after the run.
			note := fmt.Sprintf(`{"workflow":%q,"task":%q,"phase":"merging"}`,
				o.workflow.ID.Short(), task.ID.Short())
			if err := o.resolver.git.AddNote(ctx, result.Commit, note); err != nil {
				o.warnf("workflow %s: attaching note to %s: %v", o.workflow.ID.Short(), result.Commit, err)
			}
		case MergeConflicts:
			return fmt.Errorf("merge conflicts in task %s: %d file(s)", task.Name, len(result.Files))
		case MergeFailed:
			return fmt.Errorf("merge failed for task %s: %s", task.Name, result.Error)
		}
	}
	return nil
}

// TaskResults renders the DAG's terminal tasks as models.TaskResult records
// for summary logging and persistence. Non-terminal tasks (a workflow that
// failed before Implementation finished) are skipped.
func (o *SkillsOrchestrator) TaskResults() []models.TaskResult {
	if o.planner == nil {
		return nil
	}

	var out []models.TaskResult
	for _, task := range o.planner.Dag().Snapshot() {
		result := models.TaskResult{
			Task: models.Task{
				Number: task.ID.Short(),
				Name:   task.Name,
				Prompt: task.Description,
			},
			WorktreePath: task.WorktreePath,
			BranchName:   task.BranchName,
			CommitHash:   task.CommitHash,
		}
		if task.AgentID != nil {
			result.AgentID = task.AgentID.Short()
		}
		if o.health != nil {
			result.RetryCount = o.health.Retries().Count(task.ID)
		}
		if task.StartedAt != nil && task.CompletedAt != nil {
			result.Duration = task.CompletedAt.Sub(*task.StartedAt)
		}

		switch task.Status.Kind {
		case StatusCompleted:
			result.Status = models.StatusCompleted
		case StatusFailed:
			result.Status = models.StatusFailed
			result.Error = errors.New(task.Status.Error)
		case StatusCancelled:
			result.Status = models.StatusCancelled
		default:
			continue
		}
		out = append(out, result)
	}
	return out
}

func (o *SkillsOrchestrator) fail(reason string) WorkflowResult {
	o.workflow.Status = WorkflowFailed
	o.workflow.FailedMsg = reason
	o.warnf("workflow %s: failed: %s", o.workflow.ID.Short(), reason)
	return workflowFailure(reason)
}

// pumpSchedulerEvents drains sched's event channel for the duration of one
// Run, translating each SchedulerEvent into the matching LogTaskStarted /
// LogTaskCompleted / LogTaskFailed call. Returns a function the caller
// defers to stop the pump once Run has returned.
func pumpSchedulerEvents(sched *Scheduler, dag *TaskDAG, logger OrchestratorLogger) func() {
	if logger == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-sched.events:
				if !ok {
					return
				}
				logSchedulerEvent(logger, dag, ev)
			}
		}
	}()
	return func() { close(stop) }
}

func logSchedulerEvent(logger OrchestratorLogger, dag *TaskDAG, ev SchedulerEvent) {
	name := ev.TaskID.String()
	if task, ok := dag.GetTask(ev.TaskID); ok {
		name = task.Name
	}
	switch ev.Kind {
	case SchedTaskStarted:
		logger.LogTaskStarted(name, ev.AgentID.Short())
	case SchedTaskCompleted:
		logger.LogTaskCompleted(name, ev.Commit)
	case SchedTaskFailed:
		logger.LogTaskFailed(name, ev.Error)
	case SchedAllTasksComplete:
		// Nothing task-scoped to report; Execute already logs completion.
	}
}

// recoverySupervisor bridges HealthMonitor's periodic checks to the
// scheduler's event stream: it polls for stuck/failing agents, decides and
// executes a recovery action, and — when that action was Restart and the
// task still has retries left — resets the task back to Ready once the
// scheduler's own Terminated handling has marked it Failed, so the next
// DispatchReadyTasks pass picks it back up. Scheduler itself keeps treating
// a Terminated event for an assigned agent as a plain failure; the
// Restart-means-requeue reconciliation lives here, one layer up.
type recoverySupervisor struct {
	health *HealthMonitor
	sched  *Scheduler
	dag    *TaskDAG
	logger OrchestratorLogger

	pollInterval time.Duration
}

func newRecoverySupervisor(health *HealthMonitor, sched *Scheduler, dag *TaskDAG, logger OrchestratorLogger) *recoverySupervisor {
	return &recoverySupervisor{health: health, sched: sched, dag: dag, logger: logger, pollInterval: 15 * time.Second}
}

// start launches the supervisor's polling loop and returns a function that
// stops it. Callers defer the returned function.
func (s *recoverySupervisor) start(ctx context.Context) func() {
	if s.health == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go s.loop(ctx, stop)
	return func() { close(stop) }
}

func (s *recoverySupervisor) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.checkOnce(ctx)
		}
	}
}

func (s *recoverySupervisor) checkOnce(ctx context.Context) {
	for _, event := range s.health.CheckAll() {
		if event.Kind != HealthAgentStuck && event.Kind != HealthAgentFailed {
			continue
		}
		handle, ok := s.health.pool.Get(event.AgentID)
		if !ok || handle.TaskID == nil {
			continue
		}
		task, ok := s.dag.GetTask(*handle.TaskID)
		if !ok {
			continue
		}

		action := s.health.Decide(ctx, handle, task.Name, task.Description)
		if _, err := s.health.ExecuteRecovery(event.AgentID, action); err != nil {
			continue
		}

		if action.Kind == RecoveryRestart && s.health.Retries().Count(task.ID) < s.health.Config().MaxRetries {
			// ExecuteRecovery's Terminate already pushed an EventTerminated
			// through the pool, which the scheduler's Run loop will turn
			// into a Failed task; resetting to Ready here races benignly
			// with that — whichever write lands last determines the
			// task's status, and MarkReady always runs after recovery is
			// decided, so Ready is the one that should stick.
			task.MarkReady()
			if s.logger != nil {
				s.logger.Infof("task %s: restarted after recovery, retry %d", task.Name, s.health.Retries().Count(task.ID))
			}
		}
	}
}
