package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zenhq/zen/internal/models"
)

// Default time without activity before an agent is considered stuck.
const DefaultStuckThreshold = 5 * time.Minute

// Default maximum number of retries before a task is escalated.
const DefaultMaxRetries = 3

// HealthConfig controls how HealthMonitor detects stuck or failing agents.
type HealthConfig struct {
	StuckThreshold time.Duration
	MaxRetries     int
	StuckPatterns  []string
}

// DefaultHealthConfig returns the baseline configuration: a 5 minute idle
// threshold, 3 retries, and the keyword set an unresponsive or rate-limited
// headless agent tends to print.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		StuckThreshold: DefaultStuckThreshold,
		MaxRetries:     DefaultMaxRetries,
		StuckPatterns: []string{
			"rate limit",
			"rate_limit",
			"too many requests",
			"quota exceeded",
			"waiting for response",
			"retrying",
			"connection refused",
			"timeout",
		},
	}
}

// transientPatterns indicate a retriable failure: restart the agent.
var transientPatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"connection refused",
	"timeout",
	"temporary",
	"retry",
	"503",
	"502",
	"network error",
}

// fatalPatterns indicate an unrecoverable failure. Only honored once a
// restart has already been attempted (retryCount > 0): the first time any
// of these appears we still prefer a restart, in case it was transient.
var fatalPatterns = []string{
	"permission denied",
	"access denied",
	"authentication failed",
	"invalid credentials",
	"not found: 404",
	"syntax error",
	"compilation failed",
}

// complexityPatterns suggest the task should be broken into smaller pieces.
var complexityPatterns = []string{
	"too complex",
	"too large",
	"multiple steps required",
	"breaking down",
	"subtask",
}

// HealthEventKind discriminates HealthEvent.
type HealthEventKind int

const (
	HealthAgentStuck HealthEventKind = iota
	HealthAgentFailed
	HealthRecoveryTriggered
)

// HealthEvent reports an agent health issue or a recovery decision.
type HealthEvent struct {
	Kind     HealthEventKind
	AgentID  AgentID
	Duration time.Duration   // set for HealthAgentStuck
	Error    string          // set for HealthAgentFailed
	Action   *RecoveryAction // set for HealthRecoveryTriggered
}

// RecoveryActionKind discriminates RecoveryAction.
type RecoveryActionKind int

const (
	RecoveryRestart RecoveryActionKind = iota
	RecoveryReassign
	RecoveryDecompose
	RecoveryEscalate
	RecoveryAbort
)

// RecoveryAction is the outcome of determine_recovery: what should be done
// about a stuck or failing agent.
type RecoveryAction struct {
	Kind       RecoveryActionKind
	ToAgent    AgentID  // set for RecoveryReassign
	IntoTasks  []string // set for RecoveryDecompose
	Message    string   // set for RecoveryEscalate
}

func RestartAction() RecoveryAction { return RecoveryAction{Kind: RecoveryRestart} }
func ReassignAction(to AgentID) RecoveryAction {
	return RecoveryAction{Kind: RecoveryReassign, ToAgent: to}
}
func DecomposeAction(tasks []string) RecoveryAction {
	return RecoveryAction{Kind: RecoveryDecompose, IntoTasks: tasks}
}
func EscalateAction(message string) RecoveryAction {
	return RecoveryAction{Kind: RecoveryEscalate, Message: message}
}
func AbortAction() RecoveryAction { return RecoveryAction{Kind: RecoveryAbort} }

// RecoveryAdvisor classifies an unhealthy agent into a recovery decision.
// Implementations may call out to an AI model; the monitor treats the
// advisor as best-effort and falls back to its keyword heuristic on any
// error. Keeping the boundary this narrow keeps tests hermetic.
type RecoveryAdvisor interface {
	AdviseRecovery(ctx context.Context, req models.RecoveryRequest) (models.RecoveryDecision, error)
}

// HealthMonitor watches an AgentPool for stuck or failing agents and decides
// what recovery action to take. Detection is timestamp- and keyword-based;
// recovery decisions also fold in per-task retry history, and may be
// delegated to an optional RecoveryAdvisor.
type HealthMonitor struct {
	config  HealthConfig
	pool    *AgentPool
	retries *RetryTracker
	advisor RecoveryAdvisor
}

// NewHealthMonitor returns a monitor for pool using config.
func NewHealthMonitor(config HealthConfig, pool *AgentPool) *HealthMonitor {
	return &HealthMonitor{config: config, pool: pool, retries: NewRetryTracker()}
}

// SetAdvisor attaches an optional AI-backed recovery classifier. When nil,
// recovery decisions use the keyword heuristic alone.
func (m *HealthMonitor) SetAdvisor(advisor RecoveryAdvisor) {
	m.advisor = advisor
}

// Config returns the monitor's configuration.
func (m *HealthMonitor) Config() HealthConfig { return m.config }

// Retries returns the monitor's retry tracker.
func (m *HealthMonitor) Retries() *RetryTracker { return m.retries }

// CheckAll checks every agent currently in the pool and returns one event
// per agent with a detected issue.
func (m *HealthMonitor) CheckAll() []HealthEvent {
	var events []HealthEvent
	for _, handle := range m.pool.All() {
		if ev := m.CheckAgent(handle); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

// CheckAgent inspects a single handle's idle time and recent output for
// trouble. Returns nil when the agent looks healthy. A stuck detection is
// mirrored onto the pool's lifecycle channel as StuckDetected, interleaving
// with the agent's Started/Completed/Failed events there.
func (m *HealthMonitor) CheckAgent(agent *AgentHandle) *HealthEvent {
	if idle := agent.IdleDuration(); idle >= m.config.StuckThreshold {
		m.pool.emitStuck(agent.ID, idle)
		return &HealthEvent{Kind: HealthAgentStuck, AgentID: agent.ID, Duration: idle}
	}
	return m.checkOutputPatterns(agent)
}

func (m *HealthMonitor) checkOutputPatterns(agent *AgentHandle) *HealthEvent {
	if agent.Output == nil {
		return nil
	}
	output, err := agent.Output.ReadOutput()
	if err != nil {
		return nil
	}
	lower := strings.ToLower(output)

	for _, pattern := range m.config.StuckPatterns {
		if strings.Contains(lower, pattern) {
			return &HealthEvent{
				Kind:    HealthAgentFailed,
				AgentID: agent.ID,
				Error:   fmt.Sprintf("detected stuck pattern: %s", pattern),
			}
		}
	}
	return nil
}

// IsHealthy reports whether agent currently shows no issues.
func (m *HealthMonitor) IsHealthy(agent *AgentHandle) bool {
	return m.CheckAgent(agent) == nil
}

// DetermineRecovery decides the recovery action for a stuck or failing
// agent. Precedence: exhausted retries escalate unconditionally; otherwise
// a transient pattern in recent output restarts; a fatal pattern aborts,
// but only once a restart has already been tried; a complexity pattern
// decomposes; anything else defaults to restart as the safest action.
func (m *HealthMonitor) DetermineRecovery(agent *AgentHandle, taskDescription string) RecoveryAction {
	var retryCount int
	if agent.TaskID != nil {
		retryCount = m.retries.Count(*agent.TaskID)
	}

	if retryCount >= m.config.MaxRetries {
		return EscalateAction(fmt.Sprintf(
			"task has been retried %d times (max: %d); manual intervention required",
			retryCount, m.config.MaxRetries))
	}

	var output string
	if agent.Output != nil {
		output, _ = agent.Output.ReadOutput()
	}
	lower := strings.ToLower(output)

	for _, pattern := range transientPatterns {
		if strings.Contains(lower, pattern) {
			return RestartAction()
		}
	}

	if retryCount > 0 {
		for _, pattern := range fatalPatterns {
			if strings.Contains(lower, pattern) {
				return AbortAction()
			}
		}
	}

	for _, pattern := range complexityPatterns {
		if strings.Contains(lower, pattern) {
			label := taskDescription
			if label == "" {
				label = "original task"
			}
			return DecomposeAction([]string{
				fmt.Sprintf("Part 1 of: %s", label),
				fmt.Sprintf("Part 2 of: %s", label),
			})
		}
	}

	return RestartAction()
}

// Decide picks the recovery action for an unhealthy agent, consulting the
// attached advisor when one is set. Exhausted retries escalate regardless
// of what the advisor would say: the retry budget is the monitor's own
// contract, not a judgment call. Advisor errors and unusable decisions fall
// back to the keyword heuristic.
func (m *HealthMonitor) Decide(ctx context.Context, agent *AgentHandle, taskName, taskDescription string) RecoveryAction {
	var retryCount int
	if agent.TaskID != nil {
		retryCount = m.retries.Count(*agent.TaskID)
	}
	if retryCount >= m.config.MaxRetries {
		return EscalateAction(fmt.Sprintf(
			"task has been retried %d times (max: %d); manual intervention required",
			retryCount, m.config.MaxRetries))
	}

	if m.advisor == nil {
		return m.DetermineRecovery(agent, taskDescription)
	}

	var output string
	if agent.Output != nil {
		output, _ = agent.Output.ReadOutput()
	}
	decision, err := m.advisor.AdviseRecovery(ctx, models.RecoveryRequest{
		TaskName:        taskName,
		TaskDescription: taskDescription,
		IdleDuration:    agent.IdleDuration(),
		RetryCount:      retryCount,
		MaxRetries:      m.config.MaxRetries,
		RecentOutput:    output,
	})
	if err != nil {
		return m.DetermineRecovery(agent, taskDescription)
	}

	switch decision.Action {
	case models.RecoveryActionAbort:
		return AbortAction()
	case models.RecoveryActionEscalate:
		message := decision.Reason
		if message == "" {
			message = "recovery classifier requested escalation"
		}
		return EscalateAction(message)
	case models.RecoveryActionDecompose:
		if len(decision.Subtasks) >= 2 {
			return DecomposeAction(decision.Subtasks)
		}
		return RestartAction()
	case models.RecoveryActionRestart:
		return RestartAction()
	default:
		return RestartAction()
	}
}

// ExecuteRecovery carries out action against agentID, returning the
// RecoveryTriggered event it emits. Restart bumps the task's retry count
// before terminating the agent; every other action simply terminates it
// (the scheduler or the caller decides what happens to the task next).
func (m *HealthMonitor) ExecuteRecovery(agentID AgentID, action RecoveryAction) (HealthEvent, error) {
	event := HealthEvent{Kind: HealthRecoveryTriggered, AgentID: agentID, Action: &action}

	if action.Kind == RecoveryRestart {
		if handle, ok := m.pool.Get(agentID); ok && handle.TaskID != nil {
			m.retries.Increment(*handle.TaskID)
		}
	}

	if err := m.pool.Terminate(agentID); err != nil {
		return event, err
	}
	return event, nil
}
