package logger

import "fmt"

// LogTaskStarted logs a task being dispatched to an agent.
func (cl *ConsoleLogger) LogTaskStarted(taskName, agentID string) {
	cl.LogInfo(fmt.Sprintf("task %s: started on agent %s", taskName, agentID))
}

// LogTaskCompleted logs a task reaching Completed with its final commit.
func (cl *ConsoleLogger) LogTaskCompleted(taskName, commit string) {
	cl.LogInfo(fmt.Sprintf("task %s: completed at %s", taskName, commit))
}

// LogTaskFailed logs a task reaching Failed.
func (cl *ConsoleLogger) LogTaskFailed(taskName, reason string) {
	cl.LogError(fmt.Sprintf("task %s: failed: %s", taskName, reason))
}

// LogAgentStuck logs an agent exceeding the idle threshold.
func (cl *ConsoleLogger) LogAgentStuck(agentID string, idleSeconds float64) {
	cl.LogWarn(fmt.Sprintf("agent %s: stuck (idle %.0fs)", agentID, idleSeconds))
}

// LogRecoveryTriggered logs the recovery action HealthMonitor chose for an agent.
func (cl *ConsoleLogger) LogRecoveryTriggered(agentID, action string) {
	cl.LogWarn(fmt.Sprintf("agent %s: recovery triggered: %s", agentID, action))
}

// LogPhaseTransition logs a workflow moving from one phase to another.
func (cl *ConsoleLogger) LogPhaseTransition(workflowID, from, to string) {
	cl.LogInfo(fmt.Sprintf("workflow %s: %s -> %s", workflowID, from, to))
}

// LogCleanupReport logs the outcome of a cleanup pass.
func (cl *ConsoleLogger) LogCleanupReport(removed, orphansFound int) {
	cl.LogInfo(fmt.Sprintf("cleanup: removed %d, %d orphan(s) found", removed, orphansFound))
}
