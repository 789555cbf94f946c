package models

import "time"

// Task execution status constants
const (
	StatusCompleted = "completed" // Task finished and its commit was recorded
	StatusFailed    = "failed"    // Task's agent exited non-zero or was terminated
	StatusCancelled = "cancelled" // Task was cancelled before it could finish
)

// ExecutionAttempt represents a single execution attempt (for retry tracking)
type ExecutionAttempt struct {
	Attempt  int    // Attempt number (1-indexed)
	AgentID  string // Agent that ran this attempt
	Output   string // Captured pane output from the attempt
	Duration time.Duration
}

// TaskResult represents the result of executing a single task
type TaskResult struct {
	Task             Task               // The task that was executed
	Status           string             // Status: "completed", "failed", "cancelled"
	AgentID          string             // Agent that ran the task
	WorktreePath     string             // Worktree the task ran in
	BranchName       string             // Branch the task committed to
	CommitHash       string             // Final commit left by the agent
	Error            error              // Error if execution failed
	Duration         time.Duration      // Time taken to execute
	RetryCount       int                // Number of retries attempted
	ExecutionHistory []ExecutionAttempt // Detailed history of all attempts
	SessionID        string             // Multiplexer session name (for reattach)
}

// ExecutionResult represents the aggregate result of executing a workflow's DAG
type ExecutionResult struct {
	TotalTasks      int            `json:"total_tasks" yaml:"total_tasks"`             // Total number of tasks
	Completed       int            `json:"completed" yaml:"completed"`                 // Number of completed tasks
	Failed          int            `json:"failed" yaml:"failed"`                       // Number of failed or cancelled tasks
	Duration        time.Duration  `json:"duration" yaml:"duration"`                   // Total execution time
	FailedTasks     []TaskResult   `json:"failed_tasks" yaml:"failed_tasks"`           // Details of failed tasks
	StatusBreakdown map[string]int `json:"status_breakdown" yaml:"status_breakdown"`   // Count by status
	AgentUsage      map[string]int `json:"agent_usage" yaml:"agent_usage"`             // Count by agent name
	TotalFiles      int            `json:"total_files" yaml:"total_files"`             // Count of unique files touched
	AvgTaskDuration time.Duration  `json:"avg_task_duration" yaml:"avg_task_duration"` // Average duration per task
}

// calculateMetricsFromResults calculates all metrics from a slice of TaskResults.
// Shared by NewExecutionResult and CalculateMetrics.
func (er *ExecutionResult) calculateMetricsFromResults(results []TaskResult) {
	// Initialize all status keys to ensure they exist even with zero values
	er.StatusBreakdown[StatusCompleted] = 0
	er.StatusBreakdown[StatusFailed] = 0
	er.StatusBreakdown[StatusCancelled] = 0

	er.Completed = 0
	er.Failed = 0

	uniqueFiles := make(map[string]bool)

	for _, result := range results {
		if result.Status != "" {
			er.StatusBreakdown[result.Status]++
		}

		// Track agent usage (tasks with no agent are not counted)
		if result.AgentID != "" {
			er.AgentUsage[result.AgentID]++
		}

		for _, file := range result.Task.Files {
			uniqueFiles[file] = true
		}

		if result.Status == StatusCompleted {
			er.Completed++
		} else {
			er.Failed++
			if er.FailedTasks != nil {
				er.FailedTasks = append(er.FailedTasks, result)
			}
		}
	}

	er.TotalFiles = len(uniqueFiles)

	if len(results) > 0 {
		totalDur := time.Duration(0)
		for _, result := range results {
			totalDur += result.Duration
		}
		er.AvgTaskDuration = totalDur / time.Duration(len(results))
	}

	// Remove empty agent entry if it has zero count
	if er.AgentUsage[""] == 0 {
		delete(er.AgentUsage, "")
	}
}

// NewExecutionResult creates a new ExecutionResult with calculated metrics
func NewExecutionResult(results []TaskResult, totalDuration time.Duration) *ExecutionResult {
	er := &ExecutionResult{
		TotalTasks:      len(results),
		Duration:        totalDuration,
		FailedTasks:     []TaskResult{},
		StatusBreakdown: make(map[string]int),
		AgentUsage:      make(map[string]int),
	}
	er.calculateMetricsFromResults(results)
	return er
}

// CalculateMetrics updates the result with calculated metrics (used for existing results)
func (er *ExecutionResult) CalculateMetrics(results []TaskResult) {
	er.StatusBreakdown = make(map[string]int)
	er.AgentUsage = make(map[string]int)
	er.calculateMetricsFromResults(results)
}

// Success reports whether every task in the run completed.
func (er *ExecutionResult) Success() bool {
	return er.Failed == 0
}
