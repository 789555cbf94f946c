package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zenhq/zen/internal/models"
)

// FileLogger logs workflow events to files in the .zen/logs/ directory.
// It creates timestamped per-run log files, per-task detailed logs, and
// maintains a latest.log symlink pointing to the most recent run. It is
// thread-safe and supports log level filtering.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	tasksDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a new FileLogger that writes to .zen/logs/ in the
// current working directory. Uses default log level "info".
func NewFileLogger() (*FileLogger, error) {
	logDir := filepath.Join(".zen", "logs")
	return NewFileLoggerWithDirAndLevel(logDir, "info")
}

// NewFileLoggerWithDir creates a new FileLogger with a custom log directory.
// Uses default log level "info".
func NewFileLoggerWithDir(logDir string) (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(logDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a new FileLogger with a custom log
// directory and log level.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	tasksDir := filepath.Join(logDir, "tasks")
	if err := os.MkdirAll(tasksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create tasks directory: %w", err)
	}

	// Timestamped filename: run-YYYYMMDD-HHMMSS.log
	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	// Re-point latest.log at this run.
	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		tasksDir: tasksDir,
		logLevel: normalizeLogLevel(logLevel),
		mu:       sync.Mutex{},
	}

	logger.writeRunLog("=== Zen Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

// shouldLog checks if a message at the given level should be logged.
func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (fl *FileLogger) LogTrace(message string) {
	fl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) {
	fl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) {
	fl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

// Infof logs a formatted info-level message.
func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.LogInfo(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning-level message.
func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.LogWarn(fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the specified level if filtering allows it.
func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	formatted := fmt.Sprintf("[%s] [%s] %s\n", time.Now().Format("15:04:05"), level, message)
	fl.writeRunLog(formatted)
}

// LogPhaseStart logs a workflow phase beginning.
func (fl *FileLogger) LogPhaseStart(phase string) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("\n=== Phase: %s ===\n", phase))
}

// LogPhaseComplete logs a workflow phase finishing, with its duration.
func (fl *FileLogger) LogPhaseComplete(phase string, duration time.Duration) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("=== Phase %s complete in %s ===\n", phase, formatDuration(duration)))
}

// LogTaskStart logs a task being dispatched.
func (fl *FileLogger) LogTaskStart(task models.Task, agentID string, current, total int) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%d/%d] started: %s (agent %s)\n",
		time.Now().Format("15:04:05"), current, total, task.Name, agentID))
}

// LogTaskResult appends the task outcome to the run log and writes the
// task's detailed record (including execution history) to its own file
// under tasks/.
func (fl *FileLogger) LogTaskResult(result models.TaskResult) error {
	if fl.shouldLog("info") {
		line := fmt.Sprintf("[%s] %s %s [%s] (%s)\n",
			time.Now().Format("15:04:05"),
			statusIcon(result.Status), result.Task.Name, result.Status,
			formatDuration(result.Duration))
		fl.writeRunLog(line)
	}
	return fl.writeTaskLog(result)
}

// writeTaskLog writes the per-task detail file: tasks/task-<number>.log.
func (fl *FileLogger) writeTaskLog(result models.TaskResult) error {
	path := filepath.Join(fl.tasksDir, fmt.Sprintf("task-%s.log", result.Task.Number))

	var sb strings.Builder
	fmt.Fprintf(&sb, "Task:     %s (%s)\n", result.Task.Name, result.Task.Number)
	fmt.Fprintf(&sb, "Status:   %s\n", result.Status)
	fmt.Fprintf(&sb, "Agent:    %s\n", result.AgentID)
	fmt.Fprintf(&sb, "Worktree: %s\n", result.WorktreePath)
	fmt.Fprintf(&sb, "Branch:   %s\n", result.BranchName)
	fmt.Fprintf(&sb, "Commit:   %s\n", result.CommitHash)
	fmt.Fprintf(&sb, "Duration: %s\n", result.Duration)
	fmt.Fprintf(&sb, "Retries:  %d\n", result.RetryCount)
	if result.Error != nil {
		fmt.Fprintf(&sb, "Error:    %v\n", result.Error)
	}
	for _, attempt := range result.ExecutionHistory {
		fmt.Fprintf(&sb, "\n--- Attempt %d (agent %s, %s) ---\n%s\n",
			attempt.Attempt, attempt.AgentID, attempt.Duration, attempt.Output)
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write task log: %w", err)
	}
	return nil
}

// LogSummary writes the final workflow summary block to the run log.
func (fl *FileLogger) LogSummary(result models.ExecutionResult) {
	if !fl.shouldLog("info") {
		return
	}

	var sb strings.Builder
	sb.WriteString("\n=== Workflow Summary ===\n")
	fmt.Fprintf(&sb, "Total tasks: %d\n", result.TotalTasks)
	fmt.Fprintf(&sb, "Completed:   %d\n", result.Completed)
	fmt.Fprintf(&sb, "Failed:      %d\n", result.Failed)
	fmt.Fprintf(&sb, "Duration:    %s (avg %s/task)\n",
		formatDuration(result.Duration), formatDuration(result.AvgTaskDuration))
	if result.TotalFiles > 0 {
		fmt.Fprintf(&sb, "Files:       %d\n", result.TotalFiles)
	}
	for _, ac := range sortAgentsByCount(result.AgentUsage) {
		fmt.Fprintf(&sb, "Agent %s: %d task(s)\n", ac.Agent, ac.Count)
	}
	for _, failed := range result.FailedTasks {
		fmt.Fprintf(&sb, "FAILED: %s", failed.Task.Name)
		if failed.Error != nil {
			fmt.Fprintf(&sb, ": %v", failed.Error)
		}
		sb.WriteString("\n")
	}
	fl.writeRunLog(sb.String())
}

// RunFile returns the path of the current run log file.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return nil
	}
	fl.writeRunLogLocked(fmt.Sprintf("\nFinished at: %s\n", time.Now().Format(time.RFC3339)))
	err := fl.runLog.Close()
	fl.runLog = nil
	return err
}

// writeRunLog appends to the run log under the mutex.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.writeRunLogLocked(message)
}

func (fl *FileLogger) writeRunLogLocked(message string) {
	if fl.runLog == nil {
		return
	}
	fl.runLog.WriteString(message)
}
