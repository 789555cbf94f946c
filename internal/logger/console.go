// Package logger provides logging implementations for zen workflow
// execution.
//
// The logger package offers structured logging of orchestration progress at
// the task, phase, and summary levels. Implementations are thread-safe and
// support various output destinations (console, file, etc.).
package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/zenhq/zen/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs workflow progress to a writer with timestamps and
// thread safety. All output is prefixed with [HH:MM:SS] timestamps for
// tracking execution flow. It supports log level filtering to control
// message verbosity. Color output is automatically enabled for terminal
// output (os.Stdout/os.Stderr). Verbose mode extends task result output to
// multi-line format with detailed information.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	verbose     bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// io.Writer. If writer is nil, messages are silently discarded. logLevel
// determines the minimum log level for messages to be output. Valid levels:
// trace, debug, info, warn, error (case-insensitive). If logLevel is empty
// or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		mutex:       sync.Mutex{},
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// Returns true for os.Stdout and os.Stderr when they are TTYs.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
	if w == os.Stderr {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

// SetVerbose sets the verbose mode for task result logging.
// When true, LogTaskResult() outputs multi-line detailed format.
func (cl *ConsoleLogger) SetVerbose(verbose bool) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.verbose = verbose
}

// IsVerbose returns whether verbose mode is enabled for task result logging.
func (cl *ConsoleLogger) IsVerbose() bool {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	return cl.verbose
}

// normalizeLogLevel converts a log level string to lowercase and validates
// it. Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if validLevels[normalized] {
		return normalized
	}
	return "info"
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// LogTrace logs a trace-level message (most verbose).
// Format: "[HH:MM:SS] [TRACE] <message>"
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

// Info logs an info-level message (alias for LogInfo).
func (cl *ConsoleLogger) Info(message string) {
	cl.LogInfo(message)
}

// Infof logs a formatted info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.LogInfo(fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.LogWarn(fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the specified level if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = cl.formatWithColor(ts, level, message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}
	cl.writer.Write([]byte(formatted))
}

// formatWithColor formats a log message with ANSI color codes.
func (cl *ConsoleLogger) formatWithColor(ts, level, message string) string {
	var coloredLevel string
	switch strings.ToUpper(level) {
	case "TRACE":
		coloredLevel = color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		coloredLevel = color.New(color.FgCyan).Sprint(level)
	case "INFO":
		coloredLevel = color.New(color.FgBlue).Sprint(level)
	case "WARN":
		coloredLevel = color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		coloredLevel = color.New(color.FgRed).Sprint(level)
	default:
		coloredLevel = level
	}
	return fmt.Sprintf("[%s] [%s] %s\n", ts, coloredLevel, message)
}

// timestamp returns the current time formatted as HH:MM:SS.
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// LogPhaseStart logs a workflow phase beginning at INFO level.
// Format: "[HH:MM:SS] ==> Planning"
func (cl *ConsoleLogger) LogPhaseStart(phase string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := fmt.Sprintf("==> %s", phase)
	if cl.colorOutput {
		label = color.New(color.FgCyan, color.Bold).Sprint(label)
	}
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp(), label)
}

// LogPhaseComplete logs a workflow phase finishing, with its duration.
func (cl *ConsoleLogger) LogPhaseComplete(phase string, duration time.Duration) {
	cl.Infof("%s complete (%s)", phase, formatDuration(duration))
}

// LogTaskStart logs a task being dispatched at INFO level.
// Format: "[HH:MM:SS] [3/7] implement parser (agent a1b2c3d4)"
func (cl *ConsoleLogger) LogTaskStart(task models.Task, agentID string, current, total int) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	progress := fmt.Sprintf("[%d/%d]", current, total)
	if cl.colorOutput {
		progress = color.New(color.FgCyan).Sprint(progress)
	}
	line := fmt.Sprintf("[%s] %s %s", timestamp(), progress, task.Name)
	if agentID != "" {
		line += fmt.Sprintf(" (agent %s)", agentID)
	}
	fmt.Fprintln(cl.writer, line)
}

// LogTaskResult logs the outcome of a single task. In compact mode this is
// one status line; in verbose mode it expands into worktree, branch, retry,
// and error details.
func (cl *ConsoleLogger) LogTaskResult(result models.TaskResult) error {
	if cl.writer == nil || !cl.shouldLog("info") {
		return nil
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if cl.verbose {
		return cl.logTaskResultVerbose(result)
	}
	return cl.logTaskResultCompact(result)
}

func (cl *ConsoleLogger) logTaskResultCompact(result models.TaskResult) error {
	icon := statusIcon(result.Status)
	if cl.colorOutput {
		icon = colorizeStatus(icon, result.Status)
	}

	line := fmt.Sprintf("[%s] %s %s (%s)", timestamp(), icon, result.Task.Name, formatDuration(result.Duration))
	if result.CommitHash != "" {
		line += fmt.Sprintf(" @ %s", shortCommit(result.CommitHash))
	}
	if result.Error != nil {
		line += fmt.Sprintf(": %v", result.Error)
	}

	_, err := fmt.Fprintln(cl.writer, line)
	return err
}

func (cl *ConsoleLogger) logTaskResultVerbose(result models.TaskResult) error {
	icon := statusIcon(result.Status)
	if cl.colorOutput {
		icon = colorizeStatus(icon, result.Status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s [%s]\n", timestamp(), icon, result.Task.Name, result.Status)
	if result.AgentID != "" {
		fmt.Fprintf(&sb, "      agent:    %s\n", result.AgentID)
	}
	if result.WorktreePath != "" {
		fmt.Fprintf(&sb, "      worktree: %s\n", result.WorktreePath)
	}
	if result.BranchName != "" {
		fmt.Fprintf(&sb, "      branch:   %s\n", result.BranchName)
	}
	if result.CommitHash != "" {
		fmt.Fprintf(&sb, "      commit:   %s\n", shortCommit(result.CommitHash))
	}
	fmt.Fprintf(&sb, "      duration: %s\n", formatDuration(result.Duration))
	if result.RetryCount > 0 {
		fmt.Fprintf(&sb, "      retries:  %d\n", result.RetryCount)
	}
	if result.Error != nil {
		fmt.Fprintf(&sb, "      error:    %v\n", result.Error)
	}

	_, err := cl.writer.Write([]byte(sb.String()))
	return err
}

// LogMergeResult logs a task branch's merge outcome at INFO (success) or
// WARN (conflicts) level.
func (cl *ConsoleLogger) LogMergeResult(taskName string, commit string, conflictFiles []string) {
	if len(conflictFiles) > 0 {
		cl.Warnf("merge %s: %d conflicting file(s): %s",
			taskName, len(conflictFiles), strings.Join(conflictFiles, ", "))
		return
	}
	cl.Infof("merge %s: %s", taskName, shortCommit(commit))
}

// LogProgress renders an inline progress bar over the run's task results.
func (cl *ConsoleLogger) LogProgress(results []models.TaskResult, total int) {
	if cl.writer == nil || !cl.shouldLog("info") || total == 0 {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	finished := 0
	for _, r := range results {
		if r.Status != "" {
			finished++
		}
	}

	bar := NewProgressBar(total, 20, cl.colorOutput)
	bar.Update(finished)
	bar.SetPrefix("tasks ")
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp(), bar.Render())
}

// AgentCount pairs an agent id with its task count, for sorted display.
type AgentCount struct {
	Agent string
	Count int
}

// sortAgentsByCount returns agents ordered by descending task count,
// breaking ties by name so output is stable.
func sortAgentsByCount(agentUsage map[string]int) []AgentCount {
	counts := make([]AgentCount, 0, len(agentUsage))
	for agent, count := range agentUsage {
		counts = append(counts, AgentCount{Agent: agent, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Agent < counts[j].Agent
	})
	return counts
}

// LogSummary renders the final boxed workflow summary: totals, status
// breakdown, agent usage, and the failed-task list.
func (cl *ConsoleLogger) LogSummary(result models.ExecutionResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	var out strings.Builder
	w := getTerminalWidth()

	out.WriteString(drawBoxTop(w) + "\n")

	header := "Workflow Summary"
	if cl.colorOutput {
		header = color.New(color.FgCyan, color.Bold).Sprint(header)
	}
	out.WriteString(drawBoxLine(header, w) + "\n")
	out.WriteString(drawBoxDivider(w) + "\n")

	scheme := newColorScheme()
	completedLine := fmt.Sprintf("completed: %d/%d", result.Completed, result.TotalTasks)
	failedLine := fmt.Sprintf("failed: %d", result.Failed)
	if cl.colorOutput {
		completedLine = scheme.success.Sprintf("completed: %d/%d", result.Completed, result.TotalTasks)
		if result.Failed > 0 {
			failedLine = scheme.fail.Sprintf("failed: %d", result.Failed)
		}
	}
	out.WriteString(drawBoxLine(completedLine, w) + "\n")
	out.WriteString(drawBoxLine(failedLine, w) + "\n")
	out.WriteString(drawBoxLine(fmt.Sprintf("duration: %s (avg %s/task)",
		formatDuration(result.Duration), formatDuration(result.AvgTaskDuration)), w) + "\n")
	if result.TotalFiles > 0 {
		out.WriteString(drawBoxLine(fmt.Sprintf("files touched: %d", result.TotalFiles), w) + "\n")
	}

	if len(result.AgentUsage) > 0 {
		out.WriteString(drawBoxDivider(w) + "\n")
		for _, ac := range sortAgentsByCount(result.AgentUsage) {
			out.WriteString(drawBoxLine(fmt.Sprintf("agent %s: %d task(s)", ac.Agent, ac.Count), w) + "\n")
		}
	}

	if len(result.FailedTasks) > 0 {
		out.WriteString(drawBoxDivider(w) + "\n")
		for _, failed := range result.FailedTasks {
			line := fmt.Sprintf("%s %s", statusIcon(failed.Status), failed.Task.Name)
			if failed.Error != nil {
				line += fmt.Sprintf(": %v", failed.Error)
			}
			if cl.colorOutput {
				line = scheme.fail.Sprint(line)
			}
			out.WriteString(drawBoxLine(line, w) + "\n")
		}
	}

	out.WriteString(drawBoxBottom(w) + "\n")
	cl.writer.Write([]byte(out.String()))
}

// statusIcon maps a task status to its display glyph.
func statusIcon(status string) string {
	switch status {
	case models.StatusCompleted:
		return "✓"
	case models.StatusFailed:
		return "✗"
	case models.StatusCancelled:
		return "⊘"
	default:
		return "•"
	}
}

// shortCommit truncates a commit hash to 8 characters for display.
func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// getTerminalWidth returns the stdout terminal width capped at 120, falling
// back to 80 columns when stdout is not a terminal or is narrower than 60.
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 60 {
		return 80
	}
	if width > 120 {
		return 120
	}
	return width
}

// Box drawing characters
const (
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"
	boxHorizontal  = "─"
	boxVertical    = "│"
	boxTeeLeft     = "├"
	boxTeeRight    = "┤"
)

// ANSI color codes for box drawing
const (
	cyanColor  = "\033[36m"
	resetColor = "\033[0m"
)

// drawBoxTop draws the top border of a box (colored cyan)
func drawBoxTop(width int) string {
	return cyanColor + boxTopLeft + strings.Repeat(boxHorizontal, width-2) + boxTopRight + resetColor
}

// drawBoxBottom draws the bottom border of a box (colored cyan)
func drawBoxBottom(width int) string {
	return cyanColor + boxBottomLeft + strings.Repeat(boxHorizontal, width-2) + boxBottomRight + resetColor
}

// drawBoxDivider draws a horizontal divider within a box (colored cyan)
func drawBoxDivider(width int) string {
	return cyanColor + boxTeeLeft + strings.Repeat(boxHorizontal, width-2) + boxTeeRight + resetColor
}

// drawBoxLine draws a line of content within a box, padding to width
func drawBoxLine(content string, width int) string {
	visibleLen := visibleLength(content)
	padding := width - 4 - visibleLen // -4 for "│ " and " │"
	if padding < 0 {
		padding = 0
		content = truncateToVisibleWidth(content, width-4)
	}
	return cyanColor + boxVertical + resetColor + " " + content + strings.Repeat(" ", padding) + " " + cyanColor + boxVertical + resetColor
}

// visibleLength returns the visible terminal width of a string (excluding
// ANSI codes). Uses runewidth to properly handle wide characters.
func visibleLength(s string) int {
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	clean := ansiRegex.ReplaceAllString(s, "")
	return runewidth.StringWidth(clean)
}

// truncateToVisibleWidth truncates a string to a visible width.
func truncateToVisibleWidth(s string, maxWidth int) string {
	if visibleLength(s) <= maxWidth {
		return s
	}
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	clean := ansiRegex.ReplaceAllString(s, "")
	return runewidth.Truncate(clean, maxWidth-3, "...")
}

// formatDuration renders a duration compactly: "45s", "3m20s", "1h12m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) - m*60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) - h*60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}

// NoOpLogger discards everything. Used where a logger is required but
// output is not wanted (tests, --quiet paths).
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that does nothing.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(message string)                  {}
func (n *NoOpLogger) LogDebug(message string)                  {}
func (n *NoOpLogger) LogInfo(message string)                   {}
func (n *NoOpLogger) LogWarn(message string)                   {}
func (n *NoOpLogger) LogError(message string)                  {}
func (n *NoOpLogger) Infof(format string, args ...interface{}) {}
func (n *NoOpLogger) Warnf(format string, args ...interface{}) {}
func (n *NoOpLogger) LogPhaseStart(phase string)               {}
func (n *NoOpLogger) LogPhaseComplete(phase string, duration time.Duration)             {}
func (n *NoOpLogger) LogTaskStart(task models.Task, agentID string, current, total int) {}
func (n *NoOpLogger) LogTaskResult(result models.TaskResult) error                      { return nil }
func (n *NoOpLogger) LogProgress(results []models.TaskResult, total int)                {}
func (n *NoOpLogger) LogSummary(result models.ExecutionResult)                          {}
