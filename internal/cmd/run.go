package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenhq/zen/internal/claude"
	"github.com/zenhq/zen/internal/config"
	"github.com/zenhq/zen/internal/core"
	"github.com/zenhq/zen/internal/logger"
	"github.com/zenhq/zen/internal/models"
)

// NewRunCommand creates the run command: it drives one prompt through all
// five workflow phases.
func NewRunCommand() *cobra.Command {
	var (
		configPath    string
		maxConcurrent int
		updateDocs    bool
		noUpdateDocs  bool
		logDir        string
		timeoutFlag   string
	)

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a prompt through the full planning-to-documentation workflow",
		Long: `Run orchestrates concurrent AI coding agents to execute a five-phase
workflow (Planning, Task Generation, Implementation, Merging, Documentation)
derived from a single natural-language prompt, each task running in its own
git worktree under its own terminal-multiplexer session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			prompt := args[0]
			for _, extra := range args[1:] {
				prompt += " " + extra
			}
			return runWorkflow(c, prompt, runOptions{
				configPath:    configPath,
				maxConcurrent: maxConcurrent,
				updateDocs:    updateDocs,
				noUpdateDocs:  noUpdateDocs,
				logDir:        logDir,
				timeout:       timeoutFlag,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: $ZEN_HOME/config.yaml)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrency", 0, "maximum number of concurrent agents (0 = use config)")
	cmd.Flags().BoolVar(&updateDocs, "update-docs", false, "run the Documentation phase (overrides config)")
	cmd.Flags().BoolVar(&noUpdateDocs, "no-update-docs", false, "skip the Documentation phase (overrides config)")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "directory for log files")
	cmd.Flags().StringVar(&timeoutFlag, "timeout", "", "maximum workflow execution time (e.g. 30m, 2h)")

	return cmd
}

type runOptions struct {
	configPath    string
	maxConcurrent int
	updateDocs    bool
	noUpdateDocs  bool
	logDir        string
	timeout       string
}

func runWorkflow(c *cobra.Command, prompt string, opts runOptions) error {
	cfg, err := loadRunConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := cfg.LogLevel
	if flags.debug {
		logLevel = "debug"
	}
	consoleLog := logger.NewConsoleLogger(c.OutOrStdout(), logLevel)

	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, logLevel)
	if err != nil {
		consoleLog.Warnf("file logging disabled: %v", err)
		fileLog = nil
	} else {
		defer fileLog.Close()
	}

	repoPath, err := core.RepoRootFromCwd()
	if err != nil {
		return err
	}
	worktreeRoot, err := config.GetWorktreeRoot()
	if err != nil {
		worktreeRoot = repoPath + "/.zen/worktrees"
	}

	repo := core.NewGitOps(repoPath)
	tmux := core.NewTmux()
	invoker := claude.NewInvoker()

	dag := core.NewTaskDAG()
	plannerConfig := core.PlannerConfig{
		WatchPaths:       cfg.Planner.WatchPaths,
		DebounceDuration: cfg.Planner.DebounceDuration,
		RelevantPatterns: cfg.Planner.RelevantPatterns,
	}
	planner := core.NewReactivePlanner(dag, plannerConfig, repoPath)

	watcher, err := planner.Watch()
	if err != nil {
		consoleLog.Warnf("reactive replanning disabled: %v", err)
	} else {
		defer watcher.Close()
		go pumpReplanEvents(planner, consoleLog)
	}

	pool := core.NewAgentPool(cfg.Workflow.MaxConcurrent)
	resolver := core.NewConflictResolver(repo)
	healthConfig := core.HealthConfig{
		StuckThreshold: cfg.Health.StuckThreshold,
		MaxRetries:     cfg.Health.MaxRetries,
		StuckPatterns:  cfg.Health.StuckPatterns,
	}
	health := core.NewHealthMonitor(healthConfig, pool)
	if cfg.Health.AIRecovery {
		health.SetAdvisor(newRecoveryAdvisor(invoker))
	}
	launcher := core.NewAgentLauncher(repo, tmux, invoker, worktreeRoot)

	planning := newPlanningRunner(invoker, flags.trust, consoleLog)
	taskGen := newTaskGenerationRunner(invoker, flags.trust, planner)
	var docs core.DocRunner
	if cfg.Workflow.UpdateDocs {
		docs = newDocRunner(invoker, flags.trust)
	}

	orchestrator := core.NewSkillsOrchestrator(
		pool, planner, resolver, health, launcher, launcher, repoPath,
		planning, taskGen, docs, consoleLog,
	)

	cleanupConfig := core.CleanupConfig{
		AutoCleanup:   cfg.Cleanup.AutoCleanup,
		CleanupDelay:  cfg.Cleanup.CleanupDelay,
		KeepFailed:    cfg.Cleanup.KeepFailed,
		CheckInterval: cfg.Cleanup.CheckInterval,
	}
	cleanup := core.NewCleanupManager(cleanupConfig, repo, tmux, worktreeRoot, "zen_")
	orchestrator.SetCleanup(cleanup)

	ctx := context.Background()
	if opts.timeout != "" {
		d, err := time.ParseDuration(opts.timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", opts.timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// Background orphan detection for the workflow's lifetime; known ids are
	// whatever the DAG holds at each tick, so worktrees and sessions from a
	// previous crashed run are the ones that show up as orphans.
	go cleanup.RunBackgroundLoop(ctx, func() []string {
		var ids []string
		for _, task := range dag.Snapshot() {
			ids = append(ids, task.ID.Short())
		}
		return ids
	})
	defer cleanup.Stop()
	go pumpCleanupEvents(cleanup, consoleLog)

	workflowConfig := core.WorkflowConfig{
		UpdateDocs:    cfg.Workflow.UpdateDocs,
		StagingPrefix: cfg.Workflow.StagingPrefix,
		MaxConcurrent: cfg.Workflow.MaxConcurrent,
	}

	started := time.Now()
	result := orchestrator.Execute(ctx, prompt, workflowConfig)

	if taskResults := orchestrator.TaskResults(); len(taskResults) > 0 {
		summary := models.NewExecutionResult(taskResults, time.Since(started))
		consoleLog.LogSummary(*summary)
		if fileLog != nil {
			for _, tr := range taskResults {
				if err := fileLog.LogTaskResult(tr); err != nil {
					consoleLog.Warnf("writing task log: %v", err)
				}
			}
			fileLog.LogSummary(*summary)
		}
	}

	if !result.IsSuccess() {
		return fmt.Errorf("workflow failed: %s", result.Reason)
	}
	fmt.Fprintf(c.OutOrStdout(), "workflow %s completed\n", orchestrator.Workflow().ID.Short())
	return nil
}

// loadRunConfig loads the config file, then overlays CLI flags on top.
func loadRunConfig(opts runOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadConfig(opts.configPath)
	} else {
		cfg, err = config.LoadConfigFromZenHome()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var maxConcurrent *int
	if opts.maxConcurrent > 0 {
		maxConcurrent = &opts.maxConcurrent
	}
	var updateDocs *bool
	if opts.updateDocs {
		v := true
		updateDocs = &v
	}
	if opts.noUpdateDocs {
		v := false
		updateDocs = &v
	}
	var logDir *string
	if opts.logDir != "" {
		logDir = &opts.logDir
	}
	cfg.MergeWithFlags(maxConcurrent, updateDocs, logDir)
	return cfg, nil
}

// pumpReplanEvents drains the planner's event channel for the workflow's
// lifetime, triggering a full replan whenever a watched file changes.
// ReactivePlanner.Watch only detects and debounces changes; something has
// to turn a PlanFileChanged notification into an actual OnPlanChanged call.
func pumpReplanEvents(planner *core.ReactivePlanner, log *logger.ConsoleLogger) {
	for event := range planner.Events() {
		switch event.Kind {
		case core.PlanFileChanged:
			planner.OnPlanChanged()
		case core.PlanTasksAdded:
			log.Infof("replan: %d task(s) added", len(event.Tasks))
		case core.PlanTasksCancelled:
			log.Infof("replan: %d task(s) cancelled", len(event.IDs))
		}
	}
}

// pumpCleanupEvents drains the cleanup manager's event channel for the
// workflow's lifetime, surfacing orphan counts and cleanup errors on the
// console.
func pumpCleanupEvents(cleanup *core.CleanupManager, log *logger.ConsoleLogger) {
	for event := range cleanup.Events() {
		switch event.Kind {
		case core.CleanupCheckCompleted:
			total := event.Counts.Worktrees + event.Counts.Branches + event.Counts.Sessions
			if total > 0 {
				log.Infof("cleanup check: %d orphaned worktree(s), %d branch(es), %d session(s)",
					event.Counts.Worktrees, event.Counts.Branches, event.Counts.Sessions)
			}
		case core.CleanupPerformed:
			log.Infof("cleanup: removed %d worktree(s), %d branch(es), %d session(s)",
				event.Counts.Worktrees, event.Counts.Branches, event.Counts.Sessions)
		case core.CleanupError:
			log.Warnf("cleanup: %s", event.Message)
		}
	}
}
