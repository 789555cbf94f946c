// Package config loads zen's orchestrator configuration: the knobs that
// govern concurrency, health/recovery, reactive replanning, cleanup, and
// logging, plus the home-directory resolution in zen_home.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HealthConfig mirrors core.HealthConfig's shape for YAML loading; cmd/zen
// converts it into a core.HealthConfig when wiring the orchestrator.
type HealthConfig struct {
	StuckThreshold time.Duration `yaml:"stuck_threshold"`
	MaxRetries     int           `yaml:"max_retries"`
	StuckPatterns  []string      `yaml:"stuck_patterns"`
	AIRecovery     bool          `yaml:"ai_recovery"`
}

// PlannerConfig mirrors core.PlannerConfig's shape for YAML loading.
type PlannerConfig struct {
	WatchPaths       []string      `yaml:"watch_paths"`
	DebounceDuration time.Duration `yaml:"debounce_duration"`
	RelevantPatterns []string      `yaml:"relevant_patterns"`
}

// CleanupConfig mirrors core.CleanupConfig's shape for YAML loading.
type CleanupConfig struct {
	AutoCleanup   bool          `yaml:"auto_cleanup"`
	CleanupDelay  time.Duration `yaml:"cleanup_delay"`
	KeepFailed    bool          `yaml:"keep_failed"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// WorkflowConfig mirrors core.WorkflowConfig's shape for YAML loading.
type WorkflowConfig struct {
	UpdateDocs    bool   `yaml:"update_docs"`
	StagingPrefix string `yaml:"staging_prefix"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Config is zen's top-level orchestrator configuration: the CLI surface's
// `--config` flag and the `.zen/config.yaml` default both load into this.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	Health   HealthConfig   `yaml:"health"`
	Planner  PlannerConfig  `yaml:"planner"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// DefaultConfig returns the baseline configuration: a 5 minute stuck
// threshold, 3 retries, 1 second debounce, 5 minute cleanup cadence,
// 3 concurrent agents, and documentation enabled.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   ".zen/logs",
		Health: HealthConfig{
			StuckThreshold: 5 * time.Minute,
			MaxRetries:     3,
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
		},
		Planner: PlannerConfig{
			WatchPaths:       []string{".sop/planning"},
			DebounceDuration: 1 * time.Second,
			RelevantPatterns: []string{"plan.md", "detailed-design.md", "code-task.md"},
		},
		Cleanup: CleanupConfig{
			AutoCleanup:   true,
			CleanupDelay:  0,
			KeepFailed:    true,
			CheckInterval: 5 * time.Minute,
		},
		Workflow: WorkflowConfig{
			UpdateDocs:    true,
			StagingPrefix: "zen/staging",
			MaxConcurrent: 3,
		},
	}
}

// yamlConfig mirrors Config but with string durations so zero-value
// durations don't collide with "explicitly set to zero" in YAML
// (time.Duration has no YAML-native form).
type yamlConfig struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	Health struct {
		StuckThreshold string   `yaml:"stuck_threshold"`
		MaxRetries     int      `yaml:"max_retries"`
		StuckPatterns  []string `yaml:"stuck_patterns"`
		AIRecovery     bool     `yaml:"ai_recovery"`
	} `yaml:"health"`

	Planner struct {
		WatchPaths       []string `yaml:"watch_paths"`
		DebounceDuration string   `yaml:"debounce_duration"`
		RelevantPatterns []string `yaml:"relevant_patterns"`
	} `yaml:"planner"`

	Cleanup struct {
		AutoCleanup   *bool  `yaml:"auto_cleanup"`
		CleanupDelay  string `yaml:"cleanup_delay"`
		KeepFailed    *bool  `yaml:"keep_failed"`
		CheckInterval string `yaml:"check_interval"`
	} `yaml:"cleanup"`

	Workflow struct {
		UpdateDocs    *bool  `yaml:"update_docs"`
		StagingPrefix string `yaml:"staging_prefix"`
		MaxConcurrent int    `yaml:"max_concurrent"`
	} `yaml:"workflow"`
}

// LoadConfig loads configuration from path, merging non-zero YAML values
// over DefaultConfig's baseline. A missing file is not an error: it returns
// the defaults, so a config file never has to exist.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.LogDir != "" {
		cfg.LogDir = y.LogDir
	}

	if y.Health.StuckThreshold != "" {
		d, err := time.ParseDuration(y.Health.StuckThreshold)
		if err != nil {
			return nil, fmt.Errorf("invalid health.stuck_threshold %q: %w", y.Health.StuckThreshold, err)
		}
		cfg.Health.StuckThreshold = d
	}
	if y.Health.MaxRetries != 0 {
		cfg.Health.MaxRetries = y.Health.MaxRetries
	}
	if len(y.Health.StuckPatterns) > 0 {
		cfg.Health.StuckPatterns = y.Health.StuckPatterns
	}
	cfg.Health.AIRecovery = y.Health.AIRecovery

	if len(y.Planner.WatchPaths) > 0 {
		cfg.Planner.WatchPaths = y.Planner.WatchPaths
	}
	if y.Planner.DebounceDuration != "" {
		d, err := time.ParseDuration(y.Planner.DebounceDuration)
		if err != nil {
			return nil, fmt.Errorf("invalid planner.debounce_duration %q: %w", y.Planner.DebounceDuration, err)
		}
		cfg.Planner.DebounceDuration = d
	}
	if len(y.Planner.RelevantPatterns) > 0 {
		cfg.Planner.RelevantPatterns = y.Planner.RelevantPatterns
	}

	if y.Cleanup.AutoCleanup != nil {
		cfg.Cleanup.AutoCleanup = *y.Cleanup.AutoCleanup
	}
	if y.Cleanup.CleanupDelay != "" {
		d, err := time.ParseDuration(y.Cleanup.CleanupDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid cleanup.cleanup_delay %q: %w", y.Cleanup.CleanupDelay, err)
		}
		cfg.Cleanup.CleanupDelay = d
	}
	if y.Cleanup.KeepFailed != nil {
		cfg.Cleanup.KeepFailed = *y.Cleanup.KeepFailed
	}
	if y.Cleanup.CheckInterval != "" {
		d, err := time.ParseDuration(y.Cleanup.CheckInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid cleanup.check_interval %q: %w", y.Cleanup.CheckInterval, err)
		}
		cfg.Cleanup.CheckInterval = d
	}

	if y.Workflow.UpdateDocs != nil {
		cfg.Workflow.UpdateDocs = *y.Workflow.UpdateDocs
	}
	if y.Workflow.StagingPrefix != "" {
		cfg.Workflow.StagingPrefix = y.Workflow.StagingPrefix
	}
	if y.Workflow.MaxConcurrent != 0 {
		cfg.Workflow.MaxConcurrent = y.Workflow.MaxConcurrent
	}

	return cfg, nil
}

// LoadConfigFromZenHome loads `$ZEN_HOME/config.yaml`, falling back to
// defaults when zen home can't be resolved or the file doesn't exist.
func LoadConfigFromZenHome() (*Config, error) {
	home, err := GetZenHome()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(home + "/config.yaml")
}

// MergeWithFlags overlays non-nil CLI flag values onto the config, CLI
// flags taking precedence over the file.
func (c *Config) MergeWithFlags(maxConcurrent *int, updateDocs *bool, logDir *string) {
	if maxConcurrent != nil {
		c.Workflow.MaxConcurrent = *maxConcurrent
	}
	if updateDocs != nil {
		c.Workflow.UpdateDocs = *updateDocs
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
}

// Validate checks the merged configuration for internally-inconsistent
// values before it's wired into the orchestrator.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}
	if c.Health.StuckThreshold <= 0 {
		return fmt.Errorf("health.stuck_threshold must be > 0, got %v", c.Health.StuckThreshold)
	}
	if c.Health.MaxRetries < 0 {
		return fmt.Errorf("health.max_retries must be >= 0, got %d", c.Health.MaxRetries)
	}
	if c.Planner.DebounceDuration < 0 {
		return fmt.Errorf("planner.debounce_duration must be >= 0, got %v", c.Planner.DebounceDuration)
	}
	if c.Cleanup.CheckInterval <= 0 {
		return fmt.Errorf("cleanup.check_interval must be > 0, got %v", c.Cleanup.CheckInterval)
	}
	if c.Workflow.MaxConcurrent <= 0 {
		return fmt.Errorf("workflow.max_concurrent must be > 0, got %d", c.Workflow.MaxConcurrent)
	}
	if c.Workflow.StagingPrefix == "" {
		return fmt.Errorf("workflow.staging_prefix cannot be empty")
	}
	return nil
}
