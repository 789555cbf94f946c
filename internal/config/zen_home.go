package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetZenHome returns the zen home directory.
// Priority order:
//  1. ZEN_HOME environment variable (if set)
//  2. zen repository root (detected by finding go.mod)
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist.
func GetZenHome() (string, error) {
	if home := os.Getenv("ZEN_HOME"); home != "" {
		return home, nil
	}

	repoRoot, err := findZenRepoRoot()
	if err == nil && repoRoot != "" {
		zenHome := filepath.Join(repoRoot, ".zen")
		if err := os.MkdirAll(zenHome, 0755); err != nil {
			return "", fmt.Errorf("create zen home directory: %w", err)
		}
		return zenHome, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	zenHome := filepath.Join(cwd, ".zen")
	if err := os.MkdirAll(zenHome, 0755); err != nil {
		return "", fmt.Errorf("create zen home directory: %w", err)
	}

	return zenHome, nil
}

// findZenRepoRoot finds the zen repository root by looking for a
// .zen-root marker file, or a go.mod containing the zen module path.
func findZenRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	current := cwd
	for {
		markerPath := filepath.Join(current, ".zen-root")
		if _, err := os.Stat(markerPath); err == nil {
			return current, nil
		}

		goModPath := filepath.Join(current, "go.mod")
		if data, err := os.ReadFile(goModPath); err == nil {
			if strings.Contains(string(data), "github.com/zenhq/zen") {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("zen repository root not found (looking for .zen-root or go.mod with github.com/zenhq/zen)")
}

// GetSessionStatePath returns the absolute path to the persisted session
// state file: $ZEN_HOME/sessions.json.
func GetSessionStatePath() (string, error) {
	home, err := GetZenHome()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, "sessions.json"), nil
}

// GetWorktreeRoot returns the directory under which per-task git worktrees
// are created: $ZEN_HOME/worktrees.
func GetWorktreeRoot() (string, error) {
	home, err := GetZenHome()
	if err != nil {
		return "", err
	}

	worktreeRoot := filepath.Join(home, "worktrees")
	if err := os.MkdirAll(worktreeRoot, 0755); err != nil {
		return "", fmt.Errorf("create worktree root directory: %w", err)
	}

	return worktreeRoot, nil
}
