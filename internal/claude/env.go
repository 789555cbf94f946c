// Package claude provides utilities for invoking Claude CLI.
package claude

import (
	"os"
	"os/exec"
	"path/filepath"
)

// zenTmpDir is the clean temp directory for Claude CLI invocations.
// Using a dedicated directory avoids VSCode socket files that crash Claude CLI
// when --settings flag is used (known bug: github.com/anthropics/claude-code/issues/7624).
var zenTmpDir string

func init() {
	// Create zen-specific temp directory
	zenTmpDir = filepath.Join(os.TempDir(), "zen-claude")
	os.MkdirAll(zenTmpDir, 0755)
}

// SetCleanEnv configures a command to use a clean TMPDIR without VSCode sockets.
// This prevents Claude CLI crashes when using --settings flag.
func SetCleanEnv(cmd *exec.Cmd) {
	// Copy current environment
	cmd.Env = os.Environ()

	// Override TMPDIR to avoid VSCode socket files
	found := false
	for i, env := range cmd.Env {
		if len(env) > 7 && env[:7] == "TMPDIR=" {
			cmd.Env[i] = "TMPDIR=" + zenTmpDir
			found = true
			break
		}
	}
	if !found {
		cmd.Env = append(cmd.Env, "TMPDIR="+zenTmpDir)
	}
}

// GetCleanTmpDir returns the clean temp directory path for Claude CLI.
func GetCleanTmpDir() string {
	return zenTmpDir
}
