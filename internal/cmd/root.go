package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// globalFlags holds the top-level options every subcommand can see: a
// trust flag (auto-approve prompts) and a debug flag, the latter also
// settable via the ZEN_DEBUG environment variable.
type globalFlags struct {
	trust bool
	debug bool
}

var flags globalFlags

// NewRootCommand creates and returns the root cobra command for zen.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "zen",
		Short:   "Concurrent AI coding agent orchestrator",
		Version: version,
		Long: `zen orchestrates concurrent AI coding agents working on isolated git
worktrees to execute a five-phase workflow (Planning, Task Generation,
Implementation, Merging, Documentation) derived from a single
natural-language prompt.`,
		// Silence usage on errors to avoid duplicate help text.
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if os.Getenv("ZEN_DEBUG") != "" {
				flags.debug = true
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&flags.trust, "trust", false, "auto-approve prompts without interactive confirmation")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging (also settable via ZEN_DEBUG)")

	root.AddCommand(NewRunCommand())
	root.AddCommand(NewResetCommand())
	root.AddCommand(NewRenderCommand())

	return root
}
