package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zenhq/zen/internal/config"
	"github.com/zenhq/zen/internal/core"
)

// NewResetCommand creates the reset command: it tears down every persisted
// session's worktree, branch, and multiplexer session. --force deletes
// worktrees even when they are dirty.
func NewResetCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all tracked sessions, worktrees, and branches",
		Long: `Reset tears down every session zen has recorded: its git worktree, its
task branch, and its terminal-multiplexer session. By default a worktree
with uncommitted changes is skipped; --force removes it anyway.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runReset(c, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete worktrees even if they have uncommitted changes")
	return cmd
}

func runReset(c *cobra.Command, force bool) error {
	ctx := context.Background()

	repoPath, err := core.RepoRootFromCwd()
	if err != nil {
		return err
	}
	repo := core.NewGitOps(repoPath)
	tmux := core.NewTmux()

	statePath, err := config.GetSessionStatePath()
	if err != nil {
		return fmt.Errorf("resolving session state path: %w", err)
	}
	store := core.NewSessionStateStore(statePath)
	state, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	var sessionsDeleted, sessionsSkipped, worktreesRemoved, branchesDeleted int

	for _, session := range state.Sessions {
		worktreeRepo := repo.WithWorkDir(session.WorktreePath)

		if !force {
			dirty, err := worktreeRepo.HasUncommittedChanges(ctx)
			if err == nil && dirty {
				sessionsSkipped++
				continue
			}
		}

		if taskID, err := core.ParseTaskID(session.ID); err == nil {
			_ = tmux.KillSession(ctx, core.SessionName(session.Name, taskID))
		}

		if session.WorktreePath != "" {
			if err := repo.WorktreeRemove(ctx, session.WorktreePath, true); err == nil {
				worktreesRemoved++
			}
		}
		if session.Branch != "" {
			if err := repo.DeleteBranch(ctx, session.Branch); err == nil {
				branchesDeleted++
			}
		}
		if err := store.RemoveSession(session.ID); err == nil {
			sessionsDeleted++
		}
	}

	_ = repo.WorktreePrune(ctx)

	fmt.Fprintf(c.OutOrStdout(), "reset: %d session(s) deleted, %d skipped, %d worktree(s) removed, %d branch(es) deleted\n",
		sessionsDeleted, sessionsSkipped, worktreesRemoved, branchesDeleted)
	return nil
}
