package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zenhq/zen/internal/core"
)

// NewRenderCommand creates the render command: a minimal demo of the
// render-channel boundary (the capacity-1 latest-wins snapshot channel),
// exercised without building a full TUI.
func NewRenderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "render",
		Short:  "Print a few sample render snapshots to demonstrate the render boundary",
		Hidden: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runRenderDemo(c)
		},
	}
	return cmd
}

func runRenderDemo(c *cobra.Command) error {
	channel := core.NewRenderChannel()

	task := core.NewTask("demo-task", "a synthetic task for the render demo")
	task.MarkRunning(core.NewAgentID())

	for i := 0; i < 3; i++ {
		channel.Publish(core.RenderSnapshot{
			Tasks:          []*core.Task{task},
			Phase:          core.PhaseImplementation,
			WorkflowStatus: core.WorkflowRunning,
		})

		select {
		case snapshot := <-channel.Snapshots():
			fmt.Fprintf(c.OutOrStdout(), "snapshot v%d: phase=%s status=%s tasks=%d\n",
				snapshot.Version, snapshot.Phase, snapshot.WorkflowStatus, len(snapshot.Tasks))
		case <-time.After(time.Second):
			return fmt.Errorf("render demo: no snapshot received")
		}
	}
	return nil
}
