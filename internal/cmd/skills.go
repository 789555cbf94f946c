package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/zenhq/zen/internal/agent"
	"github.com/zenhq/zen/internal/claude"
	"github.com/zenhq/zen/internal/core"
	"github.com/zenhq/zen/internal/logger"
	"github.com/zenhq/zen/internal/parser"
)

// skillInvoker runs one external skill as a single headless Claude CLI
// invocation. SkillsOrchestrator only depends on PlanningRunner/
// TaskGenerationRunner/DocRunner; skillInvoker is where those interfaces
// meet internal/claude's Invoker.
type skillInvoker struct {
	inv    *claude.Invoker
	trust  bool
	prompt func(workflow *core.Workflow, repoPath string) string
}

func (s *skillInvoker) run(ctx context.Context, workflow *core.Workflow, repoPath string) error {
	res, err := s.inv.Invoke(ctx, claude.Request{
		Prompt:      agent.EnhancePromptForClaude4(s.prompt(workflow, repoPath)),
		BypassPerms: s.trust,
	})
	if err != nil {
		return &core.ExternalError{Op: "invoke skill", Err: err}
	}
	if !res.IsSuccess() {
		return &core.ExternalError{Op: "invoke skill", Err: fmt.Errorf("%s", res.Error)}
	}
	return nil
}

// planningRunner implements core.PlanningRunner: it invokes the agent to
// write plan.md and detailed-design.md into repoPath's planning directory.
type planningRunner struct {
	skillInvoker
	log *logger.ConsoleLogger
}

func newPlanningRunner(inv *claude.Invoker, trust bool, log *logger.ConsoleLogger) *planningRunner {
	return &planningRunner{
		skillInvoker: skillInvoker{
			inv:   inv,
			trust: trust,
			prompt: func(workflow *core.Workflow, repoPath string) string {
				return fmt.Sprintf(
					"You are the Planning phase of an AI orchestration workflow. "+
						"Given the following prompt, write .sop/planning/plan.md (a high-level plan) "+
						"and .sop/planning/detailed-design.md (a detailed design) under %s. "+
						"Prompt: %s",
					repoPath, workflow.Prompt,
				)
			},
		},
		log: log,
	}
}

func (p *planningRunner) RunPlanning(ctx context.Context, workflow *core.Workflow, repoPath string) error {
	if err := p.run(ctx, workflow, repoPath); err != nil {
		return err
	}
	p.logPlanSummary(repoPath)
	return nil
}

// logPlanSummary parses the plan.md the agent just wrote and logs a short
// summary, including a check that any agent persona the plan references by
// name (task.Agent, quality_control.agents) actually exists under
// ~/.claude/agents — the same registry the headless `claude` binary itself
// reads for the `--agents` flag. A parse failure is non-fatal here: the plan
// file's exact shape is the agent's business, and the only thing downstream
// of Planning that reads off disk is Task Generation's own markdown, not
// this Plan struct — so logPlanSummary exists for operator visibility, not
// workflow control.
func (p *planningRunner) logPlanSummary(repoPath string) {
	if p.log == nil {
		return
	}
	planPath := filepath.Join(repoPath, ".sop", "planning", "plan.md")
	plan, err := parser.ParseFile(planPath)
	if err != nil {
		p.log.Warnf("plan summary unavailable: %v", err)
		return
	}
	qc := "disabled"
	if plan.QualityControl.Enabled {
		qc = fmt.Sprintf("enabled (retry_on_red=%d)", plan.QualityControl.RetryOnRed)
	}
	p.log.Infof("plan %q parsed: %d task(s), quality control %s", plan.Name, len(plan.Tasks), qc)

	for i := range plan.Tasks {
		task := &plan.Tasks[i]
		if err := parser.ValidateTaskType(task); err != nil {
			p.log.Warnf("plan task %s: %v", task.Number, err)
			continue
		}
		if err := parser.ValidateIntegrationTask(task); err != nil {
			p.log.Warnf("plan task %s: %v", task.Number, err)
		}
	}
	alignmentWarnings, _ := parser.ValidateKeyPointCriteriaAlignment(plan.Tasks, parser.CriteriaAlignmentWarn)
	for _, msg := range alignmentWarnings {
		p.log.Warnf("%s", msg)
	}

	registry := agent.NewRegistry("")
	if _, err := registry.Discover(); err != nil {
		p.log.Warnf("agent registry discovery failed: %v", err)
		return
	}
	for _, verr := range agent.ValidateTaskAgents(plan.Tasks, registry) {
		p.log.Warnf("%s", verr.Error())
	}
	if plan.QualityControl.Enabled {
		for _, verr := range agent.ValidateQCAgents(plan.QualityControl.Agents.ExplicitList, registry) {
			p.log.Warnf("%s", verr.Error())
		}
	}
}

// taskGenerationRunner implements core.TaskGenerationRunner: it invokes the
// agent to write one or more `.code-task.md` files from the plan/design
// documents Planning produced, then replans the DAG from what got written.
// Replan is called here rather than inside the
// core because the core's ReactivePlanner only parses whatever is already on
// disk; something has to trigger that first parse once generation finishes.
type taskGenerationRunner struct {
	skillInvoker
	planner *core.ReactivePlanner
}

func newTaskGenerationRunner(inv *claude.Invoker, trust bool, planner *core.ReactivePlanner) *taskGenerationRunner {
	return &taskGenerationRunner{
		skillInvoker: skillInvoker{
			inv:   inv,
			trust: trust,
			prompt: func(workflow *core.Workflow, repoPath string) string {
				return fmt.Sprintf(
					"You are the Task Generation phase of an AI orchestration workflow. "+
						"Read .sop/planning/plan.md and .sop/planning/detailed-design.md under %s "+
						"and write one .code-task.md file per independent unit of work under "+
						".sop/planning/implementation/, each with a name, description, and any "+
						"dependencies on other tasks. Original prompt: %s",
					repoPath, workflow.Prompt,
				)
			},
		},
		planner: planner,
	}
}

func (t *taskGenerationRunner) RunTaskGeneration(ctx context.Context, workflow *core.Workflow, repoPath string) error {
	if err := t.run(ctx, workflow, repoPath); err != nil {
		return err
	}
	t.planner.Replan()
	return nil
}

// docRunner implements core.DocRunner: it invokes the agent to update
// project documentation to reflect the merged work. A failure here is
// already treated as non-fatal by SkillsOrchestrator.
type docRunner struct{ skillInvoker }

func newDocRunner(inv *claude.Invoker, trust bool) *docRunner {
	return &docRunner{skillInvoker{
		inv:   inv,
		trust: trust,
		prompt: func(workflow *core.Workflow, repoPath string) string {
			return fmt.Sprintf(
				"You are the Documentation phase of an AI orchestration workflow. "+
					"Update the project documentation under %s to reflect the work completed "+
					"for the prompt: %s",
				repoPath, workflow.Prompt,
			)
		},
	}}
}

func (d *docRunner) RunDocumentation(ctx context.Context, workflow *core.Workflow, repoPath string) error {
	return d.run(ctx, workflow, repoPath)
}
