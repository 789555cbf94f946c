package core

import (
	"fmt"
	"time"
)

// Phase discriminates the six stages of a workflow's life, in the order
// they may be entered.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseTaskGeneration
	PhaseImplementation
	PhaseMerging
	PhaseDocumentation
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "Planning"
	case PhaseTaskGeneration:
		return "TaskGeneration"
	case PhaseImplementation:
		return "Implementation"
	case PhaseMerging:
		return "Merging"
	case PhaseDocumentation:
		return "Documentation"
	case PhaseComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// WorkflowStatusKind discriminates the variants of a workflow's overall
// status, independent of its current phase.
type WorkflowStatusKind int

const (
	WorkflowPending WorkflowStatusKind = iota
	WorkflowRunning
	WorkflowPaused
	WorkflowCompleted
	WorkflowFailed
)

func (k WorkflowStatusKind) String() string {
	switch k {
	case WorkflowPending:
		return "pending"
	case WorkflowRunning:
		return "running"
	case WorkflowPaused:
		return "paused"
	case WorkflowCompleted:
		return "completed"
	case WorkflowFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WorkflowConfig carries the knobs SkillsOrchestrator consults while driving
// a workflow.
type WorkflowConfig struct {
	UpdateDocs    bool
	StagingPrefix string
	MaxConcurrent int
}

// DefaultWorkflowConfig returns the baseline configuration: documentation
// enabled, capacity matching DefaultStuckThreshold's companion default of 3
// concurrent agents.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		UpdateDocs:    true,
		StagingPrefix: "zen/staging",
		MaxConcurrent: 3,
	}
}

// Workflow is the top-level unit the orchestrator drives: a prompt, its
// current phase and status, and the configuration governing how far it goes.
type Workflow struct {
	ID        WorkflowID
	Prompt    string
	Phase     Phase
	Status    WorkflowStatusKind
	FailedMsg string // set when Status == WorkflowFailed
	Config    WorkflowConfig
	CreatedAt time.Time
}

// NewWorkflow constructs a Workflow bound to prompt, starting in Planning
// phase and Pending status.
func NewWorkflow(prompt string, config WorkflowConfig) *Workflow {
	return &Workflow{
		ID:        NewWorkflowID(),
		Prompt:    prompt,
		Phase:     PhasePlanning,
		Status:    WorkflowPending,
		Config:    config,
		CreatedAt: time.Now(),
	}
}

// PhaseHistoryEntry records one accepted phase transition.
type PhaseHistoryEntry struct {
	Phase     Phase
	EnteredAt time.Time
}

// InvalidPhaseTransition reports an attempted transition outside the
// allowed set (including self-loops and backward moves).
type InvalidPhaseTransition struct {
	From Phase
	To   Phase
}

func (e *InvalidPhaseTransition) Error() string {
	return fmt.Sprintf("invalid phase transition: %s -> %s", e.From, e.To)
}

// allowedPhaseTransitions is the exhaustive transition table, spelled out
// directly rather than derived from a state-machine library.
var allowedPhaseTransitions = map[Phase][]Phase{
	PhasePlanning:       {PhaseTaskGeneration},
	PhaseTaskGeneration: {PhaseImplementation},
	PhaseImplementation: {PhaseMerging},
	PhaseMerging:        {PhaseDocumentation, PhaseComplete},
	PhaseDocumentation:  {PhaseComplete},
	PhaseComplete:       {},
}

// WorkflowState wraps a Workflow and its phase history, enforcing the
// allowed-transition table and recording the initial phase at construction.
type WorkflowState struct {
	Workflow *Workflow
	History  []PhaseHistoryEntry
}

// NewWorkflowState returns a WorkflowState for workflow, with its initial
// phase already recorded as the first history entry.
func NewWorkflowState(workflow *Workflow) *WorkflowState {
	return &WorkflowState{
		Workflow: workflow,
		History: []PhaseHistoryEntry{
			{Phase: workflow.Phase, EnteredAt: time.Now()},
		},
	}
}

// Transition attempts to move the workflow from its current phase to to. On
// success it updates Workflow.Phase and appends a PhaseHistoryEntry; on
// failure it returns InvalidPhaseTransition and leaves all state untouched.
func (s *WorkflowState) Transition(to Phase) error {
	from := s.Workflow.Phase
	for _, allowed := range allowedPhaseTransitions[from] {
		if allowed == to {
			s.Workflow.Phase = to
			s.History = append(s.History, PhaseHistoryEntry{Phase: to, EnteredAt: time.Now()})
			return nil
		}
	}
	return &InvalidPhaseTransition{From: from, To: to}
}

// CurrentPhase returns the workflow's current phase.
func (s *WorkflowState) CurrentPhase() Phase { return s.Workflow.Phase }

// IsTerminal reports whether the workflow's current phase is Complete, the
// only terminal phase.
func (s *WorkflowState) IsTerminal() bool { return s.Workflow.Phase == PhaseComplete }

// Reset rewinds the workflow to Planning phase and Pending status, clearing
// history back to a single initial entry.
func (s *WorkflowState) Reset() {
	s.Workflow.Phase = PhasePlanning
	s.Workflow.Status = WorkflowPending
	s.Workflow.FailedMsg = ""
	s.History = []PhaseHistoryEntry{
		{Phase: PhasePlanning, EnteredAt: time.Now()},
	}
}
