// Package core implements the parallel execution engine: the task DAG, the
// scheduler, the bounded agent pool, health monitoring and recovery, the
// reactive planner, the conflict-resolving merge coordinator, and the
// five-phase workflow state machine.
package core

import (
	"github.com/google/uuid"
)

// TaskID uniquely identifies a Task.
type TaskID struct{ id uuid.UUID }

// AgentID uniquely identifies an AgentHandle.
type AgentID struct{ id uuid.UUID }

// WorkflowID uniquely identifies a Workflow.
type WorkflowID struct{ id uuid.UUID }

// NewTaskID generates a fresh random TaskID.
func NewTaskID() TaskID { return TaskID{id: uuid.New()} }

// NewAgentID generates a fresh random AgentID.
func NewAgentID() AgentID { return AgentID{id: uuid.New()} }

// NewWorkflowID generates a fresh random WorkflowID.
func NewWorkflowID() WorkflowID { return WorkflowID{id: uuid.New()} }

func (t TaskID) String() string     { return t.id.String() }
func (a AgentID) String() string    { return a.id.String() }
func (w WorkflowID) String() string { return w.id.String() }

// Short returns the first 8 hex characters of the id, for display and naming.
func (t TaskID) Short() string     { return shortOf(t.id) }
func (a AgentID) Short() string    { return shortOf(a.id) }
func (w WorkflowID) Short() string { return shortOf(w.id) }

func shortOf(id uuid.UUID) string {
	s := id.String()
	// UUIDs are hyphenated; the first 8 hex chars precede the first hyphen.
	return s[:8]
}

func (t TaskID) MarshalText() ([]byte, error)  { return []byte(t.id.String()), nil }
func (a AgentID) MarshalText() ([]byte, error) { return []byte(a.id.String()), nil }
func (w WorkflowID) MarshalText() ([]byte, error) {
	return []byte(w.id.String()), nil
}

func (t *TaskID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	t.id = id
	return nil
}

func (a *AgentID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	a.id = id
	return nil
}

func (w *WorkflowID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	w.id = id
	return nil
}

// ParseTaskID parses a TaskID from its string form.
func ParseTaskID(s string) (TaskID, error) {
	id, err := uuid.Parse(s)
	return TaskID{id: id}, err
}

// ParseAgentID parses an AgentID from its string form.
func ParseAgentID(s string) (AgentID, error) {
	id, err := uuid.Parse(s)
	return AgentID{id: id}, err
}

// ParseWorkflowID parses a WorkflowID from its string form.
func ParseWorkflowID(s string) (WorkflowID, error) {
	id, err := uuid.Parse(s)
	return WorkflowID{id: id}, err
}
