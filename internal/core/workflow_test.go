package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowState_InitialPhaseRecordedAtConstruction(t *testing.T) {
	wf := NewWorkflow("build a thing", DefaultWorkflowConfig())
	state := NewWorkflowState(wf)

	require.Len(t, state.History, 1)
	assert.Equal(t, PhasePlanning, state.History[0].Phase)
	assert.Equal(t, PhasePlanning, state.CurrentPhase())
}

func TestWorkflowState_AllowedTransitionsSucceed(t *testing.T) {
	wf := NewWorkflow("p", DefaultWorkflowConfig())
	state := NewWorkflowState(wf)

	steps := []Phase{PhaseTaskGeneration, PhaseImplementation, PhaseMerging, PhaseDocumentation, PhaseComplete}
	for _, p := range steps {
		require.NoError(t, state.Transition(p))
	}

	assert.Len(t, state.History, len(steps)+1)
	assert.True(t, state.IsTerminal())
}

func TestWorkflowState_MergingCanSkipToComplete(t *testing.T) {
	wf := NewWorkflow("p", DefaultWorkflowConfig())
	state := NewWorkflowState(wf)

	require.NoError(t, state.Transition(PhaseTaskGeneration))
	require.NoError(t, state.Transition(PhaseImplementation))
	require.NoError(t, state.Transition(PhaseMerging))
	require.NoError(t, state.Transition(PhaseComplete))

	assert.True(t, state.IsTerminal())
	assert.Len(t, state.History, 5)
}

func TestWorkflowState_BackwardMoveRejected(t *testing.T) {
	wf := NewWorkflow("p", DefaultWorkflowConfig())
	state := NewWorkflowState(wf)
	require.NoError(t, state.Transition(PhaseTaskGeneration))

	err := state.Transition(PhasePlanning)
	var invalid *InvalidPhaseTransition
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, PhaseTaskGeneration, invalid.From)
	assert.Equal(t, PhasePlanning, invalid.To)

	assert.Equal(t, PhaseTaskGeneration, state.CurrentPhase())
	assert.Len(t, state.History, 2)
}

func TestWorkflowState_SelfLoopRejected(t *testing.T) {
	wf := NewWorkflow("p", DefaultWorkflowConfig())
	state := NewWorkflowState(wf)

	err := state.Transition(PhasePlanning)
	require.Error(t, err)
	assert.Len(t, state.History, 1)
}

func TestWorkflowState_TransitionFromTerminalAlwaysFails(t *testing.T) {
	wf := NewWorkflow("p", DefaultWorkflowConfig())
	state := NewWorkflowState(wf)
	require.NoError(t, state.Transition(PhaseTaskGeneration))
	require.NoError(t, state.Transition(PhaseImplementation))
	require.NoError(t, state.Transition(PhaseMerging))
	require.NoError(t, state.Transition(PhaseComplete))

	err := state.Transition(PhasePlanning)
	assert.Error(t, err)
}

func TestWorkflowState_Reset_RewindsToPlanningWithSingleHistoryEntry(t *testing.T) {
	wf := NewWorkflow("p", DefaultWorkflowConfig())
	wf.Status = WorkflowFailed
	wf.FailedMsg = "boom"
	state := NewWorkflowState(wf)
	require.NoError(t, state.Transition(PhaseTaskGeneration))

	state.Reset()

	assert.Equal(t, PhasePlanning, wf.Phase)
	assert.Equal(t, WorkflowPending, wf.Status)
	assert.Empty(t, wf.FailedMsg)
	assert.Len(t, state.History, 1)
}
