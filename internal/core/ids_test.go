package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskID_RoundTripsThroughText(t *testing.T) {
	id := NewTaskID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var got TaskID
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, id, got)
	assert.Equal(t, id.String(), got.String())
}

func TestShort_Is8Chars(t *testing.T) {
	id := NewTaskID()
	assert.Len(t, id.Short(), 8)
	assert.Equal(t, id.String()[:8], id.Short())
}

func TestParseTaskID_RejectsGarbage(t *testing.T) {
	_, err := ParseTaskID("not-a-uuid")
	assert.Error(t, err)
}

func TestIDs_DistinctTypesDoNotCollideByValue(t *testing.T) {
	tid := NewTaskID()
	aid, err := ParseAgentID(tid.String())
	require.NoError(t, err)
	assert.Equal(t, tid.String(), aid.String())
}
