package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateStore_LoadMissingFileReturnsEmptyState(t *testing.T) {
	store := NewSessionStateStore(filepath.Join(t.TempDir(), "sessions.json"))

	state, err := store.Load()

	require.NoError(t, err)
	assert.Equal(t, SessionStateVersion, state.Version)
	assert.Empty(t, state.Sessions)
}

func TestSessionStateStore_SaveThenLoadRoundTrips(t *testing.T) {
	store := NewSessionStateStore(filepath.Join(t.TempDir(), "sessions.json"))
	state := NewSessionState()
	state.Sessions = append(state.Sessions, PersistedSession{
		ID:           "abc123",
		Name:         "Add user auth",
		Branch:       "zen/abc123",
		Status:       "running",
		WorktreePath: "/tmp/wt/abc123",
		BaseCommit:   "deadbeef",
		BaseBranch:   "main",
		AgentName:    "claude",
		Project:      "zen",
	})

	require.NoError(t, store.Save(state))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Sessions, 1)
	assert.Equal(t, "abc123", loaded.Sessions[0].ID)
	assert.Equal(t, "running", loaded.Sessions[0].Status)
}

func TestSessionStateStore_SaveKeepsBackupOfPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store := NewSessionStateStore(path)

	first := NewSessionState()
	first.Sessions = append(first.Sessions, PersistedSession{ID: "first"})
	require.NoError(t, store.Save(first))

	second := NewSessionState()
	second.Sessions = append(second.Sessions, PersistedSession{ID: "second"})
	require.NoError(t, store.Save(second))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "first")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(current), "second")
}

func TestSessionStateStore_UpsertSessionInsertsThenReplaces(t *testing.T) {
	store := NewSessionStateStore(filepath.Join(t.TempDir(), "sessions.json"))

	require.NoError(t, store.UpsertSession(PersistedSession{ID: "abc", Status: "ready"}))
	require.NoError(t, store.UpsertSession(PersistedSession{ID: "abc", Status: "running"}))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Sessions, 1)
	assert.Equal(t, "running", state.Sessions[0].Status)
	assert.False(t, state.Sessions[0].CreatedAt.IsZero())
}

func TestSessionStateStore_RemoveSessionDeletesOnlyMatchingID(t *testing.T) {
	store := NewSessionStateStore(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, store.UpsertSession(PersistedSession{ID: "keep"}))
	require.NoError(t, store.UpsertSession(PersistedSession{ID: "drop"}))

	require.NoError(t, store.RemoveSession("drop"))

	state, err := store.Load()
	require.NoError(t, err)
	require.Len(t, state.Sessions, 1)
	assert.Equal(t, "keep", state.Sessions[0].ID)
}
