package core

import (
	"encoding/json"
	"os"
	"time"

	"github.com/zenhq/zen/internal/filelock"
)

// SessionStateVersion is the current on-disk schema version for SessionState.
const SessionStateVersion = 1

// PersistedSession is one session's durable record: enough to reconstruct a
// Task/AgentHandle pairing and its worktree/branch on a fresh process start.
type PersistedSession struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Branch       string    `json:"branch"`
	Status       string    `json:"status"`
	WorktreePath string    `json:"worktree_path"`
	BaseCommit   string    `json:"base_commit"`
	BaseBranch   string    `json:"base_branch"`
	AgentName    string    `json:"agent_name"`
	Project      string    `json:"project"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionState is the whole persisted file: a version tag plus every known
// session, so a version bump can migrate older files going forward.
type SessionState struct {
	Version  int                `json:"version"`
	Sessions []PersistedSession `json:"sessions"`
}

// NewSessionState returns an empty, current-version SessionState.
func NewSessionState() *SessionState {
	return &SessionState{Version: SessionStateVersion}
}

// SessionStateStore reads and writes a SessionState file, guarded by a
// gofrs/flock lock and written atomically via a temp-file-then-rename,
// keeping a ".bak" of the previous contents for recovery — built on
// internal/filelock's existing FileLock and AtomicWrite helpers rather than
// reimplementing them.
type SessionStateStore struct {
	Path string
}

// NewSessionStateStore returns a store rooted at path.
func NewSessionStateStore(path string) *SessionStateStore {
	return &SessionStateStore{Path: path}
}

// Load reads the session state file. A missing file is treated as an empty,
// current-version state rather than an error, so a fresh install needs no
// special-casing.
func (s *SessionStateStore) Load() (*SessionState, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSessionState(), nil
		}
		return nil, &ExternalError{Op: "read session state", Err: err}
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &ExternalError{Op: "parse session state", Err: err}
	}
	return &state, nil
}

// Save writes state to disk: the previous contents (if any) are copied to
// Path+".bak" first, then the new contents are written atomically (write to
// a temp file, rename into place) under a lock; the .bak is kept for
// recovery.
func (s *SessionStateStore) Save(state *SessionState) error {
	lock := filelock.NewFileLock(s.Path + ".lock")
	if err := lock.Lock(); err != nil {
		return &ExternalError{Op: "lock session state", Err: err}
	}
	defer lock.Unlock()

	if existing, err := os.ReadFile(s.Path); err == nil {
		_ = os.WriteFile(s.Path+".bak", existing, 0o644)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return &ExternalError{Op: "marshal session state", Err: err}
	}
	if err := filelock.AtomicWrite(s.Path, data); err != nil {
		return &ExternalError{Op: "write session state", Err: err}
	}
	return nil
}

// UpsertSession inserts or replaces the session with the same ID, stamping
// UpdatedAt, then saves the whole state.
func (s *SessionStateStore) UpsertSession(session PersistedSession) error {
	state, err := s.Load()
	if err != nil {
		return err
	}

	session.UpdatedAt = time.Now()
	replaced := false
	for i, existing := range state.Sessions {
		if existing.ID == session.ID {
			if session.CreatedAt.IsZero() {
				session.CreatedAt = existing.CreatedAt
			}
			state.Sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		if session.CreatedAt.IsZero() {
			session.CreatedAt = session.UpdatedAt
		}
		state.Sessions = append(state.Sessions, session)
	}

	return s.Save(state)
}

// RemoveSession deletes the session with id, if present, then saves.
func (s *SessionStateStore) RemoveSession(id string) error {
	state, err := s.Load()
	if err != nil {
		return err
	}

	kept := state.Sessions[:0]
	for _, session := range state.Sessions {
		if session.ID != id {
			kept = append(kept, session)
		}
	}
	state.Sessions = kept

	return s.Save(state)
}
