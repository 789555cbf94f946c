package core

import "time"

// StatusKind discriminates the variants of TaskStatus.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusReady
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusBlocked
	StatusCancelled
)

func (k StatusKind) String() string {
	switch k {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskStatus is a discriminated union over a task's lifecycle state. Failed,
// Blocked, and Cancelled carry a payload; the others don't.
type TaskStatus struct {
	Kind   StatusKind
	Error  string // set when Kind == StatusFailed
	Reason string // set when Kind == StatusBlocked or StatusCancelled
}

func PendingStatus() TaskStatus   { return TaskStatus{Kind: StatusPending} }
func ReadyStatus() TaskStatus     { return TaskStatus{Kind: StatusReady} }
func RunningStatus() TaskStatus   { return TaskStatus{Kind: StatusRunning} }
func CompletedStatus() TaskStatus { return TaskStatus{Kind: StatusCompleted} }
func FailedStatus(err string) TaskStatus {
	return TaskStatus{Kind: StatusFailed, Error: err}
}
func BlockedStatus(reason string) TaskStatus {
	return TaskStatus{Kind: StatusBlocked, Reason: reason}
}
func CancelledStatus(reason string) TaskStatus {
	return TaskStatus{Kind: StatusCancelled, Reason: reason}
}

// Is reports whether the status is of the given kind.
func (s TaskStatus) Is(kind StatusKind) bool { return s.Kind == kind }

// Finished reports whether the status is terminal: Completed or Failed.
// Cancelled is deliberately excluded per spec: a cancelled task is neither
// ready nor completed, but it is also not counted as "finished" for the
// purposes of the pending-count invariant.
func (s TaskStatus) Finished() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusFailed
}

// Startable reports whether a task in this status can be dispatched:
// Pending or Ready.
func (s TaskStatus) Startable() bool {
	return s.Kind == StatusPending || s.Kind == StatusReady
}

func (s TaskStatus) String() string {
	switch s.Kind {
	case StatusFailed:
		return "failed(" + s.Error + ")"
	case StatusBlocked:
		return "blocked(" + s.Reason + ")"
	case StatusCancelled:
		return "cancelled(" + s.Reason + ")"
	default:
		return s.Kind.String()
	}
}

// DependencyType discriminates why a predecessor must run before a
// successor.
type DependencyType struct {
	Kind   DependencyKind
	Files  []string // set when Kind == DepFile
	Reason string   // set when Kind == DepSemantic
}

type DependencyKind int

const (
	DepData DependencyKind = iota
	DepFile
	DepSemantic
)

func DataDependency() DependencyType { return DependencyType{Kind: DepData} }
func FileDependency(files []string) DependencyType {
	return DependencyType{Kind: DepFile, Files: files}
}
func SemanticDependency(reason string) DependencyType {
	return DependencyType{Kind: DepSemantic, Reason: reason}
}

// Task is the atomic unit of work scheduled over the DAG.
type Task struct {
	ID            TaskID
	Name          string
	Description   string
	Status        TaskStatus
	WorktreePath  string // empty until a worktree is assigned
	BranchName    string // empty until a branch is assigned
	AgentID       *AgentID
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CommitHash    string
}

// NewTask constructs a Task in Pending status with CreatedAt set to now.
func NewTask(name, description string) *Task {
	return &Task{
		ID:          NewTaskID(),
		Name:        name,
		Description: description,
		Status:      PendingStatus(),
		CreatedAt:   time.Now(),
	}
}

// MarkReady transitions the task to Ready, clearing any prior agent
// assignment. Used both for the DAG's normal Pending->Ready progression and
// to re-queue a task after a HealthMonitor Restart recovery.
func (t *Task) MarkReady() {
	t.Status = ReadyStatus()
	t.AgentID = nil
}

// MarkRunning transitions the task to Running, assigned to agent, recording
// StartedAt the first time it runs.
func (t *Task) MarkRunning(agent AgentID) {
	t.Status = RunningStatus()
	t.AgentID = &agent
	if t.StartedAt == nil {
		now := time.Now()
		t.StartedAt = &now
	}
}

// MarkCompleted transitions the task to Completed, recording CompletedAt and
// the final commit hash, and clearing the agent assignment.
func (t *Task) MarkCompleted(commitHash string) {
	t.Status = CompletedStatus()
	t.CommitHash = commitHash
	t.AgentID = nil
	now := time.Now()
	t.CompletedAt = &now
}

// MarkFailed transitions the task to Failed, recording CompletedAt and
// clearing the agent assignment.
func (t *Task) MarkFailed(reason string) {
	t.Status = FailedStatus(reason)
	t.AgentID = nil
	now := time.Now()
	t.CompletedAt = &now
}

// MarkCancelled transitions the task to Cancelled, recording CompletedAt.
func (t *Task) MarkCancelled(reason string) {
	t.Status = CancelledStatus(reason)
	now := time.Now()
	t.CompletedAt = &now
}

// Clone returns a deep-enough copy for snapshotting during diffing: value
// fields copy trivially, and the only pointer fields (AgentID, StartedAt,
// CompletedAt) are re-allocated so mutating the original after cloning never
// observably mutates the clone.
func (t *Task) Clone() *Task {
	clone := *t
	if t.AgentID != nil {
		agent := *t.AgentID
		clone.AgentID = &agent
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
