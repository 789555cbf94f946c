package core

import (
	"sync"
	"time"
)

// AgentStatusKind discriminates the variants of an agent's lifecycle status.
type AgentStatusKind int

const (
	AgentIdle AgentStatusKind = iota
	AgentRunning
	AgentStuck
	AgentFailedStatus
	AgentTerminated
)

// AgentStatus mirrors TaskStatus's shape: a kind plus kind-specific payload.
type AgentStatus struct {
	Kind  AgentStatusKind
	Task  TaskID // set when Kind == AgentRunning
	Since time.Time // set when Kind == AgentStuck
	Error string    // set when Kind == AgentFailedStatus
}

// OutputReader reads an agent's raw output buffer: the multiplexer pane
// capture. Implemented by Tmux in production, faked in tests.
type OutputReader interface {
	ReadOutput() (string, error)
}

// AgentHandle is a live handle to a spawned agent.
type AgentHandle struct {
	ID           AgentID
	Status       AgentStatus
	TaskID       *TaskID
	LastActivity time.Time
	Output       OutputReader
}

// IdleDuration returns how long it has been since the agent's last recorded
// activity.
func (h *AgentHandle) IdleDuration() time.Duration {
	return time.Since(h.LastActivity)
}

// Touch records fresh activity (called on output or health-check observation).
func (h *AgentHandle) Touch() {
	h.LastActivity = time.Now()
}

// AgentEventKind discriminates AgentEvent.
type AgentEventKind int

const (
	EventStarted AgentEventKind = iota
	EventCompleted
	EventFailed
	EventStuckDetected
	EventTerminated
)

// AgentEvent is emitted on the pool's event channel. Events for a single
// agent form the total order Started -> (Completed xor Failed) -> Terminated,
// with zero or more StuckDetected events interleaved before the terminal one.
type AgentEvent struct {
	Kind     AgentEventKind
	AgentID  AgentID
	TaskID   TaskID        // set for Started
	ExitCode int           // set for Completed
	Error    string        // set for Failed
	Duration time.Duration // set for StuckDetected
}

// AgentPool is a bounded set of live agent handles.
type AgentPool struct {
	mu            sync.RWMutex
	handles       map[AgentID]*AgentHandle
	maxConcurrent int
	events        chan AgentEvent
}

// NewAgentPool creates a pool with the given capacity. The event channel has
// a buffer of ~100: task lifecycle events must not be dropped, so senders
// block rather than drop when the buffer fills.
func NewAgentPool(maxConcurrent int) *AgentPool {
	return &AgentPool{
		handles:       make(map[AgentID]*AgentHandle),
		maxConcurrent: maxConcurrent,
		events:        make(chan AgentEvent, 100),
	}
}

// Events returns the pool's outgoing event channel.
func (p *AgentPool) Events() <-chan AgentEvent { return p.events }

// MaxConcurrent returns the pool's capacity.
func (p *AgentPool) MaxConcurrent() int { return p.maxConcurrent }

// ActiveCount returns the number of live handles.
func (p *AgentPool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// HasCapacity reports whether the pool can accept another spawn.
func (p *AgentPool) HasCapacity() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles) < p.maxConcurrent
}

// Spawn allocates a fresh AgentID, records a Running handle assigned to
// taskID, and emits Started. Fails without mutation when at capacity.
func (p *AgentPool) Spawn(taskID TaskID, output OutputReader) (AgentID, error) {
	p.mu.Lock()
	if len(p.handles) >= p.maxConcurrent {
		p.mu.Unlock()
		return AgentID{}, ErrPoolFull
	}

	id := NewAgentID()
	p.handles[id] = &AgentHandle{
		ID:           id,
		Status:       AgentStatus{Kind: AgentRunning, Task: taskID},
		TaskID:       &taskID,
		LastActivity: time.Now(),
		Output:       output,
	}
	p.mu.Unlock()

	p.send(AgentEvent{Kind: EventStarted, AgentID: id, TaskID: taskID})
	return id, nil
}

// Terminate removes the handle and emits Terminated. Fails for an unknown
// id; idempotent from the caller's perspective in the sense that the first
// call succeeds and subsequent calls on the same id fail benignly with
// NotFoundError rather than panicking.
func (p *AgentPool) Terminate(id AgentID) error {
	p.mu.Lock()
	if _, ok := p.handles[id]; !ok {
		p.mu.Unlock()
		return &NotFoundError{Kind: "agent", ID: id.String()}
	}
	delete(p.handles, id)
	p.mu.Unlock()

	p.send(AgentEvent{Kind: EventTerminated, AgentID: id})
	return nil
}

// Get returns the handle for id, if present.
func (p *AgentPool) Get(id AgentID) (*AgentHandle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handles[id]
	return h, ok
}

// All returns every live handle.
func (p *AgentPool) All() []*AgentHandle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*AgentHandle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h)
	}
	return out
}

// emitCompleted records a Completed event for id. The pool does not
// interpret exit codes; the scheduler does.
func (p *AgentPool) emitCompleted(id AgentID, exitCode int) {
	p.send(AgentEvent{Kind: EventCompleted, AgentID: id, ExitCode: exitCode})
}

// emitFailed records a Failed event for id.
func (p *AgentPool) emitFailed(id AgentID, err string) {
	p.send(AgentEvent{Kind: EventFailed, AgentID: id, Error: err})
}

// emitStuck records a StuckDetected event for id.
func (p *AgentPool) emitStuck(id AgentID, d time.Duration) {
	p.send(AgentEvent{Kind: EventStuckDetected, AgentID: id, Duration: d})
}

// send is a blocking send: task lifecycle events must not be dropped.
func (p *AgentPool) send(ev AgentEvent) {
	p.events <- ev
}
