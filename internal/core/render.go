package core

import "sync/atomic"

// RenderSnapshot is an immutable view of orchestrator state handed to the
// external TUI renderer.
// Callers build a fresh snapshot and never mutate one after construction.
type RenderSnapshot struct {
	Version        uint64
	Tasks          []*Task
	Agents         []*AgentHandle
	Phase          Phase
	WorkflowStatus WorkflowStatusKind
}

// RenderChannel is the bounded, capacity-1 latest-wins channel render
// snapshots travel over: the old snapshot is dropped rather than blocking
// the orchestrator on a slow renderer. A monotonic version counter tags
// every snapshot so a renderer can detect it missed one.
type RenderChannel struct {
	ch      chan RenderSnapshot
	version atomic.Uint64
	paused  atomic.Bool
	ack     atomic.Bool
}

// NewRenderChannel returns an empty, unpaused render channel.
func NewRenderChannel() *RenderChannel {
	return &RenderChannel{ch: make(chan RenderSnapshot, 1)}
}

// Publish stamps snapshot with the next version and sends it, dropping
// whatever snapshot was previously queued but unread. Never blocks.
func (r *RenderChannel) Publish(snapshot RenderSnapshot) {
	snapshot.Version = r.version.Add(1)
	select {
	case <-r.ch:
		// Drop the stale, unread snapshot to make room.
	default:
	}
	select {
	case r.ch <- snapshot:
	default:
		// Another publisher won the race for the freed slot; their snapshot
		// is newer anyway, so dropping this one is correct.
	}
}

// Snapshots returns the receive side of the channel, for the renderer.
func (r *RenderChannel) Snapshots() <-chan RenderSnapshot { return r.ch }

// Pause requests the renderer suspend rendering, e.g. while the orchestrator
// attaches to an external multiplexer session.
func (r *RenderChannel) Pause() { r.paused.Store(true) }

// Resume clears the pause request.
func (r *RenderChannel) Resume() {
	r.paused.Store(false)
	r.ack.Store(false)
}

// IsPaused reports whether a pause is currently requested.
func (r *RenderChannel) IsPaused() bool { return r.paused.Load() }

// AcknowledgePause is called by the renderer once it has observed the pause
// request and stopped rendering; the orchestrator can poll IsAcknowledged
// before proceeding with whatever required the pause.
func (r *RenderChannel) AcknowledgePause() { r.ack.Store(true) }

// IsAcknowledged reports whether the renderer has acknowledged the current pause.
func (r *RenderChannel) IsAcknowledged() bool { return r.ack.Load() }
