package session

import "time"

// EventType identifies what a [DebugEvent] reports.
type EventType int

const (
	// EventOutput carries an opaque message from the remote process.
	// Data holds the payload.
	EventOutput EventType = iota

	// EventSuspended reports that the remote process paused.
	EventSuspended

	// EventResumed reports that the remote process continued.
	EventResumed

	// EventError reports a non-fatal problem.  Err holds the cause.
	EventError

	// EventProcessExited reports that the link to the remote process went
	// away.  It is the last event a session delivers.
	EventProcessExited
)

func (t EventType) String() string {
	switch t {
	case EventOutput:
		return "output"
	case EventSuspended:
		return "suspended"
	case EventResumed:
		return "resumed"
	case EventError:
		return "error"
	case EventProcessExited:
		return "process-exited"
	default:
		return "unknown"
	}
}

// DebugEvent is a protocol-neutral notification from the remote process.
type DebugEvent struct {
	Time time.Time
	Type EventType
	Data string
	Err  error
}

// DebugEventListener observes debug events.  Implementations must not
// assume any ordering relative to other listeners.
type DebugEventListener interface {
	DebugEvent(ev DebugEvent)
}

// DebugEventListenerFunc adapts a function to [DebugEventListener].
type DebugEventListenerFunc func(ev DebugEvent)

// DebugEvent calls f.
func (f DebugEventListenerFunc) DebugEvent(ev DebugEvent) { f(ev) }

// StatusListener observes status transitions.  It is called only when
// the status value changes, never for message-only updates.
type StatusListener interface {
	StatusChanged(status Status)
}

// StatusListenerFunc adapts a function to [StatusListener].
type StatusListenerFunc func(status Status)

// StatusChanged calls f.
func (f StatusListenerFunc) StatusChanged(status Status) { f(status) }
