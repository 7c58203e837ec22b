package session

// Status is the coarse connection status of a session.
type Status int

const (
	NotConnected Status = iota
	Connecting
	Connected
	Disconnected
)

func (s Status) String() string {
	switch s {
	case NotConnected:
		return "not-connected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Text is the default human-readable message for the status.
func (s Status) Text() string {
	switch s {
	case NotConnected:
		return "Not connected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Hint is an optional action attached to a state message, such as
// "open settings" next to a connection-refused message.
type Hint interface {
	Follow()
}

// HintFunc adapts a plain function to [Hint].
type HintFunc func()

// Follow calls f.
func (f HintFunc) Follow() { f() }

// State is an immutable snapshot of a session's connection status.
type State struct {
	status  Status
	message string
	hint    Hint
}

// NewState builds a snapshot.  message and hint may be empty.
func NewState(status Status, message string, hint Hint) *State {
	return &State{status: status, message: message, hint: hint}
}

// Status returns the snapshot's status.
func (s *State) Status() Status { return s.status }

// Message returns the explicit message, or the status text when none was
// given.
func (s *State) Message() string {
	if s.message == "" {
		return s.status.Text()
	}
	return s.message
}

// RawMessage returns the message exactly as it was set.
func (s *State) RawMessage() string { return s.message }

// Hint returns the attached action, or nil.
func (s *State) Hint() Hint { return s.hint }
