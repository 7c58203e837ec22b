// Package errors provides the error vocabulary shared by the session core,
// the remote-process layer and the transports.
//
// Lifecycle operations on a session never return errors; these types show
// up at the edges: dialing, tunnelling, configuration, detach futures and
// the reports produced when an observer panics during fan-out.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrSessionClosed      = errors.New("session is closed")
	ErrAlreadyAttached    = errors.New("remote process already attached")
	ErrRejected           = errors.New("rejected before completion")
	ErrDetachTimeout      = errors.New("detach was not acknowledged in time")
	ErrRemoteDisconnected = errors.New("remote process disconnected")
	ErrNotConnected       = errors.New("not connected")
	ErrTunnelClosed       = errors.New("tunnel is closed")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure while establishing or using a link.
type NetworkError struct {
	Op        string // "dial", "handshake", "send", "receive"
	Addr      string // endpoint involved
	Err       error
	Retryable bool
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with gateway context.
type SSHError struct {
	Op   string // "auth", "hostkey", "handshake", "channel"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag name without dashes
	Value   interface{} // nil when the value is missing
	Message string
	Hint    string // optional suggestion
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ListenerError reports an observer that panicked during fan-out.  The
// dispatch loop recovers the panic, wraps it here and moves on to the
// next observer.
type ListenerError struct {
	Fanout string      // name of the dispatcher
	Index  int         // position of the listener in the snapshot
	Value  interface{} // recovered panic value
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("%s listener #%d panicked: %v", e.Fanout, e.Index, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *ListenerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, detecting retryability from err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether a new session is worth attempting after err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteDisconnected) {
		return true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return true
		}
		return opErr.Temporary() //nolint:staticcheck // still the best hint the stdlib offers
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports ───────────────────────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
