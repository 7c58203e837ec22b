// Package session implements the lifecycle of a link to a remote
// debuggable process.
//
// A Session owns the current connection [State], the attached [VM], a
// start gate and two listener sets (debug events and status changes).
// The transport drives it with SetState, Attach, StartProcessing and
// Close; observers subscribe against a dispose.Scope they control.
// Teardown happens exactly once no matter how many goroutines call Close
// or DetachAndClose, and none of the lifecycle methods block on I/O.
package session

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/dispose"
	"vmconn/internal/fanout"
	"vmconn/internal/metrics"
	"vmconn/internal/promise"
	"vmconn/util"
)

// vmRef boxes the interface so it can live in an atomic.Pointer.
type vmRef struct {
	vm VM
}

// Session is the single authoritative owner of one connection lifecycle.
// All methods are safe for concurrent use.
type Session struct {
	id      string
	logger  *util.Logger
	metrics *metrics.Collector

	state    atomic.Pointer[State]
	vm       atomic.Pointer[vmRef]
	attached atomic.Bool
	closed   atomic.Bool

	started *promise.Promise
	scope   *dispose.Scope
	done    chan struct{}

	debug  *fanout.Fanout[DebugEventListener]
	status *fanout.Fanout[StatusListener]
}

// New creates a session in the NotConnected state.  logger and collector
// may be nil.
func New(logger *util.Logger, collector *metrics.Collector) *Session {
	id := uuid.NewString()
	log := logger.With("session=" + util.ShortID(id))

	s := &Session{
		id:      id,
		logger:  log,
		metrics: collector,
		started: promise.New(),
		scope:   dispose.NewScope(log),
		done:    make(chan struct{}),
		debug:   fanout.New[DebugEventListener]("debug", log),
		status:  fanout.New[StatusListener]("status", log),
	}
	s.state.Store(NewState(NotConnected, "", nil))

	countFailure := func(error) { collector.ListenerFailed() }
	s.debug.OnFailure(countFailure)
	s.status.OnFailure(countFailure)

	collector.SessionOpened()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the latest snapshot.  It never blocks.
func (s *Session) State() *State { return s.state.Load() }

// VM returns the attached remote process, or nil.
func (s *Session) VM() VM {
	if ref := s.vm.Load(); ref != nil {
		return ref.vm
	}
	return nil
}

// Closed reports whether teardown has run.
func (s *Session) Closed() bool { return s.closed.Load() }

// Done returns a channel closed when teardown has run.
func (s *Session) Done() <-chan struct{} { return s.done }

// Started exposes the start gate.  It resolves as done on
// StartProcessing and is rejected when the session closes first.
func (s *Session) Started() *promise.Promise { return s.started }

// Scope is the session's own lifetime.  It is disposed at the end of
// teardown; transports hang link cleanup on it.
func (s *Session) Scope() *dispose.Scope { return s.scope }

// ── Observers ────────────────────────────────────────────────────────

// AddDebugListener subscribes l until scope is disposed or the returned
// func is called.
func (s *Session) AddDebugListener(l DebugEventListener, scope *dispose.Scope) (unsubscribe func()) {
	return s.debug.Subscribe(l, scope)
}

// AddStatusListener subscribes l until scope is disposed or the returned
// func is called.
func (s *Session) AddStatusListener(l StatusListener, scope *dispose.Scope) (unsubscribe func()) {
	return s.status.Subscribe(l, scope)
}

// DebugEvents returns the listener that fans an event out to every
// registered debug listener.  The transport feeds remote events into it.
func (s *Session) DebugEvents() DebugEventListener {
	return multicaster{s}
}

type multicaster struct {
	s *Session
}

func (m multicaster) DebugEvent(ev DebugEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.s.metrics.DebugEvent()
	m.s.debug.Dispatch(func(l DebugEventListener) { l.DebugEvent(ev) })
}

// ── State ────────────────────────────────────────────────────────────

// SetState replaces the current state.  Status listeners hear about it
// only when the status differs from the one it replaced.
func (s *Session) SetState(status Status, message string) {
	s.SetStateHint(status, message, nil)
}

// SetStateHint is SetState with an action attached to the message.
func (s *Session) SetStateHint(status Status, message string, hint Hint) {
	next := NewState(status, message, hint)
	old := s.state.Swap(next)
	if old != nil && old.Status() == status {
		return
	}
	s.logger.Verbose("status %s: %s", status, next.Message())
	s.metrics.StatusChanged()
	s.status.Dispatch(func(l StatusListener) { l.StatusChanged(status) })
}

// ── Start gate ───────────────────────────────────────────────────────

// OnStart runs fn once the session has started processing, or once it is
// clear it never will because it closed first.  If that is already known
// fn runs before OnStart returns.  fn runs at most once.
func (s *Session) OnStart(fn func()) {
	s.started.OnResolved(func(error) { s.runContinuation(fn) })
}

// StartProcessing opens the start gate.  Transports call it once the
// handshake with the remote process succeeded.
func (s *Session) StartProcessing() {
	if !s.started.Resolve() {
		s.logger.Debug("start gate already settled, ignoring StartProcessing")
		return
	}
	s.logger.Verbose("processing started")
}

func (s *Session) runContinuation(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ListenerFailed()
			s.logger.Warn("start continuation panicked: %v", r)
		}
	}()
	fn()
}

// ── Remote process ───────────────────────────────────────────────────

// Attach hands the remote process to the session.  A session accepts one
// handle in its lifetime.  After Close the handle is refused with
// ErrSessionClosed and the caller keeps ownership of it.
func (s *Session) Attach(vm VM) error {
	if s.closed.Load() {
		return ncerr.ErrSessionClosed
	}
	if !s.attached.CompareAndSwap(false, true) {
		return ncerr.ErrAlreadyAttached
	}
	ref := &vmRef{vm: vm}
	s.vm.Store(ref)

	// Close may have won the race between the check above and the store.
	if s.closed.Load() {
		s.vm.CompareAndSwap(ref, nil)
		return ncerr.ErrSessionClosed
	}
	s.logger.Debug("remote process attached")
	return nil
}

// ── Teardown ─────────────────────────────────────────────────────────

// Close tears the session down.  Only the first call does the work: it
// drops the remote handle, rejects the start gate if it never opened,
// moves to Disconnected with message and disposes the session scope.  It
// reports whether this call performed the teardown.
func (s *Session) Close(message string) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}

	s.vm.Swap(nil)
	s.started.Reject(ncerr.ErrSessionClosed)
	s.SetState(Disconnected, message)
	close(s.done)
	s.metrics.SessionClosed()
	s.logger.Verbose("closed")

	s.scope.Dispose()
	return true
}

// DetachAndClose asks the attached remote process to detach, then closes
// the session without waiting for the answer.  The returned promise
// settles when the remote side confirms; it is already resolved when no
// process was attached.
func (s *Session) DetachAndClose() *promise.Promise {
	s.started.Reject(ncerr.ErrSessionClosed)

	detached := promise.Resolved()
	if ref := s.vm.Swap(nil); ref != nil {
		s.metrics.DetachRequested()
		detached = s.detach(ref.vm)
		detached.OnRejected(func(err error) {
			s.metrics.DetachFailed()
			s.logger.Warn("detach: %v", err)
		})
	}

	s.Close("")
	return detached
}

func (s *Session) detach(vm VM) (p *promise.Promise) {
	defer func() {
		if r := recover(); r != nil {
			p = promise.Rejected(ncerr.New("detach panicked"))
			s.logger.Error("detach panicked: %v", r)
		}
	}()
	if p = vm.Detach(); p == nil {
		p = promise.Resolved()
	}
	return p
}

// Dispose ends the session's lifetime.  An open session is closed first,
// so scope hooks never run while VM still returns the handle.  It is safe
// to call more than once.
func (s *Session) Dispose() {
	s.Close("")
	s.scope.Dispose()
}
