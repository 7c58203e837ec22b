// Package remote implements the attached-process handle on top of a
// transport link.
package remote

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/promise"
	"vmconn/internal/session"
	"vmconn/internal/transport"
	"vmconn/util"
)

// Options configures a VM.  Every field is optional.
type Options struct {
	// Events receives one EventOutput per inbound message and a final
	// EventProcessExited when the link ends.
	Events session.DebugEventListener

	// DetachTimeout bounds how long Detach waits for the remote side to
	// close its half.  Zero waits forever.
	DetachTimeout time.Duration

	// OnExit runs once, from the reader goroutine, after the link ended.
	// err is nil for an orderly close by the remote side.
	OnExit func(err error)

	Logger *util.Logger
}

// VM is a remote debuggable process reached over a link.  It satisfies
// [session.VM].
type VM struct {
	link   transport.Link
	opts   Options
	logger *util.Logger

	detaching atomic.Bool
	detached  *promise.Promise

	gone    chan struct{}
	exitMu  sync.Mutex
	exitErr error
}

// New takes ownership of link and starts reading from it.
func New(link transport.Link, opts Options) *VM {
	v := &VM{
		link:     link,
		opts:     opts,
		logger:   opts.Logger.With("vm=" + link.RemoteAddr()),
		detached: promise.New(),
		gone:     make(chan struct{}),
	}
	go v.readLoop()
	return v
}

// Send forwards a raw message to the remote process.
func (v *VM) Send(msg []byte) error {
	if v.detaching.Load() {
		return ncerr.ErrNotConnected
	}
	select {
	case <-v.gone:
		return ncerr.ErrNotConnected
	default:
	}
	return v.link.Send(msg)
}

// Detach half-closes the link and waits for the remote side to close
// its half in return.  The promise resolves on that acknowledgment, or
// immediately if the link is already gone or cannot half-close.  It is
// rejected with ErrDetachTimeout when the acknowledgment does not arrive
// in time.  Repeated calls return the same promise.
func (v *VM) Detach() *promise.Promise {
	if !v.detaching.CompareAndSwap(false, true) {
		return v.detached
	}
	select {
	case <-v.gone:
		v.detached.Resolve()
		return v.detached
	default:
	}

	v.logger.Verbose("detaching")
	if err := v.link.CloseSend(); err != nil {
		v.link.Close()
		if errors.Is(err, transport.ErrNoHalfClose) {
			v.detached.Resolve()
		} else {
			v.detached.Reject(ncerr.Wrap("detach", v.link.RemoteAddr(), err))
		}
		return v.detached
	}

	if d := v.opts.DetachTimeout; d > 0 {
		timer := time.AfterFunc(d, func() {
			if v.detached.Reject(ncerr.ErrDetachTimeout) {
				v.link.Close()
			}
		})
		v.detached.OnResolved(func(error) { timer.Stop() })
	}
	return v.detached
}

// Detaching reports whether Detach has been called.
func (v *VM) Detaching() bool { return v.detaching.Load() }

// Close drops the link without detaching.
func (v *VM) Close() error {
	return v.link.Close()
}

// Done returns a channel closed once the link has ended.
func (v *VM) Done() <-chan struct{} { return v.gone }

// Err returns why the link ended, nil for an orderly close.  It is only
// meaningful after Done is closed.
func (v *VM) Err() error {
	v.exitMu.Lock()
	defer v.exitMu.Unlock()
	return v.exitErr
}

// RemoteAddr describes the far end.
func (v *VM) RemoteAddr() string { return v.link.RemoteAddr() }

func (v *VM) readLoop() {
	for {
		msg, err := v.link.Receive()
		if err != nil {
			v.finish(err)
			return
		}
		v.emit(session.DebugEvent{Type: session.EventOutput, Data: string(msg)})
	}
}

func (v *VM) finish(err error) {
	if err == io.EOF {
		err = nil
	}
	if v.detaching.Load() {
		// Whatever ends the link after a detach request ends the attachment.
		err = nil
	}

	v.exitMu.Lock()
	v.exitErr = err
	v.exitMu.Unlock()
	close(v.gone)

	if v.detaching.Load() {
		v.detached.Resolve()
	}
	v.link.Close()

	if err != nil {
		v.logger.Verbose("link lost: %v", err)
	} else {
		v.logger.Verbose("link closed by remote")
	}
	v.emit(session.DebugEvent{Type: session.EventProcessExited, Err: err})
	if v.opts.OnExit != nil {
		v.opts.OnExit(err)
	}
}

func (v *VM) emit(ev session.DebugEvent) {
	if v.opts.Events != nil {
		v.opts.Events.DebugEvent(ev)
	}
}
