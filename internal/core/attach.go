package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"vmconn/internal/capability"
	"vmconn/internal/dispose"
	ncerr "vmconn/internal/errors"
	"vmconn/internal/metrics"
	"vmconn/internal/remote"
	"vmconn/internal/session"
	"vmconn/internal/transport"
	"vmconn/util"
)

// detachGrace is added to the detach timeout when waiting for the
// acknowledgment, so the handle's own timeout fires first.
const detachGrace = 500 * time.Millisecond

// AttachMode attaches to one debug endpoint for the lifetime of one
// session.
type AttachMode struct {
	Dialer        transport.Dialer
	Capability    capability.Capability
	Address       string
	DetachTimeout time.Duration
	Logger        *util.Logger
	Metrics       *metrics.Collector

	// Stdout receives remote output; os.Stdout when nil.
	Stdout io.Writer

	// OnSession, when set, sees every session before it dials.
	OnSession func(sess *session.Session)
}

func (m *AttachMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run attaches once.  Cancelling ctx detaches from the remote process;
// losing the link returns ErrRemoteDisconnected.
func (m *AttachMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	_, err := m.runOnce(ctx)
	return err
}

// runOnce drives one session from Connecting to teardown.  connected
// reports whether the remote process was ever attached.
func (m *AttachMode) runOnce(ctx context.Context) (connected bool, err error) {
	sess := session.New(m.Logger, m.Metrics)

	runScope := dispose.NewScope(m.Logger)
	defer runScope.Dispose()

	con := newConsole(sess, m.stdout(), m.Logger)
	sess.AddStatusListener(con, runScope)
	sess.AddDebugListener(con, runScope)
	if m.OnSession != nil {
		m.OnSession(sess)
	}

	sess.SetState(session.Connecting, "connecting to "+m.Address)
	link, err := m.Dialer.Dial(ctx, m.Address)
	if err != nil {
		m.Metrics.RecordError(err.Error())
		sess.Close(fmt.Sprintf("cannot reach %s", m.Address))
		return false, fmt.Errorf("attach to %s: %w", m.Address, err)
	}

	vm := remote.New(link, remote.Options{
		Events:        sess.DebugEvents(),
		DetachTimeout: m.DetachTimeout,
		Logger:        m.Logger,
		OnExit: func(err error) {
			if sess.VM() == nil {
				return // detaching or never attached
			}
			reason := "remote process disconnected"
			if err != nil {
				reason += ": " + err.Error()
			}
			sess.Close(reason)
		},
	})
	// A plain close drops the link; a detach keeps it until acknowledged.
	sess.Scope().OnDispose(func() {
		if !vm.Detaching() {
			vm.Close()
		}
	})

	if err := sess.Attach(vm); err != nil {
		vm.Close()
		return false, err
	}
	sess.SetState(session.Connected, "attached to "+vm.RemoteAddr())
	sess.StartProcessing()

	err = m.Capability.Handle(ctx, sess, vm)
	if ncerr.Is(err, ncerr.ErrRemoteDisconnected) || linkLost(vm) {
		sess.Close("remote process disconnected")
		m.Metrics.RecordError("remote disconnected")
		if err == nil {
			err = ncerr.ErrRemoteDisconnected
		}
		return true, err
	}

	m.detach(sess)
	vm.Close()
	return true, err
}

// detach runs DetachAndClose and waits, bounded, for the answer.
func (m *AttachMode) detach(sess *session.Session) {
	detached := sess.DetachAndClose()

	wctx := context.Background()
	if m.DetachTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(wctx, m.DetachTimeout+detachGrace)
		defer cancel()
	}
	if err := detached.Wait(wctx); err != nil {
		m.Logger.Debug("detach finished with %v", err)
		return
	}
	m.Logger.Verbose("detached")
}

func linkLost(vm *remote.VM) bool {
	select {
	case <-vm.Done():
		return !vm.Detaching()
	default:
		return false
	}
}
