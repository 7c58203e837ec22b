package core

import (
	"fmt"
	"io"
	"sync"

	"vmconn/internal/session"
	"vmconn/util"
)

// console prints remote output to stdout and status changes to the log,
// so stdout stays clean for piping.
type console struct {
	sess   *session.Session
	logger *util.Logger

	mu  sync.Mutex
	out io.Writer
}

func newConsole(sess *session.Session, out io.Writer, logger *util.Logger) *console {
	return &console{sess: sess, out: out, logger: logger}
}

func (c *console) StatusChanged(status session.Status) {
	st := c.sess.State()
	if st.Status() != status || st.RawMessage() == "" {
		c.logger.Info("%s", status.Text())
		return
	}
	c.logger.Info("%s: %s", status.Text(), st.RawMessage())
}

func (c *console) DebugEvent(ev session.DebugEvent) {
	switch ev.Type {
	case session.EventOutput:
		c.mu.Lock()
		fmt.Fprintln(c.out, ev.Data)
		c.mu.Unlock()
	case session.EventSuspended, session.EventResumed:
		c.logger.Info("process %s", ev.Type)
	case session.EventError:
		c.logger.Warn("remote error: %v", ev.Err)
	case session.EventProcessExited:
		if ev.Err != nil {
			c.logger.Verbose("remote link ended: %v", ev.Err)
		} else {
			c.logger.Verbose("remote link ended")
		}
	}
}
