package capability

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"

	"vmconn/internal/dispose"
	"vmconn/internal/remote"
	"vmconn/internal/session"
	"vmconn/util"
)

// execBacklog bounds the output lines queued for a slow helper.
const execBacklog = 256

// Exec drives the remote process from a local helper program: every
// output message becomes a line on the helper's stdin and every line the
// helper prints is sent to the remote process.  Either Program (-e) or
// Command (-c) must be set.  When the helper exits the attachment is
// over.
type Exec struct {
	Program string // -e: execute a program directly
	Command string // -c: execute via the system shell

	// Stderr defaults to os.Stderr when nil.
	Stderr io.Writer
	Logger *util.Logger
}

// Handle runs the helper until it exits or the attachment ends.
func (e *Exec) Handle(ctx context.Context, sess *session.Session, vm *remote.VM) error {
	var cmd *exec.Cmd
	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd.exe", "/C", e.Command)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
		}
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return fmt.Errorf("no command specified for exec mode")
	}
	cmd.Stderr = e.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	scope := dispose.NewScope(e.Logger)
	defer scope.Dispose()

	feed := make(chan string, execBacklog)
	sess.AddDebugListener(session.DebugEventListenerFunc(func(ev session.DebugEvent) {
		if ev.Type != session.EventOutput {
			return
		}
		select {
		case feed <- ev.Data:
		default:
			e.Logger.Warn("exec: helper is not reading, dropped output line")
		}
	}), scope)

	e.Logger.Debug("exec: %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-scope.Done():
				return
			case line := <-feed:
				if _, err := io.WriteString(stdin, line+"\n"); err != nil {
					return
				}
			}
		}
	}()

	readDone := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 64<<10), 4<<20)
		for sc.Scan() {
			// Keep draining after a failed send so the helper never blocks.
			if err := vm.Send(append([]byte(nil), sc.Bytes()...)); err != nil {
				e.Logger.Debug("exec: send: %v", err)
			}
		}
		readDone <- sc.Err()
	}()

	linkLost := false
	select {
	case <-readDone:
	case <-vm.Done():
		linkLost = true
		scope.Dispose()
		<-readDone
	case <-sess.Done():
		scope.Dispose()
		<-readDone
	case <-ctx.Done():
		<-readDone
	}

	waitErr := cmd.Wait()
	if linkLost {
		return linkEnded(vm)
	}
	if ctx.Err() != nil {
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, waitErr)
	}
	return nil
}
