package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/dispose"
	"vmconn/internal/metrics"
	"vmconn/internal/promise"
)

// fakeVM records detach calls and hands back a promise the test controls.
type fakeVM struct {
	detaches atomic.Int64
	result   *promise.Promise
}

func (v *fakeVM) Detach() *promise.Promise {
	v.detaches.Add(1)
	if v.result == nil {
		return promise.Resolved()
	}
	return v.result
}

// statusRecorder collects status transitions.
type statusRecorder struct {
	mu  sync.Mutex
	got []Status
}

func (r *statusRecorder) StatusChanged(s Status) {
	r.mu.Lock()
	r.got = append(r.got, s)
	r.mu.Unlock()
}

func (r *statusRecorder) statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.got...)
}

func (r *statusRecorder) count(s Status) int {
	n := 0
	for _, got := range r.statuses() {
		if got == s {
			n++
		}
	}
	return n
}

func TestSession_InitialState(t *testing.T) {
	s := New(nil, nil)
	st := s.State()
	if st.Status() != NotConnected {
		t.Errorf("status = %s, want not-connected", st.Status())
	}
	if st.Message() != "Not connected" {
		t.Errorf("message = %q", st.Message())
	}
	if s.VM() != nil || s.Closed() || s.Started().IsProcessed() {
		t.Error("fresh session should be empty, open and unstarted")
	}
	if s.ID() == "" {
		t.Error("session should have an ID")
	}
}

// TestSession_SetStateDispatchesOnlyOnChange verifies message-only
// updates stay silent for status listeners.
func TestSession_SetStateDispatchesOnlyOnChange(t *testing.T) {
	s := New(nil, nil)
	rec := &statusRecorder{}
	s.AddStatusListener(rec, nil)

	s.SetState(Connecting, "resolving host")
	s.SetState(Connecting, "opening socket")
	s.SetState(Connecting, "")
	s.SetState(Connected, "attached")
	s.SetState(Connected, "attached again")

	got := rec.statuses()
	if len(got) != 2 || got[0] != Connecting || got[1] != Connected {
		t.Errorf("dispatched %v, want [connecting connected]", got)
	}
	if msg := s.State().Message(); msg != "attached again" {
		t.Errorf("message = %q, latest message should still be stored", msg)
	}
}

func TestSession_SetStateHint(t *testing.T) {
	s := New(nil, nil)
	followed := false
	s.SetStateHint(Disconnected, "connection refused", HintFunc(func() { followed = true }))

	h := s.State().Hint()
	if h == nil {
		t.Fatal("hint should be stored")
	}
	h.Follow()
	if !followed {
		t.Error("hint action not invoked")
	}
}

// TestSession_OnStartBeforeAndAfter verifies continuations registered
// before and after StartProcessing each run exactly once.
func TestSession_OnStartBeforeAndAfter(t *testing.T) {
	s := New(nil, nil)
	var before, after int

	s.OnStart(func() { before++ })
	if before != 0 {
		t.Fatal("continuation ran before start")
	}
	s.StartProcessing()
	s.OnStart(func() { after++ })
	s.StartProcessing()
	s.Close("")

	if before != 1 || after != 1 {
		t.Errorf("before=%d after=%d, want 1 and 1", before, after)
	}
	if !s.Started().IsDone() {
		t.Error("gate should stay done after close")
	}
}

// TestSession_OnStartAfterClose verifies continuations still run once
// when the session closes before it ever started.
func TestSession_OnStartAfterClose(t *testing.T) {
	s := New(nil, nil)
	var early, late int
	s.OnStart(func() { early++ })

	s.Close("handshake failed")
	s.OnStart(func() { late++ })
	s.StartProcessing()

	if early != 1 || late != 1 {
		t.Errorf("early=%d late=%d, want 1 and 1", early, late)
	}
	if !ncerr.Is(s.Started().Err(), ncerr.ErrSessionClosed) {
		t.Errorf("gate err = %v, want ErrSessionClosed", s.Started().Err())
	}
}

// TestSession_OnStartConcurrent races registration with resolution.
func TestSession_OnStartConcurrent(t *testing.T) {
	for round := 0; round < 20; round++ {
		s := New(nil, nil)
		var runs atomic.Int64
		var wg sync.WaitGroup
		const n = 32

		wg.Add(n + 1)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				s.OnStart(func() { runs.Add(1) })
			}()
		}
		go func() {
			defer wg.Done()
			s.StartProcessing()
		}()
		wg.Wait()

		if got := runs.Load(); got != n {
			t.Fatalf("round %d: %d continuations ran, want %d", round, got, n)
		}
	}
}

func TestSession_OnStartPanicIsolated(t *testing.T) {
	c := metrics.New()
	s := New(nil, c)
	ran := false
	s.OnStart(func() { panic("bad continuation") })
	s.OnStart(func() { ran = true })

	s.StartProcessing()
	if !ran {
		t.Error("continuation after a panicking one should run")
	}
	if c.ListenerFailures() != 1 {
		t.Errorf("listener failures = %d, want 1", c.ListenerFailures())
	}
}

// TestSession_ConcurrentCloseSingleTeardown verifies that exactly one of
// many concurrent Close/DetachAndClose calls performs the teardown.
func TestSession_ConcurrentCloseSingleTeardown(t *testing.T) {
	for round := 0; round < 20; round++ {
		c := metrics.New()
		s := New(nil, c)
		vm := &fakeVM{}
		if err := s.Attach(vm); err != nil {
			t.Fatal(err)
		}
		rec := &statusRecorder{}
		s.AddStatusListener(rec, nil)

		var winners atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i%2 == 0 {
					if s.Close("closed by test") {
						winners.Add(1)
					}
				} else {
					s.DetachAndClose()
				}
			}(i)
		}
		wg.Wait()

		if c.Teardowns() != 1 {
			t.Fatalf("round %d: %d teardowns, want 1", round, c.Teardowns())
		}
		if winners.Load() > 1 {
			t.Fatalf("round %d: %d Close calls reported winning", round, winners.Load())
		}
		if rec.count(Disconnected) != 1 {
			t.Fatalf("round %d: disconnected dispatched %d times", round, rec.count(Disconnected))
		}
		if vm.detaches.Load() > 1 {
			t.Fatalf("round %d: detach called %d times", round, vm.detaches.Load())
		}
		if s.VM() != nil {
			t.Fatalf("round %d: VM not cleared", round)
		}
	}
}

// TestSession_CloseScenario walks the two-goroutine close scenario: a
// started session with an attached handle and three listeners.
func TestSession_CloseScenario(t *testing.T) {
	s := New(nil, nil)
	s.SetState(Connecting, "")
	s.SetState(Connected, "")
	s.StartProcessing()
	if err := s.Attach(&fakeVM{}); err != nil {
		t.Fatal(err)
	}

	recs := []*statusRecorder{{}, {}, {}}
	for _, r := range recs {
		s.AddStatusListener(r, nil)
	}

	var wg sync.WaitGroup
	var wins atomic.Int64
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Close("user requested") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
	st := s.State()
	if st.Status() != Disconnected || st.Message() != "user requested" {
		t.Errorf("terminal state = %s %q", st.Status(), st.Message())
	}
	if s.VM() != nil {
		t.Error("handle should be cleared")
	}

	if s.Close("again") {
		t.Error("fourth close should report false")
	}
	for i, r := range recs {
		got := r.statuses()
		if len(got) != 1 || got[0] != Disconnected {
			t.Errorf("listener %d saw %v, want [disconnected]", i, got)
		}
	}
	if s.State().Message() != "user requested" {
		t.Error("late close must not overwrite the terminal message")
	}
}

// TestSession_DetachWithoutHandle verifies an already-resolved future and
// a full teardown.
func TestSession_DetachWithoutHandle(t *testing.T) {
	s := New(nil, nil)
	p := s.DetachAndClose()

	if !p.IsDone() {
		t.Error("future should already be resolved")
	}
	if !s.Closed() || s.State().Status() != Disconnected {
		t.Error("session should be torn down")
	}
	if !s.Started().IsRejected() {
		t.Error("start gate should be rejected")
	}
}

// TestSession_DetachNeverAcknowledged verifies local teardown completes
// even though the remote never confirms.
func TestSession_DetachNeverAcknowledged(t *testing.T) {
	c := metrics.New()
	s := New(nil, c)
	vm := &fakeVM{result: promise.New()}
	if err := s.Attach(vm); err != nil {
		t.Fatal(err)
	}

	p := s.DetachAndClose()

	if p.IsProcessed() {
		t.Error("detach future should still be pending")
	}
	if !s.Closed() || s.State().Status() != Disconnected || s.VM() != nil {
		t.Error("teardown should complete without the acknowledgement")
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
	if vm.detaches.Load() != 1 || c.Detaches() != 1 {
		t.Errorf("detach calls = %d, metric = %d", vm.detaches.Load(), c.Detaches())
	}
}

func TestSession_DetachFailurePropagates(t *testing.T) {
	c := metrics.New()
	s := New(nil, c)
	vm := &fakeVM{result: promise.New()}
	s.Attach(vm) //nolint:errcheck

	p := s.DetachAndClose()
	vm.result.Reject(ncerr.ErrDetachTimeout)

	if !ncerr.Is(p.Err(), ncerr.ErrDetachTimeout) {
		t.Errorf("future err = %v", p.Err())
	}
	if c.Snapshot().DetachFailures != 1 {
		t.Error("detach failure not counted")
	}
}

func TestSession_AttachRules(t *testing.T) {
	s := New(nil, nil)
	vm := &fakeVM{}
	if err := s.Attach(vm); err != nil {
		t.Fatal(err)
	}
	if s.VM() != vm {
		t.Error("VM() should return the attached handle")
	}
	if err := s.Attach(&fakeVM{}); !ncerr.Is(err, ncerr.ErrAlreadyAttached) {
		t.Errorf("second attach = %v, want ErrAlreadyAttached", err)
	}

	closed := New(nil, nil)
	closed.Close("")
	if err := closed.Attach(vm); !ncerr.Is(err, ncerr.ErrSessionClosed) {
		t.Errorf("attach after close = %v, want ErrSessionClosed", err)
	}
	if closed.VM() != nil {
		t.Error("closed session must not hold a handle")
	}
}

// TestSession_DebugEventsFanout verifies the multicaster reaches every
// debug listener and that the session scope ends with Close.
func TestSession_DebugEventsFanout(t *testing.T) {
	c := metrics.New()
	s := New(nil, c)
	scope := dispose.NewScope(nil)

	var a, b []DebugEvent
	s.AddDebugListener(DebugEventListenerFunc(func(ev DebugEvent) { a = append(a, ev) }), scope)
	s.AddDebugListener(DebugEventListenerFunc(func(ev DebugEvent) { panic("bad observer") }), scope)
	s.AddDebugListener(DebugEventListenerFunc(func(ev DebugEvent) { b = append(b, ev) }), nil)

	s.DebugEvents().DebugEvent(DebugEvent{Type: EventSuspended, Data: "breakpoint"})
	scope.Dispose()
	s.DebugEvents().DebugEvent(DebugEvent{Type: EventResumed})

	if len(a) != 1 || len(b) != 2 {
		t.Fatalf("a=%d b=%d, want 1 and 2", len(a), len(b))
	}
	if a[0].Time.IsZero() || a[0].Data != "breakpoint" {
		t.Errorf("unexpected event %+v", a[0])
	}
	if c.ListenerFailures() != 1 {
		t.Errorf("listener failures = %d, want 1", c.ListenerFailures())
	}
}

func TestSession_CloseDisposesScope(t *testing.T) {
	s := New(nil, nil)
	released := 0
	s.Scope().OnDispose(func() { released++ })

	s.Close("")
	s.Close("")
	s.Dispose()

	if released != 1 {
		t.Errorf("scope hooks ran %d times, want 1", released)
	}
}

// TestSession_DisposeOpenSession verifies disposing a live session closes
// it before the scope hooks see it.
func TestSession_DisposeOpenSession(t *testing.T) {
	s := New(nil, nil)
	vm := &fakeVM{}
	if err := s.Attach(vm); err != nil {
		t.Fatal(err)
	}
	var closedInHook, vmGoneInHook bool
	s.Scope().OnDispose(func() {
		closedInHook = s.Closed()
		vmGoneInHook = s.VM() == nil
	})

	s.Dispose()
	if !closedInHook || !vmGoneInHook {
		t.Errorf("hook saw closed=%v vmGone=%v, want both true", closedInHook, vmGoneInHook)
	}
	if s.State().Status() != Disconnected {
		t.Errorf("status = %v, want disconnected", s.State().Status())
	}
	s.Dispose()
}

// TestSession_StatusListenerScope verifies a status listener registered
// against a scope goes away with it.
func TestSession_StatusListenerScope(t *testing.T) {
	s := New(nil, nil)
	scope := dispose.NewScope(nil)
	rec := &statusRecorder{}
	s.AddStatusListener(rec, scope)

	s.SetState(Connecting, "")
	scope.Dispose()
	s.SetState(Connected, "")

	if got := rec.statuses(); len(got) != 1 || got[0] != Connecting {
		t.Errorf("got %v, want [connecting]", got)
	}
}
