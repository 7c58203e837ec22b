package dispose

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestScope_DisposeRunsHooksOnce verifies hooks run LIFO and a second
// Dispose is a no-op.
func TestScope_DisposeRunsHooksOnce(t *testing.T) {
	s := NewScope(nil)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.OnDispose(func() { order = append(order, i) })
	}

	s.Dispose()
	s.Dispose()

	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("order = %v, want [2 1 0]", order)
	}
	if !s.IsDisposed() {
		t.Error("scope should report disposed")
	}
}

func TestScope_Cancel(t *testing.T) {
	s := NewScope(nil)
	ran := false
	cancel := s.OnDispose(func() { ran = true })
	cancel()
	s.Dispose()

	if ran {
		t.Error("cancelled hook should not run")
	}
}

// TestScope_CancelReleasesHook verifies a cancelled hook is dropped from
// a live scope right away, so subscribe/unsubscribe cycles on a
// long-lived scope do not accumulate.
func TestScope_CancelReleasesHook(t *testing.T) {
	s := NewScope(nil)
	keep := s.OnDispose(func() {})
	for i := 0; i < 10000; i++ {
		cancel := s.OnDispose(func() { t.Error("cancelled hook ran") })
		cancel()
		cancel()
	}

	s.mu.Lock()
	n := len(s.hooks)
	s.mu.Unlock()
	if n != 1 {
		t.Fatalf("scope retains %d hooks, want 1", n)
	}

	keep()
	s.mu.Lock()
	n = len(s.hooks)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("scope retains %d hooks, want 0", n)
	}
	s.Dispose()
}

// TestScope_CancelDuringDispose verifies a hook cancelled by an earlier
// hook is skipped.
func TestScope_CancelDuringDispose(t *testing.T) {
	s := NewScope(nil)
	var order []string
	var cancelFirst func()
	cancelFirst = s.OnDispose(func() { order = append(order, "first") })
	s.OnDispose(func() { order = append(order, "middle") })
	s.OnDispose(func() {
		order = append(order, "last")
		cancelFirst()
	})

	s.Dispose()
	if len(order) != 2 || order[0] != "last" || order[1] != "middle" {
		t.Errorf("order = %v, want [last middle]", order)
	}
}

// TestScope_RegisterAfterDispose verifies late hooks run immediately.
func TestScope_RegisterAfterDispose(t *testing.T) {
	s := NewScope(nil)
	s.Dispose()

	ran := false
	s.OnDispose(func() { ran = true })
	if !ran {
		t.Error("hook on disposed scope should run immediately")
	}
}

func TestScope_Child(t *testing.T) {
	parent := NewScope(nil)
	child := parent.NewChild()

	ran := false
	child.OnDispose(func() { ran = true })
	parent.Dispose()

	if !ran || !child.IsDisposed() {
		t.Error("child should be disposed with its parent")
	}
}

// TestScope_ChildDisposedFirst verifies an early child dispose leaves the
// parent alive and does not run twice later.
func TestScope_ChildDisposedFirst(t *testing.T) {
	parent := NewScope(nil)
	child := parent.NewChild()

	var calls int
	child.OnDispose(func() { calls++ })
	child.Dispose()
	parent.Dispose()

	if calls != 1 {
		t.Errorf("child hook ran %d times, want 1", calls)
	}
}

// TestScope_PanickingHook verifies one bad hook does not stop the rest.
func TestScope_PanickingHook(t *testing.T) {
	s := NewScope(nil)
	ran := false
	s.OnDispose(func() { ran = true })
	s.OnDispose(func() { panic("boom") })

	s.Dispose()
	if !ran {
		t.Error("hook after a panicking hook should still run")
	}
}

func TestScope_ConcurrentDispose(t *testing.T) {
	s := NewScope(nil)
	var calls atomic.Int64
	s.OnDispose(func() { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispose()
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("hook ran %d times, want 1", calls.Load())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}
}
