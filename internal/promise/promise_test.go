package promise

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ncerr "vmconn/internal/errors"
)

// TestPromise_CallbacksBeforeAndAfter verifies that callbacks registered
// on either side of settlement run exactly once.
func TestPromise_CallbacksBeforeAndAfter(t *testing.T) {
	p := New()
	var before, after int

	p.OnResolved(func(err error) { before++ })
	if before != 0 {
		t.Fatal("callback ran before settlement")
	}

	if !p.Resolve() {
		t.Fatal("first Resolve should settle")
	}
	p.OnResolved(func(err error) { after++ })

	if before != 1 || after != 1 {
		t.Errorf("before=%d after=%d, want 1 and 1", before, after)
	}
}

// TestPromise_FirstSettlementWins verifies later Resolve/Reject calls are
// no-ops.
func TestPromise_FirstSettlementWins(t *testing.T) {
	p := New()
	if !p.Reject(nil) {
		t.Fatal("first Reject should settle")
	}
	if p.Resolve() {
		t.Error("Resolve after Reject should report false")
	}
	if p.Reject(fmt.Errorf("second")) {
		t.Error("second Reject should report false")
	}
	if !p.IsRejected() || p.IsDone() {
		t.Error("promise should stay rejected")
	}
	if !ncerr.Is(p.Err(), ncerr.ErrRejected) {
		t.Errorf("Err() = %v, want ErrRejected", p.Err())
	}
}

func TestPromise_OnDoneOnRejected(t *testing.T) {
	var doneCalls, rejectCalls int

	ok := Resolved()
	ok.OnDone(func() { doneCalls++ })
	ok.OnRejected(func(error) { rejectCalls++ })

	bad := Rejected(fmt.Errorf("detach refused"))
	bad.OnDone(func() { doneCalls++ })
	bad.OnRejected(func(error) { rejectCalls++ })

	if doneCalls != 1 || rejectCalls != 1 {
		t.Errorf("done=%d rejected=%d, want 1 and 1", doneCalls, rejectCalls)
	}
}

// TestPromise_CallbackOrder verifies pending callbacks flush in
// registration order.
func TestPromise_CallbackOrder(t *testing.T) {
	p := New()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		p.OnResolved(func(error) { got = append(got, i) })
	}
	p.Resolve()

	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
}

// TestPromise_ConcurrentRegistration races registration against
// settlement; every callback must still run exactly once.
func TestPromise_ConcurrentRegistration(t *testing.T) {
	for round := 0; round < 50; round++ {
		p := New()
		var calls atomic.Int64
		var wg sync.WaitGroup

		const n = 64
		wg.Add(n + 1)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				p.OnResolved(func(error) { calls.Add(1) })
			}()
		}
		go func() {
			defer wg.Done()
			p.Resolve()
		}()
		wg.Wait()

		if got := calls.Load(); got != n {
			t.Fatalf("round %d: %d callbacks ran, want %d", round, got, n)
		}
	}
}

func TestPromise_Wait(t *testing.T) {
	p := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Reject(ncerr.ErrDetachTimeout)
	}()

	err := p.Wait(context.Background())
	if !ncerr.Is(err, ncerr.ErrDetachTimeout) {
		t.Errorf("Wait() = %v, want ErrDetachTimeout", err)
	}
}

// TestPromise_WaitContext verifies Wait gives up when the context ends
// and leaves the promise pending.
func TestPromise_WaitContext(t *testing.T) {
	p := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
	if p.IsProcessed() {
		t.Error("promise should still be pending")
	}
}

func TestPromise_DoneChannel(t *testing.T) {
	p := New()
	select {
	case <-p.Done():
		t.Fatal("Done closed before settlement")
	default:
	}
	p.Resolve()
	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed after settlement")
	}
}
