// Package fanout broadcasts one event to many independent observers.
//
// Each registration is tied to a [dispose.Scope]; when the scope ends the
// listener disappears.  Dispatch is synchronous and in registration
// order, and a listener that panics is reported and skipped so the
// remaining listeners still see the event.
package fanout

import (
	"sync"

	ncerr "vmconn/internal/errors"
	"vmconn/internal/dispose"
	"vmconn/util"
)

type entry[L any] struct {
	listener L
}

// Fanout is a multi-listener dispatcher for listeners of type L.
type Fanout[L any] struct {
	name   string
	logger *util.Logger

	mu        sync.RWMutex
	entries   []*entry[L]
	onFailure func(err error)
}

// New returns an empty dispatcher.  name appears in failure reports.
func New[L any](name string, logger *util.Logger) *Fanout[L] {
	return &Fanout[L]{name: name, logger: logger}
}

// OnFailure installs a hook called with a [ncerr.ListenerError] whenever
// a listener panics.  It runs on the dispatching goroutine.
func (f *Fanout[L]) OnFailure(fn func(err error)) {
	f.mu.Lock()
	f.onFailure = fn
	f.mu.Unlock()
}

// Subscribe registers listener until scope is disposed or the returned
// func is called.  A nil scope keeps the listener until unsubscribe.
func (f *Fanout[L]) Subscribe(listener L, scope *dispose.Scope) (unsubscribe func()) {
	e := &entry[L]{listener: listener}

	f.mu.Lock()
	f.entries = append(f.entries, e)
	f.mu.Unlock()

	var (
		mu         sync.Mutex
		removed    bool
		cancelHook func()
	)
	remove := func() {
		mu.Lock()
		if removed {
			mu.Unlock()
			return
		}
		removed = true
		cancel := cancelHook
		mu.Unlock()

		f.remove(e)
		if cancel != nil {
			cancel()
		}
	}
	if scope != nil {
		cancel := scope.OnDispose(remove)
		mu.Lock()
		cancelHook = cancel
		mu.Unlock()
	}
	return remove
}

func (f *Fanout[L]) remove(target *entry[L]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e == target {
			// Copy instead of shifting in place: a concurrent Dispatch may
			// still be iterating over the old slice.
			next := make([]*entry[L], 0, len(f.entries)-1)
			next = append(next, f.entries[:i]...)
			f.entries = append(next, f.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (f *Fanout[L]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Dispatch calls deliver once for every listener registered at the time
// of the call.  It returns how many deliveries panicked.
func (f *Fanout[L]) Dispatch(deliver func(listener L)) int {
	f.mu.RLock()
	snapshot := f.entries
	onFailure := f.onFailure
	f.mu.RUnlock()

	failures := 0
	for i, e := range snapshot {
		if err := f.deliverOne(i, e.listener, deliver); err != nil {
			failures++
			f.logger.Warn("%v", err)
			if onFailure != nil {
				onFailure(err)
			}
		}
	}
	return failures
}

func (f *Fanout[L]) deliverOne(i int, l L, deliver func(L)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ncerr.ListenerError{Fanout: f.name, Index: i, Value: r}
		}
	}()
	deliver(l)
	return nil
}
