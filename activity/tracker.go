// Package activity implements the activity Tracker: the count of
// locally-active workers that decides when an execution has no forward
// progress available and must suspend.
package activity

import (
	"errors"
	"sync"
)

// Kind tags an activity by what it represents, for observability only —
// suspension decisions depend solely on the count, not the kind.
type Kind string

const (
	KindContext  Kind = "context"
	KindStep     Kind = "step"
	KindChild    Kind = "child"
	KindInvoke   Kind = "invoke"
	KindCallback Kind = "callback"
	KindPoll     Kind = "poll"
)

// ErrSuspendRequested is the distinguished signal raised when the active
// set empties. It is a plain error value, never panicked: it
// must propagate to the executor without being catchable by user code, and
// the idiomatic way to guarantee that in Go is to never hand it to user
// code as a panic in the first place — Deregister returns it only to the
// internal caller whose deregistration emptied the set, and the executor
// observes suspension through Done (see durable.Executor).
var ErrSuspendRequested = errors.New("suspend requested")

// Tracker tracks the set of active activity ids and fires a one-shot
// suspend signal when the set becomes empty. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	active    map[string]Kind
	suspended bool
	suspendCh chan struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active:    make(map[string]Kind),
		suspendCh: make(chan struct{}),
	}
}

// Register marks id active. Idempotent: re-registering an already-active id
// is a no-op.
func (t *Tracker) Register(id string, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; ok {
		return
	}
	t.active[id] = kind
}

// Deregister removes id from the active set. If the set becomes empty and
// the suspend signal has not yet fired, it fires now and Deregister returns
// ErrSuspendRequested so the caller can unwind immediately. After the
// signal has fired, Deregister is a no-op returning nil: the return path is
// already committed.
func (t *Tracker) Deregister(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.active, id)

	if t.suspended {
		return nil
	}
	if len(t.active) > 0 {
		return nil
	}

	t.suspended = true
	close(t.suspendCh)
	return ErrSuspendRequested
}

// Count returns the number of currently-active activities.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Suspended reports whether the suspend signal has fired.
func (t *Tracker) Suspended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspended
}

// Done returns a channel closed exactly once, when the suspend signal
// fires. The executor race (durable.Executor.Run) selects on this
// alongside the handler's completion channel.
func (t *Tracker) Done() <-chan struct{} {
	return t.suspendCh
}
