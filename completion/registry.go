// Package completion implements CompletionRegistry: a
// per-operation one-shot completion primitive coupling the checkpoint
// pipeline (the only writer) to waiters issued by user code (the readers).
//
// Grounded on orchestrate/hub.hub's responseChannels map keyed by message
// id: where the hub correlates one in-flight request to one reply channel,
// a Registry correlates one operation id to a completion slot that may
// have many waiters, each invoked on completion rather than receiving off
// a channel once.
package completion

import "sync"

// Result is whatever terminal value a completed operation produces. The
// durable package supplies its own Operation type here; Registry is
// agnostic to its shape.
type Result any

// slot is a per-operation one-shot completion primitive. complete and
// attach are serialized by mu to eliminate the race where complete fires
// between a waiter's "is it done?" check and its attach.
type slot struct {
	mu      sync.Mutex
	done    bool
	result  Result
	waiters []func(Result)
}

func newSlot() *slot {
	return &slot{}
}

// attach registers callback to run when the slot completes. If the slot is
// already complete, callback runs synchronously and immediately.
func (s *slot) attach(callback func(Result)) {
	s.mu.Lock()
	if s.done {
		result := s.result
		s.mu.Unlock()
		callback(result)
		return
	}
	s.waiters = append(s.waiters, callback)
	s.mu.Unlock()
}

// complete marks the slot done with result and flushes the waiter queue.
// A slot completes at most once; subsequent calls are no-ops.
func (s *slot) complete(result Result) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.result = result
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w(result)
	}
}

// Registry holds one completion slot per operation id, created lazily on
// first access by either Attach or Complete (whichever arrives first).
type Registry struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*slot)}
}

func (r *Registry) slotFor(id string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		s = newSlot()
		r.slots[id] = s
	}
	return s
}

// Attach registers callback to run when the operation identified by id
// completes. If it has already completed, callback runs synchronously.
func (r *Registry) Attach(id string, callback func(Result)) {
	r.slotFor(id).attach(callback)
}

// Complete marks the operation identified by id complete with result and
// wakes every attached waiter. This must be called only from the path that
// merges a durable checkpoint response into the OperationStore: completion
// must be checkpoint-durable before any waiter observes it, never signaled
// from the in-process worker that ran the operation body.
func (r *Registry) Complete(id string, result Result) {
	r.slotFor(id).complete(result)
}

// Forget releases the slot for id. Called once every waiter has observed
// completion and the operation's record will not be referenced again: a
// completion primitive is owned by the operation record from creation
// until every waiter has observed completion.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, id)
}
