package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/config"
)

// pendingItem pairs a submitted OperationUpdate with the channel its
// caller awaits for the batch outcome.
type pendingItem struct {
	update OperationUpdate
	done   chan error
}

// Batcher implements the checkpoint batching layer: it consolidates
// OperationUpdates into backend calls bounded by item count and estimated
// byte size, and serializes calls so there is at most one in flight.
//
// Grounded on orchestrate/hub.hub's messageLoop/processAgentMessages
// background-goroutine idiom: a single internal goroutine owns the
// "is there work, do the call" decision, which gives "at most one call in
// flight, additional flushes chain sequentially" for free — no separate
// in-flight flag or queue is needed, the pump simply does not pick up the
// next batch until the current client.Checkpoint call returns.
type Batcher struct {
	cfg          config.BatcherConfig
	client       Client
	store        *Store
	executionArn string

	onTerminal func(op *Operation) // notifies completion.Registry

	mu           sync.Mutex
	token        string
	pending      []pendingItem
	pendingBytes int
	timer        *time.Timer
	nextDeadline time.Time

	trigger chan struct{}
	done    chan struct{}
	closed  bool
}

// NewBatcher constructs a Batcher for one execution. onTerminal is called,
// outside any Batcher lock, for every newly-terminal operation merged from
// a backend response — durable.Executor wires this to
// completion.Registry.Complete.
func NewBatcher(client Client, store *Store, executionArn, initialToken string, cfg config.BatcherConfig, onTerminal func(op *Operation)) *Batcher {
	b := &Batcher{
		cfg:          cfg,
		client:       client,
		store:        store,
		executionArn: executionArn,
		token:        initialToken,
		onTerminal:   onTerminal,
		trigger:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go b.pump()
	return b
}

// Token returns the most recently accepted checkpoint token.
func (b *Batcher) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// Submit enqueues update into the open batch and returns a channel
// delivering the outcome (nil on success) once the batch containing it has
// been accepted or failed. flushDelay shrinks the batch's flush deadline to
// min(current, now+flushDelay).
func (b *Batcher) Submit(update OperationUpdate, flushDelay time.Duration) <-chan error {
	done := make(chan error, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		done <- fmt.Errorf("%w: batcher closed", ErrTransport)
		return done
	}

	size := 0
	if !update.isEmpty() {
		size = estimateSize(update)
	}
	if !update.isEmpty() && len(b.pending) > 0 &&
		(len(b.pending)+1 > b.cfg.MaxItems || b.pendingBytes+size > b.cfg.MaxBytes) {
		// This item would overflow the open batch: flush what's there now
		// and start a fresh one submit policy.
		b.requestFlushLocked()
	}

	b.pending = append(b.pending, pendingItem{update: update, done: done})
	b.pendingBytes += size
	b.armDeadlineLocked(flushDelay)
	b.mu.Unlock()

	return done
}

// Poll submits the null update used purely to advance the backend's view,
// without affecting batch size accounting.
func (b *Batcher) Poll() <-chan error {
	return b.Submit(PollUpdate(), 0)
}

// Shutdown flushes any open batch and waits for the pump goroutine to
// drain any pending items before returning.
func (b *Batcher) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.mu.Unlock()

	b.requestFlush()
	close(b.done)

	// Drain synchronously: the pump may still be mid-call; give it one
	// final chance to flush anything left, then return.
	b.mu.Lock()
	remaining := len(b.pending)
	b.mu.Unlock()
	if remaining > 0 {
		b.flushOnce(ctx)
	}
	return nil
}

func (b *Batcher) armDeadlineLocked(flushDelay time.Duration) {
	if flushDelay <= 0 {
		b.requestFlushLocked()
		return
	}

	candidate := time.Now().Add(flushDelay)
	if b.timer != nil && b.nextDeadline.After(time.Now()) && !candidate.Before(b.nextDeadline) {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.nextDeadline = candidate
	b.timer = time.AfterFunc(flushDelay, b.requestFlush)
}

func (b *Batcher) requestFlushLocked() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

func (b *Batcher) requestFlush() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

func (b *Batcher) pump() {
	for {
		select {
		case <-b.trigger:
			b.flushOnce(context.Background())
		case <-b.done:
			return
		}
	}
}

// flushOnce performs at most one backend call for whatever is currently
// pending. Runs on the single pump goroutine (or, at shutdown, the caller
// synchronously), which is what guarantees at most one call in flight.
func (b *Batcher) flushOnce(ctx context.Context) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = nil
	b.pendingBytes = 0
	token := b.token
	b.mu.Unlock()

	updates := make([]OperationUpdate, len(batch))
	for i, item := range batch {
		updates[i] = item.update
	}

	result, err := b.client.Checkpoint(ctx, b.executionArn, token, updates)
	if err != nil {
		for _, item := range batch {
			item.done <- err
		}
		return
	}

	b.mu.Lock()
	b.token = result.NewToken
	b.mu.Unlock()

	b.store.MergeAll(result.NewOperations)
	if b.onTerminal != nil {
		for _, op := range result.NewOperations {
			if op.Status.Terminal() {
				b.onTerminal(op)
			}
		}
	}

	for _, item := range batch {
		item.done <- nil
	}
}

// estimateSize approximates the encoded byte size of update for batch
// accounting purposes; an exact encoding isn't required, only a stable
// over-estimate that keeps batches under the backend's real limit.
func estimateSize(update OperationUpdate) int {
	b, err := json.Marshal(update)
	if err != nil {
		return 0
	}
	return len(b)
}
