package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Func is a unit of dispatched work. It receives a context tagged with
// every queue the current call stack has entered through, which is what
// lets IsCurrentQueue/IsInCurrentQueueStack work.
type Func func(ctx context.Context)

// Policy controls what happens when Sync is called on a serial queue
// from a function already running on that same queue — a call that
// would otherwise deadlock waiting for its own worker goroutine to free up.
type Policy int

const (
	// PolicyExecute runs the block inline on the caller's goroutine
	// instead of round-tripping through the worker. This preserves
	// call-order but bypasses the queue's mutual-exclusion guarantee for
	// the duration of the inline call. Default, matching spec §4.2 and
	// §5's re-entrancy note.
	PolicyExecute Policy = iota
	// PolicySkip drops the block silently.
	PolicySkip
	// PolicyLogAndSkip logs a warning, then drops the block.
	PolicyLogAndSkip
	// PolicyAssert panics; used in tests that must prove no code path
	// re-enters a given queue.
	PolicyAssert
	// PolicyEnqueueAnyway enqueues as if there were no self-deadlock risk.
	// Exists for parity with the spec's enumeration; using it on a
	// genuinely self-referential call deadlocks the queue, by design.
	PolicyEnqueueAnyway
)

type queueKeyType struct{}

var queueKey = queueKeyType{}

func queueStack(ctx context.Context) []*Queue {
	stack, _ := ctx.Value(queueKey).([]*Queue)
	return stack
}

func withQueue(ctx context.Context, q *Queue) context.Context {
	stack := queueStack(ctx)
	next := make([]*Queue, len(stack)+1)
	copy(next, stack)
	next[len(stack)] = q
	return context.WithValue(ctx, queueKey, next)
}

// Kind distinguishes a serial queue (one worker, strict FIFO) from a
// concurrent queue (many workers, barrier for exclusive access).
type Kind int

const (
	Serial Kind = iota
	Concurrent
)

type task struct {
	ctx  context.Context
	fn   Func
	done chan struct{}
}

// Queue is one labeled dispatch queue. The zero value is not usable; use New.
type Queue struct {
	Label  string
	Kind   Kind
	Policy Policy
	logger *slog.Logger

	// Serial queue state.
	work    chan task
	closeCh chan struct{}
	closeWg sync.WaitGroup

	// Concurrent queue state: RWMutex doubles as the barrier primitive —
	// regular dispatch takes RLock (many can run together), barrier
	// dispatch takes Lock (exclusive, waits for all in-flight work).
	concurrentMu sync.RWMutex

	timerMu sync.Mutex
	timers  map[string]*timerEntry
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithPolicy sets the self-deadlock policy for a serial queue. Ignored
// for concurrent queues, which never self-deadlock on Sync.
func WithPolicy(p Policy) Option {
	return func(q *Queue) { q.Policy = p }
}

// WithLogger sets the logger used for PolicyLogAndSkip and timer errors.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// New creates a labeled queue of the given kind and starts its worker (for
// a serial queue; a concurrent queue has no dedicated worker goroutine).
func New(label string, kind Kind, opts ...Option) *Queue {
	q := &Queue{
		Label:  label,
		Kind:   kind,
		logger: slog.Default(),
		timers: make(map[string]*timerEntry),
	}
	for _, opt := range opts {
		opt(q)
	}
	if kind == Serial {
		q.work = make(chan task, 64)
		q.closeCh = make(chan struct{})
		q.closeWg.Add(1)
		go q.runSerial()
	}
	return q
}

func (q *Queue) runSerial() {
	defer q.closeWg.Done()
	for {
		select {
		case t := <-q.work:
			t.fn(t.ctx)
			if t.done != nil {
				close(t.done)
			}
		case <-q.closeCh:
			// Drain whatever is already queued before exiting, matching
			// closeDatabase's "flush rather than cancel" contract.
			// Close does not cancel pending timers; CancelAllTimers
			// does that.
			for {
				select {
				case t := <-q.work:
					t.fn(t.ctx)
					if t.done != nil {
						close(t.done)
					}
				default:
					return
				}
			}
		}
	}
}

// Close stops the serial worker after draining already-enqueued work. A
// no-op for concurrent queues.
func (q *Queue) Close() {
	if q.Kind != Serial {
		return
	}
	close(q.closeCh)
	q.closeWg.Wait()
}

// IsCurrentQueue reports whether ctx's innermost dispatched-through queue
// is q — i.e. the calling code is directly executing a function this
// queue handed it.
func (q *Queue) IsCurrentQueue(ctx context.Context) bool {
	stack := queueStack(ctx)
	return len(stack) > 0 && stack[len(stack)-1] == q
}

// IsInCurrentQueueStack reports whether q appears anywhere in ctx's chain
// of nested dispatch_sync/dispatch_async calls, not just at the top.
func (q *Queue) IsInCurrentQueueStack(ctx context.Context) bool {
	for _, s := range queueStack(ctx) {
		if s == q {
			return true
		}
	}
	return false
}

// Sync runs fn and blocks until it completes. On a serial queue, fn runs
// exclusively with respect to every other Sync/Async/Barrier* call. If
// ctx shows the caller is already executing on this queue, the self-
// deadlock Policy decides what happens instead of blocking forever.
func (q *Queue) Sync(ctx context.Context, fn Func) {
	if q.Kind == Concurrent {
		q.concurrentMu.RLock()
		defer q.concurrentMu.RUnlock()
		fn(withQueue(ctx, q))
		return
	}

	if q.IsCurrentQueue(ctx) {
		q.handleSelfDeadlock(ctx, fn)
		return
	}

	done := make(chan struct{})
	q.work <- task{ctx: withQueue(ctx, q), fn: fn, done: done}
	<-done
}

func (q *Queue) handleSelfDeadlock(ctx context.Context, fn Func) {
	switch q.Policy {
	case PolicySkip:
		return
	case PolicyLogAndSkip:
		q.logger.Warn("dispatch: dropped self-deadlocking sync call", "queue", q.Label)
		return
	case PolicyAssert:
		panic(fmt.Sprintf("dispatch: sync-on-self deadlock on queue %q", q.Label))
	case PolicyEnqueueAnyway:
		done := make(chan struct{})
		q.work <- task{ctx: ctx, fn: fn, done: done}
		<-done
	default: // PolicyExecute
		fn(ctx)
	}
}

// Async schedules fn to run without blocking the caller. On a serial
// queue it preserves the caller's enqueue order relative to other Async
// and Sync calls made from the same goroutine.
func (q *Queue) Async(ctx context.Context, fn Func) {
	if q.Kind == Concurrent {
		go func() {
			q.concurrentMu.RLock()
			defer q.concurrentMu.RUnlock()
			fn(withQueue(ctx, q))
		}()
		return
	}
	q.work <- task{ctx: withQueue(ctx, q), fn: fn}
}

// BarrierSync runs fn with exclusive access relative to every other
// queued or in-flight Sync/Async/Barrier* call, and blocks until it
// completes. On a serial queue this is equivalent to Sync, since a
// serial queue is already exclusive; the distinct method exists so
// callers can express intent and so a concurrent queue gets real
// barrier semantics.
func (q *Queue) BarrierSync(ctx context.Context, fn Func) {
	if q.Kind == Concurrent {
		q.concurrentMu.Lock()
		defer q.concurrentMu.Unlock()
		fn(withQueue(ctx, q))
		return
	}
	q.Sync(ctx, fn)
}

// BarrierAsync schedules fn for exclusive access without blocking the caller.
func (q *Queue) BarrierAsync(ctx context.Context, fn Func) {
	if q.Kind == Concurrent {
		go func() {
			q.concurrentMu.Lock()
			defer q.concurrentMu.Unlock()
			fn(withQueue(ctx, q))
		}()
		return
	}
	q.Async(ctx, fn)
}
