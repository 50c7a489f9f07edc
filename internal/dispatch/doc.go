// Package dispatch implements the labeled serial/concurrent queue
// abstraction described in spec §4.2: sync/async/barrier dispatch,
// current-queue and nested-dispatch-stack detection, and named timers
// with Coalesce/Delay/Throttle rescheduling semantics.
//
// Go has no native goroutine-local storage, so "is this call already
// running inside queue Q" (needed for the self-deadlock policy, §4.2 and
// §5) is tracked by threading a context.Context through every dispatched
// function: Sync/Async/BarrierSync/BarrierAsync tag the context with the
// queue before invoking the caller's function, so a nested dispatch call
// made from inside that function can see which queues are already on the
// call stack. Callers that spawn a goroutine without passing the given
// context along lose that visibility, same as GCD loses track of a
// thread that escapes its dispatch block.
//
// Grounded on internal/engine/queue.go in the teacher (channel + mutex
// FIFO, buffered signal channel for context-aware draining) for the
// serial queue's worker loop, generalized from a single fixed consumer to
// the full sync/async/barrier surface the spec requires.
package dispatch
