package core

import (
	"context"
	"runtime"
)

// Task is the external holder of a suspendable computation's result. The
// scheduler only keeps a reference to the underlying Promise while it is
// enqueued; Task is what callers outside the scheduler hold to read the
// result (spec §3 "Ownership").
type Task[T any] struct {
	p *Promise[T]
}

func newTask[T any](p *Promise[T]) *Task[T] {
	t := &Task[T]{p: p}
	// spec §9 open question: "the interaction between a task whose holder
	// is destroyed while the task is still in a queue is underspecified".
	// We implement detach-and-self-destroy: once this Task[T] is
	// unreachable, mark the promise's holder as gone so its own final
	// suspension step frees resources itself instead of waiting for a
	// holder that will never arrive (Go has no destructors; AddCleanup is
	// the nearest equivalent to the holder's own destructor firing).
	runtime.AddCleanup(t, func(pp *Promise[T]) {
		pp.holderAlive.Store(false)
	}, p)
	return t
}

// Get performs a non-blocking read of the current result. It returns
// (zero, false) if the body has not produced a value yet - a normal,
// non-error state (spec §7).
func (t *Task[T]) Get() (T, bool) {
	return t.p.Get()
}

// Resume drives the body forward one step on the calling goroutine. This
// is the holder-pulled path used for the Yield/generator pattern: the
// body runs until its next suspension point and Resume returns.
func (t *Task[T]) Resume(ctx context.Context) {
	t.p.run(ctx)
}

// State reports the task's current lifecycle state.
func (t *Task[T]) State() PromiseState {
	return t.p.State()
}

// Wait blocks until the task reaches its final suspension (body returned
// and any awaited children are done), or ctx is cancelled first. It never
// drives the body itself - the body reaches Final only by being run to
// completion by a JobSystem worker or a direct Resume() caller.
func (t *Task[T]) Wait(ctx context.Context) error {
	select {
	case <-t.p.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the holder as gone immediately, without waiting for the
// garbage collector to notice Task[T] is unreachable. Safe to call
// multiple times.
func (t *Task[T]) Close() {
	t.p.holderAlive.Store(false)
}

// workItem exposes the underlying Promise so Task[T] satisfies awaitable,
// letting it be passed to Ctx[U].AwaitChildren alongside Jobs.
func (t *Task[T]) workItem() workItem { return t.p }
