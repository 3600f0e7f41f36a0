package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// promiseAllocSize mirrors jobAllocSize for Promise allocation accounting
// (spec §4.5: promise allocation is charged against the MemoryResource the
// same way Job allocation is).
const promiseAllocSize = 96

// PromiseState is the coroutine-like lifecycle state of a TaskPromise, per
// spec §4.3's state table.
type PromiseState int32

const (
	StateSuspended PromiseState = iota // initial, or parked after yield/await/migrate
	StateRunning
	StateFinal      // body returned; final awaiter always suspends
	StateDestroyed  // holder dropped and body finished; storage released
)

func (s PromiseState) String() string {
	switch s {
	case StateSuspended:
		return "Suspended"
	case StateRunning:
		return "Running"
	case StateFinal:
		return "Final"
	case StateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

type suspendKind int

const (
	suspendAwaitChildren suspendKind = iota
	suspendMigrate
	suspendYield
	suspendFinal
)

type suspendSignal struct {
	kind   suspendKind
	target int32
}

// resultCell is the small reference-counted-by-sharing cell holding an
// optional T, readable from outside the task without synchronising against
// the scheduler beyond the completion happens-before (spec §9 "Shared
// result slot").
type resultCell[T any] struct {
	mu    sync.RWMutex
	value T
	ok    bool
}

func (c *resultCell[T]) store(v T) {
	c.mu.Lock()
	c.value, c.ok = v, true
	c.mu.Unlock()
}

func (c *resultCell[T]) clear() {
	c.mu.Lock()
	var zero T
	c.value, c.ok = zero, false
	c.mu.Unlock()
}

func (c *resultCell[T]) load() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.ok
}

// promiseBase holds everything about a Promise that doesn't depend on its
// result type T, so JobSystem bookkeeping (parent/child accounting,
// scheduling) doesn't need to be generic.
type promiseBase struct {
	hdr         nodeHeader
	system      *JobSystem
	state       atomic.Int32
	typ, id     int
	holderAlive atomic.Bool
	mr          MemoryResource

	// ctx is the context supplied by whoever is currently driving run();
	// it is only valid for the duration of that run() call and is what
	// lets the body (via Ctx[T]) discover CurrentWorkerIndex.
	ctx context.Context

	resumeCh chan struct{}
	doneCh   chan suspendSignal

	// finished is closed exactly once, when finish() runs, letting an
	// external Task[T].Wait() block without polling State().
	finished chan struct{}
}

func (p *promiseBase) header() *nodeHeader { return &p.hdr }

// deallocate reports false: Tasks are shared between scheduler queues and
// whatever external holder has the result; the JobSystem recycler never
// owns their storage.
func (p *promiseBase) deallocate() bool { return false }

func (p *promiseBase) State() PromiseState { return PromiseState(p.state.Load()) }

// notifyChildFinished implements the resume condition for the
// await_children protocol: children was pre-incremented by N before any
// child was scheduled (the precomputed-N protocol), with a baseline of 1
// representing the promise's own in-flight body. A decrement landing
// exactly on 1 means every awaited child has finished and the baseline
// remains, so the body is resumed past its await point. A decrement
// landing on 0 means this was the final-suspension decrement (no await in
// flight) and the promise itself has completed.
func (p *promiseBase) notifyChildFinished() {
	v := p.hdr.children.Add(-1)
	switch v {
	case 0:
		p.finish()
	case 1:
		p.system.enqueue(p.hdr.owner)
	}
}

func (p *promiseBase) finish() {
	p.state.Store(int32(StateFinal))
	close(p.finished)
	if p.hdr.parent != nil {
		p.hdr.parent.notifyChildFinished()
	}
	if !p.holderAlive.Load() {
		p.destroy()
	}
}

// destroy implements the detach-and-self-destroy policy (spec §9 open
// question): if the external Task[T] handle has already been dropped by
// the time the body reaches final suspension, the promise releases its
// own memory-resource reservation instead of waiting to be swept by a
// holder that will never arrive.
func (p *promiseBase) destroy() {
	if p.state.Load() == int32(StateDestroyed) {
		return
	}
	p.state.Store(int32(StateDestroyed))
	if p.mr != nil {
		p.mr.Deallocate(promiseAllocSize)
	}
}

// Promise is the stateful record behind a coroutine-like computation
// producing a T. The body runs on a dedicated goroutine, rendezvousing
// with whatever goroutine drives it (a JobSystem worker, or a Task[T]
// holder pulling a yielded value) over resumeCh/doneCh - Go's answer to a
// host-native suspendable function driven step-by-step by an external
// driver.
type Promise[T any] struct {
	promiseBase
	result *resultCell[T]
}

// TaskFunc is a coroutine-like body: it receives a Ctx[T] exposing the
// awaiters (AwaitChildren, MigrateTo, Yield) and returns the task's final
// value.
type TaskFunc[T any] func(ctx *Ctx[T]) T

func newPromise[T any](system *JobSystem, mr MemoryResource, fn TaskFunc[T], typ, id int) *Promise[T] {
	p := &Promise[T]{result: &resultCell[T]{}}
	p.hdr = newNodeHeader(p)
	p.system = system
	p.mr = mr
	p.typ, p.id = typ, id
	p.resumeCh = make(chan struct{})
	p.doneCh = make(chan suspendSignal)
	p.finished = make(chan struct{})
	p.holderAlive.Store(true)
	p.state.Store(int32(StateSuspended))
	// The body counts as one outstanding child of its own counter while
	// it runs (invariant I2), same baseline convention as Job.run().
	p.hdr.children.Store(1)

	go func() {
		ctx := &Ctx[T]{p: p}
		<-p.resumeCh
		// The body runs on this goroutine, outside runItem's recover, so a
		// panic is reported here the same way before it is re-raised.
		defer func() {
			if r := recover(); r != nil {
				idx := CurrentWorkerIndex(p.ctx)
				system.cfg.Logger.Error("task panicked", F("worker", idx), F("panic", r))
				system.cfg.PanicHandler.HandlePanic(p.ctx, idx, r, debug.Stack())
				system.cfg.Metrics.RecordPanic(r)
				panic(r)
			}
		}()
		p.state.Store(int32(StateRunning))
		v := fn(ctx)
		p.result.store(v)
		p.doneCh <- suspendSignal{kind: suspendFinal}
	}()

	return p
}

// run drives the body forward one suspension step. It may be called by a
// JobSystem worker (initial schedule, post-migrate, post-await resumption)
// or directly by Task[T].Resume() for the holder-pulled yield/generator
// pattern; both are just "whoever currently owns the right to resume this
// promise".
func (p *Promise[T]) run(ctx context.Context) {
	p.result.clear()
	p.ctx = ctx
	p.resumeCh <- struct{}{}
	sig := <-p.doneCh
	switch sig.kind {
	case suspendAwaitChildren:
		// Children already scheduled with parent = p inside AwaitChildren;
		// p will be re-enqueued automatically once the last one finishes.
	case suspendMigrate:
		p.hdr.threadIndex.Store(sig.target)
		p.system.enqueue(p)
	case suspendYield:
		// Holder-driven: nothing is rescheduled automatically. The value
		// is already in result; Task[T].Resume() decides when to pull more.
	case suspendFinal:
		if p.hdr.children.Add(-1) == 0 {
			p.finish()
		}
	}
}

// Get performs a non-blocking read of the current result. It returns
// (zero, false) if the body has not yet produced a value - a normal
// non-error state, never an error.
func (p *Promise[T]) Get() (T, bool) {
	return p.result.load()
}
