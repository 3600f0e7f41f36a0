// Package fiberjob provides a fiber/job scheduling engine with structured
// parent-child concurrency, inspired by the Vienna Game Job System (VGJS).
//
// This library implements a worker-pool architecture where developers post
// run-to-completion Jobs and suspendable Tasks to a JobSystem rather than
// managing goroutines directly. Jobs and Tasks scheduled as children of the
// currently running node are tracked by an atomic children counter on the
// parent; the parent only completes once every child it spawned has
// completed, recursively (spec's invariants I1-I5).
//
// # Quick Start
//
// Initialize the global job system at application startup:
//
//	fiberjob.InitGlobalJobSystem(4) // 4 workers
//	defer fiberjob.ShutdownGlobalJobSystem()
//
// Schedule a Job from anywhere:
//
//	fiberjob.Schedule(context.Background(), func(ctx context.Context) {
//		// runs to completion on some worker
//	})
//
// # Key Concepts
//
// Job: a run-to-completion callable. Once its body returns and every child
// it spawned has finished, it notifies its parent and is recycled.
//
// Task[T] / Promise[T]: a suspendable, coroutine-like computation producing
// a T. A Task body can await a set of children, migrate to a specific
// worker, or yield intermediate values, suspending at each point and
// resuming later from exactly where it left off.
//
// JobSystem: the engine owning the worker goroutines, per-worker inboxes,
// the central queue, and the Job recycler.
//
// # Thread Safety
//
// Jobs and Tasks are only ever run by one worker at a time; the
// parent-child children counter is the single piece of shared state two
// different workers can touch concurrently, and it is always manipulated
// through atomic operations.
//
// # Example
//
//	import (
//		"context"
//		fiberjob "github.com/vgjs/fiberjob"
//		"github.com/vgjs/fiberjob/core"
//	)
//
//	func main() {
//		fiberjob.InitGlobalJobSystem(4)
//		defer fiberjob.ShutdownGlobalJobSystem()
//
//		js := fiberjob.Default()
//		ctx := context.Background()
//
//		js.Schedule(ctx, func(ctx context.Context) {
//			println("child job 1")
//		})
//		js.Schedule(ctx, func(ctx context.Context) {
//			println("child job 2")
//		})
//	}
package fiberjob

import (
	"context"

	"github.com/vgjs/fiberjob/core"
)

// Re-exported types so callers importing only the root package get the
// full public surface without a second import of core.
type (
	JobSystem       = core.JobSystem
	JobSystemConfig = core.JobSystemConfig
	JobSystemStats  = core.JobSystemStats
	Job             = core.Job
	JobBody         = core.JobBody
	Task[T any]     = core.Task[T]
	Ctx[T any]      = core.Ctx[T]
	TaskFunc[T any] = core.TaskFunc[T]
	PromiseState    = core.PromiseState
	MemoryResource  = core.MemoryResource
	Logger          = core.Logger
	Metrics         = core.Metrics
	PanicHandler    = core.PanicHandler
	ScheduleOption  = core.ScheduleOption
)

// Re-exported functions/constants for the same reason.
var (
	NewJobSystem           = core.NewJobSystem
	DefaultJobSystemConfig = core.DefaultJobSystemConfig
	CurrentJob             = core.CurrentJob
	CurrentWorkerIndex     = core.CurrentWorkerIndex
	Child                  = core.Child
	WithThreadIndex        = core.WithThreadIndex
	WithTaskType           = core.WithTaskType
	WithTaskID             = core.WithTaskID
)

// SpawnTask creates and schedules a Task[T] on js, running fn. It is a thin
// generic forward to core.SpawnTask so callers importing only this package
// never need a second import of core for the common case.
func SpawnTask[T any](js *JobSystem, ctx context.Context, fn TaskFunc[T], opts ...ScheduleOption) *Task[T] {
	return core.SpawnTask(js, ctx, fn, opts...)
}

// SpawnGenerator creates a Task[T] running fn without scheduling it on any
// worker; see core.SpawnGenerator for the holder-pulled yield pattern this
// is meant for.
func SpawnGenerator[T any](js *JobSystem, ctx context.Context, fn TaskFunc[T], opts ...ScheduleOption) *Task[T] {
	return core.SpawnGenerator(js, ctx, fn, opts...)
}
