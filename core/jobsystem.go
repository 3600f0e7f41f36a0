package core

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// noopSleepThreshold is the number of consecutive empty poll iterations a
// worker tolerates before backing off with a short sleep (spec §4.4 step
// 3d, "suggested 20").
const noopSleepThreshold = 20

const idleSleep = time.Microsecond

type ctxKey int

const (
	currentJobKey ctxKey = iota
	workerIndexKey
)

// CurrentJob retrieves the node currently being run on this worker, or nil
// if ctx did not come from inside a running Job/Task body.
func CurrentJob(ctx context.Context) workItem {
	v, _ := ctx.Value(currentJobKey).(workItem)
	return v
}

// CurrentWorkerIndex retrieves the worker index driving ctx's body, or -1
// if called off-worker.
func CurrentWorkerIndex(ctx context.Context) int32 {
	v, ok := ctx.Value(workerIndexKey).(int32)
	if !ok {
		return anyWorker
	}
	return v
}

// JobSystemConfig holds the ambient handlers attached to a JobSystem. All
// fields are optional; DefaultJobSystemConfig fills in defaults (a stdlib
// logger, a stdout panic handler, no-op metrics, an unbounded memory
// resource) the way the teacher's DefaultTaskSchedulerConfig does.
type JobSystemConfig struct {
	Logger       Logger
	PanicHandler PanicHandler
	Metrics      Metrics
	MemoryResource MemoryResource
}

// DefaultJobSystemConfig returns a config with default handlers.
func DefaultJobSystemConfig() *JobSystemConfig {
	return &JobSystemConfig{
		Logger:         NewDefaultLogger(),
		PanicHandler:   &DefaultPanicHandler{},
		Metrics:        &NilMetrics{},
		MemoryResource: NewDefaultMemoryResource(),
	}
}

func (c *JobSystemConfig) withDefaults() *JobSystemConfig {
	if c == nil {
		return DefaultJobSystemConfig()
	}
	out := *c
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.MemoryResource == nil {
		out.MemoryResource = NewDefaultMemoryResource()
	}
	return &out
}

// WorkerStats is a point-in-time snapshot of one worker's dispatch loop.
type WorkerStats struct {
	Index      int
	Active     bool
	InboxDepth int
}

// JobSystemStats is a point-in-time monitoring snapshot; no invariant
// reads it and it never participates in the children-counter protocol.
type JobSystemStats struct {
	WorkerCount   int
	ActiveWorkers int
	CentralDepth  int
	RecyclerDepth int
	Workers       []WorkerStats
}

// scheduleOptions configures one Schedule/SpawnTask call.
type scheduleOptions struct {
	threadIndex int
	typ, id     int
}

// ScheduleOption customises a single Schedule or SpawnTask call.
type ScheduleOption func(*scheduleOptions)

// WithThreadIndex requests a specific worker (>=0), overriding the default
// "any worker" placement.
func WithThreadIndex(idx int) ScheduleOption {
	return func(o *scheduleOptions) { o.threadIndex = idx }
}

// WithTaskType attaches a caller-defined type tag, carried for
// diagnostics/scheduling policy (spec §4.3 "type, id").
func WithTaskType(typ int) ScheduleOption {
	return func(o *scheduleOptions) { o.typ = typ }
}

// WithTaskID attaches a caller-defined id, carried for diagnostics.
func WithTaskID(id int) ScheduleOption {
	return func(o *scheduleOptions) { o.id = id }
}

func applyOptions(opts []ScheduleOption) scheduleOptions {
	o := scheduleOptions{threadIndex: int(anyWorker)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// JobSystem owns the worker threads, the per-worker inboxes, the central
// queue, the Job recycler, and the process-wide (ambient-config) handlers.
// It is the single collaborator every Job/Task body talks to, reached
// explicitly through ctx rather than through global mutable state (spec
// §9's re-architecture note).
type JobSystem struct {
	cfg *JobSystemConfig

	workerCount int
	startIndex  int

	inboxes  []*LockFreeQueue
	central  *LockFreeQueue
	recycler *LockFreeQueue

	terminating   atomic.Bool
	activeWorkers atomic.Int32
	workerActive  []atomic.Bool
	barrier       atomic.Int32
	wg            sync.WaitGroup

	started atomic.Bool
}

// NewJobSystem constructs a JobSystem. workerCount == 0 means hardware
// concurrency. startIndex is 0 or 1; when 1 the caller's own goroutine is
// expected to later call RunWorker(0) itself instead of a spawned one
// (spec §4.4 "the caller's thread plays the role of worker 0").
func NewJobSystem(workerCount, startIndex int, cfg *JobSystemConfig) *JobSystem {
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	js := &JobSystem{
		cfg:         cfg.withDefaults(),
		workerCount: workerCount,
		startIndex:  startIndex,
		central:     NewLockFreeQueue(ModeLIFO),
		recycler:    NewLockFreeQueue(ModeLIFO),
	}
	js.inboxes = make([]*LockFreeQueue, workerCount)
	for i := range js.inboxes {
		js.inboxes[i] = NewLockFreeQueue(ModeFIFO)
	}
	js.workerActive = make([]atomic.Bool, workerCount)

	js.wg.Add(workerCount - startIndex)
	for i := startIndex; i < workerCount; i++ {
		go js.runWorker(i, true)
	}
	js.started.Store(true)
	return js
}

// RunWorker is the dispatch loop for worker index idx (spec §4.4). It is
// exported so a caller constructing a JobSystem with startIndex=1 can
// drive worker 0 on its own goroutine/thread; that call does not count
// against WaitForTermination's wait group, since the caller - not the
// JobSystem - owns that goroutine's lifetime.
func (js *JobSystem) RunWorker(idx int) {
	js.runWorker(idx, false)
}

func (js *JobSystem) runWorker(idx int, counted bool) {
	if counted {
		defer js.wg.Done()
	}

	js.activeWorkers.Add(1)
	js.workerActive[idx].Store(true)
	defer js.workerActive[idx].Store(false)
	defer js.activeWorkers.Add(-1)

	js.barrier.Add(1)
	for js.barrier.Load() < int32(js.workerCount) {
		time.Sleep(idleSleep)
	}

	js.cfg.Logger.Info("worker started", F("worker", idx))
	defer js.cfg.Logger.Info("worker stopped", F("worker", idx))

	baseCtx := context.WithValue(context.Background(), workerIndexKey, int32(idx))
	idle := 0
	for !js.terminating.Load() {
		item := js.inboxes[idx].Pop()
		if item == nil {
			item = js.central.Pop()
		}
		if item == nil {
			idle++
			if idle >= noopSleepThreshold && idx != 0 {
				time.Sleep(idleSleep)
			}
			continue
		}
		idle = 0
		js.runItem(item, context.WithValue(baseCtx, currentJobKey, item))
	}
}

func (js *JobSystem) runItem(item workItem, ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			js.cfg.Logger.Error("job panicked", F("worker", CurrentWorkerIndex(ctx)), F("panic", r))
			js.cfg.PanicHandler.HandlePanic(ctx, CurrentWorkerIndex(ctx), r, stack)
			js.cfg.Metrics.RecordPanic(r)
			panic(r)
		}
	}()
	item.run(ctx)
}

// enqueue places item on its requested worker's inbox if thread_index is
// in range, otherwise on the central queue (spec §4.4 "schedule(node)").
func (js *JobSystem) enqueue(item workItem) {
	idx := item.header().threadIndex.Load()
	if idx >= 0 && int(idx) < js.workerCount {
		js.inboxes[idx].Push(item)
		js.cfg.Metrics.RecordQueueDepth(fmt.Sprintf("inbox-%d", idx), js.inboxes[idx].Len())
	} else {
		js.central.Push(item)
		js.cfg.Metrics.RecordQueueDepth("central", js.central.Len())
	}
	js.cfg.Metrics.RecordScheduled()
}

// logJobExecution records a completed Job's JobExecutionRecord through the
// configured Logger. It is debug-level: routine job completions are not
// worth an Info line on a busy pool, but they are available when a Logger
// is configured to surface them.
func (js *JobSystem) logJobExecution(rec JobExecutionRecord) {
	js.cfg.Logger.Debug("job completed",
		F("worker", rec.WorkerIdx),
		F("duration", rec.Duration),
		F("panicked", rec.Panicked),
	)
}

func (js *JobSystem) acquireJob(body JobBody) *Job {
	if recycled := js.recycler.Pop(); recycled != nil {
		j := recycled.(*Job)
		j.reset(body)
		return j
	}
	if !js.cfg.MemoryResource.Allocate(jobAllocSize) {
		// spec §7: allocation failure is fatal, the scheduler has no
		// recovery path that wouldn't violate I1.
		panic("core: MemoryResource exhausted allocating a Job")
	}
	return newJob(js, body)
}

func (js *JobSystem) recycle(job *Job) {
	job.reset(nil)
	js.recycler.Push(job)
}

// NewJob acquires a Job wrapping body without enqueuing it. Pair it with
// ScheduleJob whenever a Job needs a Continuation attached: as the
// continuation target itself (attaching it to a predecessor via
// (*Job).Continuation schedules it automatically once the predecessor's
// subtree finishes - calling Schedule on it directly would instead run it
// concurrently with that predecessor), or as the predecessor (Continuation
// must be attached before the Job ever reaches a queue; see ScheduleJob).
func (js *JobSystem) NewJob(body JobBody) *Job {
	return js.acquireJob(body)
}

// Schedule acquires a new Job wrapping body and enqueues it. If ctx carries
// a CurrentJob, the new Job's parent is that node and its children counter
// is pre-incremented before the Job is ever handed to a queue (invariant
// I1). Equivalent to NewJob followed by ScheduleJob.
func (js *JobSystem) Schedule(ctx context.Context, body JobBody, opts ...ScheduleOption) *Job {
	return js.ScheduleJob(ctx, js.acquireJob(body), opts...)
}

// ScheduleJob enqueues a Job built with NewJob. Building the Job with
// NewJob and attaching a Continuation before calling ScheduleJob is the
// only race-free way to give a predecessor a continuation: once ScheduleJob
// returns, a worker may already be running (and finishing) the Job, so any
// Continuation call afterward races onFinished's unsynchronized read of
// j.continuation and can be silently dropped.
func (js *JobSystem) ScheduleJob(ctx context.Context, job *Job, opts ...ScheduleOption) *Job {
	o := applyOptions(opts)
	job.hdr.threadIndex.Store(int32(o.threadIndex))
	if parent := CurrentJob(ctx); parent != nil {
		job.hdr.parent = parent
		parent.header().children.Add(1)
	}
	js.enqueue(job)
	return job
}

// ScheduleAll schedules a batch of Job bodies as siblings under the
// current job, returning the created Jobs in order.
func (js *JobSystem) ScheduleAll(ctx context.Context, bodies []JobBody, opts ...ScheduleOption) []*Job {
	jobs := make([]*Job, len(bodies))
	for i, b := range bodies {
		jobs[i] = js.Schedule(ctx, b, opts...)
	}
	return jobs
}

// SpawnTask creates and schedules a Promise[T] running fn, returning the
// external Task[T] holder. Like Schedule, it pre-increments the current
// job's children counter (if any) before the promise reaches a queue.
func SpawnTask[T any](js *JobSystem, ctx context.Context, fn TaskFunc[T], opts ...ScheduleOption) *Task[T] {
	o := applyOptions(opts)
	if !js.cfg.MemoryResource.Allocate(promiseAllocSize) {
		// spec §7: allocation failure is fatal, same as a Job.
		panic("core: MemoryResource exhausted allocating a Promise")
	}
	p := newPromise(js, js.cfg.MemoryResource, fn, o.typ, o.id)
	p.hdr.threadIndex.Store(int32(o.threadIndex))
	if parent := CurrentJob(ctx); parent != nil {
		p.hdr.parent = parent
		parent.header().children.Add(1)
	}
	js.enqueue(p)
	return newTask(p)
}

// SpawnGenerator creates a Promise[T] running fn without ever enqueuing it
// on a worker queue. It is the entry point for the holder-pulled
// yield/generator pattern (spec §9 "Coroutine-like tasks"): every step,
// including the very first, is driven by an explicit Task[T].Resume() call
// from the caller, never by a JobSystem worker, so there is exactly one
// driver for the promise's whole lifetime.
func SpawnGenerator[T any](js *JobSystem, ctx context.Context, fn TaskFunc[T], opts ...ScheduleOption) *Task[T] {
	o := applyOptions(opts)
	if !js.cfg.MemoryResource.Allocate(promiseAllocSize) {
		panic("core: MemoryResource exhausted allocating a Promise")
	}
	p := newPromise(js, js.cfg.MemoryResource, fn, o.typ, o.id)
	p.hdr.threadIndex.Store(int32(o.threadIndex))
	if parent := CurrentJob(ctx); parent != nil {
		p.hdr.parent = parent
		parent.header().children.Add(1)
	}
	return newTask(p)
}

// Stats returns a point-in-time monitoring snapshot.
func (js *JobSystem) Stats() JobSystemStats {
	workers := make([]WorkerStats, len(js.inboxes))
	for i, q := range js.inboxes {
		workers[i] = WorkerStats{
			Index:      i,
			Active:     js.workerActive[i].Load(),
			InboxDepth: q.Len(),
		}
	}
	return JobSystemStats{
		WorkerCount:   js.workerCount,
		ActiveWorkers: int(js.activeWorkers.Load()),
		CentralDepth:  js.central.Len(),
		RecyclerDepth: js.recycler.Len(),
		Workers:       workers,
	}
}

// Terminate sets the atomic flag workers observe between nodes.
func (js *JobSystem) Terminate() {
	js.terminating.Store(true)
}

// WaitForTermination blocks until every worker goroutine has exited, then
// drains and releases every outstanding, non-recyclable node still sitting
// in a queue (spec §4.4 step 4 "the last worker out drains and clears all
// queues" - done here, once, after every worker is confirmed gone, which
// is equivalent and simpler than racing to be "the last one out").
func (js *JobSystem) WaitForTermination() {
	js.wg.Wait()

	releaseJob := func(item workItem) {
		job := item.(*Job)
		js.cfg.MemoryResource.Deallocate(jobAllocSize)
		_ = job
	}
	for i := range js.inboxes {
		js.inboxes[i].Clear(releaseJob)
	}
	js.central.Clear(releaseJob)
	js.recycler.Clear(func(item workItem) {
		js.cfg.MemoryResource.Deallocate(jobAllocSize)
	})
}
