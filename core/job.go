package core

import (
	"context"
	"time"
)

// jobAllocSize is the accounting unit charged against a MemoryResource for
// one Job's lifetime, standing in for the spec's sizeof(job)+tail-pointer
// arithmetic now that Go's GC (not the memory resource) owns the bytes.
const jobAllocSize = 64

// JobBody is the callable a Job runs to completion. It receives the
// scheduling context so it can discover CurrentJob/CurrentWorkerIndex and
// schedule further children from within itself.
type JobBody func(ctx context.Context)

// Job is a run-to-completion WorkNode wrapping a callable body. It is
// exclusively owned by the JobSystem: created by Schedule, returned to the
// recycler on completion.
type Job struct {
	hdr          nodeHeader
	body         JobBody
	continuation *Job
	system       *JobSystem
}

func newJob(system *JobSystem, body JobBody) *Job {
	j := &Job{body: body, system: system}
	j.hdr = newNodeHeader(j)
	return j
}

func (j *Job) header() *nodeHeader { return &j.hdr }

// deallocate reports true: the JobSystem owns Job storage and may recycle
// or free it.
func (j *Job) deallocate() bool { return true }

// Continuation attaches cont to run after j and all of j's children have
// completed. cont inherits j's parent as an additional sibling, not a
// replacement: j.on_finished() still notifies the parent itself.
//
// j.continuation is read without synchronization by onFinished, so
// Continuation must only be called before j is ever handed to a queue:
// build j with NewJob, attach Continuation, then enqueue it with
// ScheduleJob. Calling Continuation on a Job already returned by Schedule
// races onFinished and can silently drop cont if j finishes first.
func (j *Job) Continuation(cont *Job) *Job {
	j.continuation = cont
	return j
}

// run executes the body to completion. Per spec §4.2/§9, children is set
// to 1 unconditionally on every resume; this is only safe if no child was
// scheduled against this Job before run() is called, which is the case
// because a Job is only ever run once (it is not re-enqueued, unlike a
// Promise) - see debugAssertNoPriorChildren for the debug-build check.
func (j *Job) run(ctx context.Context) {
	debugAssertNoPriorChildren(&j.hdr)
	j.hdr.children.Store(1)
	start := time.Now()
	j.body(ctx)
	finished := time.Now()
	duration := finished.Sub(start)
	j.system.cfg.Metrics.RecordJobDuration(duration)
	j.system.logJobExecution(JobExecutionRecord{
		Name:       j.hdr.name,
		WorkerIdx:  CurrentWorkerIndex(ctx),
		StartedAt:  start,
		FinishedAt: finished,
		Duration:   duration,
	})
	if j.hdr.children.Add(-1) == 0 {
		j.onFinished()
	}
}

// onFinished runs inline on whichever worker drove children to zero. Order
// matters (spec §4.2): schedule the continuation as an additional sibling
// under the inherited parent, then notify the parent, then return storage
// to the recycler.
func (j *Job) onFinished() {
	if j.continuation != nil {
		cont := j.continuation
		j.continuation = nil
		cont.hdr.parent = j.hdr.parent
		if cont.hdr.parent != nil {
			cont.hdr.parent.header().children.Add(1)
		}
		j.system.enqueue(cont)
	}
	if j.hdr.parent != nil {
		j.hdr.parent.notifyChildFinished()
	}
	j.system.recycle(j)
}

// notifyChildFinished decrements j's own children counter; dropping to
// zero fires on_finished exactly once (invariant I2).
func (j *Job) notifyChildFinished() {
	if j.hdr.children.Add(-1) == 0 {
		j.onFinished()
	}
}

// reset clears a recycled Job before reuse (spec §4.2 "Reset-on-recycle").
func (j *Job) reset(body JobBody) {
	j.hdr.reset(j)
	j.continuation = nil
	j.body = body
}
