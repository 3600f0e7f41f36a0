package fiberjob

import (
	"context"
	"sync"
)

// =============================================================================
// Global Job System Helper (Singleton)
// =============================================================================

var (
	globalJobSystem *JobSystem
	globalMu        sync.Mutex
)

// InitGlobalJobSystem initializes the global JobSystem with the given number
// of workers and starts it immediately. A second call while one is already
// running is a no-op, matching the teacher's InitGlobalThreadPool.
func InitGlobalJobSystem(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalJobSystem != nil {
		return
	}
	globalJobSystem = NewJobSystem(workers, 0, DefaultJobSystemConfig())
}

// Default returns the global JobSystem instance. It panics if
// InitGlobalJobSystem has not been called.
func Default() *JobSystem {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalJobSystem == nil {
		panic("fiberjob: global JobSystem not initialized; call InitGlobalJobSystem() first")
	}
	return globalJobSystem
}

// ShutdownGlobalJobSystem terminates the global JobSystem and waits for
// every worker to drain, releasing the singleton.
func ShutdownGlobalJobSystem() {
	globalMu.Lock()
	js := globalJobSystem
	globalJobSystem = nil
	globalMu.Unlock()

	if js == nil {
		return
	}
	js.Terminate()
	js.WaitForTermination()
}

// Schedule schedules body as a new Job on the global JobSystem. This is the
// recommended entry point for callers that don't need their own JobSystem.
func Schedule(ctx context.Context, body JobBody, opts ...ScheduleOption) *Job {
	return Default().Schedule(ctx, body, opts...)
}
