package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling body panics
// =============================================================================

// PanicHandler is called when a Job or Task body panics during execution,
// before the worker loop re-panics (spec §7: user-body failure is always
// fatal; this hook exists purely to let operators capture diagnostics on
// the way down, it never swallows the failure).
//
// Implementations should be thread-safe; they may be called concurrently
// from any worker.
type PanicHandler interface {
	// HandlePanic is called when a body panics.
	//
	// - workerIndex: the worker that was running the body, or -1 if driven
	//   off-worker (e.g. Task[T].Resume() called directly by a holder).
	// - panicInfo: the panic value recovered from the body.
	// - stackTrace: the stack trace at the time of panic.
	HandlePanic(ctx context.Context, workerIndex int32, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panic information to stdout before the caller
// re-panics.
type DefaultPanicHandler struct{}

func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, workerIndex int32, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d] Panic: %v\nStack trace:\n%s", workerIndex, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting job-system execution
// metrics. All methods are optional; implementations should handle nil
// receivers gracefully and be non-blocking.
type Metrics interface {
	// RecordScheduled records that a Job or Task was handed to a queue.
	RecordScheduled()

	// RecordJobDuration records how long a Job body ran for.
	RecordJobDuration(duration time.Duration)

	// RecordPanic records that a body panicked during execution.
	RecordPanic(panicInfo any)

	// RecordQueueDepth records the current depth of a named queue
	// ("inbox-N" for worker N's inbox, or "central").
	RecordQueueDepth(queue string, depth int)
}

// NilMetrics is a no-op Metrics implementation; the default when no
// metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordScheduled()                             {}
func (m *NilMetrics) RecordJobDuration(duration time.Duration)      {}
func (m *NilMetrics) RecordPanic(panicInfo any)                     {}
func (m *NilMetrics) RecordQueueDepth(queue string, depth int)      {}
