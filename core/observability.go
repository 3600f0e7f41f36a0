package core

import "time"

// JobExecutionRecord captures a completed Job execution event, for
// loggers/metrics that want more than a bare duration.
type JobExecutionRecord struct {
	Name       string
	WorkerIdx  int32
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}
