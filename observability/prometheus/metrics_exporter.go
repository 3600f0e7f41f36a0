package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/vgjs/fiberjob/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	scheduledTotal  prom.Counter
	jobDurationSecs prom.Histogram
	panicTotal      prom.Counter
	queueDepth      *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fiberjob"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	scheduledTotal := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_total",
		Help:      "Total number of Jobs/Tasks scheduled.",
	})
	jobDurationSecs := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Job body execution duration in seconds.",
		Buckets:   buckets,
	})
	panicTotal := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "panic_total",
		Help:      "Total number of panics recovered from a Job/Task body.",
	})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth, by queue name (central, inbox-N).",
	}, []string{"queue"})

	var err error
	if scheduledTotal, err = registerCollector(reg, scheduledTotal); err != nil {
		return nil, err
	}
	if jobDurationSecs, err = registerCollector(reg, jobDurationSecs); err != nil {
		return nil, err
	}
	if panicTotal, err = registerCollector(reg, panicTotal); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		scheduledTotal:  scheduledTotal,
		jobDurationSecs: jobDurationSecs,
		panicTotal:      panicTotal,
		queueDepth:      queueDepthVec,
	}, nil
}

// RecordScheduled counts one Job or Task handed to a queue.
func (m *MetricsExporter) RecordScheduled() {
	if m == nil {
		return
	}
	m.scheduledTotal.Inc()
}

// RecordJobDuration records one Job body's execution duration.
func (m *MetricsExporter) RecordJobDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSecs.Observe(duration.Seconds())
}

// RecordPanic counts one recovered panic from inside a Job/Task body.
func (m *MetricsExporter) RecordPanic(panicInfo any) {
	if m == nil {
		return
	}
	m.panicTotal.Inc()
}

// RecordQueueDepth records a point-in-time depth for the named queue.
func (m *MetricsExporter) RecordQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queue, "unknown")).Set(float64(depth))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
