package prometheus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vgjs/fiberjob/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// JobSystemSnapshotProvider provides current JobSystem stats snapshots.
type JobSystemSnapshotProvider interface {
	Stats() core.JobSystemStats
}

// SnapshotPoller periodically exports JobSystem.Stats() snapshots into
// Prometheus gauges, complementing the event-driven counters MetricsExporter
// feeds from inside the scheduler itself.
type SnapshotPoller struct {
	interval time.Duration

	systemsMu sync.RWMutex
	systems   map[string]JobSystemSnapshotProvider

	workerCount   *prom.GaugeVec
	activeWorkers *prom.GaugeVec
	centralDepth  *prom.GaugeVec
	recyclerDepth *prom.GaugeVec
	inboxDepth    *prom.GaugeVec
	workerActive  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors
// under namespace (an empty namespace falls back to "fiberjob", matching
// NewMetricsExporter's default).
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "fiberjob"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	workerCount := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_count",
		Help:      "Configured worker count per JobSystem.",
	}, []string{"system"})
	activeWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Currently running worker goroutines per JobSystem.",
	}, []string{"system"})
	centralDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "central_queue_depth",
		Help:      "Central queue depth per JobSystem.",
	}, []string{"system"})
	recyclerDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "recycler_depth",
		Help:      "Job recycler depth per JobSystem.",
	}, []string{"system"})
	inboxDepth := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "inbox_depth",
		Help:      "Per-worker inbox depth.",
	}, []string{"system", "worker"})
	workerActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_active",
		Help:      "1 if the worker's dispatch loop is currently running, 0 otherwise.",
	}, []string{"system", "worker"})

	var err error
	if workerCount, err = registerCollector(reg, workerCount); err != nil {
		return nil, err
	}
	if activeWorkers, err = registerCollector(reg, activeWorkers); err != nil {
		return nil, err
	}
	if centralDepth, err = registerCollector(reg, centralDepth); err != nil {
		return nil, err
	}
	if recyclerDepth, err = registerCollector(reg, recyclerDepth); err != nil {
		return nil, err
	}
	if inboxDepth, err = registerCollector(reg, inboxDepth); err != nil {
		return nil, err
	}
	if workerActive, err = registerCollector(reg, workerActive); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:      interval,
		systems:       make(map[string]JobSystemSnapshotProvider),
		workerCount:   workerCount,
		activeWorkers: activeWorkers,
		centralDepth:  centralDepth,
		recyclerDepth: recyclerDepth,
		inboxDepth:    inboxDepth,
		workerActive:  workerActive,
	}, nil
}

// AddJobSystem adds or replaces a JobSystem snapshot provider by name.
func (p *SnapshotPoller) AddJobSystem(name string, provider JobSystemSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "default")
	p.systemsMu.Lock()
	p.systems[name] = provider
	p.systemsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.systemsMu.RLock()
	defer p.systemsMu.RUnlock()

	for name, provider := range p.systems {
		stats := provider.Stats()
		p.workerCount.WithLabelValues(name).Set(float64(stats.WorkerCount))
		p.activeWorkers.WithLabelValues(name).Set(float64(stats.ActiveWorkers))
		p.centralDepth.WithLabelValues(name).Set(float64(stats.CentralDepth))
		p.recyclerDepth.WithLabelValues(name).Set(float64(stats.RecyclerDepth))
		for _, w := range stats.Workers {
			label := workerLabel(w.Index)
			p.inboxDepth.WithLabelValues(name, label).Set(float64(w.InboxDepth))
			active := 0.0
			if w.Active {
				active = 1.0
			}
			p.workerActive.WithLabelValues(name, label).Set(active)
		}
	}
}

func workerLabel(idx int) string {
	return fmt.Sprintf("%d", idx)
}
