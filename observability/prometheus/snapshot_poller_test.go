package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/vgjs/fiberjob/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type jobSystemStub struct {
	stats core.JobSystemStats
}

func (s jobSystemStub) Stats() core.JobSystemStats { return s.stats }

func TestSnapshotPoller_CollectsJobSystemStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("fiberjob", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddJobSystem("sys-a", jobSystemStub{stats: core.JobSystemStats{
		WorkerCount:   4,
		ActiveWorkers: 4,
		CentralDepth:  3,
		RecyclerDepth: 1,
		Workers: []core.WorkerStats{
			{Index: 0, Active: true, InboxDepth: 2},
			{Index: 1, Active: true, InboxDepth: 0},
			{Index: 2, Active: true, InboxDepth: 1},
			{Index: 3, Active: false, InboxDepth: 0},
		},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		central := testutil.ToFloat64(poller.centralDepth.WithLabelValues("sys-a"))
		active := testutil.ToFloat64(poller.activeWorkers.WithLabelValues("sys-a"))
		return central == 3 && active == 4
	})

	if got := testutil.ToFloat64(poller.recyclerDepth.WithLabelValues("sys-a")); got != 1 {
		t.Fatalf("recycler depth gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.inboxDepth.WithLabelValues("sys-a", "0")); got != 2 {
		t.Fatalf("inbox[0] depth gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.workerActive.WithLabelValues("sys-a", "3")); got != 0 {
		t.Fatalf("worker[3] active gauge = %v, want 0", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("fiberjob", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
