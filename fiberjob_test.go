package fiberjob

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestGlobalJobSystem_InitScheduleShutdown exercises the package-level
// singleton convenience facade end to end.
func TestGlobalJobSystem_InitScheduleShutdown(t *testing.T) {
	InitGlobalJobSystem(2)
	defer ShutdownGlobalJobSystem()

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	Schedule(context.Background(), func(ctx context.Context) {
		ran.Store(true)
		wg.Done()
	})

	wg.Wait()
	if !ran.Load() {
		t.Fatal("job body scheduled through the global facade never ran")
	}
}

// TestGlobalJobSystem_InitIsIdempotent verifies a second InitGlobalJobSystem
// call while one is running is a no-op rather than replacing the running
// system out from under existing callers.
func TestGlobalJobSystem_InitIsIdempotent(t *testing.T) {
	InitGlobalJobSystem(2)
	defer ShutdownGlobalJobSystem()

	first := Default()
	InitGlobalJobSystem(4)
	second := Default()

	if first != second {
		t.Fatal("second InitGlobalJobSystem replaced the running global JobSystem")
	}
}

// TestDefault_PanicsWithoutInit verifies Default panics with a clear
// message before any InitGlobalJobSystem call.
func TestDefault_PanicsWithoutInit(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Default() did not panic with no global JobSystem initialized")
		}
	}()
	Default()
}

// TestSpawnTask_FacadeForward verifies the root package's SpawnTask forwards
// to core.SpawnTask with matching semantics (a fan-out/await-children round
// trip through the generic facade).
func TestSpawnTask_FacadeForward(t *testing.T) {
	js := NewJobSystem(4, 0, DefaultJobSystemConfig())
	defer func() {
		js.Terminate()
		js.WaitForTermination()
	}()

	ctx := context.Background()
	task := SpawnTask(js, ctx, func(c *Ctx[int]) int {
		leaf := SpawnTask(js, c.Context(), func(cc *Ctx[int]) int { return 21 })
		c.AwaitChildren(Child(leaf)...)
		v, _ := leaf.Get()
		return v * 2
	})

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := task.Wait(waitCtx); err != nil {
		t.Fatalf("task.Wait: %v", err)
	}
	got, _ := task.Get()
	if got != 42 {
		t.Fatalf("got = %d, want 42", got)
	}
}
