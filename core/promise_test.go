package core

import (
	"context"
	"testing"
	"time"
)

// TestTask_FanOutAwaitChildren covers end-to-end scenario 1: a parent task
// awaits a vector of 1000 child tasks, each returning its own index; the
// sum of Get() over children must equal 499500.
func TestTask_FanOutAwaitChildren(t *testing.T) {
	sys := testSystem(8)
	defer func() {
		sys.Terminate()
		sys.WaitForTermination()
	}()

	ctx := context.Background()
	const n = 1000

	parent := SpawnTask(sys, ctx, func(c *Ctx[int]) int {
		children := make([]*Task[int], n)
		for i := 0; i < n; i++ {
			idx := i
			children[i] = SpawnTask(sys, c.Context(), func(cc *Ctx[int]) int {
				return idx
			})
		}
		c.AwaitChildren(Children(children)...)

		sum := 0
		for _, ch := range children {
			v, _ := ch.Get()
			sum += v
		}
		return sum
	})

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := parent.Wait(waitCtx); err != nil {
		t.Fatalf("parent.Wait: %v", err)
	}

	got, ok := parent.Get()
	if !ok {
		t.Fatal("parent.Get() ok = false")
	}
	if got != 499500 {
		t.Fatalf("sum = %d, want 499500", got)
	}
}

// TestTask_MigrateTo covers end-to-end scenario 3: a task starts on worker
// 0, awaits migrate_to(2), and its next body step executes on worker 2.
func TestTask_MigrateTo(t *testing.T) {
	sys := testSystem(4)
	defer func() {
		sys.Terminate()
		sys.WaitForTermination()
	}()

	ctx := context.Background()
	type record struct{ before, after int32 }

	task := SpawnTask(sys, ctx, func(c *Ctx[record]) record {
		before := CurrentWorkerIndex(c.Context())
		c.MigrateTo(2)
		after := CurrentWorkerIndex(c.Context())
		return record{before: before, after: after}
	}, WithThreadIndex(0))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := task.Wait(waitCtx); err != nil {
		t.Fatalf("task.Wait: %v", err)
	}

	rec, _ := task.Get()
	if rec.before != 0 {
		t.Errorf("before = %d, want 0", rec.before)
	}
	if rec.after != 2 {
		t.Errorf("after = %d, want 2", rec.after)
	}
}

// TestTask_YieldResume covers end-to-end scenario 4: a task yields 7, yields
// 8, then returns 9; Get() between holder-driven steps observes 7, 8, 9 in
// order with no skips.
func TestTask_YieldResume(t *testing.T) {
	sys := testSystem(2)
	defer func() {
		sys.Terminate()
		sys.WaitForTermination()
	}()

	ctx := context.Background()
	gen := SpawnGenerator(sys, ctx, func(c *Ctx[int]) int {
		c.Yield(7)
		c.Yield(8)
		return 9
	})

	var observed []int
	for gen.State() != StateFinal {
		gen.Resume(ctx)
		v, ok := gen.Get()
		if !ok {
			t.Fatal("Get() ok = false after Resume")
		}
		observed = append(observed, v)
	}

	want := []int{7, 8, 9}
	if len(observed) != len(want) {
		t.Fatalf("observed = %v, want %v", observed, want)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Fatalf("observed = %v, want %v", observed, want)
		}
	}
}

// TestPromise_EmptyAwaitIsNoSuspend verifies the "ready?" fast path: awaiting
// zero children never suspends the body.
func TestPromise_EmptyAwaitIsNoSuspend(t *testing.T) {
	sys := testSystem(2)
	defer func() {
		sys.Terminate()
		sys.WaitForTermination()
	}()

	ctx := context.Background()
	task := SpawnTask(sys, ctx, func(c *Ctx[int]) int {
		c.AwaitChildren()
		return 42
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

// TestPromise_GetBeforeCompletionIsFalse verifies Get() reports (zero,
// false) - a normal non-error state - before the body has produced a value.
func TestPromise_GetBeforeCompletionIsFalse(t *testing.T) {
	sys := testSystem(1)
	defer func() {
		sys.Terminate()
		sys.WaitForTermination()
	}()

	ctx := context.Background()
	release := make(chan struct{})
	task := SpawnTask(sys, ctx, func(c *Ctx[int]) int {
		<-release
		return 1
	})

	if _, ok := task.Get(); ok {
		t.Fatal("Get() ok = true before body produced a value")
	}
	close(release)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = task.Wait(waitCtx)
}
