package core

import (
	"context"
	"testing"
)

func noopJob(system *JobSystem) *Job {
	return newJob(system, func(ctx context.Context) {})
}

// TestLockFreeQueue_LIFO_PushPopOrder verifies stack ordering for the
// central-queue/recycler mode.
// Given: three nodes pushed in order A, B, C onto a ModeLIFO queue
// When: popped repeatedly
// Then: they come back C, B, A
func TestLockFreeQueue_LIFO_PushPopOrder(t *testing.T) {
	sys := &JobSystem{}
	q := NewLockFreeQueue(ModeLIFO)
	a, b, c := noopJob(sys), noopJob(sys), noopJob(sys)

	q.Push(a)
	q.Push(b)
	q.Push(c)

	want := []workItem{c, b, a}
	for i, w := range want {
		got := q.Pop()
		if got != w {
			t.Fatalf("pop %d = %p, want %p", i, got, w)
		}
	}
	if got := q.Pop(); got != nil {
		t.Fatalf("Pop on empty queue = %v, want nil", got)
	}
}

// TestLockFreeQueue_FIFO_PushPopOrder verifies the single-consumer FIFO mode
// used by per-worker inboxes.
// Given: three nodes pushed in order A, B, C onto a ModeFIFO queue
// When: popped repeatedly
// Then: they come back A, B, C
func TestLockFreeQueue_FIFO_PushPopOrder(t *testing.T) {
	sys := &JobSystem{}
	q := NewLockFreeQueue(ModeFIFO)
	a, b, c := noopJob(sys), noopJob(sys), noopJob(sys)

	q.Push(a)
	q.Push(b)
	q.Push(c)

	want := []workItem{a, b, c}
	for i, w := range want {
		got := q.Pop()
		if got != w {
			t.Fatalf("pop %d = %p, want %p", i, got, w)
		}
	}
}

// TestLockFreeQueue_Len reports queue depth for diagnostics.
func TestLockFreeQueue_Len(t *testing.T) {
	sys := &JobSystem{}
	q := NewLockFreeQueue(ModeLIFO)
	if q.Len() != 0 {
		t.Fatalf("Len() on empty queue = %d, want 0", q.Len())
	}
	q.Push(noopJob(sys))
	q.Push(noopJob(sys))
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

// TestLockFreeQueue_Clear drains every node and invokes dealloc only for
// nodes reporting deallocate()==true (Jobs, not Promises).
func TestLockFreeQueue_Clear(t *testing.T) {
	sys := &JobSystem{}
	q := NewLockFreeQueue(ModeLIFO)
	q.Push(noopJob(sys))
	q.Push(noopJob(sys))

	n := 0
	q.Clear(func(item workItem) { n++ })

	if n != 2 {
		t.Fatalf("dealloc called %d times, want 2", n)
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", q.Len())
	}
}
