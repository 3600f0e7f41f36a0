package core

import "sync/atomic"

// queueMode selects between the two roles a LockFreeQueue plays in the
// scheduler: the central queue and recycler want throughput and don't care
// about order (MPMC-LIFO); per-worker inboxes want push-from-anywhere,
// drain-by-one-consumer FIFO ordering.
type queueMode int

const (
	// ModeLIFO is a multi-producer/multi-consumer stack. Used by the
	// central queue and the Job recycler, where ordering is irrelevant.
	ModeLIFO queueMode = iota

	// ModeFIFO is multi-producer/single-consumer. Used by per-worker
	// inboxes: any thread may push (work handoff, migration), but only
	// the owning worker ever pops.
	ModeFIFO
)

// LockFreeQueue is an intrusive singly-linked list with an atomic head
// pointer, parameterised by mode. It never allocates: nodes are WorkNodes
// threading themselves through nodeHeader.next.
type LockFreeQueue struct {
	mode queueMode
	head atomic.Pointer[nodeHeader]
}

func NewLockFreeQueue(mode queueMode) *LockFreeQueue {
	return &LockFreeQueue{mode: mode}
}

// Push is wait-free and safe from any thread: it sets node.next to the
// current head, then CASes until it wins.
func (q *LockFreeQueue) Push(item workItem) {
	h := item.header()
	for {
		old := q.head.Load()
		h.next.Store(old)
		if q.head.CompareAndSwap(old, h) {
			return
		}
	}
}

// Pop removes and returns a node, or nil if the queue was empty. In LIFO
// mode it CAS-pops the head; in FIFO mode it walks to the tail and detaches
// it. A producer racing on the head during the FIFO walk is tolerated:
// new pushes only ever touch the head pointer and the new node's own next,
// never the links already below the snapshot this Pop started from.
func (q *LockFreeQueue) Pop() workItem {
	if q.mode == ModeLIFO {
		return q.popLIFO()
	}
	return q.popFIFOOneConsumer()
}

func (q *LockFreeQueue) popLIFO() workItem {
	for {
		head := q.head.Load()
		if head == nil {
			return nil
		}
		next := head.next.Load()
		if q.head.CompareAndSwap(head, next) {
			head.next.Store(nil)
			return head.owner
		}
	}
}

func (q *LockFreeQueue) popFIFOOneConsumer() workItem {
	for {
		head := q.head.Load()
		if head == nil {
			return nil
		}
		if head.next.Load() == nil {
			// Single-element fast path: try to take the head itself.
			if q.head.CompareAndSwap(head, nil) {
				head.next.Store(nil)
				return head.owner
			}
			// Lost the race to a concurrent pusher; re-read and retry.
			continue
		}

		prev := head
		cur := head.next.Load()
		for cur.next.Load() != nil {
			prev = cur
			cur = cur.next.Load()
		}
		prev.next.Store(nil)
		cur.next.Store(nil)
		return cur.owner
	}
}

// Clear drains the queue, to be called only once the pool is quiescent.
// For each node, dealloc(item) is invoked only if item.deallocate()
// reports the scheduler owns its storage (Jobs); Promises report false
// because the external Task[T] holder (or Go's GC) owns their lifetime.
func (q *LockFreeQueue) Clear(dealloc func(workItem)) {
	for {
		item := q.Pop()
		if item == nil {
			return
		}
		if item.deallocate() && dealloc != nil {
			dealloc(item)
		}
	}
}

// Len reports the current queue length by walking the list. It is O(n)
// and intended for diagnostics/tests only, never the hot path.
func (q *LockFreeQueue) Len() int {
	n := 0
	for cur := q.head.Load(); cur != nil; cur = cur.next.Load() {
		n++
	}
	return n
}
