package scheduler

import (
	"sync"

	"github.com/hengliao1972/pto-isa-sub000/core"
)

// waiter is one idle worker parked in Pop, waiting for a task to be
// assigned directly rather than polling the backlog buffer. Grounded on
// the teacher's WorkStealingScheduler per-worker local queues
// (runtime/runtime.go), generalized from per-worker channels to a single
// condvar-per-waiter scheme so the queue can pick a specific worker
// (spec.md §4.5 "auxiliary selective-wake scheme").
type waiter struct {
	cond     *sync.Cond
	cycle    *uint64 // nil in execute mode; simulation-mode current_cycle for fairness
	assigned uint32
	hasTask  bool
	wake     bool // set on shutdown to release a parked waiter with no task
}

// ErrReadyQueueOverflow is returned by Push when the queue is full
// (spec.md §7.2: configuration must size queues to the largest READY
// population). The scheduler logs it at Error level and drops the task;
// the error is not returned from Run and the runtime keeps going.
var ErrReadyQueueOverflow = core.ErrPrecondition("scheduler: ready queue overflow, task dropped")

// ReadyQueue is an MPMC FIFO of task_ids for one worker type, backed by a
// bounded ring buffer. Idle workers registering via Pop are woken
// directly (selective wake) instead of via a single shared broadcast, to
// avoid a thundering herd when many workers of the same type are idle.
type ReadyQueue struct {
	mu   sync.Mutex
	buf  []uint32
	head int
	n    int

	waiters []*waiter

	shutdown bool
}

// NewReadyQueue creates a queue with the given backlog capacity.
func NewReadyQueue(capacity int) *ReadyQueue {
	return &ReadyQueue{buf: make([]uint32, capacity)}
}

// Push enqueues a task_id, waking one idle waiter directly if any are
// parked; otherwise it lands in the backlog ring buffer. In simulation
// mode, among several idle waiters the one with the smallest current
// cycle is chosen (spec.md §4.5 "a fairness rule that prevents one worker
// from running ahead in virtual time").
func (q *ReadyQueue) Push(taskID uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiters) > 0 {
		idx := q.pickWaiter()
		w := q.waiters[idx]
		q.waiters = append(q.waiters[:idx], q.waiters[idx+1:]...)
		w.assigned = taskID
		w.hasTask = true
		w.cond.Signal()
		return nil
	}

	if q.n == len(q.buf) {
		return ErrReadyQueueOverflow
	}
	q.buf[(q.head+q.n)%len(q.buf)] = taskID
	q.n++
	return nil
}

// pickWaiter returns the index of the waiter that should receive the next
// task: the lowest-cycle one in simulation mode (ties broken by arrival
// order), otherwise simply the first to have registered (FIFO).
func (q *ReadyQueue) pickWaiter() int {
	best := 0
	for i := 1; i < len(q.waiters); i++ {
		wc, bc := q.waiters[i].cycle, q.waiters[best].cycle
		if wc != nil && bc != nil && *wc < *bc {
			best = i
		}
	}
	return best
}

// Pop blocks until a task is available or the queue is shut down. cycle,
// when non-nil, points at the calling worker's current_cycle counter and
// is consulted by Push's simulation-mode fairness rule; pass nil in
// execute mode.
func (q *ReadyQueue) Pop(cycle *uint64) (taskID uint32, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n > 0 {
		id := q.buf[q.head]
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		return id, true
	}
	if q.shutdown {
		return 0, false
	}

	w := &waiter{cond: sync.NewCond(&q.mu), cycle: cycle}
	q.waiters = append(q.waiters, w)
	for !w.hasTask && !w.wake {
		w.cond.Wait()
	}
	if w.hasTask {
		return w.assigned, true
	}
	return 0, false
}

// Shutdown wakes every parked waiter with no task assigned, causing their
// Pop calls to return ok=false.
func (q *ReadyQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdown = true
	for _, w := range q.waiters {
		w.wake = true
		w.cond.Signal()
	}
	q.waiters = nil
}

// Len reports the current backlog depth (for tests/metrics only).
func (q *ReadyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}
