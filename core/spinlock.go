package core

import (
	"runtime"
	"sync/atomic"
)

// FanoutLock is the single-bit spinlock guarding a task's fanout adjacency
// list while a producer appends a new consumer edge or the scheduler walks
// the list during release. It is intentionally not a sync.Mutex: the
// critical section is a handful of pointer writes and contention is rare
// (one task, bursts of add_consumer calls), so a spin with a scheduler
// yield backs off cheaper than parking a goroutine.
type FanoutLock struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired, yielding the goroutine between
// attempts so a stalled holder doesn't starve the run queue.
func (l *FanoutLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (l *FanoutLock) TryLock() bool {
	return l.held.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an already-unlocked FanoutLock is a
// programmer error and is not checked here, matching the teacher's
// convention of trusting internal callers over defensive runtime checks.
func (l *FanoutLock) Unlock() {
	l.held.Store(false)
}
