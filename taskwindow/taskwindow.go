// Package taskwindow implements the ring buffer of task descriptors:
// monotonically-increasing task_id assignment, slot storage, and
// flow-controlled admission so the orchestrator never outruns the
// scheduler by more than the window size.
package taskwindow

import (
	"sync"
	"sync/atomic"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/rs/zerolog"
)

// Window is a power-of-two-sized ring of task descriptors.
type Window struct {
	mask uint32
	size uint32

	slots []core.TaskDescriptor

	currentTaskIndex atomic.Uint32 // next task_id to be assigned
	lastTaskAlive    atomic.Uint32 // oldest task_id still live (not CONSUMED)
	publishedIndex   atomic.Uint32 // count of tasks whose descriptors are fully written

	mu   sync.Mutex // guards the condvar below
	cond *sync.Cond

	log zerolog.Logger
}

// New creates a window of the given size, which must be a power of two
// and at least 2 (spec §8: "the smallest legal W is 2").
func New(size uint32, log zerolog.Logger) (*Window, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, core.ErrConfig("taskwindow: size must be a power of two >= 2, got %d", size)
	}
	w := &Window{
		mask:  size - 1,
		size:  size,
		slots: make([]core.TaskDescriptor, size),
		log:   log.With().Str("component", "taskwindow").Logger(),
	}
	w.cond = sync.NewCond(&w.mu)
	return w, nil
}

// Size returns the window's configured capacity.
func (w *Window) Size() uint32 { return w.size }

// Mask returns size-1, the bitmask used to derive a task's slot.
func (w *Window) Mask() uint32 { return w.mask }

// ActiveCount returns current_task_index - last_task_alive.
func (w *Window) ActiveCount() uint32 {
	return w.currentTaskIndex.Load() - w.lastTaskAlive.Load()
}

// Alloc reserves the next task_id, stalling on a condition variable
// until there is room in the window. It never fails.
func (w *Window) Alloc() uint32 {
	for w.ActiveCount() >= w.size {
		w.log.Debug().Uint32("active", w.ActiveCount()).Uint32("size", w.size).Msg("window full, stalling on alloc")
		w.waitForSpace()
	}
	return w.currentTaskIndex.Add(1) - 1
}

func (w *Window) waitForSpace() {
	w.mu.Lock()
	for w.ActiveCount() >= w.size {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// Get returns the descriptor slot for id. Callers must only dereference
// fields according to the concurrency table (fanin fields readable with
// acquire once published; fanout fields behind FanoutLock).
func (w *Window) Get(id uint32) *core.TaskDescriptor {
	return &w.slots[id&w.mask]
}

// AdvanceLastTaskAlive publishes a new last_task_alive value with release
// semantics and wakes any orchestrator goroutines stalled in Alloc. Called
// only by the scheduler (spec §5: split-writer pattern on window
// pointers).
func (w *Window) AdvanceLastTaskAlive(newValue uint32) {
	w.lastTaskAlive.Store(newValue)
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// LastTaskAlive returns the current published value with acquire
// semantics.
func (w *Window) LastTaskAlive() uint32 { return w.lastTaskAlive.Load() }

// CurrentTaskIndex returns the next task_id to be assigned. This advances
// the instant Alloc hands out a ticket, before the descriptor at that slot
// is populated; it is not by itself a safe signal that a task is ready to
// be observed by a poller.
func (w *Window) CurrentTaskIndex() uint32 { return w.currentTaskIndex.Load() }

// PublishSubmitted advances the published-submission counter with release
// semantics, once the caller (the orchestrator, the sole writer) has
// finished populating a task's descriptor. Distinct from
// CurrentTaskIndex: deferred-init scheduling (spec.md §9,
// init_task_on_submit = false) polls this counter rather than the ticket
// counter, so it never observes a half-written descriptor.
func (w *Window) PublishSubmitted(newValue uint32) {
	w.publishedIndex.Store(newValue)
}

// PublishedIndex returns the number of task descriptors fully submitted so
// far, with acquire semantics.
func (w *Window) PublishedIndex() uint32 { return w.publishedIndex.Load() }
