// Package scheduler owns the per-slot task-state machine
// (PENDING->READY->RUNNING->COMPLETED->CONSUMED), the fanin/fanout
// refcount bookkeeping, the per-worker-type ready queues, and (in
// simulation mode) the virtual-clock cycle model and trace recording.
// Grounded on the teacher's StreamScheduler (ready/completed channels,
// deps/waiting maps, runtime/runtime.go), with the teacher's static
// dependency-level grouping replaced by the spec's dynamic per-edge
// refcount transitions, since a level computed once from static topology
// cannot express "recheck readiness on every producer completion" for
// weighted fanin counts.
package scheduler

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/deppool"
	"github.com/hengliao1972/pto-isa-sub000/heapring"
	"github.com/hengliao1972/pto-isa-sub000/taskwindow"
	"github.com/hengliao1972/pto-isa-sub000/trace"
	"github.com/rs/zerolog"
)

// Scheduler coordinates one task window, one heap ring, and one dep pool
// through the state machine described in spec.md §4.5.
type Scheduler struct {
	window *taskwindow.Window
	heap   *heapring.Ring
	deps   *deppool.Pool
	log    zerolog.Logger

	taskState      []atomic.Uint32 // core.TaskState, indexed by slot
	faninRefcount  []atomic.Uint32
	fanoutRefcount []atomic.Uint32
	taskEndCycle   []atomic.Uint64 // simulation mode: published end_cycle per slot

	readyQueues [core.NumWorkerTypes]*ReadyQueue
	completions *CompletionQueue

	simulation bool
	tracer     *trace.Recorder

	tasksConsumed atomic.Uint64

	initOnSubmit bool
	nextUninit   atomic.Uint32 // deferred-init mode only: next published index to InitTask

	orchestrationDone atomic.Bool

	mu       sync.Mutex
	doneCond *sync.Cond
}

// Options configures a new Scheduler.
type Options struct {
	Window             *taskwindow.Window
	Heap               *heapring.Ring
	Deps               *deppool.Pool
	ReadyQueueCapacity int
	CompletionCapacity int
	Simulation         bool
	// InitOnSubmit selects which of the two modes in spec.md §9's
	// "fanout_count bookkeeping" open question this scheduler runs:
	// true has the orchestrator call InitTask synchronously inside
	// Submit; false has Run poll Window.PublishedIndex() and call
	// InitTask itself as the orchestrator publishes new descriptors.
	InitOnSubmit bool
	Log          zerolog.Logger
}

// New builds a scheduler sized to window.Size() slots.
func New(opts Options) *Scheduler {
	w := opts.Window.Size()
	s := &Scheduler{
		window:         opts.Window,
		heap:           opts.Heap,
		deps:           opts.Deps,
		log:            opts.Log.With().Str("component", "scheduler").Logger(),
		taskState:      make([]atomic.Uint32, w),
		faninRefcount:  make([]atomic.Uint32, w),
		fanoutRefcount: make([]atomic.Uint32, w),
		taskEndCycle:   make([]atomic.Uint64, w),
		completions:    NewCompletionQueue(opts.CompletionCapacity),
		simulation:     opts.Simulation,
		initOnSubmit:   opts.InitOnSubmit,
	}
	if s.simulation {
		s.tracer = trace.NewRecorder()
	}
	for i := range s.readyQueues {
		s.readyQueues[i] = NewReadyQueue(opts.ReadyQueueCapacity)
	}
	s.doneCond = sync.NewCond(&s.mu)
	return s
}

// Tracer exposes the simulation-mode event recorder, nil in execute mode.
func (s *Scheduler) Tracer() *trace.Recorder { return s.tracer }

// ReadyQueue returns the queue for a worker type, for workers to Pop from.
func (s *Scheduler) ReadyQueue(wt core.WorkerType) *ReadyQueue { return s.readyQueues[wt] }

// Completions returns the completion queue workers push onto.
func (s *Scheduler) Completions() *CompletionQueue { return s.completions }

// Window exposes the task window so the worker pool can read descriptor
// fields (func_ptr, args, buffer bounds) without the scheduler becoming a
// pass-through for every descriptor accessor.
func (s *Scheduler) Window() *taskwindow.Window { return s.window }

func (s *Scheduler) slot(taskID uint32) uint32 { return taskID & s.window.Mask() }

// InitTask performs the PENDING->READY check for a freshly-submitted
// task: if its fanin_count is already zero (no producers found at
// submission) it is immediately ready. Called either synchronously by
// the orchestrator (init_task_on_submit = true) or by the scheduler's
// poll loop observing the window's PublishedIndex advance (init_task_on_submit =
// false); both modes are supported per spec.md §9.
func (s *Scheduler) InitTask(taskID uint32) {
	slot := s.slot(taskID)
	s.taskState[slot].Store(uint32(core.StatePending))
	desc := s.window.Get(taskID)
	if s.faninRefcount[slot].Load() == desc.FaninCount {
		s.tryReady(taskID, slot, desc.WorkerType)
	}
}

// TaskState reports a task's current lifecycle state, for the
// orchestrator's add_consumer to decide whether a producer has already
// completed (spec.md §4.4: "if the producer is already >= COMPLETED when
// the consumer is appended, the consumer's fanin_refcount must be
// incremented directly").
func (s *Scheduler) TaskState(taskID uint32) core.TaskState {
	return core.TaskState(s.taskState[s.slot(taskID)].Load())
}

// PreAddFaninRefs credits a not-yet-initialized task's fanin_refcount by n
// before InitTask runs, for edges discovered against a producer that had
// already reached COMPLETED by the time add_consumer wired them in (so the
// producer's own completion-time fanout walk could not have notified this
// task, which did not exist in its fanout list yet).
func (s *Scheduler) PreAddFaninRefs(taskID uint32, n uint32) {
	if n == 0 {
		return
	}
	s.faninRefcount[s.slot(taskID)].Add(n)
}

// tryReady CASes PENDING->READY and, on success, enqueues the task.
func (s *Scheduler) tryReady(taskID, slot uint32, wt core.WorkerType) {
	if s.taskState[slot].CompareAndSwap(uint32(core.StatePending), uint32(core.StateReady)) {
		if err := s.readyQueues[wt].Push(taskID); err != nil {
			s.log.Error().Uint32("task_id", taskID).Err(err).Msg("ready queue overflow, task dropped")
		}
	}
}

// MarkRunning CASes READY->RUNNING; called by a worker immediately after
// popping a task_id (workers never touch task_state otherwise, per
// spec.md §4.5).
func (s *Scheduler) MarkRunning(taskID uint32) {
	s.taskState[s.slot(taskID)].CompareAndSwap(uint32(core.StateReady), uint32(core.StateRunning))
}

// Complete processes a completion record: transitions the task to
// COMPLETED, fans readiness out to consumers, releases references to
// upstream producers, and checks whether the task itself can become
// CONSUMED immediately (spec.md §4.5 step 3).
func (s *Scheduler) Complete(rec CompletionRecord) {
	taskID := rec.TaskID
	slot := s.slot(taskID)
	desc := s.window.Get(taskID)

	// The state transition to COMPLETED and the fanout walk must happen
	// as one atomic step under FanoutLock: add_consumer (spec.md §4.4)
	// inspects this task's state under the same lock to decide whether a
	// newly-wired edge needs a direct fanin_refcount credit instead of
	// waiting on this walk, and the two must never interleave.
	desc.FanoutLock.Lock()
	s.taskState[slot].Store(uint32(core.StateCompleted))
	s.deps.Walk(desc.FanoutHead, func(consumerID uint32) {
		s.notifyConsumer(consumerID)
	})
	desc.FanoutLock.Unlock()

	if s.simulation {
		s.taskEndCycle[slot].Store(rec.EndCycle)
		if s.tracer != nil {
			s.tracer.Record(trace.Event{
				TaskID: taskID, WorkerID: rec.WorkerID,
				StartCycle: rec.StartCycle, EndCycle: rec.EndCycle,
				Name: desc.FuncName,
			})
		}
	}

	s.deps.Walk(desc.FaninHead, func(producerID uint32) {
		s.ReleaseReference(producerID)
	})

	s.checkConsumed(taskID, slot)
}

// notifyConsumer increments a consumer's fanin_refcount and promotes it
// to READY once every producer has reported in.
func (s *Scheduler) notifyConsumer(consumerID uint32) {
	cslot := s.slot(consumerID)
	n := s.faninRefcount[cslot].Add(1)
	desc := s.window.Get(consumerID)
	if n == desc.FaninCount {
		s.tryReady(consumerID, cslot, desc.WorkerType)
	}
}

// ReleaseReference drops one outstanding scope/consumer reference against
// a task's fanout_count; once every reference has been released and the
// task is COMPLETED, it becomes CONSUMED (spec.md §4.5 "release_reference").
func (s *Scheduler) ReleaseReference(taskID uint32) {
	slot := s.slot(taskID)
	s.fanoutRefcount[slot].Add(1)
	s.checkConsumed(taskID, slot)
}

// checkConsumed CASes COMPLETED->CONSUMED when fanout_refcount has caught
// up with fanout_count, resets the slot's refcounts, and advances the
// ring pointers.
func (s *Scheduler) checkConsumed(taskID, slot uint32) {
	desc := s.window.Get(taskID)
	desc.FanoutLock.Lock()
	fanoutCount := desc.FanoutCount
	desc.FanoutLock.Unlock()
	if s.fanoutRefcount[slot].Load() != fanoutCount {
		return
	}
	if !s.taskState[slot].CompareAndSwap(uint32(core.StateCompleted), uint32(core.StateConsumed)) {
		return
	}
	s.faninRefcount[slot].Store(0)
	s.fanoutRefcount[slot].Store(0)
	s.tasksConsumed.Add(1)
	s.advanceRingPointers()
}

// advanceRingPointers walks forward from last_task_alive while slots are
// CONSUMED, then publishes the new last_task_alive and the heap tail
// (spec.md §4.5 "advance_ring_pointers").
func (s *Scheduler) advanceRingPointers() {
	pos := s.window.LastTaskAlive()
	cur := s.window.CurrentTaskIndex()
	var lastEnd uint64
	advanced := false
	for pos < cur && s.taskState[s.slot(pos)].Load() == uint32(core.StateConsumed) {
		lastEnd = s.window.Get(pos).PackedBufferEnd
		pos++
		advanced = true
	}
	if !advanced {
		return
	}
	s.window.AdvanceLastTaskAlive(pos)
	s.heap.AdvanceTail(lastEnd)

	s.mu.Lock()
	s.doneCond.Broadcast()
	s.mu.Unlock()
}

// TasksConsumed returns the running total of tasks that reached CONSUMED.
func (s *Scheduler) TasksConsumed() uint64 { return s.tasksConsumed.Load() }

// SetOrchestrationDone marks orchestration_done for the termination
// predicate.
func (s *Scheduler) SetOrchestrationDone() {
	s.orchestrationDone.Store(true)
	s.mu.Lock()
	s.doneCond.Broadcast()
	s.mu.Unlock()
}

// Done reports the termination predicate: orchestration_done AND
// last_task_alive >= current_task_index (spec.md §4.5).
func (s *Scheduler) Done() bool {
	return s.orchestrationDone.Load() && s.window.LastTaskAlive() >= s.window.CurrentTaskIndex()
}

// WaitUntilDone blocks until Done() holds, waking on every completion or
// on SetOrchestrationDone.
func (s *Scheduler) WaitUntilDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.Done() {
		s.doneCond.Wait()
	}
}

// Run drains the completion queue and drives the state machine until
// Done() holds or shutdown is closed. It is meant to run on its own
// goroutine (the "scheduler thread" of spec.md §5).
func (s *Scheduler) Run(shutdown <-chan struct{}) {
	for {
		select {
		case <-shutdown:
			return
		default:
		}
		if !s.initOnSubmit {
			s.pollNewSubmissions()
		}
		if rec, ok := s.completions.Pop(time.Millisecond); ok {
			s.Complete(rec)
		}
		if s.Done() {
			return
		}
	}
}

// pollNewSubmissions implements the deferred half of init_task_on_submit
// (spec.md §9): observe Window.PublishedIndex() advancing and run the
// same PENDING->READY check InitTask would run synchronously.
func (s *Scheduler) pollNewSubmissions() {
	published := s.window.PublishedIndex()
	for next := s.nextUninit.Load(); next < published; next = s.nextUninit.Load() {
		s.InitTask(next)
		s.nextUninit.Store(next + 1)
	}
}

// Shutdown wakes every ready queue's idle workers so they can observe the
// shutdown flag and exit (spec.md §5 "Cancellation").
func (s *Scheduler) Shutdown() {
	for _, q := range s.readyQueues {
		q.Shutdown()
	}
}

// EstimateCycles implements estimate_cycles_by_name (spec.md §4.6):
// hard-coded per-family defaults used only in simulation mode.
func EstimateCycles(funcName string, dataSizeBytes int) uint64 {
	name := strings.ToLower(funcName)
	switch {
	case strings.Contains(name, "matmul") || strings.Contains(name, "gemm"):
		return 100 + uint64(dataSizeBytes)/1024
	case strings.Contains(name, "dma") || strings.Contains(name, "copy"):
		return 80 + uint64(dataSizeBytes)/512
	default:
		return 50 + uint64(dataSizeBytes)/2048
	}
}

// FaninEndCycles returns the published end_cycle of every producer in
// taskID's fanin list, for the worker to compute
// max(max_{p in fanin}(end_cycle[p]), worker_current_cycle) in simulation
// mode (spec.md §4.6).
func (s *Scheduler) FaninEndCycles(taskID uint32) []uint64 {
	desc := s.window.Get(taskID)
	var out []uint64
	s.deps.Walk(desc.FaninHead, func(producerID uint32) {
		out = append(out, s.taskEndCycle[s.slot(producerID)].Load())
	})
	return out
}
