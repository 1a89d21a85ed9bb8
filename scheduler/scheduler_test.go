package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/deppool"
	"github.com/hengliao1972/pto-isa-sub000/heapring"
	"github.com/hengliao1972/pto-isa-sub000/taskwindow"
)

func discardLogger() zerolog.Logger { return zerolog.Nop() }

func newTestHarness(t *testing.T, windowSize uint32) (*Scheduler, *taskwindow.Window, *deppool.Pool) {
	t.Helper()
	w, err := taskwindow.New(windowSize, discardLogger())
	require.NoError(t, err)
	h, err := heapring.New(4096, discardLogger())
	require.NoError(t, err)
	dp := deppool.New(64)
	s := New(Options{
		Window:             w,
		Heap:               h,
		Deps:               dp,
		ReadyQueueCapacity: int(windowSize),
		CompletionCapacity: int(windowSize),
	})
	return s, w, dp
}

// submit emulates the orchestrator's submission pipeline for a task with
// no producers found (fanin built separately by the caller when needed).
func submit(w *taskwindow.Window, wt core.WorkerType, faninHead, faninCount, fanoutCount uint32) uint32 {
	id := w.Alloc()
	desc := w.Get(id)
	desc.WorkerType = wt
	desc.FaninHead = faninHead
	desc.FaninCount = faninCount
	desc.FanoutCount = fanoutCount
	return id
}

func TestInitTaskNoFaninGoesReadyImmediately(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)

	id := submit(w, core.WorkerCube, 0, 0, 1)
	s.InitTask(id)

	got, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestInitTaskWithFaninStaysPending(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)

	id := submit(w, core.WorkerCube, 0, 1, 1)
	s.InitTask(id)

	require.Equal(t, 0, s.ReadyQueue(core.WorkerCube).Len())
	require.Equal(t, uint32(core.StatePending), s.taskState[id&w.Mask()].Load())
}

func TestCompleteFansOutToSingleConsumer(t *testing.T) {
	t.Parallel()
	s, w, dp := newTestHarness(t, 4)

	producer := submit(w, core.WorkerCube, 0, 0, 1)
	s.InitTask(producer)

	faninHead, err := dp.Append(producer, 0)
	require.NoError(t, err)
	consumer := submit(w, core.WorkerVector, faninHead, 1, 1)
	s.InitTask(consumer)
	require.Equal(t, uint32(core.StatePending), s.taskState[consumer&w.Mask()].Load())

	// register the consumer on the producer's fanout list, as add_consumer
	// would during submission.
	desc := w.Get(producer)
	desc.FanoutLock.Lock()
	fanoutHead, err := dp.Append(consumer, desc.FanoutHead)
	require.NoError(t, err)
	desc.FanoutHead = fanoutHead
	desc.FanoutLock.Unlock()

	id, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
	require.True(t, ok)
	require.Equal(t, producer, id)
	s.MarkRunning(producer)

	s.Complete(CompletionRecord{TaskID: producer})

	consumerID, ok := s.ReadyQueue(core.WorkerVector).Pop(nil)
	require.True(t, ok)
	require.Equal(t, consumer, consumerID)
}

func TestReleaseReferenceConsumesAfterFanoutExhausted(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)

	// fanout_count = 1 models a task with one enclosing scope and no
	// downstream consumers: scope_end's release_reference is the only
	// thing standing between COMPLETED and CONSUMED.
	id := submit(w, core.WorkerCube, 0, 0, 1)
	s.InitTask(id)
	_, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
	require.True(t, ok)
	s.MarkRunning(id)

	s.Complete(CompletionRecord{TaskID: id})
	require.Equal(t, uint32(core.StateCompleted), s.taskState[id&w.Mask()].Load())

	s.ReleaseReference(id)
	require.Equal(t, uint32(core.StateConsumed), s.taskState[id&w.Mask()].Load())
	require.Equal(t, uint64(1), s.TasksConsumed())
}

func TestCheckConsumedReadsFanoutCountUnderLock(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)

	// fanout_count starts at 1 (one scope reference) and a second
	// consumer edge is wired concurrently with the scheduler releasing
	// the first, mirroring addConsumer (orchestrator.go) racing
	// checkConsumed (scheduler.go) against the same descriptor. Run with
	// -race to catch an unguarded FanoutCount read.
	id := submit(w, core.WorkerCube, 0, 0, 1)
	s.InitTask(id)
	_, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
	require.True(t, ok)
	s.MarkRunning(id)
	s.Complete(CompletionRecord{TaskID: id})

	desc := w.Get(id)
	done := make(chan struct{})
	go func() {
		desc.FanoutLock.Lock()
		desc.FanoutCount++
		desc.FanoutLock.Unlock()
		close(done)
	}()

	s.ReleaseReference(id) // releases the original scope reference
	<-done
	s.ReleaseReference(id) // releases the concurrently-added reference

	require.Equal(t, uint32(core.StateConsumed), s.taskState[id&w.Mask()].Load())
}

func TestAdvanceRingPointersPublishesLastTaskAlive(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)

	a := submit(w, core.WorkerCube, 0, 0, 1)
	w.Get(a).PackedBufferEnd = 128
	s.InitTask(a)
	_, _ = s.ReadyQueue(core.WorkerCube).Pop(nil)
	s.MarkRunning(a)
	s.Complete(CompletionRecord{TaskID: a})
	s.ReleaseReference(a)

	require.Equal(t, uint32(1), w.LastTaskAlive())
	require.Equal(t, uint64(128), s.heap.Tail())
}

func TestLinearChainOfFour(t *testing.T) {
	t.Parallel()
	s, w, dp := newTestHarness(t, 8)

	var ids [4]uint32
	for i := range ids {
		fc := uint32(0)
		fh := uint32(0)
		if i > 0 {
			var err error
			fh, err = dp.Append(ids[i-1], 0)
			require.NoError(t, err)
			fc = 1
		}
		ids[i] = submit(w, core.WorkerCube, fh, fc, 1)
		w.Get(ids[i]).PackedBufferEnd = uint64(i+1) * 64
		s.InitTask(ids[i])
		if i > 0 {
			prevDesc := w.Get(ids[i-1])
			prevDesc.FanoutLock.Lock()
			newHead, err := dp.Append(ids[i], prevDesc.FanoutHead)
			require.NoError(t, err)
			prevDesc.FanoutHead = newHead
			prevDesc.FanoutLock.Unlock()
		}
	}

	// Only task 0 is ready at submission.
	id, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
	require.True(t, ok)
	require.Equal(t, ids[0], id)
	require.Equal(t, 0, s.ReadyQueue(core.WorkerCube).Len())

	for i := 0; i < 4; i++ {
		s.MarkRunning(ids[i])
		s.Complete(CompletionRecord{TaskID: ids[i]})
		s.ReleaseReference(ids[i])
		if i < 3 {
			next, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
			require.True(t, ok)
			require.Equal(t, ids[i+1], next)
		}
	}

	require.Equal(t, uint64(4), s.TasksConsumed())
	require.Equal(t, uint32(4), w.LastTaskAlive())
}

func TestIndependentTasksAllReadyImmediately(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 16)

	for i := 0; i < 16; i++ {
		id := submit(w, core.WorkerVector, 0, 0, 1)
		s.InitTask(id)
	}
	require.Equal(t, 16, s.ReadyQueue(core.WorkerVector).Len())
}

func TestReadyQueueOverflowIsFatal(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)
	s.readyQueues[core.WorkerCube] = NewReadyQueue(1)

	id0 := submit(w, core.WorkerCube, 0, 0, 1)
	id1 := submit(w, core.WorkerCube, 0, 0, 1)
	s.InitTask(id0)
	s.InitTask(id1) // queue capacity 1, no waiters: this push overflows

	_, ok := s.ReadyQueue(core.WorkerCube).Pop(nil)
	require.True(t, ok)
}

func TestEstimateCyclesByFamily(t *testing.T) {
	t.Parallel()
	require.Equal(t, uint64(100+1024/1024), EstimateCycles("matmul_f32", 1024))
	require.Equal(t, uint64(80+512/512), EstimateCycles("dma_copy", 512))
	require.Equal(t, uint64(50+2048/2048), EstimateCycles("rowmax", 2048))
}

func TestDoneRequiresOrchestrationDoneAndDrainedWindow(t *testing.T) {
	t.Parallel()
	s, w, _ := newTestHarness(t, 4)
	require.False(t, s.Done())

	id := submit(w, core.WorkerCube, 0, 0, 1)
	s.InitTask(id)
	s.SetOrchestrationDone()
	require.False(t, s.Done(), "current_task_index > last_task_alive, not done yet")

	_, _ = s.ReadyQueue(core.WorkerCube).Pop(nil)
	s.MarkRunning(id)
	s.Complete(CompletionRecord{TaskID: id})
	s.ReleaseReference(id)
	require.True(t, s.Done())
}
