package orchestrator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/deppool"
	"github.com/hengliao1972/pto-isa-sub000/heapring"
	"github.com/hengliao1972/pto-isa-sub000/region"
	"github.com/hengliao1972/pto-isa-sub000/scheduler"
	"github.com/hengliao1972/pto-isa-sub000/taskwindow"
)

func discardLogger() zerolog.Logger { return zerolog.Nop() }

type harness struct {
	orch  *Orchestrator
	sched *scheduler.Scheduler
	win   *taskwindow.Window
}

func newHarness(t *testing.T, initOnSubmit bool) *harness {
	t.Helper()
	w, err := taskwindow.New(16, discardLogger())
	require.NoError(t, err)
	h, err := heapring.New(4096, discardLogger())
	require.NoError(t, err)
	idx := region.NewIndex(8)
	dp := deppool.New(64)
	s := scheduler.New(scheduler.Options{
		Window:             w,
		Heap:               h,
		Deps:               dp,
		ReadyQueueCapacity: 16,
		CompletionCapacity: 16,
		InitOnSubmit:       initOnSubmit,
		Log:                discardLogger(),
	})
	o := New(Options{
		Window:       w,
		Heap:         h,
		Regions:      idx,
		Deps:         dp,
		Scheduler:    s,
		InitOnSubmit: initOnSubmit,
		Log:          discardLogger(),
	})
	return &harness{orch: o, sched: s, win: w}
}

func TestSubmitWithNoProducerGoesReadyImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)

	out := region.LogicalTensor{RawBase: 0x1000, MinByteOffset: 0, MaxByteOffset: 63}
	id, err := h.orch.Submit(1, core.WorkerCube, func([][]byte) {}, "rowmax", []Param{
		{Kind: ParamOutput, Tensor: out, Size: 64},
	})
	require.NoError(t, err)
	require.Equal(t, core.StateReady, h.sched.TaskState(id))
}

func TestSubmitWiresFaninFromOverlappingOutput(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)

	region0 := region.LogicalTensor{RawBase: 0x2000, MinByteOffset: 0, MaxByteOffset: 63}

	producer, err := h.orch.Submit(1, core.WorkerCube, func([][]byte) {}, "rowmax", []Param{
		{Kind: ParamOutput, Tensor: region0, Size: 64},
	})
	require.NoError(t, err)
	require.Equal(t, core.StateReady, h.sched.TaskState(producer))

	consumer, err := h.orch.Submit(2, core.WorkerVector, func([][]byte) {}, "rowexpandsub", []Param{
		{Kind: ParamInput, Tensor: region0},
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x3000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)

	// consumer depends on producer, which has not completed yet.
	require.Equal(t, core.StatePending, h.sched.TaskState(consumer))

	h.sched.MarkRunning(producer)
	h.sched.Complete(scheduler.CompletionRecord{TaskID: producer})

	require.Equal(t, core.StateReady, h.sched.TaskState(consumer))
}

func TestAddConsumerAfterProducerCompletedCreditsDirectly(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)

	region0 := region.LogicalTensor{RawBase: 0x4000, MinByteOffset: 0, MaxByteOffset: 63}

	// The open scope holds a reference on the producer (fanout_count 1),
	// so completion leaves it COMPLETED instead of consuming it at once.
	require.NoError(t, h.orch.ScopeBegin())
	producer, err := h.orch.Submit(1, core.WorkerCube, func([][]byte) {}, "rowmax", []Param{
		{Kind: ParamOutput, Tensor: region0, Size: 64},
	})
	require.NoError(t, err)

	h.sched.MarkRunning(producer)
	h.sched.Complete(scheduler.CompletionRecord{TaskID: producer})
	require.Equal(t, core.StateCompleted, h.sched.TaskState(producer))

	// Producer already >= COMPLETED by the time this edge is wired: the
	// consumer must still reach READY, via the direct fanin_refcount
	// credit rather than producer's (already-run) fanout walk.
	consumer, err := h.orch.Submit(2, core.WorkerVector, func([][]byte) {}, "rowexpandsub", []Param{
		{Kind: ParamInput, Tensor: region0},
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x5000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)
	require.Equal(t, core.StateReady, h.sched.TaskState(consumer))
}

func TestScopeBeginEndReleasesReferences(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)

	require.NoError(t, h.orch.ScopeBegin())

	t0, err := h.orch.Submit(1, core.WorkerCube, func([][]byte) {}, "rowmax", []Param{
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x6000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)
	t1, err := h.orch.Submit(2, core.WorkerCube, func([][]byte) {}, "rowsum", []Param{
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x7000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)

	require.NoError(t, h.orch.ScopeEnd())

	h.sched.MarkRunning(t0)
	h.sched.Complete(scheduler.CompletionRecord{TaskID: t0})
	h.sched.MarkRunning(t1)
	h.sched.Complete(scheduler.CompletionRecord{TaskID: t1})

	require.Equal(t, core.StateConsumed, h.sched.TaskState(t0))
	require.Equal(t, core.StateConsumed, h.sched.TaskState(t1))
	require.Equal(t, uint32(2), h.win.LastTaskAlive())
}

func TestScopeEndUnderflowIsPrecondition(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	err := h.orch.ScopeEnd()
	require.Error(t, err)
	var pe *core.PreconditionError
	require.ErrorAs(t, err, &pe)
}

func TestConsumerSeesOnlyItsOwnProducerOutput(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)

	out0 := region.LogicalTensor{RawBase: 0x9000, MinByteOffset: 0, MaxByteOffset: 63}
	out1 := region.LogicalTensor{RawBase: 0xA000, MinByteOffset: 0, MaxByteOffset: 127}

	producer, err := h.orch.Submit(1, core.WorkerCube, func([][]byte) {}, "multiout", []Param{
		{Kind: ParamOutput, Tensor: out0, Size: 64},
		{Kind: ParamOutput, Tensor: out1, Size: 128},
	})
	require.NoError(t, err)

	consumer0, err := h.orch.Submit(2, core.WorkerVector, func([][]byte) {}, "readsFirst", []Param{
		{Kind: ParamInput, Tensor: out0},
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0xB000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)

	consumer1, err := h.orch.Submit(3, core.WorkerVector, func([][]byte) {}, "readsSecond", []Param{
		{Kind: ParamInput, Tensor: out1},
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0xC000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)

	pdesc := h.win.Get(producer)
	require.Equal(t, 2, pdesc.NumOutputs)

	// Each consumer's single input arg (args[1], after its own output at
	// args[0]) must be sized exactly to the one producer output it
	// overlaps, never the producer's combined 64+128 packed buffer.
	d0 := h.win.Get(consumer0)
	require.Len(t, d0.Args, 2)
	require.EqualValues(t, 64, len(d0.Args[1]))

	d1 := h.win.Get(consumer1)
	require.Len(t, d1.Args, 2)
	require.EqualValues(t, 128, len(d1.Args[1]))

	// The two views must not alias the same bytes.
	require.NotEqual(t, &d0.Args[1][0], &d1.Args[1][0])
}

func TestDeferredInitModeDiscoveredByPoll(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)

	id, err := h.orch.Submit(1, core.WorkerCube, func([][]byte) {}, "rowmax", []Param{
		{Kind: ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x8000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
	})
	require.NoError(t, err)
	require.Equal(t, core.StatePending, h.sched.TaskState(id))

	stop := make(chan struct{})
	go h.sched.Run(stop)
	h.sched.SetOrchestrationDone()

	require.Eventually(t, func() bool {
		return h.sched.TaskState(id) == core.StateReady
	}, time.Second, 5*time.Millisecond)
	close(stop)
}
