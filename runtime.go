package ptoruntime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hengliao1972/pto-isa-sub000/deppool"
	"github.com/hengliao1972/pto-isa-sub000/heapring"
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/region"
	"github.com/hengliao1972/pto-isa-sub000/scheduler"
	"github.com/hengliao1972/pto-isa-sub000/taskwindow"
	"github.com/hengliao1972/pto-isa-sub000/trace"
	"github.com/hengliao1972/pto-isa-sub000/workerpool"
)

// Options configures a Runtime, the root-package analogue of the
// teacher's EngineOptions (runtime/runtime.go, now removed in favor of
// this package and the purpose-built packages it wires together).
type Options struct {
	WindowSize         uint32
	HeapSize           uint64
	RegionBuckets      int
	DepPoolCapacity    int
	ReadyQueueCapacity int
	CompletionCapacity int

	CubeWorkers        int
	VectorWorkers      int
	AICPUWorkers       int
	AcceleratorWorkers int

	// Simulation gates the virtual-clock cycle model and trace
	// recording (spec.md §6) instead of running real kernels.
	Simulation bool
	// InitOnSubmit selects which of spec.md §9's two fanout_count
	// bookkeeping modes the scheduler and orchestrator run in.
	InitOnSubmit bool

	Log zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.WindowSize == 0 {
		o.WindowSize = 1024
	}
	if o.HeapSize == 0 {
		o.HeapSize = 16 << 20
	}
	if o.RegionBuckets == 0 {
		o.RegionBuckets = 256
	}
	if o.DepPoolCapacity == 0 {
		o.DepPoolCapacity = int(o.WindowSize) * 4
	}
	if o.ReadyQueueCapacity == 0 {
		o.ReadyQueueCapacity = int(o.WindowSize)
	}
	if o.CompletionCapacity == 0 {
		o.CompletionCapacity = int(o.WindowSize)
	}
	if o.CubeWorkers == 0 && o.VectorWorkers == 0 && o.AICPUWorkers == 0 && o.AcceleratorWorkers == 0 {
		o.CubeWorkers, o.VectorWorkers = 1, 1
	}
}

// Runtime owns one task window, heap ring, region index, dependency
// pool, scheduler and worker pool. It is not safe for concurrent Run
// calls — spec.md §4 assumes a single orchestrator thread per runtime.
type Runtime struct {
	opts Options
	log  zerolog.Logger

	window  *taskwindow.Window
	heap    *heapring.Ring
	regions *region.Index
	deps    *deppool.Pool
	sched   *scheduler.Scheduler
	pool    *workerpool.Pool

	mu     sync.Mutex
	closed bool
}

// New builds a Runtime from opts, validating configuration and
// constructing every owned component. Zero-valued fields in opts take
// the defaults from setDefaults.
func New(opts Options) (*Runtime, error) {
	opts.setDefaults()

	rt := &Runtime{opts: opts, log: opts.Log}
	if err := rt.build(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build() error {
	w, err := taskwindow.New(rt.opts.WindowSize, rt.log)
	if err != nil {
		return fmt.Errorf("task window: %w", err)
	}
	h, err := heapring.New(rt.opts.HeapSize, rt.log)
	if err != nil {
		return fmt.Errorf("heap ring: %w", err)
	}

	rt.window = w
	rt.heap = h
	rt.regions = region.NewIndex(rt.opts.RegionBuckets)
	rt.deps = deppool.New(rt.opts.DepPoolCapacity)
	rt.sched = scheduler.New(scheduler.Options{
		Window:             rt.window,
		Heap:               rt.heap,
		Deps:               rt.deps,
		ReadyQueueCapacity: rt.opts.ReadyQueueCapacity,
		CompletionCapacity: rt.opts.CompletionCapacity,
		Simulation:         rt.opts.Simulation,
		InitOnSubmit:       rt.opts.InitOnSubmit,
		Log:                rt.log,
	})
	rt.pool = workerpool.New(workerpool.Options{
		Scheduler:   rt.sched,
		CubeCount:   rt.opts.CubeWorkers,
		VectorCount: rt.opts.VectorWorkers,
		AICPUCount:  rt.opts.AICPUWorkers,
		AccelCount:  rt.opts.AcceleratorWorkers,
		Simulation:  rt.opts.Simulation,
		Log:         rt.log,
	})
	return nil
}

// Tracer exposes the scheduler's trace recorder (nil unless
// Options.Simulation is set).
func (rt *Runtime) Tracer() *trace.Recorder { return rt.sched.Tracer() }

// Run spawns the worker pool and the scheduler's drain loop, runs
// orchestration against a fresh Orchestrator, waits for every submitted
// task to reach CONSUMED, then tears the workers down. The orchestrator
// must only be used from inside orchestration — it is not safe to
// retain across calls.
func (rt *Runtime) Run(ctx context.Context, orchestration func(*orchestrator.Orchestrator) error) error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return fmt.Errorf("ptoruntime: Run called after Close")
	}
	rt.mu.Unlock()

	wait := rt.pool.Start(ctx)

	shutdown := make(chan struct{})
	schedDone := make(chan struct{})
	go func() {
		rt.sched.Run(shutdown)
		close(schedDone)
	}()

	o := orchestrator.New(orchestrator.Options{
		Window:       rt.window,
		Heap:         rt.heap,
		Regions:      rt.regions,
		Deps:         rt.deps,
		Scheduler:    rt.sched,
		InitOnSubmit: rt.opts.InitOnSubmit,
		Log:          rt.log,
	})

	orchErr := orchestration(o)

	rt.sched.SetOrchestrationDone()
	rt.sched.WaitUntilDone()

	close(shutdown)
	<-schedDone
	rt.sched.Shutdown()

	if waitErr := wait(); waitErr != nil && orchErr == nil {
		return fmt.Errorf("worker pool: %w", waitErr)
	}
	return orchErr
}

// Close releases the runtime. It is idempotent; a second Close is a
// no-op. Run must not be called concurrently with or after Close.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true
	rt.sched.Shutdown()
	return nil
}

// Reset discards all task/heap/region/dependency state and rebuilds
// the runtime's components fresh from the same Options, the
// root-package analogue of the teacher's Arena.ResetNodePayloads/
// ResetScratch bump-pointer reset (runtime/arena.go, now removed).
// Reset must not be called while a Run is in flight.
func (rt *Runtime) Reset() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return fmt.Errorf("ptoruntime: Reset called after Close")
	}
	return rt.build()
}
