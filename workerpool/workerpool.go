// Package workerpool runs the per-worker-type goroutines that pop ready
// tasks, execute (or simulate) them, and report completion. Grounded on
// the teacher's Engine.worker loop (runtime/runtime.go: "for taskGroup :=
// range e.scheduler.ready"), generalized from one shared ready channel per
// engine to one ReadyQueue per worker type, and from a bare
// sync.WaitGroup to golang.org/x/sync/errgroup for start-up/shutdown
// lifecycle and first-error propagation.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/scheduler"
	"github.com/rs/zerolog"
)

// Options configures the pool.
type Options struct {
	Scheduler   *scheduler.Scheduler
	CubeCount   int
	VectorCount int
	AICPUCount  int
	AccelCount  int
	Simulation  bool
	Log         zerolog.Logger
}

func (o Options) countFor(wt core.WorkerType) int {
	switch wt {
	case core.WorkerCube:
		return o.CubeCount
	case core.WorkerVector:
		return o.VectorCount
	case core.WorkerAICPU:
		return o.AICPUCount
	case core.WorkerAccelerator:
		return o.AccelCount
	default:
		return 0
	}
}

// Pool owns every worker goroutine for every worker type.
type Pool struct {
	opts    Options
	sched   *scheduler.Scheduler
	log     zerolog.Logger
	workers int
}

// New constructs a pool; call Start to spawn the goroutines.
func New(opts Options) *Pool {
	total := opts.CubeCount + opts.VectorCount + opts.AICPUCount + opts.AccelCount
	return &Pool{
		opts:    opts,
		sched:   opts.Scheduler,
		log:     opts.Log.With().Str("component", "workerpool").Logger(),
		workers: total,
	}
}

// Start spawns all worker goroutines under an errgroup and blocks the
// caller (spec.md §5 "start-up barrier") until every worker has posted
// ready, mirroring "workers post-signal a counter; scheduler waits for
// workers_ready == N". Returns a function that waits for every worker to
// exit (after ctx is cancelled or Shutdown is called) and returns the
// first worker error, if any — errgroup's native "wait for all N, keep
// first error" behavior is exactly what spec.md §5's shutdown join needs,
// even though in practice workers never return an error (spec.md §7.4:
// no error crosses the worker boundary).
func (p *Pool) Start(ctx context.Context) (wait func() error) {
	g, gctx := errgroup.WithContext(ctx)

	ready := make(chan struct{}, p.workers)
	workerID := 0
	for wt := core.WorkerType(0); int(wt) < core.NumWorkerTypes; wt++ {
		n := p.opts.countFor(wt)
		for i := 0; i < n; i++ {
			id := workerID
			workerID++
			wtCopy := wt
			g.Go(func() error {
				p.runWorker(gctx, id, wtCopy, ready)
				return nil
			})
		}
	}

	for i := 0; i < p.workers; i++ {
		<-ready
	}
	p.log.Debug().Int("workers", p.workers).Msg("all workers posted ready")

	return g.Wait
}

// runWorker is one worker's execute/simulate loop (spec.md §4.6).
func (p *Pool) runWorker(ctx context.Context, id int, wt core.WorkerType, ready chan<- struct{}) {
	var currentCycle uint64
	ready <- struct{}{}

	queue := p.sched.ReadyQueue(wt)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var cyclePtr *uint64
		if p.opts.Simulation {
			cyclePtr = &currentCycle
		}
		taskID, ok := queue.Pop(cyclePtr)
		if !ok {
			return // queue was shut down
		}

		p.sched.MarkRunning(taskID)

		rec := scheduler.CompletionRecord{TaskID: taskID, WorkerID: id}
		if p.opts.Simulation {
			rec.StartCycle, rec.EndCycle = p.simulateTask(id, taskID, &currentCycle)
		} else {
			p.executeTask(taskID)
		}

		p.sched.Completions().Push(rec)
	}
}
