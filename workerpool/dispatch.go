package workerpool

import "github.com/hengliao1972/pto-isa-sub000/scheduler"

// executeTask runs the real kernel callback (spec.md §4.6 "Execute
// mode"). Kernels have no error channel; a nil FuncPtr is a submission
// bug and is logged rather than panicking the worker.
func (p *Pool) executeTask(taskID uint32) {
	desc := p.sched.Window().Get(taskID)
	if desc.FuncPtr == nil {
		p.log.Error().Uint32("task_id", taskID).Msg("task has no kernel, skipping")
		return
	}
	desc.FuncPtr(desc.Args)
}

// simulateTask estimates cycles instead of calling the kernel (spec.md
// §4.6 "Simulation mode"), and records the resulting window on the
// worker's completion record for the scheduler to publish and trace.
func (p *Pool) simulateTask(workerID int, taskID uint32, currentCycle *uint64) (start, end uint64) {
	desc := p.sched.Window().Get(taskID)

	start = *currentCycle
	for _, faninEnd := range p.sched.FaninEndCycles(taskID) {
		if faninEnd > start {
			start = faninEnd
		}
	}

	dataSize := int(desc.PackedBufferEnd - desc.PackedBufferBase)
	cycles := scheduler.EstimateCycles(desc.FuncName, dataSize)
	end = start + cycles
	*currentCycle = end
	return start, end
}
