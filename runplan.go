package ptoruntime

import (
	"fmt"

	"github.com/hengliao1972/pto-isa-sub000/kernels"
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/plan"
)

// RunPlan replays every task in p through orchestration's Submit calls,
// in order, looking each task's kernel up in reg. It is the bridge
// between the deterministic plan.Plan fixture format and a live Run:
// cmd/ptorun uses this instead of hand-writing orchestration callbacks.
func RunPlan(o *orchestrator.Orchestrator, reg *kernels.Registry, p *plan.Plan) error {
	for _, t := range p.Tasks {
		fn, ok := reg.Get(t.KernelID)
		if !ok {
			return fmt.Errorf("plan task %d: no kernel registered for kernel_id %d", t.ID, t.KernelID)
		}
		if _, err := o.Submit(t.KernelID, t.WorkerType, fn, t.FuncName, t.ToParams()); err != nil {
			return fmt.Errorf("plan task %d (%s): submit: %w", t.ID, t.FuncName, err)
		}
	}
	return nil
}
