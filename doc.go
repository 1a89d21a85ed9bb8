// Package ptoruntime implements a tensor-compute task-scheduling core:
// a fixed-size task window, a tensor-region overlap index for automatic
// dependency discovery, fanin/fanout refcount bookkeeping, per-worker-
// type ready queues, and a wrap-around output heap allocator.
//
// Unlike a model compiled once and replayed against static topology,
// every dependency edge here is discovered at submission time from
// tensor address overlap: submitting a task records which logical
// tensors it reads and writes, and the tensor-region index resolves any
// reader against the most recent writer of the same bytes. There is no
// declared dependency graph to load — an orchestration is a sequence of
// submit_task calls, made either directly or replayed from a plan.Plan
// fixture.
//
// # Architecture Overview
//
//   - taskwindow: a fixed-capacity ring of task descriptors, the slot
//     space every other package indexes into
//   - heapring: a wrap-around bump allocator for packed output buffers
//   - region: a hash-bucketed index resolving tensor overlap to a
//     producer task, keyed by raw base address; a bucket whose chain
//     grows long is promoted to an interval tree
//   - deppool: a bump-allocated pool backing the fanin/fanout adjacency
//     lists referenced from task descriptors
//   - orchestrator: the submit_task/scope_begin/scope_end pipeline
//   - scheduler: the PENDING->READY->RUNNING->COMPLETED->CONSUMED state
//     machine, simulation-mode virtual clocks, and trace recording
//   - workerpool: per-worker-type goroutines executing or simulating
//     ready tasks
//   - kernels: the built-in compute kernels and their id->func registry
//   - plan / compiler: a serializable task-plan format and DSL compiler
//     for deterministic replay and benchmark fixtures
//   - cmd: command-line tools (ptoc, ptorun, ptobench)
//
// # Basic Usage
//
//	rt, err := ptoruntime.New(ptoruntime.Options{WindowSize: 1024, HeapSize: 1 << 20})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	err = rt.Run(ctx, func(o *orchestrator.Orchestrator) error {
//	    _, err := o.Submit(kernels.KernelReLU, core.WorkerVector, kernels.ReLU, "relu", params)
//	    return err
//	})
package ptoruntime
