// Package orchestrator implements the submission pipeline: translating a
// user submit(kernel, worker_type, params[]) call into a fully-wired task
// descriptor with resolved dependencies and a packed output buffer.
// Grounded on the teacher's compiler.Compile straight-line pipeline style
// (loadAndParseSpec -> writeSimpleGraph in compiler/compiler.go),
// generalized from a one-shot file transform into a per-submission
// pipeline, and on Engine's small-function decomposition style
// (createBaseEngine / setupEngineArena / initializeEngineComponents in
// runtime/runtime.go) for Submit's internal steps.
package orchestrator

import (
	"github.com/rs/zerolog"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/deppool"
	"github.com/hengliao1972/pto-isa-sub000/heapring"
	"github.com/hengliao1972/pto-isa-sub000/region"
	"github.com/hengliao1972/pto-isa-sub000/scheduler"
	"github.com/hengliao1972/pto-isa-sub000/taskwindow"
)

// MaxScopeDepth bounds the nested-scope stack (spec.md §4.4).
const MaxScopeDepth = 64

// Options wires an Orchestrator to the shared runtime components it
// drives. InitOnSubmit must match the Scheduler's own setting.
type Options struct {
	Window       *taskwindow.Window
	Heap         *heapring.Ring
	Regions      *region.Index
	Deps         *deppool.Pool
	Scheduler    *scheduler.Scheduler
	InitOnSubmit bool
	Log          zerolog.Logger
}

// Orchestrator runs submit_task, scope_begin/scope_end for a single
// orchestration routine. It is not safe for concurrent use by more than
// one goroutine, matching spec.md §4: "one orchestrator thread".
type Orchestrator struct {
	window       *taskwindow.Window
	heap         *heapring.Ring
	regions      *region.Index
	deps         *deppool.Pool
	sched        *scheduler.Scheduler
	initOnSubmit bool
	log          zerolog.Logger

	scopeStack []uint32

	lastObservedRetired uint32
}

// New constructs an Orchestrator over an already-built set of runtime
// components.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		window:       opts.Window,
		heap:         opts.Heap,
		regions:      opts.Regions,
		deps:         opts.Deps,
		sched:        opts.Scheduler,
		initOnSubmit: opts.InitOnSubmit,
		log:          opts.Log.With().Str("component", "orchestrator").Logger(),
		scopeStack:   make([]uint32, 0, MaxScopeDepth),
	}
}

// ScopeBegin pushes the task_id that will be assigned to the next Submit
// call onto the scope stack (spec.md §4.4). Every task submitted while a
// scope is open carries one extra fanout reference owned by that scope,
// released by the matching ScopeEnd.
func (o *Orchestrator) ScopeBegin() error {
	if len(o.scopeStack) >= MaxScopeDepth {
		return core.ErrPrecondition("orchestrator: scope stack overflow, max depth %d", MaxScopeDepth)
	}
	o.scopeStack = append(o.scopeStack, o.window.CurrentTaskIndex())
	return nil
}

// ScopeEnd pops the matching ScopeBegin mark and releases one scope
// reference for every task submitted since, in [begin_pos, end_pos)
// (spec.md §4.4, "inclusive-exclusive").
func (o *Orchestrator) ScopeEnd() error {
	if len(o.scopeStack) == 0 {
		return core.ErrPrecondition("orchestrator: scope stack underflow")
	}
	n := len(o.scopeStack) - 1
	begin := o.scopeStack[n]
	o.scopeStack = o.scopeStack[:n]

	end := o.window.CurrentTaskIndex()
	for id := begin; id < end; id++ {
		o.sched.ReleaseReference(id)
	}
	return nil
}

// Submit runs the full submission pipeline (spec.md §4.4) for one task and
// returns its task_id.
func (o *Orchestrator) Submit(kernelID uint32, wt core.WorkerType, fn core.KernelFunc, funcName string, params []Param) (uint32, error) {
	o.syncRegionValidity()

	taskID := o.window.Alloc()
	slotDesc := o.window.Get(taskID)
	slotDesc.Reset()
	slotDesc.TaskID = taskID
	slotDesc.KernelID = kernelID
	slotDesc.WorkerType = wt
	slotDesc.FuncPtr = fn
	slotDesc.FuncName = funcName
	slotDesc.ScopeDepth = len(o.scopeStack)
	slotDesc.FanoutCount = uint32(len(o.scopeStack))

	faninIDs, producerByParam, preSatisfied, err := o.resolveFanin(taskID, params)
	if err != nil {
		return 0, err
	}

	outputOffsets, totalSize, err := o.packOutputs(slotDesc, params)
	if err != nil {
		return 0, err
	}

	outIdx := 0
	for _, p := range params {
		if p.Kind.isOutput() {
			o.regions.Insert(p.Tensor, taskID, uint32(outIdx))
			outIdx++
		}
	}

	head := uint32(0)
	for _, producerID := range faninIDs {
		head, err = o.deps.Append(producerID, head)
		if err != nil {
			return 0, err
		}
	}
	slotDesc.FaninHead = head
	slotDesc.FaninCount = uint32(len(faninIDs))

	slotDesc.Args = o.buildArgs(params, outputOffsets, producerByParam)
	slotDesc.NumOutputs = len(outputOffsets)
	for _, p := range params {
		if p.Kind.isInput() {
			slotDesc.NumInputs++
		}
	}
	_ = totalSize

	o.window.PublishSubmitted(taskID + 1)

	if preSatisfied > 0 {
		o.sched.PreAddFaninRefs(taskID, preSatisfied)
	}
	if o.initOnSubmit {
		o.sched.InitTask(taskID)
	}

	return taskID, nil
}

// faninSource identifies the exact producer output an INPUT/INOUT param
// resolved to: the producer task and which of its (possibly several,
// core.MaxOutputsPerTask-bounded) outputs the region-index match landed
// on, since a consumer must only ever see the one tensor it overlaps, not
// its producer's entire packed buffer.
type faninSource struct {
	producerID  uint32
	outputIndex uint32
}

// resolveFanin walks INPUT/INOUT params, looking each one up in the
// region index and wiring add_consumer edges for every distinct producer
// found (spec.md §4.4 step 3). producerByParam records, per param index,
// which producer output (if any) that exact param resolved to, so
// buildArgs can later find the right buffer view without re-querying a
// region index that Submit's Insert calls (right after packOutputs) are
// about to overwrite with this task's own records. preSatisfied counts producers that had already reached
// COMPLETED by the time their edge was wired.
func (o *Orchestrator) resolveFanin(taskID uint32, params []Param) (faninIDs []uint32, producerByParam map[int]faninSource, preSatisfied uint32, err error) {
	seen := make(map[uint32]bool)
	producerByParam = make(map[int]faninSource)
	for i, p := range params {
		if !p.Kind.isInput() {
			continue
		}
		producerID, outputIndex, ok := o.regions.Lookup(p.Tensor)
		if !ok {
			continue
		}
		producerByParam[i] = faninSource{producerID: producerID, outputIndex: outputIndex}
		if seen[producerID] {
			continue
		}
		seen[producerID] = true
		faninIDs = append(faninIDs, producerID)

		alreadyDone, aerr := o.addConsumer(producerID, taskID)
		if aerr != nil {
			return nil, nil, 0, aerr
		}
		if alreadyDone {
			preSatisfied++
		}
	}
	return faninIDs, producerByParam, preSatisfied, nil
}

// addConsumer prepends consumerID to producerID's fanout list under the
// producer's FanoutLock and reports whether the producer had already
// reached COMPLETED (spec.md §4.4 "add_consumer").
func (o *Orchestrator) addConsumer(producerID, consumerID uint32) (alreadyCompleted bool, err error) {
	pdesc := o.window.Get(producerID)

	pdesc.FanoutLock.Lock()
	defer pdesc.FanoutLock.Unlock()

	head, aerr := o.deps.Append(consumerID, pdesc.FanoutHead)
	if aerr != nil {
		return false, aerr
	}
	pdesc.FanoutHead = head
	pdesc.FanoutCount++

	return o.sched.TaskState(producerID) >= core.StateCompleted, nil
}

// packOutputs sums the rounded-up sizes of every OUTPUT/INOUT param, heap
// allocates the combined buffer, and returns each param's physical offset
// into the ring in parameter order (spec.md §4.4 steps 2 and 4).
func (o *Orchestrator) packOutputs(desc *core.TaskDescriptor, params []Param) (offsets map[int]uint64, total uint64, err error) {
	offsets = make(map[int]uint64)
	numOutputs := 0
	var rel uint64
	relOffsets := make(map[int]uint64)
	for i, p := range params {
		if !p.Kind.isOutput() {
			continue
		}
		numOutputs++
		if numOutputs > core.MaxOutputsPerTask {
			return nil, 0, core.ErrPrecondition("orchestrator: task has more than %d outputs", core.MaxOutputsPerTask)
		}
		relOffsets[i] = rel
		rel += uint64(core.AlignedSize(uintptr(p.Size)))
	}
	total = rel

	var physStart uint64
	if total > 0 {
		physStart = o.heap.Alloc(total)
	}
	virtualEnd := o.heap.Top()
	desc.PackedBufferBase = virtualEnd - total
	desc.PackedBufferEnd = virtualEnd

	idx := 0
	for i, p := range params {
		if !p.Kind.isOutput() {
			continue
		}
		phys := physStart + relOffsets[i]
		offsets[i] = phys
		if idx < core.MaxOutputsPerTask {
			desc.OutputOffsets[idx] = phys
			desc.OutputSizes[idx] = p.Size
		}
		idx++
	}
	return offsets, total, nil
}

// buildArgs assembles the kernel-call views, outputs first then inputs
// (spec.md §9 "Dynamic dispatch of kernels"). An INOUT param contributes
// to both halves: the fresh output slot it was just packed into, and the
// prior value it reads as an input.
func (o *Orchestrator) buildArgs(params []Param, outputOffsets map[int]uint64, producerByParam map[int]faninSource) [][]byte {
	var outArgs, inArgs [][]byte
	for i, p := range params {
		if p.Kind.isOutput() {
			outArgs = append(outArgs, o.heap.View(outputOffsets[i], p.Size))
		}
		if p.Kind.isInput() {
			src, ok := producerByParam[i]
			inArgs = append(inArgs, o.inputView(p, src, ok))
		}
	}
	return append(outArgs, inArgs...)
}

// inputView resolves the byte view an INPUT/INOUT param reads from: the
// one specific output of the producer resolveFanin matched it to (never
// the producer's whole packed buffer, which may also hold unrelated
// sibling outputs when core.MaxOutputsPerTask > 1), or the caller-supplied
// External buffer when no such producer exists (the tensor is a program
// input, never written by this runtime).
func (o *Orchestrator) inputView(p Param, src faninSource, hasProducer bool) []byte {
	if !hasProducer {
		return p.External
	}
	pdesc := o.window.Get(src.producerID)
	if int(src.outputIndex) >= pdesc.NumOutputs || src.outputIndex >= core.MaxOutputsPerTask {
		return nil
	}
	offset := pdesc.OutputOffsets[src.outputIndex]
	size := pdesc.OutputSizes[src.outputIndex]
	return o.heap.View(offset, size)
}

// syncRegionValidity implements spec.md §4.4 step 1: publish the new
// staleness threshold to the region index, and drive cleanup_retired once
// per newly-retired task so region.CleanupRetired's
// PTO2_TENSORMAP_CLEANUP_INTERVAL cadence advances with real retirements
// rather than with submission calls.
func (o *Orchestrator) syncRegionValidity() {
	cur := o.window.LastTaskAlive()
	for o.lastObservedRetired < cur {
		o.regions.NoteRetired()
		o.lastObservedRetired++
	}
	o.regions.SyncValidity(cur)
}
