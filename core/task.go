package core

import "sync/atomic"

// WorkerType identifies the category of compute resource a task targets.
type WorkerType uint8

const (
	WorkerCube WorkerType = iota
	WorkerVector
	WorkerAICPU
	WorkerAccelerator
	numWorkerTypes
)

// NumWorkerTypes is the count of distinct WorkerType values, used to size
// per-type arrays (ready queues, worker-current-cycle tables).
const NumWorkerTypes = int(numWorkerTypes)

func (t WorkerType) String() string {
	switch t {
	case WorkerCube:
		return "CUBE"
	case WorkerVector:
		return "VECTOR"
	case WorkerAICPU:
		return "AI_CPU"
	case WorkerAccelerator:
		return "ACCELERATOR"
	default:
		return "UNKNOWN"
	}
}

// TaskState is the per-slot lifecycle state a task moves through:
// PENDING -> READY -> RUNNING -> COMPLETED -> CONSUMED.
type TaskState uint32

const (
	StatePending TaskState = iota
	StateReady
	StateRunning
	StateCompleted
	StateConsumed
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StateConsumed:
		return "CONSUMED"
	default:
		return "UNKNOWN"
	}
}

// KernelFunc is the opaque kernel callback. args carries output buffer
// views first, then input views, mirroring the array-of-pointers ABI
// convention used by pre-compiled kernel binaries.
type KernelFunc func(args [][]byte)

// MaxOutputsPerTask bounds a task descriptor's output_offsets array.
const MaxOutputsPerTask = 8

// TaskDescriptor is the plain-data record stored at each task-window slot.
// Fields are grouped by who mutates them (see the concurrency table):
// fanin fields are set once by the orchestrator with a release store;
// fanout fields are guarded by FanoutLock because the scheduler walks them
// concurrently with the orchestrator's add_consumer.
type TaskDescriptor struct {
	TaskID     uint32
	KernelID   uint32
	WorkerType WorkerType
	ScopeDepth int

	FuncPtr  KernelFunc
	FuncName string

	// Args holds the kernel-call views assembled by the orchestrator at
	// submission (outputs first, then referenced inputs), mirroring the
	// array-of-pointers ABI. Workers only read this; nothing mutates it
	// after submission.
	Args [][]byte

	// Fanin: set once at submission, read with acquire thereafter.
	FaninHead  uint32 // offset into the dependency pool; 0 = empty
	FaninCount uint32

	// Fanout: mutated under FanoutLock by both the orchestrator
	// (add_consumer) and the scheduler (walk-and-release on completion).
	FanoutLock  FanoutLock
	FanoutHead  uint32
	FanoutCount uint32

	PackedBufferBase uint64
	PackedBufferEnd  uint64
	OutputOffsets    [MaxOutputsPerTask]uint64
	OutputSizes      [MaxOutputsPerTask]uint64
	NumOutputs       int
	NumInputs        int

	IsActive atomic.Bool
}

// Reset clears a descriptor back to its zero lifecycle state so its slot
// can be reused by a new task_id. Callers must only call this after the
// previous occupant reached CONSUMED.
func (d *TaskDescriptor) Reset() {
	d.TaskID = 0
	d.KernelID = 0
	d.WorkerType = WorkerCube
	d.ScopeDepth = 0
	d.FuncPtr = nil
	d.FuncName = ""
	d.Args = nil
	d.FaninHead = 0
	d.FaninCount = 0
	d.FanoutHead = 0
	d.FanoutCount = 0
	d.PackedBufferBase = 0
	d.PackedBufferEnd = 0
	d.OutputOffsets = [MaxOutputsPerTask]uint64{}
	d.OutputSizes = [MaxOutputsPerTask]uint64{}
	d.NumOutputs = 0
	d.NumInputs = 0
	d.IsActive.Store(false)
}
