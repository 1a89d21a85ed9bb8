package kernels

import (
	"sync"

	"github.com/hengliao1972/pto-isa-sub000/core"
)

// Kernel IDs, generalized from the teacher's opcode catalog
// (kernels.Catalog [256]KernelFn) into a dynamically-registerable
// registry keyed by kernel_id (spec.md §6: "a kernels.Registry maps
// kernel_id -> KernelFunc").
const (
	KernelNoop = iota
	KernelReLU
	KernelSigmoid
	KernelTanh
	KernelAdd
	KernelMul
	KernelSoftmax
	KernelRowMax
	KernelRowSum
	KernelRowExpandSub
	KernelElemExp
	KernelGEMM
)

// Registry maps kernel_id to a KernelFunc, mirroring the teacher's
// kernelCatalog [256]KernelFn but grown into a map so kernel IDs need not
// be pre-declared in a fixed-size array (spec.md §9, "Dynamic dispatch of
// kernels").
type Registry struct {
	mu      sync.RWMutex
	kernels map[uint32]core.KernelFunc
}

// NewRegistry builds a registry pre-populated with the built-in kernels.
func NewRegistry() *Registry {
	r := &Registry{kernels: make(map[uint32]core.KernelFunc)}
	r.Register(KernelNoop, Noop)
	r.Register(KernelReLU, ReLU)
	r.Register(KernelSigmoid, Sigmoid)
	r.Register(KernelTanh, Tanh)
	r.Register(KernelAdd, Add)
	r.Register(KernelMul, Mul)
	r.Register(KernelSoftmax, Softmax)
	r.Register(KernelRowMax, RowMax)
	r.Register(KernelRowSum, RowSum)
	r.Register(KernelRowExpandSub, RowExpandSub)
	r.Register(KernelElemExp, ElemExp)
	r.Register(KernelGEMM, GEMM)
	return r
}

// Register adds or replaces the kernel for kernelID.
func (r *Registry) Register(kernelID uint32, fn core.KernelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kernels[kernelID] = fn
}

// Get looks up the kernel for kernelID.
func (r *Registry) Get(kernelID uint32) (core.KernelFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.kernels[kernelID]
	return fn, ok
}
