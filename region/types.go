// Package region implements the tensor-region overlap index: given a raw
// memory address plus an access pattern, it answers which recently
// submitted tasks last wrote a byte range overlapping it. The index is the
// sole mechanism by which the orchestrator discovers producer-consumer
// edges between tasks (see orchestrator.Submit).
package region

// ExtractionType classifies how a LogicalTensor's byte range was derived
// from some other tensor, mirroring the legacy TensorRegion's implicit
// "whole buffer" semantics plus the extended view/reshape/transpose forms.
type ExtractionType uint8

const (
	Raw ExtractionType = iota
	View
	Reshape
	Transpose
	DeepView
	DeepReshape
	DeepTranspose
)

// IsDeepCopy reports whether t denotes an independently-allocated copy
// rather than a view into the source tensor's storage. Deep-copy tensors
// never alias their source (spec design note: "Deep-copy semantics").
func (t ExtractionType) IsDeepCopy() bool {
	switch t {
	case DeepView, DeepReshape, DeepTranspose:
		return true
	default:
		return false
	}
}

func (t ExtractionType) String() string {
	switch t {
	case Raw:
		return "RAW"
	case View:
		return "VIEW"
	case Reshape:
		return "RESHAPE"
	case Transpose:
		return "TRANSPOSE"
	case DeepView:
		return "DEEP_VIEW"
	case DeepReshape:
		return "DEEP_RESHAPE"
	case DeepTranspose:
		return "DEEP_TRANSPOSE"
	default:
		return "UNKNOWN"
	}
}

// TensorRegion is the legacy, coarse region descriptor: a whole tile
// identified by base pointer, tile index, byte offset and size. Two
// regions are identical iff every field matches.
type TensorRegion struct {
	BasePtr   uintptr
	TileIndex uint32
	Offset    uint64
	Size      uint64
}

// Equal reports whether r and other describe the identical region.
func (r TensorRegion) Equal(other TensorRegion) bool {
	return r == other
}

// AsLogicalTensor promotes a legacy TensorRegion into the extended,
// contiguous 1-D form so both can flow through the same overlap predicate.
func (r TensorRegion) AsLogicalTensor() LogicalTensor {
	return LogicalTensor{
		RawBase:        r.BasePtr,
		RawTotalSize:   r.Offset + r.Size,
		StorageOffset:  r.Offset,
		NDim:           1,
		Shape:          []uint64{r.Size},
		Strides:        []uint64{1},
		ElemSize:       1,
		Numel:          r.Size,
		MinByteOffset:  r.Offset,
		MaxByteOffset:  r.Offset + r.Size - 1,
		ExtractionType: Raw,
		IsContiguous:   true,
	}
}

// LogicalTensor is the extended access-pattern descriptor: a strided,
// possibly multi-dimensional view into a raw buffer. The byte set it
// touches is { StorageOffset + sum(i_d*Strides[d]) + [0, ElemSize) |
// 0 <= i_d < Shape[d] }.
type LogicalTensor struct {
	RawBase        uintptr
	RawTotalSize   uint64
	StorageOffset  uint64
	NDim           int
	Shape          []uint64
	Strides        []uint64
	ElemSize       uint64
	Numel          uint64
	MinByteOffset  uint64
	MaxByteOffset  uint64
	ExtractionType ExtractionType
	IsContiguous   bool
}

// NewContiguousTensor builds a row-major, contiguous LogicalTensor from a
// shape, computing strides, numel and the byte-range bounding box.
func NewContiguousTensor(base uintptr, storageOffset uint64, shape []uint64, elemSize uint64) LogicalTensor {
	ndim := len(shape)
	strides := make([]uint64, ndim)
	numel := uint64(1)
	for i := ndim - 1; i >= 0; i-- {
		strides[i] = numel
		numel *= shape[i]
	}
	for i := range strides {
		strides[i] *= elemSize
	}

	minOff := storageOffset
	maxOff := storageOffset
	if numel > 0 {
		maxOff = storageOffset + numel*elemSize - 1
	}

	return LogicalTensor{
		RawBase:        base,
		RawTotalSize:   maxOff + 1,
		StorageOffset:  storageOffset,
		NDim:           ndim,
		Shape:          append([]uint64(nil), shape...),
		Strides:        strides,
		ElemSize:       elemSize,
		Numel:          numel,
		MinByteOffset:  minOff,
		MaxByteOffset:  maxOff,
		ExtractionType: Raw,
		IsContiguous:   true,
	}
}

// Transpose returns a new LogicalTensor with shape and strides permuted by
// perm (perm[i] names the source dimension feeding output dimension i).
// The bounding box (Min/MaxByteOffset) is invariant under permutation.
func (t LogicalTensor) Transpose(perm []int) LogicalTensor {
	out := t
	out.Shape = make([]uint64, len(perm))
	out.Strides = make([]uint64, len(perm))
	for i, p := range perm {
		out.Shape[i] = t.Shape[p]
		out.Strides[i] = t.Strides[p]
	}
	out.ExtractionType = Transpose
	out.IsContiguous = isContiguousRowMajor(out.Shape, out.Strides, out.ElemSize)
	return out
}

// InversePermutation returns the permutation pi such that applying it to
// the output of perm recovers the original ordering, satisfying
// transpose(transpose(t, perm), inverse(perm)) == t.
func InversePermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

func isContiguousRowMajor(shape, strides []uint64, elemSize uint64) bool {
	expected := elemSize
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] <= 1 {
			continue
		}
		if strides[i] != expected {
			return false
		}
		expected *= shape[i]
	}
	return true
}

// entry is the region-index's internal node, one per inserted tensor
// (TensorMapEntryEx). Entries never individually free; staleness is
// detected by comparing producerTaskID against the index's validity
// threshold and physically unlinked in bulk by CleanupRetired.
//
// The spec's "next_in_bucket" is an offset into a bump-allocated pool (an
// arena+index pattern suited to a non-GC'd language); here it is a plain
// *entry pointer, since Go's garbage collector already makes a pointer
// chain both simpler and safe to hold onto without the bump-pool
// indirection.
type entry struct {
	rawBase        uintptr
	minByteOffset  uint64
	maxByteOffset  uint64
	storageOffset  uint64
	shape          []uint64
	strides        []uint64
	ndim           int
	producerTaskID uint32
	outputIndex    uint32 // which of producerTaskID's outputs this entry denotes
	next           *entry // bucket chain, newest-first; nil = end
	isDeepCopy     bool
}
