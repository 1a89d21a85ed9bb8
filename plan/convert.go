package plan

import (
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/region"
)

// ToParam builds the orchestrator.Param this ParamSpec describes. The
// resulting LogicalTensor is intentionally the minimal contiguous
// literal form (RawBase + byte bounds only, no Shape/Strides), matching
// how orchestrator_test.go constructs tensors directly: plan fixtures
// only need enough of LogicalTensor to drive overlap detection, not a
// fully reconstructed strided view.
func (ps ParamSpec) ToParam() orchestrator.Param {
	return orchestrator.Param{
		Kind: ps.Kind,
		Tensor: region.LogicalTensor{
			RawBase:       uintptr(ps.RawBase),
			MinByteOffset: ps.MinByteOffset,
			MaxByteOffset: ps.MaxByteOffset,
		},
		Size: ps.Size,
	}
}

// ToParams returns the orchestrator.Param list for a Task, in order.
func (t Task) ToParams() []orchestrator.Param {
	out := make([]orchestrator.Param, len(t.Params))
	for i, ps := range t.Params {
		out[i] = ps.ToParam()
	}
	return out
}
