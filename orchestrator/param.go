package orchestrator

import "github.com/hengliao1972/pto-isa-sub000/region"

// ParamKind classifies how a Submit parameter is used, mirroring the
// spec's {kind, buffer, tile_index, size} parameter tuple (spec.md §3).
type ParamKind uint8

const (
	ParamInput ParamKind = iota
	ParamOutput
	ParamInOut
)

func (k ParamKind) String() string {
	switch k {
	case ParamInput:
		return "INPUT"
	case ParamOutput:
		return "OUTPUT"
	case ParamInOut:
		return "INOUT"
	default:
		return "UNKNOWN"
	}
}

func (k ParamKind) isInput() bool  { return k == ParamInput || k == ParamInOut }
func (k ParamKind) isOutput() bool { return k == ParamOutput || k == ParamInOut }

// Param is one argument to Submit. Tensor identifies the logical byte
// range this parameter touches, keyed by the caller's original address
// (spec.md §4.4 step 5: "regions are keyed by the caller's original
// address, not the packed buffer address"). Size is the number of bytes
// to reserve in the output heap and is only read for OUTPUT/INOUT kinds.
// External supplies the byte view for an INPUT/INOUT parameter that no
// task submitted through this runtime has ever produced (a program input
// fed in from outside the dataflow graph); it is ignored once a producer
// is found in the region index.
type Param struct {
	Kind     ParamKind
	Tensor   region.LogicalTensor
	Size     uint64
	External []byte
}
