// Package plan defines a deterministic, serializable sequence of
// submit_task calls for replay and benchmark fixtures: a Task per
// submission and a ParamSpec per Submit argument, in the exact order
// they should reach orchestrator.Submit. Dependencies are never
// recorded explicitly — precisely as the live system works, a task's
// fanin is discovered from tensor overlap against prior tasks' outputs
// (spec.md §4.3/§4.4), not declared up front.
//
// Grounded on the teacher's model.Graph/model.Node binary format
// (model/graph.go, now removed): same magic-header-then-fixed-records
// shape, generalized from a fixed-size Node record (ID/In/Out/Kernel/
// Flags/Topo) to a variable-length Task record (kernel_id, worker_type,
// func_name, a list of ParamSpec).
package plan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
)

const (
	magic   uint32 = 0x50544F50 // "PTOP"
	version uint16 = 1
)

// ParamSpec is the serializable form of orchestrator.Param: RawBase,
// MinByteOffset and MaxByteOffset describe the LogicalTensor's byte
// set the same way spec.md §3 does, kept flat here rather than the
// full strided LogicalTensor since plan fixtures only need the
// contiguous, non-strided case to exercise overlap/fanin wiring.
type ParamSpec struct {
	Kind          orchestrator.ParamKind
	RawBase       uint64
	MinByteOffset uint64
	MaxByteOffset uint64
	Size          uint64
}

// Task is one submit_task call.
type Task struct {
	ID         uint32
	KernelID   uint32
	FuncName   string
	WorkerType core.WorkerType
	Params     []ParamSpec
}

// Plan is an ordered, immutable list of Tasks.
type Plan struct {
	Tasks []Task
}

// TaskCount returns the number of tasks in the plan.
func (p *Plan) TaskCount() int { return len(p.Tasks) }

// Validate checks for duplicate task IDs and malformed params, the
// plan-level analogue of model.Graph.Validate's duplicate-ID check.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}
	seen := make(map[uint32]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("duplicate task ID: %d", t.ID)
		}
		seen[t.ID] = true
		for i, ps := range t.Params {
			if ps.MaxByteOffset < ps.MinByteOffset {
				return fmt.Errorf("task %d param %d: max offset %d < min offset %d", t.ID, i, ps.MaxByteOffset, ps.MinByteOffset)
			}
			if (ps.Kind == orchestrator.ParamOutput || ps.Kind == orchestrator.ParamInOut) && ps.Size == 0 {
				return fmt.Errorf("task %d param %d: output/inout param has zero size", t.ID, i)
			}
		}
	}
	return nil
}

// Serialize writes the Plan to a byte slice using a binary format
// modeled on the teacher's model.Graph.Serialize: a magic/version
// header, then one fixed-prefix-plus-variable record per task.
func (p *Plan) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, magic); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, version); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(p.Tasks))); err != nil {
		return nil, err
	}

	for _, t := range p.Tasks {
		if err := writeTask(&buf, t); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeTask(buf *bytes.Buffer, t Task) error {
	fields := []any{t.ID, t.KernelID, uint8(t.WorkerType)}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	name := []byte(t.FuncName)
	if len(name) > 255 {
		return fmt.Errorf("task %d: func name %q exceeds 255 bytes", t.ID, t.FuncName)
	}
	if err := buf.WriteByte(uint8(len(name))); err != nil {
		return err
	}
	if _, err := buf.Write(name); err != nil {
		return err
	}

	if err := binary.Write(buf, binary.LittleEndian, uint16(len(t.Params))); err != nil {
		return err
	}
	for _, ps := range t.Params {
		if err := writeParam(buf, ps); err != nil {
			return err
		}
	}
	return nil
}

func writeParam(buf *bytes.Buffer, ps ParamSpec) error {
	fields := []any{uint8(ps.Kind), ps.RawBase, ps.MinByteOffset, ps.MaxByteOffset, ps.Size}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize parses the binary format written by Serialize.
func Deserialize(data []byte) (*Plan, error) {
	r := bytes.NewReader(data)

	var m uint32
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return nil, err
	}
	if m != magic {
		return nil, fmt.Errorf("invalid plan magic: %#x", m)
	}

	var v uint16
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	if v != version {
		return nil, fmt.Errorf("unsupported plan version: %d", v)
	}

	var taskCount uint32
	if err := binary.Read(r, binary.LittleEndian, &taskCount); err != nil {
		return nil, err
	}

	tasks := make([]Task, taskCount)
	for i := range tasks {
		t, err := readTask(r)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		tasks[i] = t
	}

	return &Plan{Tasks: tasks}, nil
}

func readTask(r *bytes.Reader) (Task, error) {
	var t Task
	var id, kernelID uint32
	var wt uint8
	for _, dst := range []any{&id, &kernelID, &wt} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return Task{}, err
		}
	}
	t.ID, t.KernelID, t.WorkerType = id, kernelID, core.WorkerType(wt)

	nameLen, err := r.ReadByte()
	if err != nil {
		return Task{}, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Task{}, err
	}
	t.FuncName = string(name)

	var paramCount uint16
	if err := binary.Read(r, binary.LittleEndian, &paramCount); err != nil {
		return Task{}, err
	}
	t.Params = make([]ParamSpec, paramCount)
	for i := range t.Params {
		ps, err := readParam(r)
		if err != nil {
			return Task{}, fmt.Errorf("param %d: %w", i, err)
		}
		t.Params[i] = ps
	}

	return t, nil
}

func readParam(r *bytes.Reader) (ParamSpec, error) {
	var kind uint8
	var ps ParamSpec
	fields := []any{&kind, &ps.RawBase, &ps.MinByteOffset, &ps.MaxByteOffset, &ps.Size}
	for _, dst := range fields {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return ParamSpec{}, err
		}
	}
	ps.Kind = orchestrator.ParamKind(kind)
	return ps, nil
}
