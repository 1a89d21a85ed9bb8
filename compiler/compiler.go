// Package compiler parses a text DSL describing a task plan into the
// binary plan.Plan format consumed by cmd/ptorun.
//
// Grounded on the teacher's compiler.Compile pipeline (parseSpec ->
// writeSimpleGraph) and its line-oriented directive parser (dslParser,
// "node"/"payload"/"iterate" directives), generalized from graph nodes
// with fixed In/Out payload offsets to plan tasks with a variable list
// of {kind, raw_base, min, max, size} params. The "iterate" construct
// is kept verbatim in spirit: it is how the teacher's DSL expresses
// batch-replicated work, and a benchmark fixture generating N
// independent chains needs exactly that.
//
// DSL grammar (one directive per line, '#' starts a comment):
//
//	task <id> <kernel_id> <worker_type> <func_name>
//	param <in|out|inout> <raw_base> <min_offset> [<max_offset> [size]]
//	iterate <var> <start> <end> { ... }
package compiler

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/plan"
)

// Compile reads a DSL source file, parses it into a plan.Plan, and
// writes the binary-serialized plan to out.
func Compile(src, out string) error {
	p, err := CompileToPlan(src)
	if err != nil {
		return err
	}
	return writePlan(p, out)
}

// CompileToPlan reads and parses a DSL source file without writing it.
func CompileToPlan(src string) (*plan.Plan, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	p, err := parseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	return p, nil
}

func writePlan(p *plan.Plan, out string) error {
	data, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("serialize plan: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// parseSpec parses the DSL and returns a Plan or an error on invalid
// syntax, mirroring the teacher's parseSpec/dslParser structure.
func parseSpec(src []byte) (*plan.Plan, error) {
	lines := strings.Split(string(src), "\n")
	var tasks []plan.Task

	parser := &dslParser{tasks: &tasks}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var err error
		i, err = parser.parseLine(lines, i)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", i+1, err)
		}
	}

	return &plan.Plan{Tasks: tasks}, nil
}

// dslParser holds parsing state across lines, identical in spirit to
// the teacher's dslParser but accumulating Tasks instead of Nodes.
type dslParser struct {
	tasks       *[]plan.Task
	currentTask *plan.Task
}

func (p *dslParser) parseLine(lines []string, idx int) (int, error) {
	line := strings.TrimSpace(lines[idx])
	fields := strings.Fields(line)

	switch fields[0] {
	case "iterate":
		return p.parseIterateBlock(lines, idx, fields)
	default:
		return idx, p.processSimpleLine(line, fields)
	}
}

func (p *dslParser) processSimpleLine(line string, fields []string) error {
	switch fields[0] {
	case "task":
		return p.parseTaskLine(fields)
	case "param":
		return p.parseParamLine(fields)
	default:
		return fmt.Errorf("unknown directive: %s", fields[0])
	}
}

func (p *dslParser) parseTaskLine(fields []string) error {
	if len(fields) < 5 {
		return fmt.Errorf("invalid task spec: needs id, kernel_id, worker_type, func_name")
	}
	t, err := parseTaskFields(fields)
	if err != nil {
		return err
	}
	*p.tasks = append(*p.tasks, t)
	p.currentTask = &(*p.tasks)[len(*p.tasks)-1]
	return nil
}

func (p *dslParser) parseParamLine(fields []string) error {
	if p.currentTask == nil {
		return fmt.Errorf("param directive before any task")
	}
	if len(fields) < 4 {
		return fmt.Errorf("invalid param spec: needs kind, raw_base, min")
	}
	ps, err := parseParamFields(fields)
	if err != nil {
		return err
	}
	p.currentTask.Params = append(p.currentTask.Params, ps)
	return nil
}

func (p *dslParser) parseIterateBlock(lines []string, idx int, fields []string) (int, error) {
	if len(fields) < 4 {
		return idx, fmt.Errorf("invalid iterate spec: %s", strings.Join(fields, " "))
	}

	varName, start, end, err := parseIterateParams(fields)
	if err != nil {
		return idx, err
	}

	blockStart := idx
	if !strings.HasSuffix(strings.Join(fields, " "), "{") {
		blockStart++
		for blockStart < len(lines) && strings.TrimSpace(lines[blockStart]) == "" {
			blockStart++
		}
		if blockStart >= len(lines) || strings.TrimSpace(lines[blockStart]) != "{" {
			return idx, fmt.Errorf("missing '{' after iterate")
		}
	}

	block, blockEnd, err := collectBlockLines(lines, blockStart)
	if err != nil {
		return idx, err
	}

	if err := p.expandIterateBlock(block, varName, start, end); err != nil {
		return idx, err
	}

	return blockEnd, nil
}

func (p *dslParser) expandIterateBlock(block []string, varName string, start, end int) error {
	for v := start; v <= end; v++ {
		for _, line := range block {
			expanded := expandVariable(line, varName, v)
			fields := strings.Fields(expanded)
			if fields[0] == "task" {
				// A fresh "task" line inside an iterate body starts a new
				// current task each pass, exactly like top-level parsing.
				if err := p.parseTaskLine(fields); err != nil {
					return fmt.Errorf("iterate expansion error: %v", err)
				}
				continue
			}
			if err := p.processSimpleLine(expanded, fields); err != nil {
				return fmt.Errorf("iterate expansion error: %v", err)
			}
		}
	}
	return nil
}

func parseIterateParams(fields []string) (varName string, start, end int, err error) {
	varName = fields[1]
	start, err = strconv.Atoi(fields[2])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid iterate start %q: %v", fields[2], err)
	}
	end, err = strconv.Atoi(fields[3])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid iterate end %q: %v", fields[3], err)
	}
	return varName, start, end, nil
}

func collectBlockLines(lines []string, startIdx int) ([]string, int, error) {
	var block []string
	i := startIdx + 1

	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "}" {
			return block, i, nil
		}
		if line != "" && !strings.HasPrefix(line, "#") {
			block = append(block, line)
		}
		i++
	}

	return nil, i, fmt.Errorf("unterminated iterate block")
}

func expandVariable(line, varName string, value int) string {
	fields := strings.Fields(line)
	for i, field := range fields {
		if field == varName {
			fields[i] = strconv.Itoa(value)
		}
	}
	return strings.Join(fields, " ")
}

func parseTaskFields(fields []string) (plan.Task, error) {
	id, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return plan.Task{}, fmt.Errorf("invalid task id %q: %v", fields[1], err)
	}
	kernelID, err := strconv.ParseUint(fields[2], 0, 32)
	if err != nil {
		return plan.Task{}, fmt.Errorf("invalid kernel_id %q: %v", fields[2], err)
	}
	wt, err := parseWorkerType(fields[3])
	if err != nil {
		return plan.Task{}, err
	}
	return plan.Task{
		ID:         uint32(id),
		KernelID:   uint32(kernelID),
		WorkerType: wt,
		FuncName:   fields[4],
	}, nil
}

func parseWorkerType(s string) (core.WorkerType, error) {
	switch strings.ToUpper(s) {
	case "CUBE":
		return core.WorkerCube, nil
	case "VECTOR":
		return core.WorkerVector, nil
	case "AICPU":
		return core.WorkerAICPU, nil
	case "ACCELERATOR", "ACCEL":
		return core.WorkerAccelerator, nil
	default:
		return 0, fmt.Errorf("unknown worker_type %q", s)
	}
}

func parseParamFields(fields []string) (plan.ParamSpec, error) {
	kind, err := parseParamKind(fields[1])
	if err != nil {
		return plan.ParamSpec{}, err
	}
	rawBase, err := strconv.ParseUint(fields[2], 0, 64)
	if err != nil {
		return plan.ParamSpec{}, fmt.Errorf("invalid raw_base %q: %v", fields[2], err)
	}
	minOff, err := strconv.ParseUint(fields[3], 0, 64)
	if err != nil {
		return plan.ParamSpec{}, fmt.Errorf("invalid min_offset %q: %v", fields[3], err)
	}
	maxOff := minOff
	if len(fields) > 4 {
		maxOff, err = strconv.ParseUint(fields[4], 0, 64)
		if err != nil {
			return plan.ParamSpec{}, fmt.Errorf("invalid max_offset %q: %v", fields[4], err)
		}
	}
	var size uint64
	if len(fields) > 5 {
		size, err = strconv.ParseUint(fields[5], 0, 64)
		if err != nil {
			return plan.ParamSpec{}, fmt.Errorf("invalid size %q: %v", fields[5], err)
		}
	} else {
		size = maxOff - minOff + 1
	}
	return plan.ParamSpec{
		Kind:          kind,
		RawBase:       rawBase,
		MinByteOffset: minOff,
		MaxByteOffset: maxOff,
		Size:          size,
	}, nil
}

func parseParamKind(s string) (orchestrator.ParamKind, error) {
	switch strings.ToLower(s) {
	case "in", "input":
		return orchestrator.ParamInput, nil
	case "out", "output":
		return orchestrator.ParamOutput, nil
	case "inout":
		return orchestrator.ParamInOut, nil
	default:
		return 0, fmt.Errorf("unknown param kind %q", s)
	}
}
