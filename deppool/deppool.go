// Package deppool implements the dependency-list pool: a bump-allocated
// array of {task_id, next_offset} records used by the orchestrator to
// materialize a task's fanin list. Offset 0 is the "null" sentinel; valid
// offsets are >= 1. This is the one subsystem that keeps the spec's
// literal "arena + index" representation (spec §9, "Pointer graphs in the
// region index" design note) rather than a native pointer chain, because
// the pool must be pre-sized and bounds-checked up front
// (dep_list_pool_size is a runtime configuration knob).
package deppool

import "fmt"

// Record is one dependency-list node.
type Record struct {
	TaskID     uint32
	NextOffset uint32 // 0 = end of list
}

// Pool is a fixed-capacity bump allocator over Record, touched only by the
// orchestrator (spec §5: "Dep-list pool: Bump pointer touched only by the
// orchestrator").
type Pool struct {
	records []Record
	next    uint32 // next free offset; starts at 1, 0 is the sentinel
}

// New creates a pool with room for capacity records.
func New(capacity int) *Pool {
	return &Pool{
		records: make([]Record, capacity+1), // index 0 reserved as sentinel
		next:    1,
	}
}

// ErrPoolFull is returned by Append when the pool has no free records
// left; callers must size dep_list_pool_size to the total submitted edge
// count (spec §6 configuration knobs).
var ErrPoolFull = fmt.Errorf("deppool: pool exhausted")

// Append prepends a new record (taskID, prevHead) onto a list whose
// current head offset is prevHead, returning the new head offset. Passing
// prevHead == 0 starts a new single-element list.
func (p *Pool) Append(taskID uint32, prevHead uint32) (uint32, error) {
	if int(p.next) >= len(p.records) {
		return 0, ErrPoolFull
	}
	offset := p.next
	p.next++
	p.records[offset] = Record{TaskID: taskID, NextOffset: prevHead}
	return offset, nil
}

// Walk invokes visit for every task_id in the list starting at head, in
// list order (newest-appended-first, since Append always prepends).
func (p *Pool) Walk(head uint32, visit func(taskID uint32)) {
	for offset := head; offset != 0; {
		rec := p.records[offset]
		visit(rec.TaskID)
		offset = rec.NextOffset
	}
}

// Collect materializes a list into a slice, for tests and debug dumps.
func (p *Pool) Collect(head uint32) []uint32 {
	var out []uint32
	p.Walk(head, func(taskID uint32) { out = append(out, taskID) })
	return out
}

// Len returns how many records have been allocated so far.
func (p *Pool) Len() int { return int(p.next) - 1 }

// Capacity returns the pool's total record capacity.
func (p *Pool) Capacity() int { return len(p.records) - 1 }

// Reset rewinds the bump pointer to the start, invalidating every
// previously returned offset. Used by Runtime.Reset between independent
// runs of the same runtime.
func (p *Pool) Reset() {
	p.next = 1
}
