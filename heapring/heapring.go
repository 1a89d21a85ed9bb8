// Package heapring implements the output-heap ring allocator: a
// bump-and-wrap arena serving packed output buffers for tasks, whose tail
// only advances once the scheduler retires tasks. Grounded on the
// teacher's arena bump allocators (AllocateNodePayload/AllocateScratch in
// runtime/arena.go), generalized to wrap around instead of simply failing
// when the tail end is reached.
package heapring

import (
	"sync"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/rs/zerolog"
)

// Ring is a single contiguous byte arena with a bump head and a
// scheduler-advanced tail. top and tail are monotonically increasing
// virtual byte counters; the physical offset within buf is counter % size.
// This is the standard circular-buffer trick and keeps wrap arithmetic
// unambiguous without a separate "have we lapped" flag.
type Ring struct {
	buf  []byte
	size uint64

	mu   sync.Mutex
	cond *sync.Cond

	top  uint64 // virtual: total bytes ever reserved
	tail uint64 // virtual: total bytes ever retired

	log zerolog.Logger
}

// New creates a ring of sizeBytes, which must be non-zero and a multiple
// of core.CacheLineSize.
func New(sizeBytes uint64, log zerolog.Logger) (*Ring, error) {
	if sizeBytes == 0 || sizeBytes%core.CacheLineSize != 0 {
		return nil, core.ErrConfig("heapring: size must be a non-zero multiple of %d, got %d", core.CacheLineSize, sizeBytes)
	}
	r := &Ring{
		buf:  make([]byte, sizeBytes),
		size: sizeBytes,
		log:  log.With().Str("component", "heapring").Logger(),
	}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

// Alloc bumps top by align_up(bytes, 64) and returns the physical byte
// offset the allocation starts at. It never splits an output across the
// wrap point: if the remaining space before the buffer end is
// insufficient, top skips ahead to the next lap boundary first. It stalls
// (cond-wait) if the allocation would cross tail, waking only once the
// scheduler advances the tail far enough.
func (r *Ring) Alloc(bytes uint64) uint64 {
	aligned := uint64(core.AlignedSize(uintptr(bytes)))

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		start := r.top
		physicalStart := start % r.size
		if physicalStart+aligned > r.size {
			// Not enough room before the buffer end for this output to
			// stay contiguous; skip to the next lap boundary.
			start = start + (r.size - physicalStart)
		}

		if start+aligned-r.tail <= r.size {
			r.top = start + aligned
			r.cond.Broadcast()
			return start % r.size
		}

		r.log.Debug().Uint64("bytes", bytes).Uint64("top", r.top).Uint64("tail", r.tail).Msg("heap ring full, stalling on alloc")
		r.cond.Wait()
	}
}

// AdvanceTail publishes a new virtual tail offset with release semantics,
// unblocking any Alloc callers waiting for space. Called only by the
// scheduler, mirroring the split-writer pattern on the task window.
func (r *Ring) AdvanceTail(newTail uint64) {
	r.mu.Lock()
	r.tail = newTail
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Tail returns the currently published virtual tail offset.
func (r *Ring) Tail() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail
}

// Top returns the currently published virtual head offset.
func (r *Ring) Top() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.top
}

// Size returns the ring's total capacity in bytes.
func (r *Ring) Size() uint64 { return r.size }

// Bytes exposes the underlying buffer for a worker to build kernel
// argument views into (spec §4.6: args point into the packed buffer).
func (r *Ring) Bytes() []byte { return r.buf }

// View returns the physical byte slice [physicalOffset, physicalOffset+
// length) of the ring. The caller (orchestrator packing step) guarantees
// a single output never straddles the wrap point, so physicalOffset+length
// never exceeds Size().
func (r *Ring) View(physicalOffset, length uint64) []byte {
	return r.buf[physicalOffset : physicalOffset+length]
}
