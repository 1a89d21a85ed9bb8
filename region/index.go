package region

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// CleanupInterval is the number of retired tasks between automatic
// cleanup_retired sweeps (spec's PTO2_TENSORMAP_CLEANUP_INTERVAL).
const CleanupInterval = 64

// bucket is one hash slot: a newest-first linked list of entries, plus an
// optional interval tree that takes over once the chain grows past
// intervalTreeThreshold.
type bucket struct {
	head *entry
	len  int
	tree *intervalTree // nil until promoted
}

// Index is the hash-partitioned tensor-region overlap map. Mutation is
// orchestrator-only (spec §5: "Region index buckets: Orchestrator-only;
// scheduler does not read"); the mutex keeps each method call safe
// should one ever be made from a goroutine other than the orchestrator's.
type Index struct {
	mu             sync.RWMutex
	buckets        []bucket
	mask           uint64
	lastTaskAlive  uint32
	retiredSinceGC int
}

// NewIndex creates an index with numBuckets slots, rounded up to the next
// power of two.
func NewIndex(numBuckets int) *Index {
	b := nextPow2(numBuckets)
	return &Index{
		buckets: make([]bucket, b),
		mask:    uint64(b - 1),
	}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (idx *Index) bucketFor(rawBase uintptr) *bucket {
	h := xxhash.Sum64(uint64ToBytes(uint64(rawBase)))
	return &idx.buckets[h&idx.mask]
}

func uint64ToBytes(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}

func newProbe(t LogicalTensor) entry {
	return entry{
		rawBase:       t.RawBase,
		minByteOffset: t.MinByteOffset,
		maxByteOffset: t.MaxByteOffset,
		storageOffset: t.StorageOffset,
		shape:         t.Shape,
		strides:       t.Strides,
		ndim:          t.NDim,
		isDeepCopy:    t.ExtractionType.IsDeepCopy(),
	}
}

// Insert records that producerID's outputIndex'th output wrote t,
// prepending a new entry to t's bucket. Regions are keyed by the caller's
// original raw_base, not any packed-buffer address, so later lookups by
// the same logical tensor find this producer regardless of where its
// output was physically packed.
func (idx *Index) Insert(t LogicalTensor, producerID uint32, outputIndex uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	b := idx.bucketFor(t.RawBase)
	e := &entry{
		rawBase:        t.RawBase,
		minByteOffset:  t.MinByteOffset,
		maxByteOffset:  t.MaxByteOffset,
		storageOffset:  t.StorageOffset,
		shape:          t.Shape,
		strides:        t.Strides,
		ndim:           t.NDim,
		producerTaskID: producerID,
		outputIndex:    outputIndex,
		isDeepCopy:     t.ExtractionType.IsDeepCopy(),
		next:           b.head,
	}
	b.head = e
	b.len++

	if b.tree != nil {
		b.tree.Insert(e)
	} else if b.len > intervalTreeThreshold {
		idx.promoteBucket(b)
	}
}

// Lookup walks t's bucket newest-first, truncating the chain at the first
// stale entry, and returns the first overlapping producer along with the
// specific output of that producer the overlap resolved to.
func (idx *Index) Lookup(t LogicalTensor) (producerID uint32, outputIndex uint32, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b := idx.bucketFor(t.RawBase)
	probe := newProbe(t)

	if b.tree != nil {
		hits := b.tree.Query(t.MinByteOffset, t.MaxByteOffset, nil)
		var best *entry
		for _, cand := range hits {
			if cand.producerTaskID < idx.lastTaskAlive {
				continue
			}
			if overlaps(probe, *cand) && (best == nil || cand.producerTaskID > best.producerTaskID) {
				best = cand
			}
		}
		if best != nil {
			return best.producerTaskID, best.outputIndex, true
		}
		return 0, 0, false
	}

	for e := b.head; e != nil; e = e.next {
		if e.producerTaskID < idx.lastTaskAlive {
			break
		}
		if overlaps(probe, *e) {
			return e.producerTaskID, e.outputIndex, true
		}
	}
	return 0, 0, false
}

// LookupAll collects every non-stale overlapping producer, bounded by
// cap(out).
func (idx *Index) LookupAll(t LogicalTensor, out []uint32) []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b := idx.bucketFor(t.RawBase)
	probe := newProbe(t)
	seen := make(map[uint32]bool)

	consider := func(e *entry) {
		if len(out) >= cap(out) || e.producerTaskID < idx.lastTaskAlive {
			return
		}
		if overlaps(probe, *e) && !seen[e.producerTaskID] {
			seen[e.producerTaskID] = true
			out = append(out, e.producerTaskID)
		}
	}

	if b.tree != nil {
		for _, e := range b.tree.Query(t.MinByteOffset, t.MaxByteOffset, nil) {
			consider(e)
		}
		return out
	}

	for e := b.head; e != nil; e = e.next {
		if e.producerTaskID < idx.lastTaskAlive {
			break
		}
		consider(e)
	}
	return out
}

// SyncValidity updates the staleness threshold without scanning.
func (idx *Index) SyncValidity(lastTaskAlive uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.lastTaskAlive = lastTaskAlive
}

// NoteRetired should be called once per task that transitions to
// CONSUMED; every CleanupInterval calls triggers a CleanupRetired sweep
// automatically.
func (idx *Index) NoteRetired() {
	idx.mu.Lock()
	idx.retiredSinceGC++
	due := idx.retiredSinceGC >= CleanupInterval
	if due {
		idx.retiredSinceGC = 0
	}
	threshold := idx.lastTaskAlive
	idx.mu.Unlock()

	if due {
		idx.CleanupRetired(threshold)
	}
}

// CleanupRetired physically unlinks entries whose producerTaskID is below
// threshold from every bucket (spec's cleanup_retired(old, new)).
func (idx *Index) CleanupRetired(threshold uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i := range idx.buckets {
		b := &idx.buckets[i]

		var newHead, tail *entry
		newLen := 0
		for e := b.head; e != nil; e = e.next {
			if e.producerTaskID < threshold {
				continue
			}
			if newHead == nil {
				newHead = e
			} else {
				tail.next = e
			}
			tail = e
			newLen++
		}
		if tail != nil {
			tail.next = nil
		}
		b.head = newHead
		b.len = newLen

		if b.tree != nil {
			b.tree.RemoveStale(threshold)
		}
	}
}

func (idx *Index) promoteBucket(b *bucket) {
	b.tree = newIntervalTree()
	for e := b.head; e != nil; e = e.next {
		b.tree.Insert(e)
	}
}
