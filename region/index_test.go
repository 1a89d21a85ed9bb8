package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tensorAt(base uintptr, off, size uint64) LogicalTensor {
	return NewContiguousTensor(base, off, []uint64{size}, 1)
}

func TestIndexInsertAndLookup(t *testing.T) {
	t.Parallel()
	idx := NewIndex(16)

	t0 := tensorAt(0x1000, 0, 64)
	idx.Insert(t0, 0, 3)

	producer, outputIndex, ok := idx.Lookup(t0)
	require.True(t, ok)
	require.EqualValues(t, 0, producer)
	require.EqualValues(t, 3, outputIndex)
}

func TestIndexLookupMissOnDisjointRegion(t *testing.T) {
	t.Parallel()
	idx := NewIndex(16)
	idx.Insert(tensorAt(0x1000, 0, 64), 0, 0)

	miss := tensorAt(0x1000, 1000, 64)
	_, _, ok := idx.Lookup(miss)
	require.False(t, ok)
}

func TestIndexLookupSkipsStaleEntries(t *testing.T) {
	t.Parallel()
	idx := NewIndex(16)

	region := tensorAt(0x1000, 0, 64)
	idx.Insert(region, 5, 0)
	idx.SyncValidity(10) // task 5 is now stale

	_, _, ok := idx.Lookup(region)
	require.False(t, ok, "stale producer must not be returned")
}

func TestIndexNewestWins(t *testing.T) {
	t.Parallel()
	idx := NewIndex(16)
	region := tensorAt(0x1000, 0, 64)

	idx.Insert(region, 1, 0)
	idx.Insert(region, 2, 0) // newer write to the same region

	producer, _, ok := idx.Lookup(region)
	require.True(t, ok)
	require.EqualValues(t, 2, producer, "newest-first chain must surface the latest producer")
}

func TestIndexLookupAllCollectsMultipleOverlaps(t *testing.T) {
	t.Parallel()
	idx := NewIndex(16)

	idx.Insert(tensorAt(0x1000, 0, 64), 1, 0)
	idx.Insert(tensorAt(0x1000, 32, 64), 2, 0)

	query := tensorAt(0x1000, 40, 8)
	out := idx.LookupAll(query, make([]uint32, 0, 4))
	require.ElementsMatch(t, []uint32{1, 2}, out)
}

func TestIndexCleanupRetiredUnlinksStale(t *testing.T) {
	t.Parallel()
	idx := NewIndex(16)
	region := tensorAt(0x1000, 0, 64)

	idx.Insert(region, 1, 0)
	idx.Insert(region, 2, 0)
	idx.CleanupRetired(2)

	b := idx.bucketFor(region.RawBase)
	require.Equal(t, 1, b.len)
	require.EqualValues(t, 2, b.head.producerTaskID)
}

func TestIndexPromotesBucketPastThreshold(t *testing.T) {
	t.Parallel()
	idx := NewIndex(4)
	base := uintptr(0x1000)

	for i := uint32(0); i < intervalTreeThreshold+5; i++ {
		idx.Insert(tensorAt(base, uint64(i)*128, 64), i, 0)
	}

	b := idx.bucketFor(base)
	require.NotNil(t, b.tree, "bucket should have promoted to an interval tree")
	require.Equal(t, b.len, b.tree.Len())

	producer, _, ok := idx.Lookup(tensorAt(base, 0, 64))
	require.True(t, ok)
	require.EqualValues(t, 0, producer)
}

func TestIndexNoteRetiredTriggersCleanupAtInterval(t *testing.T) {
	t.Parallel()
	idx := NewIndex(8)
	region := tensorAt(0x1000, 0, 64)
	idx.Insert(region, 0, 0)
	idx.SyncValidity(1)

	for i := 0; i < CleanupInterval-1; i++ {
		idx.NoteRetired()
	}
	// Not yet due: entry still linked even though stale.
	b := idx.bucketFor(region.RawBase)
	require.Equal(t, 1, b.len)

	idx.NoteRetired() // CleanupInterval-th call fires the sweep
	require.Equal(t, 0, b.len)
}
