package kernels

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchSizePositive(t *testing.T) {
	require.Greater(t, BatchSize(), 0)
}

func TestVectorizedKernelDoublesValues(t *testing.T) {
	vk := NewVectorizedKernel(func(x float32) float32 { return x * 2 })
	data := f32bytes(1, 2, 3, 4, 5)
	vk.Execute(data)
	requireCloseFloats(t, []float32{2, 4, 6, 8, 10}, data)
}

func TestAlignedCopyMismatchedLenNoop(t *testing.T) {
	dst := make([]byte, 4)
	src := make([]byte, 8)
	AlignedCopy(dst, src)
	require.Equal(t, make([]byte, 4), dst)
}

func TestAlignedCopySpansMultipleCacheLines(t *testing.T) {
	src := make([]byte, CacheLineSize*2+8)
	for i := range src {
		src[i] = byte(i)
	}
	dst := make([]byte, len(src))
	AlignedCopy(dst, src)
	require.Equal(t, src, dst)
}

func TestPrefetchDataNoPanic(t *testing.T) {
	require.NotPanics(t, func() {
		PrefetchData(make([]byte, CacheLineSize*3))
	})
}
