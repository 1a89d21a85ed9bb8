// Package core provides the fundamental primitives shared by every other
// package in the PTO-ISA scheduling runtime: cache-line alignment helpers,
// the task descriptor, and the per-task fanout spinlock.
package core

import "unsafe"

const (
	// CacheLineSize is the alignment used for every packed output buffer
	// handed out by the heap-ring allocator (64 bytes per spec).
	CacheLineSize = 64
)

// IsAligned reports whether addr falls on a cache-line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// AlignedSize rounds size up to the next multiple of CacheLineSize.
func AlignedSize(size uintptr) uintptr {
	return (size + uintptr(CacheLineSize-1)) &^ uintptr(CacheLineSize-1)
}

// AlignedBytes allocates a byte slice whose backing array starts on a
// cache-line boundary.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}
	return buf[offset : offset+uintptr(size)]
}

// Align32 rounds n up to the nearest 32-byte boundary: predictable word
// alignment without padding to a full cache line.
func Align32(n int) int { return (n + 31) &^ 31 }
