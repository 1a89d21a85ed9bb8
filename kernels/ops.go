// Package kernels provides the built-in compute kernels dispatched by
// worker_type against a task's packed Args: a slice of byte-slice views,
// outputs first then inputs, matching the array-of-pointers ABI
// (core.KernelFunc). Bodies are adapted from Sublation's SIMD-friendly
// float32 kernels (ops.go), generalized from a single in-place []byte
// buffer to the args [][]byte calling convention: what used to be "first
// half of data" / "second half of data" is now args[1], args[2], ...
package kernels

import (
	"math"
	"unsafe"
)

func floats(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}

// Noop does nothing; used for padding and tests.
func Noop(args [][]byte) {}

// ReLU writes max(0, x) for each element of args[1] into args[0].
func ReLU(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	for i, x := range in {
		if x < 0 {
			x = 0
		}
		out[i] = x
	}
}

// Sigmoid writes a fast sigmoid approximation (x / (1+|x|)) of args[1]
// into args[0].
func Sigmoid(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	for i, x := range in {
		if x >= 0 {
			out[i] = x / (1 + x)
		} else {
			out[i] = x / (1 - x)
		}
	}
}

// Tanh writes a rational tanh approximation of args[1] into args[0].
func Tanh(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	for i, x := range in {
		x2 := x * x
		out[i] = x * (27 + x2) / (27 + 9*x2)
	}
}

// ElemExp writes exp(x) for each element of args[1] into args[0], the
// elem_exp stage of the linear-chain test scenario (spec.md §8 test 1:
// rowmax -> rowexpandsub -> elem_exp -> rowsum).
func ElemExp(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	for i, x := range in {
		out[i] = float32(math.Exp(float64(x)))
	}
}

// Add writes the element-wise sum of args[1] and args[2] into args[0].
func Add(args [][]byte) {
	out, a, b := floats(args[0]), floats(args[1]), floats(args[2])
	n := len(out)
	i := 0
	for ; i < n-unrollFactor+1; i += unrollFactor {
		out[i] = a[i] + b[i]
		out[i+1] = a[i+1] + b[i+1]
		out[i+2] = a[i+2] + b[i+2]
		out[i+3] = a[i+3] + b[i+3]
	}
	for ; i < n; i++ {
		out[i] = a[i] + b[i]
	}
}

const unrollFactor = 4

// Mul writes the element-wise product of args[1] and args[2] into args[0].
func Mul(args [][]byte) {
	out, a, b := floats(args[0]), floats(args[1]), floats(args[2])
	for i := range out {
		out[i] = a[i] * b[i]
	}
}

// RowMax reduces args[1], a row-major tile with as many rows as args[0]
// has float32 slots, to one maximum per row in args[0] (spec.md §8 test
// 1's "rowmax" stage).
func RowMax(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	rows := len(out)
	if rows == 0 {
		return
	}
	width := len(in) / rows
	for r := 0; r < rows; r++ {
		row := in[r*width : (r+1)*width]
		m := float32(math.Inf(-1))
		for _, v := range row {
			if v > m {
				m = v
			}
		}
		out[r] = m
	}
}

// RowSum reduces args[1] to one sum per row in args[0], sized the same
// way as RowMax (spec.md §8 test 1's "rowsum" stage).
func RowSum(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	rows := len(out)
	if rows == 0 {
		return
	}
	width := len(in) / rows
	for r := 0; r < rows; r++ {
		var sum float32
		for _, v := range in[r*width : (r+1)*width] {
			sum += v
		}
		out[r] = sum
	}
}

// RowExpandSub writes args[1] (a tile) minus args[2] (one scalar per row,
// broadcast across the row) into args[0] (spec.md §8 test 1's
// "rowexpandsub" stage).
func RowExpandSub(args [][]byte) {
	out, in, rowVal := floats(args[0]), floats(args[1]), floats(args[2])
	rows := len(rowVal)
	if rows == 0 {
		return
	}
	width := len(in) / rows
	for r := 0; r < rows; r++ {
		base := r * width
		v := rowVal[r]
		for c := 0; c < width; c++ {
			out[base+c] = in[base+c] - v
		}
	}
}

// Softmax writes a numerically-stable softmax of args[1] into args[0].
func Softmax(args [][]byte) {
	out, in := floats(args[0]), floats(args[1])
	if len(in) == 0 {
		return
	}
	maxVal := float32(math.Inf(-1))
	for _, v := range in {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range in {
		e := float32(math.Exp(float64(v - maxVal)))
		out[i] = e
		sum += e
	}
	invSum := 1 / sum
	for i := range out {
		out[i] *= invSum
	}
}

// GEMM accumulates A*B into C (C += A*B) with blocked, cache-friendly
// access (adapted from matMulOptimized's blocking scheme); C must be zeroed
// beforehand for a plain product. args[0] is C (aRows*bCols
// float32s), args[1] is a 6-byte {aRows,aCols,bCols uint16} header,
// args[2] is A (aRows*aCols), args[3] is B (aCols*bCols).
func GEMM(args [][]byte) {
	header := args[1]
	if len(header) < 6 {
		return
	}
	aRows := int(*(*uint16)(unsafe.Pointer(&header[0])))
	aCols := int(*(*uint16)(unsafe.Pointer(&header[2])))
	bCols := int(*(*uint16)(unsafe.Pointer(&header[4])))

	c, a, b := floats(args[0]), floats(args[2]), floats(args[3])
	if len(c) < aRows*bCols || len(a) < aRows*aCols || len(b) < aCols*bCols {
		return
	}

	blockSize := BatchSize() * 4
	for ii := 0; ii < aRows; ii += blockSize {
		iEnd := min(ii+blockSize, aRows)
		for jj := 0; jj < bCols; jj += blockSize {
			jEnd := min(jj+blockSize, bCols)
			for kk := 0; kk < aCols; kk += blockSize {
				kEnd := min(kk+blockSize, aCols)
				for i := ii; i < iEnd; i++ {
					for j := jj; j < jEnd; j++ {
						var sum float32
						for k := kk; k < kEnd; k++ {
							sum += a[i*aCols+k] * b[k*bCols+j]
						}
						c[i*bCols+j] += sum
					}
				}
			}
		}
	}
}
