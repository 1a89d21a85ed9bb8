// Command ptobench microbenchmarks the built-in kernels directly,
// bypassing the scheduler and worker pool entirely.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/kernels"
)

var (
	testType string
	size     int
	iter     int
	verbose  bool
	dumpPath string
)

// descPool and dumpDescs back the optional --dump path: one
// core.TaskDescriptor per benchmarked kernel, borrowed from the pool,
// serialized to dumpPath for offline inspection, then returned.
var (
	descPool   = core.NewDescriptorPool(256)
	dumpDescs  []*core.TaskDescriptor
	nextTaskID uint32
)

func main() {
	root := &cobra.Command{
		Use:     "ptobench",
		Short:   "Microbenchmark the built-in compute kernels",
		Version: "1.0.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ptobench kernel microbenchmarks\n")
			fmt.Printf("================================\n")
			fmt.Printf("Go Version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("CPUs: %d\n", runtime.NumCPU())
			fmt.Printf("Batch size: %d\n", kernels.BatchSize())
			fmt.Printf("Test size: %d elements, %d iterations\n\n", size, iter)

			switch testType {
			case "all":
				runActivationTests()
				runVectorTests()
				runMatrixTests()
			case "activation":
				runActivationTests()
			case "vector":
				runVectorTests()
			case "matrix":
				runMatrixTests()
			default:
				return fmt.Errorf("unknown test type: %s", testType)
			}

			if dumpPath != "" {
				return dumpDescriptors(dumpPath)
			}
			return nil
		},
	}

	root.Flags().StringVar(&testType, "test", "all", "Test type: all, vector, matrix, activation")
	root.Flags().IntVar(&size, "size", 1024, "Test data size (elements)")
	root.Flags().IntVar(&iter, "iter", 1000, "Number of iterations")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	root.Flags().StringVar(&dumpPath, "dump", "", "Write a binary descriptor snapshot of every benchmarked kernel to this path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runActivationTests() {
	fmt.Printf("Activation Functions\n")
	fmt.Printf("---------------------\n")

	in := randomFloatBytes(size)
	out := make([]byte, len(in))

	tests := []struct {
		name     string
		kernelID uint32
		fn       func([][]byte)
	}{
		{"ReLU", kernels.KernelReLU, kernels.ReLU},
		{"Sigmoid", kernels.KernelSigmoid, kernels.Sigmoid},
		{"Tanh", kernels.KernelTanh, kernels.Tanh},
		{"Softmax", kernels.KernelSoftmax, kernels.Softmax},
		{"ElemExp", kernels.KernelElemExp, kernels.ElemExp},
	}

	for _, test := range tests {
		args := [][]byte{out, in}
		start := time.Now()
		for i := 0; i < iter; i++ {
			test.fn(args)
		}
		elapsed := time.Since(start)
		report(test.name, size, iter, elapsed)
		recordDump(test.name, test.kernelID, core.WorkerVector, 1, 1, len(out))
	}
	fmt.Println()
}

func runVectorTests() {
	fmt.Printf("Vector Operations\n")
	fmt.Printf("------------------\n")

	a := randomFloatBytes(size)
	b := randomFloatBytes(size)
	out := make([]byte, len(a))

	addArgs := [][]byte{out, a, b}
	start := time.Now()
	for i := 0; i < iter; i++ {
		kernels.Add(addArgs)
	}
	report("Add", size, iter, time.Since(start))
	recordDump("Add", kernels.KernelAdd, core.WorkerVector, 2, 1, len(out))

	mulArgs := [][]byte{out, a, b}
	start = time.Now()
	for i := 0; i < iter; i++ {
		kernels.Mul(mulArgs)
	}
	report("Mul", size, iter, time.Since(start))
	recordDump("Mul", kernels.KernelMul, core.WorkerVector, 2, 1, len(out))

	fmt.Println()
}

func runMatrixTests() {
	fmt.Printf("Matrix Multiply (GEMM)\n")
	fmt.Printf("------------------------\n")

	sizes := []int{32, 64, 128}
	if size < 128 {
		sizes = []int{16, 32, 64}
	}
	matIter := iter/10 + 1

	for _, n := range sizes {
		a := randomFloatBytes(n * n)
		b := randomFloatBytes(n * n)
		c := make([]byte, n*n*4)
		header := gemmHeader(uint16(n), uint16(n), uint16(n))
		args := [][]byte{c, header, a, b}

		start := time.Now()
		for i := 0; i < matIter; i++ {
			for j := range c {
				c[j] = 0
			}
			kernels.GEMM(args)
		}
		elapsed := time.Since(start)

		flops := int64(n) * int64(n) * int64(n) * 2 * int64(matIter)
		gflops := float64(flops) / elapsed.Seconds() / 1e9
		fmt.Printf("%3dx%-3d:  %v (%.2f GFLOPS)\n", n, n, elapsed, gflops)
		recordDump(fmt.Sprintf("GEMM%dx%d", n, n), kernels.KernelGEMM, core.WorkerCube, 2, 1, len(c))
	}
	fmt.Println()
}

func report(name string, size, iter int, elapsed time.Duration) {
	perSec := float64(size) * float64(iter) / elapsed.Seconds()
	fmt.Printf("%-10s %v (%.2f Mops/s)\n", name, elapsed, perSec/1e6)
}

// recordDump borrows a descriptor from descPool, fills in the stable
// fields a real Submit would have set, and retains it for dumpDescriptors.
// Only called when --dump is set would save the pool round-trip, but
// exercising Get/Put on every benchmarked kernel is the point.
func recordDump(name string, kernelID uint32, wt core.WorkerType, numIn, numOut, outputBytes int) {
	d := descPool.Get()
	d.TaskID = nextTaskID
	nextTaskID++
	d.KernelID = kernelID
	d.WorkerType = wt
	d.FuncName = name
	d.NumInputs = numIn
	d.NumOutputs = numOut
	d.FaninCount = uint32(numIn)
	d.FanoutCount = 0
	d.PackedBufferBase = 0
	d.PackedBufferEnd = uint64(core.AlignedSize(uintptr(outputBytes)))

	if dumpPath == "" {
		descPool.Put(d)
		return
	}
	dumpDescs = append(dumpDescs, d)
}

// dumpDescriptors serializes every descriptor collected this run via
// core.SerializeSnapshotBatch and writes it to path, then returns every
// descriptor to descPool.
func dumpDescriptors(path string) error {
	defer func() {
		for _, d := range dumpDescs {
			descPool.Put(d)
		}
		dumpDescs = nil
	}()

	data, err := core.SerializeSnapshotBatch(dumpDescs)
	if err != nil {
		return fmt.Errorf("serialize descriptor snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write descriptor snapshot: %w", err)
	}
	fmt.Printf("wrote %d descriptor snapshots (%d bytes, %d per descriptor aligned) to %s\n",
		len(dumpDescs), len(data), core.DescriptorAlignedSize(&core.TaskDescriptor{}), path)
	return nil
}

func randomFloatBytes(n int) []byte {
	b := make([]byte, n*4)
	for i := 0; i < n; i++ {
		v := rand.Float32()*20 - 10
		*(*float32)(unsafe.Pointer(&b[i*4])) = v
	}
	return b
}

func gemmHeader(aRows, aCols, bCols uint16) []byte {
	h := make([]byte, 6)
	*(*uint16)(unsafe.Pointer(&h[0])) = aRows
	*(*uint16)(unsafe.Pointer(&h[2])) = aCols
	*(*uint16)(unsafe.Pointer(&h[4])) = bCols
	return h
}
