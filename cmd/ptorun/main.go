// Command ptorun loads a compiled plan and replays it against a fresh
// runtime, reporting how many tasks ran and how long it took.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	ptoruntime "github.com/hengliao1972/pto-isa-sub000"
	"github.com/hengliao1972/pto-isa-sub000/kernels"
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/plan"
)

func main() {
	var (
		cubeWorkers   int
		vectorWorkers int
		aicpuWorkers  int
		accelWorkers  int
		windowSize    uint32
		heapSize      uint64
		verbose       bool
	)

	root := &cobra.Command{
		Use:     "ptorun <plan.ptop>",
		Short:   "Replay a compiled plan against a runtime",
		Version: "1.0.0",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], ptoruntime.Options{
				CubeWorkers:        cubeWorkers,
				VectorWorkers:      vectorWorkers,
				AICPUWorkers:       aicpuWorkers,
				AcceleratorWorkers: accelWorkers,
				WindowSize:         windowSize,
				HeapSize:           heapSize,
				Log:                newLogger(verbose),
			}, verbose)
		},
	}

	root.Flags().IntVar(&cubeWorkers, "cube-workers", 1, "Number of CUBE worker goroutines")
	root.Flags().IntVar(&vectorWorkers, "vector-workers", 1, "Number of VECTOR worker goroutines")
	root.Flags().IntVar(&aicpuWorkers, "aicpu-workers", 0, "Number of AICPU worker goroutines")
	root.Flags().IntVar(&accelWorkers, "accel-workers", 0, "Number of ACCELERATOR worker goroutines")
	root.Flags().Uint32Var(&windowSize, "window-size", 1024, "Task window capacity")
	root.Flags().Uint64Var(&heapSize, "heap-size", 16<<20, "Output heap ring size in bytes")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func run(planPath string, opts ptoruntime.Options, verbose bool) error {
	data, err := os.ReadFile(planPath)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	p, err := plan.Deserialize(data)
	if err != nil {
		return fmt.Errorf("deserialize plan: %w", err)
	}
	if verbose {
		fmt.Printf("loaded plan with %d tasks\n", p.TaskCount())
	}

	rt, err := ptoruntime.New(opts)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.Close()

	reg := kernels.NewRegistry()
	start := time.Now()
	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error {
		return ptoruntime.RunPlan(o, reg, p)
	})
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("run plan: %w", err)
	}

	fmt.Printf("ran %d tasks in %v\n", p.TaskCount(), elapsed)
	return nil
}
