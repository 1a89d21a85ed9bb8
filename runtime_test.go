package ptoruntime

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hengliao1972/pto-isa-sub000/core"
	"github.com/hengliao1972/pto-isa-sub000/kernels"
	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/plan"
	"github.com/hengliao1972/pto-isa-sub000/region"
)

func testOptions() Options {
	return Options{
		WindowSize:   16,
		HeapSize:     4096,
		InitOnSubmit: true,
		Log:          zerolog.Nop(),
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	rt, err := New(Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, rt.Close())
}

func TestRunExecutesSubmittedTask(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	defer rt.Close()

	var ran bool
	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error {
		_, err := o.Submit(kernels.KernelNoop, core.WorkerCube, func([][]byte) { ran = true }, "noop", []orchestrator.Param{
			{Kind: orchestrator.ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x1000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestRunPropagatesOrchestrationError(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	defer rt.Close()

	wantErr := core.ErrPrecondition("boom")
	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error {
		return wantErr
	})
	require.Equal(t, wantErr, err)
}

func TestResetRebuildsComponents(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	defer rt.Close()

	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error {
		_, err := o.Submit(kernels.KernelNoop, core.WorkerCube, func([][]byte) {}, "noop", []orchestrator.Param{
			{Kind: orchestrator.ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x2000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
		})
		return err
	})
	require.NoError(t, err)

	require.NoError(t, rt.Reset())

	var ran bool
	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error {
		_, err := o.Submit(kernels.KernelNoop, core.WorkerCube, func([][]byte) { ran = true }, "noop", []orchestrator.Param{
			{Kind: orchestrator.ParamOutput, Tensor: region.LogicalTensor{RawBase: 0x2000, MinByteOffset: 0, MaxByteOffset: 63}, Size: 64},
		})
		return err
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestRunAfterCloseErrors(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error { return nil })
	require.Error(t, err)
}

func TestRunPlanReplaysLinearChain(t *testing.T) {
	rt, err := New(testOptions())
	require.NoError(t, err)
	defer rt.Close()

	p := &plan.Plan{Tasks: []plan.Task{
		{
			ID: 0, KernelID: kernels.KernelRowMax, FuncName: "rowmax", WorkerType: core.WorkerCube,
			Params: []plan.ParamSpec{
				{Kind: orchestrator.ParamInput, RawBase: 0x2000, MinByteOffset: 0, MaxByteOffset: 7},
				{Kind: orchestrator.ParamOutput, RawBase: 0x3000, MinByteOffset: 0, MaxByteOffset: 7, Size: 8},
			},
		},
		{
			ID: 1, KernelID: kernels.KernelRowSum, FuncName: "rowsum", WorkerType: core.WorkerVector,
			Params: []plan.ParamSpec{
				{Kind: orchestrator.ParamInput, RawBase: 0x3000, MinByteOffset: 0, MaxByteOffset: 7},
				{Kind: orchestrator.ParamOutput, RawBase: 0x4000, MinByteOffset: 0, MaxByteOffset: 7, Size: 8},
			},
		},
	}}
	require.NoError(t, p.Validate())

	reg := kernels.NewRegistry()
	err = rt.Run(context.Background(), func(o *orchestrator.Orchestrator) error {
		return RunPlan(o, reg, p)
	})
	require.NoError(t, err)
}
