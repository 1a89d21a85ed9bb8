package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hengliao1972/pto-isa-sub000/orchestrator"
	"github.com/hengliao1972/pto-isa-sub000/plan"
)

const sampleDSL = `
# linear chain fixture
task 0 7 CUBE rowmax
param out 0x1000 0 63 64

task 1 9 VECTOR rowexpandsub
param in 0x1000 0 63
param out 0x2000 0 255 256
`

func TestCompileToPlanParsesTasksAndParams(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "chain.ptodsl")
	require.NoError(t, os.WriteFile(src, []byte(sampleDSL), 0o644))

	p, err := CompileToPlan(src)
	require.NoError(t, err)
	require.Equal(t, 2, p.TaskCount())
	require.Equal(t, "rowmax", p.Tasks[0].FuncName)
	require.Len(t, p.Tasks[1].Params, 2)
	require.Equal(t, orchestrator.ParamInput, p.Tasks[1].Params[0].Kind)
	require.EqualValues(t, 256, p.Tasks[1].Params[1].Size)
}

func TestCompileWritesReadableBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "chain.ptodsl")
	out := filepath.Join(dir, "chain.ptop")
	require.NoError(t, os.WriteFile(src, []byte(sampleDSL), 0o644))

	require.NoError(t, Compile(src, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	got, err := plan.Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, 2, got.TaskCount())
}

func TestIterateBlockExpandsTasks(t *testing.T) {
	dsl := `
iterate i 0 2 {
task i 1 CUBE rowmax
param out i 0 63 64
}
`
	dir := t.TempDir()
	src := filepath.Join(dir, "batch.ptodsl")
	require.NoError(t, os.WriteFile(src, []byte(dsl), 0o644))

	p, err := CompileToPlan(src)
	require.NoError(t, err)
	require.Equal(t, 3, p.TaskCount())
	require.EqualValues(t, 0, p.Tasks[0].ID)
	require.EqualValues(t, 2, p.Tasks[2].ID)
}

func TestUnknownDirectiveIsError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.ptodsl")
	require.NoError(t, os.WriteFile(src, []byte("bogus 1 2 3\n"), 0o644))

	_, err := CompileToPlan(src)
	require.Error(t, err)
}

func TestParamBeforeTaskIsError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.ptodsl")
	require.NoError(t, os.WriteFile(src, []byte("param out 0x1000 0 63 64\n"), 0o644))

	_, err := CompileToPlan(src)
	require.Error(t, err)
}
