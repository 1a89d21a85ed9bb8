package taskwindow

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hengliao1972/pto-isa-sub000/core"
)

func discardLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	t.Parallel()
	_, err := New(3, discardLogger())
	require.Error(t, err)
	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewRejectsBelowMinimum(t *testing.T) {
	t.Parallel()
	_, err := New(1, discardLogger())
	require.Error(t, err)
}

func TestAllocIncrementsMonotonically(t *testing.T) {
	t.Parallel()
	w, err := New(4, discardLogger())
	require.NoError(t, err)

	id0 := w.Alloc()
	id1 := w.Alloc()
	require.Equal(t, uint32(0), id0)
	require.Equal(t, uint32(1), id1)
}

func TestGetIndexesBySlot(t *testing.T) {
	t.Parallel()
	w, err := New(4, discardLogger())
	require.NoError(t, err)

	id := w.Alloc()
	desc := w.Get(id)
	desc.TaskID = id

	wrapped := w.Get(id + w.Size())
	require.Same(t, desc, wrapped, "slot reuse must alias the same descriptor")
}

func TestWindowFullFlowControl(t *testing.T) {
	t.Parallel()
	w, err := New(4, discardLogger())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		w.Alloc()
	}
	require.Equal(t, w.Size(), w.ActiveCount())

	var wg sync.WaitGroup
	allocated := make(chan uint32, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		allocated <- w.Alloc() // must block until a slot retires
	}()

	select {
	case <-allocated:
		t.Fatal("Alloc should have blocked while the window is full")
	case <-time.After(50 * time.Millisecond):
	}

	w.AdvanceLastTaskAlive(1)

	select {
	case id := <-allocated:
		require.Equal(t, uint32(4), id)
	case <-time.After(time.Second):
		t.Fatal("Alloc did not unblock after AdvanceLastTaskAlive")
	}
	wg.Wait()
}

func TestActiveCountTracksDifference(t *testing.T) {
	t.Parallel()
	w, err := New(8, discardLogger())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		w.Alloc()
	}
	require.Equal(t, uint32(5), w.ActiveCount())

	w.AdvanceLastTaskAlive(3)
	require.Equal(t, uint32(2), w.ActiveCount())
}
