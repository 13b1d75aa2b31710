package armemu

import (
	"testing"

	"github.com/blacktop/go-armemu/internal/softcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartUnsupported(t *testing.T) {
	for _, is64 := range []bool{true, false} {
		c, _ := newRecorded(t, is64)

		err := c.Start(0x1000)
		var fault *EmulationFault
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, "start", fault.Op)
		assert.Equal(t, softcore.StatusUnsupported, fault.Code)
		assert.Contains(t, err.Error(), "pc=0x1000")

		err = c.Stop()
		code, ok := Status(err)
		require.True(t, ok)
		assert.Equal(t, softcore.StatusUnsupported, code)
	}
}

func TestStartCountsRun(t *testing.T) {
	ResetMetrics()
	c, _ := newRecorded(t, true)
	_ = c.Start(0x1000)
	assert.Equal(t, uint64(1), GetMetrics().RunOperations)
}

func TestStartAfterReleaseCountsNoRun(t *testing.T) {
	c, _ := newRecorded(t, true)
	require.NoError(t, c.Close())

	ResetMetrics()
	assert.ErrorIs(t, c.Start(0x1000), ErrContextReleased)
	assert.Zero(t, GetMetrics().RunOperations)
	assert.Zero(t, GetMetrics().AvgRunTimeNs)
}

func TestOnSVC(t *testing.T) {
	c, err := New(true, WithEngine(runner.name), WithSink(NopSink{}))
	require.NoError(t, err)
	defer c.Close()
	h := runner.last()

	type call struct {
		pc  uint64
		swi uint32
	}
	var calls []call
	require.NoError(t, c.OnSVC(func(pc uint64, swi uint32) {
		calls = append(calls, call{pc, swi})
		// the handler may drive the context while Start is running
		assert.NoError(t, c.RegWrite(RegX0, uint64(swi)))
		assert.NoError(t, c.SetTPIDR(pc))
	}))

	ResetMetrics()
	done := make(chan error, 1)
	go func() { done <- c.Start(0x4000) }()
	<-h.started
	require.NoError(t, c.Stop())
	require.NoError(t, <-done)

	assert.Equal(t, []call{{0x4000, 0x80}}, calls)
	x0, err := c.RegRead(RegX0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x80), x0)
	assert.Equal(t, uint64(1), GetMetrics().SVCCalls)

	require.NoError(t, c.OnSVC(nil))
	assert.Nil(t, h.svc)
}

func TestOnSVCUnsupported(t *testing.T) {
	for _, name := range []string{DefaultEngine, recorder.name} {
		t.Run(name, func(t *testing.T) {
			c, err := New(true, WithEngine(name), WithSink(NopSink{}))
			require.NoError(t, err)
			defer c.Close()

			err = c.OnSVC(func(pc uint64, swi uint32) {})
			var fault *EmulationFault
			require.ErrorAs(t, err, &fault)
			assert.Equal(t, "svc_hook", fault.Op)
			assert.Equal(t, softcore.StatusUnsupported, fault.Code)
		})
	}

	c, _ := newRecorded(t, true)
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.OnSVC(nil), ErrContextReleased)
}

func TestNilContext(t *testing.T) {
	var c *Context
	assert.False(t, c.Is64Bit())
	assert.Empty(t, c.Engine())
	assert.Zero(t, c.PageSize())
	assert.True(t, c.Released())
	assert.ErrorIs(t, c.Start(0), ErrContextReleased)
	assert.ErrorIs(t, c.Stop(), ErrContextReleased)
	assert.ErrorIs(t, c.OnSVC(nil), ErrContextReleased)
}
