package armemu

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/blacktop/go-armemu/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	enabled bool
	checked int

	mu  sync.Mutex
	obs []Observation
}

func (s *captureSink) Enabled() bool {
	s.checked++
	return s.enabled
}

func (s *captureSink) Observe(o Observation) {
	s.mu.Lock()
	s.obs = append(s.obs, o)
	s.mu.Unlock()
}

func (s *captureSink) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []string
	for _, o := range s.obs {
		ops = append(ops, o.Op)
	}
	return ops
}

func TestDisabledSinkIsNeverObserved(t *testing.T) {
	sink := &captureSink{}
	c, err := New(true, WithEngine(DefaultEngine), WithSink(sink))
	require.NoError(t, err)

	require.NoError(t, c.MemMap(0x1000, 0x1000, MemRead|MemWrite))
	require.NoError(t, c.RegWrite(RegX0, 1))
	assert.Error(t, c.RegWrite(31, 1))
	require.NoError(t, c.Close())

	assert.NotZero(t, sink.checked)
	assert.Empty(t, sink.ops())
}

func TestAttrsBuiltOnlyWhenNeeded(t *testing.T) {
	c, _ := newRecorded(t, true)

	built := 0
	attrs := func() []slog.Attr {
		built++
		return []slog.Attr{slog.String("k", "v")}
	}
	require.NoError(t, c.call("mem_map", attrs, func(h engine.Handle) engine.Status {
		return h.MemMap(0x1000, 0x1000, MemRead)
	}))
	assert.Zero(t, built)

	err := c.call("mem_map", attrs, func(h engine.Handle) engine.Status {
		return h.MemMap(0x1000, 0x1000, MemRead)
	})
	require.Error(t, err)
	assert.Equal(t, 1, built)
}

func TestEnabledSinkRecordsCalls(t *testing.T) {
	sink := &captureSink{enabled: true}
	c, err := New(true, WithEngine(DefaultEngine), WithSink(sink))
	require.NoError(t, err)

	require.NoError(t, c.MemMap(0x1000, 0x1000, MemRead|MemWrite))
	require.NoError(t, c.MemWrite(0x1000, []byte{1, 2, 3}))
	assert.Error(t, c.RegWrite(40, 1))
	assert.Error(t, c.MemUnmap(0x9000, 0x1000))
	require.NoError(t, c.Close())

	assert.Equal(t, []string{"create", "mem_map", "mem_write", "reg_write", "mem_unmap", "release"}, sink.ops())

	mapped := sink.obs[1]
	require.Len(t, mapped.Attrs, 3)
	assert.Equal(t, "address", mapped.Attrs[0].Key)
	assert.Equal(t, "0x1000", mapped.Attrs[0].Value.String())
	assert.Equal(t, "rw-", mapped.Attrs[2].Value.String())
	assert.NoError(t, mapped.Err)

	assert.ErrorIs(t, sink.obs[3].Err, ErrInvalidArgument)
	assert.ErrorIs(t, sink.obs[4].Err, ErrEmulationFault)
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c, err := New(true, WithEngine(DefaultEngine), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, c.MemMap(0x2000, 0x1000, MemRead))
	require.NoError(t, c.Close())

	out := buf.String()
	assert.Contains(t, out, "msg=mem_map")
	assert.Contains(t, out, "module=armemu")
	assert.Contains(t, out, "address=0x2000")
	assert.Contains(t, out, "perms=r--")
	assert.Contains(t, out, "elapsed=")
	assert.Contains(t, out, "msg=release")
}

func TestSlogSinkRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sink := NewSlogSink(logger)
	assert.False(t, sink.Enabled())

	c, err := New(true, WithEngine(DefaultEngine), WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, c.MemMap(0x2000, 0x1000, MemRead))
	require.NoError(t, c.Close())
	assert.Empty(t, buf.String())
}

func TestNopSink(t *testing.T) {
	var s NopSink
	assert.False(t, s.Enabled())
	s.Observe(Observation{Op: "noop"})
}
