package armemu

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/blacktop/go-armemu/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmulationFaultError(t *testing.T) {
	tests := []struct {
		name     string
		fault    EmulationFault
		expected string
	}{
		{
			name: "with args and description",
			fault: EmulationFault{
				Op:     "mem_map",
				Args:   []slog.Attr{slog.String("address", "0x1000"), slog.String("size", "0x1000")},
				Code:   3,
				Engine: "soft",
				Desc:   "range already mapped or not mapped",
			},
			expected: "armemu: mem_map (address=0x1000 size=0x1000) failed: soft ret=3 (range already mapped or not mapped)",
		},
		{
			name:     "no args",
			fault:    EmulationFault{Op: "sp", Code: -1, Engine: "soft"},
			expected: "armemu: sp failed: soft ret=-1",
		},
		{
			name: "unknown code",
			fault: EmulationFault{
				Op:     "reg_write",
				Args:   []slog.Attr{slog.Int("index", 3)},
				Code:   0x7f,
				Engine: "unicorn",
			},
			expected: "armemu: reg_write (index=3) failed: unicorn ret=127",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fault.Error()
			if got != tt.expected {
				t.Errorf("EmulationFault.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizedErrors(t *testing.T) {
	fault := &EmulationFault{
		Op:     "mem_write",
		Args:   []slog.Attr{slog.String("address", "0xdead0000")},
		Code:   1,
		Engine: "soft",
		Desc:   "memory not mapped",
	}
	inv := &InvalidArgumentError{Op: "reg_write", Arg: "index", Value: 31, Reason: "must be 0-30"}

	t.Run("debug", func(t *testing.T) {
		t.Setenv("ARMEMU_ENV", "")
		t.Setenv("ARMEMU_DEBUG", "")
		assert.Contains(t, fault.Error(), "0xdead0000")
		assert.Equal(t, "armemu: reg_write: invalid index=31: must be 0-30", inv.Error())
	})

	for _, env := range []string{"production", "prod"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv("ARMEMU_ENV", env)
			assert.Equal(t, "armemu: mem_write failed: ret=1", fault.Error())
			assert.Equal(t, "armemu: reg_write: invalid index", inv.Error())
		})
	}

	t.Run("debug disabled", func(t *testing.T) {
		t.Setenv("ARMEMU_ENV", "")
		t.Setenv("ARMEMU_DEBUG", "false")
		assert.NotContains(t, fault.Error(), "0xdead0000")
	})
}

func TestErrorKindsAreDistinct(t *testing.T) {
	var fault error = &EmulationFault{Op: "mem_unmap", Code: 3}
	var inv error = &InvalidArgumentError{Op: "mem_map", Arg: "size"}

	assert.True(t, errors.Is(fault, ErrEmulationFault))
	assert.False(t, errors.Is(fault, ErrInvalidArgument))
	assert.True(t, errors.Is(inv, ErrInvalidArgument))
	assert.False(t, errors.Is(inv, ErrEmulationFault))

	wrapped := fmt.Errorf("loading image: %w", fault)
	assert.ErrorIs(t, wrapped, ErrEmulationFault)
	code, ok := Status(wrapped)
	require.True(t, ok)
	assert.Equal(t, engine.Status(3), code)

	code, ok = Status(inv)
	assert.False(t, ok)
	assert.Equal(t, engine.StatusOK, code)

	_, ok = Status(nil)
	assert.False(t, ok)
}

func TestUnknownEngineListsRegistered(t *testing.T) {
	err := Init("dynarmic")
	require.ErrorIs(t, err, ErrUnknownEngine)
	assert.True(t, strings.Contains(err.Error(), DefaultEngine), err.Error())
}
