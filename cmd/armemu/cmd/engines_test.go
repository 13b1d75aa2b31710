/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"os"
	"testing"

	"github.com/blacktop/go-armemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadable returns every registered engine except soft that loads on this host.
func loadable(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, name := range armemu.Engines() {
		if name == armemu.DefaultEngine {
			continue
		}
		if err := armemu.Init(name); err != nil {
			t.Logf("%s: %v", name, err)
			continue
		}
		names = append(names, name)
	}
	return names
}

// The soft engine is the reference every other engine must agree with when
// applying a state.
func TestEnginesAgreeWithSoft(t *testing.T) {
	if isCI() {
		t.Skip("Skipping native engine comparison in CI environment")
	}
	others := loadable(t)
	if len(others) == 0 {
		t.Skip("no native engine available")
	}

	sp := uint64(0x3000)
	states := []struct {
		name string
		st   State
	}{
		{
			name: "registers only",
			st:   State{Regs: map[string]uint64{"x0": 999, "x1": 200, "fp": 0x10, "lr": 0x20}},
		},
		{
			name: "memory and stack",
			st: State{
				Regions: []Region{
					{Addr: 0x10000, Size: 0x4000, Perms: "rw-", Data: "400880d200002000"},
					{Addr: 0x20000, Size: 0x4000, Perms: "r--"},
				},
				Regs: map[string]uint64{"x28": 0xffff_ffff_ffff_ffff},
				SP:   &sp,
			},
		},
	}

	for _, tc := range states {
		t.Run(tc.name, func(t *testing.T) {
			ref := tc.st
			ref.Engine = armemu.DefaultEngine
			want, err := executeState(&ref, false)
			require.NoError(t, err)

			for _, name := range others {
				t.Run(name, func(t *testing.T) {
					st := tc.st
					st.Engine = name
					got, err := executeState(&st, false)
					require.NoError(t, err)
					compareStates(t, want, got)
				})
			}
		})
	}
}

func compareStates(t *testing.T, expected, actual *ExecuteResult) {
	t.Helper()
	assert.Equal(t, expected.Is64, actual.Is64)
	for name, v := range expected.Regs {
		assert.Equal(t, v, actual.Regs[name], "%s mismatch: expected %#x, got %#x", name, v, actual.Regs[name])
	}
	assert.Equal(t, expected.SP, actual.SP)
	assert.Equal(t, expected.Memory, actual.Memory)
}

// isCI returns true if running in GitHub Actions
func isCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}
