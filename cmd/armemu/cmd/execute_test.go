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
	"encoding/json"
	"testing"

	"github.com/blacktop/go-armemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePerms(t *testing.T) {
	tests := []struct {
		in   string
		want armemu.MemPerm
	}{
		{"", armemu.MemAll},
		{"r--", armemu.MemRead},
		{"rw-", armemu.MemRead | armemu.MemWrite},
		{"r-x", armemu.MemRead | armemu.MemExec},
		{"---", armemu.MemNone},
	}
	for _, tt := range tests {
		got, err := parsePerms(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := parsePerms("rwz")
	assert.Error(t, err)
}

func TestParseReg(t *testing.T) {
	for name, want := range map[string]armemu.Reg{
		"x0": armemu.RegX0, "X28": armemu.RegX28,
		"fp": armemu.RegFP, "x29": armemu.RegFP,
		"lr": armemu.RegLR, "x30": armemu.RegLR,
	} {
		got, err := parseReg(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := parseReg("x31")
	assert.Error(t, err)
}

func TestExecuteState(t *testing.T) {
	var st State
	require.NoError(t, json.Unmarshal([]byte(`{
		"engine": "soft",
		"regions": [{"addr": 4096, "size": 4096, "perms": "rw-", "data": "deadbeef"}],
		"regs": {"x0": 1, "lr": 2},
		"sp": 8192,
		"tpidr": 12288
	}`), &st))

	res, err := executeState(&st, false)
	require.NoError(t, err)
	assert.Equal(t, "soft", res.Engine)
	assert.True(t, res.Is64)
	assert.Len(t, res.Regs, 31)
	assert.Equal(t, uint64(1), res.Regs["x0"])
	assert.Equal(t, uint64(2), res.Regs["lr"])
	require.NotNil(t, res.SP)
	assert.Equal(t, uint64(8192), *res.SP)
	require.Len(t, res.Memory, 1)
	assert.Equal(t, "deadbeef", res.Memory[0].Data[:8])
	assert.Len(t, res.Memory[0].Data, 2*4096)
}

func TestExecuteState32(t *testing.T) {
	is64 := false
	st := State{Engine: "soft", Is64: &is64, Regs: map[string]uint64{"x13": 0x1_0000_8000}}

	res, err := executeState(&st, false)
	require.NoError(t, err)
	assert.False(t, res.Is64)
	assert.Len(t, res.Regs, 16)
	assert.Equal(t, uint64(0x8000), res.Regs["x13"])
	assert.Nil(t, res.SP)
}

func TestExecuteStateErrors(t *testing.T) {
	tests := []struct {
		name string
		st   State
	}{
		{"misaligned region", State{Engine: "soft", Regions: []Region{{Addr: 0x1001, Size: 0x1000}}}},
		{"bad hex", State{Engine: "soft", Regions: []Region{{Addr: 0x1000, Size: 0x1000, Data: "zz"}}}},
		{"bad register", State{Engine: "soft", Regs: map[string]uint64{"x99": 1}}},
		{"unknown engine", State{Engine: "dynarmic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeState(&tt.st, false)
			assert.Error(t, err)
		})
	}
}

func TestExecuteRunReportsFault(t *testing.T) {
	st := State{Engine: "soft", Regions: []Region{{Addr: 0x1000, Size: 0x1000}}}
	res, err := executeState(&st, true)
	require.NoError(t, err)
	assert.Contains(t, res.RunError, "start")
}

func TestCompareResult(t *testing.T) {
	out := []byte(`{"engine":"soft","is64":true,"regs":{"x0":1,"x1":0}}`)
	assert.NoError(t, compareResult(out, out))
	assert.NoError(t, compareResult(out, []byte(`{"regs":{"x0":1}}`)))
	assert.Error(t, compareResult(out, []byte(`{"regs":{"x0":2}}`)))
	assert.Error(t, compareResult(out, []byte(`not json`)))
}
