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
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-armemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(b[4*i:], w)
	}
	return b
}

func TestDisassemble64(t *testing.T) {
	code := words(0xd2800840, 0xd65f03c0, 0xffffffff)
	lines := disassemble(code, 0x4000, true, 0)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "0x4000:")
	assert.Contains(t, lines[0], "X0")
	assert.Contains(t, lines[1], "RET")
	assert.Contains(t, lines[2], ".word 0xffffffff")

	assert.Len(t, disassemble(code, 0x4000, true, 1), 1)
}

func TestDisassemble32(t *testing.T) {
	// mov r0, #0x42 ; bx lr
	lines := disassemble(words(0xe3a00042, 0xe12fff1e), 0x8000, false, 0)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "MOV")
	assert.Contains(t, lines[1], "BX")
}

func TestLoadedFunction(t *testing.T) {
	for _, is64 := range []bool{true, false} {
		ctx, err := newContext("soft", is64)
		require.NoError(t, err)

		fn := loadedFunction{start: 0x4010, code: words(0xd2800840, 0xd65f03c0)}
		require.NoError(t, fn.load(ctx, 0x70000000, 0x10000, 0))

		mem, err := ctx.MemRead(fn.start, 12)
		require.NoError(t, err)
		assert.Equal(t, fn.code, mem[:8])
		assert.Equal(t, fn.trap(is64), mem[8:])

		ret := fn.start + 8
		if is64 {
			lr, err := ctx.RegRead(armemu.RegLR)
			require.NoError(t, err)
			assert.Equal(t, ret, lr)
			sp, err := ctx.SP()
			require.NoError(t, err)
			assert.Equal(t, uint64(0x70000000), sp)
		} else {
			lr, err := ctx.RegRead(armemu.RegR14)
			require.NoError(t, err)
			assert.Equal(t, ret, lr)
		}

		// stack is writable right below the stack pointer
		require.NoError(t, ctx.MemWrite(0x70000000-8, make([]byte, 8)))
		require.NoError(t, printState(ctx, 0x70000000, 0x10000))
		require.NoError(t, ctx.Close())
	}
}
