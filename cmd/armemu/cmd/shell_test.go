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
	"bytes"
	"testing"

	"github.com/blacktop/go-armemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	ctx, err := newContext("soft", true)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	var out bytes.Buffer
	return &shell{ctx: ctx, out: &out}, &out
}

func TestShellSession(t *testing.T) {
	sh, out := newShell(t)

	for _, line := range []string{
		"map 0x1000 0x2000 rw-",
		"write 0x1ffe 41424344",
		"reg x5 0x55",
		"sp 0x3000",
		"tpidr 0x8000",
		"protect 0x1000 0x1000 r--",
		"",
	} {
		require.NoError(t, sh.exec(line), line)
	}

	require.NoError(t, sh.exec("read 0x1ffe 4"))
	assert.Contains(t, out.String(), "|ABCD|")

	out.Reset()
	require.NoError(t, sh.exec("reg x5"))
	assert.Equal(t, "x5 = 0x55\n", out.String())

	out.Reset()
	require.NoError(t, sh.exec("sp"))
	assert.Equal(t, "sp = 0x3000\n", out.String())

	out.Reset()
	require.NoError(t, sh.exec("regs"))
	assert.Contains(t, out.String(), "lr ")

	require.NoError(t, sh.exec("unmap 0x1000 0x2000"))
	assert.ErrorIs(t, sh.exec("quit"), errQuit)
}

func TestShellErrors(t *testing.T) {
	sh, _ := newShell(t)

	assert.NoError(t, sh.exec("reg x0 1 extra"))
	assert.ErrorIs(t, sh.exec("unmap 0x1000 0x1000"), armemu.ErrEmulationFault)
	assert.ErrorIs(t, sh.exec("map 0x1000 0"), armemu.ErrInvalidArgument)
	assert.ErrorIs(t, sh.exec("run 0x1000"), armemu.ErrEmulationFault)
	assert.Error(t, sh.exec("reg x31"))
	assert.Error(t, sh.exec("map 0x1000"))
	assert.Error(t, sh.exec("protect 0x1000 0x1000"))
	assert.Error(t, sh.exec("write 0x1000 xyz"))
	assert.Error(t, sh.exec("bogus"))
}
