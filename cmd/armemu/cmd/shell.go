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
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/blacktop/go-armemu"
	"github.com/blacktop/go-armemu/cmd/armemu/cmd/utils"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().Bool("arm32", false, "Open an AArch32 context")
}

const shellHelp = `commands:
  map ADDR SIZE [PERMS]     map a range (perms like rw-, default rwx)
  unmap ADDR SIZE           unmap a range
  protect ADDR SIZE PERMS   change permissions
  write ADDR HEX            write bytes
  read ADDR SIZE            hexdump memory
  reg NAME [VALUE]          read or write x0-x28, fp, lr
  regs                      dump all general registers
  sp [VALUE]                read or write the stack pointer
  tpidr VALUE               write the thread pointer
  pc                        read the program counter
  run PC                    start execution
  help                      show this text
  quit                      release the context and exit`

var errQuit = errors.New("quit")

// shell applies one command line at a time to a context.
type shell struct {
	ctx *armemu.Context
	out io.Writer
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseUints(args []string) ([]uint64, error) {
	vals := make([]uint64, len(args))
	for i, a := range args {
		v, err := parseUint(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (s *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d arguments, see help", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "quit", "exit":
		return errQuit
	case "map", "protect":
		if err := need(2); err != nil {
			return err
		}
		v, err := parseUints(args[:2])
		if err != nil {
			return err
		}
		p := ""
		if len(args) > 2 {
			p = args[2]
		} else if cmd == "protect" {
			return need(3)
		}
		perms, err := parsePerms(p)
		if err != nil {
			return err
		}
		if cmd == "map" {
			return s.ctx.MemMap(v[0], v[1], perms)
		}
		return s.ctx.MemProtect(v[0], v[1], perms)
	case "unmap":
		if err := need(2); err != nil {
			return err
		}
		v, err := parseUints(args[:2])
		if err != nil {
			return err
		}
		return s.ctx.MemUnmap(v[0], v[1])
	case "write":
		if err := need(2); err != nil {
			return err
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}
		return s.ctx.MemWrite(addr, data)
	case "read":
		if err := need(2); err != nil {
			return err
		}
		v, err := parseUints(args[:2])
		if err != nil {
			return err
		}
		data, err := s.ctx.MemRead(v[0], v[1])
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, utils.HexDump(data, v[0]))
	case "reg":
		if err := need(1); err != nil {
			return err
		}
		r, err := parseReg(args[0])
		if err != nil {
			return err
		}
		if len(args) > 1 {
			v, err := parseUint(args[1])
			if err != nil {
				return err
			}
			return s.ctx.RegWrite(r, v)
		}
		v, err := s.ctx.RegRead(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s = %#x\n", r, v)
	case "regs":
		n := armemu.MaxReg
		if !s.ctx.Is64Bit() {
			n = armemu.RegR15
		}
		for r := armemu.MinReg; r <= n; r++ {
			v, err := s.ctx.RegRead(r)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%-4s %#018x\n", r, v)
		}
	case "sp":
		if len(args) > 0 {
			v, err := parseUint(args[0])
			if err != nil {
				return err
			}
			return s.ctx.SetSP(v)
		}
		v, err := s.ctx.SP()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "sp = %#x\n", v)
	case "tpidr":
		if err := need(1); err != nil {
			return err
		}
		v, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return s.ctx.SetTPIDR(v)
	case "pc":
		v, err := s.ctx.PC()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "pc = %#x\n", v)
	case "run":
		if err := need(1); err != nil {
			return err
		}
		pc, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return s.ctx.Start(pc)
	default:
		return fmt.Errorf("unknown command %q, see help", cmd)
	}
	return nil
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactively drive a single context",
	RunE: func(cmd *cobra.Command, args []string) error {
		arm32, err := cmd.Flags().GetBool("arm32")
		if err != nil {
			return err
		}
		ctx, err := newContext("", !arm32)
		if err != nil {
			return err
		}
		defer ctx.Close()

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          fmt.Sprintf("armemu(%s)> ", ctx.Engine()),
			InterruptPrompt: "^C",
			EOFPrompt:       "quit",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("map"), readline.PcItem("unmap"), readline.PcItem("protect"),
				readline.PcItem("write"), readline.PcItem("read"),
				readline.PcItem("reg"), readline.PcItem("regs"),
				readline.PcItem("sp"), readline.PcItem("tpidr"), readline.PcItem("pc"),
				readline.PcItem("run"), readline.PcItem("help"), readline.PcItem("quit"),
			),
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		sh := &shell{ctx: ctx, out: rl.Stdout()}
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil { // io.EOF
				return nil
			}
			if err := sh.exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintln(rl.Stderr(), failColor(err))
			}
		}
	},
}
