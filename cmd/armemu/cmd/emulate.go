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
	"fmt"

	"github.com/blacktop/go-armemu"
	"github.com/blacktop/go-armemu/cmd/armemu/cmd/utils"
	"github.com/blacktop/go-armemu/internal/align"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/spf13/cobra"
	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
)

const (
	hvc64 = 0xd4000002 // hvc #0
	hvc32 = 0xe1400070 // hvc #0 (A32)

	defaultPageSize = 0x1000
)

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().Uint64P("addr", "a", 0, "Address to emulate (0 = use entry point)")
	emulateCmd.Flags().Uint64P("stack", "s", 0x70000000, "Initial stack pointer (top of the stack mapping)")
	emulateCmd.Flags().Uint64("stack-size", 0x10000, "Stack mapping size (bytes)")
	emulateCmd.Flags().Uint64("tls", 0, "Thread pointer (TPIDR_EL0) value, 0 = leave unset")
	emulateCmd.Flags().IntP("count", "c", 32, "Instructions to disassemble (0 = whole function)")
	emulateCmd.Flags().BoolP("run", "r", false, "Run the function (needs an engine that executes)")
}

var emulateCmd = &cobra.Command{
	Use:     "emulate [FILE]",
	Aliases: []string{"emu"},
	Short:   "Load a function from a Mach-O binary into a context and show its state",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := cmd.Flags().GetUint64("addr")
		if err != nil {
			return err
		}
		stackPtr, err := cmd.Flags().GetUint64("stack")
		if err != nil {
			return err
		}
		stackSize, err := cmd.Flags().GetUint64("stack-size")
		if err != nil {
			return err
		}
		tls, err := cmd.Flags().GetUint64("tls")
		if err != nil {
			return err
		}
		count, err := cmd.Flags().GetInt("count")
		if err != nil {
			return err
		}
		run, err := cmd.Flags().GetBool("run")
		if err != nil {
			return err
		}
		if stackSize == 0 || stackSize > stackPtr {
			return fmt.Errorf("stack-size 0x%x does not fit below stack 0x%x", stackSize, stackPtr)
		}

		// Open Mach-O file
		m, err := macho.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open Mach-O file: %w", err)
		}
		defer m.Close()

		var is64 bool
		switch m.CPU {
		case types.CPUArm64:
			is64 = true
		case types.CPUArm:
			is64 = false
		default:
			return fmt.Errorf("unsupported CPU %s", m.CPU)
		}

		// Determine address to emulate
		if addr == 0 {
			if main := m.GetLoadsByName("LC_MAIN"); len(main) == 0 {
				return fmt.Errorf("failed to find LC_MAIN in target - use --addr to specify function address")
			} else {
				addr = main[0].(*macho.EntryPoint).EntryOffset + m.GetBaseAddress()
			}
		}

		fn, err := m.GetFunctionForVMAddr(addr)
		if err != nil {
			return fmt.Errorf("failed to find function at address 0x%x: %w", addr, err)
		}
		fmt.Printf("Function: %s (0x%x - 0x%x, %d bytes)\n",
			fn.Name, fn.StartAddr, fn.EndAddr, fn.EndAddr-fn.StartAddr)

		instrs := make([]byte, fn.EndAddr-fn.StartAddr)
		if _, err := m.ReadAtAddr(instrs, fn.StartAddr); err != nil {
			return fmt.Errorf("failed to read function bytes: %w", err)
		}

		ctx, err := newContext("", is64)
		if err != nil {
			return fmt.Errorf("failed to create context: %w", err)
		}
		defer ctx.Close()

		img := loadedFunction{start: fn.StartAddr, code: instrs}
		if err := img.load(ctx, stackPtr, stackSize, tls); err != nil {
			return err
		}

		// Disassemble what the engine holds, not what was read from disk
		mem, err := ctx.MemRead(fn.StartAddr, uint64(len(instrs)))
		if err != nil {
			return err
		}
		fmt.Printf("\n=== Disassembly (%s) ===\n", ctx.Engine())
		for _, line := range disassemble(mem, fn.StartAddr, is64, count) {
			fmt.Println(line)
		}

		if run {
			fmt.Printf("\n=== Execution Results ===\n")
			if err := ctx.OnSVC(func(pc uint64, swi uint32) {
				fmt.Printf("svc #%#x at %#x\n", swi, pc)
			}); err != nil {
				fmt.Printf("SVC trace unavailable: %v\n", err)
			}
			if err := ctx.Start(fn.StartAddr); err != nil {
				fmt.Printf("Run: %v\n", err)
			} else {
				fmt.Println("Run: returned")
			}
		}

		return printState(ctx, stackPtr, stackSize)
	},
}

// loadedFunction is a function body placed in its own code mapping with a
// trap appended that the link register points at.
type loadedFunction struct {
	start uint64
	code  []byte
}

func (f loadedFunction) trap(is64 bool) []byte {
	b := make([]byte, 4)
	if is64 {
		binary.LittleEndian.PutUint32(b, hvc64)
	} else {
		binary.LittleEndian.PutUint32(b, hvc32)
	}
	return b
}

func (f loadedFunction) load(ctx *armemu.Context, stackPtr, stackSize, tls uint64) error {
	ps := ctx.PageSize()
	if ps == 0 {
		ps = defaultPageSize
	}
	is64 := ctx.Is64Bit()
	ret := f.start + uint64(len(f.code))

	base := align.Down(f.start, ps)
	size := align.Up(ret+4-base, ps)
	if err := ctx.MemMap(base, size, armemu.MemRead|armemu.MemExec); err != nil {
		return fmt.Errorf("failed to map code: %w", err)
	}
	if err := ctx.MemWrite(f.start, append(append([]byte{}, f.code...), f.trap(is64)...)); err != nil {
		return fmt.Errorf("failed to write code: %w", err)
	}

	stackBase := align.Down(stackPtr-stackSize, ps)
	if err := ctx.MemMap(stackBase, align.Up(stackPtr, ps)-stackBase, armemu.MemRead|armemu.MemWrite); err != nil {
		return fmt.Errorf("failed to map stack: %w", err)
	}

	if is64 {
		if err := ctx.SetSP(stackPtr); err != nil {
			return fmt.Errorf("failed to set SP: %w", err)
		}
		if err := ctx.RegWrite(armemu.RegLR, ret); err != nil {
			return fmt.Errorf("failed to set LR: %w", err)
		}
		if tls != 0 {
			if err := ctx.SetTPIDR(tls); err != nil {
				return fmt.Errorf("failed to set TPIDR: %w", err)
			}
		}
		return nil
	}
	return ctx.RegWriteBatch(armemu.RegBatch{armemu.RegR13: stackPtr, armemu.RegR14: ret})
}

// disassemble decodes up to limit instructions (all when limit is 0). Words
// that do not decode are shown as .word.
func disassemble(code []byte, addr uint64, is64 bool, limit int) []string {
	var lines []string
	for off := 0; off+4 <= len(code); off += 4 {
		if limit > 0 && len(lines) == limit {
			break
		}
		word := binary.LittleEndian.Uint32(code[off:])
		text := fmt.Sprintf(".word 0x%08x", word)
		if is64 {
			if inst, err := arm64asm.Decode(code[off:]); err == nil {
				text = inst.String()
			}
		} else if inst, err := armasm.Decode(code[off:], armasm.ModeARM); err == nil {
			text = inst.String()
		}
		lines = append(lines, fmt.Sprintf("%#x:  %08x  %s", addr+uint64(off), word, text))
	}
	return lines
}

// printState shows the argument registers and the live part of the stack.
func printState(ctx *armemu.Context, initialSP, stackSize uint64) error {
	regs, err := ctx.RegReadBatch(armemu.RegX0, armemu.RegX1, armemu.RegX2, armemu.RegX3)
	if err != nil {
		return err
	}
	fmt.Printf("\nRegisters:\n")
	fmt.Printf("  X0=0x%x  X1=0x%x  X2=0x%x  X3=0x%x\n",
		regs[armemu.RegX0], regs[armemu.RegX1], regs[armemu.RegX2], regs[armemu.RegX3])

	var sp uint64
	if ctx.Is64Bit() {
		if sp, err = ctx.SP(); err != nil {
			return err
		}
		pc, err := ctx.PC()
		if err != nil {
			return err
		}
		special, err := ctx.RegReadBatch(armemu.RegFP, armemu.RegLR)
		if err != nil {
			return err
		}
		fmt.Printf("  PC=0x%x  SP=0x%x  FP=0x%x  LR=0x%x\n",
			pc, sp, special[armemu.RegFP], special[armemu.RegLR])
	} else {
		special, err := ctx.RegReadBatch(armemu.RegR13, armemu.RegR14, armemu.RegR15)
		if err != nil {
			return err
		}
		sp = special[armemu.RegR13]
		fmt.Printf("  PC=0x%x  SP=0x%x  LR=0x%x\n",
			special[armemu.RegR15], sp, special[armemu.RegR14])
	}

	fmt.Printf("\n=== Stack Analysis ===\n")
	fmt.Printf("Stack change: %d bytes\n\n", int64(sp)-int64(initialSP))

	// Show some context below the stack pointer safely (no underflow)
	lo := max(min(sp, initialSP), initialSP-stackSize)
	lo -= min(lo-(initialSP-stackSize), 64)
	lo = align.Down(lo, 16)
	if lo >= initialSP {
		return nil
	}
	data, err := ctx.MemRead(lo, initialSP-lo)
	if err != nil {
		return err
	}
	fmt.Print(utils.HexDump(data, lo))
	return nil
}
