package armemu

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/blacktop/go-armemu/engine"
)

// Reg is a general purpose register index.
type Reg int

const (
	RegX0 Reg = iota
	RegX1
	RegX2
	RegX3
	RegX4
	RegX5
	RegX6
	RegX7
	RegX8
	RegX9
	RegX10
	RegX11
	RegX12
	RegX13
	RegX14
	RegX15
	RegX16
	RegX17
	RegX18
	RegX19
	RegX20
	RegX21
	RegX22
	RegX23
	RegX24
	RegX25
	RegX26
	RegX27
	RegX28
	RegFP // X29
	RegLR // X30
)

// Register file bounds accepted by RegWrite and RegRead.
const (
	MinReg = RegX0
	MaxReg = RegLR
)

// 32-bit aliases.
const (
	RegR13 = RegX13 // SP in AArch32
	RegR14 = RegX14 // LR in AArch32
	RegR15 = RegX15 // PC in AArch32
)

func (r Reg) String() string {
	switch {
	case r == RegFP:
		return "fp"
	case r == RegLR:
		return "lr"
	case r >= RegX0 && r <= RegX28:
		return fmt.Sprintf("x%d", int(r))
	default:
		return fmt.Sprintf("reg(%d)", int(r))
	}
}

func (r Reg) valid() bool {
	return r >= MinReg && r <= MaxReg
}

func (c *Context) checkReg(op string, r Reg) error {
	if !r.valid() {
		return c.invalid(op, "index", int(r), fmt.Sprintf("must be %d-%d", MinReg, MaxReg))
	}
	return nil
}

// RegWrite writes a general purpose register. Indices outside 0-30 are
// rejected without reaching the engine.
func (c *Context) RegWrite(r Reg, value uint64) error {
	const op = "reg_write"
	if err := c.checkReg(op, r); err != nil {
		return err
	}
	attrs := func() []slog.Attr {
		return []slog.Attr{slog.Int("index", int(r)), hexAttr("value", value)}
	}
	err := c.call(op, attrs, func(h engine.Handle) engine.Status {
		return h.RegWrite(int(r), value)
	})
	if err != nil {
		return err
	}
	recordRegisterWrite()
	return nil
}

// RegRead reads a general purpose register.
func (c *Context) RegRead(r Reg) (uint64, error) {
	const op = "reg_read"
	if err := c.checkReg(op, r); err != nil {
		return 0, err
	}
	attrs := func() []slog.Attr {
		return []slog.Attr{slog.Int("index", int(r))}
	}
	v, err := invoke(c, op, attrs, func(h engine.Handle) (uint64, engine.Status) {
		return h.RegRead(int(r))
	})
	if err != nil {
		return 0, err
	}
	recordRegisterRead()
	return v, nil
}

// SetSP writes the stack pointer.
func (c *Context) SetSP(value uint64) error {
	attrs := func() []slog.Attr { return []slog.Attr{hexAttr("value", value)} }
	err := c.call("set_sp", attrs, func(h engine.Handle) engine.Status {
		return h.SetSP(value)
	})
	if err != nil {
		return err
	}
	recordRegisterWrite()
	return nil
}

// SP reads the stack pointer.
func (c *Context) SP() (uint64, error) {
	v, err := invoke(c, "sp", nil, func(h engine.Handle) (uint64, engine.Status) {
		return h.SP()
	})
	if err != nil {
		return 0, err
	}
	recordRegisterRead()
	return v, nil
}

// SetTPIDR writes the thread pointer (TPIDR_EL0), the TLS base.
func (c *Context) SetTPIDR(value uint64) error {
	attrs := func() []slog.Attr { return []slog.Attr{hexAttr("value", value)} }
	err := c.call("set_tpidr", attrs, func(h engine.Handle) engine.Status {
		return h.SetTPIDR(value)
	})
	if err != nil {
		return err
	}
	recordRegisterWrite()
	return nil
}

// PC reads the program counter.
func (c *Context) PC() (uint64, error) {
	v, err := invoke(c, "pc", nil, func(h engine.Handle) (uint64, engine.Status) {
		return h.PC()
	})
	if err != nil {
		return 0, err
	}
	recordRegisterRead()
	return v, nil
}

// RegBatch maps registers to values.
type RegBatch map[Reg]uint64

// RegReadBatch reads several registers.
func (c *Context) RegReadBatch(regs ...Reg) (RegBatch, error) {
	batch := make(RegBatch, len(regs))
	for _, reg := range regs {
		val, err := c.RegRead(reg)
		if err != nil {
			return nil, err
		}
		batch[reg] = val
	}
	return batch, nil
}

// RegWriteBatch writes every register in batch in ascending index order and
// stops at the first error.
func (c *Context) RegWriteBatch(batch RegBatch) error {
	regs := make([]Reg, 0, len(batch))
	for reg := range batch {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	for _, reg := range regs {
		if err := c.RegWrite(reg, batch[reg]); err != nil {
			return err
		}
	}
	return nil
}
