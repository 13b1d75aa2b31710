//go:build unicorn

package unicorn

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/blacktop/go-armemu/engine"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// Name is the registry key of this engine.
const Name = "unicorn"

// PageSize is Unicorn's mapping granularity.
const PageSize uint64 = 0x1000

// StatusUnsupported is returned by entry points that have no meaning on a
// 32-bit context.
const StatusUnsupported = engine.StatusUnsupported

// excpSWI is the interrupt number Unicorn raises for svc on both
// architectures.
const excpSWI = 2

func init() {
	engine.Register(New())
}

var regs64 = [...]int{
	uc.ARM64_REG_X0,
	uc.ARM64_REG_X1,
	uc.ARM64_REG_X2,
	uc.ARM64_REG_X3,
	uc.ARM64_REG_X4,
	uc.ARM64_REG_X5,
	uc.ARM64_REG_X6,
	uc.ARM64_REG_X7,
	uc.ARM64_REG_X8,
	uc.ARM64_REG_X9,
	uc.ARM64_REG_X10,
	uc.ARM64_REG_X11,
	uc.ARM64_REG_X12,
	uc.ARM64_REG_X13,
	uc.ARM64_REG_X14,
	uc.ARM64_REG_X15,
	uc.ARM64_REG_X16,
	uc.ARM64_REG_X17,
	uc.ARM64_REG_X18,
	uc.ARM64_REG_X19,
	uc.ARM64_REG_X20,
	uc.ARM64_REG_X21,
	uc.ARM64_REG_X22,
	uc.ARM64_REG_X23,
	uc.ARM64_REG_X24,
	uc.ARM64_REG_X25,
	uc.ARM64_REG_X26,
	uc.ARM64_REG_X27,
	uc.ARM64_REG_X28,
	uc.ARM64_REG_FP,
	uc.ARM64_REG_LR,
}

var regs32 = [...]int{
	uc.ARM_REG_R0,
	uc.ARM_REG_R1,
	uc.ARM_REG_R2,
	uc.ARM_REG_R3,
	uc.ARM_REG_R4,
	uc.ARM_REG_R5,
	uc.ARM_REG_R6,
	uc.ARM_REG_R7,
	uc.ARM_REG_R8,
	uc.ARM_REG_R9,
	uc.ARM_REG_R10,
	uc.ARM_REG_R11,
	uc.ARM_REG_R12,
	uc.ARM_REG_SP,
	uc.ARM_REG_LR,
	uc.ARM_REG_PC,
}

// Engine opens Unicorn contexts.
type Engine struct{}

// New returns the unicorn engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Name() string     { return Name }
func (e *Engine) PageSize() uint64 { return PageSize }

// Load probes the shared library by creating and closing an AArch64
// instance.
func (e *Engine) Load() error {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return err
	}
	return mu.Close()
}

func (e *Engine) Open(is64Bit bool) (engine.Handle, error) {
	arch := uc.ARCH_ARM
	if is64Bit {
		arch = uc.ARCH_ARM64
	}
	mu, err := uc.NewUnicorn(arch, uc.MODE_ARM)
	if err != nil {
		return nil, err
	}
	return &cpu{mu: mu, is64: is64Bit}, nil
}

func (e *Engine) DescribeStatus(code engine.Status) string {
	if code == StatusUnsupported {
		return "not available on 32-bit contexts"
	}
	return uc.UcError(code).Error()
}

// status maps a binding error back to its uc_err value.
func status(err error) engine.Status {
	if err == nil {
		return engine.StatusOK
	}
	var ue uc.UcError
	if errors.As(err, &ue) {
		return engine.Status(ue)
	}
	return engine.Status(uc.ERR_EXCEPTION)
}

type cpu struct {
	mu   uc.Unicorn
	is64 bool

	svc    engine.SVCHandler
	intr   uc.Hook
	hooked bool
	fault  bool // an interrupt without a handler ended the run
}

// Permission bits are identical to uc_prot.
func prot(p engine.Perm) int {
	return int(p & engine.PermAll)
}

func (c *cpu) MemMap(addr, size uint64, perms engine.Perm) engine.Status {
	return status(c.mu.MemMapProt(addr, size, prot(perms)))
}

func (c *cpu) MemUnmap(addr, size uint64) engine.Status {
	return status(c.mu.MemUnmap(addr, size))
}

func (c *cpu) MemProtect(addr, size uint64, perms engine.Perm) engine.Status {
	return status(c.mu.MemProtect(addr, size, prot(perms)))
}

func (c *cpu) MemWrite(addr uint64, data []byte) engine.Status {
	return status(c.mu.MemWrite(addr, data))
}

func (c *cpu) MemRead(addr, size uint64) ([]byte, engine.Status) {
	data, err := c.mu.MemRead(addr, size)
	if err != nil {
		return nil, status(err)
	}
	return data, engine.StatusOK
}

func (c *cpu) reg(index int) (int, bool) {
	if c.is64 {
		if index < 0 || index >= len(regs64) {
			return 0, false
		}
		return regs64[index], true
	}
	if index < 0 || index >= len(regs32) {
		return 0, false
	}
	return regs32[index], true
}

func (c *cpu) RegWrite(index int, value uint64) engine.Status {
	r, ok := c.reg(index)
	if !ok {
		return engine.Status(uc.ERR_ARG)
	}
	if !c.is64 {
		value = uint64(uint32(value))
	}
	return status(c.mu.RegWrite(r, value))
}

func (c *cpu) RegRead(index int) (uint64, engine.Status) {
	r, ok := c.reg(index)
	if !ok {
		return 0, engine.Status(uc.ERR_ARG)
	}
	v, err := c.mu.RegRead(r)
	return v, status(err)
}

// The special register entry points are AArch64 only.

func (c *cpu) write64(reg int, value uint64) engine.Status {
	if !c.is64 {
		return StatusUnsupported
	}
	return status(c.mu.RegWrite(reg, value))
}

func (c *cpu) read64(reg int) (uint64, engine.Status) {
	if !c.is64 {
		return 0, StatusUnsupported
	}
	v, err := c.mu.RegRead(reg)
	return v, status(err)
}

func (c *cpu) SetSP(value uint64) engine.Status    { return c.write64(uc.ARM64_REG_SP, value) }
func (c *cpu) SP() (uint64, engine.Status)         { return c.read64(uc.ARM64_REG_SP) }
func (c *cpu) SetTPIDR(value uint64) engine.Status { return c.write64(uc.ARM64_REG_TPIDR_EL0, value) }
func (c *cpu) PC() (uint64, engine.Status)         { return c.read64(uc.ARM64_REG_PC) }

// Start runs until Stop or a fault. On 32-bit contexts Unicorn takes bit 0
// of pc as the Thumb bit.
func (c *cpu) Start(pc uint64) engine.Status {
	until := uint64(math.MaxUint64)
	if !c.is64 {
		until = math.MaxUint32
	}
	c.fault = false
	if err := c.mu.Start(pc, until); err != nil {
		return status(err)
	}
	if c.fault {
		return engine.Status(uc.ERR_EXCEPTION)
	}
	return engine.StatusOK
}

func (c *cpu) Stop() engine.Status {
	return status(c.mu.Stop())
}

func (c *cpu) SetSVCHandler(fn engine.SVCHandler) engine.Status {
	c.svc = fn
	if fn == nil {
		if !c.hooked {
			return engine.StatusOK
		}
		c.hooked = false
		return status(c.mu.HookDel(c.intr))
	}
	if c.hooked {
		return engine.StatusOK
	}
	h, err := c.mu.HookAdd(uc.HOOK_INTR, c.interrupt, 1, 0)
	if err != nil {
		return status(err)
	}
	c.intr, c.hooked = h, true
	return engine.StatusOK
}

// interrupt hands svc to the handler. Unicorn resumes after any interrupt a
// hook accepts, so everything else stops the run as a fault.
func (c *cpu) interrupt(mu uc.Unicorn, intno uint32) {
	if intno != excpSWI || c.svc == nil {
		c.fault = true
		mu.Stop()
		return
	}
	pc, swi, err := c.svcSite(mu)
	if err != nil {
		c.fault = true
		mu.Stop()
		return
	}
	c.svc(pc, swi)
}

// svcSite decodes the svc that was just executed. PC already points past it.
func (c *cpu) svcSite(mu uc.Unicorn) (uint64, uint32, error) {
	if c.is64 {
		next, err := mu.RegRead(uc.ARM64_REG_PC)
		if err != nil {
			return 0, 0, err
		}
		insn, err := mu.MemRead(next-4, 4)
		if err != nil {
			return 0, 0, err
		}
		return next - 4, (binary.LittleEndian.Uint32(insn)>>5)&0xffff, nil
	}

	next, err := mu.RegRead(uc.ARM_REG_PC)
	if err != nil {
		return 0, 0, err
	}
	cpsr, err := mu.RegRead(uc.ARM_REG_CPSR)
	if err != nil {
		return 0, 0, err
	}
	if cpsr&(1<<5) != 0 { // Thumb
		insn, err := mu.MemRead(next-2, 2)
		if err != nil {
			return 0, 0, err
		}
		return next - 2, uint32(insn[0]), nil
	}
	insn, err := mu.MemRead(next-4, 4)
	if err != nil {
		return 0, 0, err
	}
	return next - 4, binary.LittleEndian.Uint32(insn) & 0xffffff, nil
}

func (c *cpu) Destroy() {
	c.mu.Close()
}
