// Package softcore is a pure Go emulation context that keeps the same page
// bookkeeping and status codes as the native ARM binding: 4 KiB pages held in
// a map keyed by page base, per-page permissions, and a register file. It
// does not execute instructions.
package softcore

import (
	"github.com/blacktop/go-armemu/engine"
	"github.com/blacktop/go-armemu/internal/align"
)

// Name is the registry key of this engine.
const Name = "soft"

// PageSize is the mapping granularity.
const PageSize uint64 = 0x1000

// Status codes. Codes 1 and 3 are shared between entry points the same way
// the native engine shares them.
const (
	StatusMisaligned  engine.Status = 1 // map/unmap/protect: address not page aligned
	StatusUnmapped    engine.Status = 1 // read/write: a touched page is not mapped
	StatusBadRegister engine.Status = 1 // register index outside the register file
	StatusBadSize     engine.Status = 2
	StatusConflict    engine.Status = 3 // map: already mapped; unmap/protect: not mapped
	StatusNoMemory    engine.Status = 4
	StatusOutOfRange  engine.Status = 5
	StatusUnsupported engine.Status = engine.StatusUnsupported
)

// DefaultMaxPages caps a context at 4 GiB of mapped memory unless
// WithMaxPages says otherwise.
const DefaultMaxPages = 1 << 20

const (
	regCount64 = 31
	regCount32 = 16

	addrLimit32 uint64 = 1 << 32
)

// Engine opens soft contexts.
type Engine struct {
	maxPages int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxPages caps the number of pages a single context may map. Zero or a
// negative n removes the cap.
func WithMaxPages(n int) Option {
	return func(e *Engine) {
		e.maxPages = n
	}
}

// New returns a soft engine.
func New(opts ...Option) *Engine {
	e := &Engine{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string     { return Name }
func (e *Engine) Load() error      { return nil }
func (e *Engine) PageSize() uint64 { return PageSize }

func (e *Engine) Open(is64Bit bool) (engine.Handle, error) {
	return &cpu{
		is64:     is64Bit,
		pages:    make(map[uint64]*page),
		maxPages: e.maxPages,
	}, nil
}

func (e *Engine) DescribeStatus(code engine.Status) string {
	switch code {
	case 1:
		return "address not page aligned, memory not mapped or register invalid"
	case StatusBadSize:
		return "size zero or not a page multiple"
	case StatusConflict:
		return "page mapping conflict"
	case StatusNoMemory:
		return "page limit exceeded"
	case StatusOutOfRange:
		return "range outside the 32-bit address space"
	case StatusUnsupported:
		return "operation unsupported for this context"
	default:
		return ""
	}
}

// page data is allocated on the first write; an untouched page reads as
// zeros.
type page struct {
	data  []byte
	perms engine.Perm
}

type cpu struct {
	is64     bool
	pages    map[uint64]*page
	maxPages int

	regs  [regCount64]uint64
	sp    uint64
	tpidr uint64
	pc    uint64
}

// checkRange validates the arguments shared by map, unmap and protect.
func (c *cpu) checkRange(addr, size uint64) engine.Status {
	if !align.Is(addr, PageSize) {
		return StatusMisaligned
	}
	if size == 0 || !align.Is(size, PageSize) || addr+size < addr {
		return StatusBadSize
	}
	if !c.is64 && addr+size > addrLimit32 {
		return StatusOutOfRange
	}
	return engine.StatusOK
}

func (c *cpu) MemMap(addr, size uint64, perms engine.Perm) engine.Status {
	if st := c.checkRange(addr, size); st != engine.StatusOK {
		return st
	}
	// checked first so an oversized request never walks its pages
	if c.maxPages > 0 && size/PageSize > uint64(c.maxPages-len(c.pages)) {
		return StatusNoMemory
	}
	for vaddr := addr; vaddr < addr+size; vaddr += PageSize {
		if _, ok := c.pages[vaddr]; ok {
			return StatusConflict
		}
	}
	for vaddr := addr; vaddr < addr+size; vaddr += PageSize {
		c.pages[vaddr] = &page{perms: perms}
	}
	return engine.StatusOK
}

func (c *cpu) MemUnmap(addr, size uint64) engine.Status {
	if st := c.checkRange(addr, size); st != engine.StatusOK {
		return st
	}
	for vaddr := addr; vaddr < addr+size; vaddr += PageSize {
		if _, ok := c.pages[vaddr]; !ok {
			return StatusConflict
		}
	}
	for vaddr := addr; vaddr < addr+size; vaddr += PageSize {
		delete(c.pages, vaddr)
	}
	return engine.StatusOK
}

func (c *cpu) MemProtect(addr, size uint64, perms engine.Perm) engine.Status {
	if st := c.checkRange(addr, size); st != engine.StatusOK {
		return st
	}
	for vaddr := addr; vaddr < addr+size; vaddr += PageSize {
		if _, ok := c.pages[vaddr]; !ok {
			return StatusConflict
		}
	}
	for vaddr := addr; vaddr < addr+size; vaddr += PageSize {
		c.pages[vaddr].perms = perms
	}
	return engine.StatusOK
}

// span calls fn for every page chunk of [addr, addr+size). The whole range is
// checked before fn runs so accesses are all or nothing.
func (c *cpu) span(addr, size uint64, fn func(p *page, start, stop, off uint64)) engine.Status {
	end := addr + size
	if end < addr {
		return StatusUnmapped
	}
	for vaddr := align.Down(addr, PageSize); vaddr < end; vaddr += PageSize {
		if _, ok := c.pages[vaddr]; !ok {
			return StatusUnmapped
		}
	}
	var off uint64
	for vaddr := align.Down(addr, PageSize); vaddr < end; vaddr += PageSize {
		start := uint64(0)
		if vaddr < addr {
			start = addr - vaddr
		}
		stop := PageSize
		if vaddr+PageSize > end {
			stop = end - vaddr
		}
		fn(c.pages[vaddr], start, stop, off)
		off += stop - start
	}
	return engine.StatusOK
}

func (c *cpu) MemWrite(addr uint64, data []byte) engine.Status {
	return c.span(addr, uint64(len(data)), func(p *page, start, stop, off uint64) {
		if p.data == nil {
			p.data = make([]byte, PageSize)
		}
		copy(p.data[start:stop], data[off:])
	})
}

func (c *cpu) MemRead(addr, size uint64) ([]byte, engine.Status) {
	out := make([]byte, size)
	st := c.span(addr, size, func(p *page, start, stop, off uint64) {
		if p.data != nil {
			copy(out[off:], p.data[start:stop])
		}
	})
	if st != engine.StatusOK {
		return nil, st
	}
	return out, engine.StatusOK
}

func (c *cpu) regCount() int {
	if c.is64 {
		return regCount64
	}
	return regCount32
}

func (c *cpu) RegWrite(index int, value uint64) engine.Status {
	if index < 0 || index >= c.regCount() {
		return StatusBadRegister
	}
	if !c.is64 {
		value = uint64(uint32(value))
	}
	c.regs[index] = value
	return engine.StatusOK
}

func (c *cpu) RegRead(index int) (uint64, engine.Status) {
	if index < 0 || index >= c.regCount() {
		return 0, StatusBadRegister
	}
	return c.regs[index], engine.StatusOK
}

func (c *cpu) SetSP(value uint64) engine.Status {
	if !c.is64 {
		return StatusUnsupported
	}
	c.sp = value
	return engine.StatusOK
}

func (c *cpu) SP() (uint64, engine.Status) {
	if !c.is64 {
		return 0, StatusUnsupported
	}
	return c.sp, engine.StatusOK
}

func (c *cpu) SetTPIDR(value uint64) engine.Status {
	if !c.is64 {
		return StatusUnsupported
	}
	c.tpidr = value
	return engine.StatusOK
}

func (c *cpu) PC() (uint64, engine.Status) {
	if !c.is64 {
		return 0, StatusUnsupported
	}
	return c.pc, engine.StatusOK
}

func (c *cpu) Start(pc uint64) engine.Status { return StatusUnsupported }

// SetSVCHandler reports StatusUnsupported; nothing here executes code that
// could make a supervisor call.
func (c *cpu) SetSVCHandler(fn engine.SVCHandler) engine.Status { return StatusUnsupported }
func (c *cpu) Stop() engine.Status           { return StatusUnsupported }

func (c *cpu) Destroy() {
	clear(c.pages)
	c.pages = nil
}

// Perms reports the permissions of the page containing addr. It exists for
// tests and tooling that want to inspect bookkeeping without going through
// the facade.
func Perms(h engine.Handle, addr uint64) (engine.Perm, bool) {
	c, ok := h.(*cpu)
	if !ok {
		return engine.PermNone, false
	}
	p, ok := c.pages[align.Down(addr, PageSize)]
	if !ok {
		return engine.PermNone, false
	}
	return p.perms, true
}
