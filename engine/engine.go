// Package engine defines the boundary between the armemu facade and the CPU
// emulation core it drives.
//
// An Engine is loaded once per process and opens any number of independent
// Handles. Every Handle entry point reports an integer Status where zero means
// success; all other values are engine-defined and are carried verbatim to
// the caller.
package engine

import "strings"

// Status is the raw result code of an engine entry point.
type Status int64

// StatusOK is the only status every engine agrees on.
const StatusOK Status = 0

// StatusUnsupported is reported for entry points an engine or context cannot
// serve, such as the AArch64 special registers on a 32-bit context.
const StatusUnsupported Status = -1

// Perm is the memory permission bitmask understood by every bundled engine.
type Perm uint32

const (
	PermNone  Perm = 0
	PermRead  Perm = 1 << 0
	PermWrite Perm = 1 << 1
	PermExec  Perm = 1 << 2

	PermAll = PermRead | PermWrite | PermExec
)

func (p Perm) String() string {
	var sb strings.Builder
	sb.WriteByte(permChar(p&PermRead != 0, 'r'))
	sb.WriteByte(permChar(p&PermWrite != 0, 'w'))
	sb.WriteByte(permChar(p&PermExec != 0, 'x'))
	return sb.String()
}

func permChar(set bool, c byte) byte {
	if set {
		return c
	}
	return '-'
}

// Engine is a loadable emulation core.
type Engine interface {
	// Name is the registry key, e.g. "soft" or "unicorn".
	Name() string
	// Load performs the process-wide initialization of the engine, such as
	// probing its shared library. It is called at most once per process.
	Load() error
	// Open allocates a new emulation context.
	Open(is64Bit bool) (Handle, error)
}

// Describer is implemented by engines that can explain their status codes.
type Describer interface {
	DescribeStatus(code Status) string
}

// PageSizer is implemented by engines with a fixed mapping granularity.
type PageSizer interface {
	PageSize() uint64
}

// SVCHandler receives supervisor calls made by the guest. pc is the address
// of the svc instruction and swi its immediate. It runs on the goroutine that
// called Start, before execution resumes after the svc.
type SVCHandler func(pc uint64, swi uint32)

// Hooker is implemented by handles that can report supervisor calls.
type Hooker interface {
	// SetSVCHandler installs fn in place of any earlier handler. A nil fn
	// removes it.
	SetSVCHandler(fn SVCHandler) Status
}

// Handle is one live emulation context. Implementations need not be safe for
// concurrent use, with one exception: Stop may be called from another
// goroutine while Start is running.
type Handle interface {
	MemMap(addr, size uint64, perms Perm) Status
	MemUnmap(addr, size uint64) Status
	MemProtect(addr, size uint64, perms Perm) Status
	MemWrite(addr uint64, data []byte) Status
	MemRead(addr, size uint64) ([]byte, Status)

	RegWrite(index int, value uint64) Status
	RegRead(index int) (uint64, Status)
	SetSP(value uint64) Status
	SP() (uint64, Status)
	SetTPIDR(value uint64) Status
	PC() (uint64, Status)

	Start(pc uint64) Status
	Stop() Status

	// Destroy releases the context. The facade calls it exactly once.
	Destroy()
}
