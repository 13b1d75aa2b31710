//go:build darwin && arm64

package hvf

/*
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_error.h>

#ifndef HV_MEMORY_READ
#define HV_MEMORY_READ (1<<0)
#endif
#ifndef HV_MEMORY_WRITE
#define HV_MEMORY_WRITE (1<<1)
#endif
#ifndef HV_MEMORY_EXEC
#define HV_MEMORY_EXEC (1<<2)
#endif

static int go_hv_flags(int r, int w, int x) {
	int flags = 0;
	if (r) flags |= HV_MEMORY_READ;
	if (w) flags |= HV_MEMORY_WRITE;
	if (x) flags |= HV_MEMORY_EXEC;
	return flags;
}

// Wrappers construct flags using framework macros without exposing values to Go.
static int go_hv_vm_map(void* addr, unsigned long long gpa, unsigned long long size, int r, int w, int x) {
	return hv_vm_map(addr, gpa, (size_t)size, go_hv_flags(r, w, x));
}

static int go_hv_vm_unmap(unsigned long long gpa, unsigned long long size) {
	return hv_vm_unmap(gpa, (size_t)size);
}

static int go_hv_vm_protect(unsigned long long gpa, unsigned long long size, int r, int w, int x) {
	return hv_vm_protect(gpa, (size_t)size, go_hv_flags(r, w, x));
}
*/
import "C"

import (
	"math"
	"unsafe"

	"github.com/blacktop/go-armemu/engine"
	"github.com/blacktop/go-armemu/internal/align"
	"golang.org/x/sys/unix"
)

// region is one host mapping created by MemMap. It is released when its last
// page is unmapped.
type region struct {
	mem  []byte
	live int
}

type hostPage struct {
	r   *region
	off uint64
}

func (p *hostPage) bytes(ps uint64) []byte {
	return p.r.mem[p.off : p.off+ps]
}

func permBits(perms engine.Perm) (r, w, x C.int) {
	if perms&engine.PermRead != 0 {
		r = 1
	}
	if perms&engine.PermWrite != 0 {
		w = 1
	}
	if perms&engine.PermExec != 0 {
		x = 1
	}
	return
}

func (v *vm) checkRange(addr, size uint64) engine.Status {
	if !align.Is(addr, v.ps) {
		return StatusMisaligned
	}
	if size == 0 || !align.Is(size, v.ps) || size > math.MaxInt32 {
		return StatusMisaligned
	}
	return engine.StatusOK
}

// allMapped reports whether every page of [addr, addr+size) is mapped.
func (v *vm) allMapped(addr, size uint64) bool {
	for p := addr; p < addr+size; p += v.ps {
		if _, ok := v.pages[p]; !ok {
			return false
		}
	}
	return true
}

func (v *vm) MemMap(addr, size uint64, perms engine.Perm) engine.Status {
	if st := v.checkRange(addr, size); st != engine.StatusOK {
		return st
	}
	for p := addr; p < addr+size; p += v.ps {
		if _, ok := v.pages[p]; ok {
			return StatusMapped
		}
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return StatusNoMemory
	}
	r, w, x := permBits(perms)
	ret := C.go_hv_vm_map(unsafe.Pointer(&mem[0]), C.ulonglong(addr), C.ulonglong(size), r, w, x)
	if ret != 0 {
		unix.Munmap(mem)
		return engine.Status(uint32(ret))
	}

	reg := &region{mem: mem, live: int(size / v.ps)}
	for off := uint64(0); off < size; off += v.ps {
		v.pages[addr+off] = &hostPage{r: reg, off: off}
	}
	return engine.StatusOK
}

func (v *vm) MemUnmap(addr, size uint64) engine.Status {
	if st := v.checkRange(addr, size); st != engine.StatusOK {
		return st
	}
	if !v.allMapped(addr, size) {
		return StatusNotMapped
	}
	if ret := C.go_hv_vm_unmap(C.ulonglong(addr), C.ulonglong(size)); ret != 0 {
		return engine.Status(uint32(ret))
	}
	for p := addr; p < addr+size; p += v.ps {
		hp := v.pages[p]
		delete(v.pages, p)
		if hp.r.live--; hp.r.live == 0 {
			unix.Munmap(hp.r.mem)
		}
	}
	return engine.StatusOK
}

func (v *vm) MemProtect(addr, size uint64, perms engine.Perm) engine.Status {
	if st := v.checkRange(addr, size); st != engine.StatusOK {
		return st
	}
	if !v.allMapped(addr, size) {
		return StatusNotMapped
	}
	r, w, x := permBits(perms)
	if ret := C.go_hv_vm_protect(C.ulonglong(addr), C.ulonglong(size), r, w, x); ret != 0 {
		return engine.Status(uint32(ret))
	}
	return engine.StatusOK
}

// span calls fn for every page piece of [addr, addr+size) once all pages are
// known to be mapped. Stage 2 permissions do not apply to host copies.
func (v *vm) span(addr, size uint64, fn func(chunk []byte, off uint64)) engine.Status {
	if size == 0 {
		return engine.StatusOK
	}
	first := align.Down(addr, v.ps)
	if !v.allMapped(first, align.Up(addr+size, v.ps)-first) {
		return StatusNotMapped
	}
	var done uint64
	for done < size {
		cur := addr + done
		base := align.Down(cur, v.ps)
		in := cur - base
		n := min(v.ps-in, size-done)
		fn(v.pages[base].bytes(v.ps)[in:in+n], done)
		done += n
	}
	return engine.StatusOK
}

func (v *vm) MemWrite(addr uint64, data []byte) engine.Status {
	return v.span(addr, uint64(len(data)), func(chunk []byte, off uint64) {
		copy(chunk, data[off:])
	})
}

func (v *vm) MemRead(addr, size uint64) ([]byte, engine.Status) {
	out := make([]byte, size)
	st := v.span(addr, size, func(chunk []byte, off uint64) {
		copy(out[off:], chunk)
	})
	if st != engine.StatusOK {
		return nil, st
	}
	return out, engine.StatusOK
}
