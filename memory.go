package armemu

import (
	"log/slog"
	"math"

	"github.com/blacktop/go-armemu/engine"
)

// maxReadSize bounds a single MemRead allocation.
const maxReadSize = math.MaxInt32

func regionAttrs(addr, size uint64, perms MemPerm, withPerms bool) func() []slog.Attr {
	return func() []slog.Attr {
		attrs := []slog.Attr{hexAttr("address", addr), hexAttr("size", size)}
		if withPerms {
			attrs = append(attrs, slog.String("perms", perms.String()))
		}
		return attrs
	}
}

// checkRegion applies the only local checks the region operations make:
// a non-empty range that does not wrap the address space. Alignment and
// overlap are left to the engine.
func (c *Context) checkRegion(op string, addr, size uint64) error {
	if size == 0 {
		return c.invalid(op, "size", size, "must be non-zero")
	}
	if addr > math.MaxUint64-size {
		return c.invalid(op, "size", size, "address range would overflow")
	}
	return nil
}

// MemMap maps size bytes at addr with perms.
func (c *Context) MemMap(addr, size uint64, perms MemPerm) error {
	const op = "mem_map"
	if err := c.checkRegion(op, addr, size); err != nil {
		return err
	}
	err := c.call(op, regionAttrs(addr, size, perms, true), func(h engine.Handle) engine.Status {
		return h.MemMap(addr, size, perms)
	})
	if err != nil {
		return err
	}
	recordMapOperation()
	return nil
}

// MemUnmap removes [addr, addr+size) from the address space. Unmapping a
// range that is not mapped is reported by the engine, not here.
func (c *Context) MemUnmap(addr, size uint64) error {
	const op = "mem_unmap"
	if err := c.checkRegion(op, addr, size); err != nil {
		return err
	}
	err := c.call(op, regionAttrs(addr, size, MemNone, false), func(h engine.Handle) engine.Status {
		return h.MemUnmap(addr, size)
	})
	if err != nil {
		return err
	}
	recordUnmapOperation()
	return nil
}

// MemProtect changes the permissions of a mapped range.
func (c *Context) MemProtect(addr, size uint64, perms MemPerm) error {
	const op = "mem_protect"
	if err := c.checkRegion(op, addr, size); err != nil {
		return err
	}
	err := c.call(op, regionAttrs(addr, size, perms, true), func(h engine.Handle) engine.Status {
		return h.MemProtect(addr, size, perms)
	})
	if err != nil {
		return err
	}
	recordProtectOperation()
	return nil
}

// MemWrite copies data into the emulated address space at addr. The range
// must already be mapped; the engine reports it if not.
func (c *Context) MemWrite(addr uint64, data []byte) error {
	const op = "mem_write"
	if addr > math.MaxUint64-uint64(len(data)) {
		return c.invalid(op, "size", len(data), "address range would overflow")
	}
	attrs := func() []slog.Attr {
		return []slog.Attr{hexAttr("address", addr), slog.Int("size", len(data))}
	}
	err := c.call(op, attrs, func(h engine.Handle) engine.Status {
		return h.MemWrite(addr, data)
	})
	if err != nil {
		return err
	}
	recordMemWrite(len(data))
	return nil
}

// MemRead returns size bytes starting at addr.
func (c *Context) MemRead(addr, size uint64) ([]byte, error) {
	const op = "mem_read"
	if err := c.checkRegion(op, addr, size); err != nil {
		return nil, err
	}
	if size > maxReadSize {
		return nil, c.invalid(op, "size", size, "read too large")
	}
	attrs := func() []slog.Attr {
		return []slog.Attr{hexAttr("address", addr), hexAttr("size", size)}
	}
	data, err := invoke(c, op, attrs, func(h engine.Handle) ([]byte, engine.Status) {
		return h.MemRead(addr, size)
	})
	if err != nil {
		return nil, err
	}
	recordMemRead()
	return data, nil
}
