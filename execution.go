package armemu

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/blacktop/go-armemu/engine"
)

// Start runs the context from pc until the engine stops. Engines without an
// execution core return their "unsupported" status as an EmulationFault. On
// 32-bit contexts bit 0 of pc selects Thumb state.
func (c *Context) Start(pc uint64) error {
	attrs := func() []slog.Attr { return []slog.Attr{hexAttr("pc", pc)} }
	return c.call("start", attrs, func(h engine.Handle) engine.Status {
		c.setRunning(h)
		defer c.setRunning(nil)

		start := time.Now()
		defer func() {
			recordRun(time.Since(start))
		}()
		return h.Start(pc)
	})
}

func (c *Context) setRunning(h engine.Handle) {
	c.runMu.Lock()
	c.running = h
	c.runMu.Unlock()
}

// Stop asks a running Start to return. It may be called from another
// goroutine, including while Close is waiting for that Start to finish.
func (c *Context) Stop() error {
	if c == nil {
		return ErrContextReleased
	}
	stop := func(h engine.Handle) (struct{}, engine.Status) {
		return struct{}{}, h.Stop()
	}

	for {
		c.runMu.Lock()
		if h := c.running; h != nil {
			defer c.runMu.Unlock()
			_, err := dispatch(c, h, "stop", nil, stop)
			return err
		}
		c.runMu.Unlock()

		// TryRLock fails while Close holds or waits for the lock. Close may be
		// waiting on a Start that has not published its handle yet, so look
		// again instead of queueing behind it.
		if c.closeMu.TryRLock() {
			defer c.closeMu.RUnlock()
			if c.handle == nil {
				return fmt.Errorf("%w: stop", ErrContextReleased)
			}
			_, err := dispatch(c, c.handle, "stop", nil, stop)
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

// OnSVC installs fn to be called for every supervisor call the guest makes
// while Start is running. pc is the address of the svc instruction and swi
// its immediate. fn may use the context's other methods. A nil fn removes the
// handler. Engines that cannot report supervisor calls fail with their
// unsupported status.
func (c *Context) OnSVC(fn func(pc uint64, swi uint32)) error {
	attrs := func() []slog.Attr { return []slog.Attr{slog.Bool("installed", fn != nil)} }
	return c.call("svc_hook", attrs, func(h engine.Handle) engine.Status {
		hk, ok := h.(engine.Hooker)
		if !ok {
			return engine.StatusUnsupported
		}
		if fn == nil {
			return hk.SetSVCHandler(nil)
		}
		return hk.SetSVCHandler(func(pc uint64, swi uint32) {
			c.inSVC.Store(true)
			defer c.inSVC.Store(false)
			recordSVC()
			fn(pc, swi)
		})
	})
}
