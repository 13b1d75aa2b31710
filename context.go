package armemu

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blacktop/go-armemu/engine"
)

// MemPerm represents guest memory permissions.
type MemPerm = engine.Perm

const (
	MemNone  = engine.PermNone
	MemRead  = engine.PermRead
	MemWrite = engine.PermWrite
	MemExec  = engine.PermExec
	MemAll   = engine.PermAll
)

// Context is one emulated CPU with its own address space and register file.
//
// A Context owns exactly one engine handle from New until Close. Calls on a
// single Context must be serialized by the caller, with the exception of Stop
// which may be called while Start is running. Independent contexts may be
// driven from different goroutines.
type Context struct {
	is64   bool
	name   string
	eng    engine.Engine
	sink   Sink
	handle engine.Handle // nil once released

	closeMu sync.RWMutex // Protect handle against concurrent Close() and finalizer

	// running is the handle of an in-flight Start. Stop uses it without
	// closeMu so a pending Close cannot starve it; runMu keeps the handle
	// alive until Stop has returned.
	runMu   sync.Mutex
	running engine.Handle

	inSVC atomic.Bool // an SVC handler is running inside Start
}

// New creates a context on the configured engine. The engine must have been
// loaded with Init.
func New(is64Bit bool, opts ...Option) (*Context, error) {
	start := time.Now()

	o := options{cfg: ConfigFromEnv()}
	for _, opt := range opts {
		opt(&o)
	}
	o.resolve()

	e, err := loadedEngine(o.cfg.Engine)
	if err != nil {
		return nil, err
	}

	h, err := e.Open(is64Bit)
	if err != nil {
		return nil, fmt.Errorf("armemu: create %s context (64-bit=%v): %w", o.cfg.Engine, is64Bit, err)
	}
	if h == nil {
		return nil, fmt.Errorf("armemu: create %s context (64-bit=%v): engine returned no handle", o.cfg.Engine, is64Bit)
	}

	c := &Context{
		is64:   is64Bit,
		name:   o.cfg.Engine,
		eng:    e,
		sink:   o.sink,
		handle: h,
	}

	// Set finalizer as safety net in case Close() is not called
	runtime.SetFinalizer(c, (*Context).finalize)

	elapsed := time.Since(start)
	recordContextCreate(elapsed)
	if c.sink.Enabled() {
		c.sink.Observe(Observation{
			Op:      "create",
			Attrs:   []slog.Attr{slog.String("engine", c.name), slog.Bool("is64", is64Bit)},
			Elapsed: elapsed,
		})
	}
	return c, nil
}

// Close destroys the engine context. Idempotent.
func (c *Context) Close() error {
	if c == nil {
		return nil
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.handle == nil {
		return nil // Already closed
	}

	var start time.Time
	observe := c.sink.Enabled()
	if observe {
		start = time.Now()
	}

	c.handle.Destroy()
	c.handle = nil

	// Clear finalizer since we've cleaned up properly
	runtime.SetFinalizer(c, nil)

	recordContextRelease()
	if observe {
		c.sink.Observe(Observation{
			Op:      "release",
			Attrs:   []slog.Attr{slog.String("engine", c.name)},
			Elapsed: time.Since(start),
		})
	}
	return nil
}

// finalize is called by the garbage collector as a safety net
func (c *Context) finalize() {
	if c == nil {
		return
	}
	// Use non-blocking lock to prevent deadlock in finalizers
	if c.closeMu.TryLock() {
		defer c.closeMu.Unlock()
		if c.handle != nil {
			c.handle.Destroy()
			c.handle = nil
			recordContextRelease()
		}
	}
}

// Is64Bit reports the architecture width the context was created with.
func (c *Context) Is64Bit() bool { return c != nil && c.is64 }

// Engine returns the name of the engine backing the context.
func (c *Context) Engine() string {
	if c == nil {
		return ""
	}
	return c.name
}

// PageSize returns the engine's mapping granularity, or 0 if the engine does
// not publish one.
func (c *Context) PageSize() uint64 {
	if c == nil {
		return 0
	}
	if ps, ok := c.eng.(engine.PageSizer); ok {
		return ps.PageSize()
	}
	return 0
}

// Released reports whether Close has run.
func (c *Context) Released() bool {
	if c == nil {
		return true
	}
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	return c.handle == nil
}

// invoke runs one engine entry point under the facade protocol: reject use
// after release, time the call when the sink is enabled, turn a non-zero
// status into an EmulationFault and report the observation. attrs is only
// evaluated when an observation or a fault needs it.
func invoke[T any](c *Context, op string, attrs func() []slog.Attr, fn func(engine.Handle) (T, engine.Status)) (T, error) {
	var zero T
	if c == nil {
		return zero, ErrContextReleased
	}

	// Start holds the read lock while the handler runs; taking it again
	// would deadlock against a waiting Close.
	if c.inSVC.Load() {
		return dispatch(c, c.handle, op, attrs, fn)
	}

	c.closeMu.RLock()
	defer c.closeMu.RUnlock()

	if c.handle == nil {
		return zero, fmt.Errorf("%w: %s", ErrContextReleased, op)
	}
	return dispatch(c, c.handle, op, attrs, fn)
}

// dispatch calls fn on a handle the caller has proven live.
func dispatch[T any](c *Context, h engine.Handle, op string, attrs func() []slog.Attr, fn func(engine.Handle) (T, engine.Status)) (T, error) {
	var zero T
	observe := c.sink.Enabled()
	var start time.Time
	if observe {
		start = time.Now()
	}

	v, st := fn(h)

	var elapsed time.Duration
	if observe {
		elapsed = time.Since(start)
	}

	var args []slog.Attr
	if (observe || st != engine.StatusOK) && attrs != nil {
		args = attrs()
	}

	var err error
	if st != engine.StatusOK {
		recordEmulationFault()
		err = &EmulationFault{
			Op:     op,
			Args:   args,
			Code:   st,
			Engine: c.name,
			Desc:   describe(c.eng, st),
		}
		v = zero
	}

	if observe {
		c.sink.Observe(Observation{Op: op, Attrs: args, Elapsed: elapsed, Err: err})
	}
	return v, err
}

func (c *Context) call(op string, attrs func() []slog.Attr, fn func(engine.Handle) engine.Status) error {
	_, err := invoke(c, op, attrs, func(h engine.Handle) (struct{}, engine.Status) {
		return struct{}{}, fn(h)
	})
	return err
}

// invalid builds the local argument rejection for op. The engine is never
// called.
func (c *Context) invalid(op, arg string, value any, reason string) error {
	recordInvalidArgument()
	err := &InvalidArgumentError{Op: op, Arg: arg, Value: value, Reason: reason}
	if c != nil && c.sink.Enabled() {
		c.sink.Observe(Observation{Op: op, Err: err})
	}
	return err
}

func describe(e engine.Engine, st engine.Status) string {
	if d, ok := e.(engine.Describer); ok {
		return d.DescribeStatus(st)
	}
	return ""
}
