// Package hvf runs AArch64 contexts on Apple's Hypervisor.framework.
//
// The framework allows a single VM per process, so at most one hvf context
// can be open at a time. Guest addresses are guest physical addresses; the
// vCPU runs at EL1 with the MMU off. Every vCPU call is made from one locked
// OS thread owned by the context.
//
// Importing the package registers the "hvf" engine. On platforms other than
// darwin/arm64 the engine is registered but fails to load.
package hvf

import "github.com/blacktop/go-armemu/engine"

// Name is the registry key of this engine.
const Name = "hvf"

func init() {
	engine.Register(New())
}

// Engine opens Hypervisor.framework contexts.
type Engine struct{}

// New returns the hvf engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return Name }

// Load checks kern.hv_support and probes VM creation, which also surfaces a
// missing com.apple.security.hypervisor entitlement.
func (e *Engine) Load() error { return load() }

func (e *Engine) Open(is64Bit bool) (engine.Handle, error) {
	if !is64Bit {
		return nil, ErrAArch32
	}
	return open()
}

func (e *Engine) PageSize() uint64 { return pageSize() }

func (e *Engine) DescribeStatus(code engine.Status) string {
	return describe(uint32(code))
}
