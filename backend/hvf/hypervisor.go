//go:build darwin && arm64

package hvf

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv.h>
#include <Hypervisor/hv_error.h>
#include <Hypervisor/hv_vm.h>
#include <Hypervisor/hv_vm_config.h>
#include <Hypervisor/hv_base.h>
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_config.h>
#include <os/object.h>

// Helper function to create and configure a VM with proper error handling
static hv_return_t go_hv_vm_create_with_cfg() {
#if __has_include(<Hypervisor/hv_vm_config.h>)
	hv_vm_config_t config = hv_vm_config_create();
	if (!config) {
		return HV_ERROR;
	}

	// Get and set default IPA size
	uint32_t default_ipa_size = 0;
	hv_return_t ret = hv_vm_config_get_default_ipa_size(&default_ipa_size);
	if (ret == HV_SUCCESS) {
		ret = hv_vm_config_set_ipa_size(config, default_ipa_size);
		if (ret != HV_SUCCESS) {
			os_release(config);
			return ret;
		}
	}

	// Create the VM with the configuration
	ret = hv_vm_create(config);
	os_release(config);
	return ret;
#else
	// Fallback for older macOS versions without hv_vm_config
	return hv_vm_create(NULL);
#endif
}

static hv_return_t go_hv_vcpu_create(hv_vcpu_t *vcpu, hv_vcpu_exit_t **exit) {
	return hv_vcpu_create(vcpu, exit, NULL);
}
*/
import "C"

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/blacktop/go-armemu/engine"
	"golang.org/x/sys/unix"
)

var (
	vmMu     sync.Mutex
	vmActive bool
	vmCount  int32 // Atomic counter for debugging

	cachedPageSize uint64
	pageSizeOnce   sync.Once
)

// pageSize returns the host page size, which is also the stage 2 granule.
func pageSize() uint64 {
	pageSizeOnce.Do(func() {
		cachedPageSize = uint64(unix.Getpagesize())
	})
	return cachedPageSize
}

func hvErr(code C.hv_return_t) error {
	if code == 0 {
		return nil
	}
	return HVError{Code: uint32(code)}
}

func load() error {
	ok, err := Supported()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoHypervisor
	}

	vmMu.Lock()
	defer vmMu.Unlock()
	if vmActive {
		return nil
	}
	if err := hvErr(C.go_hv_vm_create_with_cfg()); err != nil {
		return err
	}
	return hvErr(C.hv_vm_destroy())
}

// vm is the process' single VM plus the vCPU that executes in it.
type vm struct {
	ps    uint64
	pages map[uint64]*hostPage // page base -> backing memory
	cpu   *vcpu

	svc     engine.SVCHandler
	vectors bool // the svc vector page is mapped and VBAR_EL1 points at it
}

func open() (engine.Handle, error) {
	vmMu.Lock()
	defer vmMu.Unlock()

	// Security: Double-check to prevent race conditions
	if vmActive {
		return nil, ErrVMAlreadyActive
	}

	if err := hvErr(C.go_hv_vm_create_with_cfg()); err != nil {
		return nil, err
	}

	cpu, err := newVCPU()
	if err != nil {
		C.hv_vm_destroy()
		return nil, err
	}

	vmActive = true
	atomic.AddInt32(&vmCount, 1)

	return &vm{
		ps:    pageSize(),
		pages: make(map[uint64]*hostPage),
		cpu:   cpu,
	}, nil
}

func (v *vm) Destroy() {
	v.cpu.close()

	vmMu.Lock()
	defer vmMu.Unlock()

	// the framework drops every stage 2 mapping with the VM
	C.hv_vm_destroy()
	vmActive = false
	atomic.AddInt32(&vmCount, -1)

	seen := make(map[*region]bool)
	for _, p := range v.pages {
		if !seen[p.r] {
			seen[p.r] = true
			unix.Munmap(p.r.mem)
		}
	}
	v.pages = nil
}

// vcpu owns the OS thread the framework binds the vCPU to. Every call but
// hv_vcpus_exit must be made from that thread, so they are funneled through
// calls.
type vcpu struct {
	id   C.hv_vcpu_t
	exit *C.hv_vcpu_exit_t

	calls chan func()
	done  chan struct{}

	// set while an svc handler runs on the vCPU thread, so calls it makes
	// run in place instead of queueing behind the Start that invoked it
	inHandler atomic.Bool
}

func newVCPU() (*vcpu, error) {
	c := &vcpu{
		calls: make(chan func()),
		done:  make(chan struct{}),
	}
	ready := make(chan C.hv_return_t)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(c.done)

		ret := C.go_hv_vcpu_create(&c.id, &c.exit)
		ready <- ret
		if ret != 0 {
			return
		}
		for fn := range c.calls {
			fn()
		}
		C.hv_vcpu_destroy(c.id)
	}()
	if err := hvErr(<-ready); err != nil {
		return nil, err
	}
	return c, nil
}

// do runs fn on the vCPU thread and waits for it.
func (c *vcpu) do(fn func()) {
	if c.inHandler.Load() {
		fn()
		return
	}
	finished := make(chan struct{})
	c.calls <- func() {
		fn()
		close(finished)
	}
	<-finished
}

func (c *vcpu) close() {
	close(c.calls)
	<-c.done
}
