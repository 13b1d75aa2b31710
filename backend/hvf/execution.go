//go:build darwin && arm64

package hvf

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_types.h>

static hv_return_t go_hv_vcpu_stop(hv_vcpu_t vcpu) {
	return hv_vcpus_exit(&vcpu, 1);
}
*/
import "C"

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/blacktop/go-armemu/engine"
)

const (
	// EL1t with D, A, I and F masked.
	cpsrEL1t = 0x3c4

	ecSVC64 = 0x15
	ecHVC64 = 0x16

	// VectorBase is the guest page reserved for the exception vectors once
	// an svc handler is installed. It sits at the top of the default 36-bit
	// IPA space; MemMap over it fails with StatusMapped.
	VectorBase uint64 = 1<<36 - 1<<20

	// hvcSVC is the immediate of the hvc the vectors use to hand an svc to
	// the host. hvc #0 still ends a run.
	hvcSVC = 0x5c

	// sync exception, current EL with SP_EL0 and with SP_ELx
	vecSyncSP0 = 0x000
	vecSyncSPx = 0x200
)

var stopRequested atomic.Bool

func hvc(imm uint32) uint32 {
	return 0xd4000002 | imm<<5
}

// SetSVCHandler installs fn. The first handler maps the vector page at
// VectorBase and points VBAR_EL1 at it; it stays mapped for the life of the
// VM.
func (v *vm) SetSVCHandler(fn engine.SVCHandler) engine.Status {
	v.svc = fn
	if fn == nil || v.vectors {
		return engine.StatusOK
	}
	if st := v.MemMap(VectorBase, v.ps, engine.PermRead|engine.PermExec); st != engine.StatusOK {
		return st
	}
	stub := make([]byte, 4)
	binary.LittleEndian.PutUint32(stub, hvc(hvcSVC))
	for _, off := range []uint64{vecSyncSP0, vecSyncSPx} {
		if st := v.MemWrite(VectorBase+off, stub); st != engine.StatusOK {
			return st
		}
	}
	if st := v.cpu.setSysReg(C.HV_SYS_REG_VBAR_EL1, VectorBase); st != engine.StatusOK {
		return st
	}
	v.vectors = true
	return engine.StatusOK
}

// Start runs the guest from pc until it issues HVC or Stop is called. An svc
// taken through the vector page is handed to the svc handler and the guest
// resumes after it. Other exceptions end the run with StatusGuestFault.
func (v *vm) Start(pc uint64) engine.Status {
	stopRequested.Store(false)

	var st engine.Status
	v.cpu.do(func() {
		id := v.cpu.id
		if ret := C.hv_vcpu_set_reg(id, C.HV_REG_PC, C.ulonglong(pc)); ret != 0 {
			st = status(ret)
			return
		}
		if ret := C.hv_vcpu_set_reg(id, C.HV_REG_CPSR, cpsrEL1t); ret != 0 {
			st = status(ret)
			return
		}
		for {
			if ret := C.hv_vcpu_run(id); ret != 0 {
				st = status(ret)
				return
			}
			exit := v.cpu.exit
			switch exit.reason {
			case C.HV_EXIT_REASON_CANCELED:
				if stopRequested.Load() {
					return
				}
			case C.HV_EXIT_REASON_VTIMER_ACTIVATED:
				C.hv_vcpu_set_vtimer_mask(id, true)
			case C.HV_EXIT_REASON_EXCEPTION:
				syndrome := uint64(exit.exception.syndrome)
				if syndrome>>26 != ecHVC64 {
					st = StatusGuestFault
					return
				}
				if !v.vectors || syndrome&0xffff != hvcSVC {
					return
				}
				if st = v.serviceSVC(); st != engine.StatusOK {
					return
				}
			default:
				st = StatusGuestFault
				return
			}
		}
	})
	return st
}

// serviceSVC runs on the vCPU thread after the vectors trapped an exception.
// It checks that the exception was an svc, calls the handler and returns
// from the exception the way eret would.
func (v *vm) serviceSVC() engine.Status {
	id := v.cpu.id
	var esr, elr, spsr C.ulonglong
	for _, r := range []struct {
		reg C.hv_sys_reg_t
		val *C.ulonglong
	}{
		{C.HV_SYS_REG_ESR_EL1, &esr},
		{C.HV_SYS_REG_ELR_EL1, &elr},
		{C.HV_SYS_REG_SPSR_EL1, &spsr},
	} {
		if ret := C.hv_vcpu_get_sys_reg(id, r.reg, r.val); ret != 0 {
			return status(ret)
		}
	}
	if uint64(esr)>>26 != ecSVC64 || v.svc == nil {
		return StatusGuestFault
	}

	v.cpu.inHandler.Store(true)
	v.svc(uint64(elr)-4, uint32(esr&0xffff))
	v.cpu.inHandler.Store(false)

	if ret := C.hv_vcpu_set_reg(id, C.HV_REG_PC, elr); ret != 0 {
		return status(ret)
	}
	return status(C.hv_vcpu_set_reg(id, C.HV_REG_CPSR, spsr))
}

// Stop forces a running Start to return. hv_vcpus_exit is the one vCPU call
// that may be made from any thread.
func (v *vm) Stop() engine.Status {
	stopRequested.Store(true)
	return status(C.go_hv_vcpu_stop(v.cpu.id))
}
