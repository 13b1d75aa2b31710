//go:build darwin && arm64

package hvf

/*
#cgo darwin LDFLAGS: -framework Hypervisor
#include <Hypervisor/hv_vcpu.h>
#include <Hypervisor/hv_vcpu_types.h>
*/
import "C"

import "github.com/blacktop/go-armemu/engine"

// gpRegs maps general purpose register indices to hv_reg_t.
var gpRegs = [...]C.hv_reg_t{
	C.HV_REG_X0,
	C.HV_REG_X1,
	C.HV_REG_X2,
	C.HV_REG_X3,
	C.HV_REG_X4,
	C.HV_REG_X5,
	C.HV_REG_X6,
	C.HV_REG_X7,
	C.HV_REG_X8,
	C.HV_REG_X9,
	C.HV_REG_X10,
	C.HV_REG_X11,
	C.HV_REG_X12,
	C.HV_REG_X13,
	C.HV_REG_X14,
	C.HV_REG_X15,
	C.HV_REG_X16,
	C.HV_REG_X17,
	C.HV_REG_X18,
	C.HV_REG_X19,
	C.HV_REG_X20,
	C.HV_REG_X21,
	C.HV_REG_X22,
	C.HV_REG_X23,
	C.HV_REG_X24,
	C.HV_REG_X25,
	C.HV_REG_X26,
	C.HV_REG_X27,
	C.HV_REG_X28,
	C.HV_REG_FP,
	C.HV_REG_LR,
}

func regToHV(index int) (C.hv_reg_t, bool) {
	if index < 0 || index >= len(gpRegs) {
		return 0, false
	}
	return gpRegs[index], true
}

func status(ret C.hv_return_t) engine.Status {
	return engine.Status(uint32(ret))
}

func (c *vcpu) getReg(r C.hv_reg_t) (uint64, engine.Status) {
	var val C.ulonglong
	var ret C.hv_return_t
	c.do(func() { ret = C.hv_vcpu_get_reg(c.id, r, &val) })
	return uint64(val), status(ret)
}

func (c *vcpu) setReg(r C.hv_reg_t, v uint64) engine.Status {
	var ret C.hv_return_t
	c.do(func() { ret = C.hv_vcpu_set_reg(c.id, r, C.ulonglong(v)) })
	return status(ret)
}

func (c *vcpu) getSysReg(r C.hv_sys_reg_t) (uint64, engine.Status) {
	var val C.ulonglong
	var ret C.hv_return_t
	c.do(func() { ret = C.hv_vcpu_get_sys_reg(c.id, r, &val) })
	return uint64(val), status(ret)
}

func (c *vcpu) setSysReg(r C.hv_sys_reg_t, v uint64) engine.Status {
	var ret C.hv_return_t
	c.do(func() { ret = C.hv_vcpu_set_sys_reg(c.id, r, C.ulonglong(v)) })
	return status(ret)
}

func (v *vm) RegWrite(index int, value uint64) engine.Status {
	r, ok := regToHV(index)
	if !ok {
		return StatusBadRegister
	}
	return v.cpu.setReg(r, value)
}

func (v *vm) RegRead(index int) (uint64, engine.Status) {
	r, ok := regToHV(index)
	if !ok {
		return 0, StatusBadRegister
	}
	return v.cpu.getReg(r)
}

// The guest runs at EL1t, so its stack pointer is SP_EL0.

func (v *vm) SetSP(value uint64) engine.Status {
	return v.cpu.setSysReg(C.HV_SYS_REG_SP_EL0, value)
}

func (v *vm) SP() (uint64, engine.Status) {
	return v.cpu.getSysReg(C.HV_SYS_REG_SP_EL0)
}

func (v *vm) SetTPIDR(value uint64) engine.Status {
	return v.cpu.setSysReg(C.HV_SYS_REG_TPIDR_EL0, value)
}

func (v *vm) PC() (uint64, engine.Status) {
	return v.cpu.getReg(C.HV_REG_PC)
}
