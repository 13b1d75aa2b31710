package hvf

import (
	"fmt"

	"github.com/blacktop/go-armemu/engine"
)

// Hypervisor Framework hv_return_t constants for ARM64
const (
	HV_SUCCESS             uint32 = 0x00000000
	HV_ERROR               uint32 = 0xFAE94001
	HV_BUSY                uint32 = 0xFAE94002
	HV_BAD_ARGUMENT        uint32 = 0xFAE94003
	HV_ILLEGAL_GUEST_STATE uint32 = 0xFAE94004
	HV_NO_RESOURCES        uint32 = 0xFAE94005
	HV_NO_DEVICE           uint32 = 0xFAE94006
	HV_DENIED              uint32 = 0xFAE94007
	HV_EXISTS              uint32 = 0xFAE94008
	HV_UNSUPPORTED         uint32 = 0xFAE9400F
)

// Statuses returned by hvf handles. Framework failures pass through as the
// raw hv_return_t; the conditions the backend detects itself reuse the
// closest framework code.
const (
	StatusMisaligned  = engine.Status(HV_BAD_ARGUMENT) // address or size not a page multiple
	StatusNotMapped   = engine.Status(HV_BAD_ARGUMENT) // unmap, protect, read or write of an unmapped page
	StatusBadRegister = engine.Status(HV_BAD_ARGUMENT)
	StatusMapped      = engine.Status(HV_EXISTS) // map over a mapped page
	StatusNoMemory    = engine.Status(HV_NO_RESOURCES)
	StatusGuestFault  = engine.Status(HV_ILLEGAL_GUEST_STATE) // guest took an exception we do not handle
	StatusReleased    = engine.Status(HV_ERROR)
)

// HVError wraps an hv_return_t error code.
// Code stores the raw 32-bit hv_return_t value (often 0xFAE940xx).
type HVError struct {
	Code    uint32
	message string // Optional custom message for specific errors
}

func (e HVError) Error() string {
	// Use custom message if available
	if e.message != "" {
		return e.message
	}
	return describe(e.Code)
}

func describe(code uint32) string {
	switch code {
	case HV_SUCCESS:
		return "hv: success"
	case HV_ERROR:
		return "hv: general error (HV_ERROR) - check system requirements and API usage"
	case HV_BUSY:
		return "hv: resource busy (HV_BUSY) - another operation is in progress"
	case HV_BAD_ARGUMENT:
		return "hv: invalid argument (HV_BAD_ARGUMENT) - check alignment, mapping and register index"
	case HV_ILLEGAL_GUEST_STATE:
		return "hv: illegal guest state (HV_ILLEGAL_GUEST_STATE) - guest CPU state is invalid"
	case HV_NO_RESOURCES:
		return "hv: insufficient resources (HV_NO_RESOURCES) - system memory or limits exceeded"
	case HV_NO_DEVICE:
		return "hv: device not found (HV_NO_DEVICE) - hardware virtualization unavailable"
	case HV_DENIED:
		return "hv: access denied (HV_DENIED) - missing entitlement 'com.apple.security.hypervisor' or insufficient privileges"
	case HV_EXISTS:
		return "hv: resource exists (HV_EXISTS) - VM already created or range already mapped"
	case HV_UNSUPPORTED:
		return "hv: operation unsupported (HV_UNSUPPORTED) - feature not available on this hardware/OS"
	default:
		return fmt.Sprintf("hv: unknown error code 0x%08x - consult Apple Hypervisor.framework documentation", code)
	}
}

// Common specific errors for API consumers
var (
	ErrUnsupportedPlatform = &HVError{Code: HV_UNSUPPORTED, message: "hv: not supported on this platform"}
	ErrNoHypervisor        = &HVError{Code: HV_NO_DEVICE, message: "hv: kern.hv_support reports no hypervisor"}
	ErrVMAlreadyActive     = &HVError{Code: HV_BUSY, message: "hv: VM already active in this process"}
	ErrAArch32             = &HVError{Code: HV_UNSUPPORTED, message: "hv: AArch32 guests are not supported"}
)
