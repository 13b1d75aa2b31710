package armemu

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/blacktop/go-armemu/engine"
)

// Sentinels for errors.Is.
var (
	ErrInvalidArgument = errors.New("armemu: invalid argument")
	ErrEmulationFault  = errors.New("armemu: emulation fault")
	ErrContextReleased = errors.New("armemu: context is released")
	ErrUnknownEngine   = errors.New("armemu: unknown engine")
	ErrEngineNotLoaded = errors.New("armemu: engine not initialized")
)

// InvalidArgumentError reports a caller-supplied value rejected before the
// engine was called.
type InvalidArgumentError struct {
	Op     string
	Arg    string
	Value  any
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if isProductionEnv() {
		return fmt.Sprintf("armemu: %s: invalid %s", e.Op, e.Arg)
	}
	return fmt.Sprintf("armemu: %s: invalid %s=%v: %s", e.Op, e.Arg, e.Value, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// EmulationFault wraps a non-zero engine status. Code is the raw value the
// engine returned; its meaning is engine-defined.
type EmulationFault struct {
	Op     string
	Args   []slog.Attr
	Code   engine.Status
	Engine string
	Desc   string // engine's description of Code, may be empty
}

func (e *EmulationFault) Error() string {
	// Security: Check if we should sanitize error messages
	if isProductionEnv() {
		return e.sanitizedError()
	}
	return e.detailedError()
}

// detailedError includes the call arguments and the engine's description
func (e *EmulationFault) detailedError() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "armemu: %s", e.Op)
	if len(e.Args) > 0 {
		sb.WriteString(" (")
		for i, a := range e.Args {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(a.String())
		}
		sb.WriteByte(')')
	}
	fmt.Fprintf(&sb, " failed: %s ret=%d", e.Engine, e.Code)
	if e.Desc != "" {
		fmt.Fprintf(&sb, " (%s)", e.Desc)
	}
	return sb.String()
}

// sanitizedError keeps only the operation and the code
func (e *EmulationFault) sanitizedError() string {
	return fmt.Sprintf("armemu: %s failed: ret=%d", e.Op, e.Code)
}

func (e *EmulationFault) Is(target error) bool {
	return target == ErrEmulationFault
}

// Status extracts the engine status carried by err, if any.
func Status(err error) (engine.Status, bool) {
	var fault *EmulationFault
	if errors.As(err, &fault) {
		return fault.Code, true
	}
	return engine.StatusOK, false
}

// isProductionEnv checks if we're running in production environment
func isProductionEnv() bool {
	env := os.Getenv("ARMEMU_ENV")
	if env == "production" || env == "prod" {
		return true
	}

	// Check if debug mode is explicitly disabled
	if debug := os.Getenv("ARMEMU_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}

	return false
}
