// Package armemu provides a typed control surface over ARM CPU emulation
// engines.
//
// A Context owns one engine context: memory mapping and protection, memory
// writes, register writes and its own release. Engines are pluggable through
// the engine package; the pure Go "soft" engine is always available, the
// "unicorn" engine is built with the unicorn build tag, and "hvf" drives
// Apple's Hypervisor.framework on darwin/arm64.
//
// # Basic Usage
//
// Load the engine once at startup:
//
//	if err := armemu.Init("soft"); err != nil {
//		log.Fatal(err)
//	}
//
// Create a 64-bit context and always release it:
//
//	ctx, err := armemu.New(true)
//	if err != nil {
//		log.Fatal("Failed to create context:", err)
//	}
//	defer ctx.Close()
//
// Memory management:
//
//	err = ctx.MemMap(0x1000, 0x1000, armemu.MemRead|armemu.MemWrite)
//	if err != nil {
//		log.Fatal("Failed to map memory:", err)
//	}
//	err = ctx.MemWrite(0x1000, []byte{0xde, 0xad, 0xbe, 0xef})
//
// Registers:
//
//	err = ctx.RegWrite(armemu.RegX0, 0x42)
//	err = ctx.SetSP(0x7fff0000)
//	err = ctx.SetTPIDR(0x8000)
//
// # Error Handling
//
// Arguments the facade can reject on its own, such as a register index
// outside 0-30 or an empty range, fail with *InvalidArgumentError before the
// engine is called. Everything the engine refuses comes back as
// *EmulationFault carrying the operation, its arguments and the engine's raw
// status code. Use errors.Is with ErrInvalidArgument and ErrEmulationFault, or
// Status to extract the code.
//
// Setting ARMEMU_ENV=production strips arguments from error messages.
//
// # Diagnostics
//
// Every call can be reported to a Sink with its operation name, arguments
// and elapsed time. The default sink logs through slog.Default() at debug
// level, so nothing is formatted unless debug logging is enabled.
// ARMEMU_DEBUG=true sends it to stderr.
//
// # Resource Management
//
// Close releases the engine context exactly once; later calls are no-ops and
// every other method returns ErrContextReleased. A finalizer provides safety
// net cleanup.
package armemu
