// Package unicorn runs contexts on the Unicorn CPU emulator through its Go
// bindings. It is only compiled with the unicorn build tag, which requires
// libunicorn and cgo:
//
//	go build -tags unicorn ./...
//
// Importing the package registers the "unicorn" engine. Statuses are raw
// uc_err values.
package unicorn
