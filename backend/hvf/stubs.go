//go:build !darwin || !arm64

package hvf

import "github.com/blacktop/go-armemu/engine"

// Supported returns false on non-Darwin platforms.
func Supported() (bool, error) {
	return false, ErrUnsupportedPlatform
}

func load() error {
	return ErrUnsupportedPlatform
}

func open() (engine.Handle, error) {
	return nil, ErrUnsupportedPlatform
}

func pageSize() uint64 { return 0 }
