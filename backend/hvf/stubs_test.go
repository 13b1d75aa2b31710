//go:build !darwin || !arm64

package hvf

import (
	"errors"
	"testing"
)

func TestUnsupportedPlatform(t *testing.T) {
	supported, err := Supported()
	if supported || !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("Supported() = %v, %v", supported, err)
	}
	if err := New().Load(); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("Load() = %v, want ErrUnsupportedPlatform", err)
	}
	if _, err := New().Open(true); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("Open(true) = %v, want ErrUnsupportedPlatform", err)
	}
	if _, err := New().Open(false); !errors.Is(err, ErrAArch32) {
		t.Errorf("Open(false) = %v, want ErrAArch32", err)
	}
}
