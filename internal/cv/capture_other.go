//go:build !windows
// +build !windows

package cv

import "image"

// ScreenCapture is unavailable outside Windows
type ScreenCapture struct{}

// NewScreenCapture reports that no capture backend exists
func NewScreenCapture() (*ScreenCapture, error) {
	return nil, ErrCaptureUnsupported
}

// Monitors always fails on this platform
func (sc *ScreenCapture) Monitors() ([]Monitor, error) {
	return nil, ErrCaptureUnsupported
}

// Grab always fails on this platform
func (sc *ScreenCapture) Grab(r Region) (*image.RGBA, error) {
	return nil, ErrCaptureUnsupported
}
