package cv

import (
	"errors"
	"fmt"
	"image"

	"jordanella.com/rps-autoplay/pkg/templates"
)

// ErrCaptureUnsupported is returned by platforms without a screen capture backend
var ErrCaptureUnsupported = errors.New("screen capture not supported on this platform")

// Monitor is one connected display. Index is 1-based.
type Monitor struct {
	Index  int
	Bounds Region
}

// Capturer grabs raw pixels from connected displays
type Capturer interface {
	// Monitors lists displays in enumeration order, indexed from 1
	Monitors() ([]Monitor, error)
	// Grab captures an absolute screen region
	Grab(r Region) (*image.RGBA, error)
}

// MonitorByIndex returns the monitor with the given 1-based index
func MonitorByIndex(monitors []Monitor, index int) (Monitor, bool) {
	if index < 1 || index > len(monitors) {
		return Monitor{}, false
	}
	return monitors[index-1], true
}

// ToGray converts a captured frame to 8-bit grayscale of identical dimensions
func ToGray(img image.Image) *image.Gray {
	return templates.ToGray(img)
}

// GrabGray captures r and converts it to grayscale
func GrabGray(c Capturer, r Region) (*image.Gray, error) {
	if r.Empty() {
		return nil, fmt.Errorf("invalid capture region %s", r)
	}
	frame, err := c.Grab(r)
	if err != nil {
		return nil, fmt.Errorf("failed to capture frame: %w", err)
	}
	return ToGray(frame), nil
}
