// Package window locates and focuses the game window.
package window

import (
	"errors"
	"strings"

	"jordanella.com/rps-autoplay/internal/cv"
)

// ErrUnsupported is returned where window management is not available
var ErrUnsupported = errors.New("window management is not supported on this platform")

// ErrNotFound is returned when no visible window matches a title filter
var ErrNotFound = errors.New("no window matches title")

// Window is a top-level window snapshot
type Window struct {
	Handle    uintptr
	Title     string
	Bounds    cv.Region // screen coordinates, frame included
	Minimized bool
}

// Finder is what calibration and action dispatch need from the desktop
type Finder interface {
	// FindByTitle returns the bounds of the first window whose title contains substr
	FindByTitle(substr string) (cv.Region, bool)
	// Focus restores and activates the first matching window
	Focus(substr string) error
	// ForegroundClient returns the client area of the foreground window
	ForegroundClient() (cv.Region, bool)
}

// MatchTitle picks the first window whose title contains substr, ignoring
// case. Windows with empty bounds are skipped unless minimized.
func MatchTitle(windows []Window, substr string) (Window, bool) {
	needle := strings.ToLower(strings.TrimSpace(substr))
	if needle == "" {
		return Window{}, false
	}
	for _, w := range windows {
		if !strings.Contains(strings.ToLower(w.Title), needle) {
			continue
		}
		if w.Bounds.Empty() && !w.Minimized {
			continue
		}
		return w, true
	}
	return Window{}, false
}

// NopFinder never finds a window
type NopFinder struct{}

func (NopFinder) FindByTitle(string) (cv.Region, bool) { return cv.Region{}, false }
func (NopFinder) Focus(string) error                   { return nil }
func (NopFinder) ForegroundClient() (cv.Region, bool)  { return cv.Region{}, false }
