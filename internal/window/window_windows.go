//go:build windows

package window

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"jordanella.com/rps-autoplay/internal/cv"
)

var (
	enumMu       sync.Mutex
	enumOnce     sync.Once
	enumCallback uintptr
	enumHandles  []windows.HWND
)

func enumProc(hwnd windows.HWND, _ uintptr) uintptr {
	enumHandles = append(enumHandles, hwnd)
	return 1
}

// Desktop implements Finder against the live window list
type Desktop struct{}

// NewFinder returns the platform finder
func NewFinder() Finder {
	return Desktop{}
}

// List returns visible top-level windows with a title, in z-order
func List() ([]Window, error) {
	enumOnce.Do(func() {
		enumCallback = syscall.NewCallback(enumProc)
	})

	enumMu.Lock()
	enumHandles = enumHandles[:0]
	err := windows.EnumWindows(enumCallback, nil)
	handles := append([]windows.HWND(nil), enumHandles...)
	enumMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}

	out := make([]Window, 0, len(handles))
	buf := make([]uint16, 512)
	for _, h := range handles {
		if !windows.IsWindowVisible(h) {
			continue
		}
		n, err := windows.GetWindowText(h, &buf[0], int32(len(buf)))
		if err != nil || n == 0 {
			continue
		}
		var rect win.RECT
		if !win.GetWindowRect(win.HWND(h), &rect) {
			continue
		}
		out = append(out, Window{
			Handle:    uintptr(h),
			Title:     windows.UTF16ToString(buf[:n]),
			Bounds:    cv.NewRegion(int(rect.Left), int(rect.Top), int(rect.Right-rect.Left), int(rect.Bottom-rect.Top)),
			Minimized: win.IsIconic(win.HWND(h)),
		})
	}
	return out, nil
}

func (Desktop) FindByTitle(substr string) (cv.Region, bool) {
	list, err := List()
	if err != nil {
		return cv.Region{}, false
	}
	w, ok := MatchTitle(list, substr)
	if !ok || w.Minimized {
		return cv.Region{}, false
	}
	return w.Bounds, true
}

func (Desktop) Focus(substr string) error {
	list, err := List()
	if err != nil {
		return err
	}
	w, ok := MatchTitle(list, substr)
	if !ok {
		return fmt.Errorf("%w %q", ErrNotFound, substr)
	}
	hwnd := win.HWND(w.Handle)
	if w.Minimized {
		win.ShowWindow(hwnd, win.SW_RESTORE)
	}
	win.BringWindowToTop(hwnd)
	if !win.SetForegroundWindow(hwnd) {
		return fmt.Errorf("SetForegroundWindow refused for %q", w.Title)
	}
	return nil
}

func (Desktop) ForegroundClient() (cv.Region, bool) {
	hwnd := win.GetForegroundWindow()
	if hwnd == 0 {
		return cv.Region{}, false
	}
	var rect win.RECT
	if !win.GetClientRect(hwnd, &rect) {
		return cv.Region{}, false
	}
	origin := win.POINT{X: rect.Left, Y: rect.Top}
	if !win.ClientToScreen(hwnd, &origin) {
		return cv.Region{}, false
	}
	r := cv.NewRegion(int(origin.X), int(origin.Y), int(rect.Right-rect.Left), int(rect.Bottom-rect.Top))
	if r.Empty() {
		return cv.Region{}, false
	}
	return r, true
}
