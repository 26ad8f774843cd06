//go:build windows
// +build windows

package cv

import (
	"fmt"
	"image"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                     = windows.NewLazySystemDLL("user32.dll")
	gdi32                      = windows.NewLazySystemDLL("gdi32.dll")
	procGetDC                  = user32.NewProc("GetDC")
	procReleaseDC              = user32.NewProc("ReleaseDC")
	procEnumDisplayMonitors    = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW        = user32.NewProc("GetMonitorInfoW")
	procCreateCompatibleDC     = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompatibleBitmap = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject           = gdi32.NewProc("SelectObject")
	procBitBlt                 = gdi32.NewProc("BitBlt")
	procDeleteDC               = gdi32.NewProc("DeleteDC")
	procDeleteObject           = gdi32.NewProc("DeleteObject")
	procGetDIBits              = gdi32.NewProc("GetDIBits")
)

const (
	SRCCOPY        = 0x00CC0020
	CAPTUREBLT     = 0x40000000
	BI_RGB         = 0
	DIB_RGB_COLORS = 0
)

// RECT structure for Windows API
type RECT struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

type monitorInfo struct {
	Size    uint32
	Monitor RECT
	Work    RECT
	Flags   uint32
}

// BITMAPINFOHEADER structure
type BITMAPINFOHEADER struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

// BITMAPINFO structure
type BITMAPINFO struct {
	BmiHeader BITMAPINFOHEADER
	BmiColors [1]uint32
}

// ScreenCapture grabs regions of the virtual desktop with GDI
type ScreenCapture struct {
	mu sync.Mutex
}

// NewScreenCapture creates the platform capturer
func NewScreenCapture() (*ScreenCapture, error) {
	return &ScreenCapture{}, nil
}

var (
	enumMu       sync.Mutex
	enumOnce     sync.Once
	enumCallback uintptr
	enumResult   []Monitor
)

// monitorEnumProc is registered once; windows.NewCallback slots are never freed
func monitorEnumProc(hmon, hdc, lprc, lparam uintptr) uintptr {
	var mi monitorInfo
	mi.Size = uint32(unsafe.Sizeof(mi))
	if ret, _, _ := procGetMonitorInfoW.Call(hmon, uintptr(unsafe.Pointer(&mi))); ret != 0 {
		enumResult = append(enumResult, Monitor{
			Index: len(enumResult) + 1,
			Bounds: Region{
				Left:   int(mi.Monitor.Left),
				Top:    int(mi.Monitor.Top),
				Width:  int(mi.Monitor.Right - mi.Monitor.Left),
				Height: int(mi.Monitor.Bottom - mi.Monitor.Top),
			},
		})
	}
	return 1
}

// Monitors enumerates connected displays
func (sc *ScreenCapture) Monitors() ([]Monitor, error) {
	enumOnce.Do(func() {
		enumCallback = windows.NewCallback(monitorEnumProc)
	})

	enumMu.Lock()
	defer enumMu.Unlock()

	enumResult = nil
	ret, _, err := procEnumDisplayMonitors.Call(0, 0, enumCallback, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumDisplayMonitors failed: %v", err)
	}
	if len(enumResult) == 0 {
		return nil, fmt.Errorf("no displays found")
	}
	monitors := make([]Monitor, len(enumResult))
	copy(monitors, enumResult)
	return monitors, nil
}

// Grab captures an absolute screen region
func (sc *ScreenCapture) Grab(r Region) (*image.RGBA, error) {
	if r.Empty() {
		return nil, fmt.Errorf("invalid capture region %s", r)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Screen DC covers the whole virtual desktop
	hdcScreen, _, err := procGetDC.Call(0)
	if hdcScreen == 0 {
		return nil, fmt.Errorf("failed to get screen DC: %v", err)
	}
	defer procReleaseDC.Call(0, hdcScreen)

	hdcMem, _, err := procCreateCompatibleDC.Call(hdcScreen)
	if hdcMem == 0 {
		return nil, fmt.Errorf("failed to create compatible DC: %v", err)
	}
	defer procDeleteDC.Call(hdcMem)

	hBitmap, _, err := procCreateCompatibleBitmap.Call(
		hdcScreen,
		uintptr(r.Width),
		uintptr(r.Height),
	)
	if hBitmap == 0 {
		return nil, fmt.Errorf("failed to create compatible bitmap: %v", err)
	}
	defer procDeleteObject.Call(hBitmap)

	old, _, _ := procSelectObject.Call(hdcMem, hBitmap)
	defer procSelectObject.Call(hdcMem, old)

	ret, _, err := procBitBlt.Call(
		hdcMem,
		0, 0,
		uintptr(r.Width), uintptr(r.Height),
		hdcScreen,
		uintptr(int32(r.Left)), uintptr(int32(r.Top)),
		SRCCOPY|CAPTUREBLT,
	)
	if ret == 0 {
		return nil, fmt.Errorf("BitBlt failed: %v", err)
	}

	var bi BITMAPINFO
	bi.BmiHeader.Size = uint32(unsafe.Sizeof(bi.BmiHeader))
	bi.BmiHeader.Width = int32(r.Width)
	bi.BmiHeader.Height = -int32(r.Height) // Negative for top-down bitmap
	bi.BmiHeader.Planes = 1
	bi.BmiHeader.BitCount = 32
	bi.BmiHeader.Compression = BI_RGB

	buffer := make([]byte, r.Width*r.Height*4)
	ret, _, err = procGetDIBits.Call(
		hdcMem,
		hBitmap,
		0,
		uintptr(r.Height),
		uintptr(unsafe.Pointer(&buffer[0])),
		uintptr(unsafe.Pointer(&bi)),
		DIB_RGB_COLORS,
	)
	if ret == 0 {
		return nil, fmt.Errorf("GetDIBits failed: %v", err)
	}

	// GDI hands back BGRA with an undefined alpha channel
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i := 0; i < len(buffer); i += 4 {
		img.Pix[i] = buffer[i+2]
		img.Pix[i+1] = buffer[i+1]
		img.Pix[i+2] = buffer[i]
		img.Pix[i+3] = 0xFF
	}

	return img, nil
}
