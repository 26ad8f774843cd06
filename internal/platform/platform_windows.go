//go:build windows

package platform

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const processPerMonitorDPIAware = 2

var (
	modShcore                  = windows.NewLazySystemDLL("shcore.dll")
	procSetProcessDpiAwareness = modShcore.NewProc("SetProcessDpiAwareness")

	modUser32              = windows.NewLazySystemDLL("user32.dll")
	procSetProcessDPIAware = modUser32.NewProc("SetProcessDPIAware")
)

// EnableDPIAwareness asks for physical pixel coordinates, falling back to
// system DPI awareness on older Windows
func EnableDPIAwareness() error {
	if procSetProcessDpiAwareness.Find() == nil {
		hr, _, _ := procSetProcessDpiAwareness.Call(processPerMonitorDPIAware)
		// E_ACCESSDENIED means awareness was already set
		if hr == 0 || uint32(hr) == 0x80070005 {
			return nil
		}
	}
	if procSetProcessDPIAware.Find() != nil {
		return fmt.Errorf("no DPI awareness API available")
	}
	if ok, _, err := procSetProcessDPIAware.Call(); ok == 0 {
		return fmt.Errorf("SetProcessDPIAware: %w", err)
	}
	return nil
}

// IsElevated reports whether the process token is elevated
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
