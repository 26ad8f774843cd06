//go:build windows

package input

import (
	"fmt"
	"strings"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var procGetAsyncKeyState = windows.NewLazySystemDLL("user32.dll").NewProc("GetAsyncKeyState")

var virtualKeys = map[string]int32{
	"f1": int32(win.VK_F1), "f2": int32(win.VK_F2), "f3": int32(win.VK_F3),
	"f4": int32(win.VK_F4), "f5": int32(win.VK_F5), "f6": int32(win.VK_F6),
	"f7": int32(win.VK_F7), "f8": int32(win.VK_F8), "f9": int32(win.VK_F9),
	"f10": int32(win.VK_F10), "f11": int32(win.VK_F11), "f12": int32(win.VK_F12),
	"esc":   int32(win.VK_ESCAPE),
	"pause": int32(win.VK_PAUSE),
}

// NewStopKeyProbe returns a probe for a global hot key such as "f12"
func NewStopKeyProbe(name string) (KeyProbe, error) {
	vk, ok := virtualKeys[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("stop key: %w", &UnknownKeyError{Name: name})
	}
	return func() bool {
		r, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
		return uint16(r)&0x8000 != 0
	}, nil
}
