//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"github.com/lxn/win"
)

// SendInputKeyboard injects scan codes through SendInput
type SendInputKeyboard struct{}

// NewKeyboard returns the platform keyboard
func NewKeyboard() (Keyboard, error) {
	return SendInputKeyboard{}, nil
}

func (SendInputKeyboard) Down(k Key) error {
	return sendScan(k, 0)
}

func (SendInputKeyboard) Up(k Key) error {
	return sendScan(k, win.KEYEVENTF_KEYUP)
}

func sendScan(k Key, flags uint32) error {
	in := win.KEYBD_INPUT{
		Type: win.INPUT_KEYBOARD,
		Ki: win.KEYBDINPUT{
			WScan:   k.Scan,
			DwFlags: win.KEYEVENTF_SCANCODE | flags,
		},
	}
	if k.Extended {
		in.Ki.DwFlags |= win.KEYEVENTF_EXTENDEDKEY
	}
	if n := win.SendInput(1, unsafe.Pointer(&in), int32(unsafe.Sizeof(in))); n != 1 {
		return fmt.Errorf("SendInput %s rejected (blocked by another desktop or UIPI)", k.Name)
	}
	return nil
}
