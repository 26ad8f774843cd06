// Package input injects keyboard events by hardware scan code and watches
// the emergency stop key.
package input

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInputUnsupported is returned where key injection is not available
var ErrInputUnsupported = errors.New("keyboard injection is not supported on this platform")

// Key is a named key with its Set 1 scan code
type Key struct {
	Name     string
	Scan     uint16
	Extended bool // sent with the 0xE0 prefix
}

// UnknownKeyError reports a key name with no scan code
type UnknownKeyError struct {
	Name string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown key %q", e.Name)
}

var scanCodes = map[string]Key{}

func init() {
	add := func(name string, scan uint16, extended bool) {
		scanCodes[name] = Key{Name: name, Scan: scan, Extended: extended}
	}

	// digits 1..9 then 0
	for i, d := range "1234567890" {
		add(string(d), uint16(0x02+i), false)
	}

	letters := map[string]uint16{
		"a": 0x1E, "b": 0x30, "c": 0x2E, "d": 0x20, "e": 0x12, "f": 0x21,
		"g": 0x22, "h": 0x23, "i": 0x17, "j": 0x24, "k": 0x25, "l": 0x26,
		"m": 0x32, "n": 0x31, "o": 0x18, "p": 0x19, "q": 0x10, "r": 0x13,
		"s": 0x1F, "t": 0x14, "u": 0x16, "v": 0x2F, "w": 0x11, "x": 0x2D,
		"y": 0x15, "z": 0x2C,
	}
	for name, scan := range letters {
		add(name, scan, false)
	}

	add("space", 0x39, false)
	add("tab", 0x0F, false)
	add("enter", 0x1C, false)
	add("esc", 0x01, false)
	add("backspace", 0x0E, false)
	add("shift", 0x2A, false)
	add("ctrl", 0x1D, false)
	add("alt", 0x38, false)

	add("left", 0x4B, true)
	add("right", 0x4D, true)
	add("up", 0x48, true)
	add("down", 0x50, true)
}

// Normalize maps " " to space and lowercases names
func Normalize(name string) string {
	if name == " " {
		return "space"
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup resolves a key name to its scan code
func Lookup(name string) (Key, error) {
	if k, ok := scanCodes[Normalize(name)]; ok {
		return k, nil
	}
	return Key{}, &UnknownKeyError{Name: name}
}

// Keyboard sends raw key transitions
type Keyboard interface {
	Down(k Key) error
	Up(k Key) error
}
