//go:build !windows

package input

// NewKeyboard returns the platform keyboard
func NewKeyboard() (Keyboard, error) {
	return nil, ErrInputUnsupported
}
