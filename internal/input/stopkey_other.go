//go:build !windows

package input

// NewStopKeyProbe returns a probe for a global hot key such as "f12"
func NewStopKeyProbe(name string) (KeyProbe, error) {
	return nil, ErrInputUnsupported
}
