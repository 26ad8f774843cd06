//go:build !windows

package window

// NewFinder returns the platform finder
func NewFinder() Finder {
	return NopFinder{}
}

// List returns visible top-level windows with a title
func List() ([]Window, error) {
	return nil, ErrUnsupported
}
