//go:build !windows

package platform

import "os"

// EnableDPIAwareness is a no-op off Windows
func EnableDPIAwareness() error {
	return nil
}

// IsElevated reports whether the process runs as root
func IsElevated() bool {
	return os.Geteuid() == 0
}
