// Package platform holds process-level setup that capture and input depend on.
package platform

import "jordanella.com/rps-autoplay/internal/logging"

// Prepare makes the process DPI aware and warns when input may be blocked
// by a higher-integrity game window.
func Prepare() {
	log := logging.NewLogger("Platform")

	if err := EnableDPIAwareness(); err != nil {
		log.Warn("DPI awareness not set; captures may be scaled: " + err.Error())
	}
	if !IsElevated() {
		log.Warn("not running as administrator; key presses may not reach elevated windows")
	}
}
