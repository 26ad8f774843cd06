package bot

import (
	"fmt"

	"jordanella.com/rps-autoplay/internal/actions"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/internal/input"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/internal/window"
)

// DesktopDeps wires the real screen, keyboard, window finder and stop key.
// With dryRun set keys are logged instead of sent. A stop key that cannot be
// watched on this platform is logged and left out.
func DesktopDeps(cfg *config.Config, dryRun bool) (Deps, error) {
	log := logging.NewLogger("Runner")

	capturer, err := cv.NewScreenCapture()
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize screen capture: %w", err)
	}

	var kb input.Keyboard
	if dryRun {
		kb = input.NewLogKeyboard()
	} else if kb, err = input.NewKeyboard(); err != nil {
		return Deps{}, fmt.Errorf("failed to initialize keyboard: %w", err)
	}

	lib, err := LoadScripts(cfg.ScriptsPath)
	if err != nil {
		return Deps{}, err
	}

	probe, err := input.NewStopKeyProbe(cfg.Input.StopKey)
	if err != nil {
		log.Warn(fmt.Sprintf("global stop key %q unavailable: %v", cfg.Input.StopKey, err))
		probe = nil
	}

	return Deps{
		Config:    cfg,
		Capturer:  capturer,
		Finder:    window.NewFinder(),
		Keyboard:  kb,
		StopProbe: probe,
		Library:   lib,
	}, nil
}

// LoadScripts returns the built-in scripts, or the file at path when set.
// Unknown keys in the file are logged.
func LoadScripts(path string) (*actions.Library, error) {
	if path == "" {
		return actions.DefaultLibrary()
	}
	lib, err := actions.LoadLibrary(path)
	if err != nil {
		return nil, err
	}
	log := logging.NewLogger("Scripts")
	for _, w := range lib.Warnings {
		log.Warn(w)
	}
	return lib, nil
}
