package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppName names the per-user configuration directory
const AppName = "RPSAutoPlay"

// Config holds every recognised option. Zero values are never used directly;
// start from NewDefaultConfig.
type Config struct {
	// Paths
	TemplatesDir string
	RecordPath   string
	ScriptsPath  string // empty uses the built-in scripts
	DatabasePath string
	LogDir       string

	// Logging
	LogLevel string

	Detect      DetectConfig
	Calibration CalibrationConfig
	Phase       PhaseConfig
	Input       InputConfig
	Window      WindowConfig
	GUI         GUIConfig
}

// DetectConfig tunes the classification loop
type DetectConfig struct {
	Threshold          float64
	PollInterval       time.Duration
	ConfirmFrames      int
	Cooldown           time.Duration
	RearmHamming       int
	RearmTimeout       time.Duration // <= 0 disables the timeout
	MaxCaptureFailures int
}

// CalibrationConfig tunes the region search
type CalibrationConfig struct {
	ScaleMin       float64
	ScaleMax       float64
	ScaleStep      float64
	EarlyStopScore float64
	ROIExpand      float64
	MinScore       float64
	AspectTol      float64
	MonitorIndex   int
	UseForeground  bool
}

// PhaseConfig controls the two-phase run
type PhaseConfig struct {
	DrawStopAt int
}

// InputConfig controls key injection
type InputConfig struct {
	Hold      time.Duration
	RepeatGap time.Duration
	WaitStep  time.Duration
	StopKey   string
}

// WindowConfig selects the game window
type WindowConfig struct {
	TitleFilter string
}

// GUIConfig holds control panel settings
type GUIConfig struct {
	CountdownSeconds int
}

// DefaultAppDir returns the per-user directory for records, history and logs
func DefaultAppDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			dir = home
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, AppName)
}

// NewDefaultConfig returns a configuration with default values
func NewDefaultConfig() *Config {
	appDir := DefaultAppDir()
	return &Config{
		TemplatesDir: "templates",
		RecordPath:   filepath.Join(appDir, "roi.json"),
		DatabasePath: filepath.Join(appDir, "history.db"),
		LogDir:       filepath.Join(appDir, "logs"),
		LogLevel:     "info",

		Detect: DetectConfig{
			Threshold:          0.85,
			PollInterval:       30 * time.Millisecond,
			ConfirmFrames:      6,
			Cooldown:           time.Second,
			RearmHamming:       6,
			RearmTimeout:       4 * time.Second,
			MaxCaptureFailures: 50,
		},
		Calibration: CalibrationConfig{
			ScaleMin:       0.75,
			ScaleMax:       1.35,
			ScaleStep:      0.05,
			EarlyStopScore: 0.95,
			ROIExpand:      1.6,
			MinScore:       0.80,
			AspectTol:      0.02,
			MonitorIndex:   1,
			UseForeground:  true,
		},
		Phase: PhaseConfig{
			DrawStopAt: 30,
		},
		Input: InputConfig{
			Hold:      30 * time.Millisecond,
			RepeatGap: 200 * time.Millisecond,
			WaitStep:  10 * time.Millisecond,
			StopKey:   "f12",
		},
		GUI: GUIConfig{
			CountdownSeconds: 5,
		},
	}
}

// Validate checks ranges once at startup
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.TemplatesDir != "", "templates_dir must be set")
	check(c.RecordPath != "", "roi_file must be set")

	d := c.Detect
	check(d.Threshold > 0 && d.Threshold <= 1, "detect.threshold must be in (0, 1], got %v", d.Threshold)
	check(d.PollInterval > 0, "detect.poll_interval_ms must be positive")
	check(d.ConfirmFrames >= 1, "detect.confirm_frames must be at least 1, got %d", d.ConfirmFrames)
	check(d.Cooldown >= 0, "detect.cooldown_ms must not be negative")
	check(d.RearmHamming >= 0 && d.RearmHamming <= 64, "detect.rearm_hamming must be in [0, 64], got %d", d.RearmHamming)
	check(d.MaxCaptureFailures >= 1, "detect.max_capture_failures must be at least 1")

	cal := c.Calibration
	check(cal.ScaleMin > 0 && cal.ScaleMax >= cal.ScaleMin, "calibration scale range [%v, %v] is invalid", cal.ScaleMin, cal.ScaleMax)
	check(cal.ScaleStep > 0, "calibration.scale_step must be positive")
	check(cal.MinScore > 0 && cal.MinScore <= 1, "calibration.min_score must be in (0, 1], got %v", cal.MinScore)
	check(cal.EarlyStopScore >= cal.MinScore && cal.EarlyStopScore <= 1, "calibration.early_stop_score must be in [min_score, 1]")
	check(cal.ROIExpand >= 1, "calibration.roi_expand must be at least 1, got %v", cal.ROIExpand)
	check(cal.AspectTol >= 0, "calibration.aspect_tol must not be negative")
	check(cal.MonitorIndex >= 1, "calibration.monitor_index is 1-based, got %d", cal.MonitorIndex)

	check(c.Phase.DrawStopAt >= 1, "phase.draw_stop_at must be at least 1, got %d", c.Phase.DrawStopAt)

	check(c.Input.Hold >= 0, "input.hold_ms must not be negative")
	check(c.Input.RepeatGap >= 0, "input.repeat_gap_ms must not be negative")
	check(c.Input.WaitStep > 0, "input.wait_step_ms must be positive")

	check(c.GUI.CountdownSeconds >= 0, "gui.countdown_sec must not be negative")

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	return errors.Join(errs...)
}

// ResolveTemplatesDir makes a relative templates path absolute, preferring the
// working directory and then the executable's directory
func (c *Config) ResolveTemplatesDir() string {
	if filepath.IsAbs(c.TemplatesDir) {
		return c.TemplatesDir
	}
	if info, err := os.Stat(c.TemplatesDir); err == nil && info.IsDir() {
		if abs, err := filepath.Abs(c.TemplatesDir); err == nil {
			return abs
		}
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Join(filepath.Dir(exe), c.TemplatesDir)
	}
	return c.TemplatesDir
}
