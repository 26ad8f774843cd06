package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// knownKeys lists every recognised key per section
var knownKeys = map[string][]string{
	"paths":       {"templates_dir", "roi_file", "scripts_file", "database", "log_dir"},
	"logging":     {"level"},
	"detect":      {"threshold", "poll_interval_ms", "confirm_frames", "cooldown_ms", "rearm_hamming", "rearm_timeout_ms", "max_capture_failures"},
	"calibration": {"scale_min", "scale_max", "scale_step", "early_stop_score", "roi_expand", "min_score", "aspect_tol", "monitor_index", "use_foreground"},
	"phase":       {"draw_stop_at"},
	"input":       {"hold_ms", "repeat_gap_ms", "wait_step_ms", "stop_key"},
	"window":      {"title_filter"},
	"gui":         {"countdown_sec"},
}

// LoadFromINI loads configuration from an ini file on top of the defaults.
// Unrecognised sections and keys are returned as warnings.
func LoadFromINI(path string) (*Config, []string, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := NewDefaultConfig()
	warnings := unknownKeys(file)

	paths := file.Section("paths")
	config.TemplatesDir = paths.Key("templates_dir").MustString(config.TemplatesDir)
	config.RecordPath = paths.Key("roi_file").MustString(config.RecordPath)
	config.ScriptsPath = paths.Key("scripts_file").MustString(config.ScriptsPath)
	config.DatabasePath = paths.Key("database").MustString(config.DatabasePath)
	config.LogDir = paths.Key("log_dir").MustString(config.LogDir)

	config.LogLevel = file.Section("logging").Key("level").MustString(config.LogLevel)

	detect := file.Section("detect")
	config.Detect.Threshold = detect.Key("threshold").MustFloat64(config.Detect.Threshold)
	config.Detect.PollInterval = mustMillis(detect.Key("poll_interval_ms"), config.Detect.PollInterval)
	config.Detect.ConfirmFrames = detect.Key("confirm_frames").MustInt(config.Detect.ConfirmFrames)
	config.Detect.Cooldown = mustMillis(detect.Key("cooldown_ms"), config.Detect.Cooldown)
	config.Detect.RearmHamming = detect.Key("rearm_hamming").MustInt(config.Detect.RearmHamming)
	config.Detect.RearmTimeout = mustMillis(detect.Key("rearm_timeout_ms"), config.Detect.RearmTimeout)
	config.Detect.MaxCaptureFailures = detect.Key("max_capture_failures").MustInt(config.Detect.MaxCaptureFailures)

	cal := file.Section("calibration")
	config.Calibration.ScaleMin = cal.Key("scale_min").MustFloat64(config.Calibration.ScaleMin)
	config.Calibration.ScaleMax = cal.Key("scale_max").MustFloat64(config.Calibration.ScaleMax)
	config.Calibration.ScaleStep = cal.Key("scale_step").MustFloat64(config.Calibration.ScaleStep)
	config.Calibration.EarlyStopScore = cal.Key("early_stop_score").MustFloat64(config.Calibration.EarlyStopScore)
	config.Calibration.ROIExpand = cal.Key("roi_expand").MustFloat64(config.Calibration.ROIExpand)
	config.Calibration.MinScore = cal.Key("min_score").MustFloat64(config.Calibration.MinScore)
	config.Calibration.AspectTol = cal.Key("aspect_tol").MustFloat64(config.Calibration.AspectTol)
	config.Calibration.MonitorIndex = cal.Key("monitor_index").MustInt(config.Calibration.MonitorIndex)
	config.Calibration.UseForeground = cal.Key("use_foreground").MustBool(config.Calibration.UseForeground)

	config.Phase.DrawStopAt = file.Section("phase").Key("draw_stop_at").MustInt(config.Phase.DrawStopAt)

	input := file.Section("input")
	config.Input.Hold = mustMillis(input.Key("hold_ms"), config.Input.Hold)
	config.Input.RepeatGap = mustMillis(input.Key("repeat_gap_ms"), config.Input.RepeatGap)
	config.Input.WaitStep = mustMillis(input.Key("wait_step_ms"), config.Input.WaitStep)
	config.Input.StopKey = input.Key("stop_key").MustString(config.Input.StopKey)

	config.Window.TitleFilter = file.Section("window").Key("title_filter").MustString(config.Window.TitleFilter)

	config.GUI.CountdownSeconds = file.Section("gui").Key("countdown_sec").MustInt(config.GUI.CountdownSeconds)

	return config, warnings, nil
}

// LoadOrDefault loads path if it exists and falls back to defaults otherwise
func LoadOrDefault(path string) (*Config, []string, error) {
	if path == "" {
		return NewDefaultConfig(), nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewDefaultConfig(), nil, nil
	}
	return LoadFromINI(path)
}

// SaveToINI writes the configuration to an ini file
func SaveToINI(config *Config, path string) error {
	file := ini.Empty()

	paths := file.Section("paths")
	paths.Key("templates_dir").SetValue(config.TemplatesDir)
	paths.Key("roi_file").SetValue(config.RecordPath)
	paths.Key("scripts_file").SetValue(config.ScriptsPath)
	paths.Key("database").SetValue(config.DatabasePath)
	paths.Key("log_dir").SetValue(config.LogDir)

	file.Section("logging").Key("level").SetValue(config.LogLevel)

	detect := file.Section("detect")
	detect.Key("threshold").SetValue(formatFloat(config.Detect.Threshold))
	detect.Key("poll_interval_ms").SetValue(formatMillis(config.Detect.PollInterval))
	detect.Key("confirm_frames").SetValue(strconv.Itoa(config.Detect.ConfirmFrames))
	detect.Key("cooldown_ms").SetValue(formatMillis(config.Detect.Cooldown))
	detect.Key("rearm_hamming").SetValue(strconv.Itoa(config.Detect.RearmHamming))
	detect.Key("rearm_timeout_ms").SetValue(formatMillis(config.Detect.RearmTimeout))
	detect.Key("max_capture_failures").SetValue(strconv.Itoa(config.Detect.MaxCaptureFailures))

	cal := file.Section("calibration")
	cal.Key("scale_min").SetValue(formatFloat(config.Calibration.ScaleMin))
	cal.Key("scale_max").SetValue(formatFloat(config.Calibration.ScaleMax))
	cal.Key("scale_step").SetValue(formatFloat(config.Calibration.ScaleStep))
	cal.Key("early_stop_score").SetValue(formatFloat(config.Calibration.EarlyStopScore))
	cal.Key("roi_expand").SetValue(formatFloat(config.Calibration.ROIExpand))
	cal.Key("min_score").SetValue(formatFloat(config.Calibration.MinScore))
	cal.Key("aspect_tol").SetValue(formatFloat(config.Calibration.AspectTol))
	cal.Key("monitor_index").SetValue(strconv.Itoa(config.Calibration.MonitorIndex))
	cal.Key("use_foreground").SetValue(strconv.FormatBool(config.Calibration.UseForeground))

	file.Section("phase").Key("draw_stop_at").SetValue(strconv.Itoa(config.Phase.DrawStopAt))

	input := file.Section("input")
	input.Key("hold_ms").SetValue(formatMillis(config.Input.Hold))
	input.Key("repeat_gap_ms").SetValue(formatMillis(config.Input.RepeatGap))
	input.Key("wait_step_ms").SetValue(formatMillis(config.Input.WaitStep))
	input.Key("stop_key").SetValue(config.Input.StopKey)

	file.Section("window").Key("title_filter").SetValue(config.Window.TitleFilter)
	file.Section("gui").Key("countdown_sec").SetValue(strconv.Itoa(config.GUI.CountdownSeconds))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return file.SaveTo(path)
}

func unknownKeys(file *ini.File) []string {
	var warnings []string
	for _, section := range file.Sections() {
		name := section.Name()
		if name == ini.DefaultSection && len(section.Keys()) == 0 {
			continue
		}
		keys, ok := knownKeys[name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown config section [%s] ignored", name))
			continue
		}
		known := make(map[string]bool, len(keys))
		for _, k := range keys {
			known[k] = true
		}
		for _, key := range section.Keys() {
			if !known[key.Name()] {
				warnings = append(warnings, fmt.Sprintf("unknown config key %s.%s ignored", name, key.Name()))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}

func mustMillis(key *ini.Key, def time.Duration) time.Duration {
	return time.Duration(key.MustInt64(def.Milliseconds())) * time.Millisecond
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
