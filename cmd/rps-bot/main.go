package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"jordanella.com/rps-autoplay/internal/bot"
	"jordanella.com/rps-autoplay/internal/calibration"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/internal/database"
	"jordanella.com/rps-autoplay/internal/events"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/internal/platform"
	"jordanella.com/rps-autoplay/pkg/templates"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "rps-bot.ini", "Path to settings file (defaults are used if missing)")
	calibrateOnly := flag.Bool("calibrate-only", false, "Locate the result banner, save the region and exit")
	useSaved := flag.Bool("use-saved", false, "Skip calibration and use the saved region")
	title := flag.String("title", "", "Only search inside windows whose title contains this text")
	bboxFlag := flag.String("bbox", "", "Force the search space: left,top,width,height")
	dryRun := flag.Bool("dry-run", false, "Log key presses instead of sending them")
	flag.Parse()

	if *calibrateOnly && *useSaved {
		fmt.Fprintln(os.Stderr, "-calibrate-only and -use-saved cannot be combined")
		return exitUsage
	}
	bbox, err := parseBBox(*bboxFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	cfg, unknown, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return exitError
	}

	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir, Console: true}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return exitError
	}
	defer logging.Close()
	log := logging.NewLogger("Main")
	for _, key := range unknown {
		log.Warn("unknown config key ignored: " + key)
	}

	platform.Prepare()

	bus := events.NewEventBus(256)
	defer bus.Stop()
	eventLogger := logging.NewEventLogger(bus)
	defer eventLogger.Close()

	deps, err := bot.DesktopDeps(cfg, *dryRun)
	if err != nil {
		log.Error("failed to initialize", err)
		return exitError
	}
	deps.Bus = bus

	db, err := database.OpenAndMigrate(cfg.DatabasePath)
	if err != nil {
		log.Error("run history disabled", err)
	} else {
		defer db.Close()
		deps.Recorder = db
	}

	runner, err := bot.NewRunner(deps)
	if err != nil {
		log.Error("failed to create runner", err)
		return exitError
	}

	opts := runOptions(cfg, *calibrateOnly, *useSaved, *title, bbox)
	if opts.CountdownSeconds > 0 {
		fmt.Printf("Switch to the game window; starting in %d seconds (hold %s to stop)\n",
			opts.CountdownSeconds, strings.ToUpper(cfg.Input.StopKey))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runner.Run(ctx, opts)
	if err != nil {
		var tplErr *templates.TemplateLoadError
		switch {
		case errors.As(err, &tplErr), errors.Is(err, templates.ErrPackNotFound):
			log.Warn("check templates_dir in " + *configPath)
		case errors.Is(err, calibration.ErrCalibrationFailed):
			log.Warn("no result banner found; make sure it is on screen or pass -bbox")
		}
		return exitError
	}

	fmt.Printf("Run %s: %s (draws %d, fallback %v, %s)\n",
		report.RunID, report.Outcome, report.DrawCount, report.UsedFallback, report.Duration.Round(time.Millisecond))
	if report.Calibration != nil {
		fmt.Printf("Region %s on monitor %d, score %.3f, saved to %s\n",
			report.Calibration.Absolute, report.Calibration.MonitorIndex, report.Calibration.Score, cfg.RecordPath)
	}
	return exitOK
}

// runOptions maps the command line onto a run. The configured countdown
// always applies so the game window can be focused before calibration
// looks at the foreground window.
func runOptions(cfg *config.Config, calibrateOnly, useSaved bool, title string, bbox *cv.Region) bot.RunOptions {
	opts := bot.RunOptions{
		Mode:             bot.ModeRun,
		TitleFilter:      title,
		BBox:             bbox,
		CountdownSeconds: cfg.GUI.CountdownSeconds,
	}
	switch {
	case calibrateOnly:
		opts.Mode = bot.ModeCalibrateOnly
	case useSaved:
		opts.Mode = bot.ModeUseSaved
	}
	return opts
}

// parseBBox reads "left,top,width,height". Empty input returns nil.
func parseBBox(s string) (*cv.Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("-bbox wants left,top,width,height, got %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("-bbox value %q is not an integer", p)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return nil, fmt.Errorf("-bbox width and height must be positive, got %dx%d", v[2], v[3])
	}
	r := cv.NewRegion(v[0], v[1], v[2], v[3])
	return &r, nil
}
