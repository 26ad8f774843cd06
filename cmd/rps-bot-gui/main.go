package main

import (
	"flag"
	"log"

	"fyne.io/fyne/v2/app"

	"jordanella.com/rps-autoplay/internal/bot"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/database"
	"jordanella.com/rps-autoplay/internal/events"
	"jordanella.com/rps-autoplay/internal/gui"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/internal/platform"
)

func main() {
	configPath := flag.String("config", "rps-bot.ini", "Path to settings file")
	dryRun := flag.Bool("dry-run", false, "Log key presses instead of sending them")
	flag.Parse()

	// Load configuration
	cfg, unknown, err := config.LoadOrDefault(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Printf("Warning: Failed to load config: %v", err)
		cfg = config.NewDefaultConfig()
	}

	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir}); err != nil {
		log.Printf("Warning: file logging disabled: %v", err)
	}
	defer logging.Close()
	logger := logging.NewLogger("Main")
	for _, key := range unknown {
		logger.Warn("unknown config key ignored: " + key)
	}

	bus := events.NewEventBus(1024)
	defer bus.Stop()
	stopForwarding := logging.ForwardToBus(bus)
	defer stopForwarding()
	eventLogger := logging.NewEventLogger(bus)
	defer eventLogger.Close()

	platform.Prepare()

	deps, err := bot.DesktopDeps(cfg, *dryRun)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	deps.Bus = bus

	var history gui.RunLister
	db, err := database.OpenAndMigrate(cfg.DatabasePath)
	if err != nil {
		logger.Error("run history disabled", err)
	} else {
		defer db.Close()
		deps.Recorder = db
		history = db
	}

	runner, err := bot.NewRunner(deps)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	// Create Fyne application
	myApp := app.NewWithID("com.jordanella.rps-autoplay")
	myApp.Settings().SetTheme(gui.NewBotTheme())

	mainWindow := myApp.NewWindow("RPS Autoplay")
	mainWindow.Resize(gui.DefaultWindowSize)

	controller := gui.NewController(cfg, myApp, mainWindow, runner, bus, history)
	mainWindow.SetContent(controller.BuildUI())
	mainWindow.SetMaster()
	mainWindow.ShowAndRun()

	// Cleanup on exit
	controller.Shutdown()
}
