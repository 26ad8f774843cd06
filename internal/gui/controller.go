package gui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"jordanella.com/rps-autoplay/internal/bot"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/events"
	"jordanella.com/rps-autoplay/internal/logging"
)

// Controller owns the control panel window and drives the runner
type Controller struct {
	config *config.Config
	app    fyne.App
	window fyne.Window
	runner *bot.Runner
	bus    events.EventBus
	bridge *UIBridge

	logs    *LogPanel
	history *HistoryPanel
	logSub  events.SubscriptionID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// GUI components
	titleEntry    *widget.Entry
	minScoreEntry *widget.Entry
	useSavedCheck *widget.Check
	startBtn      *widget.Button
	calibrateBtn  *widget.Button
	stopBtn       *widget.Button
	statusLabel   *widget.Label
	drawLabel     *widget.Label
	roiLabel      *widget.Label

	logger *logging.Logger
}

// NewController creates the control panel. history may be nil.
func NewController(cfg *config.Config, app fyne.App, window fyne.Window, runner *bot.Runner, bus events.EventBus, history RunLister) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		config:  cfg,
		app:     app,
		window:  window,
		runner:  runner,
		bus:     bus,
		bridge:  NewUIBridge(bus),
		logs:    NewLogPanel(1000),
		history: NewHistoryPanel(history, 50),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.NewLogger("GUI"),
	}
}

// BuildUI constructs the controls above tabs for logs and history
func (c *Controller) BuildUI() fyne.CanvasObject {
	c.titleEntry = widget.NewEntry()
	c.titleEntry.SetText(c.config.Window.TitleFilter)
	c.titleEntry.SetPlaceHolder("window title contains...")

	c.minScoreEntry = widget.NewEntry()
	c.minScoreEntry.SetText(strconv.FormatFloat(c.config.Calibration.MinScore, 'f', 2, 64))

	c.useSavedCheck = widget.NewCheck("Use saved region", nil)

	c.startBtn = widget.NewButton("Start", func() { c.start(bot.ModeRun) })
	c.startBtn.Importance = widget.HighImportance
	c.calibrateBtn = widget.NewButton("Calibrate only", func() { c.start(bot.ModeCalibrateOnly) })
	c.stopBtn = widget.NewButton("Stop", func() { c.runner.Stop() })
	c.stopBtn.Importance = widget.DangerImportance
	c.stopBtn.Disable()

	c.statusLabel = widget.NewLabel("Idle")
	c.drawLabel = widget.NewLabel(drawText(0, c.config.Phase.DrawStopAt))
	c.roiLabel = widget.NewLabel("ROI: not calibrated")

	form := widget.NewForm(
		widget.NewFormItem("Window title", c.titleEntry),
		widget.NewFormItem("Min score", c.minScoreEntry),
		widget.NewFormItem("", c.useSavedCheck),
	)
	buttons := container.NewHBox(c.startBtn, c.calibrateBtn, c.stopBtn)
	info := container.NewVBox(
		c.statusLabel,
		c.drawLabel,
		c.roiLabel,
		widget.NewLabel(fmt.Sprintf("Hold %s to stop", strings.ToUpper(c.config.Input.StopKey))),
	)

	c.setupEventHandlers()

	tabs := container.NewAppTabs(
		container.NewTabItem("Log", c.logs.Build()),
		container.NewTabItem("History", c.history.Build()),
	)

	return container.NewBorder(
		container.NewVBox(form, buttons, widget.NewSeparator(), info, widget.NewSeparator()),
		nil, nil, nil,
		tabs,
	)
}

func (c *Controller) setupEventHandlers() {
	c.bridge.Subscribe(events.EventTypeStatus, func(e events.Event) {
		if s, ok := e.Data["status"].(string); ok {
			c.statusLabel.SetText(s)
		}
	})
	c.bridge.Subscribe(events.EventTypeDispatched, func(e events.Event) {
		if n, ok := e.Data["draw_count"].(int); ok {
			c.drawLabel.SetText(drawText(n, c.config.Phase.DrawStopAt))
		}
	})
	c.bridge.Subscribe(events.EventTypePhaseChanged, func(e events.Event) {
		c.statusLabel.SetText(fmt.Sprintf("Phase: %v", e.Data["to"]))
	})
	c.bridge.Subscribe(events.EventTypeCalibrated, func(e events.Event) {
		c.roiLabel.SetText(roiText(e.Data))
	})
	c.bridge.Subscribe(events.EventTypeRunStarted, func(e events.Event) {
		c.drawLabel.SetText(drawText(0, c.config.Phase.DrawStopAt))
	})

	// Log lines are buffered off the main thread
	c.logSub = c.bus.Subscribe(events.EventTypeLog, func(e events.Event) {
		level, _ := e.Data["level"].(string)
		msg, _ := e.Data["message"].(string)
		c.logs.Add(logging.LogLevel(level), msg)
	})
}

// start validates the form and launches a run in the background
func (c *Controller) start(mode bot.Mode) {
	minScore, err := parseMinScore(c.minScoreEntry.Text)
	if err == nil {
		err = applyMinScore(c.config, minScore)
	}
	if err != nil {
		c.logger.Warn("run not started: " + err.Error())
		dialog.ShowError(err, c.window)
		return
	}
	if mode == bot.ModeRun && c.useSavedCheck.Checked {
		mode = bot.ModeUseSaved
	}

	opts := bot.RunOptions{
		Mode:             mode,
		TitleFilter:      strings.TrimSpace(c.titleEntry.Text),
		CountdownSeconds: c.config.GUI.CountdownSeconds,
	}

	c.setRunning(true)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		report, err := c.runner.Run(c.ctx, opts)
		if c.ctx.Err() != nil {
			return
		}
		fyne.Do(func() {
			c.setRunning(false)
			switch {
			case err != nil:
				c.statusLabel.SetText("Error: " + err.Error())
			case report != nil:
				c.statusLabel.SetText(fmt.Sprintf("Finished: %s (%d draws)", report.Outcome, report.DrawCount))
			}
			c.history.Refresh()
		})
	}()
}

func (c *Controller) setRunning(running bool) {
	for _, w := range []fyne.Disableable{c.startBtn, c.calibrateBtn, c.titleEntry, c.minScoreEntry, c.useSavedCheck} {
		if running {
			w.Disable()
		} else {
			w.Enable()
		}
	}
	if running {
		c.stopBtn.Enable()
	} else {
		c.stopBtn.Disable()
	}
}

// Shutdown stops any active run and waits for it to release its keys
func (c *Controller) Shutdown() {
	c.runner.Stop()
	c.cancel()
	c.wg.Wait()
	c.bridge.Close()
	c.bus.Unsubscribe(c.logSub)
}

func parseMinScore(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, fmt.Errorf("min score %q is not a number", text)
	}
	if v <= 0 || v > 1 {
		return 0, fmt.Errorf("min score must be in (0, 1], got %v", v)
	}
	return v, nil
}

// applyMinScore sets the calibration floor, raising the early-stop score
// with it. cfg is left untouched when the result does not validate.
func applyMinScore(cfg *config.Config, minScore float64) error {
	next := *cfg
	next.Calibration.MinScore = minScore
	next.Calibration.EarlyStopScore = max(next.Calibration.EarlyStopScore, minScore)
	if err := next.Validate(); err != nil {
		return err
	}
	cfg.Calibration = next.Calibration
	return nil
}

func drawText(n, limit int) string {
	return fmt.Sprintf("Draws: %d/%d", n, limit)
}

func roiText(data map[string]interface{}) string {
	return fmt.Sprintf("ROI: monitor %v at (%v, %v) %vx%v, score %.3f",
		data["monitor_index"], data["left"], data["top"], data["width"], data["height"], data["score"])
}
