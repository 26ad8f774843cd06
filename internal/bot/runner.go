// Package bot drives a complete run: countdown, calibration, the detection
// loop and the two-phase script controller.
package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jordanella.com/rps-autoplay/internal/actions"
	"jordanella.com/rps-autoplay/internal/calibration"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/internal/database"
	"jordanella.com/rps-autoplay/internal/detect"
	"jordanella.com/rps-autoplay/internal/events"
	"jordanella.com/rps-autoplay/internal/input"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/internal/window"
	"jordanella.com/rps-autoplay/pkg/templates"
)

// ErrAlreadyRunning is returned when Run is called during another run
var ErrAlreadyRunning = errors.New("a run is already in progress")

// Mode selects what a run does
type Mode string

const (
	ModeRun           Mode = "run"
	ModeCalibrateOnly Mode = "calibrate"
	ModeUseSaved      Mode = "saved"
)

// Run outcomes as stored in the history
const (
	OutcomeTerminalWin  = "terminal_win"
	OutcomeTerminalLoss = "terminal_loss"
	OutcomeCalibrated   = "calibrated"
	OutcomeStopped      = "stopped"
	OutcomeFailed       = "failed"
)

// Recorder persists run history. *database.DB implements it.
type Recorder interface {
	StartRun(id, mode, titleFilter string, at time.Time) error
	FinishRun(id string, end database.RunEnd) error
	RecordCalibration(c database.Calibration) (int64, error)
	RecordTrigger(t database.Trigger) (int64, error)
}

// Deps are the collaborators a Runner needs. Finder, StopProbe, Bus and
// Recorder are optional.
type Deps struct {
	Config    *config.Config
	Capturer  cv.Capturer
	Finder    window.Finder
	Keyboard  input.Keyboard
	StopProbe input.KeyProbe
	Library   *actions.Library
	Bus       events.EventBus
	Recorder  Recorder

	// LoopOptions are passed to every detection loop
	LoopOptions []detect.LoopOption
}

// RunOptions select the mode and override config for one run
type RunOptions struct {
	Mode             Mode
	TitleFilter      string     // empty uses the configured filter
	BBox             *cv.Region // forced absolute search space
	CountdownSeconds int
}

// Report summarises a finished run
type Report struct {
	RunID        string
	Mode         Mode
	Outcome      string
	DrawCount    int
	Calibration  *calibration.Result
	ROI          cv.Region
	UsedFallback bool
	Duration     time.Duration
}

type binding struct {
	roi     cv.Region
	monitor int
	pack    *templates.Pack
}

// Runner executes runs one at a time
type Runner struct {
	deps     Deps
	cfg      *config.Config
	store    *calibration.Store
	cache    *templates.Cache
	resolver *templates.Resolver

	state atomic.Int32

	mu         sync.Mutex
	latch      *StopLatch
	controller *PhaseController

	logger *logging.Logger
}

// NewRunner validates deps and creates a runner
func NewRunner(deps Deps) (*Runner, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("runner needs a config")
	case deps.Capturer == nil:
		return nil, errors.New("runner needs a screen capturer")
	case deps.Keyboard == nil:
		return nil, errors.New("runner needs a keyboard")
	case deps.Library == nil:
		return nil, errors.New("runner needs an action library")
	}
	if deps.Finder == nil {
		deps.Finder = window.NopFinder{}
	}

	cfg := deps.Config
	return &Runner{
		deps:     deps,
		cfg:      cfg,
		store:    calibration.NewStore(cfg.RecordPath),
		cache:    templates.NewCache(),
		resolver: templates.NewResolver(cfg.ResolveTemplatesDir(), cfg.Calibration.AspectTol),
		logger:   logging.NewLogger("Runner"),
	}, nil
}

// State returns the current run state
func (r *Runner) State() RunState {
	return RunState(r.state.Load())
}

func (r *Runner) setState(s RunState) {
	r.state.Store(int32(s))
}

// Stop latches a stop on the active run, if any
func (r *Runner) Stop() {
	r.mu.Lock()
	latch := r.latch
	r.mu.Unlock()
	if latch != nil {
		r.setState(StateStopping)
		latch.Request()
	}
}

// DrawCount returns the active run's draw counter
func (r *Runner) DrawCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controller == nil {
		return 0
	}
	return r.controller.DrawCount()
}

// Store returns the calibration record store
func (r *Runner) Store() *calibration.Store {
	return r.store
}

// Run performs one run. A stop request (stop key, Stop or ctx cancellation)
// ends the run with OutcomeStopped and a nil error. Held keys are released
// before Run returns.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateCountdown)) {
		return nil, ErrAlreadyRunning
	}
	defer r.setState(StateIdle)

	if opts.Mode == "" {
		opts.Mode = ModeRun
	}
	title := opts.TitleFilter
	if title == "" {
		title = r.cfg.Window.TitleFilter
	}

	latch, runCtx := NewStopLatch(ctx)
	r.mu.Lock()
	r.latch = latch
	r.mu.Unlock()
	defer func() {
		latch.Release()
		r.mu.Lock()
		r.latch = nil
		r.mu.Unlock()
	}()
	if r.deps.StopProbe != nil {
		go latch.Watch(runCtx, r.deps.StopProbe, r.cfg.Input.WaitStep)
	}

	presser := input.NewPresser(r.deps.Keyboard, r.cfg.Input.Hold, r.cfg.Input.RepeatGap)
	defer presser.ReleaseAll()

	started := time.Now()
	report := &Report{RunID: uuid.NewString(), Mode: opts.Mode}
	r.recordStart(report, title, started)
	r.publish(events.NewRunStartedEvent(report.RunID, string(opts.Mode)))
	r.logger.InfoWithContext("run started", map[string]interface{}{
		"run_id": report.RunID,
		"mode":   string(opts.Mode),
		"title":  title,
	})

	err := stopCause(runCtx, r.execute(runCtx, opts, title, presser, report))
	presser.ReleaseAll()
	report.Duration = time.Since(started)

	switch {
	case err == nil:
	case IsStop(err):
		report.Outcome = OutcomeStopped
		err = nil
	default:
		report.Outcome = OutcomeFailed
	}

	r.recordFinish(report, err)
	r.publish(events.NewRunFinishedEvent(report.RunID, report.Outcome, report.DrawCount, err))
	if err != nil {
		r.logger.Error("run failed", err)
		r.status("Error: " + err.Error())
	} else {
		r.logger.InfoWithContext("run finished", map[string]interface{}{
			"outcome":  report.Outcome,
			"draws":    report.DrawCount,
			"duration": report.Duration.Round(time.Millisecond).String(),
		})
		r.status("Finished: " + report.Outcome)
	}
	return report, err
}

func (r *Runner) execute(ctx context.Context, opts RunOptions, title string, presser *input.Presser, report *Report) error {
	if err := r.countdown(ctx, opts.CountdownSeconds); err != nil {
		return err
	}

	dispatcher := actions.NewDispatcher(r.deps.Library, presser, r.deps.Finder, title)
	controller := NewPhaseController(dispatcher, PhaseOptions{
		DrawStopAt:   r.cfg.Phase.DrawStopAt,
		PostCooldown: r.cfg.Detect.Cooldown,
	}, r.deps.Bus, r.triggerHook(report.RunID))
	r.mu.Lock()
	r.controller = controller
	r.mu.Unlock()
	defer func() { report.DrawCount = controller.DrawCount() }()

	var (
		bind *binding
		err  error
	)
	if opts.Mode == ModeUseSaved {
		bind, err = r.bindSaved()
	} else {
		bind, err = r.calibrate(ctx, opts, title, report)
	}
	if err == nil {
		if opts.Mode == ModeCalibrateOnly {
			report.Outcome = OutcomeCalibrated
			return nil
		}
		err = r.detect(ctx, bind, controller, report)
	}
	if err == nil || IsStop(err) || opts.Mode == ModeCalibrateOnly || !r.store.Exists() {
		return err
	}

	// one retry from the saved record
	r.logger.ErrorWithContext("run failed, retrying with saved calibration", err, map[string]interface{}{
		"record": r.store.Path(),
	})
	report.UsedFallback = true
	bind, ferr := r.bindSaved()
	if ferr != nil {
		return errors.Join(err, fmt.Errorf("fallback: %w", ferr))
	}
	return r.detect(ctx, bind, controller, report)
}

func (r *Runner) countdown(ctx context.Context, seconds int) error {
	r.setState(StateCountdown)
	for left := seconds; left > 0; left-- {
		r.status(fmt.Sprintf("Starting in %d...", left))
		if err := input.Wait(ctx, time.Second); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) calibrate(ctx context.Context, opts RunOptions, title string, report *Report) (*binding, error) {
	r.setState(StateCalibrating)
	r.status("Calibrating...")
	// template files may have changed since the last run
	r.cache.Clear()

	calibrator := calibration.NewCalibrator(r.deps.Capturer, cv.NewMatcher(), r.resolver, r.cache,
		calibration.OptionsFromConfig(r.cfg.Calibration))

	var spaces []calibration.SearchSpace
	if opts.BBox != nil {
		spaces = calibration.ForcedSpace(*opts.BBox)
	} else {
		var err error
		spaces, err = calibrator.SearchSpaces(r.deps.Finder, title, r.cfg.Calibration.UseForeground)
		if err != nil {
			return nil, err
		}
	}

	res, err := calibrator.Run(ctx, spaces)
	if err != nil {
		return nil, err
	}
	report.Calibration = res
	report.ROI = res.Absolute

	if err := r.store.Save(calibration.RecordFromResult(res)); err != nil {
		r.logger.Error("failed to save calibration", err)
	}
	r.recordCalibration(report.RunID, res)
	r.publish(events.NewCalibratedEvent(res.MonitorIndex, res.ROI.Left, res.ROI.Top, res.ROI.Width, res.ROI.Height,
		res.Score, string(res.Label), res.PackName))

	pack, err := r.cache.Get(res.PackDir, res.PackName)
	if err != nil {
		return nil, err
	}
	return &binding{roi: res.Absolute, monitor: res.MonitorIndex, pack: pack}, nil
}

// bindSaved places the persisted record on the current monitor layout and
// loads the pack it names
func (r *Runner) bindSaved() (*binding, error) {
	rec, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	monitors, err := r.deps.Capturer.Monitors()
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	abs, used, err := rec.Absolute(monitors)
	if err != nil {
		return nil, err
	}
	if used != rec.MonitorIndex {
		r.logger.Warn(fmt.Sprintf("saved monitor %d not found, using monitor %d", rec.MonitorIndex, used))
	}
	if abs.Width != rec.Width || abs.Height != rec.Height {
		r.logger.Warn(fmt.Sprintf("saved region %s clipped to %s by monitor %d", rec.ROI(), abs, used))
	}

	root := r.resolver.Root
	pack, err := r.cache.Get(filepath.Join(root, rec.TemplatePack), rec.TemplatePack)
	if err != nil {
		return nil, err
	}
	r.logger.InfoWithContext("loaded saved calibration", map[string]interface{}{
		"roi":   abs.String(),
		"pack":  pack.DisplayName(),
		"score": fmt.Sprintf("%.3f", rec.Score),
	})
	return &binding{roi: abs, monitor: used, pack: pack}, nil
}

func (r *Runner) detect(ctx context.Context, bind *binding, controller *PhaseController, report *Report) error {
	r.setState(StateRunning)
	r.status(fmt.Sprintf("Running (%s)", controller.Phase()))
	report.ROI = bind.roi

	matcher := cv.NewMatcher(cv.WithThreshold(r.cfg.Detect.Threshold))
	svc := cv.NewService(r.deps.Capturer, matcher, bind.pack, bind.roi)

	options := append([]detect.LoopOption{detect.WithEventBus(r.deps.Bus)}, r.deps.LoopOptions...)
	loop := detect.NewLoop(svc, svc, controller, detect.OptionsFromConfig(r.cfg.Detect), options...)

	err := loop.Run(ctx)
	stats := loop.Stats()
	r.logger.DebugWithContext("detection ended", map[string]interface{}{
		"frames":   stats.Frames,
		"triggers": stats.Triggers,
		"rearms":   stats.Rearms,
	})
	if err != nil {
		return err
	}

	switch controller.Finished() {
	case templates.LabelWin:
		report.Outcome = OutcomeTerminalWin
	case templates.LabelLoss:
		report.Outcome = OutcomeTerminalLoss
	}
	return nil
}

func (r *Runner) status(msg string) {
	r.publish(events.NewStatusEvent(msg))
}

func (r *Runner) publish(ev events.Event) {
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(ev)
	}
}

func (r *Runner) recordStart(report *Report, title string, at time.Time) {
	if r.deps.Recorder == nil {
		return
	}
	if err := r.deps.Recorder.StartRun(report.RunID, string(report.Mode), title, at); err != nil {
		r.logger.Error("failed to record run start", err)
	}
}

func (r *Runner) recordFinish(report *Report, runErr error) {
	if r.deps.Recorder == nil {
		return
	}
	err := r.deps.Recorder.FinishRun(report.RunID, database.RunEnd{
		Outcome:      report.Outcome,
		DrawCount:    report.DrawCount,
		UsedFallback: report.UsedFallback,
		Err:          runErr,
	})
	if err != nil {
		r.logger.Error("failed to record run end", err)
	}
}

func (r *Runner) recordCalibration(runID string, res *calibration.Result) {
	if r.deps.Recorder == nil {
		return
	}
	_, err := r.deps.Recorder.RecordCalibration(database.Calibration{
		RunID:        runID,
		MonitorIndex: res.MonitorIndex,
		Left:         res.ROI.Left,
		Top:          res.ROI.Top,
		Width:        res.ROI.Width,
		Height:       res.ROI.Height,
		Score:        res.Score,
		AnchorLabel:  string(res.Label),
		TemplatePack: res.PackName,
		Scale:        res.Scale,
		Source:       res.Source,
	})
	if err != nil {
		r.logger.Error("failed to record calibration", err)
	}
}

func (r *Runner) triggerHook(runID string) func(TriggerInfo) {
	if r.deps.Recorder == nil {
		return nil
	}
	return func(t TriggerInfo) {
		_, err := r.deps.Recorder.RecordTrigger(database.Trigger{
			RunID:       runID,
			Label:       string(t.Label),
			Score:       t.Score,
			Phase:       t.Phase.String(),
			Script:      t.Script,
			DrawCount:   t.DrawCount,
			TriggeredAt: t.At,
		})
		if err != nil {
			r.logger.Error("failed to record trigger", err)
		}
	}
}
