package bot

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/rps-autoplay/internal/actions"
	"jordanella.com/rps-autoplay/internal/calibration"
	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/internal/database"
	"jordanella.com/rps-autoplay/internal/detect"
	"jordanella.com/rps-autoplay/internal/input"
	"jordanella.com/rps-autoplay/pkg/templates"
)

const screenW, screenH = 200, 150

var bannerAt = image.Pt(70, 60)

// banner draws a 40x30 result figure with a 10 px margin
func banner(label templates.Label) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 40, 30))
	white := color.Gray{Y: 255}
	for y := 10; y < 20; y++ {
		for x := 10; x < 30; x++ {
			switch label {
			case templates.LabelWin:
				img.SetGray(x, y, white)
			case templates.LabelLoss:
				if (x+y)%4 < 2 {
					img.SetGray(x, y, white)
				}
			case templates.LabelDraw:
				if y%3 == 0 {
					img.SetGray(x, y, white)
				}
			}
		}
	}
	return img
}

func writeBannerPack(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, label := range templates.Labels {
		f, err := os.Create(filepath.Join(dir, label.FileName()))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, banner(label)))
		require.NoError(t, f.Close())
	}
}

// game shows one result banner and moves to the next queued result, after a
// few blank frames, whenever a key goes down
type game struct {
	mu       sync.Mutex
	current  templates.Label
	queue    []templates.Label
	blank    int
	pressed  []string
	released int
	badGrabs int
}

func newGame(first templates.Label, next ...templates.Label) *game {
	return &game{current: first, queue: next}
}

func (g *game) Monitors() ([]cv.Monitor, error) {
	return []cv.Monitor{{Index: 1, Bounds: cv.NewRegion(0, 0, screenW, screenH)}}, nil
}

func (g *game) Grab(r cv.Region) (*image.RGBA, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.Left < 0 || r.Top < 0 || r.Right() > screenW || r.Bottom() > screenH {
		g.badGrabs++
		return nil, errors.New("region off screen")
	}

	screen := image.NewRGBA(image.Rect(0, 0, screenW, screenH))
	draw.Draw(screen, screen.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if g.blank > 0 {
		g.blank--
	} else if g.current != templates.LabelNone {
		b := banner(g.current)
		draw.Draw(screen, b.Bounds().Add(bannerAt), b, image.Point{}, draw.Src)
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(out, out.Bounds(), screen, image.Pt(r.Left, r.Top), draw.Src)
	return out, nil
}

func (g *game) Down(k input.Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pressed = append(g.pressed, k.Name)
	g.current = templates.LabelNone
	if len(g.queue) > 0 {
		g.current, g.queue = g.queue[0], g.queue[1:]
	}
	g.blank = 3
	return nil
}

func (g *game) Up(input.Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
	return nil
}

func (g *game) keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.pressed...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

const oneKeyScripts = `
scripts:
  draw: {steps: [{wait: 0, key: c}]}
  loss: {steps: [{wait: 0, key: c}]}
  win: {steps: [{wait: 0, key: c}]}
  terminal_draw: {steps: [{wait: 0, key: c}]}
  terminal_win: {steps: [{wait: 0, key: c}]}
  terminal_loss: {steps: [{wait: 0, key: c}]}
`

type fixture struct {
	cfg    *config.Config
	db     *database.DB
	store  *calibration.Store
	runner *Runner
}

func newFixture(t *testing.T, g *game, probe input.KeyProbe) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "templates")
	writeBannerPack(t, filepath.Join(root, "200x150"))

	cfg := config.NewDefaultConfig()
	cfg.TemplatesDir = root
	cfg.RecordPath = filepath.Join(dir, "roi.json")
	cfg.Calibration.ScaleMin = 0.9
	cfg.Calibration.ScaleMax = 1.1
	cfg.Calibration.ScaleStep = 0.1
	cfg.Detect.MaxCaptureFailures = 3
	cfg.Phase.DrawStopAt = 2
	cfg.Input.Hold = 0
	cfg.Input.RepeatGap = 0
	require.NoError(t, cfg.Validate())

	db, err := database.OpenAndMigrate(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lib, err := actions.ParseLibrary([]byte(oneKeyScripts))
	require.NoError(t, err)

	clock := &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r, err := NewRunner(Deps{
		Config:      cfg,
		Capturer:    g,
		Keyboard:    g,
		StopProbe:   probe,
		Library:     lib,
		Recorder:    db,
		LoopOptions: []detect.LoopOption{detect.WithClock(clock.Now), detect.WithSleeper(clock.Sleep)},
	})
	require.NoError(t, err)

	return &fixture{cfg: cfg, db: db, store: r.Store(), runner: r}
}

func (f *fixture) saveRecord(t *testing.T, left, top int) {
	t.Helper()
	require.NoError(t, f.store.Save(calibration.Record{
		Left: left, Top: top, Width: 64, Height: 48,
		MonitorIndex: 1, TemplatePack: "200x150", Score: 0.99, AnchorLabel: "draw",
	}))
}

var fullSequence = []templates.Label{templates.LabelDraw, templates.LabelDraw, templates.LabelWin}

func TestRunCompletesBothPhases(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun})
	require.NoError(t, err)

	assert.Equal(t, OutcomeTerminalWin, report.Outcome)
	assert.Equal(t, 2, report.DrawCount)
	assert.False(t, report.UsedFallback)
	require.NotNil(t, report.Calibration)
	assert.Equal(t, templates.LabelDraw, report.Calibration.Label)
	assert.Equal(t, cv.NewRegion(58, 51, 64, 48), report.ROI)
	assert.Equal(t, []string{"c", "c", "c", "c"}, g.keys())
	assert.Equal(t, StateIdle, f.runner.State())

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "200x150", rec.TemplatePack)

	run, err := f.db.GetRun(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTerminalWin, run.Outcome)
	assert.Equal(t, 2, run.DrawCount)

	triggers, err := f.db.TriggersForRun(report.RunID)
	require.NoError(t, err)
	var phases []string
	for _, tr := range triggers {
		phases = append(phases, tr.Phase+":"+tr.Script)
	}
	assert.Equal(t, []string{
		"accumulating:draw", "accumulating:draw", "terminal:terminal_draw", "terminal:terminal_win",
	}, phases)

	cal, err := f.db.LatestCalibration(report.RunID)
	require.NoError(t, err)
	require.NotNil(t, cal)
	assert.Equal(t, "monitor", cal.Source)
}

func TestUseSavedSkipsCalibration(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)
	f.saveRecord(t, 58, 51)

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeUseSaved})
	require.NoError(t, err)
	assert.Nil(t, report.Calibration)
	assert.Equal(t, OutcomeTerminalWin, report.Outcome)
	assert.False(t, report.UsedFallback)
}

func TestFailedCalibrationFallsBackToSavedRecord(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)
	f.saveRecord(t, 58, 51)

	// too small for any template
	tiny := cv.NewRegion(0, 0, 20, 15)
	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun, BBox: &tiny})
	require.NoError(t, err)
	assert.True(t, report.UsedFallback)
	assert.Equal(t, OutcomeTerminalWin, report.Outcome)

	run, err := f.db.GetRun(report.RunID)
	require.NoError(t, err)
	assert.True(t, run.UsedFallback)
}

// failingGrabs lets calibration see the screen and then fails every grab
type failingGrabs struct {
	*game
	mu    sync.Mutex
	after int
	grabs int
}

func (f *failingGrabs) Grab(r cv.Region) (*image.RGBA, error) {
	f.mu.Lock()
	f.grabs++
	fail := f.grabs > f.after
	f.mu.Unlock()
	if fail {
		return nil, errors.New("bitblt failed")
	}
	return f.game.Grab(r)
}

func TestFallbackRunsOnlyOnce(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)
	f.saveRecord(t, 58, 51)

	// calibration succeeds on its single grab, detection then loses capture
	flaky := &failingGrabs{game: g, after: 1}
	f.runner.deps.Capturer = flaky

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun})
	require.Error(t, err)
	assert.ErrorIs(t, err, detect.ErrCaptureLost)
	assert.True(t, report.UsedFallback)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, 1+2*f.cfg.Detect.MaxCaptureFailures, flaky.grabs)
	assert.Empty(t, g.keys())
}

func TestOffscreenSavedRecordIsRejected(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)
	f.saveRecord(t, 500, 51)

	tiny := cv.NewRegion(0, 0, 20, 15)
	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun, BBox: &tiny})
	require.Error(t, err)
	assert.ErrorIs(t, err, calibration.ErrCalibrationFailed)
	assert.ErrorIs(t, err, calibration.ErrRecordOffscreen)
	assert.True(t, report.UsedFallback)
	assert.Zero(t, g.badGrabs)
	assert.Empty(t, g.keys())
}

func TestSavedRecordIsClippedToMonitor(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)
	require.NoError(t, f.store.Save(calibration.Record{
		Left: 60, Top: 50, Width: screenW, Height: screenH,
		MonitorIndex: 1, TemplatePack: "200x150", Score: 0.99, AnchorLabel: "draw",
	}))

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeUseSaved})
	require.NoError(t, err)
	assert.Equal(t, cv.NewRegion(60, 50, 140, 100), report.ROI)
	assert.Equal(t, OutcomeTerminalWin, report.Outcome)
	assert.Zero(t, g.badGrabs)
}

func TestCalibrateOnly(t *testing.T) {
	g := newGame(templates.LabelLoss)
	f := newFixture(t, g, nil)

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeCalibrateOnly})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCalibrated, report.Outcome)
	assert.Empty(t, g.keys())
	assert.Equal(t, cv.NewRegion(58, 51, 64, 48), report.ROI)

	rec, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, "loss", rec.AnchorLabel)
	assert.Equal(t, cv.NewRegion(58, 51, 64, 48), rec.ROI())
}

func TestCalibrateOnlyNeverFallsBack(t *testing.T) {
	g := newGame(templates.LabelNone)
	f := newFixture(t, g, nil)
	f.saveRecord(t, 58, 51)

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeCalibrateOnly})
	require.Error(t, err)
	assert.ErrorIs(t, err, calibration.ErrCalibrationFailed)
	assert.False(t, report.UsedFallback)
	assert.Equal(t, OutcomeFailed, report.Outcome)
}

func TestStopKeyEndsRunCleanly(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, func() bool { return true })

	start := time.Now()
	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun, CountdownSeconds: 5})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, OutcomeStopped, report.Outcome)
	assert.Empty(t, g.keys())

	run, err := f.db.GetRun(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, run.Outcome)
	assert.Nil(t, run.ErrorMessage)
}

func TestStopDuringCountdownAndConcurrentRun(t *testing.T) {
	g := newGame(templates.LabelDraw, fullSequence...)
	f := newFixture(t, g, nil)

	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun, CountdownSeconds: 5})
		done <- result{report, err}
	}()

	require.Eventually(t, func() bool { return f.runner.State() == StateCountdown }, time.Second, 5*time.Millisecond)

	_, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeRun})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	f.runner.Stop()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, OutcomeStopped, res.report.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Equal(t, StateIdle, f.runner.State())
}

// foregroundFinder reports the whole screen as the foreground window and
// remembers when it was asked
type foregroundFinder struct {
	mu     sync.Mutex
	asked  []time.Time
	states []RunState
	runner *Runner
}

func (f *foregroundFinder) FindByTitle(string) (cv.Region, bool) { return cv.Region{}, false }
func (f *foregroundFinder) Focus(string) error                   { return nil }
func (f *foregroundFinder) ForegroundClient() (cv.Region, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, time.Now())
	f.states = append(f.states, f.runner.State())
	return cv.NewRegion(0, 0, screenW, screenH), true
}

func TestCountdownRunsBeforeForegroundLookup(t *testing.T) {
	g := newGame(templates.LabelWin)
	f := newFixture(t, g, nil)
	require.True(t, f.cfg.Calibration.UseForeground)
	finder := &foregroundFinder{runner: f.runner}
	f.runner.deps.Finder = finder

	start := time.Now()
	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeCalibrateOnly, CountdownSeconds: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCalibrated, report.Outcome)
	assert.Equal(t, "foreground", report.Calibration.Source)

	finder.mu.Lock()
	defer finder.mu.Unlock()
	require.NotEmpty(t, finder.asked)
	assert.GreaterOrEqual(t, finder.asked[0].Sub(start), 900*time.Millisecond)
	assert.Equal(t, StateCalibrating, finder.states[0])
}

func TestCalibrationReloadsEditedTemplates(t *testing.T) {
	g := newGame(templates.LabelLoss)
	f := newFixture(t, g, nil)

	report, err := f.runner.Run(context.Background(), RunOptions{Mode: ModeCalibrateOnly})
	require.NoError(t, err)
	assert.Equal(t, templates.LabelLoss, report.Calibration.Label)

	// swap the win and loss images on disk
	dir := filepath.Join(f.cfg.TemplatesDir, "200x150")
	for label, img := range map[templates.Label]*image.Gray{
		templates.LabelWin:  banner(templates.LabelLoss),
		templates.LabelLoss: banner(templates.LabelWin),
	} {
		out, err := os.Create(filepath.Join(dir, label.FileName()))
		require.NoError(t, err)
		require.NoError(t, png.Encode(out, img))
		require.NoError(t, out.Close())
	}

	report, err = f.runner.Run(context.Background(), RunOptions{Mode: ModeCalibrateOnly})
	require.NoError(t, err)
	assert.Equal(t, templates.LabelWin, report.Calibration.Label)
}

func TestNewRunnerValidatesDeps(t *testing.T) {
	_, err := NewRunner(Deps{})
	assert.Error(t, err)

	_, err = NewRunner(Deps{Config: config.NewDefaultConfig(), Capturer: newGame(templates.LabelNone)})
	assert.ErrorContains(t, err, "keyboard")
}
