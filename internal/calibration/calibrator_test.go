package calibration

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/pkg/templates"
)

const shapeW, shapeH = 40, 30

// shape draws a white figure on black with a 10 px black margin
func shape(label templates.Label) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, shapeW, shapeH))
	white := color.Gray{Y: 255}
	for y := 10; y < shapeH-10; y++ {
		for x := 10; x < shapeW-10; x++ {
			switch label {
			case templates.LabelWin:
				// solid block
				img.SetGray(x, y, white)
			case templates.LabelLoss:
				// diagonal stripes
				if (x+y)%4 < 2 {
					img.SetGray(x, y, white)
				}
			case templates.LabelDraw:
				// horizontal bars
				if y%3 == 0 {
					img.SetGray(x, y, white)
				}
			}
		}
	}
	return img
}

func writePack(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, label := range templates.Labels {
		f, err := os.Create(filepath.Join(dir, label.FileName()))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, shape(label)))
		require.NoError(t, f.Close())
	}
}

// desktop is a fake two-monitor screen
type desktop struct {
	monitors []cv.Monitor
	pixels   *image.RGBA
}

func newDesktop() *desktop {
	d := &desktop{
		monitors: []cv.Monitor{
			{Index: 1, Bounds: cv.NewRegion(0, 0, 200, 150)},
			{Index: 2, Bounds: cv.NewRegion(200, 0, 200, 150)},
		},
		pixels: image.NewRGBA(image.Rect(0, 0, 400, 150)),
	}
	draw.Draw(d.pixels, d.pixels.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return d
}

func (d *desktop) plant(img *image.Gray, at image.Point) {
	r := img.Bounds().Add(at)
	draw.Draw(d.pixels, r, img, image.Point{}, draw.Src)
}

func (d *desktop) Monitors() ([]cv.Monitor, error) {
	return d.monitors, nil
}

func (d *desktop) Grab(r cv.Region) (*image.RGBA, error) {
	out := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(out, out.Bounds(), d.pixels, image.Pt(r.Left, r.Top), draw.Src)
	return out, nil
}

type fixedFinder struct {
	window     cv.Region
	foreground cv.Region
}

func (f fixedFinder) FindByTitle(string) (cv.Region, bool) { return f.window, !f.window.Empty() }
func (f fixedFinder) Focus(string) error                   { return nil }
func (f fixedFinder) ForegroundClient() (cv.Region, bool) {
	return f.foreground, !f.foreground.Empty()
}

func testOptions() Options {
	return Options{
		Scales:           []float64{0.9, 1.0, 1.1},
		EarlyStopScore:   0.95,
		MinScore:         0.80,
		ROIExpand:        1.6,
		PreferredMonitor: 1,
	}
}

func newTestCalibrator(t *testing.T, d *desktop) *Calibrator {
	root := t.TempDir()
	writePack(t, filepath.Join(root, "200x150"))
	resolver := templates.NewResolver(root, templates.DefaultAspectTolerance)
	return NewCalibrator(d, cv.NewMatcher(), resolver, templates.NewCache(), testOptions())
}

func TestCalibrationFindsPlantedTemplate(t *testing.T) {
	d := newDesktop()
	d.plant(shape(templates.LabelLoss), image.Pt(270, 55))
	c := newTestCalibrator(t, d)

	spaces, err := c.SearchSpaces(nil, "", false)
	require.NoError(t, err)
	require.Len(t, spaces, 2)

	res, err := c.Run(context.Background(), spaces)
	require.NoError(t, err)

	assert.Equal(t, templates.LabelLoss, res.Label)
	assert.GreaterOrEqual(t, res.Score, 0.95)
	assert.Equal(t, 1.0, res.Scale)
	assert.Equal(t, "200x150", res.PackName)
	assert.Equal(t, 2, res.MonitorIndex)
	assert.Equal(t, cv.NewRegion(58, 46, 64, 48), res.ROI)
	assert.Equal(t, cv.NewRegion(258, 46, 64, 48), res.Absolute)
	assert.Equal(t, SourceMonitor, res.Source)
}

func TestCalibrationWindowSpaceUsesPreferredMonitor(t *testing.T) {
	d := newDesktop()
	d.plant(shape(templates.LabelDraw), image.Pt(250, 60))
	c := newTestCalibrator(t, d)

	spaces, err := c.SearchSpaces(fixedFinder{window: cv.NewRegion(180, 0, 200, 150)}, "Game", true)
	require.NoError(t, err)
	require.Equal(t, []SearchSpace{{Bounds: cv.NewRegion(180, 0, 200, 150), Source: SourceWindow}}, spaces)

	res, err := c.Run(context.Background(), spaces)
	require.NoError(t, err)
	assert.Equal(t, templates.LabelDraw, res.Label)
	assert.Equal(t, 1, res.MonitorIndex)
	// match at (70,60) inside the window
	assert.Equal(t, cv.NewRegion(238, 51, 64, 48), res.Absolute)
	assert.Equal(t, res.Absolute, res.ROI)
}

func TestSearchSpacesForegroundAndFallback(t *testing.T) {
	c := newTestCalibrator(t, newDesktop())

	fg := cv.NewRegion(10, 20, 300, 100)
	spaces, err := c.SearchSpaces(fixedFinder{foreground: fg}, "", true)
	require.NoError(t, err)
	assert.Equal(t, []SearchSpace{{Bounds: fg, Source: SourceForeground}}, spaces)

	// a missing window falls back to every monitor
	spaces, err = c.SearchSpaces(fixedFinder{foreground: fg}, "Missing", true)
	require.NoError(t, err)
	assert.Len(t, spaces, 2)
	assert.Equal(t, 1, spaces[0].Monitor)
	assert.Equal(t, SourceMonitor, spaces[1].Source)

	assert.Equal(t, SourceForced, ForcedSpace(fg)[0].Source)
}

func TestCalibrationFailsBelowMinimum(t *testing.T) {
	c := newTestCalibrator(t, newDesktop())

	spaces, err := c.SearchSpaces(nil, "", false)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), spaces)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCalibrationFailed))

	var failed *CalibrationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Less(t, failed.Best, 0.80)
	assert.Equal(t, 2, failed.Searched)
}

func TestCalibrationMissingTemplate(t *testing.T) {
	root := t.TempDir()
	writePack(t, root)
	require.NoError(t, os.Remove(filepath.Join(root, "draw.png")))

	c := NewCalibrator(newDesktop(), cv.NewMatcher(), templates.NewResolver(root, 0.02), nil, testOptions())
	_, err := c.Run(context.Background(), ForcedSpace(cv.NewRegion(0, 0, 200, 150)))

	var loadErr *templates.TemplateLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, filepath.Join(root, "draw.png"), loadErr.Path)
}

func TestCalibrationHonoursCancel(t *testing.T) {
	c := newTestCalibrator(t, newDesktop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, ForcedSpace(cv.NewRegion(0, 0, 200, 150)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitROI(t *testing.T) {
	assert.Equal(t, cv.NewRegion(58, 46, 64, 48), fitROI(70, 55, 40, 30, 1.6, 200, 150))
	// shifted inside at the near edge, truncated at the far edge
	assert.Equal(t, cv.NewRegion(0, 0, 50, 40), fitROI(0, 0, 40, 30, 1.6, 50, 40))
	assert.Equal(t, cv.NewRegion(168, 126, 32, 24), fitROI(180, 135, 40, 30, 1.6, 200, 150))
}
