package cv

import (
	"errors"
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jordanella.com/rps-autoplay/pkg/templates"
)

func fill(img *image.Gray, r image.Rectangle, v uint8) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Pix[img.PixOffset(x, y)] = v
		}
	}
}

// Each shape sits inside a 10px black margin so edge maps line up exactly
// when the template is planted on a black frame.
func winShape() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 40, 30))
	fill(img, image.Rect(10, 10, 30, 14), 255)
	fill(img, image.Rect(10, 16, 18, 20), 180)
	fill(img, image.Rect(22, 16, 30, 20), 120)
	return img
}

func lossShape() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 40, 30))
	fill(img, image.Rect(12, 10, 15, 20), 255)
	fill(img, image.Rect(20, 10, 23, 20), 200)
	fill(img, image.Rect(26, 10, 29, 20), 150)
	return img
}

func drawShape() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 40, 30))
	fill(img, image.Rect(10, 10, 14, 14), 255)
	fill(img, image.Rect(16, 13, 20, 17), 255)
	fill(img, image.Rect(23, 16, 28, 20), 255)
	return img
}

func plant(frame, tpl *image.Gray, at image.Point) {
	b := tpl.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			frame.Pix[frame.PixOffset(at.X+x, at.Y+y)] = tpl.Pix[tpl.PixOffset(x, y)]
		}
	}
}

func testPack(t *testing.T) *templates.Pack {
	t.Helper()
	pack, err := templates.NewPack("200x150", "testdata", map[templates.Label]*image.Gray{
		templates.LabelWin:  winShape(),
		templates.LabelLoss: lossShape(),
		templates.LabelDraw: drawShape(),
	})
	require.NoError(t, err)
	return pack
}

func noise(r *rand.Rand, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

func TestMatchBestExactCopy(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 200, 150))
	tpl := winShape()
	at := image.Pt(70, 55)
	plant(frame, tpl, at)

	res, err := NewMatcher().MatchBest(frame, tpl)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Score, 0.95)
	assert.Equal(t, at, res.Location)
}

func TestMatchBestScoreBoundedAndDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	m := NewMatcher()

	for i := 0; i < 5; i++ {
		frame := noise(r, 120, 90)
		tpl := noise(r, 24, 18)

		first, err := m.MatchBest(frame, tpl)
		require.NoError(t, err)
		second, err := m.MatchBest(frame, tpl)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, first.Score, -1.0)
		assert.LessOrEqual(t, first.Score, 1.0)
		assert.Equal(t, first, second)
	}
}

func TestMatchBestTemplateTooLarge(t *testing.T) {
	_, err := NewMatcher().MatchBest(image.NewGray(image.Rect(0, 0, 10, 10)), image.NewGray(image.Rect(0, 0, 11, 5)))
	assert.True(t, errors.Is(err, ErrTemplateTooLarge))
}

func TestMatchBestSubImage(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 200, 150))
	tpl := lossShape()
	plant(frame, tpl, image.Pt(100, 60))

	// Crop so the frame has a non-zero origin and a wider stride
	sub := frame.SubImage(image.Rect(50, 20, 190, 140)).(*image.Gray)

	res, err := NewMatcher().MatchBest(sub, tpl)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Score, 0.95)
	assert.Equal(t, image.Pt(50, 40), res.Location)
}

func TestDetectPlantedLabel(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 200, 150))
	plant(frame, lossShape(), image.Pt(30, 40))

	label, score, err := NewMatcher().Detect(frame, testPack(t))
	require.NoError(t, err)
	assert.Equal(t, templates.LabelLoss, label)
	assert.GreaterOrEqual(t, score, DefaultThreshold)
}

func TestDetectBelowThreshold(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 200, 150))
	plant(frame, drawShape(), image.Pt(30, 40))

	label, score, err := NewMatcher(WithThreshold(1.5)).Detect(frame, testPack(t))
	require.NoError(t, err)
	assert.Equal(t, templates.LabelNone, label)
	assert.Greater(t, score, 0.0)
}

func TestDetectTieKeepsFirstLabel(t *testing.T) {
	shape := drawShape()
	pack, err := templates.NewPack("", "testdata", map[templates.Label]*image.Gray{
		templates.LabelWin:  shape,
		templates.LabelLoss: shape,
		templates.LabelDraw: shape,
	})
	require.NoError(t, err)

	frame := image.NewGray(image.Rect(0, 0, 120, 90))
	plant(frame, shape, image.Pt(5, 5))

	label, _, err := NewMatcher().Detect(frame, pack)
	require.NoError(t, err)
	assert.Equal(t, templates.LabelWin, label)
}

func TestDetectSkipsOversizedTemplates(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 20, 20))

	label, score, err := NewMatcher().Detect(frame, testPack(t))
	require.NoError(t, err)
	assert.Equal(t, templates.LabelNone, label)
	assert.Equal(t, -1.0, score)
}

func TestMedianGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(img.Pix, []uint8{10, 20, 30, 40})
	assert.Equal(t, 25.0, medianGray(img))

	odd := image.NewGray(image.Rect(0, 0, 3, 1))
	copy(odd.Pix, []uint8{200, 5, 90})
	assert.Equal(t, 90.0, medianGray(odd))
}
