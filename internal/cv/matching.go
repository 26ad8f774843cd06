package cv

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"jordanella.com/rps-autoplay/pkg/templates"
)

// DefaultThreshold is the minimum score for a frame to be classified
const DefaultThreshold = 0.85

var (
	ErrTemplateTooLarge = errors.New("template larger than frame")
	ErrEmptyImage       = errors.New("empty image")
)

// MatchMethod identifies which comparison produced a score
type MatchMethod int

const (
	// MatchMethodEqualized - correlation of contrast-equalized images
	MatchMethodEqualized MatchMethod = iota
	// MatchMethodEdges - correlation of Canny edge maps
	MatchMethodEdges
)

func (m MatchMethod) String() string {
	switch m {
	case MatchMethodEqualized:
		return "equalized"
	case MatchMethodEdges:
		return "edges"
	default:
		return "unknown"
	}
}

// MatchResult contains template matching results
type MatchResult struct {
	Location image.Point
	Score    float64
	Method   MatchMethod
}

// Matcher scores grayscale frames against grayscale templates.
// Each comparison runs normalized cross-correlation twice, once on CLAHE
// equalized images and once on edge maps, and keeps the higher score.
type Matcher struct {
	opts matchOptions
}

// NewMatcher creates a matcher
func NewMatcher(opts ...Option) *Matcher {
	o := defaultMatchOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Matcher{opts: o}
}

// Threshold returns the acceptance threshold
func (m *Matcher) Threshold() float64 {
	return m.opts.threshold
}

// MatchBest finds the best aligning position of tpl inside frame.
// Score is in [-1, 1]; the edge result is used only if strictly better.
func (m *Matcher) MatchBest(frame, tpl *image.Gray) (MatchResult, error) {
	fb, tb := frame.Bounds(), tpl.Bounds()
	if fb.Empty() || tb.Empty() {
		return MatchResult{}, ErrEmptyImage
	}
	if tb.Dx() > fb.Dx() || tb.Dy() > fb.Dy() {
		return MatchResult{}, fmt.Errorf("%w: %dx%d in %dx%d", ErrTemplateTooLarge, tb.Dx(), tb.Dy(), fb.Dx(), fb.Dy())
	}

	src, err := grayToMat(frame)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer src.Close()

	tm, err := grayToMat(tpl)
	if err != nil {
		return MatchResult{}, fmt.Errorf("failed to convert template: %w", err)
	}
	defer tm.Close()

	eq := m.matchEqualized(src, tm)
	edge := matchEdges(src, tm, medianGray(frame), medianGray(tpl))
	if edge.Score > eq.Score {
		return edge, nil
	}
	return eq, nil
}

// Detect classifies frame against every template of pack.
// Templates larger than the frame are skipped. The first label reaching the
// highest score wins; below the threshold the label is empty.
func (m *Matcher) Detect(frame *image.Gray, pack *templates.Pack) (templates.Label, float64, error) {
	fb := frame.Bounds()
	bestLabel, bestScore := templates.LabelNone, -1.0

	for _, tpl := range pack.Templates() {
		if tpl.Height > fb.Dy() || tpl.Width > fb.Dx() {
			continue
		}
		res, err := m.MatchBest(frame, tpl.Image)
		if err != nil {
			return templates.LabelNone, bestScore, fmt.Errorf("failed to match %s: %w", tpl.Label, err)
		}
		if res.Score > bestScore {
			bestScore = res.Score
			bestLabel = tpl.Label
		}
	}

	if bestScore >= m.opts.threshold {
		return bestLabel, bestScore, nil
	}
	return templates.LabelNone, bestScore, nil
}

func (m *Matcher) matchEqualized(src, tpl gocv.Mat) MatchResult {
	clahe := gocv.NewCLAHEWithParams(m.opts.clipLimit, m.opts.tileGrid)
	defer clahe.Close()

	srcEq := gocv.NewMat()
	defer srcEq.Close()
	tplEq := gocv.NewMat()
	defer tplEq.Close()

	clahe.Apply(src, &srcEq)
	clahe.Apply(tpl, &tplEq)

	score, loc := correlate(srcEq, tplEq)
	return MatchResult{Location: loc, Score: score, Method: MatchMethodEqualized}
}

func matchEdges(src, tpl gocv.Mat, srcMedian, tplMedian float64) MatchResult {
	srcEdges := gocv.NewMat()
	defer srcEdges.Close()
	tplEdges := gocv.NewMat()
	defer tplEdges.Close()

	canny(src, &srcEdges, srcMedian)
	canny(tpl, &tplEdges, tplMedian)

	score, loc := correlate(srcEdges, tplEdges)
	return MatchResult{Location: loc, Score: score, Method: MatchMethodEdges}
}

// canny derives hysteresis thresholds from the image median
func canny(src gocv.Mat, dst *gocv.Mat, median float64) {
	low := int(math.Max(0, 0.66*median))
	high := int(math.Min(255, 1.33*median))
	gocv.Canny(src, dst, float32(low), float32(high))
}

func correlate(img, tpl gocv.Mat) (float64, image.Point) {
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(img, tpl, &result, gocv.TmCcoeffNormed, mask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	return clampScore(float64(maxVal)), maxLoc
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return -1
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// grayToMat copies img into an OpenCV owned single channel Mat
func grayToMat(img *image.Gray) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var buf []byte
	if img.Stride == w {
		buf = img.Pix[:w*h]
	} else {
		buf = make([]byte, w*h)
		for y := 0; y < h; y++ {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(buf[y*w:(y+1)*w], img.Pix[off:off+w])
		}
	}

	wrapped, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, buf)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer wrapped.Close()
	return wrapped.Clone(), nil
}

// medianGray returns the median intensity, averaging the two middle values
// for an even pixel count
func medianGray(img *image.Gray) float64 {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for _, v := range img.Pix[off : off+b.Dx()] {
			hist[v]++
		}
	}

	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	lo := nthValue(&hist, (n-1)/2)
	hi := nthValue(&hist, n/2)
	return float64(lo+hi) / 2
}

func nthValue(hist *[256]int, k int) int {
	acc := 0
	for v, c := range hist {
		acc += c
		if acc > k {
			return v
		}
	}
	return 255
}
