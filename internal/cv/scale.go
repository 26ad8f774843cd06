package cv

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"jordanella.com/rps-autoplay/pkg/templates"
)

// Scales returns the ascending scale factors from min to max inclusive,
// rounded to two decimals
func Scales(min, max, step float64) []float64 {
	if step <= 0 || max < min {
		return []float64{1.0}
	}
	n := int(math.Floor((max-min)/step+1e-9)) + 1
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, math.Round((min+float64(i)*step)*100)/100)
	}
	return out
}

// ScaledSize returns the template size at scale s, never smaller than 1x1
func ScaledSize(w, h int, s float64) (int, int) {
	tw := int(math.Max(1, math.RoundToEven(float64(w)*s)))
	th := int(math.Max(1, math.RoundToEven(float64(h)*s)))
	return tw, th
}

// Resize scales img to w x h, using area interpolation when shrinking and
// cubic interpolation otherwise
func Resize(img *image.Gray, w, h int) (*image.Gray, error) {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img, nil
	}

	src, err := grayToMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	interp := gocv.InterpolationCubic
	if w < b.Dx() || h < b.Dy() {
		interp = gocv.InterpolationArea
	}
	gocv.Resize(src, &dst, image.Pt(w, h), 0, 0, interp)
	if dst.Empty() {
		return nil, fmt.Errorf("resize to %dx%d produced no data", w, h)
	}

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert resized template: %w", err)
	}
	return templates.ToGray(out), nil
}
