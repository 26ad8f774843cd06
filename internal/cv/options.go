package cv

import "image"

// Matcher options
type Option func(*matchOptions)

type matchOptions struct {
	threshold float64
	clipLimit float64
	tileGrid  image.Point
}

func defaultMatchOptions() matchOptions {
	return matchOptions{
		threshold: DefaultThreshold,
		clipLimit: 2.0,
		tileGrid:  image.Pt(8, 8),
	}
}

// WithThreshold sets the acceptance threshold used by Detect
func WithThreshold(t float64) Option {
	return func(opts *matchOptions) {
		opts.threshold = t
	}
}

// WithCLAHE sets the contrast equalization parameters
func WithCLAHE(clipLimit float64, tileGrid image.Point) Option {
	return func(opts *matchOptions) {
		opts.clipLimit = clipLimit
		opts.tileGrid = tileGrid
	}
}
