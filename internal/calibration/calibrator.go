// Package calibration locates the result banner on screen and binds the
// template pack that matched it.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/internal/window"
	"jordanella.com/rps-autoplay/pkg/templates"
)

// ErrCalibrationFailed matches every *CalibrationFailedError
var ErrCalibrationFailed = errors.New("calibration failed")

// CalibrationFailedError reports a search whose best score stayed below the minimum
type CalibrationFailedError struct {
	Best     float64 // -1 when nothing could be matched
	Min      float64
	Searched int // search spaces captured
}

func (e *CalibrationFailedError) Error() string {
	return fmt.Sprintf("calibration failed: best score %.3f below minimum %.2f across %d search space(s)", e.Best, e.Min, e.Searched)
}

func (e *CalibrationFailedError) Is(target error) bool {
	return target == ErrCalibrationFailed
}

// Search space sources
const (
	SourceForced     = "forced"
	SourceForeground = "foreground"
	SourceWindow     = "window"
	SourceMonitor    = "monitor"
)

// SearchSpace is one absolute screen area to scan
type SearchSpace struct {
	Monitor int // 1-based owning monitor, 0 when not a whole monitor
	Bounds  cv.Region
	Source  string
}

// Options tunes the search
type Options struct {
	Scales           []float64
	EarlyStopScore   float64
	MinScore         float64
	ROIExpand        float64
	PreferredMonitor int
}

// OptionsFromConfig converts the calibration config section
func OptionsFromConfig(c config.CalibrationConfig) Options {
	return Options{
		Scales:           cv.Scales(c.ScaleMin, c.ScaleMax, c.ScaleStep),
		EarlyStopScore:   c.EarlyStopScore,
		MinScore:         c.MinScore,
		ROIExpand:        c.ROIExpand,
		PreferredMonitor: c.MonitorIndex,
	}
}

// Result is a successful calibration
type Result struct {
	MonitorIndex int
	ROI          cv.Region // relative to the monitor origin
	Absolute     cv.Region
	Score        float64
	Label        templates.Label
	Scale        float64
	PackName     string
	PackDir      string
	Source       string
}

// Calibrator searches screen areas for any template at any scale
type Calibrator struct {
	capturer cv.Capturer
	matcher  *cv.Matcher
	resolver *templates.Resolver
	cache    *templates.Cache
	opts     Options
	logger   *logging.Logger
}

// NewCalibrator creates a calibrator. A nil cache disables pack reuse.
func NewCalibrator(capturer cv.Capturer, matcher *cv.Matcher, resolver *templates.Resolver, cache *templates.Cache, opts Options) *Calibrator {
	if cache == nil {
		cache = templates.NewCache()
	}
	if len(opts.Scales) == 0 {
		opts.Scales = []float64{1.0}
	}
	return &Calibrator{
		capturer: capturer,
		matcher:  matcher,
		resolver: resolver,
		cache:    cache,
		opts:     opts,
		logger:   logging.NewLogger("Calibration"),
	}
}

// SearchSpaces lists where to look, in priority order: a named window when a
// title is given and found, the foreground client area when no title is
// given and useForeground is set, else every monitor.
func (c *Calibrator) SearchSpaces(finder window.Finder, title string, useForeground bool) ([]SearchSpace, error) {
	if finder != nil {
		if title != "" {
			if r, ok := finder.FindByTitle(title); ok && !r.Empty() {
				return []SearchSpace{{Bounds: r, Source: SourceWindow}}, nil
			}
			c.logger.Warn(fmt.Sprintf("no window titled %q, searching all monitors", title))
		} else if useForeground {
			if r, ok := finder.ForegroundClient(); ok && !r.Empty() {
				return []SearchSpace{{Bounds: r, Source: SourceForeground}}, nil
			}
		}
	}

	monitors, err := c.capturer.Monitors()
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	spaces := make([]SearchSpace, 0, len(monitors))
	for _, m := range monitors {
		spaces = append(spaces, SearchSpace{Monitor: m.Index, Bounds: m.Bounds, Source: SourceMonitor})
	}
	if len(spaces) == 0 {
		return nil, errors.New("no monitors found")
	}
	return spaces, nil
}

// ForcedSpace searches exactly r
func ForcedSpace(r cv.Region) []SearchSpace {
	return []SearchSpace{{Bounds: r, Source: SourceForced}}
}

type candidate struct {
	score  float64
	loc    cv.MatchResult
	w, h   int
	scale  float64
	label  templates.Label
	space  SearchSpace
	frameW int
	frameH int
	pack   *templates.Pack
}

// Run scans every space and returns the best match, expanded into a ROI.
// Pack resolution and template load errors are returned as is.
func (c *Calibrator) Run(ctx context.Context, spaces []SearchSpace) (*Result, error) {
	best := candidate{score: math.Inf(-1)}
	found := false
	searched := 0

search:
	for _, space := range spaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := cv.GrabGray(c.capturer, space.Bounds)
		if err != nil {
			c.logger.WarnWithContext("search space skipped", map[string]interface{}{
				"source": space.Source,
				"bounds": space.Bounds.String(),
				"error":  err.Error(),
			})
			continue
		}
		searched++
		fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()

		dir, name, err := c.resolver.Resolve(fw, fh)
		if err != nil {
			return nil, err
		}
		pack, err := c.cache.Get(dir, name)
		if err != nil {
			return nil, err
		}
		c.logger.DebugWithContext("searching", map[string]interface{}{
			"source": space.Source,
			"bounds": space.Bounds.String(),
			"pack":   pack.DisplayName(),
		})

		for _, tpl := range pack.Templates() {
			for _, s := range c.opts.Scales {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				tw, th := cv.ScaledSize(tpl.Width, tpl.Height, s)
				if th >= fh || tw >= fw {
					continue
				}
				scaled, err := cv.Resize(tpl.Image, tw, th)
				if err != nil {
					return nil, fmt.Errorf("failed to scale %s template: %w", tpl.Label, err)
				}
				res, err := c.matcher.MatchBest(frame, scaled)
				if err != nil {
					return nil, fmt.Errorf("failed to match %s at %.2f: %w", tpl.Label, s, err)
				}

				if res.Score > best.score {
					best = candidate{
						score: res.Score, loc: res, w: tw, h: th, scale: s,
						label: tpl.Label, space: space, frameW: fw, frameH: fh, pack: pack,
					}
					found = true
				}
				if best.score >= c.opts.EarlyStopScore {
					break search
				}
			}
		}
	}

	if !found || best.score < c.opts.MinScore {
		bestScore := -1.0
		if found {
			bestScore = best.score
		}
		return nil, &CalibrationFailedError{Best: bestScore, Min: c.opts.MinScore, Searched: searched}
	}

	local := fitROI(best.loc.Location.X, best.loc.Location.Y, best.w, best.h, c.opts.ROIExpand, best.frameW, best.frameH)
	abs := local.Offset(best.space.Bounds.Left, best.space.Bounds.Top)

	monIndex, monBounds := c.owningMonitor(best.space)
	result := &Result{
		MonitorIndex: monIndex,
		ROI:          abs.RelativeTo(monBounds),
		Absolute:     abs,
		Score:        best.score,
		Label:        best.label,
		Scale:        best.scale,
		PackName:     best.pack.Name,
		PackDir:      best.pack.Dir,
		Source:       best.space.Source,
	}

	c.logger.InfoWithContext("calibrated", map[string]interface{}{
		"score":   fmt.Sprintf("%.3f", result.Score),
		"label":   string(result.Label),
		"scale":   result.Scale,
		"monitor": result.MonitorIndex,
		"roi":     result.ROI.String(),
		"pack":    best.pack.DisplayName(),
	})
	return result, nil
}

// owningMonitor picks the monitor a result is stored against. Whole-monitor
// spaces own themselves; anything else belongs to the preferred monitor when
// it exists, else monitor 1.
func (c *Calibrator) owningMonitor(space SearchSpace) (int, cv.Region) {
	monitors, err := c.capturer.Monitors()
	if err != nil || len(monitors) == 0 {
		return 1, cv.Region{}
	}
	if space.Monitor > 0 {
		if m, ok := cv.MonitorByIndex(monitors, space.Monitor); ok {
			return m.Index, m.Bounds
		}
	}
	if m, ok := cv.MonitorByIndex(monitors, c.opts.PreferredMonitor); ok {
		return m.Index, m.Bounds
	}
	return monitors[0].Index, monitors[0].Bounds
}

// fitROI expands the match box around its centre. The box is shifted
// right/down to start inside the frame and then truncated at the far edge.
func fitROI(x, y, w, h int, factor float64, frameW, frameH int) cv.Region {
	r := cv.ExpandAround(x, y, w, h, factor)
	left, width := fitSpan(r.Left, r.Width, frameW)
	top, height := fitSpan(r.Top, r.Height, frameH)
	return cv.NewRegion(left, top, width, height)
}

func fitSpan(lo, size, limit int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	hi := lo + size
	if hi > limit {
		hi = limit
	}
	return lo, hi - lo
}
