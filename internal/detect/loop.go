// Package detect runs the capture and classify loop that turns a stream of
// frames into confirmed result events.
package detect

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"jordanella.com/rps-autoplay/internal/config"
	"jordanella.com/rps-autoplay/internal/cv"
	"jordanella.com/rps-autoplay/internal/events"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/pkg/templates"
)

// ErrCaptureLost is returned after too many consecutive capture failures
var ErrCaptureLost = errors.New("capture source lost")

// ErrClassifyFailed is returned after too many consecutive classify failures
var ErrClassifyFailed = errors.New("classifier keeps failing")

// Event is a confirmed classification
type Event struct {
	Label  templates.Label
	Score  float64
	Streak int
	At     time.Time
}

// Reaction is what the event handler wants the loop to do next
type Reaction struct {
	Stop     bool
	Cooldown time.Duration // extends the post-trigger cooldown when longer
}

// Handler consumes events in order. An error ends the loop.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Reaction, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, ev Event) (Reaction, error)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) (Reaction, error) {
	return f(ctx, ev)
}

// FrameSource captures the region of interest
type FrameSource interface {
	CaptureGray() (*image.Gray, error)
}

// Classifier labels a frame, returning an empty label below threshold
type Classifier interface {
	Classify(frame *image.Gray) (templates.Label, float64, error)
}

// Options tunes the loop
type Options struct {
	PollInterval       time.Duration
	ConfirmFrames      int
	Cooldown           time.Duration
	RearmHamming       int
	RearmTimeout       time.Duration // <= 0 waits for a scene change only
	MaxCaptureFailures int
}

// OptionsFromConfig converts the detect config section
func OptionsFromConfig(c config.DetectConfig) Options {
	return Options{
		PollInterval:       c.PollInterval,
		ConfirmFrames:      c.ConfirmFrames,
		Cooldown:           c.Cooldown,
		RearmHamming:       c.RearmHamming,
		RearmTimeout:       c.RearmTimeout,
		MaxCaptureFailures: c.MaxCaptureFailures,
	}
}

// Stats counts loop activity
type Stats struct {
	Frames          int64
	Triggers        int64
	Rearms          int64
	CaptureFailures int64
}

// LoopOption customises a Loop
type LoopOption func(*Loop)

// WithClock replaces time.Now
func WithClock(now func() time.Time) LoopOption {
	return func(l *Loop) { l.now = now }
}

// WithSleeper replaces the cancellable poll sleep
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) LoopOption {
	return func(l *Loop) { l.sleep = sleep }
}

// WithEventBus publishes trigger and rearm events
func WithEventBus(bus events.EventBus) LoopOption {
	return func(l *Loop) { l.bus = bus }
}

type rearmState struct {
	hash     cv.FrameHash
	label    templates.Label
	deadline time.Time // zero when the timeout is disabled
}

// Loop is the single-threaded classification state machine
type Loop struct {
	source     FrameSource
	classifier Classifier
	handler    Handler
	opts       Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	bus   events.EventBus

	streak        map[templates.Label]int
	cooldownUntil time.Time
	rearm         *rearmState

	frames, triggers, rearms, failures atomic.Int64

	logger *logging.Logger
}

// NewLoop creates a loop
func NewLoop(source FrameSource, classifier Classifier, handler Handler, opts Options, options ...LoopOption) *Loop {
	if opts.ConfirmFrames < 1 {
		opts.ConfirmFrames = 1
	}
	if opts.MaxCaptureFailures < 1 {
		opts.MaxCaptureFailures = 1
	}
	l := &Loop{
		source:     source,
		classifier: classifier,
		handler:    handler,
		opts:       opts,
		now:        time.Now,
		sleep:      sleepCtx,
		streak:     make(map[templates.Label]int, len(templates.Labels)),
		logger:     logging.NewLogger("Detect"),
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Stats returns a snapshot of the counters
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:          l.frames.Load(),
		Triggers:        l.triggers.Load(),
		Rearms:          l.rearms.Load(),
		CaptureFailures: l.failures.Load(),
	}
}

// Rearming reports whether the loop is waiting for the scene to change
func (l *Loop) Rearming() bool {
	return l.rearm != nil
}

// Run loops until the handler asks to stop (nil), ctx ends (ctx.Err()), the
// capture source is lost (ErrCaptureLost), classification keeps failing
// (ErrClassifyFailed) or the handler fails. Both failure budgets use
// MaxCaptureFailures.
func (l *Loop) Run(ctx context.Context) error {
	l.reset()
	consecutive, classifyFails := 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if l.now().Before(l.cooldownUntil) {
			if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		frame, err := l.source.CaptureGray()
		if err != nil {
			consecutive++
			l.failures.Add(1)
			l.logger.WarnWithContext("capture failed", map[string]interface{}{
				"error":       err.Error(),
				"consecutive": consecutive,
			})
			if consecutive >= l.opts.MaxCaptureFailures {
				return fmt.Errorf("%w after %d attempts: %v", ErrCaptureLost, consecutive, err)
			}
			if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
				return err
			}
			continue
		}
		consecutive = 0
		l.frames.Add(1)

		label, score, err := l.classifier.Classify(frame)
		if err != nil {
			classifyFails++
			l.logger.ErrorWithContext("classify failed, frame skipped", err, map[string]interface{}{
				"consecutive": classifyFails,
			})
			if classifyFails >= l.opts.MaxCaptureFailures {
				return fmt.Errorf("%w after %d frames: %w", ErrClassifyFailed, classifyFails, err)
			}
			if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
				return err
			}
			continue
		}
		classifyFails = 0

		if l.rearm != nil && !l.checkRearm(frame, label, score) {
			if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		stop, err := l.observe(ctx, frame, label, score)
		if err != nil || stop {
			return err
		}

		if err := l.sleep(ctx, l.opts.PollInterval); err != nil {
			return err
		}
	}
}

func (l *Loop) reset() {
	for _, label := range templates.Labels {
		l.streak[label] = 0
	}
	l.cooldownUntil = time.Time{}
	l.rearm = nil
}

// checkRearm clears the rearm state when the label changed, the frame hash
// moved far enough, or the deadline passed. It reports whether detection may
// proceed on this frame.
func (l *Loop) checkRearm(frame *image.Gray, label templates.Label, score float64) bool {
	hash, err := cv.AverageHash(frame)
	if err != nil {
		l.logger.Error("hash failed", err)
	}
	dist := cv.Hamming(l.rearm.hash, hash)

	changed := label != l.rearm.label || dist >= l.opts.RearmHamming
	timedOut := !l.rearm.deadline.IsZero() && !l.now().Before(l.rearm.deadline)
	if !changed && !timedOut {
		return false
	}

	l.logger.InfoWithContext("rearmed", map[string]interface{}{
		"changed":   changed,
		"timed_out": timedOut,
		"label":     string(label),
		"score":     fmt.Sprintf("%.3f", score),
		"distance":  dist,
	})
	l.rearm = nil
	l.rearms.Add(1)
	l.publish(events.NewRearmedEvent(changed, timedOut, string(label), score))
	return true
}

// observe updates streaks and fires the handler on confirmation
func (l *Loop) observe(ctx context.Context, frame *image.Gray, label templates.Label, score float64) (bool, error) {
	if label == templates.LabelNone {
		for k := range l.streak {
			l.streak[k] = 0
		}
		return false, nil
	}

	for k := range l.streak {
		if k == label {
			l.streak[k]++
		} else {
			l.streak[k] = 0
		}
	}
	if l.streak[label] < l.opts.ConfirmFrames {
		return false, nil
	}

	at := l.now()
	ev := Event{Label: label, Score: score, Streak: l.streak[label], At: at}
	l.logger.InfoWithContext("triggered", map[string]interface{}{
		"label":  string(label),
		"score":  fmt.Sprintf("%.3f", score),
		"streak": ev.Streak,
	})
	l.triggers.Add(1)
	l.publish(events.NewTriggeredEvent(string(label), score, ev.Streak))

	hash, err := cv.AverageHash(frame)
	if err != nil {
		l.logger.Error("hash failed", err)
	}
	l.rearm = &rearmState{hash: hash, label: label}
	if l.opts.RearmTimeout > 0 {
		l.rearm.deadline = at.Add(l.opts.RearmTimeout)
	}

	reaction, err := l.handler.Handle(ctx, ev)
	if err != nil {
		return true, err
	}

	for k := range l.streak {
		l.streak[k] = 0
	}
	cooldown := l.opts.Cooldown
	if reaction.Cooldown > cooldown {
		cooldown = reaction.Cooldown
	}
	l.cooldownUntil = l.now().Add(cooldown)
	return reaction.Stop, nil
}

func (l *Loop) publish(ev events.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
