package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jordanella.com/rps-autoplay/internal/input"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/internal/window"
)

// Dispatcher plays scripts against the focused game window
type Dispatcher struct {
	library *Library
	presser *input.Presser
	finder  window.Finder
	title   string
	logger  *logging.Logger
}

// NewDispatcher creates a dispatcher. An empty title skips focusing.
func NewDispatcher(library *Library, presser *input.Presser, finder window.Finder, title string) *Dispatcher {
	if finder == nil {
		finder = window.NopFinder{}
	}
	return &Dispatcher{
		library: library,
		presser: presser,
		finder:  finder,
		title:   title,
		logger:  logging.NewLogger("Actions"),
	}
}

// Library returns the scripts being dispatched
func (d *Dispatcher) Library() *Library {
	return d.library
}

// Run plays a script. Steps with unknown keys are logged and skipped. When
// ctx is cancelled mid-script every held key is released and ctx's error is
// returned.
func (d *Dispatcher) Run(ctx context.Context, name string) error {
	script, err := d.library.Get(name)
	if err != nil {
		return err
	}

	if d.title != "" {
		if err := d.finder.Focus(d.title); err != nil {
			d.logger.WarnWithContext("focus failed", map[string]interface{}{
				"title": d.title,
				"error": err.Error(),
			})
		}
	}

	d.logger.DebugWithContext("running script", map[string]interface{}{
		"script": name,
		"steps":  len(script.Steps),
	})

	for i, step := range script.Steps {
		if err := input.Wait(ctx, step.WaitDuration()); err != nil {
			d.presser.ReleaseAll()
			return err
		}

		if err := d.press(ctx, step); err != nil {
			var unknown *input.UnknownKeyError
			if errors.As(err, &unknown) {
				d.logger.Warn(fmt.Sprintf("script %s step %d: %v, skipped", name, i+1, err))
				continue
			}
			d.presser.ReleaseAll()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("script %s step %d: %w", name, i+1, err)
		}
	}
	return nil
}

func (d *Dispatcher) press(ctx context.Context, step Step) error {
	if step.Repeat() == 1 {
		return d.presser.Press(ctx, step.Key)
	}
	if step.Gap > 0 {
		return d.presser.PressTimesGap(ctx, step.Key, step.Repeat(), time.Duration(step.Gap)*time.Millisecond)
	}
	return d.presser.PressTimes(ctx, step.Key, step.Repeat())
}
