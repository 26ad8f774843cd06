package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"jordanella.com/rps-autoplay/internal/actions"
	"jordanella.com/rps-autoplay/internal/detect"
	"jordanella.com/rps-autoplay/internal/events"
	"jordanella.com/rps-autoplay/internal/logging"
	"jordanella.com/rps-autoplay/pkg/templates"
)

// Phase is the controller's stage
type Phase int

const (
	PhaseAccumulating Phase = iota
	PhaseTerminal
)

func (p Phase) String() string {
	if p == PhaseTerminal {
		return "terminal"
	}
	return "accumulating"
}

// minTerminalCooldown is the least pause after entering the terminal phase
const minTerminalCooldown = time.Second

// ScriptRunner plays a named action script
type ScriptRunner interface {
	Run(ctx context.Context, name string) error
}

// TriggerInfo describes one handled event
type TriggerInfo struct {
	Label     templates.Label
	Score     float64
	Phase     Phase
	Script    string
	DrawCount int
	At        time.Time
}

// PhaseOptions tunes the controller
type PhaseOptions struct {
	DrawStopAt   int
	PostCooldown time.Duration // loop cooldown; the terminal switch waits at least this
}

// PhaseController maps confirmed results to action scripts and moves from
// accumulating draws to the terminal phase
type PhaseController struct {
	scripts ScriptRunner
	opts    PhaseOptions
	bus     events.EventBus
	onEvent func(TriggerInfo)

	mu       sync.RWMutex
	phase    Phase
	draws    int
	finished templates.Label

	logger *logging.Logger
}

// NewPhaseController creates a controller in the accumulating phase. bus and
// onEvent may be nil.
func NewPhaseController(scripts ScriptRunner, opts PhaseOptions, bus events.EventBus, onEvent func(TriggerInfo)) *PhaseController {
	if opts.DrawStopAt < 1 {
		opts.DrawStopAt = 1
	}
	return &PhaseController{
		scripts: scripts,
		opts:    opts,
		bus:     bus,
		onEvent: onEvent,
		logger:  logging.NewLogger("Phase"),
	}
}

// Phase returns the current phase
func (p *PhaseController) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// DrawCount returns the draws counted while accumulating
func (p *PhaseController) DrawCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.draws
}

// Finished returns the terminal label that ended the run, if any
func (p *PhaseController) Finished() templates.Label {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.finished
}

// scriptFor picks the script for a label in a phase
func scriptFor(phase Phase, label templates.Label) (string, bool) {
	if phase == PhaseTerminal {
		switch label {
		case templates.LabelWin:
			return actions.ScriptTerminalWin, true
		case templates.LabelLoss:
			return actions.ScriptTerminalLoss, true
		case templates.LabelDraw:
			return actions.ScriptTerminalDraw, true
		}
		return "", false
	}
	switch label {
	case templates.LabelWin:
		return actions.ScriptWin, true
	case templates.LabelLoss:
		return actions.ScriptLoss, true
	case templates.LabelDraw:
		return actions.ScriptDraw, true
	}
	return "", false
}

// Handle implements detect.Handler
func (p *PhaseController) Handle(ctx context.Context, ev detect.Event) (detect.Reaction, error) {
	phase := p.Phase()
	script, ok := scriptFor(phase, ev.Label)
	if !ok {
		p.logger.Warn(fmt.Sprintf("no script for %q in %s phase", ev.Label, phase))
		return detect.Reaction{}, nil
	}

	if err := p.scripts.Run(ctx, script); err != nil {
		if IsStop(err) || ctx.Err() != nil {
			return detect.Reaction{}, err
		}
		p.logger.ErrorWithContext("script failed", err, map[string]interface{}{
			"script": script,
			"label":  string(ev.Label),
		})
	}

	var reaction detect.Reaction

	p.mu.Lock()
	switch phase {
	case PhaseAccumulating:
		if ev.Label == templates.LabelDraw {
			p.draws++
			if p.draws >= p.opts.DrawStopAt {
				p.phase = PhaseTerminal
				reaction.Cooldown = max(p.opts.PostCooldown, minTerminalCooldown)
			}
		}
	case PhaseTerminal:
		if ev.Label == templates.LabelWin || ev.Label == templates.LabelLoss {
			p.finished = ev.Label
			reaction.Stop = true
		}
	}
	draws, next := p.draws, p.phase
	p.mu.Unlock()

	p.logger.InfoWithContext("handled", map[string]interface{}{
		"label":  string(ev.Label),
		"script": script,
		"draws":  fmt.Sprintf("%d/%d", draws, p.opts.DrawStopAt),
		"phase":  next.String(),
	})
	p.publish(events.NewDispatchedEvent(script, string(ev.Label), draws))
	if next != phase {
		p.logger.Info(fmt.Sprintf("draw limit %d reached, entering terminal phase", p.opts.DrawStopAt))
		p.publish(events.NewPhaseChangedEvent(phase.String(), next.String(), draws))
	}

	if p.onEvent != nil {
		p.onEvent(TriggerInfo{
			Label:     ev.Label,
			Score:     ev.Score,
			Phase:     phase,
			Script:    script,
			DrawCount: draws,
			At:        ev.At,
		})
	}
	return reaction, nil
}

func (p *PhaseController) publish(ev events.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}
