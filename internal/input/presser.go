package input

import (
	"context"
	"errors"
	"sync"
	"time"

	"jordanella.com/rps-autoplay/internal/logging"
)

// Presser turns key names into timed down/up pairs and remembers which keys
// are currently held so they can be released on stop.
type Presser struct {
	kb   Keyboard
	hold time.Duration
	gap  time.Duration

	mu   sync.Mutex
	held map[string]Key

	logger *logging.Logger
}

// NewPresser creates a presser holding each key for hold and spacing repeated
// presses by gap
func NewPresser(kb Keyboard, hold, gap time.Duration) *Presser {
	return &Presser{
		kb:     kb,
		hold:   hold,
		gap:    gap,
		held:   make(map[string]Key),
		logger: logging.NewLogger("Input"),
	}
}

// Press taps a key once. The key is always released, even when ctx is
// cancelled during the hold.
func (p *Presser) Press(ctx context.Context, name string) error {
	k, err := Lookup(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.kb.Down(k); err != nil {
		return err
	}
	p.mark(k, true)

	waitErr := Wait(ctx, p.hold)

	upErr := p.kb.Up(k)
	if upErr == nil {
		p.mark(k, false)
	}
	return errors.Join(waitErr, upErr)
}

// PressTimes taps a key n times with the configured gap between taps
func (p *Presser) PressTimes(ctx context.Context, name string, n int) error {
	return p.PressTimesGap(ctx, name, n, p.gap)
}

// PressTimesGap taps a key n times with an explicit gap
func (p *Presser) PressTimesGap(ctx context.Context, name string, n int, gap time.Duration) error {
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := Wait(ctx, gap); err != nil {
				return err
			}
		}
		if err := p.Press(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Held returns the names of keys currently down
func (p *Presser) Held() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.held))
	for name := range p.held {
		names = append(names, name)
	}
	return names
}

// ReleaseAll sends key-up for every key still marked as held
func (p *Presser) ReleaseAll() {
	p.mu.Lock()
	keys := make([]Key, 0, len(p.held))
	for _, k := range p.held {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for _, k := range keys {
		if err := p.kb.Up(k); err != nil {
			p.logger.Error("release "+k.Name, err)
			continue
		}
		p.mark(k, false)
	}
}

func (p *Presser) mark(k Key, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if down {
		p.held[k.Name] = k
	} else {
		delete(p.held, k.Name)
	}
}

// Wait sleeps for d or until ctx is done
func Wait(ctx context.Context, d time.Duration) error {
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

// LogKeyboard logs key transitions instead of sending them
type LogKeyboard struct {
	logger *logging.Logger
}

// NewLogKeyboard creates a keyboard for dry runs
func NewLogKeyboard() *LogKeyboard {
	return &LogKeyboard{logger: logging.NewLogger("DryRun")}
}

func (k *LogKeyboard) Down(key Key) error {
	k.logger.Info("key down " + key.Name)
	return nil
}

func (k *LogKeyboard) Up(key Key) error {
	k.logger.Debug("key up " + key.Name)
	return nil
}
