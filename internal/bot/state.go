package bot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"jordanella.com/rps-autoplay/internal/input"
)

// ErrStopRequested ends a run cleanly
var ErrStopRequested = errors.New("stop requested")

// IsStop reports whether err is a stop request or a cancelled context
func IsStop(err error) bool {
	return errors.Is(err, ErrStopRequested) || errors.Is(err, context.Canceled)
}

// RunState is the coarse state shown to the operator
type RunState int32

const (
	StateIdle RunState = iota
	StateCountdown
	StateCalibrating
	StateRunning
	StateStopping
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountdown:
		return "countdown"
	case StateCalibrating:
		return "calibrating"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// StopLatch is a one-way stop flag that cancels the run context. Once set it
// stays set for the lifetime of the run.
type StopLatch struct {
	stopped atomic.Bool
	once    sync.Once
	cancel  context.CancelCauseFunc
}

// NewStopLatch derives a context that is cancelled with ErrStopRequested when
// the latch is set
func NewStopLatch(parent context.Context) (*StopLatch, context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	return &StopLatch{cancel: cancel}, ctx
}

// Request sets the latch. Later calls are no-ops.
func (l *StopLatch) Request() {
	l.once.Do(func() {
		l.stopped.Store(true)
		l.cancel(ErrStopRequested)
	})
}

// Requested reports whether the latch is set
func (l *StopLatch) Requested() bool {
	return l.stopped.Load()
}

// Watch sets the latch when probe reports the stop key down. It returns when
// the latch fires or ctx ends.
func (l *StopLatch) Watch(ctx context.Context, probe input.KeyProbe, step time.Duration) {
	input.WatchKey(ctx, probe, step, l.Request)
}

// Release frees the context without marking a stop
func (l *StopLatch) Release() {
	l.cancel(nil)
}

// stopCause maps a context error to ErrStopRequested when the latch caused it
func stopCause(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrStopRequested) && errors.Is(err, context.Canceled) {
		return ErrStopRequested
	}
	return err
}
