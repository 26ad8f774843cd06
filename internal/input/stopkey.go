package input

import (
	"context"
	"time"
)

// KeyProbe reports whether a key is currently down
type KeyProbe func() bool

// WatchKey polls probe every step and calls fire once when the key is seen
// down. It returns after firing or when ctx is done.
func WatchKey(ctx context.Context, probe KeyProbe, step time.Duration, fire func()) {
	if step <= 0 {
		step = 10 * time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		if probe() {
			fire()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
