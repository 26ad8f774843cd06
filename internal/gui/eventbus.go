package gui

import (
	"sync"

	"fyne.io/fyne/v2"

	"jordanella.com/rps-autoplay/internal/events"
)

// UIBridge re-delivers bus events on the fyne main thread. Handlers may
// touch widgets directly.
type UIBridge struct {
	bus  events.EventBus
	mu   sync.Mutex
	subs []events.SubscriptionID
	run  func(func())
}

// NewUIBridge creates a bridge that marshals through fyne.Do
func NewUIBridge(bus events.EventBus) *UIBridge {
	return &UIBridge{bus: bus, run: fyne.Do}
}

// Subscribe registers a main-thread handler for eventType
func (b *UIBridge) Subscribe(eventType events.EventType, handler events.EventHandler) {
	id := b.bus.Subscribe(eventType, func(e events.Event) {
		b.run(func() { handler(e) })
	})
	b.mu.Lock()
	b.subs = append(b.subs, id)
	b.mu.Unlock()
}

// Close removes every subscription made through the bridge
func (b *UIBridge) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, id := range subs {
		b.bus.Unsubscribe(id)
	}
}
