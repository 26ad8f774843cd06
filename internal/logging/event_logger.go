package logging

import (
	"fmt"

	"jordanella.com/rps-autoplay/internal/events"
)

// EventLogger subscribes to the event bus and writes every event to the log.
// Log line events are skipped since they already came from a logger.
type EventLogger struct {
	logger         *Logger
	eventBus       events.EventBus
	subscriptionID events.SubscriptionID
}

// NewEventLogger creates a new event logger
func NewEventLogger(eventBus events.EventBus) *EventLogger {
	el := &EventLogger{
		logger:   NewLogger("Events"),
		eventBus: eventBus,
	}
	el.subscriptionID = eventBus.Subscribe(events.EventTypeAll, el.handleEvent)
	return el
}

// handleEvent handles incoming events and logs them
func (el *EventLogger) handleEvent(event events.Event) {
	if event.Type == events.EventTypeLog {
		return
	}

	context := map[string]interface{}{
		"event_type": string(event.Type),
		"source":     event.Source,
	}
	for k, v := range event.Data {
		context[k] = v
	}

	msg := fmt.Sprintf("Event: %s", event.Type)
	if event.Type == events.EventTypeError {
		el.logger.WarnWithContext(msg, context)
		return
	}
	el.logger.DebugWithContext(msg, context)
}

// Close unsubscribes from the bus
func (el *EventLogger) Close() {
	el.eventBus.Unsubscribe(el.subscriptionID)
}

// ForwardToBus publishes every log entry as a log line event, so bus
// subscribers such as the control panel see the same lines as the log file.
// Lines are dropped when the bus is full. The returned func stops forwarding.
func ForwardToBus(bus events.EventBus) (stop func()) {
	return AddSink(func(e Entry) {
		bus.TryPublish(events.NewLogEvent(string(e.Level), e.Component, e.String()))
	})
}
