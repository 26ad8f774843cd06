package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// EventTypeAll subscribes to every event
	EventTypeAll EventType = "*"

	// Run lifecycle
	EventTypeRunStarted  EventType = "run.started"
	EventTypeRunFinished EventType = "run.finished"
	EventTypeStatus      EventType = "run.status"

	// Calibration
	EventTypeCalibrated EventType = "calibration.completed"

	// Classification loop
	EventTypeTriggered EventType = "detect.triggered"
	EventTypeRearmed   EventType = "detect.rearmed"

	// Phase controller
	EventTypePhaseChanged EventType = "phase.changed"
	EventTypeDispatched   EventType = "action.dispatched"

	// Log lines forwarded to the operator
	EventTypeLog EventType = "log.line"

	// Error events
	EventTypeError EventType = "error"
)

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "detect", "calibration")
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish queues an event, blocking until it is accepted
	Publish(event Event)

	// TryPublish queues an event only if there is room
	TryPublish(event Event) bool

	// Stop stops the event bus and drains remaining events
	Stop()
}

// NewRunStartedEvent creates a run started event
func NewRunStartedEvent(runID, mode string) Event {
	return Event{
		Type:      EventTypeRunStarted,
		Source:    "bot",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id": runID,
			"mode":   mode,
		},
	}
}

// NewRunFinishedEvent creates a run finished event
func NewRunFinishedEvent(runID, outcome string, drawCount int, err error) Event {
	data := map[string]interface{}{
		"run_id":     runID,
		"outcome":    outcome,
		"draw_count": drawCount,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return Event{
		Type:      EventTypeRunFinished,
		Source:    "bot",
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewStatusEvent creates an operator status change event
func NewStatusEvent(status string) Event {
	return Event{
		Type:      EventTypeStatus,
		Source:    "bot",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"status": status,
		},
	}
}

// NewCalibratedEvent creates a calibration completed event
func NewCalibratedEvent(monitor int, left, top, width, height int, score float64, anchor, pack string) Event {
	return Event{
		Type:      EventTypeCalibrated,
		Source:    "calibration",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"monitor_index": monitor,
			"left":          left,
			"top":           top,
			"width":         width,
			"height":        height,
			"score":         score,
			"anchor_label":  anchor,
			"template_pack": pack,
		},
	}
}

// NewTriggeredEvent creates a classification event
func NewTriggeredEvent(label string, score float64, streak int) Event {
	return Event{
		Type:      EventTypeTriggered,
		Source:    "detect",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"label":  label,
			"score":  score,
			"streak": streak,
		},
	}
}

// NewRearmedEvent reports that the loop is ready to trigger again
func NewRearmedEvent(changed, timedOut bool, label string, score float64) Event {
	return Event{
		Type:      EventTypeRearmed,
		Source:    "detect",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"changed":   changed,
			"timed_out": timedOut,
			"label":     label,
			"score":     score,
		},
	}
}

// NewPhaseChangedEvent creates a phase transition event
func NewPhaseChangedEvent(from, to string, drawCount int) Event {
	return Event{
		Type:      EventTypePhaseChanged,
		Source:    "phase",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"from":       from,
			"to":         to,
			"draw_count": drawCount,
		},
	}
}

// NewDispatchedEvent reports an action script run
func NewDispatchedEvent(script, label string, drawCount int) Event {
	return Event{
		Type:      EventTypeDispatched,
		Source:    "phase",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"script":     script,
			"label":      label,
			"draw_count": drawCount,
		},
	}
}

// NewLogEvent wraps a formatted log line
func NewLogEvent(level, component, message string) Event {
	return Event{
		Type:      EventTypeLog,
		Source:    component,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"level":   level,
			"message": message,
		},
	}
}

// NewErrorEvent creates an error event
func NewErrorEvent(source string, err error) Event {
	return Event{
		Type:      EventTypeError,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"error": err.Error(),
		},
	}
}
