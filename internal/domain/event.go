package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventCommandReceived   EventType = "command.received"
	EventCommandDispatched EventType = "command.dispatched"
	EventModelFallback     EventType = "model.fallback"

	// LED lifecycle events.
	EventLEDStateChanged EventType = "led.state_changed"
	EventBlinkStarted    EventType = "blink.started"
	EventBlinkStopped    EventType = "blink.stopped"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// PublishJSON marshals payload and publishes it under the given type.
	// Marshal failures must not fail the publisher's command path.
	PublishJSON(ctx context.Context, eventType EventType, payload any)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
