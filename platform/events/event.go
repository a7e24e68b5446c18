// Package events carries the in-process event bus that decouples the booking
// engine from its side effects (email notifications, lead timeline updates).
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event published on the bus.
type Event interface {
	// EventName identifies the event type; subscribers key on it.
	EventName() string
	// OccurredAt is when the event happened, not when it was handled.
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp shared by all events. Embed it and add
// the event's own payload fields alongside.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the embedded timestamp.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current wall clock.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish delivers the event to every handler subscribed to its name.
	// Handlers run asynchronously; a failing handler never fails the
	// publisher.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for all handlers.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the event name as returned by
	// Event.EventName.
	Subscribe(eventName string, handler Handler)
}
