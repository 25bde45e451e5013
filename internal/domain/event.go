package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentRegistered   EventType = "agent.registered"
	EventAgentUnregistered EventType = "agent.unregistered"
	EventAgentSelected     EventType = "agent.selected"
	EventAgentError        EventType = "agent.error"

	EventQueryReceived  EventType = "query.received"
	EventQueryCompleted EventType = "query.completed"

	EventBreakerOpened   EventType = "breaker.opened"
	EventBreakerHalfOpen EventType = "breaker.half_open"
	EventBreakerClosed   EventType = "breaker.closed"

	EventFallbackTriggered EventType = "fallback.triggered"

	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"

	EventHealthSweep EventType = "health.sweep"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
