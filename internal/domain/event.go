package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventRequestReceived  EventType = "request.received"
	EventRequestCompleted EventType = "request.completed"

	// Workflow engine events. Started carries the request; Completed carries
	// the request plus the final aggregated result.
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"

	// Routing events.
	EventRuleMatched   EventType = "routing.rule.matched"
	EventRulesReloaded EventType = "routing.rules.reloaded"

	// Classifier circuit breaker state changes.
	EventClassifierState EventType = "classifier.breaker.state"

	// Maintenance events.
	EventStatsDecayed  EventType = "maintenance.stats.decayed"
	EventJournalPruned EventType = "maintenance.journal.pruned"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
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
