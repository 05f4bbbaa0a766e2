// Package bus provides the outbound event interface the core emits through.
// Components hold a Publisher instead of inheriting emission behavior, so
// emission is testable without a live event consumer.
package bus

import (
	"context"
	"log/slog"
	"time"
)

// EventType identifies an outbound event.
type EventType string

// Events emitted by the core.
const (
	EventCrisisDetected      EventType = "crisis:detected"
	EventCrisisStatusUpdated EventType = "crisis:status-updated"
	EventPlanCreated         EventType = "response-plan:created"
	EventPlanCompleted       EventType = "response-plan:completed"
	EventActionStarted       EventType = "action:started"
	EventActionCompleted     EventType = "action:completed"
	EventEscalationChanged   EventType = "escalation:level-changed"
	EventNotificationSent    EventType = "notification:sent"
)

// Event is one outbound record consumed by logging/metrics/UI collaborators.
type Event struct {
	Type     EventType      `json:"type"`
	CrisisID string         `json:"crisis_id"`
	At       time.Time      `json:"at"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Publisher receives outbound events. Publish must not block on downstream
// consumers and must never fail the emitting operation.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes events to the structured log and records a metric.
type LogPublisher struct{}

// NewLogPublisher creates a publisher backed by slog.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

// Publish logs the event.
func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	recordEventPublished(string(event.Type))
	slog.InfoContext(ctx, "event published",
		"event_type", event.Type,
		"crisis_id", event.CrisisID,
		"fields", event.Fields,
	)
}

// Fanout publishes each event to every wrapped publisher in order.
type Fanout []Publisher

// Publish forwards the event to all publishers.
func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, p := range f {
		p.Publish(ctx, event)
	}
}

// New builds an Event with the timestamp set.
func New(eventType EventType, crisisID string, fields map[string]any) Event {
	return Event{
		Type:     eventType,
		CrisisID: crisisID,
		At:       time.Now(),
		Fields:   fields,
	}
}
