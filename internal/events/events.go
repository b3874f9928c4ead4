// Package events decouples the API surface from the cascade scheduler.
// Handlers emit intent events; the scheduler consumes them and decides
// what generation work to enqueue.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type identifiers
const (
	// EventTypeViewIntent signals that a learner opened a lesson.
	EventTypeViewIntent = "view_intent"
)

// ViewIntentPayload carries the target of a lesson view.
type ViewIntentPayload struct {
	CourseID uuid.UUID `json:"course_id"`
	LessonID string    `json:"lesson_id"`
}

// Event is a typed notification with a JSON payload. Payloads are
// serialized at construction so handlers observe an immutable snapshot
// regardless of when they run.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates what happened, e.g. EventTypeViewIntent
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// OccurredAt is the timestamp when the event was created
	OccurredAt time.Time `json:"occurred_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates an event of the given type with the payload
// serialized to JSON.
func NewEvent(eventType string, payload any) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		Payload:    payloadBytes,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// NewViewIntentEvent creates the event emitted when a learner opens a
// lesson.
func NewViewIntentEvent(courseID uuid.UUID, lessonID string) (*Event, error) {
	return NewEvent(EventTypeViewIntent, ViewIntentPayload{
		CourseID: courseID,
		LessonID: lessonID,
	})
}

// Handler defines an interface for components that can handle events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// Emitter defines an interface for components that can emit events.
// This allows API handlers to publish intents without direct knowledge
// of the scheduler.
type Emitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}
