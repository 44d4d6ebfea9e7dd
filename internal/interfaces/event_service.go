package interfaces

import (
	"context"
	"time"
)

// EventType represents different event types in the system
type EventType string

const (
	EventJobsListChanged EventType = "jobs_list_changed" // payload: models.JobsListPayload
	EventServerStatus    EventType = "server_status"     // payload: models.ServerStatusPayload
	EventJobExpired      EventType = "job_expired"       // payload: models.JobEventPayload; polling waits for Acknowledge
	EventJobSubmitted    EventType = "job_submitted"
	EventJobCompleted    EventType = "job_completed"
	EventJobError        EventType = "job_error"
)

// AllEventTypes lists every event type published by the application.
var AllEventTypes = []EventType{
	EventJobsListChanged,
	EventServerStatus,
	EventJobExpired,
	EventJobSubmitted,
	EventJobCompleted,
	EventJobError,
}

// Event represents a system event
type Event struct {
	ID        string
	Type      EventType
	Payload   interface{}
	Timestamp time.Time
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub notification channel between the
// background poller and the interactive layer.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler that receives every event in publish order
	SubscribeAll(handler EventHandler) error

	// Publish queues an event for all subscribers without waiting for them
	Publish(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
