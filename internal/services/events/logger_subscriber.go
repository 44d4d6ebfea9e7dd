package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type)).
			Str("event_id", event.ID)

		switch payload := event.Payload.(type) {
		case models.JobEventPayload:
			logEvent = logEvent.Str("job_id", payload.JobID)
			if payload.Status != "" {
				logEvent = logEvent.Str("status", string(payload.Status))
			}
			if payload.Error != "" {
				logEvent = logEvent.Str("error", payload.Error)
			}
		case models.ServerStatusPayload:
			logEvent = logEvent.Bool("up", payload.Up)
		case models.JobsListPayload:
			logEvent = logEvent.Int("jobs", len(payload.IDs))
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to every event
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	if err := eventService.SubscribeAll(NewLoggerSubscriber(logger)); err != nil {
		return err
	}
	logger.Debug().
		Int("event_type_count", len(interfaces.AllEventTypes)).
		Msg("Logger subscribed to all event types")
	return nil
}
