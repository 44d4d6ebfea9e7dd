package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

// HistoryRecorder persists every published event so a reconnecting client
// can catch up on notifications it missed.
type HistoryRecorder struct {
	storage interfaces.EventStorage
	logger  arbor.ILogger
}

// NewHistoryRecorder creates a recorder writing to storage.
func NewHistoryRecorder(storage interfaces.EventStorage, logger arbor.ILogger) *HistoryRecorder {
	return &HistoryRecorder{storage: storage, logger: logger}
}

// Attach subscribes the recorder to all events.
func (r *HistoryRecorder) Attach(eventService interfaces.EventService) error {
	return eventService.SubscribeAll(r.Handle)
}

// Handle stores one event.
func (r *HistoryRecorder) Handle(ctx context.Context, event interfaces.Event) error {
	record, err := ToRecord(event)
	if err != nil {
		return err
	}
	if err := r.storage.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to record event %s: %w", event.ID, err)
	}
	return nil
}

// Recent returns up to limit stored events, newest first.
func (r *HistoryRecorder) Recent(ctx context.Context, limit int) ([]*models.EventRecord, error) {
	return r.storage.Recent(ctx, limit)
}

// Prune deletes events older than retention.
func (r *HistoryRecorder) Prune(ctx context.Context, retention time.Duration) error {
	deleted, err := r.storage.DeleteBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return fmt.Errorf("failed to prune event history: %w", err)
	}
	if deleted > 0 {
		r.logger.Info().Int("deleted", deleted).Str("retention", retention.String()).Msg("Event history pruned")
	}
	return nil
}

// ToRecord converts an event to its stored form.
func ToRecord(event interfaces.Event) (*models.EventRecord, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of event %s: %w", event.ID, err)
	}
	return &models.EventRecord{
		ID:        event.ID,
		Type:      string(event.Type),
		Payload:   payload,
		CreatedAt: event.Timestamp,
	}, nil
}
