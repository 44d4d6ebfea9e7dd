package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

// EventStorage implements EventStorage for Badger
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.EventStorage = (*EventStorage)(nil)

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) *EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

// Append stores an event record keyed by its ID
func (s *EventStorage) Append(ctx context.Context, record *models.EventRecord) error {
	if record.ID == "" {
		return fmt.Errorf("event ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (s *EventStorage) Recent(ctx context.Context, limit int) ([]*models.EventRecord, error) {
	var records []models.EventRecord
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	result := make([]*models.EventRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// DeleteBefore removes records created before cutoff and returns how many were removed
func (s *EventStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := badgerhold.Where("CreatedAt").Lt(cutoff)

	count, err := s.db.Store().Count(&models.EventRecord{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired events: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.db.Store().DeleteMatching(&models.EventRecord{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete expired events: %w", err)
	}

	s.logger.Debug().Int("deleted", int(count)).Msg("Expired events deleted")
	return int(count), nil
}
