package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/cavitas/internal/models"
)

// EventStorage keeps a history of published notifications.
type EventStorage interface {
	Append(ctx context.Context, record *models.EventRecord) error
	Recent(ctx context.Context, limit int) ([]*models.EventRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
