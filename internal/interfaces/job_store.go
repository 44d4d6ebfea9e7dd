package interfaces

import (
	"context"

	"github.com/ternarybob/cavitas/internal/models"
)

// JobStore persists job records keyed by job id.
// Load and Save of the same id are atomic with respect to each other.
type JobStore interface {
	ListIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (*models.Job, error)
	Save(ctx context.Context, job *models.Job) error
	Erase(ctx context.Context, id string) error
}
