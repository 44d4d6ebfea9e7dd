package interfaces

import (
	"context"

	"github.com/ternarybob/cavitas/internal/models"
)

// DetectionService is the remote cavity-detection job API.
type DetectionService interface {
	// Probe reports whether the service answers at all. It never fails.
	Probe(ctx context.Context) bool

	// Submit sends a new job to the service.
	Submit(ctx context.Context, req *models.CreateRequest) (*models.SubmitResult, error)

	// Fetch returns the current status and, once completed, the output of a job.
	Fetch(ctx context.Context, id string) (*models.FetchResult, error)
}
