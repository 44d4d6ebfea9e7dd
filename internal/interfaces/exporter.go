package interfaces

import "github.com/ternarybob/cavitas/internal/models"

// Exporter materializes a completed job's output as local files.
type Exporter interface {
	Export(job *models.Job) error

	// Missing lists the artifacts of job that are not on disk.
	Missing(job *models.Job) []string
}
