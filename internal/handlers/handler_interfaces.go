package handlers

import (
	"context"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/models"
	"github.com/ternarybob/cavitas/internal/services/export"
	"github.com/ternarybob/cavitas/internal/services/jobs"
	"github.com/ternarybob/cavitas/internal/services/systemlogs"
	"github.com/ternarybob/cavitas/internal/services/validation"
)

// JobManager defines the job operations exposed over HTTP.
type JobManager interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*jobs.SubmitResult, error)
	AddManual(ctx context.Context, req jobs.ManualRequest) (*models.Job, error)
	List(ctx context.Context) ([]*jobs.JobInfo, error)
	Get(ctx context.Context, id string) (*jobs.JobInfo, error)
	Results(ctx context.Context, id string) (*export.Results, error)
	Acknowledge()
}

// EventHistory defines the interface for reading stored notifications.
type EventHistory interface {
	Recent(ctx context.Context, limit int) ([]*models.EventRecord, error)
}

// LogReader reads the application's own log files.
type LogReader interface {
	ListLogFiles() ([]systemlogs.LogFile, error)
	GetLogContent(name string, limit int, levels []string) ([]systemlogs.LogEntry, error)
}

// ConfigProvider exposes the running configuration.
type ConfigProvider interface {
	Sanitized() common.Config
	Sources() []string
}

// ParametersValidator checks a parameters file before its settings are reused.
type ParametersValidator interface {
	ValidateParameters(ctx context.Context, content string) validation.ValidationResult
}
