package interfaces

import "time"

// ScheduledJobStatus represents the current status of a scheduled job
type ScheduledJobStatus struct {
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"`
	Description  string     `json:"description"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	Runs         int        `json:"runs"`
	IsRunning    bool       `json:"is_running"`
	LastError    string     `json:"last_error,omitempty"`
}

// SchedulerService manages cron-based maintenance jobs
type SchedulerService interface {
	// Start the scheduler
	Start() error

	// Stop the scheduler, waiting for running jobs
	Stop() error

	// IsRunning returns true if scheduler is active
	IsRunning() bool

	// RegisterJob registers a new job with the scheduler
	RegisterJob(name string, schedule string, description string, handler func() error) error

	// TriggerJob runs a registered job immediately
	TriggerJob(name string) error

	// GetJobStatus returns the status of a specific job
	GetJobStatus(name string) (*ScheduledJobStatus, error)

	// GetAllJobStatuses returns all job statuses
	GetAllJobStatuses() map[string]*ScheduledJobStatus
}
