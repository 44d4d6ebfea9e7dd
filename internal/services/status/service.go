package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

// AppState represents the application state
type AppState string

const (
	StateStarting AppState = "starting" // no service check finished yet
	StateOnline   AppState = "online"
	StateOffline  AppState = "offline"
	StateWaiting  AppState = "waiting" // a job expired and the user has not acknowledged it
)

// GateReader reports whether polling is paused for an acknowledgement.
type GateReader interface {
	Waiting() bool
}

// Snapshot is the status returned to API clients
type Snapshot struct {
	State       AppState  `json:"state"`
	ServiceUp   bool      `json:"service_up"`
	Waiting     bool      `json:"waiting"`
	JobIDs      []string  `json:"job_ids"`
	ExpiredJob  string    `json:"expired_job,omitempty"`
	LastChanged time.Time `json:"last_changed"`
	Timestamp   time.Time `json:"timestamp"`
}

// Service tracks application status from published events
type Service struct {
	mu          sync.RWMutex
	serviceUp   bool
	checked     bool
	jobIDs      []string
	expiredJob  string
	lastChanged time.Time
	gate        GateReader
	logger      arbor.ILogger
}

// NewService creates a new StatusService
func NewService(gate GateReader, logger arbor.ILogger) *Service {
	return &Service{
		jobIDs:      []string{},
		lastChanged: time.Now(),
		gate:        gate,
		logger:      logger,
	}
}

// GetState returns the current application state (thread-safe)
func (s *Service) GetState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Service) stateLocked() AppState {
	switch {
	case s.gate != nil && s.gate.Waiting():
		return StateWaiting
	case !s.checked:
		return StateStarting
	case s.serviceUp:
		return StateOnline
	default:
		return StateOffline
	}
}

// GetStatus returns the full status
func (s *Service) GetStatus() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &Snapshot{
		State:       s.stateLocked(),
		ServiceUp:   s.serviceUp,
		JobIDs:      append([]string{}, s.jobIDs...),
		LastChanged: s.lastChanged,
		Timestamp:   time.Now(),
	}
	if s.gate != nil && s.gate.Waiting() {
		snapshot.Waiting = true
		snapshot.ExpiredJob = s.expiredJob
	}
	return snapshot
}

// SubscribeToEvents keeps the status current from poller and job events
func (s *Service) SubscribeToEvents(eventService interfaces.EventService) error {
	handlers := map[interfaces.EventType]interfaces.EventHandler{
		interfaces.EventServerStatus:    s.onServerStatus,
		interfaces.EventJobsListChanged: s.onJobsList,
		interfaces.EventJobExpired:      s.onJobExpired,
	}
	for eventType, handler := range handlers {
		if err := eventService.Subscribe(eventType, handler); err != nil {
			return err
		}
	}

	s.logger.Debug().Msg("StatusService subscribed to events")
	return nil
}

func (s *Service) onServerStatus(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(models.ServerStatusPayload)
	if !ok {
		return nil
	}

	s.mu.Lock()
	changed := !s.checked || s.serviceUp != payload.Up
	s.checked = true
	s.serviceUp = payload.Up
	if changed {
		s.lastChanged = event.Timestamp
	}
	s.mu.Unlock()

	if changed {
		s.logger.Info().Bool("service_up", payload.Up).Msg("Detection service status changed")
	}
	return nil
}

func (s *Service) onJobsList(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(models.JobsListPayload)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.jobIDs = append([]string{}, payload.IDs...)
	s.mu.Unlock()
	return nil
}

func (s *Service) onJobExpired(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(models.JobEventPayload)
	if !ok {
		return nil
	}

	s.mu.Lock()
	s.expiredJob = payload.JobID
	s.lastChanged = event.Timestamp
	s.mu.Unlock()
	return nil
}
