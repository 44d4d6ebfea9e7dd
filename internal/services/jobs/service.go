// -----------------------------------------------------------------------
// Job Service - submission, manual ids and job queries for the API
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
	"github.com/ternarybob/cavitas/internal/services/export"
	"github.com/ternarybob/cavitas/internal/storage/filesystem"
)

// NotAvailable is shown in place of the parameters file of manual jobs.
const NotAvailable = "Not available"

var (
	// ErrInvalidRequest wraps every validation failure of a request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrJobExists is returned when adding an id that is already tracked.
	ErrJobExists = errors.New("job already tracked")
)

// SubmitOutcome says what the service did with a submission.
type SubmitOutcome string

const (
	OutcomeQueued           SubmitOutcome = "queued"            // new job accepted
	OutcomeCompleted        SubmitOutcome = "completed"         // identical job already finished; results exported
	OutcomeAlreadySubmitted SubmitOutcome = "already_submitted" // identical job still pending on the service
)

// SubmitRequest describes a new detection job. Input and Ligand are file
// paths or names of structure objects.
type SubmitRequest struct {
	Input     string           `json:"input"`
	Ligand    string           `json:"ligand,omitempty"`
	OutputDir string           `json:"output_dir"`
	BaseName  string           `json:"base_name"`
	Settings  *models.Settings `json:"settings"`
}

// ManualRequest adds a job id obtained elsewhere.
type ManualRequest struct {
	ID        string `json:"id"`
	Input     string `json:"input,omitempty"`
	Ligand    string `json:"ligand,omitempty"`
	OutputDir string `json:"output_dir"`
	BaseName  string `json:"base_name"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Outcome     SubmitOutcome `json:"outcome"`
	Job         *models.Job   `json:"job"`
	ExportError string        `json:"export_error,omitempty"` // the poller retries the export
}

// JobInfo is a job as shown to the user.
type JobInfo struct {
	*models.Job
	ParametersFile string `json:"parameters_file"`
	ResultsFile    string `json:"results_file,omitempty"`
	Exported       bool   `json:"exported"`
}

// Acknowledger clears the poller's job-expired gate.
type Acknowledger interface {
	Clear()
}

// Service is the interactive layer's entry point to jobs.
type Service struct {
	store      interfaces.JobStore
	detection  interfaces.DetectionService
	exporter   interfaces.Exporter
	structures interfaces.StructureHost
	events     interfaces.EventService
	gate       Acknowledger
	logger     arbor.ILogger
}

// NewService creates a job service. structures may be nil.
func NewService(
	store interfaces.JobStore,
	detection interfaces.DetectionService,
	exporter interfaces.Exporter,
	structures interfaces.StructureHost,
	events interfaces.EventService,
	gate Acknowledger,
	logger arbor.ILogger,
) *Service {
	return &Service{
		store:      store,
		detection:  detection,
		exporter:   exporter,
		structures: structures,
		events:     events,
		gate:       gate,
		logger:     logger,
	}
}

func (r *SubmitRequest) validate() error {
	if r.Settings == nil {
		return fmt.Errorf("%w: settings are required", ErrInvalidRequest)
	}
	if err := r.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Input == "" {
		return fmt.Errorf("%w: input structure is required", ErrInvalidRequest)
	}
	if r.Settings.Modes.LigandMode && r.Ligand == "" {
		return fmt.Errorf("%w: ligand mode requires a ligand structure", ErrInvalidRequest)
	}
	if r.OutputDir == "" || r.BaseName == "" {
		return fmt.Errorf("%w: output directory and base name are required", ErrInvalidRequest)
	}
	return nil
}

// Submit sends a new job to the detection service and records it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	create := &models.CreateRequest{Settings: req.Settings}
	var err error
	if create.Files.PDB, err = s.readStructure(req.Input); err != nil {
		return nil, err
	}
	if req.Ligand != "" {
		if create.Files.PDBLigand, err = s.readStructure(req.Ligand); err != nil {
			return nil, err
		}
	}

	reply, err := s.detection.Submit(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("failed to submit job: %w", err)
	}

	job := models.NewJob(models.JobFiles{
		Input:     req.Input,
		Ligand:    req.Ligand,
		OutputDir: req.OutputDir,
		BaseName:  req.BaseName,
	}, req.Settings)
	job.ID = reply.ID
	job.Status = reply.Status
	job.Output = reply.Output

	logger := s.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status))

	switch {
	case !reply.Known:
		if err := s.store.Save(ctx, job); err != nil {
			return nil, err
		}
		logger.Msg("Job submitted")
		s.publish(ctx, interfaces.EventJobSubmitted, models.JobEventPayload{JobID: job.ID, Status: job.Status})
		s.publishList(ctx)
		return &SubmitResult{Outcome: OutcomeQueued, Job: job}, nil

	case job.Status == models.JobStatusCompleted:
		if err := s.store.Save(ctx, job); err != nil {
			return nil, err
		}
		result := &SubmitResult{Outcome: OutcomeCompleted, Job: job}
		if err := s.export(ctx, job); err != nil {
			result.ExportError = err.Error()
		} else {
			logger.Msg("Job already completed on the service, results exported")
			s.publish(ctx, interfaces.EventJobCompleted, models.JobEventPayload{JobID: job.ID, Status: job.Status})
		}
		s.publishList(ctx)
		return result, nil

	default:
		logger.Msg("Job already submitted")
		return &SubmitResult{Outcome: OutcomeAlreadySubmitted, Job: job}, nil
	}
}

// readStructure returns the PDB text of a file path or a structure object name.
func (s *Service) readStructure(ref string) (string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", fmt.Errorf("failed to read structure %s: %w", ref, err)
		}
		return string(data), nil
	}

	if s.structures == nil {
		return "", fmt.Errorf("%w: structure %q not found", ErrInvalidRequest, ref)
	}

	tmp, err := os.MkdirTemp("", "cavitas-structure-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	path := filepath.Join(tmp, ref+".pdb")
	if err := s.structures.Export(ref, path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AddManual starts tracking a job id that was not submitted from here.
func (s *Service) AddManual(ctx context.Context, req ManualRequest) (*models.Job, error) {
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" || req.OutputDir == "" || req.BaseName == "" {
		return nil, fmt.Errorf("%w: id, output directory and base name are required", ErrInvalidRequest)
	}

	if _, err := s.store.Load(ctx, req.ID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobExists, req.ID)
	} else if !errors.Is(err, filesystem.ErrJobNotFound) {
		return nil, err
	}

	result, err := s.detection.Fetch(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check job %s: %w", req.ID, err)
	}

	job := models.NewManualJob(req.ID, result.Status, models.JobFiles{
		Input:     structureName(req.Input),
		Ligand:    structureName(req.Ligand),
		OutputDir: req.OutputDir,
		BaseName:  req.BaseName,
	})
	job.Output = result.Output

	if err := s.store.Save(ctx, job); err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusCompleted {
		// a failed export leaves artifacts missing and the poller retries it
		_ = s.export(ctx, job)
	}

	s.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Job added manually")
	s.publishList(ctx)
	return job, nil
}

// export writes the results of a saved job. Failures are reported as
// job_error and left to the poller's missing-artifact check.
func (s *Service) export(ctx context.Context, job *models.Job) error {
	if err := s.exporter.Export(job); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Export failed, poller will retry")
		s.publish(ctx, interfaces.EventJobError, models.JobEventPayload{JobID: job.ID, Status: job.Status, Error: err.Error()})
		return err
	}
	return nil
}

// structureName reduces a path to its structure object name.
func structureName(ref string) string {
	if ref == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(ref), ".pdb")
}

// List returns every readable job, ordered by id. Unreadable records are skipped.
func (s *Service) List(ctx context.Context) ([]*JobInfo, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*JobInfo, 0, len(ids))
	for _, id := range ids {
		job, err := s.store.Load(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Skipping unreadable job record")
			continue
		}
		infos = append(infos, s.info(job))
	}
	return infos, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (*JobInfo, error) {
	job, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.info(job), nil
}

func (s *Service) info(job *models.Job) *JobInfo {
	info := &JobInfo{Job: job, ParametersFile: NotAvailable}
	if p := job.ParametersPath(); p != "" {
		info.ParametersFile = p
	}
	if job.Status == models.JobStatusCompleted {
		info.ResultsFile = job.ResultsPath()
		info.Exported = len(s.exporter.Missing(job)) == 0
	}
	return info
}

// Results loads the exported results of a completed job.
func (s *Service) Results(ctx context.Context, id string) (*export.Results, error) {
	job, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidRequest, id, job.Status)
	}
	return export.LoadResults(job.ResultsPath())
}

// Acknowledge lets the poller resume after a job-expired notification.
func (s *Service) Acknowledge() {
	s.gate.Clear()
	s.logger.Debug().Msg("Job expiry acknowledged")
}

func (s *Service) publishList(ctx context.Context) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list jobs")
		return
	}
	s.publish(ctx, interfaces.EventJobsListChanged, models.JobsListPayload{IDs: ids})
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
