// -----------------------------------------------------------------------
// Job Store - one TOML record per job under the store root
// -----------------------------------------------------------------------

package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

const (
	recordFileName = "job.toml"
	recordTitle    = "KVFinder-web job file"
	recordHeader   = "# TOML configuration file for KVFinder-web job\n\n"
)

var (
	// ErrJobNotFound is returned by Load when no record exists for the id.
	ErrJobNotFound = errors.New("job record not found")
	// ErrCorruptRecord is returned by Load when a record cannot be decoded
	// or lacks a required field.
	ErrCorruptRecord = errors.New("corrupt job record")
)

type jobRecord struct {
	Title         string           `toml:"title"`
	Status        string           `toml:"status"`
	AddedManually bool             `toml:"id_added_manually,omitempty"`
	Files         recordFiles      `toml:"files"`
	Settings      *models.Settings `toml:"settings,omitempty"`
}

type recordFiles struct {
	PDB      string `toml:"pdb,omitempty"`
	Ligand   string `toml:"ligand,omitempty"`
	Output   string `toml:"output"`
	BaseName string `toml:"base_name"`
}

// JobStore keeps job records as <root>/<id>/job.toml.
type JobStore struct {
	root   string
	logger arbor.ILogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ interfaces.JobStore = (*JobStore)(nil)

// NewJobStore creates a store rooted at dir. The directory is created lazily.
func NewJobStore(dir string, logger arbor.ILogger) *JobStore {
	return &JobStore{
		root:   dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Root returns the store directory.
func (s *JobStore) Root() string {
	return s.root
}

func (s *JobStore) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *JobStore) recordPath(id string) string {
	return filepath.Join(s.root, id, recordFileName)
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("invalid job id %q", id)
	}
	return nil
}

// ListIDs returns the ids of all job directories, sorted. The root is
// created when absent.
func (s *JobStore) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job store %s: %w", s.root, err)
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list job store %s: %w", s.root, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads the record for id.
func (s *JobStore) Load(ctx context.Context, id string) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(id); err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read job %s: %w", id, err)
		}
		if _, statErr := os.Stat(filepath.Join(s.root, id)); statErr == nil {
			return nil, fmt.Errorf("job %s: %s missing: %w", id, recordFileName, ErrCorruptRecord)
		}
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}

	return decodeRecord(id, data)
}

func decodeRecord(id string, data []byte) (*models.Job, error) {
	var record jobRecord
	if err := toml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("job %s: %v: %w", id, err, ErrCorruptRecord)
	}

	status, err := models.ParseJobStatus(record.Status)
	if err != nil {
		return nil, fmt.Errorf("job %s: %v: %w", id, err, ErrCorruptRecord)
	}

	job := &models.Job{
		ID:            id,
		Status:        status,
		AddedManually: record.AddedManually,
		Files: models.JobFiles{
			Input:     record.Files.PDB,
			Ligand:    record.Files.Ligand,
			OutputDir: record.Files.Output,
			BaseName:  record.Files.BaseName,
		},
	}
	if !record.AddedManually {
		job.Settings = record.Settings
	}

	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %v: %w", id, err, ErrCorruptRecord)
	}
	return job, nil
}

// Save writes the record for job.ID. The record file is replaced by rename
// so it never holds a partial write.
func (s *JobStore) Save(ctx context.Context, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(job.ID); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("refusing to save job %s: %w", job.ID, err)
	}

	data, err := encodeRecord(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	unlock := s.lock(job.ID)
	defer unlock()

	dir := filepath.Join(s.root, job.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create job directory %s: %w", dir, err)
	}
	if err := common.WriteFileAtomic(s.recordPath(job.ID), data); err != nil {
		return fmt.Errorf("failed to write job %s: %w", job.ID, err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Job record saved")
	return nil
}

func encodeRecord(job *models.Job) ([]byte, error) {
	record := jobRecord{
		Title:         recordTitle,
		Status:        string(job.Status),
		AddedManually: job.AddedManually,
		Files: recordFiles{
			PDB:      job.Files.Input,
			Ligand:   job.Files.Ligand,
			Output:   job.Files.OutputDir,
			BaseName: job.Files.BaseName,
		},
		Settings: job.Settings,
	}

	var buf bytes.Buffer
	buf.WriteString(recordHeader)
	if err := toml.NewEncoder(&buf).Encode(record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Erase removes the job directory. Erasing an absent id is not an error.
func (s *JobStore) Erase(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(id); err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return fmt.Errorf("failed to erase job %s: %w", id, err)
	}

	s.logger.Debug().Str("job_id", id).Msg("Job record erased")
	return nil
}
