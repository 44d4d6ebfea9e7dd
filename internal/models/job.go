// -----------------------------------------------------------------------
// Detection Job - locally tracked cavity-detection request
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"path/filepath"
)

// JobStatus is the lifecycle state of a detection job.
type JobStatus string

const (
	JobStatusSubmitting JobStatus = "submitting" // built locally, not yet accepted by the service
	JobStatusQueued     JobStatus = "queued"
	JobStatusRunning    JobStatus = "running"
	JobStatusCompleted  JobStatus = "completed"
)

// ParseJobStatus converts a wire/record value into a JobStatus.
// Unknown values are rejected so callers never carry an unchecked status.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusSubmitting, JobStatusQueued, JobStatusRunning, JobStatusCompleted:
		return JobStatus(s), nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// IsPending reports whether the service is still working on the job.
func (s JobStatus) IsPending() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Artifact file names written by export, relative to the job output directory.
const (
	LogFileName          = "KVFinder.log"
	cavityFileSuffix     = ".KVFinder.output.pdb"
	resultsFileSuffix    = ".KVFinder.results.toml"
	parametersFileSuffix = "_parameters.toml"
)

// JobFiles holds the local file references of a job.
type JobFiles struct {
	Input     string `json:"pdb,omitempty"`    // input structure path
	Ligand    string `json:"ligand,omitempty"` // ligand structure path
	OutputDir string `json:"output"`
	BaseName  string `json:"base_name"`
}

// JobOutput is the result bundle returned by the service once a job completes.
type JobOutput struct {
	PdbKV  string `json:"pdb_kv"` // cavity geometry
	Report string `json:"report"` // TOML report
	Log    string `json:"log"`
}

// Job is one detection request tracked locally.
//
// Settings is nil exactly when the job was added manually by id: such jobs
// have no local parameter provenance. Output is never persisted in the job
// record; it only lives in memory between a fetch and an export.
type Job struct {
	ID            string     `json:"id"`
	Status        JobStatus  `json:"status"`
	AddedManually bool       `json:"id_added_manually,omitempty"`
	Files         JobFiles   `json:"files"`
	Settings      *Settings  `json:"settings,omitempty"`
	Output        *JobOutput `json:"-"`
}

// NewJob creates a form-submitted job in the submitting state.
func NewJob(files JobFiles, settings *Settings) *Job {
	return &Job{
		Status:   JobStatusSubmitting,
		Files:    files,
		Settings: settings,
	}
}

// NewManualJob creates a job for an id the user typed in.
func NewManualJob(id string, status JobStatus, files JobFiles) *Job {
	return &Job{
		ID:            id,
		Status:        status,
		AddedManually: true,
		Files:         files,
	}
}

// Validate checks the record-level invariants of a job.
func (j *Job) Validate() error {
	if _, err := ParseJobStatus(string(j.Status)); err != nil {
		return err
	}
	if j.Files.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if j.Files.BaseName == "" {
		return fmt.Errorf("base name is required")
	}
	if j.AddedManually && j.Settings != nil {
		return fmt.Errorf("manually added job %s must not carry settings", j.ID)
	}
	if !j.AddedManually && j.Settings == nil {
		return fmt.Errorf("job %s has no settings", j.ID)
	}
	return nil
}

// ResultDir is the directory export writes into: output_directory/id.
func (j *Job) ResultDir() string {
	return filepath.Join(j.Files.OutputDir, j.ID)
}

// CavityPath is the exported cavity geometry file.
func (j *Job) CavityPath() string {
	return filepath.Join(j.ResultDir(), j.Files.BaseName+cavityFileSuffix)
}

// ResultsPath is the exported structured results file.
func (j *Job) ResultsPath() string {
	return filepath.Join(j.ResultDir(), j.Files.BaseName+resultsFileSuffix)
}

// LogPath is the exported log file.
func (j *Job) LogPath() string {
	return filepath.Join(j.ResultDir(), LogFileName)
}

// ParametersPath is the exported parameters file. Empty for manual jobs.
func (j *Job) ParametersPath() string {
	if j.AddedManually {
		return ""
	}
	return filepath.Join(j.ResultDir(), j.Files.BaseName+parametersFileSuffix)
}

// ArtifactPaths lists every file an export of this job produces.
func (j *Job) ArtifactPaths() []string {
	paths := []string{j.CavityPath(), j.ResultsPath(), j.LogPath()}
	if p := j.ParametersPath(); p != "" {
		paths = append(paths, p)
	}
	return paths
}
