package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    JobStatus
		wantErr bool
	}{
		{"submitting", JobStatusSubmitting, false},
		{"queued", JobStatusQueued, false},
		{"running", JobStatusRunning, false},
		{"completed", JobStatusCompleted, false},
		{"failed", "", true},
		{"", "", true},
		{"Completed", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseJobStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJobStatus_IsPending(t *testing.T) {
	assert.True(t, JobStatusQueued.IsPending())
	assert.True(t, JobStatusRunning.IsPending())
	assert.False(t, JobStatusCompleted.IsPending())
	assert.False(t, JobStatusSubmitting.IsPending())
}

func TestJob_Validate(t *testing.T) {
	files := JobFiles{OutputDir: "/tmp/out", BaseName: "output"}

	t.Run("form job with settings", func(t *testing.T) {
		job := NewJob(files, DefaultSettings())
		job.ID = "abc"
		assert.NoError(t, job.Validate())
	})

	t.Run("form job without settings", func(t *testing.T) {
		job := NewJob(files, nil)
		assert.Error(t, job.Validate())
	})

	t.Run("manual job never carries settings", func(t *testing.T) {
		job := NewManualJob("abc", JobStatusQueued, files)
		assert.NoError(t, job.Validate())

		job.Settings = DefaultSettings()
		assert.Error(t, job.Validate())
	})

	t.Run("missing base name", func(t *testing.T) {
		job := NewManualJob("abc", JobStatusQueued, JobFiles{OutputDir: "/tmp/out"})
		assert.Error(t, job.Validate())
	})

	t.Run("unknown status", func(t *testing.T) {
		job := NewManualJob("abc", JobStatus("lost"), files)
		assert.Error(t, job.Validate())
	})
}

func TestJob_ArtifactPaths(t *testing.T) {
	files := JobFiles{OutputDir: "/data/out", BaseName: "run"}

	job := NewJob(files, DefaultSettings())
	job.ID = "20240101abc"
	base := filepath.Join("/data/out", "20240101abc")

	assert.Equal(t, []string{
		filepath.Join(base, "run.KVFinder.output.pdb"),
		filepath.Join(base, "run.KVFinder.results.toml"),
		filepath.Join(base, "KVFinder.log"),
		filepath.Join(base, "run_parameters.toml"),
	}, job.ArtifactPaths())

	manual := NewManualJob("20240101abc", JobStatusCompleted, files)
	assert.Len(t, manual.ArtifactPaths(), 3)
	assert.Empty(t, manual.ParametersPath())
}

func TestSettings_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultSettings().Validate())
	})

	t.Run("volume cutoff and removal distance both zero", func(t *testing.T) {
		s := DefaultSettings()
		s.Cutoffs.VolumeCutoff = 0
		s.Cutoffs.RemovalDistance = 0
		assert.Error(t, s.Validate())
	})

	t.Run("only one cutoff zero", func(t *testing.T) {
		s := DefaultSettings()
		s.Cutoffs.VolumeCutoff = 0
		assert.NoError(t, s.Validate())
	})

	t.Run("probe in out of range", func(t *testing.T) {
		s := DefaultSettings()
		s.Probes.ProbeIn = 7.5
		assert.Error(t, s.Validate())
	})

	t.Run("unknown resolution", func(t *testing.T) {
		s := DefaultSettings()
		s.Modes.ResolutionMode = "Ultra"
		assert.Error(t, s.Validate())
	})
}
