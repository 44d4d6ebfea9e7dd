package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/models"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	return NewJobStore(filepath.Join(t.TempDir(), ".KVFinder-web"), arbor.NewLogger())
}

func formJob(id string, outDir string) *models.Job {
	job := models.NewJob(models.JobFiles{
		Input:     "/structures/1fmo.pdb",
		Ligand:    "/structures/adn.pdb",
		OutputDir: outDir,
		BaseName:  "output",
	}, models.DefaultSettings())
	job.ID = id
	job.Status = models.JobStatusQueued
	return job
}

func TestJobStore_ListIDsCreatesRoot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	info, err := os.Stat(store.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// second call on an existing root is fine
	_, err = store.ListIDs(ctx)
	require.NoError(t, err)
}

func TestJobStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := formJob("202401011200abc", "/results")
	require.NoError(t, store.Save(ctx, job))

	loaded, err := store.Load(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, loaded.ID)
	assert.Equal(t, job.Status, loaded.Status)
	assert.Equal(t, job.Files, loaded.Files)
	assert.Equal(t, job.Settings, loaded.Settings)
	assert.False(t, loaded.AddedManually)

	first, err := os.ReadFile(store.recordPath(job.ID))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(first), recordHeader))
	assert.Contains(t, string(first), "KVFinder-web job file")
	assert.NotContains(t, string(first), "id_added_manually")

	// saving what was loaded reproduces the record byte for byte
	require.NoError(t, store.Save(ctx, loaded))
	second, err := os.ReadFile(store.recordPath(job.ID))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestJobStore_ManualJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := models.NewManualJob("manual1", models.JobStatusCompleted, models.JobFiles{
		OutputDir: "/results",
		BaseName:  "output",
	})
	require.NoError(t, store.Save(ctx, job))

	data, err := os.ReadFile(store.recordPath(job.ID))
	require.NoError(t, err)
	assert.Contains(t, string(data), "id_added_manually = true")
	assert.NotContains(t, string(data), "[settings")

	loaded, err := store.Load(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, loaded.AddedManually)
	assert.Nil(t, loaded.Settings)
}

func TestJobStore_ListIDsSorted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Save(ctx, formJob(id, "/results")))
	}
	// stray files are not jobs
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "notes.txt"), []byte("x"), 0644))

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestJobStore_EraseIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, formJob("gone", "/results")))
	require.NoError(t, store.Erase(ctx, "gone"))
	require.NoError(t, store.Erase(ctx, "gone"))

	_, err := store.Load(ctx, "gone")
	assert.ErrorIs(t, err, ErrJobNotFound)

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJobStore_CorruptRecords(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not toml", "status = \n[[["},
		{"missing status", "[files]\noutput = '/r'\nbase_name = 'o'\n"},
		{"unknown status", "status = 'lost'\n[files]\noutput = '/r'\nbase_name = 'o'\nid_added_manually = true\n"},
		{"missing output", "status = 'queued'\nid_added_manually = true\n[files]\nbase_name = 'o'\n"},
		{"form job without settings", "status = 'queued'\n[files]\noutput = '/r'\nbase_name = 'o'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			dir := filepath.Join(store.Root(), "bad")
			require.NoError(t, os.MkdirAll(dir, 0755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, recordFileName), []byte(tt.content), 0644))

			_, err := store.Load(context.Background(), "bad")
			assert.ErrorIs(t, err, ErrCorruptRecord)
		})
	}

	t.Run("directory without record", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "empty"), 0755))

		_, err := store.Load(context.Background(), "empty")
		assert.ErrorIs(t, err, ErrCorruptRecord)
	})
}

func TestJobStore_SaveLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(running bool) {
			defer wg.Done()
			job := formJob("busy", "/results")
			if running {
				job.Status = models.JobStatusRunning
			}
			assert.NoError(t, store.Save(ctx, job))
		}(i%2 == 0)
	}
	wg.Wait()

	entries, err := os.ReadDir(filepath.Join(store.Root(), "busy"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, recordFileName, entries[0].Name())

	_, err = store.Load(ctx, "busy")
	assert.NoError(t, err)
}

func TestJobStore_RejectsPathIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "../escape")
	assert.Error(t, err)
	assert.Error(t, store.Erase(ctx, ""))
	assert.Error(t, store.Save(ctx, formJob("a/b", "/results")))
}

func TestJobStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.ListIDs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
