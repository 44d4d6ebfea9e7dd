package poller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
	"github.com/ternarybob/cavitas/internal/services/events"
	"github.com/ternarybob/cavitas/internal/services/export"
	"github.com/ternarybob/cavitas/internal/services/kvfinder"
	"github.com/ternarybob/cavitas/internal/storage/filesystem"
)

// fakeService is a scripted detection service.
type fakeService struct {
	mu      sync.Mutex
	probes  []bool // consumed in order; the last value repeats
	fetches map[string]func() (*models.FetchResult, error)
	calls   []string
	probed  int
}

func newFakeService() *fakeService {
	return &fakeService{probes: []bool{true}, fetches: map[string]func() (*models.FetchResult, error){}}
}

func (f *fakeService) Probe(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed++
	up := f.probes[0]
	if len(f.probes) > 1 {
		f.probes = f.probes[1:]
	}
	return up
}

func (f *fakeService) Submit(ctx context.Context, req *models.CreateRequest) (*models.SubmitResult, error) {
	panic("poller never submits")
}

func (f *fakeService) Fetch(ctx context.Context, id string) (*models.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	fn := f.fetches[id]
	f.mu.Unlock()
	if fn == nil {
		return nil, &kvfinder.Error{Kind: kvfinder.KindNotFound, Op: "fetch", Message: id}
	}
	return fn()
}

func (f *fakeService) on(id string, fn func() (*models.FetchResult, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[id] = fn
}

func (f *fakeService) fetchCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) remoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls) + f.probed
}

func status(s models.JobStatus) func() (*models.FetchResult, error) {
	return func() (*models.FetchResult, error) {
		return &models.FetchResult{Status: s}, nil
	}
}

func completed() (*models.FetchResult, error) {
	return &models.FetchResult{
		Status: models.JobStatusCompleted,
		Output: &models.JobOutput{PdbKV: "HETATM\n", Report: "[RESULTS.VOLUME]\nKAA = 1.0\n", Log: "ok"},
	}, nil
}

func failWith(kind kvfinder.ErrorKind) func() (*models.FetchResult, error) {
	return func() (*models.FetchResult, error) {
		return nil, &kvfinder.Error{Kind: kind, Op: "fetch", Message: kind.String()}
	}
}

// eventLog records published events in order.
type eventLog struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (l *eventLog) handle(ctx context.Context, event interfaces.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) ofType(t interfaces.EventType) []interfaces.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []interfaces.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	poller   *Poller
	service  *fakeService
	store    *filesystem.JobStore
	exporter *export.Exporter
	events   *events.Service
	log      *eventLog
	outDir   string
}

func testConfig() Config {
	return Config{
		RestartChecks:   5 * time.Millisecond,
		ServerDown:      5 * time.Millisecond,
		NoJobs:          5 * time.Millisecond,
		BetweenJobs:     time.Millisecond,
		WaitStatus:      5 * time.Millisecond,
		RevalidateEvery: 500,
		RequestTimeout:  time.Second,
	}
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()
	logger := arbor.NewLogger()

	h := &harness{
		service:  newFakeService(),
		store:    filesystem.NewJobStore(filepath.Join(t.TempDir(), "jobs"), logger),
		exporter: export.NewExporter(logger),
		events:   events.NewService(logger, 1024),
		log:      &eventLog{},
		outDir:   t.TempDir(),
	}
	require.NoError(t, h.events.SubscribeAll(h.log.handle))
	t.Cleanup(func() { h.events.Close() })

	h.poller = NewPoller(h.store, h.service, h.exporter, h.events, NewGate(), config, logger)
	return h
}

func (h *harness) addJob(t *testing.T, id string, s models.JobStatus) *models.Job {
	t.Helper()
	job := models.NewJob(models.JobFiles{
		Input:     "/structures/1fmo.pdb",
		OutputDir: h.outDir,
		BaseName:  "output",
	}, models.DefaultSettings())
	job.ID = id
	job.Status = s
	require.NoError(t, h.store.Save(context.Background(), job))
	return job
}

func (h *harness) run(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.poller.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("poller did not stop")
		}
	})
	return cancel
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, h.events.Close())
}

func TestPoller_PassFetchesQueuedAndIncompleteCompleted(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.addJob(t, "A", models.JobStatusQueued)
	b := h.addJob(t, "B", models.JobStatusCompleted)
	h.service.on("A", status(models.JobStatusRunning))
	h.service.on("B", completed)

	h.poller.serviceUp.Store(true)
	outcome := h.poller.checkJobs(context.Background(), []string{"A", "B"})

	assert.Equal(t, passComplete, outcome)
	assert.Equal(t, []string{"A", "B"}, h.service.fetchCalls())
	assert.Empty(t, h.exporter.Missing(b), "B's artifacts exist after the pass")

	loaded, err := h.store.Load(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, loaded.Status)

	_, err = os.Stat(filepath.Join(h.outDir, "A"))
	assert.True(t, os.IsNotExist(err), "running job is not exported")
}

func TestPoller_QueuedJobCompletesAndExports(t *testing.T) {
	h := newHarness(t, testConfig())
	job := h.addJob(t, "A", models.JobStatusQueued)
	h.service.on("A", completed)

	h.poller.serviceUp.Store(true)
	assert.Equal(t, passComplete, h.poller.checkJobs(context.Background(), []string{"A"}))

	loaded, err := h.store.Load(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Status)
	assert.True(t, h.exporter.Complete(job))

	h.flush(t)
	completedEvents := h.log.ofType(interfaces.EventJobCompleted)
	require.Len(t, completedEvents, 1)
	assert.Equal(t, "A", completedEvents[0].Payload.(models.JobEventPayload).JobID)
}

func TestPoller_NotFoundErasesRecordAndWaitsForAcknowledge(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addJob(t, "gone", models.JobStatusQueued)
	h.service.on("gone", failWith(kvfinder.KindNotFound))

	h.run(t)

	require.Eventually(t, func() bool {
		_, err := h.store.Load(context.Background(), "gone")
		return errors.Is(err, filesystem.ErrJobNotFound) && h.poller.Gate().Waiting()
	}, time.Second, time.Millisecond)

	// gated: no remote calls at all
	calls := h.service.remoteCalls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, h.service.remoteCalls())

	// acknowledge and give the poller something new to check
	h.addJob(t, "next", models.JobStatusQueued)
	h.service.on("next", status(models.JobStatusRunning))
	h.poller.Gate().Clear()

	require.Eventually(t, func() bool {
		for _, id := range h.service.fetchCalls() {
			if id == "next" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	h.flush(t)

	expired := h.log.ofType(interfaces.EventJobExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "gone", expired[0].Payload.(models.JobEventPayload).JobID)

	lists := h.log.ofType(interfaces.EventJobsListChanged)
	require.NotEmpty(t, lists)
	assert.Equal(t, []string{"next"}, lists[len(lists)-1].Payload.(models.JobsListPayload).IDs)
}

func TestPoller_ProbeFailuresThenRecovery(t *testing.T) {
	h := newHarness(t, testConfig())
	h.service.probes = []bool{false, false, false, true}

	h.run(t)

	require.Eventually(t, func() bool {
		return len(h.log.ofType(interfaces.EventServerStatus)) >= 4
	}, time.Second, time.Millisecond)

	statuses := h.log.ofType(interfaces.EventServerStatus)
	var got []bool
	for _, e := range statuses[:4] {
		got = append(got, e.Payload.(models.ServerStatusPayload).Up)
	}
	assert.Equal(t, []bool{false, false, false, true}, got)
	assert.Eventually(t, h.poller.ServiceUp, time.Second, time.Millisecond)
}

func TestPoller_TransportErrorEndsPass(t *testing.T) {
	for _, kind := range []kvfinder.ErrorKind{kvfinder.KindConnectionRefused, kvfinder.KindTimeout, kvfinder.KindServiceError} {
		t.Run(kind.String(), func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.addJob(t, "A", models.JobStatusQueued)
			h.addJob(t, "B", models.JobStatusQueued)
			h.service.on("A", failWith(kind))
			h.service.on("B", status(models.JobStatusRunning))

			h.poller.serviceUp.Store(true)
			assert.Equal(t, passServiceDown, h.poller.checkJobs(context.Background(), []string{"A", "B"}))
			assert.Equal(t, []string{"A"}, h.service.fetchCalls())
			assert.False(t, h.poller.ServiceUp())

			loaded, err := h.store.Load(context.Background(), "A")
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusQueued, loaded.Status, "status untouched")

			h.flush(t)
			statuses := h.log.ofType(interfaces.EventServerStatus)
			require.Len(t, statuses, 1)
			assert.False(t, statuses[0].Payload.(models.ServerStatusPayload).Up)
		})
	}
}

func TestPoller_JobErrorsDoNotStopPass(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addJob(t, "A", models.JobStatusQueued)
	h.addJob(t, "C", models.JobStatusQueued)
	h.service.on("A", failWith(kvfinder.KindContentError))
	h.service.on("C", status(models.JobStatusRunning))

	// a record that cannot be decoded
	badDir := filepath.Join(h.store.Root(), "B")
	require.NoError(t, os.MkdirAll(badDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "job.toml"), []byte("status = 'queued'\n"), 0644))

	h.poller.serviceUp.Store(true)
	assert.Equal(t, passComplete, h.poller.checkJobs(context.Background(), []string{"A", "B", "C"}))
	assert.Equal(t, []string{"A", "C"}, h.service.fetchCalls())
	assert.True(t, h.poller.ServiceUp())

	h.flush(t)
	jobErrors := h.log.ofType(interfaces.EventJobError)
	require.Len(t, jobErrors, 2)
	assert.Equal(t, "A", jobErrors[0].Payload.(models.JobEventPayload).JobID)
	assert.Equal(t, "B", jobErrors[1].Payload.(models.JobEventPayload).JobID)
}

func TestPoller_ExportFailureRetriedNextPass(t *testing.T) {
	h := newHarness(t, testConfig())
	job := h.addJob(t, "A", models.JobStatusQueued)

	h.service.on("A", func() (*models.FetchResult, error) {
		return &models.FetchResult{
			Status: models.JobStatusCompleted,
			Output: &models.JobOutput{PdbKV: "HETATM\n", Report: "[RESULTS.VOLUME\nKAA = 1.\n", Log: "ok"},
		}, nil
	})

	h.poller.serviceUp.Store(true)
	ctx := context.Background()
	h.poller.checkJobs(ctx, []string{"A"})

	loaded, err := h.store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, loaded.Status, "status is kept although export failed")
	assert.Len(t, h.exporter.Missing(job), 3)

	h.service.on("A", completed)
	h.poller.checkJobs(ctx, []string{"A"})

	assert.Equal(t, []string{"A", "A"}, h.service.fetchCalls())
	assert.Empty(t, h.exporter.Missing(job))
}

func TestPoller_SubmittingJobsAreSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addJob(t, "S", models.JobStatusSubmitting)

	h.poller.serviceUp.Store(true)
	assert.Equal(t, passComplete, h.poller.checkJobs(context.Background(), []string{"S"}))
	assert.Empty(t, h.service.fetchCalls())
}

func TestPoller_RevalidationCounter(t *testing.T) {
	config := testConfig()
	config.RevalidateEvery = 2
	h := newHarness(t, config)

	job := h.addJob(t, "done", models.JobStatusCompleted)
	result, _ := completed()
	job.Output = result.Output
	require.NoError(t, h.exporter.Export(job))
	h.service.on("done", completed)

	h.poller.serviceUp.Store(true)
	ctx := context.Background()

	h.poller.checkJobs(ctx, []string{"done"})
	h.poller.checkJobs(ctx, []string{"done"})
	assert.Empty(t, h.service.fetchCalls(), "exported job is skipped while the counter is below the interval")
	assert.Equal(t, 2, h.poller.counter)

	h.poller.checkJobs(ctx, []string{"done"})
	assert.Equal(t, []string{"done"}, h.service.fetchCalls())
	assert.Equal(t, 1, h.poller.counter, "reset by the forced fetch, then counted for this pass")

	h.poller.checkJobs(ctx, []string{"done"})
	assert.Len(t, h.service.fetchCalls(), 1)
}

func TestPoller_CounterOnlyAdvancesOnSkippedPasses(t *testing.T) {
	h := newHarness(t, testConfig())
	h.addJob(t, "A", models.JobStatusQueued)
	h.service.on("A", status(models.JobStatusRunning))

	h.poller.serviceUp.Store(true)
	h.poller.checkJobs(context.Background(), []string{"A"})
	assert.Zero(t, h.poller.counter)
}

func TestPoller_StopsOnCancel(t *testing.T) {
	config := testConfig()
	config.ServerDown = time.Hour
	h := newHarness(t, config)
	h.service.probes = []bool{false}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.poller.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.log.ofType(interfaces.EventServerStatus)) >= 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGate(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Waiting())
	g.Set()
	assert.True(t, g.Waiting())
	g.Clear()
	g.Clear()
	assert.False(t, g.Waiting())
}
