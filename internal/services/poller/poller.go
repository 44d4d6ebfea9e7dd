// -----------------------------------------------------------------------
// Background Poller - reconciles local job records with the service
// -----------------------------------------------------------------------

package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
	"github.com/ternarybob/cavitas/internal/services/kvfinder"
	"github.com/ternarybob/cavitas/internal/storage/filesystem"
)

// Config holds the poller timers.
type Config struct {
	RestartChecks   time.Duration // pause after a completed pass
	ServerDown      time.Duration // pause between failed probes
	NoJobs          time.Duration // pause after a successful probe
	BetweenJobs     time.Duration // pause between two jobs of one pass
	WaitStatus      time.Duration // gate re-check interval
	RevalidateEvery int           // passes between forced fetches of exported jobs
	RequestTimeout  time.Duration // bound on one remote call or store update
}

// DefaultConfig returns the standard timers.
func DefaultConfig() Config {
	return Config{
		RestartChecks:   5 * time.Second,
		ServerDown:      60 * time.Second,
		NoJobs:          5 * time.Second,
		BetweenJobs:     2 * time.Second,
		WaitStatus:      5 * time.Second,
		RevalidateEvery: 500,
		RequestTimeout:  30 * time.Second,
	}
}

// ConfigFromCommon builds poller timers from the application config.
func ConfigFromCommon(cfg *common.Config) Config {
	def := DefaultConfig()
	return Config{
		RestartChecks:   common.Duration(cfg.Poller.RestartChecks, def.RestartChecks),
		ServerDown:      common.Duration(cfg.Poller.ServerDown, def.ServerDown),
		NoJobs:          common.Duration(cfg.Poller.NoJobs, def.NoJobs),
		BetweenJobs:     common.Duration(cfg.Poller.BetweenJobs, def.BetweenJobs),
		WaitStatus:      common.Duration(cfg.Poller.WaitStatus, def.WaitStatus),
		RevalidateEvery: cfg.Poller.RevalidateEvery,
		RequestTimeout:  cfg.ServiceTimeout(),
	}
}

// passOutcome is how a Check-Jobs pass ended.
type passOutcome int

const (
	passComplete passOutcome = iota
	passServiceDown
	passJobExpired
	passCancelled
)

// jobOutcome is the result of checking one id.
type jobOutcome int

const (
	jobContinue jobOutcome = iota
	jobServiceDown
	jobExpired
)

// Poller is the single background loop that polls the detection service.
// Only one Poller may run per job store.
type Poller struct {
	store    interfaces.JobStore
	service  interfaces.DetectionService
	exporter interfaces.Exporter
	events   interfaces.EventService
	gate     *Gate
	config   Config
	logger   arbor.ILogger

	serviceUp atomic.Bool
	counter   int // passes with a skipped completed job since the last forced fetch
}

// NewPoller creates a poller. The service is assumed down until the first probe.
func NewPoller(
	store interfaces.JobStore,
	service interfaces.DetectionService,
	exporter interfaces.Exporter,
	events interfaces.EventService,
	gate *Gate,
	config Config,
	logger arbor.ILogger,
) *Poller {
	if config.RevalidateEvery <= 0 {
		config.RevalidateEvery = DefaultConfig().RevalidateEvery
	}
	return &Poller{
		store:    store,
		service:  service,
		exporter: exporter,
		events:   events,
		gate:     gate,
		config:   config,
		logger:   logger,
	}
}

// ServiceUp reports whether the service answered the last time it was contacted.
func (p *Poller) ServiceUp() bool {
	return p.serviceUp.Load()
}

// Gate returns the acknowledgement gate.
func (p *Poller) Gate() *Gate {
	return p.gate
}

// Run loops until ctx is cancelled. Cancellation is observed at the top of
// each iteration and during waits; a job update in progress always finishes.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Int("revalidate_every", p.config.RevalidateEvery).
		Str("between_jobs", p.config.BetweenJobs.String()).
		Msg("Poller started")

	gated := false
	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info().Msg("Poller stopped")
			return err
		}

		// Idle-wait
		if p.gate.Waiting() {
			if !gated {
				p.logger.Info().Msg("Poller waiting for job expiry acknowledgement")
				gated = true
			}
			p.sleep(ctx, p.config.WaitStatus)
			continue
		}
		if gated {
			p.logger.Info().Msg("Job expiry acknowledged, polling resumed")
			gated = false
		}

		// Discover
		ids, err := p.discover(ctx)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to list job store")
			p.sleep(ctx, p.config.RestartChecks)
			continue
		}

		if !p.ServiceUp() || len(ids) == 0 {
			p.serviceCheck(ctx)
			continue
		}

		switch p.checkJobs(ctx, ids) {
		case passComplete:
			p.sleep(ctx, p.config.RestartChecks)
		case passServiceDown, passJobExpired, passCancelled:
			// next iteration probes, idles or stops
		}
	}
}

func (p *Poller) discover(ctx context.Context) ([]string, error) {
	ids, err := p.store.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	p.publish(ctx, interfaces.EventJobsListChanged, models.JobsListPayload{IDs: ids})
	return ids, nil
}

// serviceCheck probes until the service answers, then idles once.
func (p *Poller) serviceCheck(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		reqCtx, cancel := p.requestContext(ctx)
		up := p.service.Probe(reqCtx)
		cancel()

		if up {
			if !p.serviceUp.Load() {
				p.logger.Info().Msg("Detection service is up")
			}
			p.serviceUp.Store(true)
			p.publish(ctx, interfaces.EventServerStatus, models.ServerStatusPayload{Up: true})
			p.sleep(ctx, p.config.NoJobs)
			return
		}

		if p.serviceUp.Load() {
			p.logger.Warn().Msg("Detection service is down")
		}
		p.serviceUp.Store(false)
		p.publish(ctx, interfaces.EventServerStatus, models.ServerStatusPayload{Up: false})
		if !p.sleep(ctx, p.config.ServerDown) {
			return
		}
	}
}

// checkJobs runs one pass over ids.
func (p *Poller) checkJobs(ctx context.Context, ids []string) passOutcome {
	skipped := false

	for i, id := range ids {
		if i > 0 && !p.sleep(ctx, p.config.BetweenJobs) {
			return passCancelled
		}

		switch p.checkJob(ctx, id, &skipped) {
		case jobServiceDown:
			return passServiceDown
		case jobExpired:
			return passJobExpired
		}
	}

	if skipped {
		p.counter++
	}
	return passComplete
}

func (p *Poller) checkJob(ctx context.Context, id string, skipped *bool) jobOutcome {
	job, err := p.store.Load(context.WithoutCancel(ctx), id)
	if err != nil {
		if errors.Is(err, filesystem.ErrJobNotFound) {
			return jobContinue
		}
		p.logger.Error().Err(err).Str("job_id", id).Msg("Failed to load job record")
		p.publish(ctx, interfaces.EventJobError, models.JobEventPayload{JobID: id, Error: err.Error()})
		return jobContinue
	}

	switch job.Status {
	case models.JobStatusQueued, models.JobStatusRunning:
		return p.refresh(ctx, job)

	case models.JobStatusCompleted:
		if missing := p.exporter.Missing(job); len(missing) > 0 {
			p.logger.Info().Str("job_id", id).Strs("missing", missing).Msg("Exported results incomplete, fetching again")
			return p.refresh(ctx, job)
		}
		*skipped = true
		if p.counter >= p.config.RevalidateEvery {
			p.counter = 0
			p.logger.Debug().Str("job_id", id).Msg("Revalidating completed job")
			return p.refresh(ctx, job)
		}
		return jobContinue

	case models.JobStatusSubmitting:
		return jobContinue
	}

	return jobContinue
}

// refresh fetches job, persists a changed status and exports completed output.
func (p *Poller) refresh(ctx context.Context, job *models.Job) jobOutcome {
	reqCtx, cancel := p.requestContext(ctx)
	defer cancel()

	result, err := p.service.Fetch(reqCtx, job.ID)
	if err != nil {
		return p.fetchFailed(ctx, job, err)
	}

	previous := job.Status
	job.Status = result.Status
	job.Output = result.Output

	if job.Status != previous {
		if err := p.store.Save(reqCtx, job); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save job record")
			p.publish(ctx, interfaces.EventJobError, models.JobEventPayload{JobID: job.ID, Status: job.Status, Error: err.Error()})
			return jobContinue
		}
		p.logger.Info().
			Str("job_id", job.ID).
			Str("from", string(previous)).
			Str("to", string(job.Status)).
			Msg("Job status changed")
	}

	if job.Status != models.JobStatusCompleted {
		return jobContinue
	}

	if err := p.exporter.Export(job); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to export job results")
		p.publish(ctx, interfaces.EventJobError, models.JobEventPayload{JobID: job.ID, Status: job.Status, Error: err.Error()})
		return jobContinue
	}
	if previous != models.JobStatusCompleted {
		p.publish(ctx, interfaces.EventJobCompleted, models.JobEventPayload{JobID: job.ID, Status: job.Status})
	}
	return jobContinue
}

func (p *Poller) fetchFailed(ctx context.Context, job *models.Job, err error) jobOutcome {
	kind := kvfinder.KindOf(err)

	switch {
	case kind == kvfinder.KindNotFound:
		p.logger.Warn().Str("job_id", job.ID).Msg("Job expired on the detection service")
		p.gate.Set()
		p.publish(ctx, interfaces.EventJobExpired, models.JobEventPayload{JobID: job.ID, Status: job.Status})

		if err := p.store.Erase(context.WithoutCancel(ctx), job.ID); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to erase expired job")
		}
		if _, err := p.discover(context.WithoutCancel(ctx)); err != nil {
			p.logger.Error().Err(err).Msg("Failed to list job store")
		}
		return jobExpired

	case kind.Transport():
		p.logger.Warn().Err(err).Str("job_id", job.ID).Str("kind", kind.String()).Msg("Detection service unreachable")
		p.serviceUp.Store(false)
		p.publish(ctx, interfaces.EventServerStatus, models.ServerStatusPayload{Up: false})
		return jobServiceDown

	default:
		p.logger.Error().Err(err).Str("job_id", job.ID).Str("kind", kind.String()).Msg("Job check failed")
		p.publish(ctx, interfaces.EventJobError, models.JobEventPayload{JobID: job.ID, Status: job.Status, Error: err.Error()})
		return jobContinue
	}
}

// requestContext detaches from loop cancellation so an update in progress
// completes, bounded by the request timeout.
func (p *Poller) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if p.config.RequestTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, p.config.RequestTimeout)
}

func (p *Poller) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		p.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// sleep waits d or until ctx is done. It returns false when ctx is done.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
