package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/handlers"
	"github.com/ternarybob/cavitas/internal/interfaces"
	configsvc "github.com/ternarybob/cavitas/internal/services/config"
	"github.com/ternarybob/cavitas/internal/services/events"
	"github.com/ternarybob/cavitas/internal/services/export"
	"github.com/ternarybob/cavitas/internal/services/jobs"
	"github.com/ternarybob/cavitas/internal/services/kvfinder"
	"github.com/ternarybob/cavitas/internal/services/poller"
	"github.com/ternarybob/cavitas/internal/services/scheduler"
	"github.com/ternarybob/cavitas/internal/services/status"
	"github.com/ternarybob/cavitas/internal/services/structures"
	"github.com/ternarybob/cavitas/internal/services/systemlogs"
	"github.com/ternarybob/cavitas/internal/services/validation"
	"github.com/ternarybob/cavitas/internal/storage"
)

// historyPruneJob is the scheduler job name of the event history retention
const historyPruneJob = "history_prune"

const defaultRetention = 24 * time.Hour

// App holds all application components and dependencies
type App struct {
	Config        *common.Config
	ConfigService *configsvc.Service
	Logger        arbor.ILogger
	ctx           context.Context
	cancelCtx     context.CancelFunc
	pollerWG      sync.WaitGroup
	Storages      *storage.Storages

	// Remote service and local results
	DetectionClient *kvfinder.Client
	Exporter        *export.Exporter
	StructureHost   *structures.DirHost

	// Event-driven services
	EventService     interfaces.EventService
	HistoryRecorder  *events.HistoryRecorder
	SchedulerService interfaces.SchedulerService
	StatusService    *status.Service

	// Job tracking
	Gate       *poller.Gate
	Poller     *poller.Poller
	JobService *jobs.Service

	// Support services
	SystemLogs          *systemlogs.Service
	ParametersValidator *validation.ParametersValidationService

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	WSHandler         *handlers.WebSocketHandler
	JobHandler        *handlers.JobHandler
	StatusHandler     *handlers.StatusHandler
	EventsHandler     *handlers.EventsHandler
	StructuresHandler *handlers.StructuresHandler
	LogsHandler       *handlers.LogsHandler
	ConfigHandler     *handlers.ConfigHandler
	SettingsHandler   *handlers.SettingsHandler
}

// New initializes the application with all dependencies.
// configSources are the files cfg was loaded from, reported by /api/config.
func New(cfg *common.Config, logger arbor.ILogger, configSources ...string) (*App, error) {
	app := &App{
		Config:        cfg,
		ConfigService: configsvc.NewService(cfg, configSources...),
		Logger:        logger,
	}

	// Initialize storage
	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Storages.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("service_url", cfg.Service.BaseURL).
		Str("store_dir", cfg.Store.Dir).
		Str("history_path", cfg.Storage.Badger.Path).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) initStorage() error {
	storages, err := storage.NewStorages(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.Storages = storages

	a.Logger.Debug().
		Str("jobs", storages.Jobs.Root()).
		Str("badger", a.Config.Storage.Badger.Path).
		Msg("Storage initialized")
	return nil
}

func (a *App) initServices() error {
	cfg := a.Config

	// 1. Event service with logging and persisted history
	eventService := events.NewService(a.Logger, 0)
	a.EventService = eventService
	if err := events.SubscribeLoggerToAllEvents(eventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	a.HistoryRecorder = events.NewHistoryRecorder(a.Storages.Badger.EventStorage(), a.Logger)
	if err := a.HistoryRecorder.Attach(eventService); err != nil {
		return fmt.Errorf("failed to attach event history: %w", err)
	}

	// 2. Detection service client
	a.DetectionClient = kvfinder.NewClient(
		kvfinder.WithBaseURL(cfg.Service.BaseURL),
		kvfinder.WithAPIPath(cfg.Service.APIPath),
		kvfinder.WithTimeout(cfg.ServiceTimeout()),
		kvfinder.WithRateLimit(cfg.Service.RateLimit),
		kvfinder.WithDataLimit(cfg.DataLimitBytes()),
		kvfinder.WithLogger(a.Logger),
	)

	// 3. Export and structures
	a.Exporter = export.NewExporter(a.Logger)
	a.StructureHost = structures.NewDirHost(cfg.Structures.Dir, a.Logger)

	// 4. Poller and its acknowledgement gate
	a.Gate = poller.NewGate()
	a.Poller = poller.NewPoller(
		a.Storages.Jobs,
		a.DetectionClient,
		a.Exporter,
		eventService,
		a.Gate,
		poller.ConfigFromCommon(cfg),
		a.Logger,
	)

	// 5. Status follows poller events
	a.StatusService = status.NewService(a.Gate, a.Logger)
	if err := a.StatusService.SubscribeToEvents(eventService); err != nil {
		return fmt.Errorf("failed to subscribe status service: %w", err)
	}

	// 6. Job service for the interactive layer
	a.JobService = jobs.NewService(
		a.Storages.Jobs,
		a.DetectionClient,
		a.Exporter,
		a.StructureHost,
		eventService,
		a.Gate,
		a.Logger,
	)

	// 7. Scheduler prunes event history
	schedulerService := scheduler.NewService(a.Logger)
	retention := common.Duration(cfg.History.Retention, defaultRetention)
	if err := schedulerService.RegisterJob(historyPruneJob, cfg.History.PruneSchedule,
		"Delete notification history older than "+retention.String(),
		func() error {
			return a.HistoryRecorder.Prune(context.Background(), retention)
		}); err != nil {
		return fmt.Errorf("failed to register history pruning: %w", err)
	}
	a.SchedulerService = schedulerService

	// 8. Log viewer and parameters-file validation
	a.SystemLogs = systemlogs.NewService(common.LogsDir(), a.Logger)
	a.ParametersValidator = validation.NewParametersValidationService(a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.SchedulerService, a.Logger)
	a.EventsHandler = handlers.NewEventsHandler(a.HistoryRecorder, a.Logger)
	a.StructuresHandler = handlers.NewStructuresHandler(a.StructureHost, a.Logger)
	a.LogsHandler = handlers.NewLogsHandler(a.SystemLogs, a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.ConfigService, a.Logger)
	a.SettingsHandler = handlers.NewSettingsHandler(a.ParametersValidator, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, handlers.StatusProviderFunc(func() interface{} {
		return a.StatusService.GetStatus()
	}), a.Logger, handlers.WithAllowedOrigins(a.Config.Server.AllowedOrigins))
}

// Start launches the background poller and the maintenance scheduler
func (a *App) Start() error {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Prune once at startup so stale history from a previous run is gone
	if err := a.SchedulerService.TriggerJob(historyPruneJob); err != nil {
		a.Logger.Warn().Err(err).Msg("Initial history prune failed")
	}

	a.pollerWG.Add(1)
	common.SafeGo(a.Logger, "poller", func() {
		defer a.pollerWG.Done()
		if err := a.Poller.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("Poller stopped unexpectedly")
		}
	})

	a.Logger.Info().Msg("Background poller started")
	return nil
}

// Close stops background work and releases storage
func (a *App) Close() error {
	// Stop the poller; an update in progress finishes first
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Stopping background poller")
		a.cancelCtx()
		a.pollerWG.Wait()
	}

	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Close event service, draining queued notifications into history
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.Storages != nil {
		if err := a.Storages.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
