// -----------------------------------------------------------------------
// Last Modified: Wednesday, 5th November 2025 8:17:54 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/llmstxt-crawler/internal/common"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/services/artifact"
	"github.com/ternarybob/llmstxt-crawler/internal/services/browser"
	"github.com/ternarybob/llmstxt-crawler/internal/services/events"
	"github.com/ternarybob/llmstxt-crawler/internal/services/scheduler"
	"github.com/ternarybob/llmstxt-crawler/internal/services/worker"
	"github.com/ternarybob/llmstxt-crawler/internal/storage/sqlite"
)

// App holds every long-lived component the crawler binary wires together:
// the SQLite-backed storage manager, the in-process crawl event bus, the
// shared headless browser pool, the cron-to-queue scheduler bridge, and
// the durable-queue worker pool that actually runs crawls.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx         context.Context
	cancelCtx   context.CancelFunc
	workersDone chan struct{}

	Storage     *sqlite.Manager
	Events      *events.Bus
	Composer    interfaces.ArtifactComposer
	BrowserPool *browser.Pool
	Scheduler   *scheduler.Bridge
	Workers     *worker.Pool
}

// New initializes the application: opens the database, wires the crawl
// services, and starts the scheduler bridge and worker pool as background
// goroutines. The worker pool and scheduler keep running until Close is
// called.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initServices()

	if err := app.Scheduler.Start(context.Background()); err != nil {
		app.Logger.Warn().Err(err).Msg("failed to start scheduler bridge")
	} else {
		app.Logger.Info().Msg("scheduler bridge started")
	}

	app.ctx, app.cancelCtx = context.WithCancel(context.Background())
	app.workersDone = make(chan struct{})
	go func() {
		defer close(app.workersDone)
		app.Workers.Run(app.ctx)
	}()
	app.Logger.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("worker pool started")

	// Re-sync cron entries from monitoring_schedules every Scheduler.PollInterval.
	go func() {
		for cfg.Scheduler.PollInterval > 0 {
			select {
			case <-app.ctx.Done():
				return
			case <-time.After(cfg.Scheduler.PollInterval):
				if err := app.Scheduler.SyncSchedules(app.ctx); err != nil {
					app.Logger.Warn().Err(err).Msg("failed to re-sync cron schedules")
				}
			}
		}
	}()

	app.Logger.Info().
		Str("environment", cfg.Environment).
		Str("storage_path", cfg.Storage.SQLite.Path).
		Msg("application initialization complete")

	return app, nil
}

// initStorage opens the SQLite database and applies the schema.
func (a *App) initStorage() error {
	mgr, err := sqlite.NewManager(a.Logger, &a.Config.Storage.SQLite)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.Storage = mgr
	a.Logger.Info().
		Str("path", a.Config.Storage.SQLite.Path).
		Bool("wal_mode", a.Config.Storage.SQLite.WALMode).
		Msg("storage layer initialized")
	return nil
}

// initServices wires the event bus, browser pool, artifact composer,
// scheduler bridge, and worker pool on top of the already-open storage
// manager.
func (a *App) initServices() {
	a.Events = events.New(a.Logger)

	a.BrowserPool = browser.New(a.Config.Crawler.BrowserPoolMaxPages, a.Logger)

	a.Composer = artifact.NewFallbackComposer()

	a.Scheduler = scheduler.NewBridge(
		a.Storage.Sites(),
		a.Storage.CrawlJobs(),
		a.Storage.MonitoringSchedules(),
		a.Storage.Tasks(),
		a.Logger,
	)

	a.Workers = worker.NewPool(
		a.Config,
		a.Storage.Tasks(),
		a.Storage.Sites(),
		a.Storage.Pages(),
		a.Storage.CrawlJobs(),
		a.Storage.GeneratedFiles(),
		a.Events,
		a.Composer,
		a.BrowserPool,
		a.Logger,
	)

	a.Logger.Info().Msg("crawl services initialized")
}

// Close shuts down the worker pool, scheduler bridge, browser pool, and
// storage, in that order, waiting for in-flight crawls to finish their
// current task before returning.
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("stopping worker pool, waiting for in-flight tasks to finish")
		a.cancelCtx()
		<-a.workersDone
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.BrowserPool != nil {
		a.BrowserPool.Shutdown()
		a.Logger.Info().Msg("browser pool shut down")
	}

	a.Logger.Info().Msg("flushing context logs")
	common.Stop()

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("storage closed")
	}

	return nil
}
