package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// Bridge keeps an in-memory robfig/cron schedule in sync with the
// is_active=true rows of monitoring_schedules, dispatching a durable
// CrawlTask each time a site's cron expression fires.
type Bridge struct {
	cron      *cron.Cron
	sites     interfaces.SiteStorage
	crawlJobs interfaces.CrawlJobStorage
	schedules interfaces.MonitoringScheduleStorage
	tasks     interfaces.CrawlTaskQueue
	logger    arbor.ILogger

	entries map[int64]cron.EntryID // site id -> registered cron entry
}

// NewBridge constructs a scheduler bridge. Call Start to begin dispatching
// and SyncSchedules (directly, or on a timer) to pick up added/removed
// schedules.
func NewBridge(
	sites interfaces.SiteStorage,
	crawlJobs interfaces.CrawlJobStorage,
	schedules interfaces.MonitoringScheduleStorage,
	tasks interfaces.CrawlTaskQueue,
	logger arbor.ILogger,
) *Bridge {
	return &Bridge{
		cron:      cron.New(),
		sites:     sites,
		crawlJobs: crawlJobs,
		schedules: schedules,
		tasks:     tasks,
		logger:    logger,
		entries:   make(map[int64]cron.EntryID),
	}
}

// Start loads every active schedule and begins the cron loop.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.SyncSchedules(ctx); err != nil {
		return fmt.Errorf("failed to load initial schedules: %w", err)
	}
	b.cron.Start()
	b.logger.Info().Int("schedules", len(b.entries)).Msg("scheduler bridge started")
	return nil
}

// Stop halts the cron loop, waiting for any in-flight job functions to
// return.
func (b *Bridge) Stop() {
	c := b.cron.Stop()
	<-c.Done()
	b.logger.Info().Msg("scheduler bridge stopped")
}

// SyncSchedules reconciles the in-memory cron entries to the current set
// of is_active=true monitoring_schedules rows: orphaned entries (schedule
// deleted or deactivated) are removed, and survivors not yet registered
// are added.
func (b *Bridge) SyncSchedules(ctx context.Context) error {
	active, err := b.schedules.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active monitoring schedules: %w", err)
	}

	wanted := make(map[int64]*models.MonitoringSchedule, len(active))
	for _, schedule := range active {
		wanted[schedule.SiteID] = schedule
	}

	for siteID, entryID := range b.entries {
		if _, ok := wanted[siteID]; !ok {
			b.cron.Remove(entryID)
			delete(b.entries, siteID)
			b.logger.Info().Int64("site_id", siteID).Msg("removed orphaned cron schedule")
		}
	}

	for siteID, schedule := range wanted {
		if _, ok := b.entries[siteID]; ok {
			continue
		}
		if err := b.register(schedule); err != nil {
			b.logger.Warn().Err(err).Int64("site_id", siteID).Str("cron", schedule.CronExpression).
				Msg("failed to register cron schedule, skipping")
			continue
		}
	}

	return nil
}

func (b *Bridge) register(schedule *models.MonitoringSchedule) error {
	siteID := schedule.SiteID
	scheduleID := schedule.ID
	entryID, err := b.cron.AddFunc(schedule.CronExpression, func() {
		b.dispatch(context.Background(), siteID, scheduleID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.CronExpression, err)
	}
	b.entries[siteID] = entryID
	b.logger.Info().Int64("site_id", siteID).Str("cron", schedule.CronExpression).Msg("registered cron schedule")
	return nil
}

// dispatch runs when a registered cron trigger fires: it creates a
// pending CrawlJob and enqueues a task for it, guarded by a per-minute
// idempotency key so a scheduler restart or overlapping trigger never
// double-enqueues the same minute's crawl.
func (b *Bridge) dispatch(ctx context.Context, siteID, scheduleID int64) {
	site, err := b.sites.GetSite(ctx, siteID)
	if err != nil {
		b.logger.Warn().Err(err).Int64("site_id", siteID).Msg("scheduled site no longer exists, skipping")
		return
	}

	minute := time.Now().UTC().Format("2006-01-02T15:04")
	idempotencyKey := fmt.Sprintf("site:%d:cron:%s", site.ID, minute)

	if existing, err := b.tasks.FindByIdempotencyKey(ctx, idempotencyKey); err != nil {
		b.logger.Warn().Err(err).Int64("site_id", siteID).Msg("failed to check scheduled crawl dedupe key")
		return
	} else if existing != nil {
		b.logger.Info().Int64("site_id", siteID).Str("idempotency_key", idempotencyKey).
			Msg("scheduled crawl already enqueued this minute, skipping")
		return
	}

	job := &models.CrawlJob{
		SiteID: siteID,
		Status: models.CrawlJobStatusPending,
	}
	jobID, err := b.crawlJobs.CreateCrawlJob(ctx, job)
	if err != nil {
		b.logger.Error().Err(err).Int64("site_id", siteID).Msg("failed to create scheduled crawl job")
		return
	}

	if _, err := b.tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{
		IdempotencyKey: idempotencyKey,
	}); err != nil {
		b.logger.Error().Err(err).Int64("site_id", siteID).Msg("failed to enqueue scheduled crawl task")
		return
	}

	if err := b.schedules.UpdateScheduleLastRun(ctx, scheduleID, time.Now()); err != nil {
		b.logger.Warn().Err(err).Int64("site_id", siteID).Msg("failed to record schedule last_run_at")
	}
}
