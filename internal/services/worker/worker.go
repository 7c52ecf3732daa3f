// Package worker runs the durable task-queue consumer loop: poll, claim,
// dispatch a bounded crawl, heartbeat while it runs, and record the
// outcome back onto the CrawlTask and CrawlJob rows.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/common"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
	"github.com/ternarybob/llmstxt-crawler/internal/services/artifact"
	"github.com/ternarybob/llmstxt-crawler/internal/services/browser"
	"github.com/ternarybob/llmstxt-crawler/internal/services/changedetect"
	"github.com/ternarybob/llmstxt-crawler/internal/services/crawler"
)

// Worker polls CrawlTaskQueue for claimable work and runs it to
// completion, one crawl at a time per Worker value; Pool runs several
// Workers concurrently to reach WorkerConfig.Concurrency.
type Worker struct {
	id         string
	cfg        *common.Config
	tasks      interfaces.CrawlTaskQueue
	sites      interfaces.SiteStorage
	pages      interfaces.PageStorage
	crawlJobs  interfaces.CrawlJobStorage
	files      interfaces.GeneratedFileStorage
	events     interfaces.CrawlEventBus
	composer   interfaces.ArtifactComposer
	browserPool *browser.Pool
	logger     arbor.ILogger
}

// New constructs a Worker identified by id, operating against the given
// storages and the shared browser pool.
func New(
	id string,
	cfg *common.Config,
	tasks interfaces.CrawlTaskQueue,
	sites interfaces.SiteStorage,
	pages interfaces.PageStorage,
	crawlJobs interfaces.CrawlJobStorage,
	files interfaces.GeneratedFileStorage,
	events interfaces.CrawlEventBus,
	composer interfaces.ArtifactComposer,
	browserPool *browser.Pool,
	logger arbor.ILogger,
) *Worker {
	if composer == nil {
		composer = artifact.NewFallbackComposer()
	}
	return &Worker{
		id:          id,
		cfg:         cfg,
		tasks:       tasks,
		sites:       sites,
		pages:       pages,
		crawlJobs:   crawlJobs,
		files:       files,
		events:      events,
		composer:    composer,
		browserPool: browserPool,
		logger:      logger,
	}
}

// Run polls for and processes tasks until ctx is cancelled. A claimed
// task always runs to completion (success or failure recorded) before
// Run checks ctx again, matching spec's "in-flight tasks are allowed to
// finish" shutdown guarantee.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Worker.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.tasks.Claim(ctx, w.id, w.cfg.Worker.LeaseDuration)
		if err != nil {
			w.logger.Error().Err(err).Str("worker_id", w.id).Msg("failed to claim task")
		} else if task != nil {
			w.process(context.WithoutCancel(ctx), task)
			continue // immediately look for more work
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// process runs one claimed task: a heartbeat goroutine keeps its lease
// alive for the duration of the crawl, mirroring the teacher's
// context-bound background-goroutine pattern.
func (w *Worker) process(ctx context.Context, task *models.CrawlTask) {
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.heartbeatLoop(heartbeatCtx, task.ID)
	}()

	err := w.runCrawl(ctx, task)

	cancelHeartbeat()
	wg.Wait()

	if err != nil {
		w.logger.Warn().Err(err).Int64("task_id", task.ID).Int64("site_id", task.SiteID).
			Msg("crawl task failed")
		failed, failErr := w.tasks.Fail(context.Background(), task.ID, w.id, truncateError(err))
		if failErr != nil {
			w.logger.Error().Err(failErr).Int64("task_id", task.ID).Msg("failed to record task failure")
			return
		}
		w.resetJobForRetry(failed)
		return
	}

	completed, completeErr := w.tasks.Complete(context.Background(), task.ID, w.id)
	if completeErr != nil {
		w.logger.Error().Err(completeErr).Int64("task_id", task.ID).Msg("failed to record task completion")
		return
	}
	if !completed {
		w.logger.Warn().Int64("task_id", task.ID).Msg("task completion skipped, lease no longer held")
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context, taskID int64) {
	ticker := time.NewTicker(w.cfg.Worker.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := w.tasks.Heartbeat(context.Background(), taskID, w.id, w.cfg.Worker.LeaseDuration)
			if err != nil {
				w.logger.Warn().Err(err).Int64("task_id", taskID).Msg("heartbeat failed")
				continue
			}
			if !ok {
				w.logger.Warn().Int64("task_id", taskID).Str("worker_id", w.id).
					Msg("heartbeat stopped, lease no longer held")
				return
			}
		}
	}
}

// runCrawl performs the work of one task: run the bounded BFS crawl,
// reconcile pages, and regenerate the artifact if anything changed.
func (w *Worker) runCrawl(ctx context.Context, task *models.CrawlTask) error {
	site, err := w.sites.GetSite(ctx, task.SiteID)
	if err != nil {
		return fmt.Errorf("loading site %d: %w", task.SiteID, err)
	}

	job, err := w.crawlJobs.GetCrawlJob(ctx, task.CrawlJobID)
	if err != nil {
		return fmt.Errorf("loading crawl job %d: %w", task.CrawlJobID, err)
	}

	maxDepth := job.MaxDepth
	maxPages := job.MaxPages
	if task.PayloadJSON != "" {
		var payload models.TaskPayload
		if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err == nil {
			if payload.MaxDepth > 0 {
				maxDepth = payload.MaxDepth
			}
			if payload.MaxPages > 0 {
				maxPages = payload.MaxPages
			}
		}
	}
	if maxDepth <= 0 {
		maxDepth = w.cfg.Crawler.DefaultMaxDepth
	}
	if maxPages <= 0 {
		maxPages = w.cfg.Crawler.DefaultMaxPages
	}

	now := time.Now()
	job.Status = models.CrawlJobStatusRunning
	job.StartedAt = now
	job.MaxDepth = maxDepth
	job.MaxPages = maxPages
	if err := w.crawlJobs.UpdateCrawlJob(ctx, job); err != nil {
		return fmt.Errorf("marking crawl job running: %w", err)
	}

	existingPages, err := w.pages.ListAllPages(ctx, site.ID)
	if err != nil {
		return fmt.Errorf("loading existing pages for site %d: %w", site.ID, err)
	}

	reconciler := changedetect.New(w.pages, w.crawlJobs, w.events, w.logger, site.ID, job, existingPages)

	fetcher := crawler.NewFetcher(&http.Client{Timeout: w.cfg.Crawler.RequestTimeout}, w.browserPool, w.cfg.Crawler.RenderTimeout)
	engine := crawler.NewCrawler(crawler.Config{
		RootURL:                site.RootURL,
		MaxDepth:                maxDepth,
		MaxPages:                maxPages,
		Concurrency:             w.cfg.Crawler.MaxConcurrency,
		MaxDuration:             w.cfg.Crawler.MaxCrawlDuration,
		ExistingPageState:       reconciler.ExistingPageState(),
		TimeoutStreakThreshold:  w.cfg.Crawler.TimeoutStreakThreshold,
		TimeoutRateThreshold:    w.cfg.Crawler.TimeoutRateThreshold,
		MinSamplesForCircuit:    w.cfg.Crawler.TimeoutRateMinSamples,
		RequestTimeout:          w.cfg.Crawler.RequestTimeout,
		JSProbeLowLinks:         w.cfg.Crawler.JSProbeMinLinks,
	}, fetcher, crawler.Callbacks{
		OnPageCrawled: reconciler.OnPageCrawled,
		OnPageSkipped: reconciler.OnPageSkipped,
	})

	health, err := engine.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	summary, err := reconciler.Finalize(ctx, job.PagesCrawled)
	if err != nil {
		return fmt.Errorf("finalizing change detection: %w", err)
	}

	if health.AbortReason != "" {
		w.logger.Warn().Str("reason", health.AbortReason).Str("detail", health.AbortDetail).
			Int64("site_id", site.ID).Msg("crawl aborted early")
	}

	if err := w.regenerateArtifactIfChanged(ctx, site, summary); err != nil {
		w.logger.Warn().Err(err).Int64("site_id", site.ID).Msg("artifact regeneration failed")
	}

	summaryJSON, _ := json.Marshal(summary)
	job.Status = models.CrawlJobStatusCompleted
	job.CompletedAt = time.Now()
	job.ChangeSummaryJSON = string(summaryJSON)
	if err := w.crawlJobs.UpdateCrawlJob(ctx, job); err != nil {
		return fmt.Errorf("marking crawl job completed: %w", err)
	}

	if w.events != nil {
		w.events.Publish(interfaces.CrawlEvent{Type: interfaces.CrawlEventJobCompleted, JobID: job.ID})
	}

	return nil
}

// regenerateArtifactIfChanged composes a new llms.txt only when the crawl
// actually changed something, or no artifact exists yet.
func (w *Worker) regenerateArtifactIfChanged(ctx context.Context, site *models.Site, summary *models.ChangeSummary) error {
	existing, err := w.files.GetLatestGeneratedFile(ctx, site.ID)
	if err != nil {
		return fmt.Errorf("checking for existing artifact: %w", err)
	}
	if summary.Added == 0 && summary.Updated == 0 && summary.Removed == 0 && existing != nil {
		return nil
	}

	pages, err := w.pages.ListActivePagesByRelevance(ctx, site.ID)
	if err != nil {
		return fmt.Errorf("loading active pages for composition: %w", err)
	}

	content, contentHash, description, err := w.composer.Compose(ctx, site, pages)
	if err != nil {
		w.logger.Warn().Err(err).Int64("site_id", site.ID).Msg("artifact composer failed, falling back to deterministic composer")
		content, contentHash, description, err = artifact.NewFallbackComposer().Compose(ctx, site, pages)
		if err != nil {
			return fmt.Errorf("fallback composition also failed: %w", err)
		}
	}

	if existing != nil && existing.ContentHash == contentHash {
		return nil
	}

	if description != "" && site.Description != description {
		site.Description = description
		if err := w.sites.UpdateSite(ctx, site); err != nil {
			w.logger.Warn().Err(err).Int64("site_id", site.ID).Msg("failed to persist composed site description")
		}
	}

	_, err = w.files.SaveGeneratedFile(ctx, &models.GeneratedFile{
		SiteID:      site.ID,
		Content:     content,
		ContentHash: contentHash,
		PageCount:   len(pages),
	})
	if err != nil {
		return fmt.Errorf("saving generated artifact: %w", err)
	}
	return nil
}

// resetJobForRetry puts a retried task's parent CrawlJob back to pending
// with an attempt counter in error_message, matching
// original_source/backend/app/worker.py's retry bookkeeping.
func (w *Worker) resetJobForRetry(task *models.CrawlTask) {
	if task == nil || task.Status != models.TaskStatusFailed {
		return
	}
	job, err := w.crawlJobs.GetCrawlJob(context.Background(), task.CrawlJobID)
	if err != nil {
		w.logger.Warn().Err(err).Int64("crawl_job_id", task.CrawlJobID).Msg("failed to load job for retry reset")
		return
	}
	job.Status = models.CrawlJobStatusPending
	job.ErrorMessage = fmt.Sprintf("retrying (attempt %d/%d): %s", task.AttemptCount, task.MaxAttempts, task.LastError)
	if err := w.crawlJobs.UpdateCrawlJob(context.Background(), job); err != nil {
		w.logger.Warn().Err(err).Int64("crawl_job_id", job.ID).Msg("failed to persist job retry state")
	}
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > 2048 {
		msg = msg[:2048]
	}
	return msg
}

// Pool runs Concurrency Workers against the same queue, and periodically
// recovers any task whose lease expired without a heartbeat (a crashed
// worker's work), so another Worker picks it up.
type Pool struct {
	workers []*Worker
	tasks   interfaces.CrawlTaskQueue
	logger  arbor.ILogger
	cfg     *common.Config
}

// NewPool constructs Concurrency Workers sharing one browser pool and
// storage set.
func NewPool(
	cfg *common.Config,
	tasks interfaces.CrawlTaskQueue,
	sites interfaces.SiteStorage,
	pages interfaces.PageStorage,
	crawlJobs interfaces.CrawlJobStorage,
	files interfaces.GeneratedFileStorage,
	events interfaces.CrawlEventBus,
	composer interfaces.ArtifactComposer,
	browserPool *browser.Pool,
	logger arbor.ILogger,
) *Pool {
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workers := make([]*Worker, concurrency)
	for i := range workers {
		workers[i] = New(fmt.Sprintf("worker-%d", i+1), cfg, tasks, sites, pages, crawlJobs, files, events, composer, browserPool, logger)
	}
	return &Pool{workers: workers, tasks: tasks, logger: logger, cfg: cfg}
}

// Run starts every worker and the lease-recovery loop, blocking until ctx
// is cancelled and every worker has finished its current task.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.recoverExpiredLoop(ctx)
	}()

	wg.Wait()
}

func (p *Pool) recoverExpiredLoop(ctx context.Context) {
	interval := p.cfg.Worker.LeaseDuration / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := p.tasks.RecoverExpired(ctx)
			if err != nil {
				p.logger.Warn().Err(err).Msg("failed to recover expired task leases")
				continue
			}
			if recovered > 0 {
				p.logger.Warn().Int("count", recovered).Msg("recovered expired task lease(s) back to failed")
			}
		}
	}
}
