// Package changedetect turns one crawl's raw Result/SkipEvent stream
// into Page upserts, CrawlJob progress counters, and a final
// added/updated/removed/unchanged summary, reconciling the crawl against
// whatever pages were already active for the site.
package changedetect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
	"github.com/ternarybob/llmstxt-crawler/internal/services/crawler"
)

// Reconciler drives one CrawlJob's page writer: it consumes the crawl
// engine's callbacks, upserts Page rows, and tallies the counters a
// completed CrawlJob reports.
type Reconciler struct {
	pages  interfaces.PageStorage
	jobs   interfaces.CrawlJobStorage
	events interfaces.CrawlEventBus
	logger arbor.ILogger

	siteID     int64
	job        *models.CrawlJob
	existing   map[string]*models.Page
	seenURLs   map[string]bool

	added, updated, removed, unchanged, skipped int
}

// New builds a Reconciler bound to one CrawlJob. existingPages is every
// stored page for the site, active or inactive, used both to decide
// added/updated/unchanged and to build the conditional-request state the
// crawler uses for 304 reuse.
func New(pages interfaces.PageStorage, jobs interfaces.CrawlJobStorage, events interfaces.CrawlEventBus, logger arbor.ILogger, siteID int64, job *models.CrawlJob, existingPages []*models.Page) *Reconciler {
	existing := make(map[string]*models.Page, len(existingPages))
	for _, p := range existingPages {
		existing[p.URL] = p
	}
	return &Reconciler{
		pages:    pages,
		jobs:     jobs,
		events:   events,
		logger:   logger,
		siteID:   siteID,
		job:      job,
		existing: existing,
		seenURLs: make(map[string]bool),
	}
}

// ExistingPageState builds the crawler.ExistingPageState map the engine
// needs to issue conditional requests, restricted to pages with a
// complete enough fingerprint to support safe 304 reuse.
func (r *Reconciler) ExistingPageState() map[string]*crawler.ExistingPageState {
	state := make(map[string]*crawler.ExistingPageState)
	for url, p := range r.existing {
		if p.LinksJSON == "" || p.MetadataHash == "" || p.HeadingsHash == "" || p.TextHash == "" {
			continue
		}
		state[url] = &crawler.ExistingPageState{ETag: p.ETag, LastModified: p.LastModified}
	}
	return state
}

// OnPageCrawled is the crawler.Callbacks.OnPageCrawled hook: it upserts
// the page and classifies it as added/updated/unchanged, counting a
// resurrection (previously-inactive page seen again) as added
// regardless of whether this particular fetch was a 304.
func (r *Reconciler) OnPageCrawled(result crawler.Result) {
	r.seenURLs[result.URL] = true

	existing, had := r.existing[result.URL]
	reactivated := had && !existing.IsActive

	now := time.Now()
	category := crawler.CategorizePage(result.URL, result.Depth)
	relevance := crawler.ComputeRelevance(result.URL, result.Depth, category, result.InSitemap)

	page := &models.Page{
		SiteID:        r.siteID,
		URL:           result.URL,
		Category:      category,
		RelevanceScore: relevance,
		Depth:         result.Depth,
		HTTPStatus:    result.HTTPStatus,
		IsActive:      true,
		LastSeenAt:    now,
		LastCheckedAt: now,
	}
	if had {
		page.ID = existing.ID
		page.FirstSeenAt = existing.FirstSeenAt
	} else {
		page.FirstSeenAt = now
	}

	linksJSON, _ := json.Marshal(result.Metadata.Links)
	page.LinksJSON = string(linksJSON)

	switch {
	case !had:
		r.added++
	case result.Metadata.NotModified:
		page.Title = existing.Title
		page.Description = existing.Description
		page.MetadataHash = existing.MetadataHash
		page.HeadingsHash = existing.HeadingsHash
		page.TextHash = existing.TextHash
		page.ContentHash = existing.ContentHash
		page.CanonicalURL = existing.CanonicalURL
		page.ETag = coalesce(result.Metadata.ETag, existing.ETag)
		page.LastModified = existing.LastModified
		page.HTTPStatus = http.StatusNotModified
		if reactivated {
			r.added++
		} else {
			r.unchanged++
		}
		r.writePage(page)
		return
	default:
		changed := existing.HasMeaningfulChange(result.Metadata.ContentHash, result.Metadata.MetadataHash, result.Metadata.HeadingsHash, result.Metadata.TextHash, result.Metadata.CanonicalURL)
		if reactivated {
			r.added++
		} else if changed {
			r.updated++
		} else {
			r.unchanged++
		}
	}

	page.Title = result.Metadata.Title
	page.Description = result.Metadata.Description
	page.MetadataHash = result.Metadata.MetadataHash
	page.HeadingsHash = result.Metadata.HeadingsHash
	page.TextHash = result.Metadata.TextHash
	page.ContentHash = result.Metadata.ContentHash
	page.CanonicalURL = result.Metadata.CanonicalURL
	if had {
		page.ETag = coalesce(result.Metadata.ETag, existing.ETag)
		page.LastModified = coalesce(result.Metadata.LastModified, existing.LastModified)
	} else {
		page.ETag = result.Metadata.ETag
		page.LastModified = result.Metadata.LastModified
	}

	r.writePage(page)
}

func (r *Reconciler) writePage(page *models.Page) {
	if err := r.pages.UpsertPage(context.Background(), page); err != nil {
		r.logger.Error().Err(err).Str("url", page.URL).Msg("failed to upsert crawled page")
		return
	}
	r.commitProgress()
	if r.events != nil {
		r.events.Publish(interfaces.CrawlEvent{
			Type:    interfaces.CrawlEventPageCrawled,
			JobID:   r.job.ID,
			Payload: &interfaces.CrawlPageEvent{URL: page.URL, Depth: page.Depth},
		})
	}
}

// OnPageSkipped is the crawler.Callbacks.OnPageSkipped hook.
func (r *Reconciler) OnPageSkipped(event crawler.SkipEvent) {
	r.skipped++
	r.commitProgress()
	if r.events != nil {
		r.events.Publish(interfaces.CrawlEvent{
			Type:    interfaces.CrawlEventPageSkipped,
			JobID:   r.job.ID,
			Payload: &interfaces.CrawlSkipEvent{URL: event.URL, Reason: event.Reason},
		})
	}
}

func (r *Reconciler) commitProgress() {
	r.job.PagesCrawled = r.added + r.updated + r.unchanged
	r.job.PagesAdded = r.added
	r.job.PagesUpdated = r.updated
	r.job.PagesUnchanged = r.unchanged
	r.job.PagesSkipped = r.skipped
	if err := r.jobs.UpdateCrawlJob(context.Background(), r.job); err != nil {
		r.logger.Warn().Err(err).Int64("job_id", r.job.ID).Msg("failed to persist crawl job progress")
	}
}

// Finalize deactivates any previously-active page not seen in this
// crawl, finishes the job's counters, and returns the change summary to
// attach to the completed CrawlJob.
func (r *Reconciler) Finalize(ctx context.Context, pagesFound int) (*models.ChangeSummary, error) {
	removedURLs, err := r.pages.DeactivatePagesNotIn(ctx, r.siteID, r.seenURLs)
	if err != nil {
		return nil, fmt.Errorf("deactivating stale pages: %w", err)
	}
	r.removed = len(removedURLs)

	summary := &models.ChangeSummary{
		Added:     r.added,
		Updated:   r.updated,
		Removed:   r.removed,
		Unchanged: r.unchanged,
	}
	if len(removedURLs) > 50 {
		summary.RemovedURLs = removedURLs[:50]
	} else {
		summary.RemovedURLs = removedURLs
	}

	active, err := r.pages.ListActivePages(ctx, r.siteID)
	if err != nil {
		return nil, fmt.Errorf("listing active pages: %w", err)
	}
	summary.ActivePages = len(active)

	r.job.PagesFound = pagesFound
	r.job.PagesChanged = r.added + r.updated + r.removed
	r.job.PagesRemoved = r.removed

	return summary, nil
}

func coalesce(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
