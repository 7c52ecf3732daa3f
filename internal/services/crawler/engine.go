package crawler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type queueItem struct {
	url       string
	depth     int
	inSitemap bool
}

// Crawler performs one bounded BFS crawl of a single site. All mutable
// state (visited set, results, circuit-breaker counters) lives on this
// value and is guarded by mu; nothing here is shared across crawls.
type Crawler struct {
	cfg      Config
	fetcher  *Fetcher
	callbacks Callbacks

	mu                  sync.Mutex
	visited             map[string]bool
	results             []Result
	skippedCount        int
	blockedCount        int
	requestCount        int
	timeoutCount        int
	consecutiveTimeouts int
	useRender           bool
	jsProbeAttempts     int
	jsProbeFailures     int
	abortReason         string
	abortDetail         string
	lastProgressAt      time.Time
	startedAt           time.Time
}

// NewCrawler constructs a Crawler for one run of cfg, reporting retained
// and skipped pages through callbacks as they happen.
func NewCrawler(cfg Config, fetcher *Fetcher, callbacks Callbacks) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if cfg.TimeoutStreakThreshold <= 0 {
		cfg.TimeoutStreakThreshold = 5
	}
	if cfg.TimeoutRateThreshold <= 0 {
		cfg.TimeoutRateThreshold = 0.5
	}
	if cfg.MinSamplesForCircuit <= 0 {
		cfg.MinSamplesForCircuit = 10
	}
	if cfg.StallSeconds <= 0 {
		cfg.StallSeconds = 30 * time.Second
	}
	if cfg.JSProbeMaxDepth <= 0 {
		cfg.JSProbeMaxDepth = 1
	}
	if cfg.JSProbeMaxAttempts <= 0 {
		cfg.JSProbeMaxAttempts = 3
	}
	if cfg.JSProbeLowLinks <= 0 {
		cfg.JSProbeLowLinks = 2
	}
	if cfg.JSProbePromoteLinks <= 0 {
		cfg.JSProbePromoteLinks = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Crawler{
		cfg:       cfg,
		fetcher:   fetcher,
		callbacks: callbacks,
		visited:   make(map[string]bool),
	}
}

// Crawl runs the BFS until the queue drains or a budget/circuit-breaker
// abort fires, returning a health summary of what happened.
func (c *Crawler) Crawl(ctx context.Context) (*HealthSummary, error) {
	c.startedAt = time.Now()
	c.lastProgressAt = c.startedAt

	rootURL, err := resolveRootRedirect(ctx, c.fetcher.client, c.cfg.RootURL)
	if err != nil {
		rootURL = c.cfg.RootURL
	}
	parsedRoot, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}
	rootHost := strings.ToLower(parsedRoot.Host)

	robots := loadRobots(ctx, c.fetcher.client, parsedRoot.Scheme, rootHost)
	sitemapURLs := loadSitemap(ctx, c.fetcher.client, parsedRoot.Scheme, rootHost, robots, c.cfg.MaxPages)

	tasks := make(chan queueItem, c.cfg.MaxPages*4+16)
	var wg sync.WaitGroup

	enqueue := func(item queueItem) {
		wg.Add(1)
		go func() {
			select {
			case tasks <- item:
			case <-ctx.Done():
				wg.Done()
			}
		}()
	}

	normalizedRoot, err := normalizeURL(rootURL)
	if err != nil {
		normalizedRoot = rootURL
	}
	enqueue(queueItem{url: normalizedRoot, depth: 0})
	for _, su := range sitemapURLs {
		enqueue(queueItem{url: su, depth: 1, inSitemap: true})
	}

	for i := 0; i < c.cfg.Concurrency; i++ {
		go c.worker(ctx, tasks, &wg, rootHost, robots, enqueue)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	close(tasks)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.results) == 0 && len(sitemapURLs) > 0 && c.blockedCount > 0 {
		c.sitemapFallbackLocked(sitemapURLs)
	}

	return &HealthSummary{
		RequestCount:        c.requestCount,
		TimeoutCount:        c.timeoutCount,
		ConsecutiveTimeouts: c.consecutiveTimeouts,
		BlockedCount:        c.blockedCount,
		AbortReason:         c.abortReason,
		AbortDetail:         c.abortDetail,
		UsedRender:          c.useRender,
	}, nil
}

// sitemapFallbackLocked synthesizes minimal results purely from sitemap
// URLs when every real fetch was blocked, so a fully bot-gated site still
// yields a skeleton artifact instead of nothing. Caller holds c.mu.
func (c *Crawler) sitemapFallbackLocked(sitemapURLs []string) {
	for _, su := range sitemapURLs {
		if len(c.results) >= c.cfg.MaxPages {
			break
		}
		title := su
		if u, err := url.Parse(su); err == nil {
			segments := strings.Split(strings.Trim(u.Path, "/"), "/")
			if last := segments[len(segments)-1]; last != "" {
				title = last
			}
		}
		result := Result{
			URL:   su,
			Depth: 1,
			Metadata: &PageMetadata{
				Title: title,
			},
			HTTPStatus: 0,
		}
		c.results = append(c.results, result)
		if c.callbacks.OnPageCrawled != nil {
			c.callbacks.OnPageCrawled(result)
		}
	}
}

func (c *Crawler) worker(ctx context.Context, tasks <-chan queueItem, wg *sync.WaitGroup, rootHost string, robots *robotsPolicy, enqueue func(queueItem)) {
	for item := range tasks {
		c.processItem(ctx, item, rootHost, robots, enqueue)
		wg.Done()
	}
}

func (c *Crawler) processItem(ctx context.Context, item queueItem, rootHost string, robots *robotsPolicy, enqueue func(queueItem)) {
	if c.shouldAbort() {
		return
	}
	if c.checkDurationBudget() {
		return
	}

	c.mu.Lock()
	if c.visited[item.url] || len(c.results) >= c.cfg.MaxPages {
		c.mu.Unlock()
		return
	}
	if c.cfg.MaxDepth > 0 && item.depth > c.cfg.MaxDepth {
		c.mu.Unlock()
		return
	}
	c.visited[item.url] = true
	useRender := c.useRender
	c.mu.Unlock()

	if c.cfg.RequestDelay > 0 {
		select {
		case <-time.After(c.cfg.RequestDelay):
		case <-ctx.Done():
			return
		}
	}

	outcome, skip, err := c.fetchWithCircuitBreaker(ctx, item, rootHost, robots, useRender)
	if err != nil || skip {
		return
	}

	links := c.recordOutcome(item, outcome)
	for _, link := range links {
		if shouldCrawl(link, rootHost, robots) {
			enqueue(queueItem{url: link, depth: item.depth + 1})
		}
	}
}

func (c *Crawler) fetchWithCircuitBreaker(ctx context.Context, item queueItem, rootHost string, robots *robotsPolicy, useRender bool) (*FetchOutcome, bool, error) {
	pageURL := item.url
	var existing *ExistingPageState
	if state, ok := c.cfg.ExistingPageState[pageURL]; ok {
		existing = state
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	outcome, err := c.fetcher.Fetch(reqCtx, pageURL, existing, useRender)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			c.recordTimeout()
			c.checkTimeoutCircuit(pageURL)
		} else {
			c.recordNonTimeoutAttempt()
		}
		return nil, true, err
	}
	c.recordNonTimeoutAttempt()

	if outcome.BotProtectionDetected {
		c.mu.Lock()
		c.blockedCount++
		if !useRender {
			c.useRender = true
		}
		c.mu.Unlock()
	}

	if outcome.SkipReason != "" {
		c.mu.Lock()
		c.skippedCount++
		c.mu.Unlock()
		if c.callbacks.OnPageSkipped != nil {
			c.callbacks.OnPageSkipped(SkipEvent{URL: pageURL, Reason: outcome.SkipReason})
		}
		return outcome, true, nil
	}

	c.maybeProbeJS(ctx, item.depth, rootHost, robots, pageURL, outcome)

	return outcome, false, nil
}

// maybeProbeJS implements the JS-promotion heuristic: if a fetched page at
// depth <= JSProbeMaxDepth looks link-starved, render it once and compare
// crawlable-link counts (post shouldCrawl filtering, not raw extracted
// links); promote the whole crawl to render mode if rendering reveals
// substantially more crawlable links.
func (c *Crawler) maybeProbeJS(ctx context.Context, depth int, rootHost string, robots *robotsPolicy, pageURL string, outcome *FetchOutcome) {
	if depth > c.cfg.JSProbeMaxDepth || c.fetcher.browserPool == nil {
		return
	}

	c.mu.Lock()
	alreadyRendering := c.useRender
	attempts := c.jsProbeAttempts
	failures := c.jsProbeFailures
	c.mu.Unlock()

	if alreadyRendering || attempts >= c.cfg.JSProbeMaxAttempts || failures >= 2 {
		return
	}

	meta, err := extractMetadata(pageURL, outcome.HTML)
	if err != nil || countCrawlable(meta.Links, rootHost, robots) > c.cfg.JSProbeLowLinks {
		return
	}

	c.mu.Lock()
	c.jsProbeAttempts++
	c.mu.Unlock()

	rendered, err := c.fetcher.browserPool.Render(ctx, pageURL, c.fetcher.renderTimeout)
	if err != nil {
		c.mu.Lock()
		c.jsProbeFailures++
		c.mu.Unlock()
		return
	}

	renderedMeta, err := extractMetadata(pageURL, rendered)
	if err != nil {
		return
	}
	if countCrawlable(renderedMeta.Links, rootHost, robots) >= c.cfg.JSProbePromoteLinks {
		c.mu.Lock()
		c.useRender = true
		c.mu.Unlock()
	}
}

// countCrawlable returns how many of links would actually be enqueued by
// processItem, i.e. pass shouldCrawl's host/robots/extension policy.
func countCrawlable(links []string, rootHost string, robots *robotsPolicy) int {
	n := 0
	for _, link := range links {
		if shouldCrawl(link, rootHost, robots) {
			n++
		}
	}
	return n
}

func (c *Crawler) recordOutcome(item queueItem, outcome *FetchOutcome) []string {
	meta, err := extractMetadata(item.url, outcome.HTML)
	if err != nil {
		meta = &PageMetadata{}
	}
	meta.NotModified = outcome.NotModified
	meta.ETag = outcome.ETag
	meta.LastModified = outcome.LastModified

	result := Result{
		URL:        item.url,
		Depth:      item.depth,
		InSitemap:  item.inSitemap,
		Metadata:   meta,
		HTTPStatus: outcome.HTTPStatus,
	}

	c.mu.Lock()
	c.results = append(c.results, result)
	c.lastProgressAt = time.Now()
	c.mu.Unlock()

	if c.callbacks.OnPageCrawled != nil {
		c.callbacks.OnPageCrawled(result)
	}

	return meta.Links
}

func (c *Crawler) recordTimeout() {
	c.mu.Lock()
	c.requestCount++
	c.timeoutCount++
	c.consecutiveTimeouts++
	c.mu.Unlock()
}

func (c *Crawler) recordNonTimeoutAttempt() {
	c.mu.Lock()
	c.requestCount++
	c.consecutiveTimeouts = 0
	c.lastProgressAt = time.Now()
	c.mu.Unlock()
}

func (c *Crawler) timeoutRate() float64 {
	if c.requestCount == 0 {
		return 0
	}
	return float64(c.timeoutCount) / float64(c.requestCount)
}

// checkTimeoutCircuit aborts the crawl if the consecutive-timeout streak
// or the overall timeout rate (with a stalled-progress guard) crosses
// its threshold.
func (c *Crawler) checkTimeoutCircuit(pageURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortReason != "" {
		return
	}

	streakHit := c.consecutiveTimeouts >= c.cfg.TimeoutStreakThreshold && c.requestCount >= c.cfg.MinSamplesForCircuit
	stalledFor := time.Since(c.lastProgressAt)
	rateHit := c.requestCount >= c.cfg.MinSamplesForCircuit &&
		c.timeoutRate() >= c.cfg.TimeoutRateThreshold &&
		stalledFor >= c.cfg.StallSeconds

	if streakHit || rateHit {
		c.abortReason = "timeout_circuit_open"
		detail := pageURL
		if len(detail) > 400 {
			detail = detail[:400]
		}
		c.abortDetail = detail
	}
}

func (c *Crawler) shouldAbort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.abortReason != ""
}

func (c *Crawler) checkDurationBudget() bool {
	if c.cfg.MaxDuration <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abortReason != "" {
		return true
	}
	if time.Since(c.startedAt) >= c.cfg.MaxDuration {
		c.abortReason = "duration_budget_exceeded"
		c.abortDetail = c.cfg.MaxDuration.String()
		return true
	}
	return false
}

// resolveRootRedirect issues a single HEAD request and follows at most
// one redirect, so same-host enforcement is judged against the site's
// real canonical host rather than a www/bare-domain alias.
func resolveRootRedirect(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL, err
	}

	noRedirectClient := &http.Client{
		Transport: client.Transport,
		Timeout:   client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := noRedirectClient.Do(req)
	if err != nil {
		return rawURL, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc := resp.Header.Get("Location"); loc != "" {
			resolved, err := resp.Request.URL.Parse(loc)
			if err == nil {
				return resolved.String(), nil
			}
		}
	}
	return rawURL, nil
}
