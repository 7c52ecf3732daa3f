package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// contentWaitScript is a best-effort heuristic for "the JS framework has
// rendered something". It is not awaited past its own timeout; a render
// that never satisfies it still returns whatever HTML is present.
const contentWaitScript = `document.querySelectorAll('a[href]').length > 3 || document.body.innerText.length > 500`

// Pool is a lazily-initialized, semaphore-gated headless Chrome runner.
// One browser process backs every render; MaxPages bounds how many
// pages may be open concurrently against it.
type Pool struct {
	mu         sync.Mutex
	sem        chan struct{}
	logger     arbor.ILogger
	allocCtx   context.Context
	allocCancel context.CancelFunc
	browserCtx context.Context
	browserCancel context.CancelFunc
}

// New returns a Pool that allows at most maxPages concurrent renders.
// The underlying browser process is not started until the first Render
// call.
func New(maxPages int, logger arbor.ILogger) *Pool {
	if maxPages <= 0 {
		maxPages = 2
	}
	return &Pool{
		sem:    make(chan struct{}, maxPages),
		logger: logger,
	}
}

// ensureBrowser starts the shared headless Chrome process if it is not
// already running, restarting it if the prior instance died.
func (p *Pool) ensureBrowser() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browserCtx != nil {
		select {
		case <-p.browserCtx.Done():
			p.logger.Warn().Msg("headless browser died, restarting")
			p.browserCancel()
			p.allocCancel()
			p.browserCtx = nil
		default:
			return nil
		}
	}

	p.logger.Info().Msg("starting headless chromium")
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("no-first-run", true),
	)

	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocCtx)
	if err := chromedp.Run(p.browserCtx); err != nil {
		p.browserCancel()
		p.allocCancel()
		p.browserCtx = nil
		return fmt.Errorf("failed to start headless chromium: %w", err)
	}
	return nil
}

// Render loads url in a fresh tab, gives client-side frameworks up to 5
// seconds to populate meaningful content, and returns the resulting
// HTML. It blocks on the pool's semaphore to bound concurrent pages.
func (p *Pool) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	if err := p.ensureBrowser(); err != nil {
		return "", err
	}

	p.mu.Lock()
	browserCtx := p.browserCtx
	p.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	loadCtx, loadCancel := context.WithTimeout(tabCtx, timeout)
	defer loadCancel()

	var html string
	err := chromedp.Run(loadCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			// Best-effort: ignore timeout, the page may just be static.
			_ = chromedp.Poll(contentWaitScript, nil).Do(waitCtx)
			return nil
		}),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render failed for %s: %w", url, err)
	}
	return html, nil
}

// Shutdown stops the shared browser process, if running.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.browserCtx = nil
}
