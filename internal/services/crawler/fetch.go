package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/llmstxt-crawler/internal/services/browser"
)

// browserHeaders mimics a real Chrome request closely enough to avoid
// the cheapest bot-mitigation heuristics, while deliberately omitting
// Accept-Encoding/Cache-Control/Upgrade-Insecure-Requests, which a
// hand-rolled client handles differently than a real browser and which
// some challenge products use as a tell.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
}

// FetchOutcome is the result of fetching one URL.
type FetchOutcome struct {
	HTML        string
	HTTPStatus  int
	ETag        string
	LastModified string
	NotModified bool
	SkipReason  string // non-empty means the page was not retained
	BotProtectionDetected bool // true whenever the static tier saw a challenge page, even if a render recovered it
}

// ExistingPageState is the subset of a previously stored Page used to
// issue conditional requests and to synthesize a result on 304.
type ExistingPageState struct {
	ETag         string
	LastModified string
}

// Fetcher retrieves page HTML, trying a static HTTP GET first and
// escalating to a headless render when the static response looks like a
// bot-protection challenge.
type Fetcher struct {
	client      *http.Client
	browserPool *browser.Pool
	renderTimeout time.Duration
}

// NewFetcher builds a Fetcher using client for the static tier and pool
// for the render fallback tier.
func NewFetcher(client *http.Client, pool *browser.Pool, renderTimeout time.Duration) *Fetcher {
	return &Fetcher{client: client, browserPool: pool, renderTimeout: renderTimeout}
}

// Fetch retrieves pageURL. If existing is non-nil, conditional headers
// are attached so an unchanged page round-trips as a cheap 304. useRender
// forces the headless tier (the crawler's sticky JS-mode flag).
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, existing *ExistingPageState, useRender bool) (*FetchOutcome, error) {
	if useRender {
		html, err := f.browserPool.Render(ctx, pageURL, f.renderTimeout)
		if err != nil {
			return nil, err
		}
		return &FetchOutcome{HTML: html, HTTPStatus: http.StatusOK}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	if existing != nil {
		if existing.ETag != "" {
			req.Header.Set("If-None-Match", existing.ETag)
		}
		if existing.LastModified != "" {
			req.Header.Set("If-Modified-Since", existing.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if existing == nil {
			return &FetchOutcome{HTTPStatus: resp.StatusCode, SkipReason: "HTTP 304 without cached page state"}, nil
		}
		return &FetchOutcome{
			HTTPStatus:   resp.StatusCode,
			NotModified:  true,
			ETag:         existing.ETag,
			LastModified: existing.LastModified,
		}, nil
	}

	if resp.StatusCode == http.StatusForbidden {
		return &FetchOutcome{HTTPStatus: resp.StatusCode, SkipReason: "HTTP 403 (access denied)"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &FetchOutcome{HTTPStatus: resp.StatusCode, SkipReason: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return &FetchOutcome{HTTPStatus: resp.StatusCode, SkipReason: fmt.Sprintf("non-HTML content-type %q", contentType)}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, err
	}
	html := string(body)

	if isBotProtected(html) {
		if f.browserPool == nil {
			return &FetchOutcome{HTTPStatus: resp.StatusCode, SkipReason: "bot protection (challenge page)", BotProtectionDetected: true}, nil
		}
		rendered, renderErr := f.browserPool.Render(ctx, pageURL, f.renderTimeout)
		if renderErr != nil {
			return &FetchOutcome{HTTPStatus: resp.StatusCode, SkipReason: "bot protection (challenge page)", BotProtectionDetected: true}, nil
		}
		return &FetchOutcome{HTML: rendered, HTTPStatus: http.StatusOK, BotProtectionDetected: true}, nil
	}

	return &FetchOutcome{
		HTML:         html,
		HTTPStatus:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
