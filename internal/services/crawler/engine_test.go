package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCrawler(cfg Config) *Crawler {
	fetcher := NewFetcher(nil, nil, 0)
	return NewCrawler(cfg, fetcher, Callbacks{})
}

func TestCrawler_TimeoutStreakOpensCircuit(t *testing.T) {
	c := newTestCrawler(Config{
		TimeoutStreakThreshold: 3,
		MinSamplesForCircuit:   3,
		TimeoutRateThreshold:   1.1, // above any reachable rate, so only the streak path can fire
	})

	for i := 0; i < 2; i++ {
		c.recordTimeout()
		c.checkTimeoutCircuit("https://example.com/a")
		assert.False(t, c.shouldAbort(), "streak threshold not yet reached")
	}

	c.recordTimeout()
	c.checkTimeoutCircuit("https://example.com/a")
	assert.True(t, c.shouldAbort())
	assert.Equal(t, "timeout_circuit_open", c.abortReason)
}

func TestCrawler_TimeoutRateOpensCircuitOnlyWhenStalled(t *testing.T) {
	c := newTestCrawler(Config{
		TimeoutStreakThreshold: 100, // unreachable, isolates the rate path
		MinSamplesForCircuit:   2,
		TimeoutRateThreshold:   0.5,
		StallSeconds:           10 * time.Millisecond,
	})
	c.lastProgressAt = time.Now() // simulate recent progress before the timeouts below

	c.recordTimeout()
	c.recordTimeout()
	c.checkTimeoutCircuit("https://example.com/a")
	assert.False(t, c.shouldAbort(), "rate threshold hit but progress is too recent to count as stalled")

	c.lastProgressAt = time.Now().Add(-time.Second)
	c.checkTimeoutCircuit("https://example.com/a")
	assert.True(t, c.shouldAbort(), "rate threshold hit and the crawl has been stalled long enough")
}

func TestCrawler_NonTimeoutAttemptResetsStreak(t *testing.T) {
	c := newTestCrawler(Config{TimeoutStreakThreshold: 3, MinSamplesForCircuit: 3})

	c.recordTimeout()
	c.recordTimeout()
	assert.Equal(t, 2, c.consecutiveTimeouts)

	c.recordNonTimeoutAttempt()
	assert.Equal(t, 0, c.consecutiveTimeouts, "a successful fetch breaks the consecutive-timeout streak")
}

func TestCrawler_DurationBudgetAborts(t *testing.T) {
	c := newTestCrawler(Config{MaxDuration: 10 * time.Millisecond})
	c.startedAt = time.Now().Add(-time.Second)

	aborted := c.checkDurationBudget()
	require.True(t, aborted)
	assert.Equal(t, "duration_budget_exceeded", c.abortReason)
}

func TestCrawler_DurationBudgetDoesNotFireWhenUnset(t *testing.T) {
	c := newTestCrawler(Config{})
	c.startedAt = time.Now().Add(-time.Hour)
	assert.False(t, c.checkDurationBudget())
}

func TestMaybeProbeJS_SkipsPagesBeyondMaxDepth(t *testing.T) {
	c := newTestCrawler(Config{JSProbeMaxDepth: 1, JSProbeMaxAttempts: 3, JSProbeLowLinks: 2, JSProbePromoteLinks: 5})

	outcome := &FetchOutcome{HTML: `<html><body><a href="/a">a</a></body></html>`}
	// Depth 2 exceeds JSProbeMaxDepth (1); this must return without
	// touching the (nil) browser pool or incrementing probe attempts.
	c.maybeProbeJS(nil, 2, "example.com", nil, "https://example.com/deep", outcome)

	assert.Equal(t, 0, c.jsProbeAttempts)
	assert.False(t, c.useRender)
}

func TestMaybeProbeJS_RespectsMaxAttempts(t *testing.T) {
	c := newTestCrawler(Config{JSProbeMaxDepth: 5, JSProbeMaxAttempts: 1, JSProbeLowLinks: 10, JSProbePromoteLinks: 1})
	c.jsProbeAttempts = 1 // already at the cap

	outcome := &FetchOutcome{HTML: `<html><body></body></html>`}
	c.maybeProbeJS(nil, 0, "example.com", nil, "https://example.com/", outcome)

	assert.Equal(t, 1, c.jsProbeAttempts, "must not probe again once the attempt cap is reached")
	assert.False(t, c.useRender)
}

func TestCountCrawlable_FiltersOutOffHostAndDeniedLinks(t *testing.T) {
	links := []string{
		"https://example.com/docs",           // same host, crawlable
		"https://other.com/docs",             // different host
		"https://example.com/login",          // denied path segment
		"https://example.com/style.css",      // denied extension
		"https://example.com/page?q=1",       // query string
		"https://example.com/guide",          // same host, crawlable
	}

	assert.Equal(t, 2, countCrawlable(links, "example.com", nil))
}
