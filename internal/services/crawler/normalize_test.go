package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL_LowercasesAndStripsTrailingSlash(t *testing.T) {
	got, err := normalizeURL("HTTPS://Example.COM/Docs/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/Docs", got)
}

func TestNormalizeURL_KeepsRootSlash(t *testing.T) {
	got, err := normalizeURL("https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got)
}

func TestNormalizeURL_DropsFragment(t *testing.T) {
	got, err := normalizeURL("https://example.com/docs#section")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/docs", got)
}

func TestShouldCrawl_RejectsOtherHosts(t *testing.T) {
	assert.False(t, shouldCrawl("https://other.com/docs", "example.com", nil))
}

func TestShouldCrawl_RejectsQueryStrings(t *testing.T) {
	assert.False(t, shouldCrawl("https://example.com/docs?x=1", "example.com", nil))
}

func TestShouldCrawl_RejectsSkippedExtensions(t *testing.T) {
	assert.False(t, shouldCrawl("https://example.com/image.png", "example.com", nil))
}

func TestShouldCrawl_RejectsDeniedPaths(t *testing.T) {
	assert.False(t, shouldCrawl("https://example.com/login", "example.com", nil))
}

func TestShouldCrawl_AllowsOrdinaryPath(t *testing.T) {
	assert.True(t, shouldCrawl("https://example.com/docs/intro", "example.com", nil))
}

func TestShouldCrawl_HonorsRobotsDisallow(t *testing.T) {
	policy := &robotsPolicy{disallow: []string{"/private"}}
	assert.False(t, shouldCrawl("https://example.com/private/page", "example.com", policy))
	assert.True(t, shouldCrawl("https://example.com/public/page", "example.com", policy))
}
