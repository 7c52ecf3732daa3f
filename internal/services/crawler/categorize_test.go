package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizePage_MatchesOrderedPatterns(t *testing.T) {
	assert.Equal(t, "Documentation", CategorizePage("https://example.com/docs/intro", 2))
	assert.Equal(t, "API Reference", CategorizePage("https://example.com/api-reference/users", 2))
	assert.Equal(t, "Getting Started", CategorizePage("https://example.com/getting-started", 1))
	assert.Equal(t, "Blog", CategorizePage("https://example.com/blog/2024/post", 3))
}

func TestCategorizePage_FallsBackByDepth(t *testing.T) {
	assert.Equal(t, "Core Pages", CategorizePage("https://example.com/pricing-plans", 1))
	assert.Equal(t, "Other", CategorizePage("https://example.com/pricing-plans", 2))
}

func TestComputeRelevance_AppliesDepthAndSitemapAdjustments(t *testing.T) {
	base := ComputeRelevance("https://example.com/docs", 0, "Documentation", false)
	assert.Equal(t, 0.85, base)

	withDepth := ComputeRelevance("https://example.com/docs", 2, "Documentation", false)
	assert.Equal(t, 0.65, withDepth)

	withSitemap := ComputeRelevance("https://example.com/docs", 0, "Documentation", true)
	assert.Equal(t, 0.95, withSitemap)
}

func TestComputeRelevance_ClampsToUnitRange(t *testing.T) {
	score := ComputeRelevance("https://example.com/a/b/c/d/e/f/g", 5, "Other", false)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
