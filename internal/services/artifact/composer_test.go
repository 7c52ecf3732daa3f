package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

func TestCompose_GroupsByCategoryInSectionOrder(t *testing.T) {
	c := NewFallbackComposer()
	site := &models.Site{RootURL: "https://example.com", Title: "Example", Description: "An example site"}
	pages := []*models.Page{
		{URL: "https://example.com/docs/intro", Title: "Intro", Category: "Documentation", RelevanceScore: 0.8},
		{URL: "https://example.com/getting-started", Title: "Start Here", Category: "Getting Started", RelevanceScore: 0.9},
		{URL: "https://example.com/blog/post", Title: "A Post", Category: "Blog", RelevanceScore: 0.2},
	}

	content, hash, description, err := c.Compose(context.Background(), site, pages)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Equal(t, "An example site", description)

	gettingStarted := indexOf(content, "## Getting Started")
	documentation := indexOf(content, "## Documentation")
	optional := indexOf(content, "## Optional")

	assert.True(t, gettingStarted < documentation)
	assert.True(t, documentation < optional)
	assert.Contains(t, content, "A Post") // low relevance -> Optional, not Blog
}

func TestCompose_IsDeterministic(t *testing.T) {
	c := NewFallbackComposer()
	site := &models.Site{RootURL: "https://example.com"}
	pages := []*models.Page{
		{URL: "https://example.com/a", Title: "A", Category: "Core Pages", RelevanceScore: 0.6},
	}

	content1, hash1, _, err := c.Compose(context.Background(), site, pages)
	require.NoError(t, err)
	content2, hash2, _, err := c.Compose(context.Background(), site, pages)
	require.NoError(t, err)

	assert.Equal(t, content1, content2)
	assert.Equal(t, hash1, hash2)
}

func TestCompose_DedupesByURL(t *testing.T) {
	c := NewFallbackComposer()
	site := &models.Site{RootURL: "https://example.com"}
	pages := []*models.Page{
		{URL: "https://example.com/a", Title: "A", Category: "Core Pages", RelevanceScore: 0.6},
		{URL: "https://example.com/a", Title: "A dup", Category: "Core Pages", RelevanceScore: 0.6},
	}

	content, _, _, err := c.Compose(context.Background(), site, pages)
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(content, "https://example.com/a"))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
			i += len(substr) - 1
		}
	}
	return count
}
