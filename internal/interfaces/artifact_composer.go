package interfaces

import (
	"context"

	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// ArtifactComposer turns a site's active pages into the llms.txt
// artifact content. The default implementation is deterministic
// (artifact.FallbackComposer); an LLM-backed composer may be supplied
// behind the same interface, but on failure callers must fall back to a
// deterministic result rather than leave the artifact unset.
type ArtifactComposer interface {
	Compose(ctx context.Context, site *models.Site, pages []*models.Page) (content, contentHash, siteDescription string, err error)
}
