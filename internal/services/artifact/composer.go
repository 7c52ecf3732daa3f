// Package artifact renders a site's crawled pages into an llms.txt
// document.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// sectionOrder is the order categories appear in the rendered artifact.
// Optional (low-relevance) pages are appended in their own section after
// every named category.
var sectionOrder = []string{
	"Getting Started", "Documentation", "API Reference", "Guides",
	"Examples", "Core Pages", "FAQ", "Changelog", "About", "Blog", "Other",
}

// optionalThreshold is the relevance score below which a page is moved
// out of its category section and into the trailing Optional section.
const optionalThreshold = 0.3

// FallbackComposer is the deterministic interfaces.ArtifactComposer
// implementation: no LLM call, no network access, same output for the
// same input pages every time.
type FallbackComposer struct{}

// NewFallbackComposer returns the default composer.
func NewFallbackComposer() *FallbackComposer {
	return &FallbackComposer{}
}

// Compose implements interfaces.ArtifactComposer.
func (c *FallbackComposer) Compose(_ context.Context, site *models.Site, pages []*models.Page) (string, string, string, error) {
	grouped := make(map[string][]*models.Page)
	var optional []*models.Page
	seen := make(map[string]bool)

	sorted := make([]*models.Page, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RelevanceScore > sorted[j].RelevanceScore
	})

	for _, p := range sorted {
		if seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		if p.RelevanceScore < optionalThreshold {
			optional = append(optional, p)
			continue
		}
		grouped[p.Category] = append(grouped[p.Category], p)
	}

	var b strings.Builder

	title := site.Title
	if title == "" {
		if u, err := url.Parse(site.RootURL); err == nil {
			title = u.Host
		} else {
			title = site.RootURL
		}
	}
	fmt.Fprintf(&b, "# %s\n", title)

	description := site.Description
	if description != "" {
		fmt.Fprintf(&b, "\n> %s\n", description)
	}

	for _, section := range sectionOrder {
		pagesInSection := grouped[section]
		if len(pagesInSection) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", section)
		for _, p := range pagesInSection {
			writePageLine(&b, p)
		}
	}

	if len(optional) > 0 {
		fmt.Fprintf(&b, "\n## Optional\n")
		for _, p := range optional {
			writePageLine(&b, p)
		}
	}

	content := b.String()
	sum := sha256.Sum256([]byte(content))
	return content, hex.EncodeToString(sum[:]), description, nil
}

func writePageLine(b *strings.Builder, p *models.Page) {
	label := p.Title
	if label == "" {
		label = p.URL
	}
	escapedURL := strings.ReplaceAll(p.URL, ")", "%29")
	if p.Description != "" {
		fmt.Fprintf(b, "- [%s](%s): %s\n", label, escapedURL, p.Description)
	} else {
		fmt.Fprintf(b, "- [%s](%s)\n", label, escapedURL)
	}
}
