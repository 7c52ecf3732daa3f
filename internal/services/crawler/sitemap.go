package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxSitemapRecursion bounds how many levels of sitemap index nesting
// loadSitemap will follow, guarding against a pathological or hostile
// sitemap index cycle.
const maxSitemapRecursion = 2

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	XMLName xml.Name       `xml:"urlset"`
	URLs    []sitemapEntry `xml:"url"`
}

// loadSitemap discovers sitemap URLs: robots-declared sitemaps first, and
// only if none were declared, the conventional /sitemap.xml location.
// It returns normalized, policy-filtered URLs, truncated at maxPages.
func loadSitemap(ctx context.Context, client *http.Client, scheme, host string, robots *robotsPolicy, maxPages int) []string {
	var candidates []string
	if len(robots.sitemaps) > 0 {
		candidates = robots.sitemaps
	} else {
		candidates = []string{fmt.Sprintf("%s://%s/sitemap.xml", scheme, host)}
	}

	var urls []string
	for _, c := range candidates {
		urls = append(urls, parseSitemap(ctx, client, c, host, robots, 0, maxPages)...)
		if len(urls) >= maxPages {
			break
		}
	}
	if len(urls) > maxPages {
		urls = urls[:maxPages]
	}
	return urls
}

// parseSitemap fetches one sitemap document, recursing into nested
// sitemap indexes up to maxSitemapRecursion levels deep.
func parseSitemap(ctx context.Context, client *http.Client, sitemapURL, rootHost string, robots *robotsPolicy, depth, maxPages int) []string {
	if depth > maxSitemapRecursion {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "xml") && !strings.Contains(contentType, "text") {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil
	}

	var index sitemapIndex
	if xml.Unmarshal(body, &index) == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, entry := range index.Sitemaps {
			urls = append(urls, parseSitemap(ctx, client, entry.Loc, rootHost, robots, depth+1, maxPages)...)
			if len(urls) >= maxPages {
				break
			}
		}
		return urls
	}

	var set urlSet
	if xml.Unmarshal(body, &set) != nil {
		return nil
	}
	var urls []string
	for _, entry := range set.URLs {
		normalized, err := normalizeURL(entry.Loc)
		if err != nil {
			continue
		}
		if shouldCrawl(normalized, rootHost, robots) {
			urls = append(urls, normalized)
		}
		if len(urls) >= maxPages {
			break
		}
	}
	return urls
}
