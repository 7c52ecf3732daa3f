package crawler

import (
	"math"
	"net/url"
	"regexp"
	"strings"
)

type categoryPattern struct {
	pattern *regexp.Regexp
	label   string
}

// categoryPatterns are matched in order against the lowercased URL path;
// the first match wins.
var categoryPatterns = []categoryPattern{
	{regexp.MustCompile(`/docs?(/|$)`), "Documentation"},
	{regexp.MustCompile(`/documentation(/|$)`), "Documentation"},
	{regexp.MustCompile(`/api(-ref|-reference|reference|docs)?(/|$)`), "API Reference"},
	{regexp.MustCompile(`/guide`), "Guides"},
	{regexp.MustCompile(`/tutorial`), "Guides"},
	{regexp.MustCompile(`/getting[_-]?started`), "Getting Started"},
	{regexp.MustCompile(`/quick[_-]?start`), "Getting Started"},
	{regexp.MustCompile(`/install`), "Getting Started"},
	{regexp.MustCompile(`/setup`), "Getting Started"},
	{regexp.MustCompile(`/blog(/|$)`), "Blog"},
	{regexp.MustCompile(`/news(/|$)`), "Blog"},
	{regexp.MustCompile(`/example`), "Examples"},
	{regexp.MustCompile(`/demo`), "Examples"},
	{regexp.MustCompile(`/sample`), "Examples"},
	{regexp.MustCompile(`/faq`), "FAQ"},
	{regexp.MustCompile(`/changelog`), "Changelog"},
	{regexp.MustCompile(`/release`), "Changelog"},
	{regexp.MustCompile(`/about`), "About"},
	{regexp.MustCompile(`/team`), "About"},
	{regexp.MustCompile(`/contact`), "About"},
	{regexp.MustCompile(`/pricing(/|$)`), "About"},
}

// categoryBaseScores are the starting relevance score for each category
// before depth/sitemap/length adjustments.
var categoryBaseScores = map[string]float64{
	"Getting Started": 0.9,
	"Documentation":    0.85,
	"API Reference":    0.8,
	"Guides":           0.75,
	"Examples":         0.7,
	"Core Pages":       0.6,
	"FAQ":              0.5,
	"Changelog":        0.4,
	"About":            0.4,
	"Blog":             0.35,
	"Other":            0.25,
}

// CategorizePage assigns a category label based on URL path. Pages with
// no pattern match are "Core Pages" at depth <= 1, else "Other".
func CategorizePage(rawURL string, depth int) string {
	u, err := url.Parse(rawURL)
	path := ""
	if err == nil {
		path = strings.ToLower(u.Path)
	}
	for _, cp := range categoryPatterns {
		if cp.pattern.MatchString(path) {
			return cp.label
		}
	}
	if depth <= 1 {
		return "Core Pages"
	}
	return "Other"
}

// ComputeRelevance scores a page in [0,1], rounded to two decimals:
// base(category) - 0.1*depth + (0.1 if inSitemap) - 0.05*max(0, segments-3).
func ComputeRelevance(rawURL string, depth int, category string, inSitemap bool) float64 {
	base, ok := categoryBaseScores[category]
	if !ok {
		base = 0.3
	}
	sitemapBonus := 0.0
	if inSitemap {
		sitemapBonus = 0.1
	}

	pathSegments := 0
	if u, err := url.Parse(rawURL); err == nil {
		pathSegments = len(strings.Split(u.Path, "/")) - 1
	}
	lengthPenalty := 0.0
	if extra := pathSegments - 3; extra > 0 {
		lengthPenalty = float64(extra) * 0.05
	}

	score := base - float64(depth)*0.1 + sitemapBonus - lengthPenalty
	score = roundToTwoDecimals(score)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func roundToTwoDecimals(v float64) float64 {
	return math.Round(v*100) / 100
}
