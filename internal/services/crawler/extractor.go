package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	md "github.com/JohannesKaufmann/html-to-markdown"
)

// maxTextLength bounds the text fingerprint input so a pathological page
// cannot blow up hashing cost or storage.
const maxTextLength = 50000

const maxDescriptionLength = 300
const minDescriptionParagraphLength = 50
const maxHeadings = 20

var whitespaceRun = regexp.MustCompile(`\s+`)

// PageMetadata is everything the extractor derives from one fetched
// page's HTML, including the four fingerprint hashes.
type PageMetadata struct {
	Title          string
	Description    string
	Headings       []string
	MetadataHash   string
	HeadingsHash   string
	TextHash       string
	ContentHash    string
	CanonicalURL   string
	Links          []string
	NotModified    bool
	ETag           string
	LastModified   string
}

// extractMetadata parses html (already resolved relative to pageURL) and
// computes title/description/headings/links plus the fingerprint hashes.
// ContentHash = sha256(metadataHash + headingsHash + textHash), the exact
// concatenation of the three hex hash strings.
func extractMetadata(pageURL, html string) (*PageMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	title := extractTitle(doc)
	description := extractDescription(doc)
	headings := extractHeadings(doc)
	mainText := extractMainText(doc)
	canonical := extractCanonicalURL(doc, base)
	links := extractLinks(doc, base)

	metadataHash := sha256Hex(title + description)
	headingsHash := sha256Hex(strings.Join(headings, "||"))
	textHash := sha256Hex(markdownFingerprint(mainText))
	contentHash := sha256Hex(metadataHash + headingsHash + textHash)

	return &PageMetadata{
		Title:        title,
		Description:  description,
		Headings:     headings,
		MetadataHash: metadataHash,
		HeadingsHash: headingsHash,
		TextHash:     textHash,
		ContentHash:  contentHash,
		CanonicalURL: canonical,
		Links:        links,
	}, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// markdownFingerprint renders the extracted main text through the
// html-to-markdown converter so trivial HTML whitespace/tag churn
// between crawls doesn't register as a content change.
func markdownFingerprint(text string) string {
	converter := md.NewConverter("", true, nil)
	rendered, err := converter.ConvertString("<p>" + text + "</p>")
	if err != nil {
		return text
	}
	return strings.TrimSpace(rendered)
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractDescription(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if name, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	var description string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) >= minDescriptionParagraphLength {
			description = text
			return false
		}
		return true
	})
	if len(description) > maxDescriptionLength {
		description = description[:maxDescriptionLength]
	}
	return description
}

func extractHeadings(doc *goquery.Document) []string {
	var headings []string
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			headings = append(headings, text)
		}
		return len(headings) < maxHeadings
	})
	return headings
}

func extractMainText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template, svg").Remove()

	candidate := doc.Find("main").First()
	if candidate.Length() == 0 {
		candidate = doc.Find("article").First()
	}
	if candidate.Length() == 0 {
		candidate = doc.Find(`[role="main"]`).First()
	}
	if candidate.Length() == 0 {
		candidate = doc.Find("body").First()
	}
	if candidate.Length() == 0 {
		candidate = doc.Selection
	}

	var chunks []string
	candidate.Find("h1, h2, h3, p, li, pre, code, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			chunks = append(chunks, text)
		}
	})

	joined := strings.Join(chunks, " ")
	joined = whitespaceRun.ReplaceAllString(joined, " ")
	joined = strings.ToLower(strings.TrimSpace(joined))
	if len(joined) > maxTextLength {
		joined = joined[:maxTextLength]
	}
	return joined
}

func extractCanonicalURL(doc *goquery.Document, base *url.URL) string {
	href, ok := doc.Find(`link[rel="canonical"]`).Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return ""
	}
	normalized, err := normalizeURL(resolved.String())
	if err != nil {
		return ""
	}
	return normalized
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Host == "" {
			return
		}
		normalized, err := normalizeURL(resolved.String())
		if err != nil || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links
}
