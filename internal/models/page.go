package models

import "time"

// Page is one crawled URL belonging to a Site. The four hash fields are
// the content fingerprint used to decide whether a recrawled page has
// meaningfully changed; ContentHash is the composite of the other three
// and is what downstream change detection compares.
type Page struct {
	ID              int64     `json:"id"`
	SiteID          int64     `json:"site_id"`
	URL             string    `json:"url"`
	Title           string    `json:"title,omitempty"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category"`
	RelevanceScore  float64   `json:"relevance_score"`
	Depth           int       `json:"depth"`
	MetadataHash    string    `json:"metadata_hash"`
	HeadingsHash    string    `json:"headings_hash"`
	TextHash        string    `json:"text_hash"`
	ContentHash     string    `json:"content_hash"`
	LinksJSON       string    `json:"links_json,omitempty"`
	CanonicalURL    string    `json:"canonical_url,omitempty"`
	ETag            string    `json:"etag,omitempty"`
	LastModified    string    `json:"last_modified,omitempty"`
	HTTPStatus      int       `json:"http_status"`
	IsActive        bool      `json:"is_active"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	LastCheckedAt   time.Time `json:"last_checked_at"`
}

// HasMeaningfulChange reports whether any of the given fingerprints
// (content, metadata, headings and text hashes, canonical URL) differs
// from the stored one, the way the change-detection pipeline compares them.
func (p *Page) HasMeaningfulChange(contentHash, metadataHash, headingsHash, textHash, canonicalURL string) bool {
	return p.ContentHash != contentHash ||
		p.MetadataHash != metadataHash ||
		p.HeadingsHash != headingsHash ||
		p.TextHash != textHash ||
		p.CanonicalURL != canonicalURL
}
