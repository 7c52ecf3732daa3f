package crawler

import (
	"net/url"
	"strings"
)

// skipExtensions are file extensions the crawler never fetches even if
// they are same-host and robots-allowed.
var skipExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".webp": true, ".pdf": true, ".zip": true, ".tar": true,
	".gz": true, ".mp4": true, ".mp3": true, ".wav": true, ".css": true,
	".js": true, ".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// deniedPathSegments are path substrings the crawler never enqueues,
// regardless of robots.txt, to avoid wandering into auth flows.
var deniedPathSegments = []string{"/login", "/signin", "/signup", "/register", "/admin"}

// normalizeURL lowercases scheme and host, strips a trailing slash on any
// non-root path, and drops the fragment. Query strings are preserved
// here; shouldCrawl is what rejects non-empty queries outright.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// shouldCrawl applies the URL policy: same host as root, no query string,
// no denied extension or path segment, and robots-allowed.
func shouldCrawl(candidate string, rootHost string, robots *robotsPolicy) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, rootHost) {
		return false
	}
	if u.RawQuery != "" {
		return false
	}
	lowerPath := strings.ToLower(u.Path)
	for ext := range skipExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return false
		}
	}
	for _, denied := range deniedPathSegments {
		if strings.Contains(lowerPath, denied) {
			return false
		}
	}
	if robots != nil && !robots.Allowed(u.Path) {
		return false
	}
	return true
}
