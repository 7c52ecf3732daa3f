package crawler

import "regexp"

// maxBotScanBytes bounds how much of the response body is scanned for
// bot-protection challenge markers.
const maxBotScanBytes = 5000

// botProtectionPatterns are challenge-page fingerprints seen from
// Cloudflare, Akamai, and similar edge bot-mitigation products.
var botProtectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)access denied`),
	regexp.MustCompile(`(?i)just a moment\.\.\.`),
	regexp.MustCompile(`(?i)enable javascript and cookies to continue`),
	regexp.MustCompile(`(?i)challenge-platform`),
	regexp.MustCompile(`(?i)checking your browser`),
	regexp.MustCompile(`(?i)cloudflare.{0,20}attention required`),
	regexp.MustCompile(`(?i)cf-browser-verification`),
	regexp.MustCompile(`(?i)pardon our interruption`),
	regexp.MustCompile(`(?i)please verify you are a human`),
	regexp.MustCompile(`(?i)blocked.{0,40}bot`),
}

// isBotProtected scans the first maxBotScanBytes of html for a known
// challenge-page fingerprint.
func isBotProtected(html string) bool {
	scan := html
	if len(scan) > maxBotScanBytes {
		scan = scan[:maxBotScanBytes]
	}
	for _, pattern := range botProtectionPatterns {
		if pattern.MatchString(scan) {
			return true
		}
	}
	return false
}
