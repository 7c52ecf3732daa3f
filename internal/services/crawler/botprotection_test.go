package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBotProtected_DetectsKnownChallengePages(t *testing.T) {
	assert.True(t, isBotProtected("<html><body>Just a moment...</body></html>"))
	assert.True(t, isBotProtected("Please verify you are a human before continuing"))
	assert.True(t, isBotProtected("<div class=\"cf-browser-verification\"></div>"))
}

func TestIsBotProtected_IgnoresOrdinaryPages(t *testing.T) {
	assert.False(t, isBotProtected("<html><body><h1>Welcome</h1></body></html>"))
}

func TestIsBotProtected_OnlyScansLeadingBytes(t *testing.T) {
	html := strings.Repeat("a", maxBotScanBytes+10) + "Just a moment..."
	assert.False(t, isBotProtected(html))
}
