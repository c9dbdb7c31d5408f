package scrape

import "strings"

// challenge interstitial titles, matched case-insensitively
var botTitlePhrases = []string{
	"just a moment...",
	"attention required",
	"access denied",
	"please verify you are a human",
	"checking your browser",
}

// vendor markers found in the raw HTML of challenge pages (matched as-is)
var botHTMLMarkers = []string{
	"cf_chl_opt",                  // cloudflare
	"/cdn-cgi/challenge-platform", // cloudflare
	"Enable JavaScript and cookies to continue",
	"_pxhd",      // perimeterx
	"perimeterx", // perimeterx
	"datadome",
}

// DetectBotProtection reports whether html (or its resolved title) looks like an
// anti-automation challenge page rather than real content.
func DetectBotProtection(html string, title *string) bool {
	if title != nil {
		t := strings.ToLower(*title)
		for _, p := range botTitlePhrases {
			if strings.Contains(t, p) {
				return true
			}
		}
	}
	for _, m := range botHTMLMarkers {
		if strings.Contains(html, m) {
			return true
		}
	}
	return false
}
