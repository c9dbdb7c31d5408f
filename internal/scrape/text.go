package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobboard-engine/internal/scrape/util"
)

// sections shorter than this (in characters) are treated as noise
const minUsefulChars = 100

const sectionSep = "\n\n---\n\n"

// BodyText strips non-content subtrees from doc (in place) and returns the
// remaining body text as a single line, every whitespace run collapsed to one
// space. Evidence quoted across block boundaries still matches it.
func BodyText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, iframe, svg, nav, footer, header").Remove()
	doc.Find(`[style*="display:none"], [style*="display: none"], [hidden]`).Remove()
	return util.CleanText(doc.Find("body").Text())
}

// ComposeText joins the structured-data block, the OpenGraph description and
// the body text, most structured first. The last two only count when longer
// than minUsefulChars.
func ComposeText(jsonLD, ogDescription, body string) string {
	var parts []string
	if jsonLD != "" {
		parts = append(parts, jsonLD)
	}
	if util.RuneLen(ogDescription) > minUsefulChars {
		parts = append(parts, ogDescription)
	}
	if util.RuneLen(body) > minUsefulChars {
		parts = append(parts, body)
	}
	return strings.Join(parts, sectionSep)
}
