package scrape

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobboard-engine/internal/scrape/util"
)

// ExtractJobPostingLD reduces the first schema.org JobPosting found in the
// page's JSON-LD blocks to "Label: value" lines. Blocks that fail to parse are
// skipped. Returns "" when there is no JobPosting.
func ExtractJobPostingLD(doc *goquery.Document) string {
	var out string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		if jp := findJobPosting(data); jp != nil {
			out = formatJobPosting(jp)
			return out == ""
		}
		return true
	})
	return out
}

// findJobPosting walks top-level arrays and @graph containers.
func findJobPosting(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if jp := findJobPosting(item); jp != nil {
				return jp
			}
		}
	case map[string]any:
		if hasType(t["@type"], "JobPosting") {
			return t
		}
		if g, ok := t["@graph"]; ok {
			return findJobPosting(g)
		}
	}
	return nil
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func formatJobPosting(jp map[string]any) string {
	var parts []string
	add := func(label, val string) {
		if val != "" {
			parts = append(parts, label+": "+val)
		}
	}

	add("Title", ldString(jp["title"]))
	add("Description", htmlToText(ldString(jp["description"])))
	add("Employment Type", ldString(jp["employmentType"]))
	add("Date Posted", ldString(jp["datePosted"]))
	add("Location", ldLocation(jp["jobLocation"]))
	add("Company", ldName(jp["hiringOrganization"]))
	add("Salary", ldSalary(jp["baseSalary"]))

	return strings.Join(parts, "\n")
}

// ldString renders a JSON-LD scalar (or list of scalars) as text.
func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		var ss []string
		for _, x := range t {
			if s := ldString(x); s != "" {
				ss = append(ss, s)
			}
		}
		return strings.Join(ss, ", ")
	}
	return ""
}

func ldName(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return ldString(t["name"])
	case []any:
		for _, x := range t {
			if s := ldName(x); s != "" {
				return s
			}
		}
	case string:
		return strings.TrimSpace(t)
	}
	return ""
}

// ldLocation composes locality, region and country of the first jobLocation
// that has an address.
func ldLocation(v any) string {
	switch t := v.(type) {
	case []any:
		for _, x := range t {
			if s := ldLocation(x); s != "" {
				return s
			}
		}
	case map[string]any:
		switch addr := t["address"].(type) {
		case map[string]any:
			var bits []string
			for _, k := range []string{"addressLocality", "addressRegion", "addressCountry"} {
				s := ldString(addr[k])
				if s == "" {
					s = ldName(addr[k]) // country is sometimes {"@type":"Country","name":"US"}
				}
				if s != "" {
					bits = append(bits, s)
				}
			}
			return strings.Join(bits, ", ")
		case string:
			return strings.TrimSpace(addr)
		}
	}
	return ""
}

func ldSalary(v any) string {
	sal, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	currency := ldString(sal["currency"])

	var amount string
	switch val := sal["value"].(type) {
	case map[string]any:
		lo, hi := ldString(val["minValue"]), ldString(val["maxValue"])
		if lo == "" && hi == "" {
			amount = ldString(val["value"])
		} else {
			amount = lo + "-" + hi
		}
		if currency == "" {
			currency = ldString(val["currency"])
		}
	case nil:
		return ""
	default:
		amount = ldString(val)
	}
	if amount == "" {
		return ""
	}
	return strings.TrimSpace(amount + " " + currency)
}

// htmlToText flattens the HTML some boards put in description.
func htmlToText(s string) string {
	if !strings.Contains(s, "<") {
		return util.CleanText(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return util.CleanText(s)
	}
	doc.Find("br, p, li, div, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	return util.CleanText(doc.Text())
}

// OpenGraphDescription returns the trimmed og:description content, or "".
func OpenGraphDescription(doc *goquery.Document) string {
	v, _ := doc.Find(`meta[property="og:description"]`).First().Attr("content")
	return strings.TrimSpace(v)
}

// PageTitle prefers og:title over the literal <title>. Nil when neither has text.
func PageTitle(doc *goquery.Document) *string {
	og, _ := doc.Find(`meta[property="og:title"]`).First().Attr("content")
	if og = strings.TrimSpace(og); og != "" {
		return &og
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return &t
	}
	return nil
}
