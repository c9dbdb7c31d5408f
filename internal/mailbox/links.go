package mailbox

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobboard-engine/internal/scrape/util"
)

var (
	reURL           = regexp.MustCompile(`https?://[^\s<>"'\])]+`)
	reLinkedInJobID = regexp.MustCompile(`/(?:comm/)?jobs/view/(?:[^/]*-)?(\d+)`)
)

// ExtractLinks returns every http(s) link found in the mail: anchors from the
// HTML part first, then bare URLs in the plain text part.
func ExtractLinks(text, html string) []string {
	var out []string

	if strings.TrimSpace(html) != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				if href := strings.TrimSpace(a.AttrOr("href", "")); href != "" {
					out = append(out, href)
				}
			})
		}
	}

	for _, u := range reURL.FindAllString(text, -1) {
		out = append(out, strings.TrimRight(u, ".,;:!?\"'"))
	}
	return out
}

// host-level junk: shorteners and mail service click trackers
var denyHosts = []string{
	"lnkd.in",
	"goo.gl",
	"t.co",
	"bit.ly",
	"doubleclick.net",
	"list-manage.com",
	"mandrillapp.com",
	"sendgrid.net",
	"mailchimp.com",
}

var denySubstrings = []string{
	"unsubscribe",
	"preferences",
	"privacy",
	"terms",
	"view-in-browser",
	"viewaswebpage",
	"pixel",
	"beacon",
	"linkedin.com/jobs/search",
	"linkedin.com/comm/jobs/search",
	"linkedin.com/jobs/collections",
	"linkedin.com/jobs/alerts",
	"linkedin.com/comm/jobs/alerts",
	"linkedin.com/jobs/settings",
	"linkedin.com/comm/jobs/settings",
	"linkedin.com/comm/notifications",
	"linkedin.com/help",
	"linkedin.com/legal",
}

var allowHints = []string{
	"/jobs/",
	"/job/",
	"/career",
	"greenhouse.io",
	"lever.co",
	"myworkdayjobs.com",
	"workday",
	"icims.com",
	"smartrecruiters.com",
	"ashbyhq.com",
	"breezy.hr",
	"jobvite.com",
	"applytojob.com",
}

// FilterJobLinks unwraps redirect wrappers, canonicalizes, drops junk and
// keeps only links that look like a posting or apply page. At most max
// unique links are returned (max <= 0 means no cap).
func FilterJobLinks(urls []string, max int) []string {
	seen := map[string]struct{}{}
	var out []string

	for _, raw := range urls {
		u := unwrapRedirect(raw)
		if _, err := util.ParseHTTPURL(u); err != nil {
			continue
		}
		canon := canonicalLinkedInJob(util.CanonicalizeURL(u))
		if !looksLikeJobLink(canon) {
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, canon)

		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

func looksLikeJobLink(canon string) bool {
	lu := strings.ToLower(canon)
	host := util.HostOf(canon)
	for _, d := range denyHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false
		}
	}
	if strings.HasPrefix(host, "click.") {
		return false
	}
	for _, d := range denySubstrings {
		if strings.Contains(lu, d) {
			return false
		}
	}
	for _, a := range allowHints {
		if strings.Contains(lu, a) {
			return true
		}
	}
	return false
}

// unwrapRedirect follows ?url= style wrappers and google /url?q= links one level.
func unwrapRedirect(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	if raw := u.Query().Get("url"); raw != "" {
		if inner, err := url.Parse(raw); err == nil && inner.Host != "" {
			return inner.String()
		}
	}
	if strings.Contains(strings.ToLower(u.Host), "google.") && strings.HasPrefix(u.Path, "/url") {
		if q := u.Query().Get("q"); q != "" {
			if inner, err := url.Parse(q); err == nil && inner.Host != "" {
				return inner.String()
			}
		}
	}
	return u.String()
}

// canonicalLinkedInJob maps the many linkedin job link shapes to
// https://www.linkedin.com/jobs/view/<id>.
func canonicalLinkedInJob(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(u.Host, "linkedin.com") {
		return raw
	}
	if m := reLinkedInJobID.FindStringSubmatch(u.Path); len(m) == 2 {
		return "https://www.linkedin.com/jobs/view/" + m[1]
	}
	if id := u.Query().Get("currentJobId"); id != "" && isDigits(id) {
		return "https://www.linkedin.com/jobs/view/" + id
	}
	return raw
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// subjectMatches reports whether subject contains any of the phrases,
// case-insensitively. An empty phrase list matches everything.
func subjectMatches(subject string, any []string) bool {
	active := false
	ls := strings.ToLower(subject)
	for _, a := range any {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		active = true
		if strings.Contains(ls, strings.ToLower(a)) {
			return true
		}
	}
	return !active
}
