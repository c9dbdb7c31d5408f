package scrape

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobboard-engine/internal/domain"
	"jobboard-engine/internal/verify"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

var longParagraph = strings.Repeat("We build tools that help small teams ship reliable software. ", 4)

func TestDetectBotProtection(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		title *string
		want  bool
	}{
		{name: "cloudflare title", title: domain.Str("Just a moment..."), want: true},
		{name: "title case-insensitive", title: domain.Str("ACCESS DENIED | example"), want: true},
		{name: "verify human", title: domain.Str("Please verify you are a human"), want: true},
		{name: "cloudflare script", html: `<script>window._cf_chl_opt={}</script>`, want: true},
		{name: "cloudflare platform", html: `<script src="/cdn-cgi/challenge-platform/h/b"></script>`, want: true},
		{name: "enable js", html: `<p>Enable JavaScript and cookies to continue</p>`, want: true},
		{name: "perimeterx", html: `<div id="px-captcha" data-perimeterx="1"></div>`, want: true},
		{name: "perimeterx cookie", html: `_pxhd=abc`, want: true},
		{name: "datadome", html: `<script src="https://ct.captcha-delivery.com/datadome.js"></script>`, want: true},
		{name: "normal page", html: `<h1>Backend Engineer</h1>`, title: domain.Str("Backend Engineer - Acme"), want: false},
		{name: "nil title", html: `<p>hello</p>`, want: false},
		{name: "html markers are case-sensitive", html: `<p>enable javascript and cookies to continue</p>`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectBotProtection(tt.html, tt.title))
		})
	}
}

func TestExtractJobPostingLD_Full(t *testing.T) {
	doc := mustDoc(t, `<html><head>
<script type="application/ld+json">{
  "@context": "https://schema.org",
  "@type": "JobPosting",
  "title": "Site Reliability Engineer",
  "description": "<p>Keep things <b>running</b>.</p><ul><li>On-call</li></ul>",
  "employmentType": ["FULL_TIME", "CONTRACTOR"],
  "datePosted": "2025-01-15",
  "jobLocation": {"@type": "Place", "address": {"addressLocality": "Denver", "addressRegion": "CO", "addressCountry": "US"}},
  "hiringOrganization": {"@type": "Organization", "name": "Initech"},
  "baseSalary": {"@type": "MonetaryAmount", "currency": "USD", "value": {"@type": "QuantitativeValue", "minValue": 120000, "maxValue": 150000}}
}</script></head><body></body></html>`)

	want := strings.Join([]string{
		"Title: Site Reliability Engineer",
		"Description: Keep things running. On-call",
		"Employment Type: FULL_TIME, CONTRACTOR",
		"Date Posted: 2025-01-15",
		"Location: Denver, CO, US",
		"Company: Initech",
		"Salary: 120000-150000 USD",
	}, "\n")
	assert.Equal(t, want, ExtractJobPostingLD(doc))
}

func TestExtractJobPostingLD_Shapes(t *testing.T) {
	tests := []struct {
		name string
		ld   []string
		want string
	}{
		{
			name: "no json-ld",
			want: "",
		},
		{
			name: "other type ignored",
			ld:   []string{`{"@type":"Organization","name":"Acme"}`},
			want: "",
		},
		{
			name: "malformed block skipped",
			ld:   []string{`{"@type": "JobPosting", "title": `, `{"@type":"JobPosting","title":"Analyst"}`},
			want: "Title: Analyst",
		},
		{
			name: "first posting wins",
			ld:   []string{`{"@type":"JobPosting","title":"First"}`, `{"@type":"JobPosting","title":"Second"}`},
			want: "Title: First",
		},
		{
			name: "top-level array",
			ld:   []string{`[{"@type":"BreadcrumbList"},{"@type":"JobPosting","title":"Welder"}]`},
			want: "Title: Welder",
		},
		{
			name: "graph container",
			ld:   []string{`{"@graph":[{"@type":"WebPage"},{"@type":"JobPosting","title":"Nurse"}]}`},
			want: "Title: Nurse",
		},
		{
			name: "type as array",
			ld:   []string{`{"@type":["Thing","JobPosting"],"title":"Chef"}`},
			want: "Title: Chef",
		},
		{
			name: "partial address",
			ld:   []string{`{"@type":"JobPosting","jobLocation":[{"address":{"addressRegion":"ON","addressCountry":{"@type":"Country","name":"CA"}}}]}`},
			want: "Location: ON, CA",
		},
		{
			name: "flat salary",
			ld:   []string{`{"@type":"JobPosting","baseSalary":{"currency":"EUR","value":55000}}`},
			want: "Salary: 55000 EUR",
		},
		{
			name: "salary without currency",
			ld:   []string{`{"@type":"JobPosting","baseSalary":{"value":{"minValue":20.5,"maxValue":25}}}`},
			want: "Salary: 20.5-25",
		},
		{
			name: "empty posting falls through to next",
			ld:   []string{`{"@type":"JobPosting"}`, `{"@type":"JobPosting","hiringOrganization":"Globex"}`},
			want: "Company: Globex",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			b.WriteString("<html><head>")
			for _, s := range tt.ld {
				b.WriteString(`<script type="application/ld+json">` + s + `</script>`)
			}
			b.WriteString("</head><body></body></html>")

			assert.Equal(t, tt.want, ExtractJobPostingLD(mustDoc(t, b.String())))
		})
	}
}

func TestPageTitle(t *testing.T) {
	doc := mustDoc(t, `<html><head><title> HTML title </title><meta property="og:title" content=" OG title "></head></html>`)
	require.NotNil(t, PageTitle(doc))
	assert.Equal(t, "OG title", *PageTitle(doc))

	doc = mustDoc(t, `<html><head><title> HTML title </title><meta property="og:title" content="  "></head></html>`)
	assert.Equal(t, "HTML title", *PageTitle(doc))

	doc = mustDoc(t, `<html><head></head><body>x</body></html>`)
	assert.Nil(t, PageTitle(doc))
}

func TestBodyText_StripsNonContent(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<header>Site header</header>
<nav>Menu</nav>
<main>
  <h1>Data   Engineer</h1>
  <p style="display:none">hidden one</p>
  <p style="color:red; display: none">hidden two</p>
  <div hidden>hidden three</div>
  <p>Build   pipelines.</p>
  <script>var x = 1;</script>
  <style>p{}</style>
  <svg><text>icon</text></svg>
</main>
<footer>Copyright</footer>
</body></html>`)

	assert.Equal(t, "Data Engineer Build pipelines.", BodyText(doc))
}

func TestComposeText(t *testing.T) {
	short := "too short"
	assert.Equal(t, "", ComposeText("", short, short))
	assert.Equal(t, "Title: X", ComposeText("Title: X", short, short))
	assert.Equal(t, "Title: X\n\n---\n\n"+longParagraph+"\n\n---\n\nbody "+longParagraph,
		ComposeText("Title: X", longParagraph, "body "+longParagraph))
}

// --- Fetch ---

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestFetcher(opts Options) *Fetcher {
	f := NewFetcher(opts)
	f.now = func() time.Time { return fixedNow }
	return f
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", r.Header.Get("Accept"))
		assert.Equal(t, "en-US,en;q=0.5", r.Header.Get("Accept-Language"))
		_, _ = w.Write([]byte(`<html><head>
<title>Platform Engineer</title>
<script type="application/ld+json">{"@type":"JobPosting","title":"Platform Engineer","hiringOrganization":{"name":"Hooli"}}</script>
</head><body><p>` + longParagraph + `</p></body></html>`))
	})

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL+"/jobs/1")

	assert.False(t, res.Failed())
	assert.Empty(t, res.FetchError)
	assert.Equal(t, srv.URL+"/jobs/1", res.FinalURL)
	assert.Equal(t, fixedNow, res.FetchedAt)
	require.NotNil(t, res.Title)
	assert.Equal(t, "Platform Engineer", *res.Title)
	assert.True(t, strings.HasPrefix(res.Text, "Title: Platform Engineer\nCompany: Hooli\n\n---\n\n"))
	assert.Contains(t, res.Text, "small teams ship reliable software")
}

func TestFetch_EvidenceAcrossBlocksVerifies(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<h1>Senior Backend Engineer</h1>
<p>Acme Robotics is hiring engineers to build warehouse automation. ` + longParagraph + `</p>
</body></html>`))
	})

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL)
	require.False(t, res.Failed())
	assert.NotContains(t, res.Text, "\n")

	title, evidence := "Senior Backend Engineer", "Senior Backend Engineer Acme Robotics is hiring"
	got := verify.Validate(domain.RawExtraction{
		Title: domain.ExtractionField{Value: &title, Evidence: &evidence},
	}, res.Text, res.FetchedAt, res.FinalURL)

	require.NotNil(t, got.Title)
	assert.Equal(t, title, *got.Title)
}

func TestFetch_HTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{401, "This page requires login or blocked our request. Try using manual entry."},
		{403, "This page requires login or blocked our request. Try using manual entry."},
		{404, "This job posting may have been removed or the link is broken."},
		{429, "Too many requests. Please wait a moment and try again."},
		{500, "The job site is having issues right now. Try again later or use manual entry."},
		{501, "The job site is having issues right now. Try again later or use manual entry."},
		{503, "The job site is having issues right now. Try again later or use manual entry."},
		{505, "The job site is having issues right now. Try again later or use manual entry."},
		{522, "The job site is having issues right now. Try again later or use manual entry."},
		{418, "Could not load this page. Try using manual entry instead."},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("<html><body>" + longParagraph + "</body></html>"))
			})

			res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL)

			assert.Equal(t, domain.ErrorHTTP, res.ErrorKind)
			assert.Equal(t, tt.want, res.FetchError)
			assert.Empty(t, res.Text)
			assert.Nil(t, res.Title)
		})
	}
}

func TestFetch_BotProtectionSkipsExtraction(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Careers</title></head><body>
<p>Enable JavaScript and cookies to continue</p><p>` + longParagraph + `</p></body></html>`))
	})

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL)

	assert.Equal(t, domain.ErrorBotProtection, res.ErrorKind)
	assert.Equal(t, "This site blocks automatic access. Please use manual entry instead.", res.FetchError)
	assert.Empty(t, res.Text)
	require.NotNil(t, res.Title)
	assert.Equal(t, "Careers", *res.Title)
}

func TestFetch_EmptyContentKeepsShortText(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head>
<script type="application/ld+json">{"@type":"JobPosting","title":"Cook"}</script>
</head><body><p>Sign in to view.</p></body></html>`))
	})

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL)

	assert.Equal(t, domain.ErrorEmptyContent, res.ErrorKind)
	assert.Equal(t, "Could not find job details on this page. It may require login or use manual entry.", res.FetchError)
	assert.Equal(t, "Title: Cook", res.Text)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + longParagraph + "</p></body></html>"))
	})
	srv := serve(t, mux.ServeHTTP)

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL+"/a")

	assert.False(t, res.Failed())
	assert.Equal(t, srv.URL+"/final", res.FinalURL)
}

// The test server's path embeds the board's detail-page pattern so the
// expired-listing rule applies to it.
func TestFetch_ExpiredListingRedirect(t *testing.T) {
	for _, loc := range []string{
		"/jobs/search?keywords=go",
		"https://www.linkedin.com/jobs/view/123?expired_jd_redirect=true",
	} {
		t.Run(loc, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", loc)
				w.WriteHeader(http.StatusFound)
			})

			res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL+"/linkedin.com/jobs/view/123")

			assert.Equal(t, domain.ErrorHTTP, res.ErrorKind)
			assert.Equal(t, "This LinkedIn job posting has expired. Please use manual entry instead.", res.FetchError)
			assert.NotContains(t, res.FinalURL, "/linkedin.com/jobs/view/123")
		})
	}
}

func TestFetch_ExpiredPatternIgnoredElsewhere(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/careers/42", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/jobs/search", http.StatusFound)
	})
	mux.HandleFunc("/jobs/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + longParagraph + "</p></body></html>"))
	})
	srv := serve(t, mux.ServeHTTP)

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL+"/careers/42")

	assert.False(t, res.Failed())
	assert.Equal(t, srv.URL+"/jobs/search", res.FinalURL)
}

func TestFetch_RedirectLoopIsBounded(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	})

	res := newTestFetcher(Options{MaxRedirects: 3}).Fetch(t.Context(), srv.URL+"/loop")

	assert.Equal(t, domain.ErrorHTTP, res.ErrorKind)
	assert.Equal(t, msgTooManyHops, res.FetchError)
	assert.Equal(t, int32(4), hits.Load())
}

func TestFetch_RedirectWithoutLocation(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL)

	assert.Equal(t, domain.ErrorHTTP, res.ErrorKind)
	assert.Equal(t, "Could not load this page. Try using manual entry instead.", res.FetchError)
}

func TestFetch_TimeoutIsNetworkError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	res := newTestFetcher(Options{Timeout: 50 * time.Millisecond}).Fetch(t.Context(), srv.URL)

	assert.Equal(t, domain.ErrorNetwork, res.ErrorKind)
	assert.Equal(t, msgTimeout, res.FetchError)
	assert.Equal(t, srv.URL, res.FinalURL)
	assert.Equal(t, fixedNow, res.FetchedAt)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	res := newTestFetcher(Options{}).Fetch(t.Context(), addr)

	assert.Equal(t, domain.ErrorNetwork, res.ErrorKind)
	assert.Equal(t, msgConnect, res.FetchError)
}

func TestFetch_UntrustedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	res := newTestFetcher(Options{}).Fetch(t.Context(), srv.URL)

	assert.Equal(t, domain.ErrorNetwork, res.ErrorKind)
	assert.Equal(t, msgSecurity, res.FetchError)
}

func TestNetworkMessage_Keywords(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"read: operation timed out", msgTimeout},
		{"network is unreachable", msgConnect},
		{"ssl handshake failure", msgSecurity},
		{"unexpected EOF", msgNetwork},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, networkMessage(errString(tt.msg)), tt.msg)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
