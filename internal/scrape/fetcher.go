// Package scrape retrieves job-posting pages and reduces them to the plain text
// the field extractor works from.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobboard-engine/internal/domain"
	"jobboard-engine/internal/scrape/util"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Options configures a Fetcher. Zero fields fall back to DefaultOptions.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	UserAgent    string

	// HTTPClient is copied; its redirect policy is replaced.
	HTTPClient *http.Client
}

func DefaultOptions() Options {
	return Options{
		Timeout:      20 * time.Second,
		MaxRedirects: 5,
		MaxBodyBytes: 5 << 20,
		UserAgent:    DefaultUserAgent,
	}
}

type Fetcher struct {
	opts Options
	hc   *http.Client
	now  func() time.Time
}

func NewFetcher(opts Options) *Fetcher {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = def.MaxRedirects
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = def.MaxBodyBytes
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = def.UserAgent
	}

	hc := &http.Client{}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		hc = &c
	}
	// redirects are chased by hand in Fetch
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	return &Fetcher{opts: opts, hc: hc, now: time.Now}
}

// expiring listings on this board 302 to a search page instead of 404ing
func isExpiryProneURL(u string) bool {
	return strings.Contains(u, "linkedin.com/jobs/view/")
}

func isExpiredRedirect(location string) bool {
	return strings.Contains(location, "expired_jd_redirect") || strings.Contains(location, "/jobs/search")
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Fetch never returns a Go error: every failure is reported through
// FetchResult.ErrorKind with a message meant for the end user.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) domain.FetchResult {
	res := domain.FetchResult{FinalURL: rawURL, FetchedAt: f.now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	current := rawURL
	for hop := 0; ; hop++ {
		resp, err := f.get(ctx, current)
		if err != nil {
			log.Printf("[fetch] url=%q err=%v", current, err)
			return fail(res, domain.ErrorNetwork, networkMessage(err))
		}

		if isRedirect(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			drain(resp)
			if loc == "" {
				res.FinalURL = current
				return fail(res, domain.ErrorHTTP, httpStatusMessage(resp.StatusCode))
			}
			next, err := resolve(current, loc)
			if err != nil {
				res.FinalURL = current
				return fail(res, domain.ErrorHTTP, httpStatusMessage(resp.StatusCode))
			}
			if isExpiryProneURL(current) && isExpiredRedirect(loc) {
				res.FinalURL = next
				return fail(res, domain.ErrorHTTP, msgExpired)
			}
			if hop >= f.opts.MaxRedirects {
				log.Printf("[fetch] url=%q too many redirects (%d)", rawURL, hop+1)
				res.FinalURL = current
				return fail(res, domain.ErrorHTTP, msgTooManyHops)
			}
			current = next
			continue
		}

		res.FinalURL = current
		return f.read(res, resp)
	}
}

func (f *Fetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	return f.hc.Do(req)
}

// read turns a final (non-redirect) response into a FetchResult.
func (f *Fetcher) read(res domain.FetchResult, resp *http.Response) domain.FetchResult {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[fetch] url=%q status=%d", res.FinalURL, resp.StatusCode)
		return fail(res, domain.ErrorHTTP, httpStatusMessage(resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		log.Printf("[fetch] url=%q read body: %v", res.FinalURL, err)
		return fail(res, domain.ErrorNetwork, networkMessage(err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		// x/net/html is very forgiving; this is close to unreachable
		return fail(res, domain.ErrorEmptyContent, msgEmptyContent)
	}

	res.Title = PageTitle(doc)
	if DetectBotProtection(string(raw), res.Title) {
		log.Printf("[fetch] url=%q bot protection detected", res.FinalURL)
		return fail(res, domain.ErrorBotProtection, msgBotProtection)
	}

	jsonLD := ExtractJobPostingLD(doc)
	og := OpenGraphDescription(doc)
	body := BodyText(doc)

	res.Text = ComposeText(jsonLD, og, body)
	if util.RuneLen(res.Text) < minUsefulChars {
		return fail(res, domain.ErrorEmptyContent, msgEmptyContent)
	}
	return res
}

func fail(res domain.FetchResult, kind domain.ErrorKind, msg string) domain.FetchResult {
	res.ErrorKind = kind
	res.FetchError = msg
	return res
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("bad location %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
