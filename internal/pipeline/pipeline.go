// Package pipeline runs fetch, extract and verify for one URL, and for batches
// of URLs on a small worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"jobboard-engine/internal/domain"
	"jobboard-engine/internal/extract"
	"jobboard-engine/internal/scrape/util"
	"jobboard-engine/internal/verify"
)

var (
	ErrInvalidURL = errors.New("invalid URL")

	// ErrExtraction wraps any model failure. It is never a soft failure.
	ErrExtraction = errors.New("failed to extract job details")
)

// PageFetcher is satisfied by *scrape.Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) domain.FetchResult
}

// FetchError is returned when the page produced no text at all.
type FetchError struct {
	Kind      domain.ErrorKind
	Message   string
	FinalURL  string
	FetchedAt time.Time
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func (e *FetchError) ManualEntry() bool { return e.Kind.ManualEntry() }

type Result struct {
	Job domain.ValidatedJob `json:"job"`

	// FetchWarning carries a fetch problem that still left some text to work
	// with (e.g. empty_content with a short JSON-LD block).
	FetchWarning string `json:"fetchWarning,omitempty"`
}

type Pipeline struct {
	fetcher   PageFetcher
	extractor extract.Extractor
	bulk      BulkOptions
	limiter   *util.HostLimiter
}

func New(f PageFetcher, x extract.Extractor, bulk BulkOptions) *Pipeline {
	bulk = bulk.withDefaults()
	var lim *util.HostLimiter
	if bulk.HostRPS > 0 {
		lim = util.NewHostLimiter(bulk.HostRPS, bulk.HostBurst)
	}
	return &Pipeline{fetcher: f, extractor: x, bulk: bulk, limiter: lim}
}

// Parse fetches rawURL, asks the model for fields, and keeps only the ones
// backed by evidence in the fetched text. Errors are *FetchError, ErrInvalidURL
// or ErrExtraction (wrapped).
func (p *Pipeline) Parse(ctx context.Context, rawURL string) (Result, error) {
	u, err := util.ParseHTTPURL(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	page := p.fetcher.Fetch(ctx, u.String())
	if page.Failed() && page.Text == "" {
		return Result{}, &FetchError{
			Kind:      page.ErrorKind,
			Message:   page.FetchError,
			FinalURL:  page.FinalURL,
			FetchedAt: page.FetchedAt,
		}
	}

	raw, err := p.extractor.Extract(ctx, page.Text, page.Title, page.FinalURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	job := verify.Validate(raw, page.Text, page.FetchedAt, page.FinalURL)
	log.Printf("[pipeline] url=%q verified=%t warning=%q", page.FinalURL, job.IsVerified, page.ErrorKind)

	return Result{Job: job, FetchWarning: page.FetchError}, nil
}
