package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"jobboard-engine/internal/domain"
)

const errCancelled = "cancelled"

type BulkOptions struct {
	Concurrency int
	MaxURLs     int

	// per-host throttle; HostRPS <= 0 disables it
	HostRPS   float64
	HostBurst int
}

func (o BulkOptions) withDefaults() BulkOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.MaxURLs <= 0 {
		o.MaxURLs = 50
	}
	if o.HostBurst <= 0 {
		o.HostBurst = 1
	}
	return o
}

// BulkItem is the outcome for one URL of a batch. Exactly one of Job or Error is set.
type BulkItem struct {
	URL          string               `json:"url"`
	Job          *domain.ValidatedJob `json:"job,omitempty"`
	FetchWarning string               `json:"fetchWarning,omitempty"`
	Error        string               `json:"error,omitempty"`
	ErrorKind    domain.ErrorKind     `json:"errorKind,omitempty"`
	ManualEntry  bool                 `json:"manualEntry,omitempty"`
}

func (b BulkItem) Cancelled() bool { return b.Error == errCancelled }

// NormalizeURLs trims, drops blanks and duplicates, and caps the list at max.
func NormalizeURLs(urls []string, max int) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// ParseMany runs Parse over urls with at most Concurrency in flight. Results
// keep the order of the normalized input. onItem, if set, is called once per
// URL as it finishes (serialized, not in input order).
//
// Cancelling ctx stops new URLs from starting; ones already running finish on
// their own timeouts. URLs that never started come back with Error "cancelled".
func (p *Pipeline) ParseMany(ctx context.Context, urls []string, onItem func(i int, item BulkItem)) []BulkItem {
	urls = NormalizeURLs(urls, p.bulk.MaxURLs)
	out := make([]BulkItem, len(urls))

	var mu sync.Mutex
	emit := func(i int, item BulkItem) {
		out[i] = item
		if onItem != nil {
			mu.Lock()
			onItem(i, item)
			mu.Unlock()
		}
	}

	// no derived context: one URL failing must not cancel the others
	var g errgroup.Group
	g.SetLimit(p.bulk.Concurrency)

	for i, u := range urls {
		if ctx.Err() != nil {
			emit(i, BulkItem{URL: u, Error: errCancelled})
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				emit(i, BulkItem{URL: u, Error: errCancelled})
				return nil
			}
			if err := p.limiter.WaitURL(ctx, u); err != nil {
				emit(i, BulkItem{URL: u, Error: errCancelled})
				return nil
			}
			emit(i, p.parseOne(context.WithoutCancel(ctx), u))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) parseOne(ctx context.Context, u string) BulkItem {
	item := BulkItem{URL: u}

	res, err := p.Parse(ctx, u)
	if err != nil {
		var fe *FetchError
		switch {
		case errors.As(err, &fe):
			item.Error = fe.Message
			item.ErrorKind = fe.Kind
			item.ManualEntry = fe.ManualEntry()
		case errors.Is(err, ErrInvalidURL):
			item.Error = "Invalid URL format"
		default:
			item.Error = ErrExtraction.Error()
		}
		return item
	}

	item.Job = &res.Job
	item.FetchWarning = res.FetchWarning
	return item
}
