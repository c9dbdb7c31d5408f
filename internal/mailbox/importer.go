// Package mailbox turns job-alert mails into board entries: it reads unseen
// messages over IMAP, pulls job links out of them, runs the links through the
// bulk pipeline and appends the results to a board.
package mailbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"

	"jobboard-engine/internal/events"
	"jobboard-engine/internal/pipeline"
	"jobboard-engine/internal/scrape/util"
	"jobboard-engine/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("mail import already running")
	ErrNoBoard        = errors.New("email.board is not set")
)

// BulkParser is satisfied by *pipeline.Pipeline.
type BulkParser interface {
	ParseMany(ctx context.Context, urls []string, onItem func(i int, item pipeline.BulkItem)) []pipeline.BulkItem
}

type Options struct {
	Board              string
	MaxMessages        int
	MaxLinksPerMessage int
	// links handed to the pipeline per run; messages past the cap wait for the next run
	MaxURLs    int
	SubjectAny []string
	// unseen mail older than this is ignored
	Lookback time.Duration
	// RunLock is held for the length of a run. Importers sharing one never
	// overlap; nil gives the importer its own.
	RunLock *sync.Mutex
}

func (o Options) withDefaults() Options {
	if o.MaxMessages <= 0 {
		o.MaxMessages = 25
	}
	if o.MaxLinksPerMessage <= 0 {
		o.MaxLinksPerMessage = 10
	}
	if o.MaxURLs <= 0 {
		o.MaxURLs = 50
	}
	if o.Lookback <= 0 {
		o.Lookback = 90 * 24 * time.Hour
	}
	if o.RunLock == nil {
		o.RunLock = new(sync.Mutex)
	}
	return o
}

// Status is the last-run snapshot served by /api/mail/status.
type Status struct {
	LastRunAt string  `json:"last_run_at"`
	LastOkAt  string  `json:"last_ok_at"`
	LastError string  `json:"last_error"`
	LastAdded int     `json:"last_added"`
	Running   bool    `json:"running"`
	Last      Summary `json:"last"`
}

// Summary counts what one run did.
type Summary struct {
	Messages int `json:"messages"`
	Skipped  int `json:"skipped"`
	Links    int `json:"links"`
	Known    int `json:"known"`
	Added    int `json:"added"`
	Failed   int `json:"failed"`
}

type Importer struct {
	dial   Dialer
	parser BulkParser
	db     *sql.DB
	hub    *events.Hub
	opts   Options
	now    func() time.Time

	mu     sync.Mutex
	status Status
}

func NewImporter(dial Dialer, parser BulkParser, db *sql.DB, hub *events.Hub, opts Options) *Importer {
	return &Importer{
		dial:   dial,
		parser: parser,
		db:     db,
		hub:    hub,
		opts:   opts.withDefaults(),
		now:    time.Now,
	}
}

func (im *Importer) Status() Status {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.status
}

// RunOnce does one import pass. Only one pass runs at a time across every
// importer sharing the RunLock; a concurrent call gets ErrAlreadyRunning.
func (im *Importer) RunOnce(ctx context.Context) (Summary, error) {
	if !im.opts.RunLock.TryLock() {
		return Summary{}, ErrAlreadyRunning
	}
	defer im.opts.RunLock.Unlock()

	im.mu.Lock()
	im.status.Running = true
	im.status.LastRunAt = im.now().UTC().Format(time.RFC3339)
	im.mu.Unlock()

	sum, err := im.run(ctx)

	im.mu.Lock()
	now := im.now().UTC().Format(time.RFC3339)
	im.status.Running = false
	im.status.LastRunAt = now
	im.status.LastAdded = sum.Added
	im.status.Last = sum
	if err != nil {
		im.status.LastError = err.Error()
	} else {
		im.status.LastError = ""
		im.status.LastOkAt = now
	}
	im.mu.Unlock()

	if err != nil {
		log.Printf("[mail] run failed: %v", err)
	} else {
		log.Printf("[mail] messages=%d skipped=%d links=%d known=%d added=%d failed=%d",
			sum.Messages, sum.Skipped, sum.Links, sum.Known, sum.Added, sum.Failed)
	}
	im.hub.Emit("", im.opts.Board, events.TypeMailImport, sum)
	return sum, err
}

func (im *Importer) run(ctx context.Context) (Summary, error) {
	var sum Summary
	board := im.opts.Board
	if board == "" {
		return sum, ErrNoBoard
	}

	existing, err := im.knownLinks(ctx, board)
	if err != nil {
		return sum, err
	}

	mb, err := im.dial(ctx)
	if err != nil {
		return sum, err
	}
	defer func() { _ = mb.Close() }()

	raws, err := mb.FetchUnseen(ctx, im.opts.MaxMessages, im.now().Add(-im.opts.Lookback))
	if err != nil {
		return sum, err
	}

	var (
		processed []imap.UID
		urls      []string
		queued    = map[string]struct{}{}
	)

	for _, raw := range raws {
		msg, err := ParseMessage(raw.Data)
		if err != nil {
			log.Printf("[mail] uid=%d unreadable: %v", raw.UID, err)
			processed = append(processed, raw.UID)
			sum.Skipped++
			continue
		}
		if !subjectMatches(msg.Subject, im.opts.SubjectAny) {
			processed = append(processed, raw.UID)
			sum.Skipped++
			continue
		}

		var fresh []string
		for _, u := range FilterJobLinks(ExtractLinks(msg.Text, msg.HTML), im.opts.MaxLinksPerMessage) {
			if _, ok := existing[u]; ok {
				sum.Known++
				continue
			}
			if _, ok := queued[u]; ok {
				continue
			}
			fresh = append(fresh, u)
		}
		if len(urls)+len(fresh) > im.opts.MaxURLs && len(urls) > 0 {
			break
		}

		for _, u := range fresh {
			queued[u] = struct{}{}
		}
		urls = append(urls, fresh...)
		processed = append(processed, raw.UID)
		sum.Messages++
	}
	sum.Links = len(urls)

	if len(urls) > 0 {
		items := im.parser.ParseMany(ctx, urls, nil)

		var jobs []store.Job
		for _, it := range items {
			if it.Cancelled() {
				// leave the mails unseen so the next run picks them up again
				if err := ctx.Err(); err != nil {
					return sum, err
				}
				return sum, errors.New("mail import interrupted")
			}
			if it.Job == nil {
				sum.Failed++
				log.Printf("[mail] url=%q error=%q", it.URL, it.Error)
				continue
			}
			if _, ok := existing[util.CanonicalizeURL(it.Job.FinalURL)]; ok {
				sum.Known++
				continue
			}
			jobs = append(jobs, store.JobFromValidated(*it.Job))
		}

		if err := im.addJobs(ctx, board, jobs, &sum); err != nil {
			return sum, err
		}
	}

	if err := mb.MarkSeen(ctx, processed); err != nil {
		return sum, fmt.Errorf("mark seen: %w", err)
	}
	return sum, nil
}

func (im *Importer) addJobs(ctx context.Context, board string, jobs []store.Job, sum *Summary) error {
	for len(jobs) > 0 {
		n := min(len(jobs), store.MaxJobsPerRequest)
		added, err := store.AddJobs(ctx, im.db, board, jobs[:n])
		if err != nil {
			return fmt.Errorf("add jobs: %w", err)
		}
		for _, j := range added {
			im.hub.Emit("", board, events.TypeJobAdded, j)
		}
		sum.Added += len(added)
		jobs = jobs[n:]
	}
	return nil
}

// knownLinks returns the canonical links already on the board, so re-runs
// and overlapping alert mails do not add the same posting twice.
func (im *Importer) knownLinks(ctx context.Context, board string) (map[string]struct{}, error) {
	jobs, err := store.ListJobs(ctx, im.db, board, "position")
	if err != nil {
		return nil, fmt.Errorf("load board %q: %w", board, err)
	}
	out := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		out[util.CanonicalizeURL(j.Link)] = struct{}{}
	}
	return out, nil
}
