package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"

	"jobboard-engine/internal/config"
	"jobboard-engine/internal/events"
	"jobboard-engine/internal/extract"
	"jobboard-engine/internal/mailbox"
	"jobboard-engine/internal/pipeline"
	"jobboard-engine/internal/scrape"
	"jobboard-engine/internal/secrets"
	"jobboard-engine/internal/store"
)

var errLocked = errors.New("another engine is already using this data dir")

// app is everything a command needs: config, database, event hub and the
// data dir lock.
type app struct {
	dataDir string
	cfgPath string
	cfgVal  atomic.Value // config.Config
	db      *store.DB
	hub     *events.Hub
	lock    *flock.Flock

	// shared by every importer built from this app, so a config reload
	// cannot start a second mail run beside one still in flight
	mailRun sync.Mutex
}

// openApp loads .env, resolves the data dir, takes the lock, bootstraps the
// config file and opens the database.
func openApp(opts *rootOptions) (*app, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
		}
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = strings.TrimSpace(os.Getenv("JOBBOARD_DATA_DIR"))
	}
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data dir: %w", err)
	}
	if !ok {
		return nil, errLocked
	}

	a := &app{dataDir: dataDir, hub: events.NewHub(), lock: lock}

	a.cfgPath, err = config.EnsureUserConfig(dataDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("config bootstrap failed: %w", err)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "jobboard.db")
	a.db, err = store.Open(dbPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	return a, nil
}

// loadConfig reads the user file, applies env overrides and validates.
// Warnings are logged; errors fail the load.
func (a *app) loadConfig() (config.Config, error) {
	raw, err := config.Load(a.cfgPath)
	if err != nil {
		return raw, fmt.Errorf("config load failed (%s): %w", a.cfgPath, err)
	}
	config.OverlayEnv(&raw, os.Getenv)

	cfg, vr := config.NormalizeAndValidate(raw)
	for _, w := range vr.Warnings {
		log.Printf("[config] warning: %s", w)
	}
	if !vr.OK() {
		return cfg, fmt.Errorf("config %s is invalid:\n- %s", a.cfgPath, strings.Join(vr.Errors, "\n- "))
	}
	return cfg, nil
}

func (a *app) cfg() config.Config { return a.cfgVal.Load().(config.Config) }

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.lock != nil {
		_ = a.lock.Unlock()
	}
}

// buildPipeline wires fetcher, extractor and bulk settings from cfg. It fails
// with extract.ErrAPIKeyNotSet when no OpenAI key is available.
func buildPipeline(cfg config.Config) (*pipeline.Pipeline, error) {
	key, err := secrets.GetOpenAIKey()
	if err != nil {
		return nil, extract.ErrAPIKeyNotSet
	}

	x, err := extract.NewOpenAIExtractor(extract.Options{
		APIKey:     key,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		TextBudget: cfg.LLM.TextBudget,
		Timeout:    cfg.LLMTimeout(),
		BaseURL:    cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	f := scrape.NewFetcher(scrape.Options{
		Timeout:      cfg.FetchTimeout(),
		MaxRedirects: cfg.Fetch.MaxRedirects,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
	})

	return pipeline.New(f, x, pipeline.BulkOptions{
		Concurrency: cfg.Bulk.Concurrency,
		MaxURLs:     cfg.Bulk.MaxURLs,
		HostRPS:     cfg.Bulk.HostRPS,
		HostBurst:   cfg.Bulk.HostBurst,
	}), nil
}

// buildImporter returns nil, nil when email import is disabled.
func (a *app) buildImporter(cfg config.Config, p mailbox.BulkParser) (*mailbox.Importer, error) {
	if !cfg.Email.Enabled {
		return nil, nil
	}
	pass, err := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg))
	if err != nil {
		return nil, err
	}
	dial := mailbox.IMAPDialer(mailbox.IMAPConfig{
		Host:     cfg.Email.IMAPHost,
		Port:     cfg.Email.IMAPPort,
		Username: cfg.Email.Username,
		Password: pass,
		Folder:   cfg.Email.Mailbox,
	})
	return mailbox.NewImporter(dial, p, a.db.Pool, a.hub, mailbox.Options{
		Board:       cfg.Email.Board,
		MaxMessages: cfg.Email.MaxMessages,
		MaxURLs:     cfg.Bulk.MaxURLs,
		SubjectAny:  cfg.Email.SearchSubjectAny,
		RunLock:     &a.mailRun,
	}), nil
}
