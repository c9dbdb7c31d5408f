package httpapi

import (
	"context"
	"database/sql"
	"sync/atomic"

	"jobboard-engine/internal/config"
	"jobboard-engine/internal/events"
	"jobboard-engine/internal/mailbox"
	"jobboard-engine/internal/pipeline"
)

// JobParser is the pipeline as the handlers see it.
type JobParser interface {
	Parse(ctx context.Context, rawURL string) (pipeline.Result, error)
	ParseMany(ctx context.Context, urls []string, onItem func(i int, item pipeline.BulkItem)) []pipeline.BulkItem
}

// MailRunner is the mailbox importer as the handlers see it.
type MailRunner interface {
	RunOnce(ctx context.Context) (mailbox.Summary, error)
	Status() mailbox.Status
}

type Deps struct {
	// Ctx bounds background work started by handlers (mail runs).
	// Defaults to context.Background.
	Ctx context.Context

	DB *sql.DB

	Hub *events.Hub

	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Parser returns the pipeline for the current config and credentials.
	// It fails with extract.ErrAPIKeyNotSet until a key is configured.
	Parser func() (JobParser, error)

	// Reload is called after config or secrets change so the caller can
	// rebuild the pipeline and mail importer. Optional.
	Reload func(cfg config.Config)

	// Mail returns the current importer, or nil when email import is off.
	Mail func() MailRunner
}

func (d Deps) cfg() config.Config {
	if d.CfgVal == nil {
		return config.Default()
	}
	if c, ok := d.CfgVal.Load().(config.Config); ok {
		return c
	}
	return config.Default()
}

func (d Deps) ctx() context.Context {
	if d.Ctx == nil {
		return context.Background()
	}
	return d.Ctx
}

func (d Deps) reload(cfg config.Config) {
	if d.Reload != nil {
		d.Reload(cfg)
	}
}
