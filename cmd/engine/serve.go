package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobboard-engine/internal/config"
	"jobboard-engine/internal/httpapi"
	"jobboard-engine/internal/mailbox"
	"jobboard-engine/internal/pipeline"
	"jobboard-engine/internal/scheduler"
)

type serveOptions struct {
	*rootOptions
	Addr string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the mailbox importer when enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default 127.0.0.1:<app.port>)")
	return cmd
}

// services holds the parts rebuilt when config or credentials change.
type services struct {
	a *app

	mu       sync.RWMutex
	parser   *pipeline.Pipeline
	parseErr error
	importer *mailbox.Importer

	// cancels the running mail scheduler
	stopMail context.CancelFunc
}

func (rt *services) Parser() (httpapi.JobParser, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.parser == nil {
		return nil, rt.parseErr
	}
	return rt.parser, nil
}

func (rt *services) Mail() httpapi.MailRunner {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.importer == nil {
		return nil
	}
	return rt.importer
}

// Rebuild swaps in a pipeline and importer for cfg and restarts mail polling.
func (rt *services) Rebuild(ctx context.Context, cfg config.Config) {
	p, parseErr := buildPipeline(cfg)
	if parseErr != nil {
		log.Printf("[engine] pipeline unavailable: %v", parseErr)
	}

	var im *mailbox.Importer
	if p != nil {
		var err error
		if im, err = rt.a.buildImporter(cfg, p); err != nil {
			log.Printf("[engine] mail import unavailable: %v", err)
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.parser, rt.parseErr, rt.importer = p, parseErr, im
	if rt.stopMail != nil {
		rt.stopMail()
		rt.stopMail = nil
	}
	if im == nil {
		return
	}

	mailCtx, cancel := context.WithCancel(ctx)
	rt.stopMail = cancel
	go scheduler.Every(mailCtx, cfg.PollInterval(), "mail", func(ctx context.Context) error {
		_, err := im.RunOnce(ctx)
		if errors.Is(err, mailbox.ErrAlreadyRunning) {
			return nil
		}
		return err
	})
}

func runServe(ctx context.Context, opts *serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(opts.rootOptions)
	if err != nil {
		return err
	}
	defer a.Close()
	defer stop() // stop background mail runs before the db closes

	rt := &services{a: a}
	rt.Rebuild(ctx, a.cfg())

	deps := httpapi.Deps{
		Ctx:         ctx,
		DB:          a.db.Pool,
		Hub:         a.hub,
		CfgVal:      &a.cfgVal,
		UserCfgPath: a.cfgPath,
		LoadCfg:     a.loadConfig,
		Parser:      rt.Parser,
		Reload:      func(cfg config.Config) { rt.Rebuild(ctx, cfg) },
		Mail:        rt.Mail,
	}
	mux := httpapi.NewMux(deps)

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.RequestID, httpapi.Recover, httpapi.AccessLog, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// a supervising process reads this token to stop the engine cleanly
	token, err := randomToken(16)
	if err != nil {
		return err
	}
	tokenPath := filepath.Join(a.dataDir, "engine.token")
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tokenPath, err)
	}
	defer os.Remove(tokenPath)
	mux.HandleFunc("/shutdown", shutdownHandler(token, srv))

	addr := opts.Addr
	if addr == "" {
		addr = net.JoinHostPort("127.0.0.1", strconv.Itoa(a.cfg().App.Port))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	log.Printf("[engine] listening on http://%s (data=%s)", ln.Addr(), a.dataDir)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[engine] shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
