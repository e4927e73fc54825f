// Package app wires the service components together and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwrona/receiptor/internal/access"
	"github.com/mwrona/receiptor/internal/api"
	"github.com/mwrona/receiptor/internal/config"
	"github.com/mwrona/receiptor/internal/dkim"
	"github.com/mwrona/receiptor/internal/mailer"
	"github.com/mwrona/receiptor/internal/metrics"
	"github.com/mwrona/receiptor/internal/schema"
	"github.com/mwrona/receiptor/internal/store"
	"github.com/mwrona/receiptor/internal/templates"
	"github.com/mwrona/receiptor/internal/wizard"
)

// App is the main application.
type App struct {
	config    *config.Config
	store     *store.Store
	sessions  *wizard.MemorySessionStore
	wizard    *wizard.Wizard
	apiServer *api.Server
	metrics   *metrics.Metrics
	logger    *slog.Logger
	version   string
}

// dispatcherAdapter bridges the wizard's outbound type to the mailer.
type dispatcherAdapter struct {
	mailer *mailer.Mailer
}

func (d dispatcherAdapter) Send(ctx context.Context, out *wizard.Outbound) error {
	return d.mailer.Send(ctx, &mailer.Message{
		FromName: out.FromName,
		To:       out.To,
		Subject:  out.Subject,
		HTML:     out.HTML,
	})
}

// gateAdapter bridges the access gate to the wizard's boolean check.
type gateAdapter struct {
	gate *access.Gate
}

func (g gateAdapter) Check(ctx context.Context, userID string) (bool, string) {
	res := g.gate.Check(ctx, userID)
	return res.Allowed, res.Reason
}

// New creates the application from configuration.
func New(cfg *config.Config, version string) (*App, error) {
	logger := setupLogger(cfg.Logging)

	st, err := store.Open(cfg.Storage.Path, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Hostname: cfg.Server.Hostname,
		Timeout:  cfg.SMTP.Timeout,
	}, logger.With("component", "mailer"))

	if cfg.SMTP.DKIM.Enabled {
		signer, err := dkim.NewSignerFromFile(cfg.SMTP.DKIM.KeyFile, cfg.SMTP.DKIM.Domain, cfg.SMTP.DKIM.Selector)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to load DKIM signer: %w", err)
		}
		m.SetSigner(signer)
		logger.Info("DKIM signing enabled",
			"domain", cfg.SMTP.DKIM.Domain,
			"selector", cfg.SMTP.DKIM.Selector,
		)
	}

	sessions := wizard.NewMemorySessionStore()

	wiz := wizard.New(wizard.Config{
		Sessions:   sessions,
		Profiles:   st,
		Usage:      st,
		Gate:       gateAdapter{gate: access.NewGate(st, st)},
		Dispatcher: dispatcherAdapter{mailer: m},
		LoadDoc:    templates.Load,
		Logger:     logger.With("component", "wizard"),
	})

	var met *metrics.Metrics
	if cfg.Metrics.Enabled {
		met = metrics.New(sessions.Len)
	}

	apiServer := api.NewServer(wiz, st, met, &cfg.API, version, logger.With("component", "api"))

	return &App{
		config:    cfg,
		store:     st,
		sessions:  sessions,
		wizard:    wiz,
		apiServer: apiServer,
		metrics:   met,
		logger:    logger,
		version:   version,
	}, nil
}

// Run starts the servers and blocks until a shutdown signal or a server
// error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.announce(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// announce logs the service introduction once, guarded by a persisted
// marker so restarts stay quiet. Resetting the tracker repeats it.
func (a *App) announce(ctx context.Context) {
	const marker = "announced"
	if a.store.HasMarker(ctx, marker) {
		return
	}

	a.logger.Info("receipt wizard available",
		"templates", strings.Join(schema.IDs(), ", "),
		"hint", "submit settings once to pre-fill name and address fields",
	)
	if err := a.store.SetMarker(ctx, marker); err != nil {
		a.logger.Warn("saving announcement marker failed", "error", err)
	}
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
