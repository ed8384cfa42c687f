// Package app provides the top-level application lifecycle for the market
// ledger daemon. It wires together the ledger core, durable event sinks,
// the archiver, and the API server, and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketcore/internal/config"
	"github.com/alanyoungcy/marketcore/internal/server"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
)

// shutdownTimeout bounds how long in-flight HTTP requests may run after the
// shutdown signal.
const shutdownTimeout = 5 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the worker
// goroutines, and blocks until the context is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
		slog.String("oracle_policy", a.cfg.Oracle.Policy),
		slog.Bool("journal", a.cfg.Postgres.Enabled()),
		slog.Bool("bus", a.cfg.Redis.Enabled),
		slog.Bool("broker", a.cfg.AMQP.Enabled),
		slog.Bool("archive", a.cfg.Archive.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	if deps.Dispatcher != nil {
		g.Go(func() error {
			return deps.Dispatcher.Run(ctx)
		})
	}

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startHTTPServer adds the API server goroutine plus a companion goroutine
// that shuts it down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var archiveLister handler.ArchiveLister
	if deps.Archiver != nil {
		archiveLister = deps.Archiver
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Markets:    handler.NewMarketHandler(deps.Registry, archiveLister, a.logger),
			Collateral: handler.NewCollateralHandler(deps.Registry, a.logger),
			Positions:  handler.NewPositionHandler(deps.Registry, a.logger),
		},
		deps.Hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
