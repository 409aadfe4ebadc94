package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/paddle/internal/adapters/http/api"
	"github.com/okian/paddle/internal/adapters/http/site"
	"github.com/okian/paddle/internal/adapters/http/swagger"
	"github.com/okian/paddle/internal/adapters/mcp"
	app "github.com/okian/paddle/internal/app"
	"github.com/okian/paddle/internal/config"
	"github.com/okian/paddle/pkg/logger"
	"github.com/okian/paddle/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(); err != nil {
		logger.Get().Error(context.Background(), "paddle exited", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	opts, err := app.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	svc := app.New(append(opts, app.WithLogger(log.Named("service")))...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go func() {
		if err := metrics.CollectSystem(ctx, systemMetricsInterval); err != nil {
			log.Warn(ctx, "system metrics disabled", logger.Error(err))
		}
	}()

	handler, err := newRouter(cfg, svc)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store_driver", cfg.StoreDriver),
			logger.Bool("site", cfg.SiteEnabled),
			logger.Bool("mcp", cfg.MCPEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newRouter mounts the JSON API under /api, the docs, and optionally the HTML
// site at / and the MCP endpoint at /mcp.
func newRouter(cfg *config.Config, svc *app.Service) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	apiServer := api.NewServer(svc, svc,
		api.WithHealthChecker(svc),
		api.WithMaxLimit(cfg.MaxLeaderboardLimit),
		api.WithRecentGames(cfg.RecentGames))
	r.Route("/api", apiServer.Register)

	if err := swagger.Register(r); err != nil {
		return nil, err
	}
	if cfg.SiteEnabled {
		site.New(svc, site.WithRecentGames(cfg.RecentGames)).Register(r)
	}
	if cfg.MCPEnabled {
		r.Handle("/mcp", mcp.Handler(mcp.NewServer(svc, version)))
	}
	return r, nil
}
