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
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/app"
	"github.com/menkyo-prep/sign-engine/pkg/config"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/handlers"
	"github.com/menkyo-prep/sign-engine/pkg/logging"
	mcpserver "github.com/menkyo-prep/sign-engine/pkg/mcp"
	"github.com/menkyo-prep/sign-engine/pkg/mcp/tools"
	"github.com/menkyo-prep/sign-engine/pkg/middleware"
	"github.com/menkyo-prep/sign-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Log startup configuration
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("redis", cfg.Redis.Host),
		zap.Bool("external_search", cfg.Search.IsAvailable()))

	if err := app.Migrate(cfg, logger); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ImportSeed(ctx); err != nil {
		return fmt.Errorf("failed to import keyword seed: %w", err)
	}
	if cfg.Keywords.Watch && cfg.Keywords.SeedFile != "" {
		watcher := services.NewKeywordSeedWatcher(a.Keywords, cfg.Keywords.SeedFile, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("Keyword seed watcher stopped", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScope(a.DB, logger))

	// Register handlers
	handlers.NewHealthHandler(cfg, a.DB, logger).RegisterRoutes(mux)
	handlers.NewSignImagesHandler(a.Resolver, a.Usage, logger).RegisterRoutes(mux, scope)

	mcpSrv := mcpserver.NewServer("sign-engine", cfg.Version, logger)
	tools.RegisterHealthTool(mcpSrv.MCP(), cfg.Version, a.Search != nil)
	tools.RegisterSignImageTools(mcpSrv.MCP(), &tools.SignImageToolDeps{
		Resolver: a.Resolver,
		Logger:   logger,
	})
	mux.Handle("/mcp", mcpSrv.Handler())

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting sign-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
