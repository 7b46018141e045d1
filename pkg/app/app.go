// Package app wires the sign-engine object graph shared by the server and
// the signctl CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/config"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/ranking"
	"github.com/menkyo-prep/sign-engine/pkg/repositories"
	"github.com/menkyo-prep/sign-engine/pkg/retry"
	"github.com/menkyo-prep/sign-engine/pkg/search"
	"github.com/menkyo-prep/sign-engine/pkg/services"
)

// App holds the long-lived dependencies of a running process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *database.DB
	Redis    *redis.Client
	Resolver services.SignImageResolver
	Usage    services.UsageRecorder
	Keywords services.KeywordService
	// Search is nil when no external provider is configured.
	Search search.Provider
}

// NewLogger builds the process logger: JSON in production, console otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	logConfig := zap.NewDevelopmentConfig()
	return logConfig.Build()
}

// Connect opens the catalog pool, retrying transient startup failures.
func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	dbCfg := &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	}
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, dbCfg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w",
			logging.SanitizeConnectionString(dbCfg.URL), err)
	}
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))
	return db, nil
}

// Migrate applies pending schema migrations.
func Migrate(cfg *config.Config, logger *zap.Logger) error {
	return withSQL(cfg, func(db *sql.DB) error {
		return database.RunMigrations(db, cfg.MigrationsPath, logger)
	})
}

// Rollback reverts the last steps schema migrations.
func Rollback(cfg *config.Config, steps int, logger *zap.Logger) error {
	return withSQL(cfg, func(db *sql.DB) error {
		return database.RollbackMigrations(db, cfg.MigrationsPath, steps, logger)
	})
}

// withSQL opens a database/sql handle, which golang-migrate requires.
func withSQL(cfg *config.Config, fn func(db *sql.DB) error) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB)
}

// New connects to the stores and assembles the resolution pipeline.
// Redis and the external search provider are optional.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	a.Redis, err = database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, external results will not be cached",
			zap.String("error", logging.SanitizeError(err)))
		a.Redis = nil
	}

	google, err := search.NewGoogleClient(cfg.Search, logger)
	switch {
	case err == nil:
		a.Search = search.NewCachedProvider(google, a.Redis, cfg.Search.CacheTTL, logger)
	case errors.Is(err, apperrors.ErrProviderUnavailable):
		logger.Info("External image search disabled (no API key or engine id)")
	default:
		a.Close()
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	tokenizer, err := ranking.NewTokenizer()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	getScope := database.NewScopeFunc(db)
	signRepo := repositories.NewSignImageRepository()
	keywordRepo := repositories.NewKeywordRepository()

	a.Usage = services.NewUsageRecorder(signRepo, getScope, cfg.Resolver.UsageTimeout, logger)
	a.Keywords = services.NewKeywordService(keywordRepo, getScope, logger)
	a.Resolver = services.NewSignImageResolver(
		signRepo,
		services.NewSignCodeExtractor(keywordRepo, signRepo, logger),
		services.NewSignCodeMatcher(signRepo, logger),
		ranking.NewTokenOverlapRanker(tokenizer),
		a.Search,
		a.Usage,
		getScope,
		cfg.Resolver,
		logger,
	)

	return a, nil
}

// ImportSeed loads the configured keyword seed file, if any.
func (a *App) ImportSeed(ctx context.Context) error {
	if a.Config.Keywords.SeedFile == "" {
		return nil
	}
	_, err := a.Keywords.ImportFile(ctx, a.Config.Keywords.SeedFile)
	return err
}

// Close waits for pending usage writes and releases connections.
func (a *App) Close() {
	if a.Usage != nil {
		a.Usage.Wait()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
