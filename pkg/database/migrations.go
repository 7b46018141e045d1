package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations applies pending migrations from migrationsPath.
// Idempotent: only pending migrations run.
func RunMigrations(db *sql.DB, migrationsPath string, logger *zap.Logger) error {
	return withMigrate(db, migrationsPath, logger, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("No migrations to apply (database up-to-date)")
				return nil
			}
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logMigrationVersion(m, logger, "Applied migrations successfully")
		return nil
	})
}

// RollbackMigrations reverts the most recent steps migrations.
func RollbackMigrations(db *sql.DB, migrationsPath string, steps int, logger *zap.Logger) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	return withMigrate(db, migrationsPath, logger, func(m *migrate.Migrate) error {
		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("No migrations to roll back")
				return nil
			}
			return fmt.Errorf("failed to roll back migrations: %w", err)
		}
		logMigrationVersion(m, logger, "Rolled back migrations")
		return nil
	})
}

func withMigrate(db *sql.DB, migrationsPath string, logger *zap.Logger, fn func(m *migrate.Migrate) error) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	return fn(m)
}

func logMigrationVersion(m *migrate.Migrate, logger *zap.Logger, msg string) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info(msg, zap.String("version", "none"))
		return
	}
	logger.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
}
