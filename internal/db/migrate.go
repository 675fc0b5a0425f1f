package db

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationStatus describes the schema version recorded in the database.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool
}

// Migrator applies the SQL files in a migrations directory.
type Migrator struct {
	m      *migrate.Migrate
	logger *slog.Logger
}

// NewMigrator opens a golang-migrate instance for databaseURL reading *.sql
// files from dir.
func NewMigrator(databaseURL, dir string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations directory: %w", err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(abs), pgx5URL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("initialise migrations: %w", err)
	}
	m.Log = migrateLogger{logger: logger}
	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	status, err := mg.Status()
	if err != nil {
		return err
	}
	if status.Dirty {
		return fmt.Errorf("database is dirty at version %d", status.Version)
	}

	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.logger.Info("migrations already up to date", "version", status.Version)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	next, err := mg.Status()
	if err != nil {
		return err
	}
	mg.logger.Info("migrations applied", "from", status.Version, "to", next.Version)
	return nil
}

// Down rolls back a single migration step.
func (mg *Migrator) Down() error {
	if err := mg.m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

// Status reports the current schema version.
func (mg *Migrator) Status() (MigrationStatus, error) {
	version, dirty, err := mg.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty, Applied: true}, nil
}

// Close releases the source and database handles.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// pgx5URL rewrites postgres:// URLs to the pgx5:// scheme registered by the
// golang-migrate pgx/v5 driver.
func pgx5URL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l migrateLogger) Verbose() bool { return false }
