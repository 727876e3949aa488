package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Runner applies the engine's schema migrations (the stores directory and
// the synced order tables) through golang-migrate, reading SQL file pairs
// from a directory.
type Runner struct {
	m      *migrate.Migrate
	dir    string
	logger *zap.Logger
}

// NewRunner creates a Runner over an open Postgres connection.
func NewRunner(db *sql.DB, dir string, logger *zap.Logger) (*Runner, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration: failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration: failed to read migration source: %w", err)
	}

	return &Runner{m: m, dir: dir, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	r.logger.Info("Applying pending migrations")
	if err := r.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("migration: up failed: %w", err)
	}
	return r.logVersion("Migrations applied")
}

// Down rolls back every applied migration.
func (r *Runner) Down() error {
	r.logger.Info("Rolling back all migrations")
	if err := r.m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("migration: down failed: %w", err)
	}
	r.logger.Info("All migrations rolled back")
	return nil
}

// Steps applies n migrations, negative n rolls back.
func (r *Runner) Steps(n int) error {
	r.logger.Info("Stepping migrations", zap.Int("steps", n))
	if err := r.m.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("Schema already up to date")
			return nil
		}
		return fmt.Errorf("migration: steps failed: %w", err)
	}
	return r.logVersion("Migration steps applied")
}

// GoTo migrates up or down to the given version.
func (r *Runner) GoTo(version uint) error {
	r.logger.Info("Migrating to version", zap.Uint("target_version", version))
	if err := r.m.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("Already at target version")
			return nil
		}
		return fmt.Errorf("migration: migrate to version %d failed: %w", version, err)
	}
	return r.logVersion("Migration completed")
}

// Version returns the applied schema version, 0 when no migration has run.
func (r *Runner) Version() (uint, bool, error) {
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration: failed to read version: %w", err)
	}
	return version, dirty, nil
}

// Status describes where the schema stands relative to the migration
// files in the runner's directory.
type Status struct {
	Version uint
	Dirty   bool
	Pending []string
}

// Status reports the applied version and the file pairs not yet applied.
func (r *Runner) Status() (*Status, error) {
	version, dirty, err := r.Version()
	if err != nil {
		return nil, err
	}
	names, err := ListMigrations(r.dir)
	if err != nil {
		return nil, err
	}
	return &Status{
		Version: version,
		Dirty:   dirty,
		Pending: pendingAfter(version, names),
	}, nil
}

// pendingAfter filters migration names down to those whose version prefix
// is newer than the applied version. Names without a numeric prefix are
// kept so a malformed file surfaces in the status instead of vanishing.
func pendingAfter(applied uint, names []string) []string {
	pending := make([]string, 0, len(names))
	for _, name := range names {
		prefix, _, found := strings.Cut(name, "_")
		if found {
			if v, err := strconv.ParseUint(prefix, 10, 64); err == nil && v <= uint64(applied) {
				continue
			}
		}
		pending = append(pending, name)
	}
	return pending
}

// Force overwrites the recorded version without running any SQL. Only for
// repairing a dirty schema after a failed migration.
func (r *Runner) Force(version int) error {
	r.logger.Warn("Forcing migration version", zap.Int("version", version))
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("migration: failed to force version %d: %w", version, err)
	}
	return nil
}

// Drop removes every object in the database, synced orders included.
func (r *Runner) Drop() error {
	r.logger.Warn("Dropping all database objects")
	if err := r.m.Drop(); err != nil {
		return fmt.Errorf("migration: drop failed: %w", err)
	}
	r.logger.Info("Database dropped")
	return nil
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	sourceErr, dbErr := r.m.Close()
	if sourceErr != nil {
		return fmt.Errorf("migration: failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration: failed to close database: %w", dbErr)
	}
	return nil
}

// logVersion logs the schema version reached by the last operation.
func (r *Runner) logVersion(msg string) error {
	version, dirty, err := r.Version()
	if err != nil {
		return err
	}
	r.logger.Info(msg,
		zap.Uint("schema_version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}
