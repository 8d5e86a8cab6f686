package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"delified/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"
)

//go:embed sql/*.sql
var files embed.FS

// Runner applies the embedded postgres schema to a bun database. The
// underlying migrator is built lazily on first use.
type Runner struct {
	db  *bun.DB
	log *logger.Logger
	m   *migrate.Migrate
	src source.Driver
}

func NewRunner(db *bun.DB, log *logger.Logger) *Runner {
	return &Runner{db: db, log: log}
}

func (r *Runner) migrator() (*migrate.Migrate, error) {
	if r.m != nil {
		return r.m, nil
	}

	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("open embedded schema: %w", err)
	}
	drv, err := postgres.WithInstance(r.db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, fmt.Errorf("build migrator: %w", err)
	}
	r.m, r.src = m, src
	return m, nil
}

// changed treats "nothing to do" as success.
func changed(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// previous returns the version before v, or database.NilVersion when v is the
// first file.
func (r *Runner) previous(v uint) (int, error) {
	prev, err := r.src.Prev(v)
	if errors.Is(err, fs.ErrNotExist) {
		return database.NilVersion, nil
	}
	if err != nil {
		return 0, err
	}
	return int(prev), nil
}

// MigrateUp applies every pending file. A dirty schema left by a crashed
// deploy is rolled back to the last clean version so the failed file runs again.
func (r *Runner) MigrateUp() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case dirty:
		prev, err := r.previous(v)
		if err != nil {
			return fmt.Errorf("find version before %d: %w", v, err)
		}
		r.log.Warn("MIGRATE", fmt.Sprintf("schema dirty at version %d, forcing %d and retrying", v, prev))
		if err := m.Force(prev); err != nil {
			return fmt.Errorf("force version %d: %w", prev, err)
		}
	}

	if err := changed(m.Up()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		r.log.LogDatabase("MIGRATE", "schema_migrations", fmt.Sprintf("at version %d", v))
	}
	return nil
}

func (r *Runner) MigrateDown() error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := changed(m.Down()); err != nil {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// MigrateTo moves the schema up or down to exactly version.
func (r *Runner) MigrateTo(version uint) error {
	m, err := r.migrator()
	if err != nil {
		return err
	}
	if err := changed(m.Migrate(version)); err != nil {
		return fmt.Errorf("migrate to %d: %w", version, err)
	}
	return nil
}

// Version reports the applied version and dirty flag; an empty schema is 0.
func (r *Runner) Version() (uint, bool, error) {
	m, err := r.migrator()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the migrator. The postgres driver also closes the *sql.DB
// it wraps, so call it only when the database is done with.
func (r *Runner) Close() error {
	if r.m == nil {
		return nil
	}
	srcErr, dbErr := r.m.Close()
	r.m, r.src = nil, nil
	return errors.Join(srcErr, dbErr)
}
