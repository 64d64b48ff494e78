package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const (
	migrationsDir   = "migrations"
	migrationsTable = "schema_migrations"
)

// Result describes the schema after a run.
type Result struct {
	Version uint
	Applied bool
}

// RunMigrations applies every pending boxoffice migration to a postgres
// database and reports the resulting schema version. A dirty schema is an
// error; it needs a manual force before the service can start.
func RunMigrations(db *sql.DB) (Result, error) {
	if db == nil {
		return Result{}, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return Result{}, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return Result{}, fmt.Errorf("read migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return Result{}, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return Result{}, fmt.Errorf("migrator: %w", err)
	}

	// m.Close is skipped; it would close the shared pool.
	res := Result{Applied: true}
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		res.Applied = false
	} else if err != nil {
		return Result{}, fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Result{}, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return Result{}, fmt.Errorf("schema version %d is dirty", version)
	}
	res.Version = version
	return res, nil
}
