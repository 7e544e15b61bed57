// Package migrations applies jobflow's embedded schema via golang-migrate,
// grounded on the dependency OpenCHAMI/smd pulls in for the same purpose
// (other_examples/manifests/bmcdonald3-smd/go.mod). Migration files live
// under sql/ in golang-migrate's {version}_{title}.{up,down}.sql naming and
// are embedded at build time so the binary needs no filesystem access to
// migrate itself.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/ternarybob/jobflow/internal/store"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Apply runs every embedded migration not yet applied. db's underlying
// *sql.DB is handed straight to golang-migrate's postgres driver, which
// only needs a *sql.DB - the pgx stdlib driver db was opened with is
// transparent to it.
func Apply(db *store.DB) error {
	source, err := iofs.New(sqlFiles, "sql")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	target, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
