// Package migrate applies the embedded SQL migrations against Postgres.
package migrate

import (
	"database/sql"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	campuschat "github.com/guftagu/campus-chat"
)

// Up brings the trust schema to the latest version. A database that is
// already current is not an error.
func Up(db *sql.DB) error {
	sourceDriver, err := iofs.New(campuschat.Migrations, "migrations")
	if err != nil {
		return err
	}
	databaseDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", databaseDriver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
