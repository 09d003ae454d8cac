package db

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"taskpulse-backend/migrations"
)

func newMigrator(connString string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return nil, errors.Wrap(err, "init migrations")
	}
	return m, nil
}

// MigrateUp applies all pending migrations. Already-current schemas are not an error.
func MigrateUp(connString string) error {
	m, err := newMigrator(connString)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(connString string, steps int) error {
	if steps <= 0 {
		return errors.New("steps must be positive")
	}
	m, err := newMigrator(connString)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "roll back migrations")
	}
	return nil
}

// Version reports the current schema version.
func Version(connString string) (uint, bool, error) {
	m, err := newMigrator(connString)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return v, dirty, err
}
