package main

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/facturier/backoffice/model"
)

// migrateUp applies all pending migrations for the configured database.
// An up-to-date schema is not an error.
func migrateUp(cfg *model.Config) error {
	m, err := migrate.New("file://"+migrationsDir(), migrateDSN(cfg))
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
