package sqlstore

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/okian/podium/internal/config"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// MigrationResult reports what Migrate did.
type MigrationResult struct {
	From    uint
	To      uint
	Changed bool
}

// Migrate runs the embedded migrations for backend on its own connection.
//   - If target < 0, it migrates to the latest version.
//   - If target == 0, it rolls back every migration.
//   - If target > 0, it migrates to that version.
func Migrate(backend, dsn string, target int) (MigrationResult, error) {
	db, err := openDB(backend, dsn)
	if err != nil {
		return MigrationResult{}, err
	}

	var driver database.Driver
	switch backend {
	case config.StoreSQLite:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case config.StorePostgres:
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	case config.StoreMySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	}
	if err != nil {
		_ = db.Close()
		return MigrationResult{}, fmt.Errorf("create %s migrate driver: %w", backend, err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations/"+backend)
	if err != nil {
		_ = driver.Close()
		return MigrationResult{}, fmt.Errorf("access migrations: %w", err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		_ = driver.Close()
		return MigrationResult{}, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, backend, driver)
	if err != nil {
		_ = driver.Close()
		return MigrationResult{}, fmt.Errorf("create migrate instance: %w", err)
	}
	// Closing m closes the source, the driver and db.
	defer func() { _, _ = m.Close() }()

	var res MigrationResult
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return res, fmt.Errorf("database is dirty at version %d, fix it manually or force a version", current)
	}
	res.From = current

	switch {
	case target < 0:
		err = m.Up()
	case target == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(target))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		res.To = current
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("migrate %s to %d: %w", backend, target, err)
	}

	res.Changed = true
	res.To, _, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		err = nil
	}
	return res, err
}
