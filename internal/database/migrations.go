package database

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

// RunMigrations applies all pending schema migrations for provider
// ("postgres"/"postgresql" or "sqlite") against connString.
func RunMigrations(provider, connString string, logger *zap.Logger) error {
	logger = logger.With(zap.String("component", "migrations"))

	var migrationsFS embed.FS
	var sub string
	switch provider {
	case "postgres", "postgresql":
		migrationsFS, sub = postgresMigrationsFS, "migrations/postgres"
	case "sqlite":
		migrationsFS, sub = sqliteMigrationsFS, "migrations/sqlite"
	default:
		return fmt.Errorf("unknown database provider: %s", provider)
	}

	sourceFS, err := fs.Sub(migrationsFS, sub)
	if err != nil {
		return fmt.Errorf("scope migrations filesystem: %w", err)
	}
	sourceDriver, err := iofs.New(sourceFS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}
	logger.Info("current migration version", zap.Uint("version", version))

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("no pending migrations")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("get new migration version: %w", err)
	}
	logger.Info("migrations applied", zap.Uint("new_version", newVersion))
	return nil
}
