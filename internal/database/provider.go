// Package database selects and opens the underlying connection pool for the
// storage plane, and runs its embedded schema migrations. It is explicitly
// not a core-orchestration concern (spec.md §1 lists "schema-migration
// tooling, configuration loading, and process bootstrap" as out of scope
// for the core); this package is the bootstrap layer cmd/orchestrator-worker
// calls into before constructing the core.
package database

import "context"

// Provider opens and owns the connection pool for one backend. Pool()
// returns *pgxpool.Pool for the postgres provider or *sqlx.DB for sqlite;
// storage/postgres.New and storage/sqlite.New each type-assert accordingly.
type Provider interface {
	Pool() interface{}
	Health(ctx context.Context) error
	Close()
}
