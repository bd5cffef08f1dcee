package storage

import "context"

// RawClient is the un-scoped storage handle: full SQL power, reserved for
// migrations, tenant lifecycle, and tests (spec.md §4.3). Postgres and
// SQLite backends each implement it against their own driver.
type RawClient interface {
	// Exec runs a statement with no result rows.
	Exec(ctx context.Context, sql string, args ...interface{}) error
	// WithTx runs fn inside a transaction, committing on nil error and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// Health checks connectivity.
	Health(ctx context.Context) error
	// Close releases the underlying connection pool.
	Close() error
}

// PlanStore is the pass-through accessor for the one non-multi-tenant
// table. No tenant predicate is ever applied.
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListActivePlans(ctx context.Context) ([]*Plan, error)
}

// TenantStore is the un-scoped accessor for Tenant rows. Tenants are
// deliberately reached through RawClient-backed operations, not the
// tenant-aware client: there is no "current tenant" before a tenant exists.
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenantByID(ctx context.Context, id string) (*Tenant, error)
	GetTenantByInstallationID(ctx context.Context, githubInstallationID int64) (*Tenant, error)
	UpdateTenant(ctx context.Context, tenant *Tenant) error
	ListTenants(ctx context.Context, filters TenantFilters) ([]*Tenant, error)
}

// TenantFilters narrows ListTenants. A zero value matches every tenant.
type TenantFilters struct {
	Statuses       []InstallationStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}
