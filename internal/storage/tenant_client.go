package storage

import (
	"context"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
)

// TenantClient is the tenant-aware accessor described by spec.md §4.3: the
// thin typed wrapper around a multi-tenant table whose operations always
// AND the current scope's tenant_id into the effective predicate. Every
// operation resolves the scope via tenantscope.From(ctx) before touching
// SQL, so a missing scope surfaces ErrTenantScopeMissing before any query is
// sent, on every backend.
//
// It is the only legitimate path to the repositories and jobs tables;
// nothing outside the storage/{postgres,sqlite} packages builds SQL against
// them directly.
type TenantClient interface {
	// CreateRepository inserts repo with tenant_id overwritten to the
	// scope's tenant, regardless of the value the caller supplied.
	CreateRepository(ctx context.Context, repo *Repository) error
	GetRepositoryByID(ctx context.Context, id string) (*Repository, error)
	ListRepositories(ctx context.Context, filters RepositoryFilters) ([]*Repository, error)
	UpdateRepository(ctx context.Context, repo *Repository) error

	// CreateJob inserts job with tenant_id overwritten to the scope's
	// tenant. Status is expected to already be jobstate.StatusQueued.
	CreateJob(ctx context.Context, job *Job) error
	// GetJob returns ErrJobNotFound both when the row does not exist and
	// when it belongs to a different tenant — the two cases must not be
	// distinguishable to the caller (no existence leak, per §4.3).
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, filters JobFilters) ([]*Job, error)
	// Transition atomically reads the job's current status, validates event
	// against it via jobstate.Apply, applies the resulting status and
	// metadata merge, appends a JobStateTransition row, and writes both in
	// one unit. It is the sole write path for job status: no caller updates
	// jobs.status directly, and an event illegal from the job's current
	// status is rejected here rather than trusted from the caller — returns
	// an error wrapping *jobstate.ErrInvalidTransition.
	Transition(ctx context.Context, jobID string, from string, event jobstate.Event, reason string, metadataPatch map[string]interface{}) error
	GetStateHistory(ctx context.Context, jobID string) ([]*JobStateTransition, error)

	// VerifyOwnership asserts row's tenant id matches the scope's current
	// tenant, for defensive checks after reads obtained by code that
	// bypasses this wrapper. kind names the entity for the error.
	VerifyOwnership(ctx context.Context, rowTenantID string, kind string) error
}

// RepositoryFilters narrows ListRepositories. Tenant scoping is applied
// regardless of these fields.
type RepositoryFilters struct {
	Enabled *bool
	Limit   int
	Offset  int
}

// JobFilters narrows ListJobs. Tenant scoping is applied regardless of
// these fields.
type JobFilters struct {
	Statuses     []string
	RepositoryID string
	Limit        int
	Offset       int
}
