package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantScopeMissing is returned by the tenant-aware client when a
	// multi-tenant table is accessed with no bound tenantscope.Scope. The
	// failure occurs before any SQL is sent.
	ErrTenantScopeMissing = errors.New("storage: operation on a multi-tenant table requires a tenant scope")

	// ErrTenantNotFound, ErrRepositoryNotFound, ErrJobNotFound are returned
	// by lookups that target a nonexistent row.
	ErrTenantNotFound     = errors.New("storage: tenant not found")
	ErrRepositoryNotFound = errors.New("storage: repository not found")
	ErrJobNotFound        = errors.New("storage: job not found")
	ErrPlanNotFound       = errors.New("storage: plan not found")

	// ErrTenantExists is returned when a tenant create would violate the
	// github_installation_id uniqueness invariant. CreateRepository also
	// wraps it when a repository insert violates a unique constraint.
	ErrTenantExists = errors.New("storage: tenant already exists")

	// ErrVersionConflict is returned by an optimistic-locking update whose
	// expected version no longer matches the stored row.
	ErrVersionConflict = errors.New("storage: version conflict, row was modified concurrently")
)

// ErrTenantAccessDenied is raised by VerifyOwnership when a row's tenant_id
// does not match the scope's current tenant. It names the entity kind so
// callers can log what was being checked.
type ErrTenantAccessDenied struct {
	Kind string
}

func (e *ErrTenantAccessDenied) Error() string {
	return fmt.Sprintf("storage: tenant access denied for %s", e.Kind)
}
