// Package storage defines the persistence-plane entities and the two
// access layers described by the orchestrator: an un-scoped RawClient for
// migrations/tenant-lifecycle/tests, and a tenant-aware Client that enforces
// the tenant_id discipline on every multi-tenant table.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// InstallationStatus is the lifecycle status of a Tenant's platform install.
type InstallationStatus string

const (
	InstallationStatusPending   InstallationStatus = "pending"
	InstallationStatusActive    InstallationStatus = "active"
	InstallationStatusSuspended InstallationStatus = "suspended"
)

// Plan is a subscription descriptor, owned by an external billing
// subsystem. The core only reads it.
type Plan struct {
	ID                  uuid.UUID
	Name                string // stable, unique, human identifier
	DisplayName         string
	PriceUSD            int64
	BillingInterval     string
	MaxRepos            int
	MaxPRsPerMonth       int
	MaxTokensPerMonth    int64
	MaxLLMCallsPerMonth  int64
	Features            map[string]interface{}
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Tenant is the isolation boundary: the coarse-grained unit of access
// control every multi-tenant row is scoped to.
type Tenant struct {
	ID                    uuid.UUID
	GitHubInstallationID  int64
	GitHubAccountLogin    string
	GitHubAccountType     string
	InstalledAt           time.Time
	UninstalledAt         *time.Time
	Settings              map[string]interface{}
	InstallationStatus    InstallationStatus
	PlanID                uuid.UUID
	PlanChangedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Repository is a monitored repository scoped to exactly one tenant.
type Repository struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	GitHubRepoID    int64
	Owner           string
	Name            string
	FullName        string
	Enabled         bool
	PolicyOverrides map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Job is the unit of orchestration. TenantID/RepositoryID are carried as
// real foreign-key columns (the redesign adopted for the job-to-tenant
// linkage open question), so job rows are reachable through the tenant-aware
// client like every other multi-tenant table.
type Job struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	RepositoryID uuid.UUID
	Status       string
	IssueNumber  int
	IssueTitle   string
	IssueBody    string
	IssueURL     string
	Metadata     map[string]interface{}
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobStateTransition is an append-only audit row for one state change.
// Closes the state-history open question: tests can assert on the full
// recorded sequence instead of relying on timing-sensitive polling.
type JobStateTransition struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	FromStatus  *string // set by every Transition; CreateJob records no history row
	ToStatus    string
	Reason      string
	TriggeredBy string
	Metadata    map[string]interface{}
	CreatedAt   time.Time
}
