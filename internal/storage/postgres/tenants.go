package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/storage/schema"
)

// Tenant CRUD is un-scoped by design (spec.md §4.3: "there is no current
// tenant before a tenant exists"), mirroring the teacher's deliberately
// un-scoped tenant.Repository.

const createTenantQuery = `
INSERT INTO tenants (
    id, github_installation_id, github_account_login, github_account_type,
    installed_at, settings, installation_status, plan_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at
`

func (c *Client) CreateTenant(ctx context.Context, t *storage.Tenant) error {
	if err := schema.ValidateSettings(t.Settings); err != nil {
		return fmt.Errorf("postgres: create tenant: %w", err)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := c.q(ctx).QueryRow(ctx, createTenantQuery,
		t.ID, t.GitHubInstallationID, t.GitHubAccountLogin, t.GitHubAccountType,
		t.InstalledAt, jsonbOrEmpty(t.Settings), t.InstallationStatus, t.PlanID,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTenantExists
		}
		return fmt.Errorf("postgres: create tenant: %w", err)
	}
	return nil
}

const getTenantByIDQuery = `
SELECT id, github_installation_id, github_account_login, github_account_type,
       installed_at, uninstalled_at, settings, installation_status, plan_id,
       plan_changed_at, created_at, updated_at
FROM tenants WHERE id = $1
`

func (c *Client) GetTenantByID(ctx context.Context, id string) (*storage.Tenant, error) {
	tenantID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse tenant id: %w", err)
	}
	return c.scanTenant(c.q(ctx).QueryRow(ctx, getTenantByIDQuery, tenantID))
}

const getTenantByInstallationQuery = `
SELECT id, github_installation_id, github_account_login, github_account_type,
       installed_at, uninstalled_at, settings, installation_status, plan_id,
       plan_changed_at, created_at, updated_at
FROM tenants WHERE github_installation_id = $1
`

func (c *Client) GetTenantByInstallationID(ctx context.Context, installationID int64) (*storage.Tenant, error) {
	return c.scanTenant(c.q(ctx).QueryRow(ctx, getTenantByInstallationQuery, installationID))
}

func (c *Client) scanTenant(row pgx.Row) (*storage.Tenant, error) {
	t := &storage.Tenant{}
	var settingsJSON []byte
	err := row.Scan(
		&t.ID, &t.GitHubInstallationID, &t.GitHubAccountLogin, &t.GitHubAccountType,
		&t.InstalledAt, &t.UninstalledAt, &settingsJSON, &t.InstallationStatus, &t.PlanID,
		&t.PlanChangedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrTenantNotFound
		}
		return nil, fmt.Errorf("postgres: scan tenant: %w", err)
	}
	if err := unmarshalInterfaceMap(settingsJSON, &t.Settings); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal tenant settings: %w", err)
	}
	return t, nil
}

const updateTenantQuery = `
UPDATE tenants SET
    github_account_login = $2, github_account_type = $3,
    uninstalled_at = $4, settings = $5, installation_status = $6,
    plan_id = $7, plan_changed_at = $8, updated_at = NOW()
WHERE id = $1
RETURNING updated_at
`

func (c *Client) UpdateTenant(ctx context.Context, t *storage.Tenant) error {
	if err := schema.ValidateSettings(t.Settings); err != nil {
		return fmt.Errorf("postgres: update tenant: %w", err)
	}
	err := c.q(ctx).QueryRow(ctx, updateTenantQuery,
		t.ID, t.GitHubAccountLogin, t.GitHubAccountType,
		t.UninstalledAt, jsonbOrEmpty(t.Settings), t.InstallationStatus,
		t.PlanID, t.PlanChangedAt,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrTenantNotFound
		}
		return fmt.Errorf("postgres: update tenant: %w", err)
	}
	return nil
}

func (c *Client) ListTenants(ctx context.Context, filters storage.TenantFilters) ([]*storage.Tenant, error) {
	query := `
SELECT id, github_installation_id, github_account_login, github_account_type,
       installed_at, uninstalled_at, settings, installation_status, plan_id,
       plan_changed_at, created_at, updated_at
FROM tenants WHERE 1=1`
	var args []interface{}
	argPos := 1

	if !filters.IncludeDeleted {
		query += " AND uninstalled_at IS NULL"
	}
	if len(filters.Statuses) > 0 {
		query += fmt.Sprintf(" AND installation_status = ANY($%d)", argPos)
		args = append(args, filters.Statuses)
		argPos++
	}
	query += " ORDER BY installed_at ASC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	rows, err := c.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*storage.Tenant
	for rows.Next() {
		t := &storage.Tenant{}
		var settingsJSON []byte
		if err := rows.Scan(
			&t.ID, &t.GitHubInstallationID, &t.GitHubAccountLogin, &t.GitHubAccountType,
			&t.InstalledAt, &t.UninstalledAt, &settingsJSON, &t.InstallationStatus, &t.PlanID,
			&t.PlanChangedAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan tenant: %w", err)
		}
		if err := unmarshalInterfaceMap(settingsJSON, &t.Settings); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal tenant settings: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
