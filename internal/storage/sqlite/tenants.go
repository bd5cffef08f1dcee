package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"time"

	"github.com/google/uuid"

	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/storage/schema"
)

// Tenant CRUD is un-scoped by design: there is no current tenant before a
// tenant exists, mirroring internal/storage/postgres/tenants.go.

type tenantRow struct {
	ID                   string  `db:"id"`
	GitHubInstallationID int64   `db:"github_installation_id"`
	GitHubAccountLogin   string  `db:"github_account_login"`
	GitHubAccountType    string  `db:"github_account_type"`
	InstalledAt          string  `db:"installed_at"`
	UninstalledAt        *string `db:"uninstalled_at"`
	Settings             string  `db:"settings"`
	InstallationStatus   string  `db:"installation_status"`
	PlanID               string  `db:"plan_id"`
	PlanChangedAt        *string `db:"plan_changed_at"`
	CreatedAt            string  `db:"created_at"`
	UpdatedAt            string  `db:"updated_at"`
}

const createTenantQuery = `
INSERT INTO tenants (
    id, github_installation_id, github_account_login, github_account_type,
    installed_at, settings, installation_status, plan_id, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (c *Client) CreateTenant(ctx context.Context, t *storage.Tenant) error {
	if err := schema.ValidateSettings(t.Settings); err != nil {
		return fmt.Errorf("sqlite: create tenant: %w", err)
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	installedAt := formatTimestamp(t.InstalledAt)
	now := time.Now()
	nowStr := formatTimestamp(now)
	_, err := c.q(ctx).ExecContext(ctx, createTenantQuery,
		t.ID.String(), t.GitHubInstallationID, t.GitHubAccountLogin, t.GitHubAccountType,
		installedAt, mustJSON(t.Settings), string(t.InstallationStatus), t.PlanID.String(), nowStr, nowStr,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTenantExists
		}
		return fmt.Errorf("sqlite: create tenant: %w", err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

const getTenantByIDQuery = `
SELECT id, github_installation_id, github_account_login, github_account_type,
       installed_at, uninstalled_at, settings, installation_status, plan_id,
       plan_changed_at, created_at, updated_at
FROM tenants WHERE id = ?
`

func (c *Client) GetTenantByID(ctx context.Context, id string) (*storage.Tenant, error) {
	var row tenantRow
	if err := c.q(ctx).QueryRowxContext(ctx, getTenantByIDQuery, id).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTenantNotFound
		}
		return nil, fmt.Errorf("sqlite: get tenant: %w", err)
	}
	return rowToTenant(row)
}

const getTenantByInstallationQuery = `
SELECT id, github_installation_id, github_account_login, github_account_type,
       installed_at, uninstalled_at, settings, installation_status, plan_id,
       plan_changed_at, created_at, updated_at
FROM tenants WHERE github_installation_id = ?
`

func (c *Client) GetTenantByInstallationID(ctx context.Context, installationID int64) (*storage.Tenant, error) {
	var row tenantRow
	if err := c.q(ctx).QueryRowxContext(ctx, getTenantByInstallationQuery, installationID).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrTenantNotFound
		}
		return nil, fmt.Errorf("sqlite: get tenant by installation: %w", err)
	}
	return rowToTenant(row)
}

const updateTenantQuery = `
UPDATE tenants SET
    github_account_login = ?, github_account_type = ?,
    uninstalled_at = ?, settings = ?, installation_status = ?,
    plan_id = ?, plan_changed_at = ?, updated_at = ?
WHERE id = ?
`

func (c *Client) UpdateTenant(ctx context.Context, t *storage.Tenant) error {
	if err := schema.ValidateSettings(t.Settings); err != nil {
		return fmt.Errorf("sqlite: update tenant: %w", err)
	}
	updatedAt := formatTimestamp(time.Now())
	res, err := c.q(ctx).ExecContext(ctx, updateTenantQuery,
		t.GitHubAccountLogin, t.GitHubAccountType,
		formatNullableTimestamp(t.UninstalledAt), mustJSON(t.Settings), string(t.InstallationStatus),
		t.PlanID.String(), formatNullableTimestamp(t.PlanChangedAt), updatedAt, t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: update tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update tenant rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrTenantNotFound
	}
	return parseTimestamp(updatedAt, &t.UpdatedAt)
}

func (c *Client) ListTenants(ctx context.Context, filters storage.TenantFilters) ([]*storage.Tenant, error) {
	query := `
SELECT id, github_installation_id, github_account_login, github_account_type,
       installed_at, uninstalled_at, settings, installation_status, plan_id,
       plan_changed_at, created_at, updated_at
FROM tenants WHERE 1=1`
	var args []interface{}

	if !filters.IncludeDeleted {
		query += " AND uninstalled_at IS NULL"
	}
	if len(filters.Statuses) > 0 {
		placeholders := ""
		for i, s := range filters.Statuses {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(s))
		}
		query += " AND installation_status IN (" + placeholders + ")"
	}
	query += " ORDER BY installed_at ASC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filters.Offset)
	}

	rows, err := c.q(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*storage.Tenant
	for rows.Next() {
		var row tenantRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("sqlite: scan tenant: %w", err)
		}
		t, err := rowToTenant(row)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func rowToTenant(row tenantRow) (*storage.Tenant, error) {
	t := &storage.Tenant{
		GitHubInstallationID: row.GitHubInstallationID,
		GitHubAccountLogin:   row.GitHubAccountLogin,
		GitHubAccountType:    row.GitHubAccountType,
		InstallationStatus:   storage.InstallationStatus(row.InstallationStatus),
	}
	if err := parseUUID(row.ID, &t.ID); err != nil {
		return nil, err
	}
	if err := parseUUID(row.PlanID, &t.PlanID); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.InstalledAt, &t.InstalledAt); err != nil {
		return nil, err
	}
	if err := parseNullableTimestamp(row.UninstalledAt, &t.UninstalledAt); err != nil {
		return nil, err
	}
	if err := parseNullableTimestamp(row.PlanChangedAt, &t.PlanChangedAt); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.CreatedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.UpdatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalInterfaceMap(row.Settings, &t.Settings); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal tenant settings: %w", err)
	}
	return t, nil
}

func mustJSON(m map[string]interface{}) string {
	s, err := jsonOrEmpty(m)
	if err != nil {
		// Only reachable if the caller fed a map containing a value
		// json.Marshal cannot encode, which storage callers don't do.
		return "{}"
	}
	return s
}
