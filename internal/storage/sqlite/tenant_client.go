package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/storage/schema"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

// TenantClient is the thin typed wrapper mirroring
// internal/storage/postgres/tenant_client.go: every operation resolves the
// scope before building SQL and always ANDs tenant_id = scope.TenantID into
// the effective predicate.
type TenantClient struct {
	client *Client
}

// NewTenantClient wraps an already-constructed Client.
func NewTenantClient(client *Client) *TenantClient {
	return &TenantClient{client: client}
}

var _ storage.TenantClient = (*TenantClient)(nil)

func (tc *TenantClient) scope(ctx context.Context) (tenantscope.Scope, error) {
	scope, err := tenantscope.From(ctx)
	if err != nil {
		return tenantscope.Scope{}, storage.ErrTenantScopeMissing
	}
	return scope, nil
}

type repositoryRow struct {
	ID              string `db:"id"`
	TenantID        string `db:"tenant_id"`
	GitHubRepoID    int64  `db:"github_repo_id"`
	Owner           string `db:"owner"`
	Name            string `db:"name"`
	FullName        string `db:"full_name"`
	Enabled         bool   `db:"enabled"`
	PolicyOverrides string `db:"policy_overrides"`
	CreatedAt       string `db:"created_at"`
	UpdatedAt       string `db:"updated_at"`
}

const createRepositoryQuery = `
INSERT INTO repositories (id, tenant_id, github_repo_id, owner, name, full_name, enabled, policy_overrides, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (tc *TenantClient) CreateRepository(ctx context.Context, repo *storage.Repository) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	if err := schema.ValidatePolicyOverrides(repo.PolicyOverrides); err != nil {
		return fmt.Errorf("sqlite: create repository: %w", err)
	}
	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}
	repo.TenantID = uuid.MustParse(scope.TenantID)
	now := time.Now()
	nowStr := formatTimestamp(now)
	_, err = tc.client.q(ctx).ExecContext(ctx, createRepositoryQuery,
		repo.ID.String(), repo.TenantID.String(), repo.GitHubRepoID, repo.Owner, repo.Name, repo.FullName,
		repo.Enabled, mustJSON(repo.PolicyOverrides), nowStr, nowStr,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create repository: %w", storage.ErrTenantExists)
		}
		return fmt.Errorf("sqlite: create repository: %w", err)
	}
	repo.CreatedAt, repo.UpdatedAt = now, now
	return nil
}

const getRepositoryQuery = `
SELECT id, tenant_id, github_repo_id, owner, name, full_name, enabled, policy_overrides, created_at, updated_at
FROM repositories WHERE id = ? AND tenant_id = ?
`

func (tc *TenantClient) GetRepositoryByID(ctx context.Context, id string) (*storage.Repository, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	var row repositoryRow
	if err := tc.client.q(ctx).QueryRowxContext(ctx, getRepositoryQuery, id, scope.TenantID).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRepositoryNotFound
		}
		return nil, fmt.Errorf("sqlite: get repository: %w", err)
	}
	return rowToRepository(row)
}

func (tc *TenantClient) ListRepositories(ctx context.Context, filters storage.RepositoryFilters) ([]*storage.Repository, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	query := `
SELECT id, tenant_id, github_repo_id, owner, name, full_name, enabled, policy_overrides, created_at, updated_at
FROM repositories WHERE tenant_id = ?`
	args := []interface{}{scope.TenantID}
	if filters.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filters.Enabled)
	}
	query += " ORDER BY created_at ASC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filters.Offset)
	}

	rows, err := tc.client.q(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*storage.Repository
	for rows.Next() {
		var row repositoryRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("sqlite: scan repository: %w", err)
		}
		r, err := rowToRepository(row)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

const updateRepositoryQuery = `
UPDATE repositories SET owner = ?, name = ?, full_name = ?, enabled = ?, policy_overrides = ?, updated_at = ?
WHERE id = ? AND tenant_id = ?
`

// UpdateRepository applies the update-predicate AND-ing discipline: the
// WHERE clause always includes tenant_id, so an update targeting another
// tenant's row affects zero rows instead of failing or leaking existence.
func (tc *TenantClient) UpdateRepository(ctx context.Context, repo *storage.Repository) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	if err := schema.ValidatePolicyOverrides(repo.PolicyOverrides); err != nil {
		return fmt.Errorf("sqlite: update repository: %w", err)
	}
	updatedAt := time.Now()
	res, err := tc.client.q(ctx).ExecContext(ctx, updateRepositoryQuery,
		repo.Owner, repo.Name, repo.FullName, repo.Enabled, mustJSON(repo.PolicyOverrides),
		formatTimestamp(updatedAt), repo.ID.String(), scope.TenantID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update repository: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update repository rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrRepositoryNotFound
	}
	repo.UpdatedAt = updatedAt
	return nil
}

func rowToRepository(row repositoryRow) (*storage.Repository, error) {
	r := &storage.Repository{
		GitHubRepoID: row.GitHubRepoID,
		Owner:        row.Owner,
		Name:         row.Name,
		FullName:     row.FullName,
		Enabled:      row.Enabled,
	}
	if err := parseUUID(row.ID, &r.ID); err != nil {
		return nil, err
	}
	if err := parseUUID(row.TenantID, &r.TenantID); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.CreatedAt, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.UpdatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalInterfaceMap(row.PolicyOverrides, &r.PolicyOverrides); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal policy_overrides: %w", err)
	}
	return r, nil
}

type jobRow struct {
	ID           string `db:"id"`
	TenantID     string `db:"tenant_id"`
	RepositoryID string `db:"repository_id"`
	Status       string `db:"status"`
	IssueNumber  int    `db:"issue_number"`
	IssueTitle   string `db:"issue_title"`
	IssueBody    string `db:"issue_body"`
	IssueURL     string `db:"issue_url"`
	Metadata     string `db:"metadata"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

const createJobQuery = `
INSERT INTO jobs (id, tenant_id, repository_id, status, issue_number, issue_title, issue_body, issue_url, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (tc *TenantClient) CreateJob(ctx context.Context, job *storage.Job) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	if err := schema.ValidateJobMetadata(job.Metadata); err != nil {
		return fmt.Errorf("sqlite: create job: %w", err)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.TenantID = uuid.MustParse(scope.TenantID)
	now := time.Now()
	nowStr := formatTimestamp(now)
	_, err = tc.client.q(ctx).ExecContext(ctx, createJobQuery,
		job.ID.String(), job.TenantID.String(), job.RepositoryID.String(), job.Status, job.IssueNumber,
		job.IssueTitle, job.IssueBody, job.IssueURL, mustJSON(job.Metadata), nowStr, nowStr,
	)
	if err != nil {
		return fmt.Errorf("sqlite: create job: %w", err)
	}
	job.CreatedAt, job.UpdatedAt = now, now
	return nil
}

const getJobQuery = `
SELECT id, tenant_id, repository_id, status, issue_number, issue_title, issue_body, issue_url, metadata, created_at, updated_at
FROM jobs WHERE id = ? AND tenant_id = ?
`

// GetJob returns ErrJobNotFound identically whether the row is absent or
// belongs to another tenant.
func (tc *TenantClient) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	var row jobRow
	if err := tc.client.q(ctx).QueryRowxContext(ctx, getJobQuery, id, scope.TenantID).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrJobNotFound
		}
		return nil, fmt.Errorf("sqlite: get job: %w", err)
	}
	return rowToJob(row)
}

func (tc *TenantClient) ListJobs(ctx context.Context, filters storage.JobFilters) ([]*storage.Job, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	query := `
SELECT id, tenant_id, repository_id, status, issue_number, issue_title, issue_body, issue_url, metadata, created_at, updated_at
FROM jobs WHERE tenant_id = ?`
	args := []interface{}{scope.TenantID}
	if len(filters.Statuses) > 0 {
		placeholders := ""
		for i, s := range filters.Statuses {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, s)
		}
		query += " AND status IN (" + placeholders + ")"
	}
	if filters.RepositoryID != "" {
		query += " AND repository_id = ?"
		args = append(args, filters.RepositoryID)
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filters.Offset)
	}

	rows, err := tc.client.q(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*storage.Job
	for rows.Next() {
		var row jobRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("sqlite: scan job: %w", err)
		}
		j, err := rowToJob(row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func rowToJob(row jobRow) (*storage.Job, error) {
	j := &storage.Job{
		Status:      row.Status,
		IssueNumber: row.IssueNumber,
		IssueTitle:  row.IssueTitle,
		IssueBody:   row.IssueBody,
		IssueURL:    row.IssueURL,
	}
	if err := parseUUID(row.ID, &j.ID); err != nil {
		return nil, err
	}
	if err := parseUUID(row.TenantID, &j.TenantID); err != nil {
		return nil, err
	}
	if err := parseUUID(row.RepositoryID, &j.RepositoryID); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.CreatedAt, &j.CreatedAt); err != nil {
		return nil, err
	}
	if err := parseTimestamp(row.UpdatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalInterfaceMap(row.Metadata, &j.Metadata); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal job metadata: %w", err)
	}
	return j, nil
}

const selectMetadataForUpdateQuery = `
SELECT metadata FROM jobs WHERE id = ? AND tenant_id = ? AND status = ?
`

const transitionUpdateQuery = `
UPDATE jobs SET status = ?, metadata = ?, updated_at = ?
WHERE id = ? AND tenant_id = ? AND status = ?
`

const recordTransitionQuery = `
INSERT INTO job_state_history (id, job_id, from_status, to_status, reason, triggered_by, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// Transition is the atomic read-compute-write binding the pure jobstate
// functions to storage: event is validated against from via jobstate.Apply
// before any query runs, so an illegal event is rejected structurally
// rather than trusted from the caller. It then runs inside WithTx so the
// job row update and the audit insert commit together, and the WHERE
// clause's status = ? check serializes concurrent transitions on the same
// job.
//
// Unlike the postgres backend, SQLite has no `jsonb ||` merge operator, so
// the patch is merged into jobs.metadata in Go: the current metadata is
// selected under the same status = ? predicate that gates the update (so a
// concurrent winner's metadata is never clobbered), merged key-by-key with
// metadataPatch, and written back whole.
func (tc *TenantClient) Transition(ctx context.Context, jobID string, from string, event jobstate.Event, reason string, metadataPatch map[string]interface{}) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	toStatus, err := jobstate.Apply(jobstate.Status(from), event)
	if err != nil {
		return fmt.Errorf("sqlite: transition job: %w", err)
	}
	to := string(toStatus)
	if err := schema.ValidateJobMetadata(metadataPatch); err != nil {
		return fmt.Errorf("sqlite: transition job: %w", err)
	}
	return tc.client.WithTx(ctx, func(ctx context.Context) error {
		var currentJSON string
		err := tc.client.q(ctx).QueryRowxContext(ctx, selectMetadataForUpdateQuery, jobID, scope.TenantID, from).Scan(&currentJSON)
		if errors.Is(err, sql.ErrNoRows) {
			// Either the job doesn't exist for this tenant, or its status
			// already moved past `from` — a concurrent transition won.
			return storage.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("sqlite: load job metadata for transition: %w", err)
		}

		var merged map[string]interface{}
		if err := unmarshalInterfaceMap(currentJSON, &merged); err != nil {
			return fmt.Errorf("sqlite: unmarshal job metadata for transition: %w", err)
		}
		if merged == nil {
			merged = map[string]interface{}{}
		}
		for k, v := range metadataPatch {
			merged[k] = v
		}
		mergedJSON, err := jsonOrEmpty(merged)
		if err != nil {
			return err
		}

		res, err := tc.client.q(ctx).ExecContext(ctx, transitionUpdateQuery,
			to, mergedJSON, formatTimestamp(time.Now()), jobID, scope.TenantID, from)
		if err != nil {
			return fmt.Errorf("sqlite: transition job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: transition job rows affected: %w", err)
		}
		if n == 0 {
			return storage.ErrJobNotFound
		}

		historyID := uuid.New()
		var fromPtr *string
		if from != "" {
			fromPtr = &from
		}
		patchJSON, err := jsonOrEmpty(metadataPatch)
		if err != nil {
			return err
		}
		_, err = tc.client.q(ctx).ExecContext(ctx, recordTransitionQuery,
			historyID.String(), jobID, fromPtr, to, reason, "worker", patchJSON, formatTimestamp(time.Now()))
		if err != nil {
			return fmt.Errorf("sqlite: record state transition: %w", err)
		}
		return nil
	})
}

type transitionRow struct {
	ID          string  `db:"id"`
	JobID       string  `db:"job_id"`
	FromStatus  *string `db:"from_status"`
	ToStatus    string  `db:"to_status"`
	Reason      string  `db:"reason"`
	TriggeredBy string  `db:"triggered_by"`
	Metadata    string  `db:"metadata"`
	CreatedAt   string  `db:"created_at"`
}

const getHistoryQuery = `
SELECT h.id AS id, h.job_id AS job_id, h.from_status AS from_status, h.to_status AS to_status,
       h.reason AS reason, h.triggered_by AS triggered_by, h.metadata AS metadata, h.created_at AS created_at
FROM job_state_history h JOIN jobs j ON j.id = h.job_id
WHERE h.job_id = ? AND j.tenant_id = ? ORDER BY h.created_at ASC
`

func (tc *TenantClient) GetStateHistory(ctx context.Context, jobID string) ([]*storage.JobStateTransition, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tc.client.q(ctx).QueryxContext(ctx, getHistoryQuery, jobID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get state history: %w", err)
	}
	defer rows.Close()

	var history []*storage.JobStateTransition
	for rows.Next() {
		var row transitionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("sqlite: scan state transition: %w", err)
		}
		st := &storage.JobStateTransition{
			FromStatus:  row.FromStatus,
			ToStatus:    row.ToStatus,
			Reason:      row.Reason,
			TriggeredBy: row.TriggeredBy,
		}
		if err := parseUUID(row.ID, &st.ID); err != nil {
			return nil, err
		}
		if err := parseUUID(row.JobID, &st.JobID); err != nil {
			return nil, err
		}
		if err := parseTimestamp(row.CreatedAt, &st.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalInterfaceMap(row.Metadata, &st.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal transition metadata: %w", err)
		}
		history = append(history, st)
	}
	return history, rows.Err()
}

func (tc *TenantClient) VerifyOwnership(ctx context.Context, rowTenantID string, kind string) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	if rowTenantID != scope.TenantID {
		return &storage.ErrTenantAccessDenied{Kind: kind}
	}
	return nil
}
