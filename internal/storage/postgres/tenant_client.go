package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/storage/schema"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

// TenantClient is the thin typed wrapper described by spec.md §4.3: every
// operation resolves the scope before building SQL, and always ANDs
// tenant_id = scope.TenantID into the effective predicate. It is the only
// path to the repositories and jobs tables.
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

const createRepositoryQuery = `
INSERT INTO repositories (id, tenant_id, github_repo_id, owner, name, full_name, enabled, policy_overrides)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at
`

func (tc *TenantClient) CreateRepository(ctx context.Context, repo *storage.Repository) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	if err := schema.ValidatePolicyOverrides(repo.PolicyOverrides); err != nil {
		return fmt.Errorf("postgres: create repository: %w", err)
	}
	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}
	// tenant_id is overwritten to the scope, never trusted from the caller.
	repo.TenantID = uuid.MustParse(scope.TenantID)
	err = tc.client.q(ctx).QueryRow(ctx, createRepositoryQuery,
		repo.ID, repo.TenantID, repo.GitHubRepoID, repo.Owner, repo.Name, repo.FullName,
		repo.Enabled, jsonbOrEmpty(repo.PolicyOverrides),
	).Scan(&repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres: create repository: %w", storage.ErrTenantExists)
		}
		return fmt.Errorf("postgres: create repository: %w", err)
	}
	return nil
}

const getRepositoryQuery = `
SELECT id, tenant_id, github_repo_id, owner, name, full_name, enabled, policy_overrides, created_at, updated_at
FROM repositories WHERE id = $1 AND tenant_id = $2
`

func (tc *TenantClient) GetRepositoryByID(ctx context.Context, id string) (*storage.Repository, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	repoID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse repository id: %w", err)
	}
	row := tc.client.q(ctx).QueryRow(ctx, getRepositoryQuery, repoID, scope.TenantID)
	return scanRepository(row)
}

func scanRepository(row pgx.Row) (*storage.Repository, error) {
	r := &storage.Repository{}
	var policyJSON []byte
	err := row.Scan(&r.ID, &r.TenantID, &r.GitHubRepoID, &r.Owner, &r.Name, &r.FullName,
		&r.Enabled, &policyJSON, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrRepositoryNotFound
		}
		return nil, fmt.Errorf("postgres: scan repository: %w", err)
	}
	if err := unmarshalInterfaceMap(policyJSON, &r.PolicyOverrides); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal policy_overrides: %w", err)
	}
	return r, nil
}

func (tc *TenantClient) ListRepositories(ctx context.Context, filters storage.RepositoryFilters) ([]*storage.Repository, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	query := `
SELECT id, tenant_id, github_repo_id, owner, name, full_name, enabled, policy_overrides, created_at, updated_at
FROM repositories WHERE tenant_id = $1`
	args := []interface{}{scope.TenantID}
	argPos := 2
	if filters.Enabled != nil {
		query += fmt.Sprintf(" AND enabled = $%d", argPos)
		args = append(args, *filters.Enabled)
		argPos++
	}
	query += " ORDER BY created_at ASC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	rows, err := tc.client.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list repositories: %w", err)
	}
	defer rows.Close()

	var repos []*storage.Repository
	for rows.Next() {
		r := &storage.Repository{}
		var policyJSON []byte
		if err := rows.Scan(&r.ID, &r.TenantID, &r.GitHubRepoID, &r.Owner, &r.Name, &r.FullName,
			&r.Enabled, &policyJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan repository: %w", err)
		}
		if err := unmarshalInterfaceMap(policyJSON, &r.PolicyOverrides); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal policy_overrides: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

const updateRepositoryQuery = `
UPDATE repositories SET owner = $3, name = $4, full_name = $5, enabled = $6, policy_overrides = $7, updated_at = NOW()
WHERE id = $1 AND tenant_id = $2
RETURNING updated_at
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
		return fmt.Errorf("postgres: update repository: %w", err)
	}
	err = tc.client.q(ctx).QueryRow(ctx, updateRepositoryQuery,
		repo.ID, scope.TenantID, repo.Owner, repo.Name, repo.FullName, repo.Enabled,
		jsonbOrEmpty(repo.PolicyOverrides),
	).Scan(&repo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrRepositoryNotFound
		}
		return fmt.Errorf("postgres: update repository: %w", err)
	}
	return nil
}

const createJobQuery = `
INSERT INTO jobs (id, tenant_id, repository_id, status, issue_number, issue_title, issue_body, issue_url, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at
`

func (tc *TenantClient) CreateJob(ctx context.Context, job *storage.Job) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	if err := schema.ValidateJobMetadata(job.Metadata); err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.TenantID = uuid.MustParse(scope.TenantID)
	err = tc.client.q(ctx).QueryRow(ctx, createJobQuery,
		job.ID, job.TenantID, job.RepositoryID, job.Status, job.IssueNumber,
		job.IssueTitle, job.IssueBody, job.IssueURL, jsonbOrEmpty(job.Metadata),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create job: %w", err)
	}
	return nil
}

const getJobQuery = `
SELECT id, tenant_id, repository_id, status, issue_number, issue_title, issue_body, issue_url, metadata, created_at, updated_at
FROM jobs WHERE id = $1 AND tenant_id = $2
`

// GetJob returns ErrJobNotFound identically whether the row is absent or
// belongs to another tenant — the AND-ed predicate makes the two cases
// indistinguishable at the SQL level, so there is nothing to leak.
func (tc *TenantClient) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	jobID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse job id: %w", err)
	}
	row := tc.client.q(ctx).QueryRow(ctx, getJobQuery, jobID, scope.TenantID)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*storage.Job, error) {
	j := &storage.Job{}
	var metadataJSON []byte
	err := row.Scan(&j.ID, &j.TenantID, &j.RepositoryID, &j.Status, &j.IssueNumber,
		&j.IssueTitle, &j.IssueBody, &j.IssueURL, &metadataJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrJobNotFound
		}
		return nil, fmt.Errorf("postgres: scan job: %w", err)
	}
	if err := unmarshalInterfaceMap(metadataJSON, &j.Metadata); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal job metadata: %w", err)
	}
	return j, nil
}

func (tc *TenantClient) ListJobs(ctx context.Context, filters storage.JobFilters) ([]*storage.Job, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	query := `
SELECT id, tenant_id, repository_id, status, issue_number, issue_title, issue_body, issue_url, metadata, created_at, updated_at
FROM jobs WHERE tenant_id = $1`
	args := []interface{}{scope.TenantID}
	argPos := 2
	if len(filters.Statuses) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, filters.Statuses)
		argPos++
	}
	if filters.RepositoryID != "" {
		query += fmt.Sprintf(" AND repository_id = $%d", argPos)
		args = append(args, filters.RepositoryID)
		argPos++
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	rows, err := tc.client.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*storage.Job
	for rows.Next() {
		j := &storage.Job{}
		var metadataJSON []byte
		if err := rows.Scan(&j.ID, &j.TenantID, &j.RepositoryID, &j.Status, &j.IssueNumber,
			&j.IssueTitle, &j.IssueBody, &j.IssueURL, &metadataJSON, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan job: %w", err)
		}
		if err := unmarshalInterfaceMap(metadataJSON, &j.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal job metadata: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

const transitionUpdateQuery = `
UPDATE jobs SET status = $4, metadata = metadata || $5::jsonb, updated_at = NOW()
WHERE id = $1 AND tenant_id = $2 AND status = $3
`

const recordTransitionQuery = `
INSERT INTO job_state_history (id, job_id, from_status, to_status, reason, triggered_by, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Transition is the atomic read-compute-write binding the pure jobstate
// functions to storage (spec.md §4.1): event is validated against from via
// jobstate.Apply before any query runs, so an illegal event is rejected
// structurally rather than trusted from the caller. It is then run inside
// WithTx so the job row update and the audit insert commit together, and
// the WHERE clause's status = $3 check serializes concurrent transitions
// on the same job — only one writer's conditional update affects a row.
func (tc *TenantClient) Transition(ctx context.Context, jobID string, from string, event jobstate.Event, reason string, metadataPatch map[string]interface{}) error {
	scope, err := tc.scope(ctx)
	if err != nil {
		return err
	}
	toStatus, err := jobstate.Apply(jobstate.Status(from), event)
	if err != nil {
		return fmt.Errorf("postgres: transition job: %w", err)
	}
	to := string(toStatus)
	if err := schema.ValidateJobMetadata(metadataPatch); err != nil {
		return fmt.Errorf("postgres: transition job: %w", err)
	}
	return tc.client.WithTx(ctx, func(ctx context.Context) error {
		tag, err := tc.client.q(ctx).Exec(ctx, transitionUpdateQuery, jobID, scope.TenantID, from, to, jsonbOrEmpty(metadataPatch))
		if err != nil {
			return fmt.Errorf("postgres: transition job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Either the job doesn't exist for this tenant, or its status
			// already moved past `from` — a concurrent transition won.
			return storage.ErrJobNotFound
		}
		historyID := uuid.New()
		var fromPtr *string
		if from != "" {
			fromPtr = &from
		}
		_, err = tc.client.q(ctx).Exec(ctx, recordTransitionQuery,
			historyID, jobID, fromPtr, to, reason, "worker", jsonbOrEmpty(metadataPatch))
		if err != nil {
			return fmt.Errorf("postgres: record state transition: %w", err)
		}
		return nil
	})
}

const getHistoryQuery = `
SELECT h.id, h.job_id, h.from_status, h.to_status, h.reason, h.triggered_by, h.metadata, h.created_at
FROM job_state_history h JOIN jobs j ON j.id = h.job_id
WHERE h.job_id = $1 AND j.tenant_id = $2 ORDER BY h.created_at ASC
`

func (tc *TenantClient) GetStateHistory(ctx context.Context, jobID string) ([]*storage.JobStateTransition, error) {
	scope, err := tc.scope(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tc.client.q(ctx).Query(ctx, getHistoryQuery, jobID, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get state history: %w", err)
	}
	defer rows.Close()

	var history []*storage.JobStateTransition
	for rows.Next() {
		st := &storage.JobStateTransition{}
		var metadataJSON []byte
		if err := rows.Scan(&st.ID, &st.JobID, &st.FromStatus, &st.ToStatus, &st.Reason,
			&st.TriggeredBy, &metadataJSON, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan state transition: %w", err)
		}
		if err := unmarshalInterfaceMap(metadataJSON, &st.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal transition metadata: %w", err)
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
