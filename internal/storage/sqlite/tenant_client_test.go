package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

func mustNewUUIDString(t *testing.T) string {
	t.Helper()
	return uuid.New().String()
}

func parseUUIDOrFatal(t *testing.T, s string, out *uuid.UUID) {
	t.Helper()
	if err := parseUUID(s, out); err != nil {
		t.Fatalf("parse uuid %q: %s", s, err)
	}
}

// applySchema runs every *.up.sql migration in internal/database/migrations/
// sqlite directly against db, in filename order, bypassing golang-migrate so
// the test doesn't need a second driver registration for an in-memory DB.
func applySchema(t *testing.T, db *sqlx.DB) {
	t.Helper()
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	migrationsDir := filepath.Join(filepath.Dir(filepath.Dir(dir)), "database", "migrations", "sqlite")

	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %s", err)
	}
	var files []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".sql" && filepath.Ext(strippedExt(e.Name())) == ".up" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		b, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			t.Fatalf("read migration %s: %s", f, err)
		}
		if _, err := db.Exec(string(b)); err != nil {
			t.Fatalf("apply migration %s: %s", f, err)
		}
	}
}

func strippedExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func setupTestClient(t *testing.T) *Client {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %s", err)
	}
	dbx := sqlx.NewDb(db, "sqlite")
	if _, err := dbx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %s", err)
	}
	applySchema(t, dbx)

	client, err := New(dbx, zap.NewNop())
	if err != nil {
		t.Fatalf("create client: %s", err)
	}
	t.Cleanup(func() { dbx.Close() })
	return client
}

func seedTenantAndPlan(t *testing.T, ctx context.Context, c *Client) *storage.Tenant {
	t.Helper()
	planID := mustNewUUIDString(t)
	if _, err := c.db.ExecContext(ctx, `INSERT INTO plans (id, name, display_name) VALUES (?, ?, ?)`,
		planID, "starter-"+planID, "Starter"); err != nil {
		t.Fatalf("seed plan: %s", err)
	}

	tenant := &storage.Tenant{
		GitHubInstallationID: time.Now().UnixNano(),
		GitHubAccountLogin:   "octocat",
		GitHubAccountType:    "Organization",
		InstalledAt:          time.Now(),
		InstallationStatus:   storage.InstallationStatusActive,
	}
	parseUUIDOrFatal(t, planID, &tenant.PlanID)
	if err := c.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("seed tenant: %s", err)
	}
	return tenant
}

func TestTenantClient_CreateAndGetJob(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	tenant := seedTenantAndPlan(t, ctx, client)

	tc := NewTenantClient(client)
	scoped := tenantscope.With(ctx, tenantscope.Scope{TenantID: tenant.ID.String()})

	repo := &storage.Repository{GitHubRepoID: 42, Owner: "octocat", Name: "hello-world", FullName: "octocat/hello-world", Enabled: true}
	if err := tc.CreateRepository(scoped, repo); err != nil {
		t.Fatalf("CreateRepository() error = %v", err)
	}

	job := &storage.Job{RepositoryID: repo.ID, Status: "QUEUED", IssueNumber: 7, IssueTitle: "fix the thing", IssueURL: "https://github.com/octocat/hello-world/issues/7"}
	if err := tc.CreateJob(scoped, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, err := tc.GetJob(scoped, job.ID.String())
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.IssueTitle != job.IssueTitle {
		t.Errorf("GetJob() IssueTitle = %q, want %q", got.IssueTitle, job.IssueTitle)
	}
}

func TestTenantClient_GetJob_CrossTenantIsNotFound(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	tenantA := seedTenantAndPlan(t, ctx, client)
	tenantB := seedTenantAndPlan(t, ctx, client)

	tc := NewTenantClient(client)
	scopedA := tenantscope.With(ctx, tenantscope.Scope{TenantID: tenantA.ID.String()})
	scopedB := tenantscope.With(ctx, tenantscope.Scope{TenantID: tenantB.ID.String()})

	repo := &storage.Repository{GitHubRepoID: 99, Owner: "a", Name: "r", FullName: "a/r", Enabled: true}
	if err := tc.CreateRepository(scopedA, repo); err != nil {
		t.Fatalf("CreateRepository() error = %v", err)
	}
	job := &storage.Job{RepositoryID: repo.ID, Status: "QUEUED", IssueNumber: 1, IssueTitle: "t", IssueURL: "u"}
	if err := tc.CreateJob(scopedA, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	_, err := tc.GetJob(scopedB, job.ID.String())
	if err != storage.ErrJobNotFound {
		t.Errorf("GetJob() across tenants error = %v, want %v", err, storage.ErrJobNotFound)
	}
}

func TestTenantClient_Transition(t *testing.T) {
	client := setupTestClient(t)
	ctx := context.Background()
	tenant := seedTenantAndPlan(t, ctx, client)
	tc := NewTenantClient(client)
	scoped := tenantscope.With(ctx, tenantscope.Scope{TenantID: tenant.ID.String()})

	repo := &storage.Repository{GitHubRepoID: 1, Owner: "o", Name: "r", FullName: "o/r", Enabled: true}
	if err := tc.CreateRepository(scoped, repo); err != nil {
		t.Fatalf("CreateRepository() error = %v", err)
	}
	job := &storage.Job{RepositoryID: repo.ID, Status: "QUEUED", IssueNumber: 1, IssueTitle: "t", IssueURL: "u"}
	if err := tc.CreateJob(scoped, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := tc.Transition(scoped, job.ID.String(), "QUEUED", jobstate.EventStartPlanning, "worker claimed job", nil); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	got, err := tc.GetJob(scoped, job.ID.String())
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != "PLANNING" {
		t.Errorf("Transition() status = %q, want PLANNING", got.Status)
	}

	err = tc.Transition(scoped, job.ID.String(), "QUEUED", jobstate.EventStartPlanning, "duplicate claim", nil)
	if err != storage.ErrJobNotFound {
		t.Errorf("Transition() from stale state error = %v, want %v", err, storage.ErrJobNotFound)
	}

	history, err := tc.GetStateHistory(scoped, job.ID.String())
	if err != nil {
		t.Fatalf("GetStateHistory() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("GetStateHistory() len = %d, want 1", len(history))
	}
	if history[0].FromStatus == nil || *history[0].FromStatus != "QUEUED" {
		t.Errorf("GetStateHistory()[0].FromStatus = %v, want QUEUED", history[0].FromStatus)
	}
}
