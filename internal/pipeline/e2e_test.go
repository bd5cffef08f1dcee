package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/agent/mock"
	"github.com/codeforge-run/orchestrator/internal/database"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/pipeline"
	"github.com/codeforge-run/orchestrator/internal/prcollab/mockopener"
	"github.com/codeforge-run/orchestrator/internal/queue/inprocess"
	"github.com/codeforge-run/orchestrator/internal/storage"
	storagesqlite "github.com/codeforge-run/orchestrator/internal/storage/sqlite"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

// harness wires a full in-process pipeline (producer, four stage workers,
// engine, lifecycle) over a seeded temp-file SQLite database, exactly as
// cmd/orchestrator-worker wires the same pieces against a real config.
type harness struct {
	tenants      storage.TenantClient
	producer     *pipeline.Producer
	lifecycle    *pipeline.Lifecycle
	repositoryID string
	tenantID     string
}

func newHarness(t *testing.T, a agent.Agent, maxReviewAttempts int) *harness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "pipeline-e2e.db")
	if err := database.RunMigrations("sqlite", "sqlite3://"+dbPath, zap.NewNop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	planID := uuid.New().String()
	if _, err := db.Exec(`INSERT INTO plans (id, name, display_name) VALUES (?, ?, ?)`, planID, "free", "Free"); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	tenantID := uuid.New().String()
	if _, err := db.Exec(
		`INSERT INTO tenants (id, github_installation_id, github_account_login, github_account_type, plan_id) VALUES (?, ?, ?, ?, ?)`,
		tenantID, 2001, "acme", "Organization", planID,
	); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	repositoryID := uuid.New().String()
	if _, err := db.Exec(
		`INSERT INTO repositories (id, tenant_id, github_repo_id, owner, name, full_name, enabled) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		repositoryID, tenantID, 555, "acme", "widgets", "acme/widgets", true,
	); err != nil {
		t.Fatalf("seed repository: %v", err)
	}

	client, err := storagesqlite.New(db, zap.NewNop())
	if err != nil {
		t.Fatalf("storagesqlite.New: %v", err)
	}
	tenants := storagesqlite.NewTenantClient(client)

	broker := inprocess.New(3, time.Millisecond, 50*time.Millisecond, zap.NewNop())
	t.Cleanup(func() { broker.Close() })

	registry := agent.NewRegistry(zap.NewNop())
	if err := registry.Register(a); err != nil {
		t.Fatalf("register agent: %v", err)
	}
	opener := mockopener.New()

	workers := []pipeline.StageWorker{
		pipeline.NewPlanWorker(tenants, registry, a.Name(), broker, time.Second, zap.NewNop()),
		pipeline.NewCodeWorker(tenants, registry, a.Name(), broker, time.Second, zap.NewNop()),
		pipeline.NewReviewWorker(tenants, registry, a.Name(), broker, time.Second, maxReviewAttempts, zap.NewNop()),
		pipeline.NewPrOpenWorker(tenants, opener, "main", time.Second, zap.NewNop()),
	}

	engine := pipeline.NewInProcessEngine(broker, workers, 2, zap.NewNop())
	lifecycle := pipeline.NewLifecycle(engine, broker, 2*time.Second, "", zap.NewNop())

	return &harness{
		tenants:      tenants,
		producer:     pipeline.NewProducer(tenants, broker, zap.NewNop()),
		lifecycle:    lifecycle,
		repositoryID: repositoryID,
		tenantID:     tenantID,
	}
}

// pollUntilTerminal polls GetJob every 50ms, recording the distinct status
// sequence observed, until the job reaches a terminal status or the deadline
// elapses.
func pollUntilTerminal(t *testing.T, tenants storage.TenantClient, ctx context.Context, jobID string, deadline time.Duration) (*storage.Job, []string) {
	t.Helper()

	var sequence []string
	var last string
	start := time.Now()

	for time.Since(start) < deadline {
		job, err := tenants.GetJob(ctx, jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status != last {
			sequence = append(sequence, job.Status)
			last = job.Status
		}
		if jobstate.IsTerminal(jobstate.Status(job.Status)) {
			return job, sequence
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("job %s did not reach a terminal status within %s (sequence so far: %v)", jobID, deadline, sequence)
	return nil, nil
}

func containsInOrder(sequence []string, want []string) bool {
	i := 0
	for _, s := range sequence {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestEndToEnd_HappyPath(t *testing.T) {
	h := newHarness(t, mock.New(mock.WithDelay(50*time.Millisecond)), 3)
	ctx := tenantscope.With(t.Context(), tenantscope.Scope{TenantID: h.tenantID})

	if err := h.lifecycle.Start(ctx); err != nil {
		t.Fatalf("lifecycle.Start: %v", err)
	}
	defer h.lifecycle.Stop()

	start := time.Now()
	jobID, err := h.producer.CreateJob(ctx, pipeline.CreateJobRequest{
		RepositoryID: h.repositoryID,
		IssueNumber:  123,
		IssueTitle:   "Test Issue",
		IssueBody:    "something is broken",
		IssueURL:     "https://github.com/acme/widgets/issues/123",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, sequence := pollUntilTerminal(t, h.tenants, ctx, jobID, 30*time.Second)
	elapsed := time.Since(start)

	if job.Status != string(jobstate.StatusCompleted) {
		t.Fatalf("final status = %q, want %q (sequence: %v)", job.Status, jobstate.StatusCompleted, sequence)
	}

	// PR_OPEN lasts only as long as the mock opener call, too short for a
	// 50ms poll to see reliably, so the order is checked against the
	// recorded state history rather than the polled sequence.
	history, err := h.tenants.GetStateHistory(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStateHistory: %v", err)
	}
	var recorded []string
	for i, transition := range history {
		if i == 0 && transition.FromStatus != nil {
			recorded = append(recorded, *transition.FromStatus)
		}
		recorded = append(recorded, transition.ToStatus)
	}

	want := []string{
		string(jobstate.StatusQueued),
		string(jobstate.StatusPlanning),
		string(jobstate.StatusCoding),
		string(jobstate.StatusReviewing),
		string(jobstate.StatusPROpen),
		string(jobstate.StatusCompleted),
	}
	if !containsInOrder(recorded, want) {
		t.Fatalf("recorded status sequence %v does not contain %v in order (polled: %v)", recorded, want, sequence)
	}

	if elapsed >= 30*time.Second {
		t.Fatalf("pipeline took %s, want under 30s", elapsed)
	}
}

func TestEndToEnd_PlanningFailure(t *testing.T) {
	planErr := errors.New("mock planning backend unavailable")
	h := newHarness(t, mock.New(mock.WithPlanFailure(planErr)), 3)
	ctx := tenantscope.With(t.Context(), tenantscope.Scope{TenantID: h.tenantID})

	if err := h.lifecycle.Start(ctx); err != nil {
		t.Fatalf("lifecycle.Start: %v", err)
	}
	defer h.lifecycle.Stop()

	jobID, err := h.producer.CreateJob(ctx, pipeline.CreateJobRequest{
		RepositoryID: h.repositoryID,
		IssueNumber:  124,
		IssueTitle:   "Planning will fail",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, sequence := pollUntilTerminal(t, h.tenants, ctx, jobID, 10*time.Second)

	if job.Status != string(jobstate.StatusFailed) {
		t.Fatalf("final status = %q, want %q (sequence: %v)", job.Status, jobstate.StatusFailed, sequence)
	}
	if got, _ := job.Metadata["failedAt"].(string); got != string(jobstate.StatusPlanning) {
		t.Errorf("metadata[failedAt] = %q, want %q", got, jobstate.StatusPlanning)
	}
	details, _ := job.Metadata["errorDetails"].(string)
	if details == "" {
		t.Error("expected non-empty metadata[errorDetails]")
	}
}

func TestEndToEnd_ReviewRejectionLoopBounded(t *testing.T) {
	const maxReviewAttempts = 3
	h := newHarness(t, mock.New(mock.WithForcedRejection()), maxReviewAttempts)
	ctx := tenantscope.With(t.Context(), tenantscope.Scope{TenantID: h.tenantID})

	if err := h.lifecycle.Start(ctx); err != nil {
		t.Fatalf("lifecycle.Start: %v", err)
	}
	defer h.lifecycle.Stop()

	jobID, err := h.producer.CreateJob(ctx, pipeline.CreateJobRequest{
		RepositoryID: h.repositoryID,
		IssueNumber:  125,
		IssueTitle:   "Review keeps rejecting",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, sequence := pollUntilTerminal(t, h.tenants, ctx, jobID, 15*time.Second)

	if job.Status != string(jobstate.StatusFailed) {
		t.Fatalf("final status = %q, want %q (sequence: %v)", job.Status, jobstate.StatusFailed, sequence)
	}

	history, err := h.tenants.GetStateHistory(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStateHistory: %v", err)
	}

	var backTransitions int
	var lastAttempts float64
	for _, transition := range history {
		if transition.FromStatus != nil &&
			*transition.FromStatus == string(jobstate.StatusReviewing) &&
			transition.ToStatus == string(jobstate.StatusCoding) {
			backTransitions++
			if attempts, ok := transition.Metadata["attempts"].(float64); ok {
				if attempts <= lastAttempts {
					t.Errorf("attempts did not increase across rejections: previous %v, got %v", lastAttempts, attempts)
				}
				lastAttempts = attempts
			} else {
				t.Error("expected numeric attempts in coding-rejection metadata")
			}
		}
	}

	if backTransitions < 1 {
		t.Fatalf("expected at least one REVIEWING -> CODING back-transition, observed history: %+v", history)
	}
	if backTransitions >= maxReviewAttempts+1 {
		t.Fatalf("rejection loop ran %d times, exceeding the configured cap of %d", backTransitions, maxReviewAttempts)
	}
}
