package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

func TestProducer_CreateJob(t *testing.T) {
	tenants := newFakeTenantClient()
	broker := newFakeBroker()
	p := NewProducer(tenants, broker, zap.NewNop())

	ctx := tenantscope.With(t.Context(), tenantscope.Scope{TenantID: "tenant-1"})

	jobID, err := p.CreateJob(ctx, CreateJobRequest{
		RepositoryID: uuid.New().String(),
		IssueNumber:  7,
		IssueTitle:   "add widgets",
		IssueBody:    "please add widgets",
		IssueURL:     "https://example.com/issues/7",
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	job, err := tenants.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != string(jobstate.StatusQueued) {
		t.Errorf("Status = %q, want %q", job.Status, jobstate.StatusQueued)
	}

	msgs := broker.messages(jobstate.StagePlanning)
	if len(msgs) != 1 {
		t.Fatalf("enqueued planning messages = %d, want 1", len(msgs))
	}
	if msgs[0].JobID != jobID || msgs[0].TenantID != "tenant-1" {
		t.Errorf("enqueued message = %+v", msgs[0])
	}
}

func TestProducer_CreateJob_NoScope(t *testing.T) {
	p := NewProducer(newFakeTenantClient(), newFakeBroker(), zap.NewNop())
	_, err := p.CreateJob(t.Context(), CreateJobRequest{RepositoryID: uuid.New().String()})
	if err == nil {
		t.Fatal("expected error without a bound tenant scope")
	}
}
