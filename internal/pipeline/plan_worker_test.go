package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/agent/mock"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

func newQueuedJob() *storage.Job {
	return &storage.Job{
		ID:           uuid.New(),
		TenantID:     uuid.New(),
		RepositoryID: uuid.New(),
		Status:       string(jobstate.StatusQueued),
		IssueNumber:  42,
		IssueTitle:   "fix the thing",
		Metadata:     map[string]interface{}{},
	}
}

func newRegistry(t *testing.T, a agent.Agent) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry(zap.NewNop())
	if err := r.Register(a); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

func TestPlanWorker_Success(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newQueuedJob()
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New())

	w := NewPlanWorker(tenants, registry, "mock", broker, time.Second, zap.NewNop())

	err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()})
	if err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusCoding) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusCoding)
	}
	if _, ok := got.Metadata["plan"]; !ok {
		t.Error("expected plan recorded in metadata")
	}

	if msgs := broker.messages(jobstate.StageCoding); len(msgs) != 1 {
		t.Errorf("enqueued coding messages = %d, want 1", len(msgs))
	}
}

func TestPlanWorker_AgentFailure(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newQueuedJob()
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New(mock.WithPlanFailure(errors.New("boom"))))

	w := NewPlanWorker(tenants, registry, "mock", broker, time.Second, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusFailed) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusFailed)
	}
	if got.Metadata["failedAt"] != string(jobstate.StatusPlanning) {
		t.Errorf("failedAt = %v, want %q", got.Metadata["failedAt"], jobstate.StatusPlanning)
	}
	if len(broker.messages(jobstate.StageCoding)) != 0 {
		t.Error("did not expect a coding message on failure")
	}
}

func TestPlanWorker_AbandonsWrongEntryState(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newQueuedJob()
	job.Status = string(jobstate.StatusCancelled)
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New())

	w := NewPlanWorker(tenants, registry, "mock", broker, time.Second, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusCancelled) {
		t.Errorf("Status = %q, want unchanged %q", got.Status, jobstate.StatusCancelled)
	}
}
