package pipeline

import (
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

func newCodingJob() *storage.Job {
	job := newQueuedJob()
	job.Status = string(jobstate.StatusCoding)
	patch, _ := toPatch("plan", &agent.PlanResult{Summary: "a plan"})
	job.Metadata = patch
	return job
}

func TestCodeWorker_Success(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newCodingJob()
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New())

	w := NewCodeWorker(tenants, registry, "mock", broker, time.Second, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusReviewing) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusReviewing)
	}
	if _, ok := got.Metadata["code"]; !ok {
		t.Error("expected code recorded in metadata")
	}
	if msgs := broker.messages(jobstate.StageReviewing); len(msgs) != 1 {
		t.Errorf("enqueued reviewing messages = %d, want 1", len(msgs))
	}
}

func TestCodeWorker_AbandonsWrongEntryState(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newCodingJob()
	job.Status = string(jobstate.StatusReviewing)
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New())

	w := NewCodeWorker(tenants, registry, "mock", broker, time.Second, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}
	if len(broker.messages(jobstate.StageReviewing)) != 0 {
		t.Error("did not expect a reviewing message")
	}
}
