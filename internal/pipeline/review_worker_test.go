package pipeline

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/agent/mock"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

func newReviewingJob() *storage.Job {
	job := newCodingJob()
	job.Status = string(jobstate.StatusReviewing)
	codePatch, _ := toPatch("code", &agent.CodeResult{Branch: "mock/issue-42"})
	for k, v := range codePatch {
		job.Metadata[k] = v
	}
	return job
}

func TestReviewWorker_Approved(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newReviewingJob()
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New())

	w := NewReviewWorker(tenants, registry, "mock", broker, time.Second, 3, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusPROpen) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusPROpen)
	}
	if msgs := broker.messages(jobstate.StagePROpen); len(msgs) != 1 {
		t.Errorf("enqueued pr-open messages = %d, want 1", len(msgs))
	}
}

func TestReviewWorker_RejectedReenqueuesCoding(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newReviewingJob()
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New(mock.WithForcedRejection()))

	w := NewReviewWorker(tenants, registry, "mock", broker, time.Second, 3, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusCoding) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusCoding)
	}
	if got.Metadata["attempts"] != 1 {
		t.Errorf("attempts = %v, want 1", got.Metadata["attempts"])
	}
	if msgs := broker.messages(jobstate.StageCoding); len(msgs) != 1 {
		t.Errorf("enqueued coding messages = %d, want 1", len(msgs))
	}
}

func TestReviewWorker_ExhaustsAfterCap(t *testing.T) {
	tenants := newFakeTenantClient()
	job := newReviewingJob()
	job.Metadata["attempts"] = 2 // one rejection away from the cap of 3
	tenants.jobs[job.ID.String()] = job
	broker := newFakeBroker()
	registry := newRegistry(t, mock.New(mock.WithForcedRejection()))

	w := NewReviewWorker(tenants, registry, "mock", broker, time.Second, 3, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusFailed) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusFailed)
	}
	if got.Metadata["failedAt"] != string(jobstate.StatusReviewing) {
		t.Errorf("failedAt = %v, want %q", got.Metadata["failedAt"], jobstate.StatusReviewing)
	}
	if len(broker.messages(jobstate.StageCoding)) != 0 {
		t.Error("did not expect a further coding message once the cap is exceeded")
	}
}
