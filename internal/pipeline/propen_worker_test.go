package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/prcollab/mockopener"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

func newPROpenJob(repoID uuid.UUID) *storage.Job {
	job := newQueuedJob()
	job.RepositoryID = repoID
	job.Status = string(jobstate.StatusPROpen)
	patch, _ := toPatch("code", &agent.CodeResult{
		Branch:        "mock/issue-42",
		CommitMessage: "Fix #42",
		Changes:       []agent.Change{{Path: "a.go", Operation: agent.ChangeCreate, Content: "package a\n"}},
	})
	job.Metadata = patch
	return job
}

func TestPrOpenWorker_Success(t *testing.T) {
	tenants := newFakeTenantClient()
	repo := &storage.Repository{ID: uuid.New(), Owner: "acme", Name: "widgets"}
	tenants.repositories[repo.ID.String()] = repo

	job := newPROpenJob(repo.ID)
	tenants.jobs[job.ID.String()] = job

	opener := mockopener.New()
	w := NewPrOpenWorker(tenants, opener, "main", time.Second, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusCompleted) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusCompleted)
	}
	if _, ok := got.Metadata["pr"]; !ok {
		t.Error("expected pr result recorded in metadata")
	}

	requests := opener.Requests()
	if len(requests) != 1 || requests[0].Owner != "acme" || requests[0].Repo != "widgets" {
		t.Errorf("unexpected opener request: %+v", requests)
	}
}

func TestPrOpenWorker_OpenerFailure(t *testing.T) {
	tenants := newFakeTenantClient()
	repo := &storage.Repository{ID: uuid.New(), Owner: "acme", Name: "widgets"}
	tenants.repositories[repo.ID.String()] = repo

	job := newPROpenJob(repo.ID)
	tenants.jobs[job.ID.String()] = job

	opener := mockopener.New(mockopener.WithFailure(errNotRetryable))
	w := NewPrOpenWorker(tenants, opener, "main", time.Second, zap.NewNop())

	if err := w.HandleOnce(t.Context(), queue.Message{JobID: job.ID.String(), TenantID: job.TenantID.String()}); err != nil {
		t.Fatalf("HandleOnce() error = %v", err)
	}

	got, _ := tenants.GetJob(t.Context(), job.ID.String())
	if got.Status != string(jobstate.StatusFailed) {
		t.Errorf("Status = %q, want %q", got.Status, jobstate.StatusFailed)
	}
}

var errNotRetryable = errors.New("pr open failed permanently")
