package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/prcollab"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

// PrOpenWorker's entry state is PR_OPEN. It is the terminal stage: on
// success it drives the job to COMPLETED and enqueues nothing further.
type PrOpenWorker struct {
	tenants    storage.TenantClient
	opener     prcollab.Opener
	baseBranch string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewPrOpenWorker builds a PrOpenWorker.
func NewPrOpenWorker(tenants storage.TenantClient, opener prcollab.Opener, baseBranch string, timeout time.Duration, logger *zap.Logger) *PrOpenWorker {
	return &PrOpenWorker{
		tenants:    tenants,
		opener:     opener,
		baseBranch: baseBranch,
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "pr-open-worker")),
	}
}

func (w *PrOpenWorker) Stage() jobstate.Stage { return jobstate.StagePROpen }

func (w *PrOpenWorker) HandleOnce(ctx context.Context, msg queue.Message) error {
	ctx = scopedContext(ctx, msg.TenantID)

	job, err := w.tenants.GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("pipeline: pr-open worker load job: %w", err)
	}

	if job.Status != string(jobstate.EntryStatus(jobstate.StagePROpen)) {
		w.logger.Info("job not pr-open, abandoning without writing",
			zap.String("job_id", job.ID.String()), zap.String("status", job.Status))
		return nil
	}

	code, err := fromMetadata[agent.CodeResult](job.Metadata, "code")
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("decode code from metadata: %w", err))
	}
	if code == nil {
		return w.fail(ctx, job, fmt.Errorf("job has no recorded code result"))
	}

	repo, err := w.tenants.GetRepositoryByID(ctx, job.RepositoryID.String())
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("load repository: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := w.opener.OpenPullRequest(callCtx, prcollab.Request{
		Owner:         repo.Owner,
		Repo:          repo.Name,
		Branch:        code.Branch,
		BaseBranch:    w.baseBranch,
		CommitMessage: code.CommitMessage,
		Title:         fmt.Sprintf("Fix #%d: %s", job.IssueNumber, job.IssueTitle),
		Body:          fmt.Sprintf("Resolves #%d.\n\n%s", job.IssueNumber, job.IssueURL),
		Changes:       code.Changes,
	})
	if err != nil {
		return w.fail(ctx, job, err)
	}

	patch, err := toPatch("pr", result)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("encode pr result: %w", err))
	}

	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusPROpen), jobstate.EventPROpened, "pr opened", patch); err != nil {
		return fmt.Errorf("pipeline: pr-open worker transition to completed: %w", err)
	}

	w.logger.Info("pull request opened", zap.String("job_id", job.ID.String()), zap.Int("pr_number", result.PRNumber))
	return nil
}

func (w *PrOpenWorker) fail(ctx context.Context, job *storage.Job, cause error) error {
	w.logger.Warn("pr-open failed", zap.String("job_id", job.ID.String()), zap.Error(cause))
	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusPROpen), jobstate.EventPRFailed,
		"pr-open failed", errorMetadata(jobstate.StatusPROpen, cause)); err != nil {
		return fmt.Errorf("pipeline: pr-open worker transition to failed: %w", err)
	}
	return nil
}
