package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

// CodeWorker's entry state is CODING, reached either from the Planning
// Worker or from a review rejection. It does not re-transition on entry —
// the previous worker already left the job in CODING as its last step.
type CodeWorker struct {
	tenants   storage.TenantClient
	agents    *agent.Registry
	agentName string
	broker    queue.Broker
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCodeWorker builds a CodeWorker.
func NewCodeWorker(tenants storage.TenantClient, agents *agent.Registry, agentName string, broker queue.Broker, timeout time.Duration, logger *zap.Logger) *CodeWorker {
	return &CodeWorker{
		tenants:   tenants,
		agents:    agents,
		agentName: agentName,
		broker:    broker,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "code-worker")),
	}
}

func (w *CodeWorker) Stage() jobstate.Stage { return jobstate.StageCoding }

func (w *CodeWorker) HandleOnce(ctx context.Context, msg queue.Message) error {
	ctx = scopedContext(ctx, msg.TenantID)

	job, err := w.tenants.GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("pipeline: code worker load job: %w", err)
	}

	if job.Status != string(jobstate.EntryStatus(jobstate.StageCoding)) {
		w.logger.Info("job not coding, abandoning without writing",
			zap.String("job_id", job.ID.String()), zap.String("status", job.Status))
		return nil
	}

	plan, err := fromMetadata[agent.PlanResult](job.Metadata, "plan")
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("decode plan from metadata: %w", err))
	}

	a, err := w.agents.Get(w.agentName)
	if err != nil {
		return w.fail(ctx, job, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := a.Code(callCtx, jobContextFrom(job), plan)
	if err != nil {
		return w.fail(ctx, job, err)
	}

	patch, err := toPatch("code", result)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("encode code result: %w", err))
	}

	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusCoding), jobstate.EventCodeSucceeded, "code succeeded", patch); err != nil {
		return fmt.Errorf("pipeline: code worker transition to reviewing: %w", err)
	}

	return w.broker.Enqueue(ctx, jobstate.StageReviewing, queue.Message{
		JobID:       job.ID.String(),
		TenantID:    msg.TenantID,
		Attempt:     0,
		DedupeToken: job.ID.String(),
	})
}

func (w *CodeWorker) fail(ctx context.Context, job *storage.Job, cause error) error {
	w.logger.Warn("code failed", zap.String("job_id", job.ID.String()), zap.Error(cause))
	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusCoding), jobstate.EventCodeFailed,
		"code failed", errorMetadata(jobstate.StatusCoding, cause)); err != nil {
		return fmt.Errorf("pipeline: code worker transition to failed: %w", err)
	}
	return nil
}
