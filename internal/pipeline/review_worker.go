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

// ReviewWorker's entry state is REVIEWING. On rejection it re-enqueues onto
// coding, capped at maxReviewAttempts to close the otherwise-unbounded
// rejection loop.
type ReviewWorker struct {
	tenants           storage.TenantClient
	agents            *agent.Registry
	agentName         string
	broker            queue.Broker
	timeout           time.Duration
	maxReviewAttempts int
	logger            *zap.Logger
}

// NewReviewWorker builds a ReviewWorker.
func NewReviewWorker(tenants storage.TenantClient, agents *agent.Registry, agentName string, broker queue.Broker, timeout time.Duration, maxReviewAttempts int, logger *zap.Logger) *ReviewWorker {
	return &ReviewWorker{
		tenants:           tenants,
		agents:            agents,
		agentName:         agentName,
		broker:            broker,
		timeout:           timeout,
		maxReviewAttempts: maxReviewAttempts,
		logger:            logger.With(zap.String("component", "review-worker")),
	}
}

func (w *ReviewWorker) Stage() jobstate.Stage { return jobstate.StageReviewing }

func (w *ReviewWorker) HandleOnce(ctx context.Context, msg queue.Message) error {
	ctx = scopedContext(ctx, msg.TenantID)

	job, err := w.tenants.GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("pipeline: review worker load job: %w", err)
	}

	if job.Status != string(jobstate.EntryStatus(jobstate.StageReviewing)) {
		w.logger.Info("job not reviewing, abandoning without writing",
			zap.String("job_id", job.ID.String()), zap.String("status", job.Status))
		return nil
	}

	plan, err := fromMetadata[agent.PlanResult](job.Metadata, "plan")
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("decode plan from metadata: %w", err))
	}
	code, err := fromMetadata[agent.CodeResult](job.Metadata, "code")
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("decode code from metadata: %w", err))
	}

	a, err := w.agents.Get(w.agentName)
	if err != nil {
		return w.fail(ctx, job, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := a.Review(callCtx, jobContextFrom(job), plan, code)
	if err != nil {
		return w.fail(ctx, job, err)
	}

	patch, err := toPatch("review", result)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("encode review result: %w", err))
	}

	if result.Approved {
		if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusReviewing), jobstate.EventReviewApproved, "review approved", patch); err != nil {
			return fmt.Errorf("pipeline: review worker transition to pr-open: %w", err)
		}
		return w.broker.Enqueue(ctx, jobstate.StagePROpen, queue.Message{
			JobID:       job.ID.String(),
			TenantID:    msg.TenantID,
			Attempt:     0,
			DedupeToken: job.ID.String(),
		})
	}

	attempts := attemptsFromMetadata(job.Metadata) + 1
	if attempts >= w.maxReviewAttempts {
		exhausted := errorMetadata(jobstate.StatusReviewing,
			fmt.Errorf("review rejected %d times, exceeding the cap of %d", attempts, w.maxReviewAttempts))
		for k, v := range patch {
			exhausted[k] = v
		}
		if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusReviewing), jobstate.EventReviewExhausted, "review rejection cap exceeded", exhausted); err != nil {
			return fmt.Errorf("pipeline: review worker transition to failed (exhausted): %w", err)
		}
		w.logger.Warn("review rejection cap exceeded", zap.String("job_id", job.ID.String()), zap.Int("attempts", attempts))
		return nil
	}

	patch["attempts"] = attempts
	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusReviewing), jobstate.EventReviewRejected, "review rejected", patch); err != nil {
		return fmt.Errorf("pipeline: review worker transition to coding: %w", err)
	}

	return w.broker.Enqueue(ctx, jobstate.StageCoding, queue.Message{
		JobID:       job.ID.String(),
		TenantID:    msg.TenantID,
		Attempt:     0,
		DedupeToken: job.ID.String(),
	})
}

func (w *ReviewWorker) fail(ctx context.Context, job *storage.Job, cause error) error {
	w.logger.Warn("review failed", zap.String("job_id", job.ID.String()), zap.Error(cause))
	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusReviewing), jobstate.EventReviewFailed,
		"review failed", errorMetadata(jobstate.StatusReviewing, cause)); err != nil {
		return fmt.Errorf("pipeline: review worker transition to failed: %w", err)
	}
	return nil
}
