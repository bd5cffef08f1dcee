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

// PlanWorker is the only worker that transitions its job on entry: it fires
// START_PLANNING before calling the agent, since it is the first stage a
// newly created job passes through.
type PlanWorker struct {
	tenants   storage.TenantClient
	agents    *agent.Registry
	agentName string
	broker    queue.Broker
	timeout   time.Duration
	logger    *zap.Logger
}

// NewPlanWorker builds a PlanWorker.
func NewPlanWorker(tenants storage.TenantClient, agents *agent.Registry, agentName string, broker queue.Broker, timeout time.Duration, logger *zap.Logger) *PlanWorker {
	return &PlanWorker{
		tenants:   tenants,
		agents:    agents,
		agentName: agentName,
		broker:    broker,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "plan-worker")),
	}
}

func (w *PlanWorker) Stage() jobstate.Stage { return jobstate.StagePlanning }

// HandleOnce implements queue.Handler.
func (w *PlanWorker) HandleOnce(ctx context.Context, msg queue.Message) error {
	ctx = scopedContext(ctx, msg.TenantID)

	job, err := w.tenants.GetJob(ctx, msg.JobID)
	if err != nil {
		return fmt.Errorf("pipeline: plan worker load job: %w", err)
	}

	if job.Status != string(jobstate.EntryStatus(jobstate.StagePlanning)) {
		w.logger.Info("job not queued, abandoning without writing",
			zap.String("job_id", job.ID.String()), zap.String("status", job.Status))
		return nil
	}

	if err := w.tenants.Transition(ctx, job.ID.String(), job.Status, jobstate.EventStartPlanning, "planning started", nil); err != nil {
		return fmt.Errorf("pipeline: plan worker transition to planning: %w", err)
	}

	a, err := w.agents.Get(w.agentName)
	if err != nil {
		return w.fail(ctx, job, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := a.Plan(callCtx, jobContextFrom(job))
	if err != nil {
		return w.fail(ctx, job, err)
	}

	patch, err := toPatch("plan", result)
	if err != nil {
		return w.fail(ctx, job, fmt.Errorf("encode plan result: %w", err))
	}

	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusPlanning), jobstate.EventPlanSucceeded, "plan succeeded", patch); err != nil {
		return fmt.Errorf("pipeline: plan worker transition to coding: %w", err)
	}

	return w.broker.Enqueue(ctx, jobstate.StageCoding, queue.Message{
		JobID:       job.ID.String(),
		TenantID:    msg.TenantID,
		Attempt:     0,
		DedupeToken: job.ID.String(),
	})
}

func (w *PlanWorker) fail(ctx context.Context, job *storage.Job, cause error) error {
	w.logger.Warn("plan failed", zap.String("job_id", job.ID.String()), zap.Error(cause))
	if err := w.tenants.Transition(ctx, job.ID.String(), string(jobstate.StatusPlanning), jobstate.EventPlanFailed,
		"plan failed", errorMetadata(jobstate.StatusPlanning, cause)); err != nil {
		return fmt.Errorf("pipeline: plan worker transition to failed: %w", err)
	}
	return nil
}
