package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

// CreateJobRequest is everything the Producer needs from an issue reference
// to seed a new job.
type CreateJobRequest struct {
	RepositoryID string
	IssueNumber  int
	IssueTitle   string
	IssueBody    string
	IssueURL     string
}

// Producer creates new jobs and seeds the planning queue. It is the only
// path that both inserts a Job row with status QUEUED and enqueues it on
// the planning queue.
type Producer struct {
	tenants storage.TenantClient
	broker  queue.Broker
	logger  *zap.Logger
}

// NewProducer builds a Producer over the given tenant-scoped storage client
// and queue broker.
func NewProducer(tenants storage.TenantClient, broker queue.Broker, logger *zap.Logger) *Producer {
	return &Producer{
		tenants: tenants,
		broker:  broker,
		logger:  logger.With(zap.String("component", "producer")),
	}
}

// CreateJob inserts a Job row with status QUEUED, enqueues it on the
// planning stage with message id equal to the job id, and returns the job
// id synchronously. The pipeline itself runs asynchronously from here on.
func (p *Producer) CreateJob(ctx context.Context, req CreateJobRequest) (string, error) {
	scope, err := tenantscope.From(ctx)
	if err != nil {
		return "", fmt.Errorf("pipeline: create job: %w", err)
	}

	repositoryID, err := uuid.Parse(req.RepositoryID)
	if err != nil {
		return "", fmt.Errorf("pipeline: invalid repository id %q: %w", req.RepositoryID, err)
	}

	job := &storage.Job{
		ID:           uuid.New(),
		RepositoryID: repositoryID,
		Status:       string(jobstate.StatusQueued),
		IssueNumber:  req.IssueNumber,
		IssueTitle:   req.IssueTitle,
		IssueBody:    req.IssueBody,
		IssueURL:     req.IssueURL,
		Metadata:     map[string]interface{}{},
	}

	if err := p.tenants.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("pipeline: create job row: %w", err)
	}

	msg := queue.Message{
		JobID:       job.ID.String(),
		TenantID:    scope.TenantID,
		Attempt:     0,
		DedupeToken: job.ID.String(),
	}
	if err := p.broker.Enqueue(ctx, jobstate.StagePlanning, msg); err != nil {
		return "", fmt.Errorf("pipeline: enqueue planning stage: %w", err)
	}

	p.logger.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("repository_id", req.RepositoryID),
		zap.Int("issue_number", req.IssueNumber))

	return job.ID.String(), nil
}
