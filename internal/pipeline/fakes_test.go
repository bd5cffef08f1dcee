package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/queue"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

// fakeTenantClient is an in-memory storage.TenantClient test double. It
// only implements the behavior the pipeline workers actually exercise.
type fakeTenantClient struct {
	mu           sync.Mutex
	jobs         map[string]*storage.Job
	repositories map[string]*storage.Repository
	history      map[string][]*storage.JobStateTransition

	transitionErr error
}

func newFakeTenantClient() *fakeTenantClient {
	return &fakeTenantClient{
		jobs:         make(map[string]*storage.Job),
		repositories: make(map[string]*storage.Repository),
		history:      make(map[string][]*storage.JobStateTransition),
	}
}

func (f *fakeTenantClient) CreateRepository(ctx context.Context, repo *storage.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repositories[repo.ID.String()] = repo
	return nil
}

func (f *fakeTenantClient) GetRepositoryByID(ctx context.Context, id string) (*storage.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, ok := f.repositories[id]
	if !ok {
		return nil, storage.ErrRepositoryNotFound
	}
	return repo, nil
}

func (f *fakeTenantClient) ListRepositories(ctx context.Context, filters storage.RepositoryFilters) ([]*storage.Repository, error) {
	return nil, nil
}

func (f *fakeTenantClient) UpdateRepository(ctx context.Context, repo *storage.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repositories[repo.ID.String()] = repo
	return nil
}

func (f *fakeTenantClient) CreateJob(ctx context.Context, job *storage.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID.String()] = job
	return nil
}

func (f *fakeTenantClient) GetJob(ctx context.Context, id string) (*storage.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *job
	cp.Metadata = cloneMetadata(job.Metadata)
	return &cp, nil
}

func (f *fakeTenantClient) ListJobs(ctx context.Context, filters storage.JobFilters) ([]*storage.Job, error) {
	return nil, nil
}

func (f *fakeTenantClient) Transition(ctx context.Context, jobID string, from string, event jobstate.Event, reason string, metadataPatch map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transitionErr != nil {
		return f.transitionErr
	}

	job, ok := f.jobs[jobID]
	if !ok {
		return storage.ErrJobNotFound
	}
	if job.Status != from {
		return fmt.Errorf("fakeTenantClient: job %s status %q does not match expected %q", jobID, job.Status, from)
	}
	toStatus, err := jobstate.Apply(jobstate.Status(from), event)
	if err != nil {
		return err
	}
	to := string(toStatus)

	if job.Metadata == nil {
		job.Metadata = map[string]interface{}{}
	}
	for k, v := range metadataPatch {
		job.Metadata[k] = v
	}
	job.Status = to

	f.history[jobID] = append(f.history[jobID], &storage.JobStateTransition{
		ID:       uuid.New(),
		JobID:    job.ID,
		ToStatus: to,
		Reason:   reason,
	})
	return nil
}

func (f *fakeTenantClient) GetStateHistory(ctx context.Context, jobID string) ([]*storage.JobStateTransition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[jobID], nil
}

func (f *fakeTenantClient) VerifyOwnership(ctx context.Context, rowTenantID string, kind string) error {
	return nil
}

func cloneMetadata(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fakeBroker is an in-memory queue.Broker test double that records every
// enqueued message per stage instead of actually delivering it.
type fakeBroker struct {
	mu       sync.Mutex
	enqueued map[jobstate.Stage][]queue.Message
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{enqueued: make(map[jobstate.Stage][]queue.Message)}
}

func (b *fakeBroker) Enqueue(ctx context.Context, stage jobstate.Stage, msg queue.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enqueued[stage] = append(b.enqueued[stage], msg)
	return nil
}

func (b *fakeBroker) Consume(ctx context.Context, stage jobstate.Stage, concurrency int, handler queue.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) messages(stage jobstate.Stage) []queue.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]queue.Message, len(b.enqueued[stage]))
	copy(out, b.enqueued[stage])
	return out
}

var _ queue.Broker = (*fakeBroker)(nil)
var _ storage.TenantClient = (*fakeTenantClient)(nil)
