package pipeline

import (
	"context"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/storage"
	"github.com/codeforge-run/orchestrator/internal/tenantscope"
)

func scopedContext(ctx context.Context, tenantID string) context.Context {
	return tenantscope.With(ctx, tenantscope.Scope{TenantID: tenantID})
}

func jobContextFrom(job *storage.Job) agent.JobContext {
	return agent.JobContext{
		JobID:        job.ID.String(),
		TenantID:     job.TenantID.String(),
		RepositoryID: job.RepositoryID.String(),
		IssueNumber:  job.IssueNumber,
		IssueTitle:   job.IssueTitle,
		IssueBody:    job.IssueBody,
		IssueURL:     job.IssueURL,
	}
}

// errorMetadata is the metadata patch every *_FAILED transition writes, so
// an operator inspecting a failed job's history can see which stage failed
// and why without parsing log lines.
func errorMetadata(failedAt jobstate.Status, cause error) map[string]interface{} {
	return map[string]interface{}{
		"errorDetails": cause.Error(),
		"failedAt":     string(failedAt),
	}
}
