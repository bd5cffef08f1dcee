// Package agent defines the pluggable capability set a worker invokes to
// turn an issue into a reviewed code change: plan, code, review. A
// production binding fronts this with calls out to an external model; the
// pipeline never learns that detail, it only ever sees the Agent interface.
package agent

import "context"

// JobContext is the read-only view of a job a worker builds before invoking
// any agent operation. Agent implementations must treat it as immutable and
// must not reach back into storage, the queue, or the state machine.
type JobContext struct {
	JobID        string
	TenantID     string
	RepositoryID string
	IssueNumber  int
	IssueTitle   string
	IssueBody    string
	IssueURL     string
}

// Complexity is the coarse effort estimate a Plan call attaches to its
// result.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// ChangeOperation is the kind of filesystem mutation a single Change
// represents.
type ChangeOperation string

const (
	ChangeCreate ChangeOperation = "create"
	ChangeUpdate ChangeOperation = "update"
	ChangeDelete ChangeOperation = "delete"
)

// PlanResult is the output of Plan: an analysis of the issue and the shape
// of the work required, without touching any file yet.
type PlanResult struct {
	Summary             string
	Steps               []string
	FilesChanged        []string
	EstimatedComplexity Complexity
	Metadata            map[string]interface{}
}

// Change is a single file mutation proposed by Code.
type Change struct {
	Path            string
	Operation       ChangeOperation
	Content         string
	OriginalContent string
}

// CodeResult is the output of Code: the concrete set of file changes that
// realize a PlanResult, plus the commit/branch metadata the PR collaborator
// needs later.
type CodeResult struct {
	Changes       []Change
	CommitMessage string
	Branch        string
	Metadata      map[string]interface{}
}

// ReviewResult is the output of Review: a verdict on a CodeResult plus
// whatever feedback led to it.
type ReviewResult struct {
	Approved         bool
	Feedback         string
	SuggestedChanges []string
	SecurityIssues   []string
	QualityScore     int
	Metadata         map[string]interface{}
}

// Agent is the capability set a worker drives a job through. Implementations
// must be pure with respect to core state: they never write to storage,
// never enqueue, never transition a job. A failure is surfaced as a plain
// error; the calling worker is responsible for turning it into the stage's
// *_FAILED event.
type Agent interface {
	// Name identifies the agent binding for registry lookups and logging.
	Name() string

	Plan(ctx context.Context, job JobContext) (*PlanResult, error)
	Code(ctx context.Context, job JobContext, plan *PlanResult) (*CodeResult, error)
	Review(ctx context.Context, job JobContext, plan *PlanResult, code *CodeResult) (*ReviewResult, error)
}
