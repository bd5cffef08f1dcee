// Package mock provides a deterministic agent.Agent test double. Every call
// produces a stable, structured output derived from the JobContext so tests
// can assert on it, and every failure mode the pipeline must handle (a
// failed stage, a rejected review) can be forced at construction time.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeforge-run/orchestrator/internal/agent"
)

// Agent is an in-memory, fully deterministic agent.Agent implementation.
type Agent struct {
	mu sync.RWMutex

	delay time.Duration

	failPlan   error
	failCode   error
	failReview error

	rejectReview bool

	// calls records, in order, the name of each operation invoked.
	// Tests may inspect this to assert call counts (e.g. the reviewing
	// worker's rejection-loop cap).
	calls []string
}

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithDelay makes every call sleep for d before returning, simulating a
// slow external model call.
func WithDelay(d time.Duration) Option {
	return func(a *Agent) { a.delay = d }
}

// WithPlanFailure forces every Plan call to fail with err.
func WithPlanFailure(err error) Option {
	return func(a *Agent) { a.failPlan = err }
}

// WithCodeFailure forces every Code call to fail with err.
func WithCodeFailure(err error) Option {
	return func(a *Agent) { a.failCode = err }
}

// WithReviewFailure forces every Review call to fail with err.
func WithReviewFailure(err error) Option {
	return func(a *Agent) { a.failReview = err }
}

// WithForcedRejection makes every successful Review call return
// Approved = false instead of the default approval.
func WithForcedRejection() Option {
	return func(a *Agent) { a.rejectReview = true }
}

// New constructs a mock Agent named "mock" with the given options applied.
func New(opts ...Option) *Agent {
	a := &Agent{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ agent.Agent = (*Agent)(nil)

func (a *Agent) Name() string { return "mock" }

func (a *Agent) record(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, op)
}

// Calls returns the ordered list of operations invoked so far.
func (a *Agent) Calls() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.calls))
	copy(out, a.calls)
	return out
}

func (a *Agent) sleep(ctx context.Context) error {
	if a.delay == 0 {
		return nil
	}
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) Plan(ctx context.Context, job agent.JobContext) (*agent.PlanResult, error) {
	a.record("plan")
	if err := a.sleep(ctx); err != nil {
		return nil, err
	}
	if a.failPlan != nil {
		return nil, a.failPlan
	}

	return &agent.PlanResult{
		Summary: fmt.Sprintf("plan for issue #%d: %s", job.IssueNumber, job.IssueTitle),
		Steps: []string{
			fmt.Sprintf("analyze issue #%d", job.IssueNumber),
			"implement the described change",
			"add tests covering the change",
		},
		FilesChanged:        []string{fmt.Sprintf("mock/issue-%d.go", job.IssueNumber)},
		EstimatedComplexity: agent.ComplexityLow,
		Metadata: map[string]interface{}{
			"mock":         true,
			"issue_number": job.IssueNumber,
		},
	}, nil
}

func (a *Agent) Code(ctx context.Context, job agent.JobContext, plan *agent.PlanResult) (*agent.CodeResult, error) {
	a.record("code")
	if err := a.sleep(ctx); err != nil {
		return nil, err
	}
	if a.failCode != nil {
		return nil, a.failCode
	}

	path := fmt.Sprintf("mock/issue-%d.go", job.IssueNumber)
	if plan != nil && len(plan.FilesChanged) > 0 {
		path = plan.FilesChanged[0]
	}

	return &agent.CodeResult{
		Changes: []agent.Change{
			{
				Path:      path,
				Operation: agent.ChangeCreate,
				Content:   fmt.Sprintf("// generated for issue #%d\n", job.IssueNumber),
			},
		},
		CommitMessage: fmt.Sprintf("Fix #%d: %s", job.IssueNumber, job.IssueTitle),
		Branch:        fmt.Sprintf("mock/issue-%d", job.IssueNumber),
		Metadata:      map[string]interface{}{"mock": true},
	}, nil
}

func (a *Agent) Review(ctx context.Context, job agent.JobContext, plan *agent.PlanResult, code *agent.CodeResult) (*agent.ReviewResult, error) {
	a.record("review")
	if err := a.sleep(ctx); err != nil {
		return nil, err
	}
	if a.failReview != nil {
		return nil, a.failReview
	}

	if a.rejectReview {
		return &agent.ReviewResult{
			Approved:         false,
			Feedback:         fmt.Sprintf("mock rejection for issue #%d", job.IssueNumber),
			SuggestedChanges: []string{"address the mock reviewer's concerns"},
			QualityScore:     40,
			Metadata:         map[string]interface{}{"mock": true},
		}, nil
	}

	return &agent.ReviewResult{
		Approved:     true,
		Feedback:     fmt.Sprintf("looks good for issue #%d", job.IssueNumber),
		QualityScore: 90,
		Metadata:     map[string]interface{}{"mock": true},
	}, nil
}
