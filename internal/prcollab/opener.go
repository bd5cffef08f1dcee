// Package prcollab defines the outbound boundary invoked by the PR-Open
// Worker: opening a pull request from a completed, reviewed code change.
// The core only ever calls Opener; it never opens sockets or does auth
// itself.
package prcollab

import (
	"context"

	"github.com/codeforge-run/orchestrator/internal/agent"
)

// Request is everything an Opener needs to open a pull request for an
// approved code change. It carries no tenant/job bookkeeping — that is the
// caller's concern — only what a PR actually needs.
type Request struct {
	Owner         string
	Repo          string
	Branch        string
	BaseBranch    string
	CommitMessage string
	Title         string
	Body          string
	Changes       []agent.Change
}

// Result is what the PR-Open Worker stores back onto the job on success.
type Result struct {
	PRNumber int
	PRURL    string
}

// Opener is the pull-request-opening collaborator. Implementations must not
// touch storage, the queue, or job state; a failure is surfaced as a plain
// error and the calling worker fires the stage's *_FAILED event.
type Opener interface {
	OpenPullRequest(ctx context.Context, req Request) (*Result, error)
}
