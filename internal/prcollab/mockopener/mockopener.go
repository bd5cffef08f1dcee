// Package mockopener provides a deterministic prcollab.Opener test double.
package mockopener

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeforge-run/orchestrator/internal/prcollab"
)

// Opener is an in-memory Opener that assigns sequential PR numbers and can
// be configured to fail every call.
type Opener struct {
	mu       sync.Mutex
	next     int
	fail     error
	requests []prcollab.Request
}

// Option configures an Opener at construction time.
type Option func(*Opener)

// WithFailure makes every OpenPullRequest call fail with err.
func WithFailure(err error) Option {
	return func(o *Opener) { o.fail = err }
}

// New constructs an Opener, PR numbers starting at 1.
func New(opts ...Option) *Opener {
	o := &Opener{next: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ prcollab.Opener = (*Opener)(nil)

func (o *Opener) OpenPullRequest(ctx context.Context, req prcollab.Request) (*prcollab.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, req)

	if o.fail != nil {
		return nil, o.fail
	}

	number := o.next
	o.next++

	return &prcollab.Result{
		PRNumber: number,
		PRURL:    fmt.Sprintf("https://github.com/%s/%s/pull/%d", req.Owner, req.Repo, number),
	}, nil
}

// Requests returns every request received so far, for test assertions.
func (o *Opener) Requests() []prcollab.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]prcollab.Request, len(o.requests))
	copy(out, o.requests)
	return out
}
