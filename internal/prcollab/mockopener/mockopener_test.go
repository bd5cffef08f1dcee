package mockopener

import (
	"context"
	"errors"
	"testing"

	"github.com/codeforge-run/orchestrator/internal/prcollab"
)

func TestOpener_SequentialNumbers(t *testing.T) {
	o := New()
	ctx := context.Background()

	first, err := o.OpenPullRequest(ctx, prcollab.Request{Owner: "acme", Repo: "widgets"})
	if err != nil {
		t.Fatalf("OpenPullRequest() error = %v", err)
	}
	second, err := o.OpenPullRequest(ctx, prcollab.Request{Owner: "acme", Repo: "widgets"})
	if err != nil {
		t.Fatalf("OpenPullRequest() error = %v", err)
	}

	if first.PRNumber != 1 || second.PRNumber != 2 {
		t.Errorf("got PR numbers %d, %d, want 1, 2", first.PRNumber, second.PRNumber)
	}
	if len(o.Requests()) != 2 {
		t.Errorf("Requests() len = %d, want 2", len(o.Requests()))
	}
}

func TestOpener_ForcedFailure(t *testing.T) {
	wantErr := errors.New("boom")
	o := New(WithFailure(wantErr))

	_, err := o.OpenPullRequest(context.Background(), prcollab.Request{})
	if !errors.Is(err, wantErr) {
		t.Errorf("OpenPullRequest() error = %v, want %v", err, wantErr)
	}
}
