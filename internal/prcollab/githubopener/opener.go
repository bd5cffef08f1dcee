// Package githubopener implements prcollab.Opener over the GitHub REST API
// via google/go-github. The Opener itself does no auth/webhook handling —
// it is constructed with an already-authenticated *http.Client, mirroring
// the pack's ghclient binding; NewAppInstallationClient (appauth.go) builds
// such a client from GitHub App credentials.
package githubopener

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v68/github"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/prcollab"
)

// Opener opens real pull requests from a CodeResult's branch and commit
// message, building the branch, tree and commit from the change list and
// pushing it before opening the PR.
type Opener struct {
	gh *github.Client
}

// New builds an Opener from an already-authenticated HTTP client (e.g. a
// GitHub App installation token transport).
func New(httpClient *http.Client) *Opener {
	return &Opener{gh: github.NewClient(httpClient)}
}

var _ prcollab.Opener = (*Opener)(nil)

func (o *Opener) OpenPullRequest(ctx context.Context, req prcollab.Request) (*prcollab.Result, error) {
	baseBranch := req.BaseBranch
	if baseBranch == "" {
		baseBranch = "main"
	}

	baseRef, _, err := o.gh.Git.GetRef(ctx, req.Owner, req.Repo, "refs/heads/"+baseBranch)
	if err != nil {
		return nil, fmt.Errorf("githubopener: get base ref: %w", err)
	}

	if err := o.ensureBranch(ctx, req, baseRef); err != nil {
		return nil, err
	}

	commitSHA, err := o.commitChanges(ctx, req, baseRef)
	if err != nil {
		return nil, err
	}

	if _, _, err := o.gh.Git.UpdateRef(ctx, req.Owner, req.Repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + req.Branch),
		Object: &github.GitObject{SHA: github.Ptr(commitSHA)},
	}, false); err != nil {
		return nil, fmt.Errorf("githubopener: update branch ref: %w", err)
	}

	pr, _, err := o.gh.PullRequests.Create(ctx, req.Owner, req.Repo, &github.NewPullRequest{
		Title: github.Ptr(req.Title),
		Head:  github.Ptr(req.Branch),
		Base:  github.Ptr(baseBranch),
		Body:  github.Ptr(req.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("githubopener: create pull request: %w", err)
	}

	return &prcollab.Result{
		PRNumber: pr.GetNumber(),
		PRURL:    pr.GetHTMLURL(),
	}, nil
}

func (o *Opener) ensureBranch(ctx context.Context, req prcollab.Request, baseRef *github.Reference) error {
	_, _, err := o.gh.Git.GetRef(ctx, req.Owner, req.Repo, "refs/heads/"+req.Branch)
	if err == nil {
		return nil // branch already exists, reuse it
	}
	_, _, err = o.gh.Git.CreateRef(ctx, req.Owner, req.Repo, &github.Reference{
		Ref:    github.Ptr("refs/heads/" + req.Branch),
		Object: baseRef.Object,
	})
	if err != nil {
		return fmt.Errorf("githubopener: create branch ref: %w", err)
	}
	return nil
}

// commitChanges builds a tree from req.Changes on top of the base commit and
// returns the new commit's SHA.
func (o *Opener) commitChanges(ctx context.Context, req prcollab.Request, baseRef *github.Reference) (string, error) {
	baseCommit, _, err := o.gh.Git.GetCommit(ctx, req.Owner, req.Repo, baseRef.Object.GetSHA())
	if err != nil {
		return "", fmt.Errorf("githubopener: get base commit: %w", err)
	}

	entries := make([]*github.TreeEntry, 0, len(req.Changes))
	for _, change := range req.Changes {
		entry := &github.TreeEntry{
			Path: github.Ptr(change.Path),
			Mode: github.Ptr("100644"),
		}
		if change.Operation == agent.ChangeDelete {
			entry.SHA = nil // a nil SHA on an existing path removes it from the tree
		} else {
			entry.Type = github.Ptr("blob")
			entry.Content = github.Ptr(change.Content)
		}
		entries = append(entries, entry)
	}

	tree, _, err := o.gh.Git.CreateTree(ctx, req.Owner, req.Repo, baseCommit.Tree.GetSHA(), entries)
	if err != nil {
		return "", fmt.Errorf("githubopener: create tree: %w", err)
	}

	commit, _, err := o.gh.Git.CreateCommit(ctx, req.Owner, req.Repo, &github.Commit{
		Message: github.Ptr(req.CommitMessage),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: baseCommit.SHA}},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("githubopener: create commit: %w", err)
	}

	return commit.GetSHA(), nil
}
