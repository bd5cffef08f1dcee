package githubopener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-run/orchestrator/internal/agent"
	"github.com/codeforge-run/orchestrator/internal/prcollab"
)

const baseURLPath = "/api-v3"

func setup(t *testing.T) (*Opener, *http.ServeMux) {
	t.Helper()

	mux := http.NewServeMux()
	apiHandler := http.NewServeMux()
	apiHandler.Handle(baseURLPath+"/", http.StripPrefix(baseURLPath, mux))

	server := httptest.NewServer(apiHandler)
	t.Cleanup(server.Close)

	ghClient := github.NewClient(nil)
	u, _ := url.Parse(server.URL + baseURLPath + "/")
	ghClient.BaseURL = u

	return &Opener{gh: ghClient}, mux
}

func TestOpener_OpenPullRequest(t *testing.T) {
	o, mux := setup(t)

	mux.HandleFunc("/repos/acme/widgets/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"sha":"base-sha","type":"commit"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/refs/heads/mock/issue-42", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprint(w, `{"ref":"refs/heads/mock/issue-42","object":{"sha":"new-commit-sha","type":"commit"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = fmt.Fprint(w, `{"ref":"refs/heads/mock/issue-42","object":{"sha":"base-sha","type":"commit"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/commits/base-sha", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"sha":"base-sha","tree":{"sha":"base-tree-sha"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = fmt.Fprint(w, `{"sha":"new-tree-sha"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/commits", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"sha":"new-commit-sha"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = fmt.Fprint(w, `{"number":7,"html_url":"https://github.com/acme/widgets/pull/7"}`)
	})

	result, err := o.OpenPullRequest(context.Background(), prcollab.Request{
		Owner:         "acme",
		Repo:          "widgets",
		Branch:        "mock/issue-42",
		BaseBranch:    "main",
		CommitMessage: "Fix #42",
		Title:         "Fix #42: the thing",
		Body:          "generated from the mock agent",
		Changes: []agent.Change{
			{Path: "mock/issue-42.go", Operation: agent.ChangeCreate, Content: "package mock\n"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result.PRNumber)
	assert.Equal(t, "https://github.com/acme/widgets/pull/7", result.PRURL)
}
