package githubclt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v43/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergeguard/internal/mgerr"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	restClt, err := github.NewEnterpriseClient(srv.URL+"/", srv.URL+"/", srv.Client())
	require.NoError(t, err)

	return &Client{
		restClt:    restClt,
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL+"/graphql", srv.Client()),
		logger:     zap.L(),
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestWrapRetryableErrorsGraphql(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	clt := newTestClient(t, mux)

	contexts, err := clt.RequiredStatusCheckContexts(context.Background(), "test", "test", "main")
	require.Error(t, err)
	assert.Nil(t, contexts)

	var retryableErr *mgerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrorsGraphqlWithNonStatusErr(t *testing.T) {
	err := errors.New("error")
	wrappedErr := (&Client{}).wrapGraphQLRetryableErrors(err)
	assert.Equal(t, err, wrappedErr)
}

func TestRequiredStatusCheckContexts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"data": map[string]any{
				"repository": map[string]any{
					"ref": map[string]any{
						"branchProtectionRule": map[string]any{
							"requiredStatusCheckContexts": []string{"ci/jenkins", "tox"},
						},
					},
				},
			},
		})
	})

	clt := newTestClient(t, mux)

	contexts, err := clt.RequiredStatusCheckContexts(context.Background(), "sisu", "app", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"ci/jenkins", "tox"}, contexts)
}

func TestServerErrorIsRetryable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/issues/1/labels", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	clt := newTestClient(t, mux)

	_, err := clt.ListLabels(context.Background(), "sisu", "app", 1)
	require.Error(t, err)

	var retryableErr *mgerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestRemoveLabelNotFoundSucceeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/v3/repos/sisu/app/issues/1/labels/hold", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]string{"message": "Label does not exist"})
	})

	clt := newTestClient(t, mux)

	err := clt.RemoveLabel(context.Background(), "sisu", "app", 1, "hold")
	assert.NoError(t, err)
}

func TestAddLabelRejectsEmptyName(t *testing.T) {
	clt := newTestClient(t, http.NewServeMux())
	assert.Error(t, clt.AddLabel(context.Background(), "sisu", "app", 1, ""))
}

func TestUpsertRepositoryLabelCreatesMissing(t *testing.T) {
	var created github.Label

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/labels/ApprovedBy-bob", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("POST /api/v3/repos/sisu/app/labels", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, &created)
	})

	clt := newTestClient(t, mux)

	err := clt.UpsertRepositoryLabel(context.Background(), "sisu", "app", "ApprovedBy-bob", "0E8A16")
	require.NoError(t, err)
	assert.Equal(t, "ApprovedBy-bob", created.GetName())
	assert.Equal(t, "0E8A16", created.GetColor())
}

func TestBranchExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/git/ref/heads/main", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{"ref": "refs/heads/main"})
	})
	mux.HandleFunc("GET /api/v3/repos/sisu/app/git/ref/heads/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]string{"message": "Not Found"})
	})

	clt := newTestClient(t, mux)

	exists, err := clt.BranchExists(context.Background(), "sisu", "app", "main")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = clt.BranchExists(context.Background(), "sisu", "app", "gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPullRequestNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/pulls/7", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(t, w, map[string]string{"message": "Not Found"})
	})

	clt := newTestClient(t, mux)

	_, err := clt.PullRequest(context.Background(), "sisu", "app", 7)
	var notFoundErr *mgerr.ResourceNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, "pull request", notFoundErr.Kind)
}

func TestPullRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/pulls/7", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"number":          7,
			"title":           "WIP: add feature",
			"state":           "open",
			"mergeable":       false,
			"mergeable_state": "dirty",
			"additions":       10,
			"deletions":       15,
			"user":            map[string]any{"login": "alice"},
			"head":            map[string]any{"sha": "abc", "ref": "feature"},
			"base": map[string]any{
				"ref":  "main",
				"repo": map[string]any{"clone_url": "https://example.com/sisu/app.git"},
			},
		})
	})

	clt := newTestClient(t, mux)

	pr, err := clt.PullRequest(context.Background(), "sisu", "app", 7)
	require.NoError(t, err)

	assert.Equal(t, "sisu/app#7", pr.Ref.String())
	assert.Equal(t, "alice", pr.Author)
	assert.Equal(t, "abc", pr.HeadSHA)
	assert.Equal(t, "feature", pr.HeadBranch)
	assert.Equal(t, "main", pr.BaseBranch)
	assert.Equal(t, "https://example.com/sisu/app.git", pr.CloneURL)
	assert.False(t, pr.IsMergeable())
	assert.Equal(t, "dirty", pr.MergeableState)
	assert.Equal(t, 25, pr.Size())
}

func TestListCheckRunsPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/commits/abc/check-runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "latest", r.URL.Query().Get("filter"))

		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, map[string]any{
				"total_count": 2,
				"check_runs":  []any{map[string]any{"id": 2, "name": "verified", "status": "queued"}},
			})
			return
		}

		w.Header().Set("Link", `<`+"http://"+r.Host+r.URL.Path+`?page=2>; rel="next"`)
		writeJSON(t, w, map[string]any{
			"total_count": 2,
			"check_runs": []any{map[string]any{
				"id": 1, "name": "tox", "status": "completed", "conclusion": "success",
			}},
		})
	})

	clt := newTestClient(t, mux)

	runs, err := clt.ListCheckRuns(context.Background(), "sisu", "app", "abc")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "tox", runs[0].Name)
	assert.Equal(t, "success", runs[0].Conclusion)
	assert.Equal(t, "verified", runs[1].Name)
	assert.Equal(t, "queued", runs[1].Status)
}

func TestListIssueCommentBodiesPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/repos/sisu/app/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, []any{map[string]any{"id": 2, "body": "second"}})
			return
		}

		w.Header().Set("Link", `<`+"http://"+r.Host+r.URL.Path+`?page=2>; rel="next"`)
		writeJSON(t, w, []any{map[string]any{"id": 1, "body": "first"}})
	})

	clt := newTestClient(t, mux)

	bodies, err := clt.ListIssueCommentBodies(context.Background(), "sisu", "app", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, bodies)
}
