package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-github/v43/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergeguard/internal/githubclt/fake"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	provider "github.com/simplesurance/mergeguard/internal/provider/github"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
	"github.com/simplesurance/mergeguard/internal/retry"
)

const repoJSON = `"repository":{"name":"app","owner":{"login":"sisu"}}`

func newTestClassifier(t *testing.T) (*Classifier, *fake.GitHub) {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	retryer := retry.NewRetryer(retry.WithTimeout(5 * time.Second))
	t.Cleanup(retryer.Stop)

	gh := fake.New()

	return NewClassifier(gh, retryer), gh
}

func providerEvent(t *testing.T, eventType, payload string) *provider.Event {
	t.Helper()

	ev, err := github.ParseWebHook(eventType, []byte(payload))
	require.NoError(t, err)

	return &provider.Event{
		DeliveryID: "123",
		Type:       eventType,
		JSON:       []byte(payload),
		Event:      ev,
	}
}

func TestClassify(t *testing.T) {
	tcs := []struct {
		name      string
		eventType string
		payload   string
		check     func(*testing.T, *Event)
	}{
		{
			name:      "pull request opened",
			eventType: "pull_request",
			payload: `{"action":"opened","number":5,"pull_request":{"number":5,"title":"WIP: x","head":{"sha":"abc"},"base":{"ref":"main"}},` +
				repoJSON + `,"sender":{"login":"alice"}}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindPullRequestOpened, ev.Kind)
				assert.Equal(t, pullrequest.NewRef("sisu", "app", 5), ev.PullRequest)
				assert.Equal(t, "abc", ev.HeadSHA)
				assert.Equal(t, "main", ev.BaseBranch)
				assert.Equal(t, "WIP: x", ev.Title)
				assert.Equal(t, "alice", ev.Sender)
			},
		},
		{
			name:      "pull request closed merged",
			eventType: "pull_request",
			payload:   `{"action":"closed","number":5,"pull_request":{"number":5,"merged":true},` + repoJSON + `}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindPullRequestClosed, ev.Kind)
				assert.True(t, ev.Merged)
			},
		},
		{
			name:      "pull request labeled",
			eventType: "pull_request",
			payload:   `{"action":"labeled","number":5,"label":{"name":"verified"},"pull_request":{"number":5},` + repoJSON + `}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindPullRequestLabeled, ev.Kind)
				assert.Equal(t, "verified", ev.Label)
			},
		},
		{
			name:      "review submitted",
			eventType: "pull_request_review",
			payload: `{"action":"submitted","review":{"state":"APPROVED","user":{"login":"bob"}},"pull_request":{"number":5},` +
				repoJSON + `}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindReviewSubmitted, ev.Kind)
				assert.Equal(t, ReviewStateApproved, ev.ReviewState)
				assert.Equal(t, "bob", ev.Sender)
				assert.Equal(t, 5, ev.PullRequest.Number)
			},
		},
		{
			name:      "comment created",
			eventType: "issue_comment",
			payload: `{"action":"created","issue":{"number":5,"pull_request":{"url":"https://example.com"}},` +
				`"comment":{"id":77,"body":"/hold","user":{"login":"carol"}},` + repoJSON + `}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindCommentCreated, ev.Kind)
				assert.Equal(t, int64(77), ev.CommentID)
				assert.Equal(t, "/hold", ev.CommentBody)
				assert.Equal(t, "carol", ev.Sender)
				assert.Equal(t, 5, ev.PullRequest.Number)
			},
		},
		{
			name:      "check run completed with pull request",
			eventType: "check_run",
			payload: `{"action":"completed","check_run":{"name":"tox","head_sha":"abc","conclusion":"success","pull_requests":[{"number":9}]},` +
				repoJSON + `}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindCheckRunCompleted, ev.Kind)
				assert.Equal(t, "tox", ev.CheckRunName)
				assert.Equal(t, "success", ev.CheckRunConclusion)
				assert.Equal(t, 9, ev.PullRequest.Number)
			},
		},
		{
			name:      "tag pushed",
			eventType: "push",
			payload:   `{"ref":"refs/tags/v1.2.0","after":"abc","repository":{"name":"app","owner":{"login":"sisu","name":"sisu"}}}`,
			check: func(t *testing.T, ev *Event) {
				assert.Equal(t, KindPushTag, ev.Kind)
				assert.Equal(t, "v1.2.0", ev.Tag)
				assert.True(t, ev.PullRequest.IsZero())
				assert.Equal(t, pullrequest.Repository{Owner: "sisu", Name: "app"}, ev.Repository)
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClassifier(t)

			ev, err := c.Classify(context.Background(), providerEvent(t, tc.eventType, tc.payload))
			require.NoError(t, err)
			assert.Equal(t, "123", ev.DeliveryID)
			assert.True(t, json.Valid(ev.JSON))
			tc.check(t, ev)
		})
	}
}

func TestClassifyUnsupported(t *testing.T) {
	tcs := []struct {
		name      string
		eventType string
		payload   string
	}{
		{
			name:      "comment deleted",
			eventType: "issue_comment",
			payload:   `{"action":"deleted","issue":{"number":5,"pull_request":{}},` + repoJSON + `}`,
		},
		{
			name:      "comment on issue",
			eventType: "issue_comment",
			payload:   `{"action":"created","issue":{"number":5},` + repoJSON + `}`,
		},
		{
			name:      "check run created",
			eventType: "check_run",
			payload:   `{"action":"created","check_run":{"name":"tox"},` + repoJSON + `}`,
		},
		{
			name:      "branch push",
			eventType: "push",
			payload:   `{"ref":"refs/heads/main",` + repoJSON + `}`,
		},
		{
			name:      "pull request assigned",
			eventType: "pull_request",
			payload:   `{"action":"assigned","pull_request":{"number":5},` + repoJSON + `}`,
		},
		{
			name:      "star",
			eventType: "star",
			payload:   `{"action":"created",` + repoJSON + `}`,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClassifier(t)

			_, err := c.Classify(context.Background(), providerEvent(t, tc.eventType, tc.payload))
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestClassifyResolvesPullRequestByCommit(t *testing.T) {
	c, gh := newTestClassifier(t)
	gh.AddPullRequest(&pullrequest.PullRequest{Ref: pullrequest.NewRef("sisu", "app", 3), HeadSHA: "abc"})
	gh.AddPullRequest(&pullrequest.PullRequest{Ref: pullrequest.NewRef("sisu", "app", 8), HeadSHA: "abc"})

	ev, err := c.Classify(context.Background(), providerEvent(t, "check_run",
		`{"action":"completed","check_run":{"name":"tox","head_sha":"abc","conclusion":"failure"},`+repoJSON+`}`,
	))
	require.NoError(t, err)
	assert.Equal(t, pullrequest.NewRef("sisu", "app", 8), ev.PullRequest)
}

func TestClassifyNoAssociablePullRequest(t *testing.T) {
	c, _ := newTestClassifier(t)

	ev, err := c.Classify(context.Background(), providerEvent(t, "check_run",
		`{"action":"completed","check_run":{"name":"tox","head_sha":"abc","conclusion":"failure"},`+repoJSON+`}`,
	))

	var noPRErr *mgerr.NoAssociablePullRequestError
	require.ErrorAs(t, err, &noPRErr)
	assert.Equal(t, "abc", noPRErr.CommitSHA)
	require.NotNil(t, ev)
	assert.Equal(t, KindCheckRunCompleted, ev.Kind)
}

func TestClassifyResolverError(t *testing.T) {
	c, gh := newTestClassifier(t)
	gh.FailWith("PullRequestsForCommit", errors.New("broken"))

	_, err := c.Classify(context.Background(), providerEvent(t, "check_run",
		`{"action":"completed","check_run":{"name":"tox","head_sha":"abc"},`+repoJSON+`}`,
	))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}
