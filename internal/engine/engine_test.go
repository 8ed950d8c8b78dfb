package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v43/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/cmdrunner"
	"github.com/simplesurance/mergeguard/internal/githubclt/fake"
	provider "github.com/simplesurance/mergeguard/internal/provider/github"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
	"github.com/simplesurance/mergeguard/internal/retry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testConfig = `
reevaluate_delay = "10ms"
label_wait_timeout = "1s"
label_wait_interval = "10ms"
owners_file = "OWNERS"

[[repository]]
owner = "sisu"
name = "app"
approvers = ["bob"]
reviewers = ["carol"]
verified_job = false

  [repository.tox]
  command = "tox {{ .HeadSHA }}"

  [repository.cherry_pick]
  command = "cherry-pick {{ .MergeCommitSHA }} {{ .Target }}"

  [repository.python_module_upload]
  command = "upload {{ .Tag }}"

[[repository]]
owner = "sisu"
name = "filtered"
event_filter = '.sender.login == "alice"'
`

const eventuallyTimeout = 5 * time.Second

var testRef = pullrequest.NewRef("sisu", "app", 5)

type fakeRunner struct {
	mu   sync.Mutex
	cmds []string
}

func (r *fakeRunner) Run(_ context.Context, cmd cmdrunner.Command) (*cmdrunner.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cmds = append(r.cmds, cmd.Cmd)

	return &cmdrunner.Result{Success: true, Stdout: "ok"}, nil
}

func (r *fakeRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.cmds...)
}

type testEnv struct {
	engine *Engine
	gh     *fake.GitHub
	runner *fakeRunner
}

func newTestEnv(t *testing.T, prs ...*pullrequest.PullRequest) *testEnv {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	config, err := cfg.Load(strings.NewReader(testConfig))
	require.NoError(t, err)

	retryer := retry.NewRetryer(retry.WithTimeout(5 * time.Second))

	gh := fake.New()
	for _, pr := range prs {
		gh.AddPullRequest(pr)
	}

	runner := fakeRunner{}

	eng, err := New(config, gh, &runner, retryer)
	require.NoError(t, err)

	go eng.Start()

	t.Cleanup(func() {
		eng.Stop()
		retryer.Stop()
	})

	return &testEnv{engine: eng, gh: gh, runner: &runner}
}

func (e *testEnv) handle(t *testing.T, eventType, payload string) {
	t.Helper()

	require.NoError(t, e.engine.HandleWebhookEvent(context.Background(), providerEvent(t, eventType, payload)))
}

func (e *testEnv) hasLabel(name string) func() bool {
	return func() bool {
		for _, l := range e.gh.Labels(testRef) {
			if l == name {
				return true
			}
		}
		return false
	}
}

func (e *testEnv) canBeMergedRun() *checkrunState {
	var result *checkrunState

	for _, r := range e.gh.CheckRuns("sisu", "app", "abc") {
		if r.Name == checkrun.CanBeMerged {
			result = &checkrunState{status: r.Status, conclusion: r.Conclusion}
		}
	}

	return result
}

type checkrunState struct {
	status     string
	conclusion string
}

func providerEvent(t *testing.T, eventType, payload string) *provider.Event {
	t.Helper()

	ev, err := github.ParseWebHook(eventType, []byte(payload))
	require.NoError(t, err)

	return &provider.Event{
		DeliveryID: "1",
		Type:       eventType,
		JSON:       []byte(payload),
		Event:      ev,
	}
}

func testPR() *pullrequest.PullRequest {
	return &pullrequest.PullRequest{
		Ref:        testRef,
		Title:      "fix bug",
		Author:     "alice",
		HeadSHA:    "abc",
		HeadBranch: "fix-bug",
		BaseBranch: "main",
		Additions:  3,
		Deletions:  1,
	}
}

const repoJSON = `"repository":{"name":"app","owner":{"login":"sisu"}}`

func pullRequestPayload(action, sender string) string {
	return `{"action":"` + action + `","number":5,"pull_request":{"number":5,"title":"fix bug","head":{"sha":"abc"},"base":{"ref":"main"}},` +
		repoJSON + `,"sender":{"login":"` + sender + `"}}`
}

func commentPayload(sender, body string) string {
	return `{"action":"created","issue":{"number":5,"pull_request":{"url":"x"}},"comment":{"id":77,"body":"` + body + `","user":{"login":"` + sender + `"}},` +
		repoJSON + `,"sender":{"login":"` + sender + `"}}`
}

func TestOpenedPullRequest(t *testing.T) {
	env := newTestEnv(t, testPR())

	env.handle(t, "pull_request", pullRequestPayload("opened", "alice"))

	comments := env.gh.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, defaultWelcomeComment, comments[0].Body)

	assert.Contains(t, env.gh.Labels(testRef), "branch-main")
	assert.Contains(t, env.gh.Labels(testRef), "size/XS")
	assert.Equal(t, []string{"tox abc"}, env.runner.commands())
	assert.Equal(t, []string{"carol"}, env.gh.Reviewers(testRef))
	assert.Equal(t, []string{"alice"}, env.gh.Assignees(testRef))

	assert.Eventually(t, func() bool {
		s := env.canBeMergedRun()
		return s != nil && s.conclusion == "failure"
	}, eventuallyTimeout, 10*time.Millisecond)
	assert.NotContains(t, env.gh.Labels(testRef), "can-be-merged")
}

func TestOpenedWithWIPTitle(t *testing.T) {
	pr := testPR()
	pr.Title = "wip: fix bug"
	env := newTestEnv(t, pr)

	env.handle(t, "pull_request", pullRequestPayload("opened", "alice"))

	assert.Contains(t, env.gh.Labels(testRef), "wip")
}

func TestApprovalMakesPullRequestMergeable(t *testing.T) {
	env := newTestEnv(t, testPR())

	env.handle(t, "pull_request_review",
		`{"action":"submitted","review":{"state":"APPROVED","user":{"login":"bob"}},`+
			`"pull_request":{"number":5,"head":{"sha":"abc"},"base":{"ref":"main"}},`+repoJSON+`}`,
	)

	assert.Contains(t, env.gh.Labels(testRef), "ApprovedBy-bob")
	assert.Eventually(t, env.hasLabel("can-be-merged"), eventuallyTimeout, 10*time.Millisecond)
	assert.Empty(t, env.gh.Merges())
}

func TestHoldCommentBlocksMerging(t *testing.T) {
	pr := testPR()
	env := newTestEnv(t)
	env.gh.AddPullRequest(pr, "ApprovedBy-bob", "can-be-merged")

	env.handle(t, "issue_comment", commentPayload("bob", "/hold"))

	assert.Contains(t, env.gh.Labels(testRef), "hold")
	assert.Equal(t, []string{"+1"}, env.gh.Reactions(77))
	assert.Eventually(t, func() bool { return !env.hasLabel("can-be-merged")() }, eventuallyTimeout, 10*time.Millisecond)
}

func TestCheckCanMergeCommandEvaluatesImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.gh.AddPullRequest(testPR(), "ApprovedBy-bob")

	env.handle(t, "issue_comment", commentPayload("alice", "/check-can-merge"))

	assert.Contains(t, env.gh.Labels(testRef), "can-be-merged")
}

func TestCommentsOfBotsAreIgnored(t *testing.T) {
	env := newTestEnv(t, testPR())

	env.handle(t, "issue_comment", commentPayload("renovate[bot]", "/hold"))

	assert.Empty(t, env.gh.Labels(testRef))
	assert.Empty(t, env.gh.Reactions(77))
}

func TestRetestCommand(t *testing.T) {
	env := newTestEnv(t, testPR())

	env.handle(t, "issue_comment", commentPayload("alice", "/retest tox"))

	assert.Equal(t, []string{"tox abc"}, env.runner.commands())
}

func TestUnconfiguredRepositoryIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	env.handle(t, "pull_request",
		`{"action":"opened","number":1,"pull_request":{"number":1,"head":{"sha":"abc"},"base":{"ref":"main"}},`+
			`"repository":{"name":"other","owner":{"login":"sisu"}}}`,
	)

	assert.Empty(t, env.gh.Comments())
	assert.Empty(t, env.runner.commands())
}

func TestUnsupportedEventIsIgnored(t *testing.T) {
	env := newTestEnv(t, testPR())

	env.handle(t, "pull_request", pullRequestPayload("reopened", "alice"))

	assert.Empty(t, env.gh.Comments())
}

func TestEventFilter(t *testing.T) {
	ref := pullrequest.NewRef("sisu", "filtered", 1)
	env := newTestEnv(t, &pullrequest.PullRequest{
		Ref:        ref,
		Author:     "bob",
		HeadSHA:    "def",
		BaseBranch: "main",
	})

	payload := func(sender string) string {
		return `{"action":"opened","number":1,"pull_request":{"number":1,"head":{"sha":"def"},"base":{"ref":"main"}},` +
			`"repository":{"name":"filtered","owner":{"login":"sisu"}},"sender":{"login":"` + sender + `"}}`
	}

	env.handle(t, "pull_request", payload("bob"))
	assert.Empty(t, env.gh.Comments())

	env.handle(t, "pull_request", payload("alice"))
	assert.Len(t, env.gh.Comments(), 1)
}

func TestMergedPullRequest(t *testing.T) {
	pr := testPR()
	pr.Merged = true
	pr.State = pullrequest.StateClosed
	pr.MergeCommitSHA = "m1"

	other := pullrequest.PullRequest{
		Ref:            pullrequest.NewRef("sisu", "app", 6),
		Author:         "carol",
		HeadSHA:        "xyz",
		BaseBranch:     "main",
		MergeableState: pullrequest.MergeableStateBehind,
	}

	env := newTestEnv(t, &other)
	env.gh.AddPullRequest(pr, "cherry-pick-release-1")
	env.gh.AddBranch("sisu", "app", "release-1")

	env.handle(t, "pull_request", pullRequestPayload("closed", "alice"))

	assert.Equal(t, []string{"cherry-pick m1 release-1"}, env.runner.commands())
	assert.Contains(t, env.gh.Labels(testRef), "CherryPicked")
	assert.Equal(t, []string{"needs-rebase"}, env.gh.Labels(other.Ref))
}

func TestClosedUnmergedPullRequestIsIgnored(t *testing.T) {
	pr := testPR()
	pr.State = pullrequest.StateClosed
	env := newTestEnv(t)
	env.gh.AddPullRequest(pr, "cherry-pick-release-1")
	env.gh.AddBranch("sisu", "app", "release-1")

	env.handle(t, "pull_request", pullRequestPayload("closed", "alice"))

	assert.Empty(t, env.runner.commands())
}

func TestPushedTagRunsRelease(t *testing.T) {
	env := newTestEnv(t)

	env.handle(t, "push", `{"ref":"refs/tags/v1.2.0",`+repoJSON+`,"sender":{"login":"alice"}}`)

	assert.Equal(t, []string{"upload v1.2.0"}, env.runner.commands())
}

func TestEventsSentToChannelAreProcessed(t *testing.T) {
	env := newTestEnv(t, testPR())

	env.engine.C() <- providerEvent(t, "pull_request", pullRequestPayload("opened", "alice"))

	assert.Eventually(t, func() bool {
		return len(env.gh.Comments()) == 1
	}, eventuallyTimeout, 10*time.Millisecond)
}

func TestCompletedCheckRunTriggersEvaluation(t *testing.T) {
	env := newTestEnv(t)
	env.gh.AddPullRequest(testPR(), "ApprovedBy-bob")

	env.handle(t, "check_run",
		`{"action":"completed","check_run":{"name":"tox","head_sha":"abc","conclusion":"success","pull_requests":[{"number":5}]},`+
			repoJSON+`,"sender":{"login":"alice"}}`,
	)

	assert.Eventually(t, env.hasLabel("can-be-merged"), eventuallyTimeout, 10*time.Millisecond)
}

func TestDuplicateOpenedDeliveryPostsOneWelcomeComment(t *testing.T) {
	env := newTestEnv(t, testPR())

	events := []*provider.Event{
		providerEvent(t, "pull_request", pullRequestPayload("opened", "alice")),
		providerEvent(t, "pull_request", pullRequestPayload("opened", "alice")),
	}

	var wg sync.WaitGroup
	for _, ev := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.engine.HandleWebhookEvent(context.Background(), ev))
		}()
	}
	wg.Wait()

	comments := env.gh.Comments()
	require.Len(t, comments, 1)
	assert.Equal(t, defaultWelcomeComment, comments[0].Body)
}
