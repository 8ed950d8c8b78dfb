package labeler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/command"
	"github.com/simplesurance/mergeguard/internal/event"
	"github.com/simplesurance/mergeguard/internal/githubclt/fake"
	"github.com/simplesurance/mergeguard/internal/labelstore"
	"github.com/simplesurance/mergeguard/internal/policy"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
	"github.com/simplesurance/mergeguard/internal/retry"
)

var testRef = pullrequest.NewRef("sisu", "app", 7)

type recordingScheduler struct {
	mu   sync.Mutex
	refs []pullrequest.Ref
}

func (s *recordingScheduler) Schedule(ref pullrequest.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = append(s.refs, ref)
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

type testEnv struct {
	labeler   *Labeler
	gh        *fake.GitHub
	scheduler *recordingScheduler
	pr        *pullrequest.PullRequest
	pol       *policy.Policy
}

func newTestEnv(t *testing.T, initialLabels ...string) *testEnv {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	retryer := retry.NewRetryer(retry.WithTimeout(5 * time.Second))
	t.Cleanup(retryer.Stop)

	pr := pullrequest.PullRequest{
		Ref:        testRef,
		Title:      "add feature",
		Author:     "alice",
		HeadSHA:    "abc",
		BaseBranch: "main",
		Additions:  10,
		Deletions:  5,
	}

	gh := fake.New()
	gh.AddPullRequest(&pr, initialLabels...)

	sched := recordingScheduler{}
	store := labelstore.New(gh, retryer, labelstore.WithWait(time.Second, 10*time.Millisecond))

	return &testEnv{
		labeler:   New(store, checkrun.NewReporter(gh, retryer), gh, retryer, &sched),
		gh:        gh,
		scheduler: &sched,
		pr:        &pr,
		pol: &policy.Policy{
			Repository:      testRef.Repository,
			Approvers:       []string{"bob", "alice"},
			AutoMergeUsers:  []string{"renovate"},
			MandatoryLabels: []string{"reviewed"},
			VerifiedJob:     true,
		},
	}
}

func TestApproverReviewAddsApprovedByLabel(t *testing.T) {
	env := newTestEnv(t, "ChangesRequestedBy-bob")

	err := env.labeler.Review(context.Background(), env.pr, env.pol, "bob", event.ReviewStateApproved)
	require.NoError(t, err)

	assert.Equal(t, []string{"ApprovedBy-bob"}, env.gh.Labels(testRef))
	assert.Equal(t, 2, env.scheduler.count())
}

func TestNonApproverReviewAddsLGTMByLabel(t *testing.T) {
	env := newTestEnv(t)

	err := env.labeler.Review(context.Background(), env.pr, env.pol, "carol", event.ReviewStateApproved)
	require.NoError(t, err)

	assert.Equal(t, []string{"LGTM-by-carol"}, env.gh.Labels(testRef))
}

func TestSelfApprovalIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	err := env.labeler.Review(context.Background(), env.pr, env.pol, "alice", event.ReviewStateApproved)
	require.NoError(t, err)

	assert.Empty(t, env.gh.Labels(testRef))
	assert.Zero(t, env.scheduler.count())
}

func TestChangesRequestedRemovesApproval(t *testing.T) {
	env := newTestEnv(t, "ApprovedBy-bob", "CommentedBy-bob", "LGTM-by-carol")

	err := env.labeler.Review(context.Background(), env.pr, env.pol, "bob", event.ReviewStateChangesRequested)
	require.NoError(t, err)

	assert.Equal(t, []string{"ChangesRequestedBy-bob", "LGTM-by-carol"}, env.gh.Labels(testRef))
}

func TestCommentedReviewAddsLabel(t *testing.T) {
	env := newTestEnv(t)

	err := env.labeler.Review(context.Background(), env.pr, env.pol, "carol", event.ReviewStateCommented)
	require.NoError(t, err)

	assert.Equal(t, []string{"CommentedBy-carol"}, env.gh.Labels(testRef))
}

func TestReviewIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.labeler.Review(ctx, env.pr, env.pol, "bob", event.ReviewStateApproved))
	require.NoError(t, env.labeler.Review(ctx, env.pr, env.pol, "bob", event.ReviewStateApproved))

	assert.Equal(t, []string{"ApprovedBy-bob"}, env.gh.Labels(testRef))
	assert.Equal(t, 1, env.scheduler.count())
}

func TestSynchronizeRemovesReviewLabelsAndResetsVerified(t *testing.T) {
	env := newTestEnv(t, "ApprovedBy-bob", "LGTM-by-carol", "CommentedBy-dave", "verified", "hold")

	require.NoError(t, env.labeler.Synchronize(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"hold"}, env.gh.Labels(testRef))

	runs := env.gh.CheckRuns("sisu", "app", "abc")
	require.Len(t, runs, 1)
	assert.Equal(t, checkrun.Verified, runs[0].Name)
	assert.Equal(t, string(checkrun.StatusQueued), runs[0].Status)
}

func TestResetVerifiedForAutoMergeUser(t *testing.T) {
	env := newTestEnv(t)
	env.pr.Author = "renovate"

	require.NoError(t, env.labeler.ResetVerified(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"verified"}, env.gh.Labels(testRef))

	runs := env.gh.CheckRuns("sisu", "app", "abc")
	require.Len(t, runs, 1)
	assert.Equal(t, string(checkrun.ConclusionSuccess), runs[0].Conclusion)
}

func TestResetVerifiedDisabled(t *testing.T) {
	env := newTestEnv(t, "verified")
	env.pol.VerifiedJob = false

	require.NoError(t, env.labeler.ResetVerified(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"verified"}, env.gh.Labels(testRef))
	assert.Empty(t, env.gh.CheckRuns("sisu", "app", "abc"))
}

func TestUserLabelHoldAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.labeler.UserLabel(ctx, env.pr, env.pol, &command.Command{Name: "hold"}, "bob", 11))
	assert.Equal(t, []string{"hold"}, env.gh.Labels(testRef))
	assert.Equal(t, []string{"+1"}, env.gh.Reactions(11))

	require.NoError(t, env.labeler.UserLabel(ctx, env.pr, env.pol, &command.Command{Name: "hold", Args: []string{"cancel"}, Cancel: true}, "bob", 12))
	assert.Empty(t, env.gh.Labels(testRef))
	assert.Equal(t, 2, env.scheduler.count())
}

func TestUserLabelUnsupportedIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.labeler.UserLabel(context.Background(), env.pr, env.pol, &command.Command{Name: "can-be-merged"}, "bob", 11))

	assert.Empty(t, env.gh.Labels(testRef))
	assert.Empty(t, env.gh.Reactions(11))
}

func TestUserLabelLGTM(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.labeler.UserLabel(ctx, env.pr, env.pol, &command.Command{Name: "lgtm"}, "carol", 1))
	assert.Equal(t, []string{"LGTM-by-carol"}, env.gh.Labels(testRef))

	require.NoError(t, env.labeler.UserLabel(ctx, env.pr, env.pol, &command.Command{Name: "lgtm", Args: []string{"cancel"}, Cancel: true}, "carol", 2))
	assert.Empty(t, env.gh.Labels(testRef))
}

func TestUserLabelWIPEditsTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.labeler.UserLabel(ctx, env.pr, env.pol, &command.Command{Name: "wip"}, "alice", 1))
	assert.Equal(t, []string{"wip"}, env.gh.Labels(testRef))

	pr, err := env.gh.PullRequest(ctx, "sisu", "app", 7)
	require.NoError(t, err)
	assert.Equal(t, "WIP: add feature", pr.Title)

	require.NoError(t, env.labeler.UserLabel(ctx, pr, env.pol, &command.Command{Name: "wip", Args: []string{"cancel"}, Cancel: true}, "alice", 2))
	assert.Empty(t, env.gh.Labels(testRef))

	pr, err = env.gh.PullRequest(ctx, "sisu", "app", 7)
	require.NoError(t, err)
	assert.Equal(t, "add feature", pr.Title)
}

func TestWIPFromTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.pr.Title = "wip: not done"
	require.NoError(t, env.labeler.WIPFromTitle(ctx, env.pr, env.pol))
	assert.Equal(t, []string{"wip"}, env.gh.Labels(testRef))

	env.pr.Title = "done"
	require.NoError(t, env.labeler.WIPFromTitle(ctx, env.pr, env.pol))
	assert.Empty(t, env.gh.Labels(testRef))
}

func TestSizeReplacesOutdatedSizeLabel(t *testing.T) {
	env := newTestEnv(t, "size/XL", "hold")

	require.NoError(t, env.labeler.Size(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"hold", "size/XS"}, env.gh.Labels(testRef))
}

func TestBranchReplacesOutdatedBranchLabel(t *testing.T) {
	env := newTestEnv(t, "branch-develop")

	require.NoError(t, env.labeler.Branch(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"branch-main"}, env.gh.Labels(testRef))
}

func TestMergeState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.pr.MergeableState = pullrequest.MergeableStateBehind
	require.NoError(t, env.labeler.MergeState(ctx, env.pr, env.pol))
	assert.Equal(t, []string{"needs-rebase"}, env.gh.Labels(testRef))

	env.pr.MergeableState = pullrequest.MergeableStateDirty
	require.NoError(t, env.labeler.MergeState(ctx, env.pr, env.pol))
	assert.Equal(t, []string{"has-conflicts"}, env.gh.Labels(testRef))

	env.pr.MergeableState = pullrequest.MergeableStateUnknown
	require.NoError(t, env.labeler.MergeState(ctx, env.pr, env.pol))
	assert.Equal(t, []string{"has-conflicts"}, env.gh.Labels(testRef))

	env.pr.MergeableState = "clean"
	require.NoError(t, env.labeler.MergeState(ctx, env.pr, env.pol))
	assert.Empty(t, env.gh.Labels(testRef))

	assert.Zero(t, env.scheduler.count())
}

func TestLabelErrorsArePropagated(t *testing.T) {
	env := newTestEnv(t)
	env.gh.FailWith("AddLabel", errors.New("boom"))

	err := env.labeler.Review(context.Background(), env.pr, env.pol, "bob", event.ReviewStateApproved)
	require.Error(t, err)
}

func TestAssignReviewers(t *testing.T) {
	env := newTestEnv(t)
	env.pol.Reviewers = []string{"alice", "carol"}
	env.pol.FolderReviewers = map[string][]string{"docs": {"dave"}}
	env.gh.SetChangedFiles(testRef, "docs/index.md", "main.go")

	require.NoError(t, env.labeler.AssignReviewers(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"carol", "dave"}, env.gh.Reviewers(testRef))
}

func TestAssignAuthor(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.labeler.AssignAuthor(context.Background(), env.pr, env.pol))

	assert.Equal(t, []string{"alice"}, env.gh.Assignees(testRef))
}
