package event

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	provider "github.com/simplesurance/mergeguard/internal/provider/github"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const loggerName = "event_classifier"

// ErrUnsupported is returned for webhook events and actions that are not
// handled.
var ErrUnsupported = errors.New("unsupported event")

type PullRequestResolver interface {
	PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]int, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// Classifier converts webhook events to Events.
type Classifier struct {
	resolver PullRequestResolver
	retryer  Retryer
	logger   *zap.Logger
}

func NewClassifier(resolver PullRequestResolver, retryer Retryer) *Classifier {
	return &Classifier{
		resolver: resolver,
		retryer:  retryer,
		logger:   zap.L().Named(loggerName),
	}
}

// Classify determines the kind of the webhook event and the pull request
// it belongs to.
// The pull request is taken from the payload, if it does not contain one
// the most recent pull request that contains the referenced commit is used.
// If the event kind requires a pull request and none was found, the event
// is returned together with a *mgerr.NoAssociablePullRequestError.
// For unsupported events an error wrapping ErrUnsupported is returned.
func (c *Classifier) Classify(ctx context.Context, ghEvent *provider.Event) (*Event, error) {
	ev, err := classify(ghEvent)
	if err != nil {
		return nil, err
	}

	ev.DeliveryID = ghEvent.DeliveryID
	ev.JSON = ghEvent.JSON

	if !ev.Kind.NeedsPullRequest() || !ev.PullRequest.IsZero() {
		return ev, nil
	}

	if ev.HeadSHA == "" {
		return ev, &mgerr.NoAssociablePullRequestError{EventType: ev.Kind.String()}
	}

	nr, err := c.pullRequestForCommit(ctx, ev)
	if err != nil {
		return nil, err
	}

	if nr == 0 {
		return ev, &mgerr.NoAssociablePullRequestError{
			EventType: ev.Kind.String(),
			CommitSHA: ev.HeadSHA,
		}
	}

	ev.PullRequest = pullrequest.Ref{Repository: ev.Repository, Number: nr}

	c.logger.Debug("resolved pull request by commit",
		append(ev.LogFields(), logfields.Event("pull_request_resolved_by_commit"))...,
	)

	return ev, nil
}

func (c *Classifier) pullRequestForCommit(ctx context.Context, ev *Event) (int, error) {
	var nrs []int

	err := c.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		nrs, err = c.resolver.PullRequestsForCommit(ctx, ev.Repository.Owner, ev.Repository.Name, ev.HeadSHA)
		return err
	}, append(ev.LogFields(), logfields.Operation("github_list_pull_requests_for_commit")))
	if err != nil {
		return 0, fmt.Errorf("resolving pull request for commit %s failed: %w", ev.HeadSHA, err)
	}

	if len(nrs) == 0 {
		return 0, nil
	}

	return nrs[0], nil
}

func unsupported(eventType, action string) error {
	if action == "" {
		return fmt.Errorf("%s event: %w", eventType, ErrUnsupported)
	}

	return fmt.Errorf("%s event with action %q: %w", eventType, action, ErrUnsupported)
}

func repositoryOf(repo *github.Repository) pullrequest.Repository {
	return pullrequest.Repository{
		Owner: repo.GetOwner().GetLogin(),
		Name:  repo.GetName(),
	}
}

func classify(ghEvent *provider.Event) (*Event, error) {
	switch v := ghEvent.Event.(type) {
	case *github.PullRequestEvent:
		return classifyPullRequestEvent(v)

	case *github.PullRequestReviewEvent:
		if v.GetAction() != "submitted" {
			return nil, unsupported(ghEvent.Type, v.GetAction())
		}

		ev := fromPullRequest(repositoryOf(v.GetRepo()), v.GetPullRequest())
		ev.Kind = KindReviewSubmitted
		ev.Sender = v.GetReview().GetUser().GetLogin()
		ev.ReviewState = strings.ToLower(v.GetReview().GetState())

		return ev, nil

	case *github.IssueCommentEvent:
		if v.GetAction() != "created" {
			return nil, unsupported(ghEvent.Type, v.GetAction())
		}

		if issue := v.GetIssue(); issue == nil || !issue.IsPullRequest() {
			return nil, fmt.Errorf("comment on issue: %w", ErrUnsupported)
		}

		repo := repositoryOf(v.GetRepo())

		return &Event{
			Kind:        KindCommentCreated,
			Repository:  repo,
			PullRequest: pullrequest.Ref{Repository: repo, Number: v.GetIssue().GetNumber()},
			Sender:      v.GetComment().GetUser().GetLogin(),
			CommentID:   v.GetComment().GetID(),
			CommentBody: v.GetComment().GetBody(),
		}, nil

	case *github.CheckRunEvent:
		if v.GetAction() != "completed" {
			return nil, unsupported(ghEvent.Type, v.GetAction())
		}

		repo := repositoryOf(v.GetRepo())
		run := v.GetCheckRun()

		ev := Event{
			Kind:               KindCheckRunCompleted,
			Repository:         repo,
			Sender:             v.GetSender().GetLogin(),
			HeadSHA:            run.GetHeadSHA(),
			CheckRunName:       run.GetName(),
			CheckRunConclusion: run.GetConclusion(),
		}

		if prs := run.PullRequests; len(prs) > 0 {
			ev.PullRequest = pullrequest.Ref{Repository: repo, Number: prs[0].GetNumber()}
		}

		return &ev, nil

	case *github.PushEvent:
		tag, isTag := strings.CutPrefix(v.GetRef(), "refs/tags/")
		if !isTag || tag == "" || v.GetDeleted() {
			return nil, fmt.Errorf("push of %q: %w", v.GetRef(), ErrUnsupported)
		}

		owner := v.GetRepo().GetOwner().GetLogin()
		if owner == "" {
			owner = v.GetRepo().GetOwner().GetName()
		}

		return &Event{
			Kind:       KindPushTag,
			Repository: pullrequest.Repository{Owner: owner, Name: v.GetRepo().GetName()},
			Sender:     v.GetSender().GetLogin(),
			HeadSHA:    v.GetAfter(),
			Tag:        tag,
		}, nil

	default:
		return nil, unsupported(ghEvent.Type, "")
	}
}

func fromPullRequest(repo pullrequest.Repository, pr *github.PullRequest) *Event {
	ev := Event{
		Repository: repo,
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseBranch: pr.GetBase().GetRef(),
		Title:      pr.GetTitle(),
		Merged:     pr.GetMerged(),
	}

	if pr.GetNumber() != 0 {
		ev.PullRequest = pullrequest.Ref{Repository: repo, Number: pr.GetNumber()}
	}

	return &ev
}

func classifyPullRequestEvent(v *github.PullRequestEvent) (*Event, error) {
	ev := fromPullRequest(repositoryOf(v.GetRepo()), v.GetPullRequest())
	ev.Sender = v.GetSender().GetLogin()

	if ev.PullRequest.IsZero() && v.GetNumber() != 0 {
		ev.PullRequest = pullrequest.Ref{Repository: ev.Repository, Number: v.GetNumber()}
	}

	switch v.GetAction() {
	case "opened":
		ev.Kind = KindPullRequestOpened
	case "synchronize":
		ev.Kind = KindPullRequestSynchronized
	case "closed":
		ev.Kind = KindPullRequestClosed
	case "labeled":
		ev.Kind = KindPullRequestLabeled
		ev.Label = v.GetLabel().GetName()
	case "unlabeled":
		ev.Kind = KindPullRequestUnlabeled
		ev.Label = v.GetLabel().GetName()
	case "edited":
		ev.Kind = KindPullRequestEdited
	default:
		return nil, unsupported("pull_request", v.GetAction())
	}

	return ev, nil
}
