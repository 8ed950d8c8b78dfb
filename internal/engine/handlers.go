package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/command"
	"github.com/simplesurance/mergeguard/internal/event"
	"github.com/simplesurance/mergeguard/internal/labeler"
	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/policy"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

func (e *Engine) pullRequest(ctx context.Context, ref pullrequest.Ref) (*pullrequest.PullRequest, error) {
	var pr *pullrequest.PullRequest

	err := e.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		pr, err = e.clt.PullRequest(ctx, ref.Owner, ref.Name, ref.Number)
		return err
	}, append(ref.LogFields(), logfields.Operation("github_get_pull_request")))
	if err != nil {
		return nil, fmt.Errorf("retrieving pull request %s failed: %w", ref, err)
	}

	return pr, nil
}

func (e *Engine) handlePullRequestEvent(ctx context.Context, ev *event.Event, logger *zap.Logger) error {
	pr, err := e.pullRequest(ctx, ev.PullRequest)
	if err != nil {
		return err
	}

	pol, err := e.policies.Policy(ctx, pr.Repository, pr.BaseBranch)
	if err != nil {
		return fmt.Errorf("retrieving policy failed: %w", err)
	}

	switch ev.Kind {
	case event.KindPullRequestOpened:
		return e.onOpened(ctx, pr, pol, logger)

	case event.KindPullRequestSynchronized:
		return e.onSynchronized(ctx, pr, pol, logger)

	case event.KindPullRequestClosed:
		return e.onClosed(ctx, pr, logger)

	case event.KindPullRequestLabeled, event.KindPullRequestUnlabeled:
		return e.onLabelChanged(ctx, pr, pol, ev.Label, ev.Kind == event.KindPullRequestLabeled, logger)

	case event.KindPullRequestEdited:
		return e.labeler.WIPFromTitle(ctx, pr, pol)

	case event.KindReviewSubmitted:
		return e.labeler.Review(ctx, pr, pol, ev.Sender, ev.ReviewState)

	case event.KindCommentCreated:
		return e.onComment(ctx, pr, pol, ev, logger)

	case event.KindCheckRunCompleted:
		if ev.CheckRunName == checkrun.CanBeMerged {
			return nil
		}

		e.debouncer.Schedule(pr.Ref)
		return nil

	default:
		return fmt.Errorf("no handler for event kind %s", ev.Kind)
	}
}

// runLogged runs fn in the group, errors are logged and returned.
func runLogged(g *errgroup.Group, logger *zap.Logger, step string, fn func() error) {
	g.Go(func() error {
		err := fn()
		if err != nil {
			logger.Error("processing step failed",
				logfields.Event("processing_step_failed"),
				zap.String("step", step),
				zap.Error(err),
			)
		}

		return err
	})
}

func (e *Engine) onOpened(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, logger *zap.Logger) error {
	var errs error

	errs = multierr.Append(errs, e.postWelcomeComment(ctx, pr, logger))
	errs = multierr.Append(errs, e.labeler.WIPFromTitle(ctx, pr, pol))

	return multierr.Append(errs, e.processNewCommits(ctx, pr, pol, true, logger))
}

func (e *Engine) onSynchronized(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, logger *zap.Logger) error {
	if err := e.labeler.Synchronize(ctx, pr, pol); err != nil {
		logger.Error("resetting review state failed",
			logfields.Event("review_state_reset_failed"),
			zap.Error(err),
		)
		return err
	}

	return e.processNewCommits(ctx, pr, pol, false, logger)
}

// processNewCommits runs the labeling steps and queues the checks
// concurrently, then runs the checks.
func (e *Engine) processNewCommits(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, opened bool, logger *zap.Logger) error {
	var g errgroup.Group

	runLogged(&g, logger, "assign_reviewers", func() error { return e.labeler.AssignReviewers(ctx, pr, pol) })
	runLogged(&g, logger, "branch_label", func() error { return e.labeler.Branch(ctx, pr, pol) })
	runLogged(&g, logger, "merge_state_labels", func() error { return e.labeler.MergeState(ctx, pr, pol) })
	runLogged(&g, logger, "size_label", func() error { return e.labeler.Size(ctx, pr, pol) })
	runLogged(&g, logger, "queue_checks", func() error { return e.checks.Queue(ctx, pr) })
	if opened {
		runLogged(&g, logger, "reset_verified", func() error { return e.labeler.ResetVerified(ctx, pr, pol) })
	}

	errs := g.Wait()

	if err := e.checks.RunAll(ctx, pr); err != nil {
		errs = multierr.Append(errs, err)
	}

	if opened {
		errs = multierr.Append(errs, e.labeler.AssignAuthor(ctx, pr, pol))
	}

	e.debouncer.Schedule(pr.Ref)

	return errs
}

func (e *Engine) onClosed(ctx context.Context, pr *pullrequest.PullRequest, logger *zap.Logger) error {
	if !pr.Merged {
		logger.Debug("pull request was closed without merging",
			logfields.Event("pull_request_closed_unmerged"),
		)
		return nil
	}

	var g errgroup.Group

	runLogged(&g, logger, "cherry_pick", func() error { return e.checks.CherryPickLabeled(ctx, pr) })
	runLogged(&g, logger, "build_and_push_container", func() error { return e.checks.BuildAndPushMerged(ctx, pr) })
	runLogged(&g, logger, "relabel_open_pull_requests", func() error { return e.relabelOpenPullRequests(ctx, pr) })

	return g.Wait()
}

// relabelOpenPullRequests updates the merge state labels of the open pull
// requests with the same base branch.
func (e *Engine) relabelOpenPullRequests(ctx context.Context, merged *pullrequest.PullRequest) error {
	var errs error

	it := e.clt.ListOpenPullRequests(ctx, merged.Owner, merged.Name, merged.BaseBranch)
	for {
		listed, err := it.Next()
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("listing open pull requests failed: %w", err))
		}

		if listed == nil {
			return errs
		}

		// listed pull requests do not contain the mergeable state
		pr, err := e.pullRequest(ctx, listed.Ref)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		pol, err := e.policies.Policy(ctx, pr.Repository, pr.BaseBranch)
		if err != nil {
			return multierr.Append(errs, err)
		}

		errs = multierr.Append(errs, e.labeler.MergeState(ctx, pr, pol))
	}
}

func (e *Engine) onLabelChanged(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, label string, labeled bool, logger *zap.Logger) error {
	if label == labels.CanBeMerged {
		return nil
	}

	var err error
	if label == labels.Verified {
		err = e.labeler.VerifiedLabelChanged(ctx, pr, pol, labeled)
	}

	if labeler.AffectsMergeability(pol, label) {
		logger.Debug("label affects mergeability, scheduling evaluation",
			logfields.Event("merge_evaluation_scheduled"),
		)
		e.debouncer.Schedule(pr.Ref)
	}

	return err
}

func (e *Engine) onComment(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, ev *event.Event, logger *zap.Logger) error {
	if strings.HasSuffix(ev.Sender, "[bot]") {
		logger.Debug("ignoring comment of bot", logfields.Event("bot_comment_ignored"))
		return nil
	}

	var errs error

	for _, cmd := range command.Parse(ev.CommentBody) {
		logger := logger.With(logfields.Command(cmd.String()))
		logger.Info("processing command", logfields.Event("command_processing"))

		if err := e.runCommand(ctx, pr, pol, ev, cmd); err != nil {
			logger.Error("processing command failed",
				logfields.Event("command_failed"),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (e *Engine) runCommand(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, ev *event.Event, cmd *command.Command) error {
	switch cmd.Name {
	case command.Retest:
		return e.checks.Retest(ctx, pr, cmd.Args)

	case command.CherryPick:
		return e.checks.RequestCherryPick(ctx, pr, ev.Sender, cmd.Args)

	case command.AssignReviewers:
		return e.labeler.AssignReviewers(ctx, pr, pol)

	case command.CheckCanMerge:
		_, err := e.ReevaluateMergeability(ctx, pr.Ref)
		return err

	case command.BuildAndPushContainer:
		return e.checks.BuildAndPushCommand(ctx, pr)

	default:
		return e.labeler.UserLabel(ctx, pr, pol, cmd, ev.Sender, ev.CommentID)
	}
}

func (e *Engine) comment(ctx context.Context, pr *pullrequest.PullRequest, body string) error {
	return e.retryer.Run(ctx, func(ctx context.Context) error {
		return e.clt.CreateIssueComment(ctx, pr.Owner, pr.Name, pr.Number, body)
	}, append(pr.LogFields(), logfields.Operation("github_create_issue_comment")))
}

const defaultWelcomeComment = `Report bugs in [Issues](../issues)

The following are automatically added:
 * Reviewers from the OWNERS file (in the root of the repository) are requested.
 * A size label that reflects the number of changed lines.
 * A label of the target branch.
 * The configured checks are run for every pushed commit.

Available user actions:
 * To mark the PR as WIP comment ` + "`/wip`" + `, to remove it comment ` + "`/wip cancel`" + `.
 * To block merging of the PR comment ` + "`/hold`" + `, to un-block merging comment ` + "`/hold cancel`" + `.
 * To mark the PR as verified comment ` + "`/verified`" + `, to un-verify it comment ` + "`/verified cancel`" + `.
 * To approve the PR as non-approver comment ` + "`/lgtm`" + `, to remove the approval comment ` + "`/lgtm cancel`" + `.
 * To cherry-pick a merged PR comment ` + "`/cherry-pick <target branch>`" + `.
 * To re-run checks comment ` + "`/retest <check name>`" + `.
 * To build and push a container image comment ` + "`/build-and-push-container`" + `.
 * To check if the PR can be merged comment ` + "`/check-can-merge`" + `.
 * To request reviews comment ` + "`/assign-reviewers`" + `.
`

// postWelcomeComment comments the welcome text if the pull request does not
// have it already.
func (e *Engine) postWelcomeComment(ctx context.Context, pr *pullrequest.PullRequest, logger *zap.Logger) error {
	text := welcomeComment(e.config.Repository(pr.Owner, pr.Name))

	e.welcomeMu.Lock()
	defer e.welcomeMu.Unlock()

	var bodies []string
	err := e.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		bodies, err = e.clt.ListIssueCommentBodies(ctx, pr.Owner, pr.Name, pr.Number)
		return err
	}, append(pr.LogFields(), logfields.Operation("github_list_issue_comments")))
	if err != nil {
		return fmt.Errorf("listing comments failed: %w", err)
	}

	for _, b := range bodies {
		if strings.HasPrefix(b, text) {
			logger.Debug("welcome comment exists already",
				logfields.Event("welcome_comment_exists"),
			)
			return nil
		}
	}

	return e.comment(ctx, pr, text)
}

func welcomeComment(repo *cfg.Repository) string {
	if repo != nil && repo.WelcomeComment != "" {
		return repo.WelcomeComment
	}

	return defaultWelcomeComment
}
