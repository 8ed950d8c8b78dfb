// Package labeler maintains the labels of pull requests that represent their
// review, verification, size and merge state.
//
// All operations are idempotent: adding an existing label or removing a
// missing one does nothing. When a label that influences the mergeability
// of a pull request changed, a re-evaluation is scheduled.
package labeler

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/command"
	"github.com/simplesurance/mergeguard/internal/event"
	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/policy"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
	"github.com/simplesurance/mergeguard/internal/stringutils"
)

const loggerName = "labeler"

const (
	wipTitlePrefix   = "WIP:"
	reactionThumbsUp = "+1"
)

// ReviewStateLGTM is the review state of a "/lgtm" comment command.
const ReviewStateLGTM = "lgtm"

type LabelStore interface {
	List(ctx context.Context, ref pullrequest.Ref) (*labels.Set, error)
	Add(ctx context.Context, ref pullrequest.Ref, name string) (bool, error)
	Remove(ctx context.Context, ref pullrequest.Ref, name string) (bool, error)
}

type CheckReporter interface {
	Upsert(ctx context.Context, repo pullrequest.Repository, headSHA string, u checkrun.Update) error
}

type GithubClient interface {
	CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, reaction string) error
	EditPullRequestTitle(ctx context.Context, owner, repo string, number int, title string) error
	AddAssignees(ctx context.Context, owner, repo string, number int, users []string) error
	RequestReviewers(ctx context.Context, owner, repo string, number int, users []string) error
	ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// Scheduler schedules a merge eligibility evaluation of a pull request.
type Scheduler interface {
	Schedule(ref pullrequest.Ref)
}

type Labeler struct {
	store     LabelStore
	reporter  CheckReporter
	clt       GithubClient
	retryer   Retryer
	scheduler Scheduler
	logger    *zap.Logger
}

func New(store LabelStore, reporter CheckReporter, clt GithubClient, retryer Retryer, scheduler Scheduler) *Labeler {
	return &Labeler{
		store:     store,
		reporter:  reporter,
		clt:       clt,
		retryer:   retryer,
		scheduler: scheduler,
		logger:    zap.L().Named(loggerName),
	}
}

// AffectsMergeability returns true if a change of the label can change the
// merge eligibility of a pull request.
func AffectsMergeability(pol *policy.Policy, name string) bool {
	switch name {
	case labels.Hold, labels.WIP, labels.Verified, labels.LGTM:
		return true
	}

	l := labels.Parse(name)
	if l.Kind.IsReviewer() {
		return true
	}

	return slices.Contains(pol.MandatoryLabels, name)
}

func (l *Labeler) add(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, name string) error {
	added, err := l.store.Add(ctx, pr.Ref, name)
	if err != nil {
		return err
	}

	if added && AffectsMergeability(pol, name) {
		l.scheduler.Schedule(pr.Ref)
	}

	return nil
}

func (l *Labeler) remove(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, name string) error {
	removed, err := l.store.Remove(ctx, pr.Ref, name)
	if err != nil {
		return err
	}

	if removed && AffectsMergeability(pol, name) {
		l.scheduler.Schedule(pr.Ref)
	}

	return nil
}

func (l *Labeler) approvalLabel(pol *policy.Policy, user string) string {
	if pol.IsApprover(user) {
		return labels.ApprovedBy(user)
	}

	return labels.LGTMBy(user)
}

// Review applies the labels for a submitted review or a "/lgtm" command of
// reviewer.
func (l *Labeler) Review(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, reviewer, state string) error {
	logger := l.logger.With(pr.LogFields()...).With(logfields.User(reviewer), zap.String("review_state", state))

	switch state {
	case event.ReviewStateApproved, ReviewStateLGTM:
		if reviewer == pr.Author {
			logger.Info("pull request author approved own pull request, not adding label",
				logfields.Event("self_approval_ignored"),
			)
			return nil
		}

		return multierr.Combine(
			l.add(ctx, pr, pol, l.approvalLabel(pol, reviewer)),
			l.remove(ctx, pr, pol, labels.ChangesRequestedBy(reviewer)),
		)

	case event.ReviewStateChangesRequested:
		return multierr.Combine(
			l.add(ctx, pr, pol, labels.ChangesRequestedBy(reviewer)),
			l.remove(ctx, pr, pol, labels.ApprovedBy(reviewer)),
			l.remove(ctx, pr, pol, labels.LGTMBy(reviewer)),
			l.remove(ctx, pr, pol, labels.CommentedBy(reviewer)),
		)

	case event.ReviewStateCommented:
		return l.add(ctx, pr, pol, labels.CommentedBy(reviewer))

	default:
		logger.Warn("ignoring review with unsupported state",
			logfields.Event("unsupported_review_state"),
		)
		return nil
	}
}

// CancelApproval removes the approval labels of user.
func (l *Labeler) CancelApproval(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, user string) error {
	return multierr.Combine(
		l.remove(ctx, pr, pol, labels.ApprovedBy(user)),
		l.remove(ctx, pr, pol, labels.LGTMBy(user)),
	)
}

// RemoveReviewLabels removes all labels that were created because of
// reviews.
func (l *Labeler) RemoveReviewLabels(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	set, err := l.store.List(ctx, pr.Ref)
	if err != nil {
		return err
	}

	var errs error
	for _, lbl := range set.OfKind(labels.KindApprovedBy, labels.KindLGTMBy, labels.KindCommentedBy, labels.KindChangesRequestedBy) {
		errs = multierr.Append(errs, l.remove(ctx, pr, pol, lbl.Name))
	}

	return errs
}

// Synchronize resets the review and verification state after new commits
// were pushed.
func (l *Labeler) Synchronize(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	if err := l.RemoveReviewLabels(ctx, pr, pol); err != nil {
		return err
	}

	return l.ResetVerified(ctx, pr, pol)
}

// ResetVerified marks pull requests of trusted authors as verified and
// removes the verified state of all others.
func (l *Labeler) ResetVerified(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	if !pol.VerifiedJob {
		return nil
	}

	if pol.IsAutoMergeUser(pr.Author) {
		l.logger.Info("author is trusted, marking pull request as verified",
			append(pr.LogFields(), logfields.Event("pull_request_auto_verified"), logfields.User(pr.Author))...,
		)

		if err := l.add(ctx, pr, pol, labels.Verified); err != nil {
			return err
		}

		return l.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Success(checkrun.Verified, nil))
	}

	if err := l.remove(ctx, pr, pol, labels.Verified); err != nil {
		return err
	}

	return l.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Queued(checkrun.Verified))
}

// VerifiedLabelChanged reports the verified check according to the
// existence of the verified label.
func (l *Labeler) VerifiedLabelChanged(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, labeled bool) error {
	if !pol.VerifiedJob {
		return nil
	}

	if labeled {
		return l.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Success(checkrun.Verified, nil))
	}

	return l.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Queued(checkrun.Verified))
}

// UserLabel handles a label command like "/hold" or "/hold cancel".
// Commands for labels that are not user labels are ignored.
func (l *Labeler) UserLabel(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, cmd *command.Command, user string, commentID int64) error {
	logger := l.logger.With(pr.LogFields()...).With(logfields.User(user), logfields.Command(cmd.String()))

	if !labels.IsUserLabel(cmd.Name) {
		logger.Info("ignoring command for unsupported label",
			logfields.Event("unsupported_user_label"),
		)
		return nil
	}

	l.react(ctx, pr, commentID, logger)

	switch {
	case cmd.Name == labels.LGTM && cmd.Cancel:
		return l.CancelApproval(ctx, pr, pol, user)

	case cmd.Name == labels.LGTM:
		return l.Review(ctx, pr, pol, user, ReviewStateLGTM)

	case cmd.Name == labels.WIP:
		return l.wipCommand(ctx, pr, pol, cmd.Cancel)

	case cmd.Cancel:
		return l.remove(ctx, pr, pol, cmd.Name)

	default:
		return l.add(ctx, pr, pol, cmd.Name)
	}
}

func (l *Labeler) react(ctx context.Context, pr *pullrequest.PullRequest, commentID int64, logger *zap.Logger) {
	if commentID == 0 {
		return
	}

	err := l.retryer.Run(ctx, func(ctx context.Context) error {
		return l.clt.CreateCommentReaction(ctx, pr.Owner, pr.Name, commentID, reactionThumbsUp)
	}, append(pr.LogFields(), logfields.Operation("github_create_comment_reaction")))
	if err != nil {
		logger.Warn("adding reaction to comment failed",
			logfields.Event("comment_reaction_failed"),
			zap.Error(err),
		)
	}
}

func hasWIPPrefix(title string) bool {
	return stringutils.HasPrefixFold(title, wipTitlePrefix)
}

func (l *Labeler) wipCommand(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy, cancel bool) error {
	var title string

	if cancel {
		if err := l.remove(ctx, pr, pol, labels.WIP); err != nil {
			return err
		}

		if !hasWIPPrefix(pr.Title) {
			return nil
		}

		title = strings.TrimSpace(pr.Title[len(wipTitlePrefix):])
	} else {
		if err := l.add(ctx, pr, pol, labels.WIP); err != nil {
			return err
		}

		if hasWIPPrefix(pr.Title) {
			return nil
		}

		title = wipTitlePrefix + " " + pr.Title
	}

	return l.retryer.Run(ctx, func(ctx context.Context) error {
		return l.clt.EditPullRequestTitle(ctx, pr.Owner, pr.Name, pr.Number, title)
	}, append(pr.LogFields(), logfields.Operation("github_edit_pull_request_title")))
}

// WIPFromTitle adds the wip label if the title starts with "WIP:" and
// removes it otherwise.
func (l *Labeler) WIPFromTitle(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	if hasWIPPrefix(pr.Title) {
		return l.add(ctx, pr, pol, labels.WIP)
	}

	return l.remove(ctx, pr, pol, labels.WIP)
}

// Size sets the size label of the pull request, other size labels are
// removed.
func (l *Labeler) Size(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	want := labels.SizeLabel(pr.Size())

	set, err := l.store.List(ctx, pr.Ref)
	if err != nil {
		return err
	}

	var errs error
	for _, lbl := range set.OfKind(labels.KindSize) {
		if lbl.Name != want {
			errs = multierr.Append(errs, l.remove(ctx, pr, pol, lbl.Name))
		}
	}
	if errs != nil {
		return errs
	}

	if set.Has(want) {
		return nil
	}

	return l.add(ctx, pr, pol, want)
}

// Branch sets the label of the base branch, labels of other branches are
// removed.
func (l *Labeler) Branch(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	want := labels.Branch(pr.BaseBranch)

	set, err := l.store.List(ctx, pr.Ref)
	if err != nil {
		return err
	}

	var errs error
	for _, lbl := range set.OfKind(labels.KindBranch) {
		if lbl.Name != want {
			errs = multierr.Append(errs, l.remove(ctx, pr, pol, lbl.Name))
		}
	}

	return multierr.Append(errs, l.add(ctx, pr, pol, want))
}

// MergeState sets the needs-rebase and has-conflicts labels according to
// the mergeable state reported by GitHub. Nothing is done when GitHub did
// not compute the state yet.
func (l *Labeler) MergeState(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	var errs error

	switch pr.MergeableState {
	case "", pullrequest.MergeableStateUnknown:
		l.logger.Debug("mergeable state is unknown, skipping merge state labels",
			append(pr.LogFields(), logfields.Event("mergeable_state_unknown"))...,
		)
		return nil

	case pullrequest.MergeableStateBehind:
		errs = multierr.Append(errs, l.add(ctx, pr, pol, labels.NeedsRebase))
		errs = multierr.Append(errs, l.remove(ctx, pr, pol, labels.HasConflicts))

	case pullrequest.MergeableStateDirty:
		errs = multierr.Append(errs, l.remove(ctx, pr, pol, labels.NeedsRebase))
		errs = multierr.Append(errs, l.add(ctx, pr, pol, labels.HasConflicts))

	default:
		errs = multierr.Append(errs, l.remove(ctx, pr, pol, labels.NeedsRebase))
		errs = multierr.Append(errs, l.remove(ctx, pr, pol, labels.HasConflicts))
	}

	return errs
}
