package labeler

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/policy"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// AssignReviewers requests reviews from the reviewers responsible for the
// files changed by the pull request.
func (l *Labeler) AssignReviewers(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	var files []string

	err := l.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		files, err = l.clt.ListChangedFiles(ctx, pr.Owner, pr.Name, pr.Number)
		return err
	}, append(pr.LogFields(), logfields.Operation("github_list_changed_files")))
	if err != nil {
		return err
	}

	reviewers := pol.ReviewersFor(pr.Author, files)
	if len(reviewers) == 0 {
		l.logger.Debug("no reviewers found for pull request",
			append(pr.LogFields(), logfields.Event("no_reviewers_found"))...,
		)
		return nil
	}

	err = l.retryer.Run(ctx, func(ctx context.Context) error {
		return l.clt.RequestReviewers(ctx, pr.Owner, pr.Name, pr.Number, reviewers)
	}, append(pr.LogFields(), logfields.Operation("github_request_reviewers")))
	if err != nil {
		return err
	}

	l.logger.Info("requested reviews",
		append(pr.LogFields(),
			logfields.Event("reviewers_requested"),
			zap.Strings("reviewers", reviewers),
		)...,
	)

	return nil
}

// AssignAuthor assigns the pull request to its author. When that is not
// possible, e.g. because the author is not a collaborator, it is assigned
// to the first approver instead.
func (l *Labeler) AssignAuthor(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	logF := append(pr.LogFields(), logfields.Operation("github_add_assignees"))

	err := l.retryer.Run(ctx, func(ctx context.Context) error {
		return l.clt.AddAssignees(ctx, pr.Owner, pr.Name, pr.Number, []string{pr.Author})
	}, logF)
	if err == nil {
		return nil
	}

	if len(pol.Approvers) == 0 {
		return err
	}

	l.logger.Info("assigning pull request to author failed, assigning it to an approver",
		append(pr.LogFields(),
			logfields.Event("assign_author_failed"),
			logfields.User(pol.Approvers[0]),
			zap.Error(err),
		)...,
	)

	return l.retryer.Run(ctx, func(ctx context.Context) error {
		return l.clt.AddAssignees(ctx, pr.Owner, pr.Name, pr.Number, pol.Approvers[:1])
	}, logF)
}
