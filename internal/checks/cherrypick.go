package checks

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const cherryPickNotConfigured = "No cherry-pick configured for this repository"

// CherryPickBranch returns the name of the branch that is created for the
// cherry-pick of a pull request into target.
func CherryPickBranch(pr *pullrequest.PullRequest, target string) string {
	return labels.CherryPicked + "-" + pr.HeadBranch + "-" + target
}

// RequestCherryPick handles a "/cherry-pick <branch>..." command.
// For merged pull requests the cherry-picks are done immediately, for open
// ones the targets are stored as labels and picked up when it is merged.
func (o *Orchestrator) RequestCherryPick(ctx context.Context, pr *pullrequest.PullRequest, user string, targets []string) error {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	if c.CherryPick == nil {
		return o.comment(ctx, pr, cherryPickNotConfigured)
	}

	var existing []string
	for _, target := range targets {
		exists, err := o.branchExists(ctx, pr.Repository, target)
		if err != nil {
			return err
		}

		if !exists {
			if err := o.comment(ctx, pr, fmt.Sprintf("Target branch `%s` does not exist", target)); err != nil {
				return err
			}
			continue
		}

		existing = append(existing, target)
	}

	if len(existing) == 0 {
		return nil
	}

	if pr.Merged {
		var errs error
		for _, target := range existing {
			errs = multierr.Append(errs, o.CherryPick(ctx, pr, target))
		}

		return errs
	}

	var labelNames []string
	for _, target := range existing {
		name := labels.CherryPick(target)

		if _, err := o.labels.Add(ctx, pr.Ref, name); err != nil {
			return err
		}

		labelNames = append(labelNames, "`"+name+"`")
	}

	return o.comment(ctx, pr, fmt.Sprintf(
		"Cherry-pick requested for PR: `%s` by user `%s`\nAdding label/s %s for automatic cherry-pick once the PR is merged",
		pr.Title, user, strings.Join(labelNames, ", "),
	))
}

// CherryPickLabeled cherry-picks a merged pull request into all targets for
// that a cherry-pick label exists.
func (o *Orchestrator) CherryPickLabeled(ctx context.Context, pr *pullrequest.PullRequest) error {
	set, err := o.labels.List(ctx, pr.Ref)
	if err != nil {
		return err
	}

	requested := set.OfKind(labels.KindCherryPick)
	if len(requested) == 0 {
		return nil
	}

	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	if c.CherryPick == nil {
		o.logger.Info("pull request has cherry-pick labels but cherry-pick is not configured",
			append(pr.LogFields(), logfields.Event("cherry_pick_not_configured"))...,
		)
		return nil
	}

	var errs error
	for _, lbl := range requested {
		errs = multierr.Append(errs, o.CherryPick(ctx, pr, lbl.Target))
	}

	return errs
}

// CherryPick runs the cherry-pick command for a merged pull request and
// comments the result.
func (o *Orchestrator) CherryPick(ctx context.Context, pr *pullrequest.PullRequest, target string) error {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	if c.CherryPick == nil {
		return o.comment(ctx, pr, cherryPickNotConfigured)
	}

	exists, err := o.branchExists(ctx, pr.Repository, target)
	if err != nil {
		return err
	}

	if !exists {
		msg := fmt.Sprintf("cherry-pick failed: %s does not exist", target)

		err := o.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Failure(checkrun.CherryPick, &checkrun.Output{
			Title:   "cherry-pick failed",
			Summary: msg,
		}))

		return multierr.Append(err, o.comment(ctx, pr, msg))
	}

	data := newData(pr)
	data.Target = target
	data.CherryPickBranch = CherryPickBranch(pr, target)

	res, err := o.run(ctx, pr, checkrun.CherryPick, c.CherryPick, data)
	if err != nil {
		return err
	}

	if res == nil {
		return nil
	}

	if !res.Success {
		return o.comment(ctx, pr, cherryPickFailedComment(pr, data))
	}

	if _, err := o.labels.Add(ctx, pr.Ref, labels.CherryPicked); err != nil {
		return err
	}

	return o.comment(ctx, pr, fmt.Sprintf("Cherry-picked PR `%s` into `%s`", pr.Title, target))
}

func cherryPickFailedComment(pr *pullrequest.PullRequest, data *Data) string {
	commit := pr.MergeCommitSHA
	if commit == "" {
		commit = pr.HeadSHA
	}

	return fmt.Sprintf(`**Manual cherry-pick is needed**
Cherry pick failed for %s to %s:
To cherry-pick run:
`+"```"+`
git remote update
git checkout %s
git pull origin %s
git checkout -b %s
git cherry-pick %s
git push origin %s
`+"```",
		commit, data.Target,
		data.Target,
		data.Target,
		data.CherryPickBranch,
		commit,
		data.CherryPickBranch,
	)
}
