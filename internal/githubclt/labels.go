package githubclt

import (
	"context"
	"errors"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
)

// ListLabels returns the names of all labels of a pull request or issue.
func (clt *Client) ListLabels(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int) ([]string, error) {
	var result []string

	opts := github.ListOptions{PerPage: 100}
	for {
		labels, resp, err := clt.restClt.Issues.ListLabelsByIssue(ctx, owner, repo, pullRequestOrIssueNumber, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, l := range labels {
			result = append(result, l.GetName())
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// AddLabel adds a label to Pull-Request or Issue.
func (clt *Client) AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	if label == "" {
		// by default github removes all labels when none is provided,
		// we do not need this functionality, as safe guard fail if
		// because of a bug an empty label value is passed:
		return errors.New("provided label is empty")
	}
	_, _, err := clt.restClt.Issues.AddLabelsToIssue(ctx, owner, repo, pullRequestOrIssueNumber, []string{label})
	return clt.wrapRetryableErrors(err)
}

// RemoveLabel removes a label from a Pull-Request or issue.
// If the issue or PR does not have the label, the operation succeeds.
func (clt *Client) RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error {
	_, err := clt.restClt.Issues.RemoveLabelForIssue(
		ctx,
		owner,
		repo,
		pullRequestOrIssueNumber,
		label,
	)
	if err != nil {
		if isNotFound(err) {
			clt.logger.Debug("removing label returned a not found response, interpreting it as success",
				logfields.RepositoryOwner(owner),
				logfields.Repository(repo),
				logfields.PullRequest(pullRequestOrIssueNumber),
				logfields.Label(label),
				logfields.Event("github_remove_label_returned_not_found"),
				zap.Error(err),
			)

			return nil
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// UpsertRepositoryLabel ensures that the label exists in the repository with
// the given color.
func (clt *Client) UpsertRepositoryLabel(ctx context.Context, owner, repo, name, color string) error {
	existing, _, err := clt.restClt.Issues.GetLabel(ctx, owner, repo, name)
	if err != nil {
		if !isNotFound(err) {
			return clt.wrapRetryableErrors(err)
		}

		_, _, err := clt.restClt.Issues.CreateLabel(ctx, owner, repo, &github.Label{
			Name:  &name,
			Color: &color,
		})
		return clt.wrapRetryableErrors(err)
	}

	if existing.GetColor() == color {
		return nil
	}

	_, _, err = clt.restClt.Issues.EditLabel(ctx, owner, repo, name, &github.Label{
		Name:  &name,
		Color: &color,
	})

	return clt.wrapRetryableErrors(err)
}
