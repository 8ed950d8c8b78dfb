package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/google/go-github/v43/github"

	"github.com/simplesurance/mergeguard/internal/mgerr"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

func toPullRequest(owner, repo string, pr *github.PullRequest) *pullrequest.PullRequest {
	return &pullrequest.PullRequest{
		Ref:            pullrequest.NewRef(owner, repo, pr.GetNumber()),
		Title:          pr.GetTitle(),
		Author:         pr.GetUser().GetLogin(),
		State:          pr.GetState(),
		HeadSHA:        pr.GetHead().GetSHA(),
		HeadBranch:     pr.GetHead().GetRef(),
		BaseBranch:     pr.GetBase().GetRef(),
		CloneURL:       pr.GetBase().GetRepo().GetCloneURL(),
		HTMLURL:        pr.GetHTMLURL(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
		Merged:         pr.GetMerged(),
		Mergeable:      pr.Mergeable,
		MergeableState: pr.GetMergeableState(),
		Additions:      pr.GetAdditions(),
		Deletions:      pr.GetDeletions(),
	}
}

// PullRequest returns the current state of a pull request.
func (clt *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*pullrequest.PullRequest, error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		if isNotFound(err) {
			return nil, mgerr.NewResourceNotFoundError("pull request", strconv.Itoa(number), err)
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	if pr.GetHead().GetSHA() == "" {
		return nil, errors.New("got pull request object with empty head sha")
	}

	return toPullRequest(owner, repo, pr), nil
}

// PullRequestsForCommit returns the numbers of the pull requests that
// contain the commit, the most recently created first.
func (clt *Client) PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]int, error) {
	prs, _, err := clt.restClt.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, &github.PullRequestListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	sort.Slice(prs, func(i, j int) bool {
		return prs[i].GetCreatedAt().After(prs[j].GetCreatedAt())
	})

	result := make([]int, 0, len(prs))
	for _, pr := range prs {
		result = append(result, pr.GetNumber())
	}

	return result, nil
}

// MergePullRequest merges the pull request with the given method ("merge",
// "squash" or "rebase").
// The merge fails if the head of the pull request is not headSHA anymore.
func (clt *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, method, headSHA string) error {
	_, _, err := clt.restClt.PullRequests.Merge(ctx, owner, repo, number, "", &github.PullRequestOptions{
		MergeMethod: method,
		SHA:         headSHA,
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil {
			switch respErr.Response.StatusCode {
			case http.StatusMethodNotAllowed, http.StatusConflict:
				return fmt.Errorf("pull request can not be merged: %w", err)
			}
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

// EditPullRequestTitle changes the title of a pull request.
func (clt *Client) EditPullRequestTitle(ctx context.Context, owner, repo string, number int, title string) error {
	_, _, err := clt.restClt.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{Title: &title})
	return clt.wrapRetryableErrors(err)
}

// AddAssignees assigns users to a pull request or issue.
func (clt *Client) AddAssignees(ctx context.Context, owner, repo string, number int, users []string) error {
	_, _, err := clt.restClt.Issues.AddAssignees(ctx, owner, repo, number, users)
	return clt.wrapRetryableErrors(err)
}

// RequestReviewers requests reviews from users.
func (clt *Client) RequestReviewers(ctx context.Context, owner, repo string, number int, users []string) error {
	_, _, err := clt.restClt.PullRequests.RequestReviewers(ctx, owner, repo, number, github.ReviewersRequest{Reviewers: users})
	return clt.wrapRetryableErrors(err)
}

// ListChangedFiles returns the paths of the files changed by a pull request.
func (clt *Client) ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	var result []string

	opts := github.ListOptions{PerPage: 100}
	for {
		files, resp, err := clt.restClt.PullRequests.ListFiles(ctx, owner, repo, number, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, f := range files {
			result = append(result, f.GetFilename())
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

type PRIterator interface {
	Next() (*pullrequest.PullRequest, error)
}

// PRIter iterates over the open pull requests of a repository.
type PRIter struct {
	clt *Client

	ctx        context.Context
	owner      string
	repo       string
	baseBranch string

	unseen []*github.PullRequest

	nextPage int
	finished bool
}

// Next returns the next pullRequest.
// When the last result was returned a nil PullRequest is returned.
// The Mergeable and MergeableState fields are not populated by GitHub for
// listed pull requests.
func (it *PRIter) Next() (*pullrequest.PullRequest, error) {
	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return toPullRequest(it.owner, it.repo, result), nil
	}

	if it.finished {
		return nil, nil
	}

	prs, resp, err := it.clt.restClt.PullRequests.List(it.ctx, it.owner, it.repo, &github.PullRequestListOptions{
		State: "open",
		Base:  it.baseBranch,
		ListOptions: github.ListOptions{
			Page:    it.nextPage,
			PerPage: 100,
		},
	})
	if err != nil {
		return nil, it.clt.wrapRetryableErrors(err)
	}

	if resp.NextPage == 0 || len(prs) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	it.unseen = prs

	return it.Next()
}

// ListOpenPullRequests returns an iterator over all open pull requests with
// the base branch. If baseBranch is empty, pull requests of all branches are
// returned.
func (clt *Client) ListOpenPullRequests(ctx context.Context, owner, repo, baseBranch string) PRIterator { // interface is returned to make the method mockable
	return &PRIter{
		clt:        clt,
		ctx:        ctx,
		owner:      owner,
		repo:       repo,
		baseBranch: baseBranch,
		nextPage:   1,
	}
}
