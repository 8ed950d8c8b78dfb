// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	github_ratelimit "github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v43/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/mgerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

var ErrPullRequestIsClosed = errors.New("pull request is closed")

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

// newHTTPClient returns a client that waits when GitHub reports that a
// secondary rate limit was hit and authenticates with apiToken.
func newHTTPClient(apiToken string) *http.Client {
	rateLimitClt := github_ratelimit.NewClient(nil)

	if apiToken == "" {
		rateLimitClt.Timeout = DefaultHTTPClientTimeout
		return rateLimitClt
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, rateLimitClt)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return a mgerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
// When a resource does not exist a mgerr.ResourceNotFoundError is returned.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

// ListIssueCommentBodies returns the bodies of all comments of an issue or
// pull request, oldest first.
func (clt *Client) ListIssueCommentBodies(ctx context.Context, owner, repo string, issueOrPRNr int) ([]string, error) {
	var result []string

	opts := github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := clt.restClt.Issues.ListComments(ctx, owner, repo, issueOrPRNr, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, c := range comments {
			result = append(result, c.GetBody())
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// CreateCommentReaction adds a reaction (e.g. "+1") to an issue comment.
func (clt *Client) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, reaction string) error {
	_, _, err := clt.restClt.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, reaction)
	return clt.wrapRetryableErrors(err)
}

// BranchExists returns true if the branch exists in the repository.
func (clt *Client) BranchExists(ctx context.Context, owner, repo, branch string) (bool, error) {
	_, _, err := clt.restClt.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, clt.wrapRetryableErrors(err)
	}

	return true, nil
}

// FileContent returns the content of a file in the repository at ref.
// If ref is empty the default branch is used.
func (clt *Client) FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	file, _, _, err := clt.restClt.Repositories.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		if isNotFound(err) {
			return nil, mgerr.NewResourceNotFoundError("file", path, err)
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	if file == nil {
		return nil, mgerr.NewResourceNotFoundError("file", path, errors.New("path is a directory"))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, err
	}

	return []byte(content), nil
}

func isNotFound(err error) bool {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode == http.StatusNotFound
	}

	return false
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return mgerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		clt.logger.Info(
			"secondary rate limit exceeded",
			logfields.Event("github_api_secondary_rate_limit_exceeded"),
			zap.Durationp("retry_after", v.RetryAfter),
		)

		if v.RetryAfter != nil {
			return mgerr.NewRetryableError(err, time.Now().Add(*v.RetryAfter))
		}

		return mgerr.NewRetryableAnytimeError(err)

	case *github.ErrorResponse:
		if v.Response != nil && v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return mgerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return mgerr.NewRetryableAnytimeError(err)
	}

	return err
}
