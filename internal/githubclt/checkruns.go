package githubclt

import (
	"context"

	"github.com/google/go-github/v43/github"
)

// CheckRun is a GitHub check run attached to a commit.
type CheckRun struct {
	ID         int64
	Name       string
	HeadSHA    string
	Status     string
	Conclusion string
}

type CheckRunOutput struct {
	Title   string
	Summary string
	Text    string
}

// CheckRunState is the status and conclusion that is set for a check run.
// Conclusion is only set when the run is completed.
type CheckRunState struct {
	Status     string
	Conclusion string
	Output     *CheckRunOutput
}

func (o *CheckRunOutput) toGithub() *github.CheckRunOutput {
	if o == nil {
		return nil
	}

	result := github.CheckRunOutput{
		Title:   github.String(o.Title),
		Summary: github.String(o.Summary),
	}

	if o.Text != "" {
		result.Text = github.String(o.Text)
	}

	return &result
}

func toCheckRun(r *github.CheckRun) *CheckRun {
	return &CheckRun{
		ID:         r.GetID(),
		Name:       r.GetName(),
		HeadSHA:    r.GetHeadSHA(),
		Status:     r.GetStatus(),
		Conclusion: r.GetConclusion(),
	}
}

func optionalStr(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// CreateCheckRun creates a new check run for a commit.
func (clt *Client) CreateCheckRun(ctx context.Context, owner, repo, headSHA, name string, state *CheckRunState) (*CheckRun, error) {
	run, _, err := clt.restClt.Checks.CreateCheckRun(ctx, owner, repo, github.CreateCheckRunOptions{
		Name:       name,
		HeadSHA:    headSHA,
		Status:     optionalStr(state.Status),
		Conclusion: optionalStr(state.Conclusion),
		Output:     state.Output.toGithub(),
	})
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	return toCheckRun(run), nil
}

// UpdateCheckRun changes the state of an existing check run.
func (clt *Client) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, name string, state *CheckRunState) error {
	_, _, err := clt.restClt.Checks.UpdateCheckRun(ctx, owner, repo, checkRunID, github.UpdateCheckRunOptions{
		Name:       name,
		Status:     optionalStr(state.Status),
		Conclusion: optionalStr(state.Conclusion),
		Output:     state.Output.toGithub(),
	})

	return clt.wrapRetryableErrors(err)
}

// ListCheckRuns returns the latest check runs of a commit.
func (clt *Client) ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]*CheckRun, error) {
	var result []*CheckRun

	opts := github.ListCheckRunsOptions{
		Filter:      github.String("latest"),
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		runs, resp, err := clt.restClt.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, r := range runs.CheckRuns {
			result = append(result, toCheckRun(r))
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}
