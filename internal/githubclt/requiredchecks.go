package githubclt

import (
	"context"

	"github.com/shurcooL/githubv4"
)

// RequiredStatusCheckContexts returns the names of the status checks and
// check runs that the branch protection rule of branch requires.
// If the branch is not protected, an empty slice is returned.
func (clt *Client) RequiredStatusCheckContexts(ctx context.Context, owner, repo, branch string) ([]string, error) {
	var q struct {
		Repository struct {
			Ref struct {
				BranchProtectionRule struct {
					// RequiredStatusCheckContexts
					// contains required commit
					// statuses and checkRuns.
					RequiredStatusCheckContexts []string
				}
			} `graphql:"ref(qualifiedName: $ref)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
		"ref":   githubv4.String("refs/heads/" + branch),
	}

	if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	return q.Repository.Ref.BranchProtectionRule.RequiredStatusCheckContexts, nil
}
