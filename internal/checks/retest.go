package checks

import (
	"context"
	"fmt"

	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Retest re-runs the named checks. Names of checks that are not configured
// are answered with a comment.
func (o *Orchestrator) Retest(ctx context.Context, pr *pullrequest.PullRequest, names []string) error {
	if len(names) == 0 {
		return o.comment(ctx, pr, "retest requires an argument")
	}

	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	var toRun []string
	for _, name := range names {
		if commandFor(c, name) == nil || !isPullRequestCheck(name) {
			if err := o.comment(ctx, pr, fmt.Sprintf("No %s configured for this repository", name)); err != nil {
				return err
			}

			continue
		}

		toRun = append(toRun, name)
	}

	if len(toRun) == 0 {
		return nil
	}

	return o.runConcurrently(ctx, pr, toRun)
}

func isPullRequestCheck(name string) bool {
	for _, n := range PullRequestChecks {
		if n == name {
			return true
		}
	}

	return false
}
