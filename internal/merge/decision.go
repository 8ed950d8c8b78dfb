package merge

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/policy"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Snapshot is the state of a pull request that the merge eligibility is
// decided on.
type Snapshot struct {
	PullRequest *pullrequest.PullRequest
	Labels      *labels.Set
	// RequiredChecks are the names of the check runs that must succeed,
	// sorted.
	RequiredChecks []string
	// CheckRuns are the latest runs per name of the head commit.
	CheckRuns map[string]*checkrun.Run
}

type Decision struct {
	Mergeable bool
	// Reasons why the pull request can not be merged, in evaluation
	// order.
	Reasons       []string
	AlreadyMerged bool
	// AutoMerged is true when the pull request was merged by the
	// evaluation.
	AutoMerged bool
}

func (d *Decision) String() string {
	switch {
	case d.AlreadyMerged:
		return "already merged"
	case d.Mergeable:
		return "mergeable"
	default:
		return "blocked: " + strings.Join(d.Reasons, "; ")
	}
}

func (d *Decision) LogFields() []zap.Field {
	return []zap.Field{
		zap.Bool("mergeable", d.Mergeable),
		zap.Bool("already_merged", d.AlreadyMerged),
		zap.Strings("blocking_reasons", d.Reasons),
	}
}

// Decide computes if the pull request can be merged.
func Decide(s *Snapshot, pol *policy.Policy) *Decision {
	pr := s.PullRequest

	if pr.Merged {
		return &Decision{AlreadyMerged: true}
	}

	var reasons []string

	inProgress := map[string]struct{}{}
	for _, name := range s.RequiredChecks {
		if name == checkrun.CanBeMerged {
			continue
		}

		if run, exists := s.CheckRuns[name]; exists && run.IsInProgress() {
			inProgress[name] = struct{}{}
			reasons = append(reasons, "required check in progress: "+name)
		}
	}

	if s.Labels.Has(labels.Hold) {
		reasons = append(reasons, "Hold label exists.")
	}
	if s.Labels.Has(labels.WIP) {
		reasons = append(reasons, "WIP label exists.")
	}

	if !pr.IsMergeable() {
		reasons = append(reasons, "PR is not mergeable: "+pr.MergeableState)
	}

	var failed []string
	for _, name := range s.RequiredChecks {
		if name == checkrun.CanBeMerged {
			continue
		}

		if _, isInProgress := inProgress[name]; isInProgress {
			continue
		}

		run, exists := s.CheckRuns[name]
		if !exists || run.IsSuccess() {
			continue
		}

		failed = append(failed, name)
	}
	if len(failed) > 0 {
		reasons = append(reasons, "Some check runs failed: "+strings.Join(failed, ", "))
	}

	var changesRequested []string
	approved := false
	for _, l := range s.Labels.OfKind(labels.KindChangesRequestedBy, labels.KindApprovedBy) {
		if !pol.IsApprover(l.User) {
			continue
		}

		switch l.Kind {
		case labels.KindChangesRequestedBy:
			changesRequested = append(changesRequested, l.User)
		case labels.KindApprovedBy:
			if l.User != pr.Author {
				approved = true
			}
		}
	}

	if len(changesRequested) > 0 {
		reasons = append(reasons, "PR has changed requests from approvers: "+strings.Join(changesRequested, ", "))
	}

	if missing := s.Labels.Missing(pol.MandatoryLabels); len(missing) > 0 {
		reasons = append(reasons, "Missing required labels: "+strings.Join(missing, ", "))
	}

	if !approved {
		reasons = append(reasons, fmt.Sprintf(
			"Missing lgtm/approved from approvers: %s",
			strings.Join(pol.ApproversExcept(pr.Author), ", "),
		))
	}

	return &Decision{
		Mergeable: len(reasons) == 0,
		Reasons:   reasons,
	}
}
