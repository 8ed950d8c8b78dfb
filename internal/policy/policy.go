// Package policy provides the merge policy of repositories.
package policy

import (
	"path"
	"slices"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Policy defines who can approve pull requests of a repository, which
// labels and checks are required for merging and which checks are run.
type Policy struct {
	Repository pullrequest.Repository

	Approvers []string
	Reviewers []string
	// FileReviewers maps file paths to reviewers that are requested when
	// the file is changed.
	FileReviewers map[string][]string
	// FolderReviewers maps directories to reviewers that are requested
	// when a file in them is changed.
	FolderReviewers map[string][]string

	// AutoMergeUsers are trusted users, their pull requests are
	// verified automatically and merged when they are mergeable.
	AutoMergeUsers  []string
	MandatoryLabels []string
	MergeMethod     string

	VerifiedJob         bool
	Tox                 bool
	PreCommit           bool
	PythonModuleInstall bool
	BuildContainer      bool
}

func (p *Policy) IsApprover(user string) bool {
	return slices.Contains(p.Approvers, user)
}

func (p *Policy) IsAutoMergeUser(user string) bool {
	return slices.Contains(p.AutoMergeUsers, user)
}

// ApproversExcept returns all approvers except user.
func (p *Policy) ApproversExcept(user string) []string {
	var result []string

	for _, a := range p.Approvers {
		if a != user {
			result = append(result, a)
		}
	}

	return result
}

// FeatureChecks returns the names of the check runs that are required
// because the corresponding check is configured.
func (p *Policy) FeatureChecks() []string {
	var result []string

	if p.Tox {
		result = append(result, checkrun.Tox)
	}
	if p.VerifiedJob {
		result = append(result, checkrun.Verified)
	}
	if p.BuildContainer {
		result = append(result, checkrun.BuildContainer)
	}
	if p.PythonModuleInstall {
		result = append(result, checkrun.PythonModuleInstall)
	}

	return result
}

// RequiredChecks returns the sorted union of the branch protection contexts
// and the feature checks. The can-be-merged check is never required.
func (p *Policy) RequiredChecks(branchProtectionContexts []string) []string {
	set := mapset.NewThreadUnsafeSet(branchProtectionContexts...)
	set.Append(p.FeatureChecks()...)
	set.Remove(checkrun.CanBeMerged)

	result := set.ToSlice()
	sort.Strings(result)

	return result
}

// ReviewersFor returns the reviewers that should be requested for a pull
// request of author that changes the given files. The author is never
// included.
func (p *Policy) ReviewersFor(author string, changedFiles []string) []string {
	set := mapset.NewThreadUnsafeSet(p.Reviewers...)

	for file, reviewers := range p.FileReviewers {
		if slices.Contains(changedFiles, file) {
			set.Append(reviewers...)
		}
	}

	for folder, reviewers := range p.FolderReviewers {
		folder = strings.Trim(folder, "/")

		for _, f := range changedFiles {
			dir := path.Dir(f)
			if dir == folder || strings.HasPrefix(dir, folder+"/") {
				set.Append(reviewers...)
				break
			}
		}
	}

	set.Remove(author)

	result := set.ToSlice()
	sort.Strings(result)

	return result
}
