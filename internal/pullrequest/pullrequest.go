// Package pullrequest provides the identity and snapshot types of GitHub
// pull requests.
package pullrequest

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
)

// Repository identifies a GitHub repository.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

func (r Repository) LogFields() []zap.Field {
	return []zap.Field{
		logfields.RepositoryOwner(r.Owner),
		logfields.Repository(r.Name),
	}
}

// Ref identifies a pull request. Pull request numbers are never reused
// within a repository.
type Ref struct {
	Repository
	Number int
}

func NewRef(owner, repo string, number int) Ref {
	return Ref{
		Repository: Repository{Owner: owner, Name: repo},
		Number:     number,
	}
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Name, r.Number)
}

// IsZero returns true if r does not reference a pull request.
func (r Ref) IsZero() bool {
	return r.Number == 0
}

func (r Ref) LogFields() []zap.Field {
	return append(r.Repository.LogFields(), logfields.PullRequest(r.Number))
}

const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Mergeable states reported by GitHub.
const (
	MergeableStateBehind  = "behind"
	MergeableStateDirty   = "dirty"
	MergeableStateUnknown = "unknown"
)

// PullRequest is a snapshot of a pull request as returned by GitHub.
type PullRequest struct {
	Ref

	Title      string
	Author     string
	State      string
	HeadSHA    string
	HeadBranch string
	BaseBranch string
	CloneURL   string
	HTMLURL    string
	// MergeCommitSHA is set when the pull request was merged.
	MergeCommitSHA string

	Merged bool
	// Mergeable is nil when GitHub did not compute the value yet.
	Mergeable      *bool
	MergeableState string

	Additions int
	Deletions int
}

// Size returns the number of changed lines.
func (p *PullRequest) Size() int {
	return p.Additions + p.Deletions
}

// IsMergeable returns false only if GitHub reported that the pull request
// can not be merged.
func (p *PullRequest) IsMergeable() bool {
	return p.Mergeable == nil || *p.Mergeable
}

func (p *PullRequest) LogFields() []zap.Field {
	return append(
		p.Ref.LogFields(),
		logfields.Commit(p.HeadSHA),
		logfields.Branch(p.HeadBranch),
		logfields.BaseBranch(p.BaseBranch),
	)
}
