// Package fake provides an in-memory GitHub API for tests.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/simplesurance/mergeguard/internal/githubclt"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Comment is a comment that was created via CreateIssueComment.
type Comment struct {
	Ref  pullrequest.Ref
	Body string
}

// Merge records a MergePullRequest call.
type Merge struct {
	Ref     pullrequest.Ref
	Method  string
	HeadSHA string
}

// GitHub is an in-memory implementation of the githubclt.Client methods.
// It is safe for concurrent use.
type GitHub struct {
	mu sync.Mutex

	prs        map[pullrequest.Ref]*pullrequest.PullRequest
	labels     map[pullrequest.Ref][]string
	repoLabels map[string]string
	checkRuns  map[string][]*githubclt.CheckRun
	branches   map[string]struct{}
	files      map[string][]byte
	changed    map[pullrequest.Ref][]string
	required   map[string][]string
	commits    map[string][]int

	nextCheckRunID int64

	comments  []Comment
	reactions map[int64][]string
	merges    []Merge
	assignees map[pullrequest.Ref][]string
	reviewers map[pullrequest.Ref][]string

	// hiddenListCalls is the number of ListLabels calls for which a
	// newly added label stays invisible.
	hiddenListCalls int
	hidden          map[string]int

	errs map[string]error
}

func New() *GitHub {
	return &GitHub{
		prs:            map[pullrequest.Ref]*pullrequest.PullRequest{},
		labels:         map[pullrequest.Ref][]string{},
		repoLabels:     map[string]string{},
		checkRuns:      map[string][]*githubclt.CheckRun{},
		branches:       map[string]struct{}{},
		files:          map[string][]byte{},
		changed:        map[pullrequest.Ref][]string{},
		required:       map[string][]string{},
		commits:        map[string][]int{},
		reactions:      map[int64][]string{},
		assignees:      map[pullrequest.Ref][]string{},
		reviewers:      map[pullrequest.Ref][]string{},
		hidden:         map[string]int{},
		errs:           map[string]error{},
		nextCheckRunID: 1,
	}
}

func repoKey(owner, repo string) string {
	return owner + "/" + repo
}

func refKey(owner, repo, s string) string {
	return owner + "/" + repo + "@" + s
}

// FailWith makes all following calls of the method with the given name
// return err. A nil err removes the failure.
func (g *GitHub) FailWith(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		delete(g.errs, method)
		return
	}

	g.errs[method] = err
}

func (g *GitHub) err(method string) error {
	return g.errs[method]
}

// DelayLabelVisibility makes added labels show up in ListLabels only after
// n calls.
func (g *GitHub) DelayLabelVisibility(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.hiddenListCalls = n
}

// AddPullRequest stores a copy of pr. Its head commit is associated with it.
func (g *GitHub) AddPullRequest(pr *pullrequest.PullRequest, labels ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cpy := *pr
	if cpy.State == "" {
		cpy.State = pullrequest.StateOpen
	}
	g.prs[pr.Ref] = &cpy
	g.labels[pr.Ref] = append([]string(nil), labels...)

	k := refKey(pr.Owner, pr.Name, pr.HeadSHA)
	g.commits[k] = append(g.commits[k], pr.Number)
	g.branches[refKey(pr.Owner, pr.Name, pr.BaseBranch)] = struct{}{}
}

// UpdatePullRequest applies fn to the stored pull request.
func (g *GitHub) UpdatePullRequest(ref pullrequest.Ref, fn func(*pullrequest.PullRequest)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fn(g.prs[ref])
}

func (g *GitHub) AddBranch(owner, repo, branch string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.branches[refKey(owner, repo, branch)] = struct{}{}
}

func (g *GitHub) SetFile(owner, repo, path string, content []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.files[refKey(owner, repo, path)] = content
}

func (g *GitHub) SetChangedFiles(ref pullrequest.Ref, files ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.changed[ref] = files
}

func (g *GitHub) SetRequiredStatusCheckContexts(owner, repo, branch string, contexts ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.required[refKey(owner, repo, branch)] = contexts
}

// Labels returns the labels of a pull request, including hidden ones, sorted.
func (g *GitHub) Labels(ref pullrequest.Ref) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := append([]string(nil), g.labels[ref]...)
	sort.Strings(result)

	return result
}

// RepositoryLabelColor returns the color of a repository label and if it
// exists.
func (g *GitHub) RepositoryLabelColor(owner, repo, name string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, exists := g.repoLabels[refKey(owner, repo, name)]
	return c, exists
}

// CheckRuns returns all check runs of a commit in creation order.
func (g *GitHub) CheckRuns(owner, repo, sha string) []githubclt.CheckRun {
	g.mu.Lock()
	defer g.mu.Unlock()

	var result []githubclt.CheckRun
	for _, r := range g.checkRuns[refKey(owner, repo, sha)] {
		result = append(result, *r)
	}

	return result
}

func (g *GitHub) Comments() []Comment {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]Comment(nil), g.comments...)
}

func (g *GitHub) Merges() []Merge {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]Merge(nil), g.merges...)
}

func (g *GitHub) Reactions(commentID int64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.reactions[commentID]...)
}

func (g *GitHub) Assignees(ref pullrequest.Ref) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.assignees[ref]...)
}

func (g *GitHub) Reviewers(ref pullrequest.Ref) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.reviewers[ref]...)
}

func (g *GitHub) CreateIssueComment(_ context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("CreateIssueComment"); err != nil {
		return err
	}

	g.comments = append(g.comments, Comment{
		Ref:  pullrequest.NewRef(owner, repo, issueOrPRNr),
		Body: comment,
	})

	return nil
}

func (g *GitHub) ListIssueCommentBodies(_ context.Context, owner, repo string, issueOrPRNr int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("ListIssueCommentBodies"); err != nil {
		return nil, err
	}

	ref := pullrequest.NewRef(owner, repo, issueOrPRNr)

	var result []string
	for _, c := range g.comments {
		if c.Ref == ref {
			result = append(result, c.Body)
		}
	}

	return result, nil
}

func (g *GitHub) CreateCommentReaction(_ context.Context, _, _ string, commentID int64, reaction string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("CreateCommentReaction"); err != nil {
		return err
	}

	g.reactions[commentID] = append(g.reactions[commentID], reaction)

	return nil
}

func (g *GitHub) BranchExists(_ context.Context, owner, repo, branch string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("BranchExists"); err != nil {
		return false, err
	}

	_, exists := g.branches[refKey(owner, repo, branch)]
	return exists, nil
}

func (g *GitHub) FileContent(_ context.Context, owner, repo, path, _ string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("FileContent"); err != nil {
		return nil, err
	}

	content, exists := g.files[refKey(owner, repo, path)]
	if !exists {
		return nil, mgerr.NewResourceNotFoundError("file", path, nil)
	}

	return content, nil
}

func (g *GitHub) ListLabels(_ context.Context, owner, repo string, nr int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("ListLabels"); err != nil {
		return nil, err
	}

	ref := pullrequest.NewRef(owner, repo, nr)

	var result []string
	for _, l := range g.labels[ref] {
		k := ref.String() + "/" + l
		if g.hidden[k] > 0 {
			g.hidden[k]--
			continue
		}

		result = append(result, l)
	}

	return result, nil
}

func (g *GitHub) AddLabel(_ context.Context, owner, repo string, nr int, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("AddLabel"); err != nil {
		return err
	}

	if label == "" {
		return errors.New("provided label is empty")
	}

	ref := pullrequest.NewRef(owner, repo, nr)
	for _, l := range g.labels[ref] {
		if l == label {
			return nil
		}
	}

	g.labels[ref] = append(g.labels[ref], label)
	if g.hiddenListCalls > 0 {
		g.hidden[ref.String()+"/"+label] = g.hiddenListCalls
	}

	return nil
}

func (g *GitHub) RemoveLabel(_ context.Context, owner, repo string, nr int, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("RemoveLabel"); err != nil {
		return err
	}

	ref := pullrequest.NewRef(owner, repo, nr)
	current := g.labels[ref]
	for i, l := range current {
		if l == label {
			g.labels[ref] = append(current[:i:i], current[i+1:]...)
			return nil
		}
	}

	return nil
}

func (g *GitHub) UpsertRepositoryLabel(_ context.Context, owner, repo, name, color string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("UpsertRepositoryLabel"); err != nil {
		return err
	}

	g.repoLabels[refKey(owner, repo, name)] = color

	return nil
}

func (g *GitHub) CreateCheckRun(_ context.Context, owner, repo, headSHA, name string, state *githubclt.CheckRunState) (*githubclt.CheckRun, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("CreateCheckRun"); err != nil {
		return nil, err
	}

	run := githubclt.CheckRun{
		ID:         g.nextCheckRunID,
		Name:       name,
		HeadSHA:    headSHA,
		Status:     state.Status,
		Conclusion: state.Conclusion,
	}
	if run.Status == "" {
		run.Status = "queued"
	}
	if run.Conclusion != "" {
		run.Status = "completed"
	}

	g.nextCheckRunID++

	k := refKey(owner, repo, headSHA)
	g.checkRuns[k] = append(g.checkRuns[k], &run)

	cpy := run
	return &cpy, nil
}

func (g *GitHub) UpdateCheckRun(_ context.Context, owner, repo string, checkRunID int64, name string, state *githubclt.CheckRunState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("UpdateCheckRun"); err != nil {
		return err
	}

	for k, runs := range g.checkRuns {
		if !hasRepoPrefix(k, owner, repo) {
			continue
		}

		for _, r := range runs {
			if r.ID != checkRunID {
				continue
			}

			r.Name = name
			if state.Status != "" {
				r.Status = state.Status
			}
			r.Conclusion = state.Conclusion
			if state.Conclusion != "" {
				r.Status = "completed"
			}

			return nil
		}
	}

	return mgerr.NewResourceNotFoundError("check run", strconv.FormatInt(checkRunID, 10), nil)
}

func hasRepoPrefix(key, owner, repo string) bool {
	p := repoKey(owner, repo) + "@"
	return len(key) >= len(p) && key[:len(p)] == p
}

// ListCheckRuns returns the latest run per name, like the GitHub API with
// filter=latest.
func (g *GitHub) ListCheckRuns(_ context.Context, owner, repo, ref string) ([]*githubclt.CheckRun, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("ListCheckRuns"); err != nil {
		return nil, err
	}

	latest := map[string]*githubclt.CheckRun{}
	var order []string

	for _, r := range g.checkRuns[refKey(owner, repo, ref)] {
		if _, exists := latest[r.Name]; !exists {
			order = append(order, r.Name)
		}

		cpy := *r
		latest[r.Name] = &cpy
	}

	result := make([]*githubclt.CheckRun, 0, len(order))
	for _, name := range order {
		result = append(result, latest[name])
	}

	return result, nil
}

func (g *GitHub) PullRequest(_ context.Context, owner, repo string, number int) (*pullrequest.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("PullRequest"); err != nil {
		return nil, err
	}

	pr, exists := g.prs[pullrequest.NewRef(owner, repo, number)]
	if !exists {
		return nil, mgerr.NewResourceNotFoundError("pull request", strconv.Itoa(number), nil)
	}

	cpy := *pr
	return &cpy, nil
}

func (g *GitHub) PullRequestsForCommit(_ context.Context, owner, repo, sha string) ([]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("PullRequestsForCommit"); err != nil {
		return nil, err
	}

	nrs := append([]int(nil), g.commits[refKey(owner, repo, sha)]...)
	sort.Sort(sort.Reverse(sort.IntSlice(nrs)))

	return nrs, nil
}

func (g *GitHub) MergePullRequest(_ context.Context, owner, repo string, number int, method, headSHA string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("MergePullRequest"); err != nil {
		return err
	}

	ref := pullrequest.NewRef(owner, repo, number)
	pr, exists := g.prs[ref]
	if !exists {
		return mgerr.NewResourceNotFoundError("pull request", strconv.Itoa(number), nil)
	}

	if pr.Merged {
		return fmt.Errorf("pull request can not be merged: %w", githubclt.ErrPullRequestIsClosed)
	}

	if pr.HeadSHA != headSHA {
		return fmt.Errorf("pull request can not be merged: head sha is %s, expected %s", pr.HeadSHA, headSHA)
	}

	pr.Merged = true
	pr.State = pullrequest.StateClosed
	g.merges = append(g.merges, Merge{Ref: ref, Method: method, HeadSHA: headSHA})

	return nil
}

func (g *GitHub) EditPullRequestTitle(_ context.Context, owner, repo string, number int, title string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("EditPullRequestTitle"); err != nil {
		return err
	}

	pr, exists := g.prs[pullrequest.NewRef(owner, repo, number)]
	if !exists {
		return mgerr.NewResourceNotFoundError("pull request", strconv.Itoa(number), nil)
	}

	pr.Title = title

	return nil
}

func (g *GitHub) AddAssignees(_ context.Context, owner, repo string, number int, users []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("AddAssignees"); err != nil {
		return err
	}

	ref := pullrequest.NewRef(owner, repo, number)
	g.assignees[ref] = append(g.assignees[ref], users...)

	return nil
}

func (g *GitHub) RequestReviewers(_ context.Context, owner, repo string, number int, users []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("RequestReviewers"); err != nil {
		return err
	}

	ref := pullrequest.NewRef(owner, repo, number)
	g.reviewers[ref] = append(g.reviewers[ref], users...)

	return nil
}

func (g *GitHub) ListChangedFiles(_ context.Context, owner, repo string, number int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("ListChangedFiles"); err != nil {
		return nil, err
	}

	return append([]string(nil), g.changed[pullrequest.NewRef(owner, repo, number)]...), nil
}

func (g *GitHub) RequiredStatusCheckContexts(_ context.Context, owner, repo, branch string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.err("RequiredStatusCheckContexts"); err != nil {
		return nil, err
	}

	return append([]string(nil), g.required[refKey(owner, repo, branch)]...), nil
}

type prIter struct {
	prs []*pullrequest.PullRequest
	err error
}

func (it *prIter) Next() (*pullrequest.PullRequest, error) {
	if it.err != nil {
		return nil, it.err
	}

	if len(it.prs) == 0 {
		return nil, nil
	}

	result := it.prs[0]
	it.prs = it.prs[1:]

	return result, nil
}

func (g *GitHub) ListOpenPullRequests(_ context.Context, owner, repo, baseBranch string) githubclt.PRIterator {
	g.mu.Lock()
	defer g.mu.Unlock()

	it := prIter{err: g.err("ListOpenPullRequests")}

	for _, pr := range g.prs {
		if pr.Owner != owner || pr.Name != repo || pr.State != pullrequest.StateOpen {
			continue
		}

		if baseBranch != "" && pr.BaseBranch != baseBranch {
			continue
		}

		cpy := *pr
		// listed pull requests do not contain the mergeable fields
		cpy.Mergeable = nil
		cpy.MergeableState = ""
		it.prs = append(it.prs, &cpy)
	}

	sort.Slice(it.prs, func(i, j int) bool { return it.prs[i].Number < it.prs[j].Number })

	return &it
}
