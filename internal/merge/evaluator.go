// Package merge decides if pull requests can be merged, reports the result
// via the can-be-merged label and check run and merges pull requests of
// trusted authors automatically.
package merge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/metrics"
	"github.com/simplesurance/mergeguard/internal/policy"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . GithubClient,LabelStore,CheckReporter,PolicySource

const loggerName = "merge_evaluator"

const (
	evaluationFailedText = "Failed to check if can be merged, check logs"
	checkRunTitle        = "Check if can be merged"
)

type GithubClient interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (*pullrequest.PullRequest, error)
	RequiredStatusCheckContexts(ctx context.Context, owner, repo, branch string) ([]string, error)
	MergePullRequest(ctx context.Context, owner, repo string, number int, method, headSHA string) error
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
}

type LabelStore interface {
	List(ctx context.Context, ref pullrequest.Ref) (*labels.Set, error)
	Add(ctx context.Context, ref pullrequest.Ref, name string) (bool, error)
	Remove(ctx context.Context, ref pullrequest.Ref, name string) (bool, error)
}

type CheckReporter interface {
	Upsert(ctx context.Context, repo pullrequest.Repository, headSHA string, u checkrun.Update) error
	Latest(ctx context.Context, repo pullrequest.Repository, headSHA string) (map[string]*checkrun.Run, error)
}

type PolicySource interface {
	Policy(ctx context.Context, repo pullrequest.Repository, gitRef string) (*policy.Policy, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// Evaluator evaluates the merge eligibility of pull requests.
// Evaluations of the same pull request are serialized.
type Evaluator struct {
	clt      GithubClient
	labels   LabelStore
	reporter CheckReporter
	policies PolicySource
	retryer  Retryer
	logger   *zap.Logger

	locksMu sync.Mutex
	locks   map[pullrequest.Ref]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func NewEvaluator(clt GithubClient, labelStore LabelStore, reporter CheckReporter, policies PolicySource, retryer Retryer) *Evaluator {
	return &Evaluator{
		clt:      clt,
		labels:   labelStore,
		reporter: reporter,
		policies: policies,
		retryer:  retryer,
		logger:   zap.L().Named(loggerName),
		locks:    map[pullrequest.Ref]*refLock{},
	}
}

func (e *Evaluator) lock(ref pullrequest.Ref) func() {
	e.locksMu.Lock()
	l, exists := e.locks[ref]
	if !exists {
		l = &refLock{}
		e.locks[ref] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, ref)
		}
		e.locksMu.Unlock()
	}
}

// Evaluate decides if the pull request can be merged and applies the
// result. Mergeable pull requests of auto-merge users are merged.
func (e *Evaluator) Evaluate(ctx context.Context, ref pullrequest.Ref) (*Decision, error) {
	unlock := e.lock(ref)
	defer unlock()

	metrics.RunningEvaluationsInc()
	defer metrics.RunningEvaluationsDec()

	logger := e.logger.With(ref.LogFields()...)

	pr, err := e.pullRequest(ctx, ref)
	if err != nil {
		return nil, err
	}

	if pr.Merged {
		logger.Debug("pull request is already merged, skipping evaluation",
			logfields.Event("merge_evaluation_skipped_merged"),
		)
		return &Decision{AlreadyMerged: true}, nil
	}

	pol, snapshot, err := e.snapshot(ctx, pr)
	if err != nil {
		logger.Error("collecting pull request state failed",
			logfields.Event("merge_evaluation_failed"),
			zap.Error(err),
		)

		return nil, multierr.Append(
			fmt.Errorf("collecting state of %s failed: %w", ref, err),
			e.reportFailure(ctx, pr, evaluationFailedText),
		)
	}

	d := Decide(snapshot, pol)
	logger = logger.With(d.LogFields()...)

	metrics.DecisionsInc(pr.Repository.String(), d.Mergeable)

	if !d.Mergeable {
		logger.Info("pull request can not be merged",
			logfields.Event("merge_evaluation_blocked"),
		)

		return d, e.reportFailure(ctx, pr, strings.Join(d.Reasons, "\n"))
	}

	logger.Info("pull request can be merged",
		logfields.Event("merge_evaluation_mergeable"),
	)

	if err := e.reportSuccess(ctx, pr); err != nil {
		return d, err
	}

	if !pol.IsAutoMergeUser(pr.Author) {
		return d, nil
	}

	if err := e.autoMerge(ctx, pr, pol); err != nil {
		return d, err
	}

	d.AutoMerged = true

	return d, nil
}

func (e *Evaluator) pullRequest(ctx context.Context, ref pullrequest.Ref) (*pullrequest.PullRequest, error) {
	var pr *pullrequest.PullRequest

	err := e.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		pr, err = e.clt.PullRequest(ctx, ref.Owner, ref.Name, ref.Number)
		return err
	}, append(ref.LogFields(), logfields.Operation("github_get_pull_request")))
	if err != nil {
		return nil, fmt.Errorf("retrieving pull request %s failed: %w", ref, err)
	}

	return pr, nil
}

func (e *Evaluator) snapshot(ctx context.Context, pr *pullrequest.PullRequest) (*policy.Policy, *Snapshot, error) {
	pol, err := e.policies.Policy(ctx, pr.Repository, pr.BaseBranch)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving policy failed: %w", err)
	}

	lbls, err := e.labels.List(ctx, pr.Ref)
	if err != nil {
		return nil, nil, err
	}

	var contexts []string
	err = e.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		contexts, err = e.clt.RequiredStatusCheckContexts(ctx, pr.Owner, pr.Name, pr.BaseBranch)
		return err
	}, append(pr.LogFields(), logfields.Operation("github_required_status_check_contexts")))
	if err != nil {
		return nil, nil, fmt.Errorf("retrieving required status checks failed: %w", err)
	}

	runs, err := e.reporter.Latest(ctx, pr.Repository, pr.HeadSHA)
	if err != nil {
		return nil, nil, err
	}

	return pol, &Snapshot{
		PullRequest:    pr,
		Labels:         lbls,
		RequiredChecks: pol.RequiredChecks(contexts),
		CheckRuns:      runs,
	}, nil
}

func (e *Evaluator) reportFailure(ctx context.Context, pr *pullrequest.PullRequest, text string) error {
	_, err := e.labels.Remove(ctx, pr.Ref, labels.CanBeMerged)

	return multierr.Append(err, e.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Failure(checkrun.CanBeMerged, &checkrun.Output{
		Title: checkRunTitle,
		Text:  text,
	})))
}

func (e *Evaluator) reportSuccess(ctx context.Context, pr *pullrequest.PullRequest) error {
	if _, err := e.labels.Add(ctx, pr.Ref, labels.CanBeMerged); err != nil {
		return err
	}

	return e.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Success(checkrun.CanBeMerged, &checkrun.Output{
		Title: checkRunTitle,
	}))
}

func (e *Evaluator) autoMerge(ctx context.Context, pr *pullrequest.PullRequest, pol *policy.Policy) error {
	logF := append(pr.LogFields(), logfields.User(pr.Author))

	comment := fmt.Sprintf(
		"Owner of the pull request %s is part of:\n`%s`\nPull request is merged automatically.",
		pr.Author, strings.Join(pol.AutoMergeUsers, ", "),
	)

	err := e.retryer.Run(ctx, func(ctx context.Context) error {
		return e.clt.CreateIssueComment(ctx, pr.Owner, pr.Name, pr.Number, comment)
	}, append(logF, logfields.Operation("github_create_issue_comment")))
	if err != nil {
		e.logger.Warn("creating auto-merge comment failed",
			append(logF, logfields.Event("auto_merge_comment_failed"), zap.Error(err))...,
		)
	}

	err = e.retryer.Run(ctx, func(ctx context.Context) error {
		return e.clt.MergePullRequest(ctx, pr.Owner, pr.Name, pr.Number, pol.MergeMethod, pr.HeadSHA)
	}, append(logF, logfields.Operation("github_merge_pull_request")))
	if err != nil {
		return fmt.Errorf("merging %s failed: %w", pr.Ref, err)
	}

	metrics.AutoMergesInc(pr.Repository.String())

	e.logger.Info("pull request was merged automatically",
		append(logF, logfields.Event("pull_request_auto_merged"), zap.String("merge_method", pol.MergeMethod))...,
	)

	return nil
}
