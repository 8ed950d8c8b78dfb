// Package checks runs the configured checks of pull requests and reports
// their results as check runs.
package checks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/cmdrunner"
	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const loggerName = "checks"

// ErrRepositoryNotConfigured is returned when the repository of a pull
// request is not part of the configuration.
var ErrRepositoryNotConfigured = errors.New("repository is not configured")

// PullRequestChecks are the checks that run when a pull request is opened
// or new commits are pushed to it.
var PullRequestChecks = []string{
	checkrun.Tox,
	checkrun.PreCommit,
	checkrun.PythonModuleInstall,
	checkrun.BuildContainer,
}

type CheckReporter interface {
	Upsert(ctx context.Context, repo pullrequest.Repository, headSHA string, u checkrun.Update) error
	Latest(ctx context.Context, repo pullrequest.Repository, headSHA string) (map[string]*checkrun.Run, error)
	IsInProgress(ctx context.Context, repo pullrequest.Repository, headSHA, name string) (bool, error)
}

type CommandRunner interface {
	Run(ctx context.Context, cmd cmdrunner.Command) (*cmdrunner.Result, error)
}

type GithubClient interface {
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
	BranchExists(ctx context.Context, owner, repo, branch string) (bool, error)
}

type LabelStore interface {
	List(ctx context.Context, ref pullrequest.Ref) (*labels.Set, error)
	Add(ctx context.Context, ref pullrequest.Ref, name string) (bool, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

type Orchestrator struct {
	config   *cfg.Config
	reporter CheckReporter
	runner   CommandRunner
	clt      GithubClient
	labels   LabelStore
	retryer  Retryer
	redact   []string
	logger   *zap.Logger

	// inFlight contains the checks that are executed by this process,
	// keyed by runKey.
	inFlightMu sync.Mutex
	inFlight   map[runKey]struct{}
}

type runKey struct {
	repo    pullrequest.Repository
	headSHA string
	check   string
}

// claim marks the check as running, false is returned if it already is.
func (o *Orchestrator) claim(k runKey) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()

	if _, exists := o.inFlight[k]; exists {
		return false
	}

	o.inFlight[k] = struct{}{}
	return true
}

func (o *Orchestrator) release(k runKey) {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()

	delete(o.inFlight, k)
}

type Option func(*Orchestrator)

// WithRedact replaces the given values in command outputs.
func WithRedact(values ...string) Option {
	return func(o *Orchestrator) {
		for _, v := range values {
			if v != "" {
				o.redact = append(o.redact, v)
			}
		}
	}
}

func New(
	config *cfg.Config,
	reporter CheckReporter,
	runner CommandRunner,
	clt GithubClient,
	labelStore LabelStore,
	retryer Retryer,
	opts ...Option,
) *Orchestrator {
	o := Orchestrator{
		config:   config,
		reporter: reporter,
		runner:   runner,
		clt:      clt,
		labels:   labelStore,
		retryer:  retryer,
		logger:   zap.L().Named(loggerName),
		inFlight: map[runKey]struct{}{},
	}

	for _, opt := range opts {
		opt(&o)
	}

	return &o
}

func (o *Orchestrator) repoConfig(repo pullrequest.Repository) (*cfg.Repository, error) {
	c := o.config.Repository(repo.Owner, repo.Name)
	if c == nil {
		return nil, fmt.Errorf("%s: %w", repo, ErrRepositoryNotConfigured)
	}

	return c, nil
}

// commandFor returns the command of the check with the given name, nil is
// returned if it is not configured.
func commandFor(repo *cfg.Repository, name string) *cfg.Command {
	switch name {
	case checkrun.Tox:
		return repo.Tox
	case checkrun.PreCommit:
		return repo.PreCommit
	case checkrun.PythonModuleInstall:
		return repo.PythonModuleInstall
	case checkrun.BuildContainer:
		if repo.Container == nil {
			return nil
		}
		return &repo.Container.Command
	case checkrun.CherryPick:
		return repo.CherryPick
	default:
		return nil
	}
}

// Configured returns the names of the PullRequestChecks that are configured
// for the repository.
func (o *Orchestrator) Configured(repo pullrequest.Repository) ([]string, error) {
	c, err := o.repoConfig(repo)
	if err != nil {
		return nil, err
	}

	var result []string
	for _, name := range PullRequestChecks {
		if commandFor(c, name) != nil {
			result = append(result, name)
		}
	}

	return result, nil
}

// Queue reports the configured pull request checks and the can-be-merged
// check as queued. Checks that are in progress are not changed.
func (o *Orchestrator) Queue(ctx context.Context, pr *pullrequest.PullRequest) error {
	names, err := o.Configured(pr.Repository)
	if err != nil {
		return err
	}

	latest, err := o.reporter.Latest(ctx, pr.Repository, pr.HeadSHA)
	if err != nil {
		return err
	}

	var errs error
	for _, name := range append(names, checkrun.CanBeMerged) {
		if run, exists := latest[name]; exists && run.IsInProgress() {
			continue
		}

		errs = multierr.Append(errs, o.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.Queued(name)))
	}

	return errs
}

// RunAll runs all configured pull request checks concurrently.
func (o *Orchestrator) RunAll(ctx context.Context, pr *pullrequest.PullRequest) error {
	names, err := o.Configured(pr.Repository)
	if err != nil {
		return err
	}

	return o.runConcurrently(ctx, pr, names)
}

func (o *Orchestrator) runConcurrently(ctx context.Context, pr *pullrequest.PullRequest, names []string) error {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(max(len(names), 1))

	for _, name := range names {
		def := commandFor(c, name)
		if def == nil {
			continue
		}

		g.Go(func() error {
			data := newData(pr)
			_, err := o.run(ctx, pr, name, def, data)
			return err
		})
	}

	return g.Wait()
}

// Run runs a single configured check.
func (o *Orchestrator) Run(ctx context.Context, pr *pullrequest.PullRequest, name string) error {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	def := commandFor(c, name)
	if def == nil {
		return fmt.Errorf("check %s is not configured for %s", name, pr.Repository)
	}

	_, err = o.run(ctx, pr, name, def, newData(pr))
	return err
}

// outcome is the result of a check that was executed.
type outcome struct {
	Success bool
	Output  *checkrun.Output
}

// run executes the check and reports its state. If a run of the check is
// already in progress for the head commit, nothing is done and nil is
// returned.
// Failures of the check are reported as failed check runs, an error is only
// returned when reporting the state failed.
func (o *Orchestrator) run(ctx context.Context, pr *pullrequest.PullRequest, name string, def *cfg.Command, data *Data) (*outcome, error) {
	logger := o.logger.With(pr.LogFields()...).With(logfields.Check(name))

	key := runKey{repo: pr.Repository, headSHA: pr.HeadSHA, check: name}
	if !o.claim(key) {
		logger.Info("check is already running, skipping",
			logfields.Event("check_skipped_running"),
		)
		return nil, nil
	}
	defer o.release(key)

	inProgress, err := o.reporter.IsInProgress(ctx, pr.Repository, pr.HeadSHA, name)
	if err != nil {
		return nil, err
	}

	if inProgress {
		logger.Info("check is already in progress, skipping",
			logfields.Event("check_skipped_in_progress"),
		)
		return nil, nil
	}

	if err := o.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, checkrun.InProgress(name)); err != nil {
		return nil, err
	}

	logger.Info("running check", logfields.Event("check_started"))

	res, err := o.execute(ctx, name, def, data)

	var result outcome
	switch {
	case err != nil:
		logger.Warn("executing check failed",
			logfields.Event("check_execution_failed"),
			zap.Error(err),
		)

		result.Output = &checkrun.Output{
			Title:   name + " failed",
			Summary: err.Error(),
		}
		if res != nil {
			result.Output.Text = checkrun.OutputText(res.Stderr, res.Stdout)
		}

	case !res.Success:
		logger.Info("check failed",
			logfields.Event("check_failed"),
			zap.Int("exit_code", res.ExitCode),
		)
		result.Output = checkrun.CommandOutput(name+" failed", res.Stdout, res.Stderr)

	default:
		logger.Info("check succeeded", logfields.Event("check_succeeded"))
		result.Success = true
		result.Output = checkrun.CommandOutput(name+" succeeded", res.Stdout, res.Stderr)
	}

	upd := checkrun.Failure(name, result.Output)
	if result.Success {
		upd = checkrun.Success(name, result.Output)
	}

	return &result, o.reporter.Upsert(ctx, pr.Repository, pr.HeadSHA, upd)
}

// execute renders and runs the command, panics are converted to errors.
func (o *Orchestrator) execute(ctx context.Context, name string, def *cfg.Command, data *Data) (res *cmdrunner.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("check panicked",
				logfields.Check(name),
				logfields.Event("check_panicked"),
				zap.Any("panic", r),
				zap.StackSkip("stacktrace", 2),
			)

			res = nil
			err = mgerr.NewCheckExecutionFailure(name, fmt.Errorf("panic: %v", r))
		}
	}()

	cmd, err := renderCommand(def, data)
	if err != nil {
		return nil, mgerr.NewCheckExecutionFailure(name, err)
	}

	cmd.Redact = o.redact

	res, err = o.runner.Run(ctx, *cmd)
	if err != nil {
		return res, mgerr.NewCheckExecutionFailure(name, err)
	}

	return res, nil
}

func (o *Orchestrator) comment(ctx context.Context, pr *pullrequest.PullRequest, body string) error {
	return o.retryer.Run(ctx, func(ctx context.Context) error {
		return o.clt.CreateIssueComment(ctx, pr.Owner, pr.Name, pr.Number, body)
	}, append(pr.LogFields(), logfields.Operation("github_create_issue_comment")))
}

func (o *Orchestrator) branchExists(ctx context.Context, repo pullrequest.Repository, branch string) (bool, error) {
	var exists bool

	err := o.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		exists, err = o.clt.BranchExists(ctx, repo.Owner, repo.Name, branch)
		return err
	}, append(repo.LogFields(), logfields.Branch(branch), logfields.Operation("github_branch_exists")))

	return exists, err
}
