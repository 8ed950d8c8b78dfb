// Package engine processes GitHub webhook events. It classifies them and
// runs the labeling, check and merge eligibility logic for the affected
// pull requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/checks"
	"github.com/simplesurance/mergeguard/internal/event"
	"github.com/simplesurance/mergeguard/internal/githubclt"
	"github.com/simplesurance/mergeguard/internal/labeler"
	"github.com/simplesurance/mergeguard/internal/labelstore"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/merge"
	"github.com/simplesurance/mergeguard/internal/metrics"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	"github.com/simplesurance/mergeguard/internal/policy"
	provider "github.com/simplesurance/mergeguard/internal/provider/github"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
	"github.com/simplesurance/mergeguard/internal/routines"
)

const DefEventChannelBufferSize = 512

const loggerName = "engine"

// GithubClient is the union of the GitHub operations of all components.
type GithubClient interface {
	labelstore.GithubClient
	checkrun.GithubClient
	policy.GithubClient
	event.PullRequestResolver
	labeler.GithubClient
	checks.GithubClient
	merge.GithubClient
	ListOpenPullRequests(ctx context.Context, owner, repo, baseBranch string) githubclt.PRIterator
	ListIssueCommentBodies(ctx context.Context, owner, repo string, issueOrPRNr int) ([]string, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// Engine receives webhook events via the channel returned by C() and
// processes them concurrently with a bounded number of workers.
type Engine struct {
	config  *cfg.Config
	clt     GithubClient
	retryer Retryer

	classifier *event.Classifier
	policies   *policy.Source
	labels     *labelstore.Store
	labeler    *labeler.Labeler
	checks     *checks.Orchestrator
	evaluator  *merge.Evaluator
	debouncer  *merge.Debouncer
	filters    map[pullrequest.Repository]*eventFilter

	// welcomeMu serializes posting welcome comments.
	welcomeMu sync.Mutex

	ch          chan *provider.Event
	pool        *routines.Pool
	loopDone    chan struct{}
	taskDeferFn func()

	logger *zap.Logger
}

type Option func(*Engine)

// WithTaskDeferFunc sets a function that is deferred in every go-routine
// that processes an event, it can be used to set a panic handler.
func WithTaskDeferFunc(fn func()) Option {
	return func(e *Engine) {
		e.taskDeferFn = fn
	}
}

func New(config *cfg.Config, clt GithubClient, runner checks.CommandRunner, retryer Retryer, opts ...Option) (*Engine, error) {
	e := Engine{
		config:   config,
		clt:      clt,
		retryer:  retryer,
		filters:  map[pullrequest.Repository]*eventFilter{},
		ch:       make(chan *provider.Event, DefEventChannelBufferSize),
		loopDone: make(chan struct{}),
		logger:   zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&e)
	}

	for _, repo := range config.Repositories {
		if repo.EventFilter == "" {
			continue
		}

		f, err := newEventFilter(repo.EventFilter)
		if err != nil {
			return nil, fmt.Errorf("repository %s: parsing event_filter failed: %w", repo, err)
		}

		e.filters[pullrequest.Repository{Owner: repo.Owner, Name: repo.Name}] = f
	}

	reporter := checkrun.NewReporter(clt, retryer)

	e.labels = labelstore.New(clt, retryer, labelstore.WithWait(config.LabelWaitTimeout, config.LabelWaitInterval))
	e.policies = policy.NewSource(config, clt, retryer)
	e.classifier = event.NewClassifier(clt, retryer)
	e.evaluator = merge.NewEvaluator(clt, e.labels, reporter, e.policies, retryer)
	e.debouncer = merge.NewDebouncer(config.ReevaluateDelay, e.evaluateScheduled)
	e.labeler = labeler.New(e.labels, reporter, clt, retryer, e.debouncer)
	e.checks = checks.New(config, reporter, runner, clt, e.labels, retryer, checks.WithRedact(config.GithubAPIToken))
	e.pool = routines.NewPool(max(config.EventWorkers, 1))

	return &e, nil
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *Engine) C() chan<- *provider.Event {
	return e.ch
}

// Start processes events until Stop() is called. It blocks.
func (e *Engine) Start() {
	defer close(e.loopDone)

	ctx := context.Background()

	e.logger.Info("ready to process events", logfields.Event("engine_started"))

	for ev := range e.ch {
		metrics.EventQueueSizeSet(len(e.ch))

		e.pool.Queue(func() {
			if e.taskDeferFn != nil {
				defer e.taskDeferFn()
			}

			if err := e.HandleWebhookEvent(ctx, ev); err != nil {
				e.logger.Error("processing event failed",
					append(ev.LogFields, logfields.Event("event_processing_failed"), zap.Error(err))...,
				)
			}
		})
	}

	e.logger.Info(
		"event loop terminated, event channel was closed",
		logfields.Event("engine_event_loop_terminated"),
	)
}

// Stop closes the event channel, waits until all queued events were
// processed and running merge evaluations finished.
// Pending debounced evaluations are discarded.
func (e *Engine) Stop() {
	e.logger.Debug("engine terminating", logfields.Event("engine_terminating"))

	close(e.ch)
	<-e.loopDone

	e.pool.Wait()
	e.debouncer.Stop()

	e.logger.Info("engine terminated", logfields.Event("engine_terminated"))
}

// ReevaluateMergeability evaluates the merge eligibility of the pull request
// immediately and applies the result.
func (e *Engine) ReevaluateMergeability(ctx context.Context, ref pullrequest.Ref) (*merge.Decision, error) {
	return e.evaluator.Evaluate(ctx, ref)
}

func (e *Engine) evaluateScheduled(ctx context.Context, ref pullrequest.Ref) {
	if _, err := e.evaluator.Evaluate(ctx, ref); err != nil {
		e.logger.Error("evaluating merge eligibility failed",
			append(ref.LogFields(), logfields.Event("merge_evaluation_failed"), zap.Error(err))...,
		)
	}
}

func (e *Engine) matchesFilter(ctx context.Context, ev *event.Event) (bool, error) {
	f, exists := e.filters[ev.Repository]
	if !exists {
		return true, nil
	}

	return f.Match(ctx, ev.JSON)
}

// HandleWebhookEvent classifies the event and runs the handler of its kind.
// Unsupported events and events of repositories that are not configured are
// ignored.
func (e *Engine) HandleWebhookEvent(ctx context.Context, ghEvent *provider.Event) error {
	logger := e.logger.With(ghEvent.LogFields...)

	logger.Debug("event dequeued",
		logfields.Event("event_dequeued"),
		zap.Duration("queue_duration", ghEvent.QueueDuration()),
	)

	ev, err := e.classifier.Classify(ctx, ghEvent)
	if err != nil {
		if errors.Is(err, event.ErrUnsupported) {
			logger.Debug("ignoring unsupported event",
				logfields.Event("event_unsupported"),
				zap.Error(err),
			)
			return nil
		}

		var noPRErr *mgerr.NoAssociablePullRequestError
		if errors.As(err, &noPRErr) {
			logger.Info("event is not associated with a pull request, ignoring it",
				append(ev.LogFields(), logfields.Event("event_without_pull_request"), zap.Error(err))...,
			)
			return nil
		}

		return err
	}

	logger = logger.With(ev.LogFields()...)

	if e.config.Repository(ev.Repository.Owner, ev.Repository.Name) == nil {
		logger.Debug("ignoring event of unconfigured repository",
			logfields.Event("event_repository_not_configured"),
		)
		return nil
	}

	match, err := e.matchesFilter(ctx, ev)
	if err != nil {
		return fmt.Errorf("evaluating event filter failed: %w", err)
	}
	if !match {
		logger.Debug("event does not match event filter, ignoring it",
			logfields.Event("event_filter_mismatch"),
		)
		return nil
	}

	metrics.ProcessedEventsInc(ev.Kind.String())

	logger.Info("processing event", logfields.Event("event_processing"))

	if ev.Kind == event.KindPushTag {
		return e.checks.Release(ctx, ev.Repository, ev.Tag)
	}

	return e.handlePullRequestEvent(ctx, ev, logger)
}
