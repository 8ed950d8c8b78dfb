// Package labelstore reads and writes the labels of pull requests on GitHub.
// Every write is followed by polling GitHub until the change is visible.
package labelstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/labels"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/metrics"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const loggerName = "label_store"

const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultWaitInterval = 5 * time.Second
)

// ErrNotVisible is returned when a label change did not become visible
// within the wait timeout.
var ErrNotVisible = errors.New("label change not visible")

type GithubClient interface {
	ListLabels(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int) ([]string, error)
	AddLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
	RemoveLabel(ctx context.Context, owner, repo string, pullRequestOrIssueNumber int, label string) error
	UpsertRepositoryLabel(ctx context.Context, owner, repo, name, color string) error
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

type Store struct {
	clt     GithubClient
	retryer Retryer
	logger  *zap.Logger

	waitTimeout  time.Duration
	waitInterval time.Duration
}

type Option func(*Store)

// WithWait sets how long and how often the store polls GitHub after a
// label change until it is visible.
func WithWait(timeout, interval time.Duration) Option {
	return func(s *Store) {
		s.waitTimeout = timeout
		s.waitInterval = interval
	}
}

func New(clt GithubClient, retryer Retryer, opts ...Option) *Store {
	s := Store{
		clt:          clt,
		retryer:      retryer,
		logger:       zap.L().Named(loggerName),
		waitTimeout:  DefaultWaitTimeout,
		waitInterval: DefaultWaitInterval,
	}

	for _, o := range opts {
		o(&s)
	}

	return &s
}

func (s *Store) list(ctx context.Context, ref pullrequest.Ref) ([]string, error) {
	var result []string

	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.clt.ListLabels(ctx, ref.Owner, ref.Name, ref.Number)
		return err
	}, append(ref.LogFields(), logfields.Operation("github_list_labels")))
	if err != nil {
		return nil, fmt.Errorf("listing labels of %s failed: %w", ref, err)
	}

	return result, nil
}

// List returns the current labels of the pull request.
func (s *Store) List(ctx context.Context, ref pullrequest.Ref) (*labels.Set, error) {
	names, err := s.list(ctx, ref)
	if err != nil {
		return nil, err
	}

	return labels.NewSet(names...), nil
}

// Exists returns true if the pull request has the label.
func (s *Store) Exists(ctx context.Context, ref pullrequest.Ref, name string) (bool, error) {
	set, err := s.List(ctx, ref)
	if err != nil {
		return false, err
	}

	return set.Has(name), nil
}

// Add adds a label to the pull request and waits until GitHub returns it.
// Non-static labels are created in the repository with their color if they
// do not exist.
// Add returns false if the pull request already had the label.
// Names that are longer than labels.MaxNameLen are skipped.
func (s *Store) Add(ctx context.Context, ref pullrequest.Ref, name string) (bool, error) {
	logger := s.logger.With(ref.LogFields()...).With(logfields.Label(name))

	if err := labels.Validate(name); err != nil {
		if errors.Is(err, labels.ErrNameTooLong) {
			logger.Debug("label name is too long, not adding it",
				logfields.Event("label_name_too_long"),
			)
			return false, nil
		}

		return false, fmt.Errorf("label %q: %w", name, err)
	}

	exists, err := s.Exists(ctx, ref, name)
	if err != nil {
		return false, err
	}

	if exists {
		logger.Debug("label already exists, skipping adding it",
			logfields.Event("label_already_exists"),
		)
		return false, nil
	}

	label := labels.Parse(name)
	if !label.IsStatic() {
		err := s.retryer.Run(ctx, func(ctx context.Context) error {
			return s.clt.UpsertRepositoryLabel(ctx, ref.Owner, ref.Name, name, label.Color())
		}, append(ref.LogFields(), logfields.Label(name), logfields.Operation("github_upsert_repository_label")))
		if err != nil {
			return false, fmt.Errorf("creating repository label %q failed: %w", name, err)
		}
	}

	err = s.retryer.Run(ctx, func(ctx context.Context) error {
		return s.clt.AddLabel(ctx, ref.Owner, ref.Name, ref.Number, name)
	}, append(ref.LogFields(), logfields.Label(name), logfields.Operation("github_add_label")))
	if err != nil {
		return false, fmt.Errorf("adding label %q to %s failed: %w", name, ref, err)
	}

	if err := s.waitFor(ctx, ref, name, true); err != nil {
		return false, err
	}

	metrics.LabelOpsInc(ref.Repository.String(), metrics.LabelOperationAdd)
	logger.Info("label added", logfields.Event("label_added"))

	return true, nil
}

// Remove removes a label from the pull request and waits until GitHub does
// not return it anymore.
// Remove returns false if the pull request did not have the label.
func (s *Store) Remove(ctx context.Context, ref pullrequest.Ref, name string) (bool, error) {
	logger := s.logger.With(ref.LogFields()...).With(logfields.Label(name))

	exists, err := s.Exists(ctx, ref, name)
	if err != nil {
		return false, err
	}

	if !exists {
		logger.Debug("label does not exist, skipping removing it",
			logfields.Event("label_not_exists"),
		)
		return false, nil
	}

	err = s.retryer.Run(ctx, func(ctx context.Context) error {
		return s.clt.RemoveLabel(ctx, ref.Owner, ref.Name, ref.Number, name)
	}, append(ref.LogFields(), logfields.Label(name), logfields.Operation("github_remove_label")))
	if err != nil {
		return false, fmt.Errorf("removing label %q from %s failed: %w", name, ref, err)
	}

	if err := s.waitFor(ctx, ref, name, false); err != nil {
		return false, err
	}

	metrics.LabelOpsInc(ref.Repository.String(), metrics.LabelOperationRemove)
	logger.Info("label removed", logfields.Event("label_removed"))

	return true, nil
}

// waitFor polls the labels of the pull request until the existence of the
// label equals wantExists.
func (s *Store) waitFor(ctx context.Context, ref pullrequest.Ref, name string, wantExists bool) error {
	var maxRetries uint64
	if s.waitInterval > 0 {
		maxRetries = uint64(s.waitTimeout / s.waitInterval)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.waitInterval), maxRetries),
		ctx,
	)

	var visible bool

	err := backoff.Retry(func() error {
		names, err := s.clt.ListLabels(ctx, ref.Owner, ref.Name, ref.Number)
		if err != nil {
			return err
		}

		visible = labels.NewSet(names...).Has(name) == wantExists
		if !visible {
			return ErrNotVisible
		}

		return nil
	}, bo)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !visible {
			return fmt.Errorf("label %q on %s (exists: %t) after %s: %w", name, ref, wantExists, s.waitTimeout, ErrNotVisible)
		}

		return fmt.Errorf("polling labels of %s failed: %w", ref, err)
	}

	return nil
}
