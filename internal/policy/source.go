package policy

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const loggerName = "policy"

var ErrRepositoryNotConfigured = errors.New("repository is not configured")

type GithubClient interface {
	FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// Source builds policies from the repository configuration and the OWNERS
// file of the repository.
type Source struct {
	config     *cfg.Config
	clt        GithubClient
	retryer    Retryer
	ownersFile string
	logger     *zap.Logger
}

func NewSource(config *cfg.Config, clt GithubClient, retryer Retryer) *Source {
	return &Source{
		config:     config,
		clt:        clt,
		retryer:    retryer,
		ownersFile: config.OwnersFile,
		logger:     zap.L().Named(loggerName),
	}
}

// Policy returns the policy of a repository. The OWNERS file is read at
// gitRef, if gitRef is empty it is read from the default branch.
// The OWNERS file is read on every call, changes in it are applied
// immediately.
func (s *Source) Policy(ctx context.Context, repo pullrequest.Repository, gitRef string) (*Policy, error) {
	repoCfg := s.config.Repository(repo.Owner, repo.Name)
	if repoCfg == nil {
		return nil, fmt.Errorf("%s: %w", repo, ErrRepositoryNotConfigured)
	}

	result := fromCfg(repo, repoCfg)

	if s.ownersFile == "" {
		return result, nil
	}

	var data []byte
	err := s.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		data, err = s.clt.FileContent(ctx, repo.Owner, repo.Name, s.ownersFile, gitRef)
		return err
	}, append(repo.LogFields(), logfields.Operation("github_get_owners_file")))
	if err != nil {
		var notFoundErr *mgerr.ResourceNotFoundError
		if errors.As(err, &notFoundErr) {
			s.logger.Debug("repository has no owners file",
				append(repo.LogFields(),
					logfields.Event("owners_file_not_found"),
					zap.String("path", s.ownersFile),
				)...,
			)
			return result, nil
		}

		return nil, fmt.Errorf("retrieving %s failed: %w", s.ownersFile, err)
	}

	o, err := parseOwners(data)
	if err != nil {
		return nil, err
	}

	result.Approvers = union(result.Approvers, o.Approvers)
	result.Reviewers = union(result.Reviewers, o.Reviewers.Any)
	result.FileReviewers = o.Reviewers.Files
	result.FolderReviewers = o.Reviewers.Folders

	return result, nil
}

func fromCfg(repo pullrequest.Repository, c *cfg.Repository) *Policy {
	return &Policy{
		Repository:          repo,
		Approvers:           append([]string(nil), c.Approvers...),
		Reviewers:           append([]string(nil), c.Reviewers...),
		AutoMergeUsers:      append([]string(nil), c.AutoVerifiedAndMergedUsers...),
		MandatoryLabels:     append([]string(nil), c.CanBeMergedRequiredLabels...),
		MergeMethod:         c.MergeMethod,
		VerifiedJob:         c.IsVerifiedJobEnabled(),
		Tox:                 c.Tox != nil,
		PreCommit:           c.PreCommit != nil,
		PythonModuleInstall: c.PythonModuleInstall != nil,
		BuildContainer:      c.Container != nil,
	}
}

// union returns the elements of a followed by the elements of b that are
// not in a.
func union(a, b []string) []string {
	seen := mapset.NewThreadUnsafeSet(a...)
	result := append([]string(nil), a...)

	for _, e := range b {
		if seen.Add(e) {
			result = append(result, e)
		}
	}

	return result
}
