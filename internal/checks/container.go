package checks

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/checkrun"
	"github.com/simplesurance/mergeguard/internal/cmdrunner"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/mgerr"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const containerNotConfigured = "No build-and-push-container configured for this repository"

// MergeImageTag returns the container image tag for a merge into branch.
func MergeImageTag(branch, mainTag string) string {
	if branch == "main" || branch == "master" {
		return mainTag
	}

	return branch
}

// BuildAndPushMerged builds and pushes the container image of a merged pull
// request. It does nothing when no container build is configured.
func (o *Orchestrator) BuildAndPushMerged(ctx context.Context, pr *pullrequest.PullRequest) error {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	if c.Container == nil {
		return nil
	}

	_, err = o.buildAndPush(ctx, pr, MergeImageTag(pr.BaseBranch, c.Container.MainTag))
	return err
}

// BuildAndPushCommand handles the "/build-and-push-container" command, the
// image is tagged with pr-<number>.
func (o *Orchestrator) BuildAndPushCommand(ctx context.Context, pr *pullrequest.PullRequest) error {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return err
	}

	if c.Container == nil {
		return o.comment(ctx, pr, containerNotConfigured)
	}

	tag := fmt.Sprintf("pr-%d", pr.Number)

	res, err := o.buildAndPush(ctx, pr, tag)
	if err != nil || res == nil {
		return err
	}

	if res.Success {
		return o.comment(ctx, pr, fmt.Sprintf("New container with tag `%s` was built and pushed", tag))
	}

	return o.comment(ctx, pr, fmt.Sprintf("Building and pushing the container with tag `%s` failed", tag))
}

func (o *Orchestrator) buildAndPush(ctx context.Context, pr *pullrequest.PullRequest, tag string) (*outcome, error) {
	c, err := o.repoConfig(pr.Repository)
	if err != nil {
		return nil, err
	}

	data := newData(pr)
	data.ImageTag = tag
	data.Push = true

	return o.run(ctx, pr, checkrun.BuildContainer, &c.Container.Command, data)
}

// Release runs the release commands for a pushed tag: the python module
// upload and, if enabled, the container build and push.
// No check runs are reported because a tag is not related to a pull
// request.
func (o *Orchestrator) Release(ctx context.Context, repo pullrequest.Repository, tag string) error {
	c, err := o.repoConfig(repo)
	if err != nil {
		return err
	}

	data := Data{
		Owner:      repo.Owner,
		Repository: repo.Name,
		Tag:        tag,
	}

	var errs error

	if c.PythonModuleUpload != nil {
		errs = multierr.Append(errs, o.runRelease(ctx, repo, "python-module-upload", c.PythonModuleUpload.Command, &data))
	}

	if c.Container != nil && c.Container.Release {
		containerData := data
		containerData.ImageTag = tag
		containerData.Push = true

		errs = multierr.Append(errs, o.runRelease(ctx, repo, checkrun.BuildContainer, c.Container.Command, &containerData))
	}

	return errs
}

func (o *Orchestrator) runRelease(ctx context.Context, repo pullrequest.Repository, name string, def cfg.Command, data *Data) error {
	logger := o.logger.With(repo.LogFields()...).With(logfields.Check(name), logfields.Tag(data.Tag))

	res, err := o.execute(ctx, name, &def, data)
	if err != nil {
		return err
	}

	if !res.Success {
		logger.Warn("release command failed",
			logfields.Event("release_command_failed"),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", res.Stderr),
		)

		return mgerr.NewCheckExecutionFailure(name, fmt.Errorf("command exited with code %d", res.ExitCode))
	}

	logger.Info("release command succeeded", logfields.Event("release_command_succeeded"))

	return nil
}

var _ CommandRunner = (*cmdrunner.Runner)(nil)
