package checkrun

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/githubclt"
	"github.com/simplesurance/mergeguard/internal/logfields"
	"github.com/simplesurance/mergeguard/internal/metrics"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

const loggerName = "check_reporter"

type GithubClient interface {
	CreateCheckRun(ctx context.Context, owner, repo, headSHA, name string, state *githubclt.CheckRunState) (*githubclt.CheckRun, error)
	UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, name string, state *githubclt.CheckRunState) error
	ListCheckRuns(ctx context.Context, owner, repo, ref string) ([]*githubclt.CheckRun, error)
}

type Retryer interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// Reporter creates and updates check runs.
// For every commit at most one run per name is current: an update of a run
// that is not completed yet modifies it, otherwise a new run is created.
type Reporter struct {
	clt     GithubClient
	retryer Retryer
	logger  *zap.Logger
}

func NewReporter(clt GithubClient, retryer Retryer) *Reporter {
	return &Reporter{
		clt:     clt,
		retryer: retryer,
		logger:  zap.L().Named(loggerName),
	}
}

func toState(u *Update) *githubclt.CheckRunState {
	result := githubclt.CheckRunState{
		Status:     string(u.Status),
		Conclusion: string(u.Conclusion),
	}

	if u.Conclusion != "" {
		result.Status = ""
	}

	if u.Output != nil {
		result.Output = &githubclt.CheckRunOutput{
			Title:   u.Output.Title,
			Summary: u.Output.Summary,
			Text:    u.Output.Text,
		}
	}

	return &result
}

// Upsert sets the state of the check run u.Name on the commit.
// If reporting the state fails, Upsert tries to mark the check run as
// failed before returning the error.
func (r *Reporter) Upsert(ctx context.Context, repo pullrequest.Repository, headSHA string, u Update) error {
	logF := append(repo.LogFields(), logfields.Commit(headSHA))
	logF = append(logF, u.LogFields()...)
	logger := r.logger.With(logF...)

	err := r.upsert(ctx, repo, headSHA, &u, logF)
	if err == nil {
		metrics.CheckRunsInc(repo.String(), u.Name, u.State())
		logger.Debug("check run state reported", logfields.Event("check_run_reported"))
		return nil
	}

	logger.Warn("reporting check run state failed, marking it as failed",
		logfields.Event("check_run_report_failed"),
		zap.Error(err),
	)

	if u.Conclusion == ConclusionFailure {
		return err
	}

	fallback := Failure(u.Name, u.Output)
	if fbErr := r.create(ctx, repo, headSHA, &fallback, logF); fbErr != nil {
		logger.Warn("creating failed check run failed",
			logfields.Event("check_run_report_failed"),
			zap.Error(fbErr),
		)
	}

	return err
}

func (r *Reporter) upsert(ctx context.Context, repo pullrequest.Repository, headSHA string, u *Update, logF []zap.Field) error {
	latest, err := r.Latest(ctx, repo, headSHA)
	if err != nil {
		return err
	}

	if existing, exists := latest[u.Name]; exists && !existing.IsCompleted() {
		state := toState(u)
		return r.retryer.Run(ctx, func(ctx context.Context) error {
			return r.clt.UpdateCheckRun(ctx, repo.Owner, repo.Name, existing.ID, u.Name, state)
		}, append(logF, logfields.Operation("github_update_check_run")))
	}

	return r.create(ctx, repo, headSHA, u, logF)
}

func (r *Reporter) create(ctx context.Context, repo pullrequest.Repository, headSHA string, u *Update, logF []zap.Field) error {
	state := toState(u)

	return r.retryer.Run(ctx, func(ctx context.Context) error {
		_, err := r.clt.CreateCheckRun(ctx, repo.Owner, repo.Name, headSHA, u.Name, state)
		return err
	}, append(logF, logfields.Operation("github_create_check_run")))
}

// Latest returns the most recent check run per name of the commit.
func (r *Reporter) Latest(ctx context.Context, repo pullrequest.Repository, headSHA string) (map[string]*Run, error) {
	var runs []*githubclt.CheckRun

	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		runs, err = r.clt.ListCheckRuns(ctx, repo.Owner, repo.Name, headSHA)
		return err
	}, append(repo.LogFields(), logfields.Commit(headSHA), logfields.Operation("github_list_check_runs")))
	if err != nil {
		return nil, fmt.Errorf("listing check runs of %s@%s failed: %w", repo, headSHA, err)
	}

	result := make(map[string]*Run, len(runs))
	for _, run := range runs {
		// the run with the highest ID is the most recent one
		if cur, exists := result[run.Name]; exists && cur.ID > run.ID {
			continue
		}

		result[run.Name] = &Run{
			ID:         run.ID,
			Name:       run.Name,
			HeadSHA:    run.HeadSHA,
			Status:     Status(run.Status),
			Conclusion: Conclusion(run.Conclusion),
		}
	}

	return result, nil
}

// IsInProgress returns true if the latest run with the name on the commit
// is in progress.
func (r *Reporter) IsInProgress(ctx context.Context, repo pullrequest.Repository, headSHA, name string) (bool, error) {
	latest, err := r.Latest(ctx, repo, headSHA)
	if err != nil {
		return false, err
	}

	run, exists := latest[name]
	if !exists {
		return false, nil
	}

	return run.IsInProgress(), nil
}
