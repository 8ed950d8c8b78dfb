// Package checkrun reports the state of checks as GitHub check runs.
package checkrun

import (
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
)

// Names of the check runs that are reported.
const (
	Tox                 = "tox"
	PreCommit           = "pre-commit"
	PythonModuleInstall = "python-module-install"
	BuildContainer      = "build-container"
	Verified            = "verified"
	CanBeMerged         = "can-be-merged"
	CherryPick          = "cherry-pick"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Conclusion string

const (
	ConclusionSuccess   Conclusion = "success"
	ConclusionFailure   Conclusion = "failure"
	ConclusionNeutral   Conclusion = "neutral"
	ConclusionCancelled Conclusion = "cancelled"
	ConclusionSkipped   Conclusion = "skipped"
	ConclusionTimedOut  Conclusion = "timed_out"
)

// Run is the latest check run with a name on a commit.
type Run struct {
	ID         int64
	Name       string
	HeadSHA    string
	Status     Status
	Conclusion Conclusion
}

func (r *Run) IsCompleted() bool {
	return r.Status == StatusCompleted
}

func (r *Run) IsInProgress() bool {
	return r.Status == StatusInProgress
}

func (r *Run) IsSuccess() bool {
	return r.IsCompleted() && r.Conclusion == ConclusionSuccess
}

// Output is the text shown on the check run page.
type Output struct {
	Title   string
	Summary string
	Text    string
}

// Update is a state change of a check run.
// If Conclusion is set, the run is completed and Status is ignored.
type Update struct {
	Name       string
	Status     Status
	Conclusion Conclusion
	Output     *Output
}

// State returns the conclusion of completed updates and the status
// otherwise.
func (u *Update) State() string {
	if u.Conclusion != "" {
		return string(u.Conclusion)
	}

	return string(u.Status)
}

func (u *Update) LogFields() []zap.Field {
	return []zap.Field{
		logfields.CheckRun(u.Name),
		zap.String("check_run_state", u.State()),
	}
}

func Queued(name string) Update {
	return Update{Name: name, Status: StatusQueued}
}

func InProgress(name string) Update {
	return Update{Name: name, Status: StatusInProgress}
}

func Success(name string, output *Output) Update {
	return Update{Name: name, Conclusion: ConclusionSuccess, Output: output}
}

func Failure(name string, output *Output) Update {
	return Update{Name: name, Conclusion: ConclusionFailure, Output: output}
}
