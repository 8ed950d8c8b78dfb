// Package cfg loads the mergeguard configuration file.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/simplesurance/mergeguard/internal/stringutils"
)

const (
	DefGithubWebhookEndpoint     = "/listener/github"
	DefPrometheusMetricsEndpoint = "/metrics"
	DefLogFormat                 = "logfmt"
	DefLogTimeKey                = "time_iso8601"
	DefLogLevel                  = "info"
	DefEventWorkers              = 8
	DefReevaluateDelay           = 5 * time.Second
	DefLabelWaitTimeout          = 30 * time.Second
	DefLabelWaitInterval         = 5 * time.Second
	DefAPIRetryTimeout           = 5 * time.Minute
	DefOwnersFile                = "OWNERS"
	DefMergeMethod               = "squash"
	DefContainerMainTag          = "latest"
)

type Config struct {
	HTTPListenAddr            string `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string `toml:"https_server_listen_addr"`
	HTTPSCertFile             string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	GithubWebHookSecret       string `toml:"github_webhook_secret"`
	GithubAPIToken            string `toml:"github_api_token"`
	PrometheusMetricsEndpoint string `toml:"prometheus_metrics_endpoint"`
	LogFormat                 string `toml:"log_format"`
	LogTimeKey                string `toml:"log_time_key"`
	LogLevel                  string `toml:"log_level"`

	// EventWorkers is the number of webhook events that are processed
	// in parallel.
	EventWorkers         int    `toml:"event_workers"`
	ReevaluateDelayStr   string `toml:"reevaluate_delay"`
	LabelWaitTimeoutStr  string `toml:"label_wait_timeout"`
	LabelWaitIntervalStr string `toml:"label_wait_interval"`
	APIRetryTimeoutStr   string `toml:"api_retry_timeout"`
	// OwnersFile is the path of the YAML file in the repositories that
	// lists approvers and reviewers.
	OwnersFile string `toml:"owners_file"`

	Repositories []*Repository `toml:"repository"`

	ReevaluateDelay   time.Duration `toml:"-"`
	LabelWaitTimeout  time.Duration `toml:"-"`
	LabelWaitInterval time.Duration `toml:"-"`
	APIRetryTimeout   time.Duration `toml:"-"`
}

// Repository is the merge policy and the checks of a GitHub repository.
type Repository struct {
	Owner string `toml:"owner"`
	Name  string `toml:"name"`
	// EventFilter is an optional jq expression, events for which it does
	// not evaluate to true are ignored.
	EventFilter string `toml:"event_filter"`

	Approvers                  []string `toml:"approvers"`
	Reviewers                  []string `toml:"reviewers"`
	AutoVerifiedAndMergedUsers []string `toml:"auto_verified_and_merged_users"`
	CanBeMergedRequiredLabels  []string `toml:"can_be_merged_required_labels"`
	// VerifiedJob is true when unset.
	VerifiedJob    *bool  `toml:"verified_job"`
	MergeMethod    string `toml:"merge_method"`
	WelcomeComment string `toml:"welcome_comment"`

	Tox                 *Command          `toml:"tox"`
	PreCommit           *Command          `toml:"pre_commit"`
	PythonModuleInstall *Command          `toml:"python_module_install"`
	PythonModuleUpload  *Command          `toml:"python_module_upload"`
	Container           *ContainerCommand `toml:"container"`
	CherryPick          *Command          `toml:"cherry_pick"`
}

// Command is a shell command template that is rendered with the data of a
// pull request.
type Command struct {
	Command    string   `toml:"command"`
	Env        []string `toml:"env"`
	Dir        string   `toml:"dir"`
	TimeoutStr string   `toml:"timeout"`
	LockFile   string   `toml:"lock_file"`

	Timeout time.Duration `toml:"-"`
}

type ContainerCommand struct {
	Command
	// Release enables building and pushing an image when a tag is
	// pushed.
	Release bool `toml:"release"`
	// MainTag is the image tag that is used for merges into the main or
	// master branch.
	MainTag string `toml:"main_tag"`
}

func (r *Repository) String() string {
	return r.Owner + "/" + r.Name
}

// IsVerifiedJobEnabled returns true if the verified label and check are
// managed for the repository.
func (r *Repository) IsVerifiedJobEnabled() bool {
	return r.VerifiedJob == nil || *r.VerifiedJob
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if err := result.setDefaults(); err != nil {
		return nil, err
	}

	if err := result.validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func parseDuration(key, val string, def time.Duration) (time.Duration, error) {
	if val == "" {
		return def, nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s: duration must not be negative", key)
	}

	return d, nil
}

func (r *Config) setDefaults() error {
	var err error

	if r.HTTPGithubWebhookEndpoint == "" {
		r.HTTPGithubWebhookEndpoint = DefGithubWebhookEndpoint
	}
	if r.PrometheusMetricsEndpoint == "" {
		r.PrometheusMetricsEndpoint = DefPrometheusMetricsEndpoint
	}
	if r.LogFormat == "" {
		r.LogFormat = DefLogFormat
	}
	if r.LogTimeKey == "" {
		r.LogTimeKey = DefLogTimeKey
	}
	if r.LogLevel == "" {
		r.LogLevel = DefLogLevel
	}
	if r.EventWorkers == 0 {
		r.EventWorkers = DefEventWorkers
	}
	if r.OwnersFile == "" {
		r.OwnersFile = DefOwnersFile
	}

	if r.ReevaluateDelay, err = parseDuration("reevaluate_delay", r.ReevaluateDelayStr, DefReevaluateDelay); err != nil {
		return err
	}
	if r.LabelWaitTimeout, err = parseDuration("label_wait_timeout", r.LabelWaitTimeoutStr, DefLabelWaitTimeout); err != nil {
		return err
	}
	if r.LabelWaitInterval, err = parseDuration("label_wait_interval", r.LabelWaitIntervalStr, DefLabelWaitInterval); err != nil {
		return err
	}
	if r.APIRetryTimeout, err = parseDuration("api_retry_timeout", r.APIRetryTimeoutStr, DefAPIRetryTimeout); err != nil {
		return err
	}

	for _, repo := range r.Repositories {
		if repo.MergeMethod == "" {
			repo.MergeMethod = DefMergeMethod
		}

		if repo.Container != nil && repo.Container.MainTag == "" {
			repo.Container.MainTag = DefContainerMainTag
		}

		for key, cmd := range repo.commands() {
			if cmd.Timeout, err = parseDuration(repo.String()+"."+key+".timeout", cmd.TimeoutStr, 0); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *Repository) commands() map[string]*Command {
	result := map[string]*Command{}

	if r.Tox != nil {
		result["tox"] = r.Tox
	}
	if r.PreCommit != nil {
		result["pre_commit"] = r.PreCommit
	}
	if r.PythonModuleInstall != nil {
		result["python_module_install"] = r.PythonModuleInstall
	}
	if r.PythonModuleUpload != nil {
		result["python_module_upload"] = r.PythonModuleUpload
	}
	if r.Container != nil {
		result["container"] = &r.Container.Command
	}
	if r.CherryPick != nil {
		result["cherry_pick"] = r.CherryPick
	}

	return result
}

func (r *Config) validate() error {
	if r.EventWorkers < 0 {
		return errors.New("event_workers must be positive")
	}

	if r.LabelWaitInterval == 0 {
		return errors.New("label_wait_interval must be greater than 0")
	}

	switch r.LogFormat {
	case "logfmt", "console", "json":
	default:
		return fmt.Errorf("unsupported log_format: %q", r.LogFormat)
	}

	seen := map[string]struct{}{}

	for i, repo := range r.Repositories {
		if repo.Owner == "" || repo.Name == "" {
			return fmt.Errorf("repository #%d: owner and name must be set", i+1)
		}

		if _, exists := seen[repo.String()]; exists {
			return fmt.Errorf("repository %s is defined multiple times", repo)
		}
		seen[repo.String()] = struct{}{}

		switch repo.MergeMethod {
		case "merge", "squash", "rebase":
		default:
			return fmt.Errorf("repository %s: unsupported merge_method: %q", repo, repo.MergeMethod)
		}

		for key, cmd := range repo.commands() {
			if strings.TrimSpace(cmd.Command) == "" {
				return fmt.Errorf("repository %s: %s.command must be set", repo, key)
			}

			for _, env := range cmd.Env {
				if !strings.Contains(env, "=") {
					return fmt.Errorf("repository %s: %s.env: %q is not in KEY=VALUE format", repo, key, env)
				}
			}
		}
	}

	return nil
}

// Repository returns the configuration of the repository, nil is returned
// if it is not configured.
func (r *Config) Repository(owner, name string) *Repository {
	for _, repo := range r.Repositories {
		if repo.Owner == owner && repo.Name == name {
			return repo
		}
	}

	return nil
}

// RepositoriesString returns a multi-line description of the configured
// repositories for logging.
func (r *Config) RepositoriesString() string {
	var sb strings.Builder

	for _, repo := range r.Repositories {
		fmt.Fprintf(&sb, "%s:\n", repo)

		var details []string
		details = append(details, fmt.Sprintf("approvers: %s", strings.Join(repo.Approvers, ", ")))
		details = append(details, fmt.Sprintf("merge method: %s", repo.MergeMethod))
		if repo.EventFilter != "" {
			details = append(details, fmt.Sprintf("event filter: %s", repo.EventFilter))
		}

		var cmds []string
		for key := range repo.commands() {
			cmds = append(cmds, key)
		}
		if len(cmds) > 0 {
			sort.Strings(cmds)
			details = append(details, fmt.Sprintf("commands: %s", strings.Join(cmds, ", ")))
		}

		sb.WriteString(stringutils.IndentString(strings.Join(details, "\n"), "  "))
		sb.WriteString("\n")
	}

	return sb.String()
}
