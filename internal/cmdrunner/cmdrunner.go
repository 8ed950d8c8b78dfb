// Package cmdrunner executes shell commands for checks.
package cmdrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/simplesurance/mergeguard/internal/logfields"
)

const loggerName = "command_runner"

const (
	DefaultTimeout     = 30 * time.Minute
	DefaultLockTimeout = 10 * time.Minute
	lockRetryInterval  = 500 * time.Millisecond
	// waitDelay is how long output of child processes is still read after
	// the command was killed.
	waitDelay     = 2 * time.Second
	redactedValue = "*****"
)

// Command is a shell command, it is executed with "sh -c".
type Command struct {
	Cmd string
	// Env is a list of KEY=VALUE pairs that is added to the environment
	// of the mergeguard process.
	Env []string
	Dir string
	// Timeout is the maximum runtime of the command, DefaultTimeout is
	// used when it is 0.
	Timeout time.Duration
	// LockFile is an optional path of a file that is exclusively locked
	// while the command runs.
	LockFile string
	// Redact contains values that are replaced in logs and in the
	// returned output, e.g. tokens.
	Redact []string
}

type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
}

type Runner struct {
	logger      *zap.Logger
	lockTimeout time.Duration
}

func NewRunner() *Runner {
	return &Runner{
		logger:      zap.L().Named(loggerName),
		lockTimeout: DefaultLockTimeout,
	}
}

func (c *Command) redact(s string) string {
	for _, r := range c.Redact {
		if r == "" {
			continue
		}
		s = strings.ReplaceAll(s, r, redactedValue)
	}

	return s
}

// Run executes the command and waits for its termination.
// A command that terminates with a non-zero exit code is not an error, the
// returned Result has Success set to false. An error is returned when the
// command could not be started, the lock could not be acquired or the
// timeout expired.
func (r *Runner) Run(ctx context.Context, command Command) (*Result, error) {
	logger := r.logger.With(logfields.Command(command.redact(command.Cmd)))

	if command.LockFile != "" {
		lock := flock.New(command.LockFile)

		lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
		locked, err := lock.TryLockContext(lockCtx, lockRetryInterval)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock on %s: %w", command.LockFile, err)
		}
		if !locked {
			return nil, fmt.Errorf("timed out acquiring lock on %s", command.LockFile)
		}

		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("releasing lock failed",
					logfields.Event("command_lock_release_failed"),
					zap.String("lock_file", command.LockFile),
					zap.Error(err),
				)
			}
		}()
	}

	timeout := command.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, "sh", "-c", command.Cmd)
	cmd.Dir = command.Dir
	cmd.Env = append(os.Environ(), command.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	logger.Debug("running command", logfields.Event("command_starting"))
	start := time.Now()

	err := cmd.Run()

	result := Result{
		Stdout: command.redact(stdout.String()),
		Stderr: command.redact(stderr.String()),
	}

	logger = logger.With(zap.Duration("duration", time.Since(start)))

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("command was aborted",
			logfields.Event("command_aborted"),
			zap.Error(ctxErr),
		)
		return &result, fmt.Errorf("command aborted: %w", ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running command failed: %w", err)
		}

		result.ExitCode = exitErr.ExitCode()
		logger.Info("command failed",
			logfields.Event("command_failed"),
			zap.Int("exit_code", result.ExitCode),
		)

		return &result, nil
	}

	result.Success = true
	logger.Debug("command succeeded", logfields.Event("command_succeeded"))

	return &result, nil
}
