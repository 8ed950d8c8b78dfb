// Package mgerr provides the error kinds that are distinguished when handling
// webhook events.
package mgerr

import (
	"fmt"
	"time"
)

// RetryableError is returned when an operation failed temporarily, e.g.
// because an API rate limit was exceeded or the server returned a 5xx status.
type RetryableError struct {
	// Err is the wrapped original error
	Err error
	// After is the earliest point in time that the operation can be retried
	After time.Time
}

func NewRetryableError(originalErr error, retryAfter time.Time) *RetryableError {
	return &RetryableError{
		Err:   originalErr,
		After: retryAfter,
	}
}

func NewRetryableAnytimeError(originalErr error) *RetryableError {
	return &RetryableError{
		Err: originalErr,
	}
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("retryable error: %s", e.Err)
	}

	return fmt.Sprintf("retryable error (after %s): %s", e.After, e.Err)
}

// ResourceNotFoundError is returned when a label, branch, pull request or
// file does not exist on GitHub.
type ResourceNotFoundError struct {
	// Kind is the type of the resource, e.g. "label" or "branch".
	Kind string
	Name string
	Err  error
}

func NewResourceNotFoundError(kind, name string, originalErr error) *ResourceNotFoundError {
	return &ResourceNotFoundError{
		Kind: kind,
		Name: name,
		Err:  originalErr,
	}
}

func (e *ResourceNotFoundError) Unwrap() error {
	return e.Err
}

func (e *ResourceNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	}

	return fmt.Sprintf("%s %q not found: %s", e.Kind, e.Name, e.Err)
}

// NoAssociablePullRequestError is returned when an event requires a pull
// request but none could be resolved for it.
type NoAssociablePullRequestError struct {
	EventType string
	// CommitSHA is the commit that was used for the lookup, it is empty if
	// the event did not reference one.
	CommitSHA string
}

func (e *NoAssociablePullRequestError) Error() string {
	if e.CommitSHA == "" {
		return fmt.Sprintf("%s event: no associable pull request", e.EventType)
	}

	return fmt.Sprintf("%s event: no pull request found for commit %s", e.EventType, e.CommitSHA)
}

// CheckExecutionFailure describes why running a check failed.
// It is reported as a failed check run and not propagated further.
type CheckExecutionFailure struct {
	Check string
	Err   error
}

func NewCheckExecutionFailure(check string, err error) *CheckExecutionFailure {
	return &CheckExecutionFailure{Check: check, Err: err}
}

func (e *CheckExecutionFailure) Unwrap() error {
	return e.Err
}

func (e *CheckExecutionFailure) Error() string {
	return fmt.Sprintf("check %s failed: %s", e.Check, e.Err)
}
