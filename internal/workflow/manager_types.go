package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"danmu/internal/queue"
)

var (
	// ErrDuplicateJob is matched by submissions that collide with an active
	// job holding the same unique key.
	ErrDuplicateJob = errors.New("duplicate job")
	// ErrCancelled marks jobs that ended because Cancel was called.
	ErrCancelled = errors.New("job cancelled")
	// ErrNotRunning is returned by Submit before Start or after Stop.
	ErrNotRunning = errors.New("workflow manager not running")
	// ErrJobNotActive is returned by Cancel for unknown or finished jobs.
	ErrJobNotActive = errors.New("job is not active")

	errNoOutcome = errors.New("job finished without signalling an outcome")
	errShutdown  = errors.New("daemon stopped")
)

// DuplicateJobError identifies the active job that blocked a submission.
type DuplicateJobError struct {
	UniqueKey  string
	ExistingID int64
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("duplicate job: %q is already held by job #%d", e.UniqueKey, e.ExistingID)
}

func (e *DuplicateJobError) Is(target error) bool {
	return target == ErrDuplicateJob
}

// Update is a progress report from a running job. Status may be set to
// queue.StatusPaused while the job waits out a backoff; any other value keeps
// the job running.
type Update struct {
	Percent float64
	Message string
	Status  queue.Status
}

// Reporter persists progress for the job it was handed to.
type Reporter interface {
	Report(ctx context.Context, update Update) error
}

// Func is the body of a job.
type Func func(ctx context.Context, r Reporter) Outcome

// Spec describes a job to submit.
type Spec struct {
	Kind      string
	Title     string
	UniqueKey string
	Run       Func
}

type outcomeKind int

const (
	outcomeUnset outcomeKind = iota
	outcomeSuccess
	outcomeFailure
)

// Outcome is the explicit result of a job. The zero value means the job
// never signalled a result and is treated as a failure.
type Outcome struct {
	kind    outcomeKind
	message string
	err     error
}

// Success reports a completed job with a human readable summary.
func Success(message string) Outcome {
	return Outcome{kind: outcomeSuccess, message: strings.TrimSpace(message)}
}

// Failure reports a failed job.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("job failed")
	}
	return Outcome{kind: outcomeFailure, err: err}
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.kind == outcomeSuccess
}

// Signalled reports whether the job set an outcome at all.
func (o Outcome) Signalled() bool {
	return o.kind != outcomeUnset
}

// Message returns the success summary or the failure text.
func (o Outcome) Message() string {
	switch o.kind {
	case outcomeSuccess:
		return o.message
	case outcomeFailure:
		return o.err.Error()
	default:
		return errNoOutcome.Error()
	}
}

// Err returns the failure cause, or nil for successes.
func (o Outcome) Err() error {
	switch o.kind {
	case outcomeSuccess:
		return nil
	case outcomeFailure:
		return o.err
	default:
		return errNoOutcome
	}
}
