package core

import (
	"errors"
	"fmt"

	"pkt.systems/stevedore/schema"
)

// TaskErrorKind classifies task execution failures for the host engine.
type TaskErrorKind string

const (
	// TaskErrorUnknown is an uncategorized task failure.
	TaskErrorUnknown TaskErrorKind = "unknown"
	// TaskErrorCanceled indicates the engine requested termination and the
	// run honored it; never a failure.
	TaskErrorCanceled TaskErrorKind = "canceled"
	// TaskErrorInvalidMount indicates a mount precondition was violated.
	// Always surfaced before any process is spawned.
	TaskErrorInvalidMount TaskErrorKind = "invalid_mount"
	// TaskErrorRuntime indicates an unexpected failure while spawning or
	// supervising the container process.
	TaskErrorRuntime TaskErrorKind = "runtime"
)

// TaskError wraps task execution failures with a stable classification.
type TaskError struct {
	Kind    TaskErrorKind
	Op      string
	Message string
	// Quiet marks a cancellation observed before the process meaningfully
	// started, so callers can skip noisy logging for it.
	Quiet bool
	Err   error
}

// NewTaskError constructs a classified task error.
func NewTaskError(kind TaskErrorKind, op string, err error) *TaskError {
	if kind == "" {
		kind = TaskErrorUnknown
	}
	return &TaskError{Kind: kind, Op: op, Err: err}
}

// NewCanceled reports an honored cancellation; quiet marks aborts that did
// no real work.
func NewCanceled(op string, quiet bool) *TaskError {
	return &TaskError{Kind: TaskErrorCanceled, Op: op, Quiet: quiet, Err: schema.ErrTerminationRequested}
}

// NewInvalidMount reports a violated mount precondition.
func NewInvalidMount(op, message string) *TaskError {
	return &TaskError{Kind: TaskErrorInvalidMount, Op: op, Message: message}
}

// NewRuntime reports an unexpected execution failure.
func NewRuntime(op string, err error) *TaskError {
	return &TaskError{Kind: TaskErrorRuntime, Op: op, Err: err}
}

func (e *TaskError) Error() string {
	if e == nil {
		return "task error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("task %s failed", e.Op)
	}
	return "task error"
}

func (e *TaskError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsCanceled reports whether err classifies as an honored cancellation.
func IsCanceled(err error) bool {
	var te *TaskError
	return errors.As(err, &te) && te.Kind == TaskErrorCanceled
}

// IsQuietCancel reports whether err is a cancellation that did no real work.
func IsQuietCancel(err error) bool {
	var te *TaskError
	return errors.As(err, &te) && te.Kind == TaskErrorCanceled && te.Quiet
}

// IsInvalidMount reports whether err classifies as a mount precondition
// violation.
func IsInvalidMount(err error) bool {
	var te *TaskError
	return errors.As(err, &te) && te.Kind == TaskErrorInvalidMount
}
