package schema

import "errors"

var (
	// ErrImageRequired indicates no container image was provided or defaulted.
	ErrImageRequired = errors.New("container image is required")
	// ErrHostDirRequired indicates the task has no host working directory.
	ErrHostDirRequired = errors.New("host directory is required")
	// ErrContainerDirRequired indicates the task has no container-side directory.
	ErrContainerDirRequired = errors.New("container directory is required")
	// ErrTerminationRequested signals that a queued or running task was asked to stop.
	ErrTerminationRequested = errors.New("termination requested")
)
