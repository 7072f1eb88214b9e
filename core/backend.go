package core

import (
	"context"

	"pkt.systems/stevedore/schema"
)

// Backend runs one task command inside a container engine and supervises it
// to completion. The host engine holds the backend through this interface
// only; implementations live under internal/.
type Backend interface {
	// GlobalInit performs once-per-process setup such as host resource
	// detection. Safe to call more than once; later calls are no-ops.
	GlobalInit(ctx context.Context) error
	// ResourceLimits reports the most the host can offer a single
	// container. Computed once, immutable afterward.
	ResourceLimits() schema.ResourceLimits
	// Run executes command for task and returns the raw process exit
	// code. A non-zero code is a normal result, not an error; errors are
	// *TaskError values classified per kind. Each call is an independent
	// attempt that is safe to repeat.
	Run(ctx context.Context, task Task, command string) (int, error)
	// CopyInputFiles copies every task input beneath the host working
	// directory and marks the task's inputs-copied flag, after which the
	// run needs no input mounts.
	CopyInputFiles(ctx context.Context, task Task) error
}

// Task is the host engine's view of one container execution. Exactly one
// run owns a Task; the engine owns the host directory and cleans it up.
type Task interface {
	// ID identifies the run.
	ID() schema.RunID
	// HostDir is the host-side run directory.
	HostDir() string
	// ContainerDir is the container-side mount root.
	ContainerDir() string
	// Inputs maps host input paths to container paths. Directory entries
	// carry a trailing separator on both sides.
	Inputs() map[string]string
	// Runtime returns the container runtime parameters for the run.
	Runtime() schema.RuntimeParams
	// InputsCopied reports whether inputs already live inside the work
	// directory, making input mounts unnecessary.
	InputsCopied() bool
	// MarkInputsCopied records that the input-copy step completed.
	MarkInputsCopied()
	// Terminating reports whether the engine asked this run to stop. It
	// is polled and must be safe to call concurrently with the run.
	Terminating() bool
	// NotifyRunning fires exactly when the container process starts
	// running, never earlier, so queueing time is not misread as
	// execution time.
	NotifyRunning()
	// PollStderr forwards new task stderr output to the engine's log.
	// Invoked once per poll interval and at least once after exit.
	PollStderr()
}
