package schema

// RunID identifies one task container execution.
type RunID string

// RunState names a stage of the container run lifecycle.
type RunState string

const (
	// RunStateCreated precedes any work on the run.
	RunStateCreated RunState = "created"
	// RunStateSpawning covers engine process startup.
	RunStateSpawning RunState = "spawning"
	// RunStateRunning covers the supervised poll loop.
	RunStateRunning RunState = "running"
	// RunStateCompleted is terminal: the process exited on its own.
	RunStateCompleted RunState = "completed"
	// RunStateTerminated is terminal: cancellation was honored.
	RunStateTerminated RunState = "terminated"
	// RunStateFailed is terminal: an unexpected error stopped the run.
	RunStateFailed RunState = "failed"
)

// OutcomeKind tags the terminal result of a supervised run.
type OutcomeKind string

const (
	// OutcomeCompleted means the process exited; ExitCode carries the code.
	OutcomeCompleted OutcomeKind = "completed"
	// OutcomeTerminated means cancellation was honored.
	OutcomeTerminated OutcomeKind = "terminated"
	// OutcomeFailed means an unexpected error stopped the run.
	OutcomeFailed OutcomeKind = "failed"
)

// RunOutcome is the terminal result of one supervised container run.
// Only the fields matching Kind are meaningful.
type RunOutcome struct {
	Kind OutcomeKind
	// ExitCode is the raw process exit code for OutcomeCompleted; non-zero
	// is a normal result, not a failure.
	ExitCode int
	// Graceful reports, for OutcomeTerminated, whether the process left on
	// a termination signal without being killed.
	Graceful bool
	// Message carries the cause for OutcomeFailed.
	Message string
}

// State maps the outcome onto its terminal run state.
func (o RunOutcome) State() RunState {
	switch o.Kind {
	case OutcomeTerminated:
		return RunStateTerminated
	case OutcomeFailed:
		return RunStateFailed
	default:
		return RunStateCompleted
	}
}

// RuntimeParams carries the per-task container runtime knobs.
type RuntimeParams struct {
	// CPU is the core count passed to the engine; 0 leaves it unset.
	CPU int
	// MemoryLimit is the hard memory cap in bytes; 0 leaves it unset.
	MemoryLimit int64
	// MemoryReservation is advisory only and never reaches the engine.
	MemoryReservation int64
	// Image is the container image reference; required, defaulted by the
	// caller's configuration.
	Image string
}

// ResourceLimits reports the most the host can offer a single container.
type ResourceLimits struct {
	CPU         int
	MemoryBytes int64
}
