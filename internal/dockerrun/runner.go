package dockerrun

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/stevedore/core"
	"pkt.systems/stevedore/internal/logx"
	"pkt.systems/stevedore/schema"
)

// Config controls how the docker backend invokes and supervises runs.
type Config struct {
	// Binary is the engine executable; "docker" when empty.
	Binary string
	// PollInterval bounds each supervision wait; one second when zero.
	PollInterval time.Duration
	// TerminateGrace is how long a TERM'd engine gets before KILL; ten
	// seconds when zero.
	TerminateGrace time.Duration
}

// Runner implements core.Backend on top of the docker CLI.
type Runner struct {
	cfg  Config
	gate *core.RunGate
	sup  Supervisor
	uid  int

	limitsOnce sync.Once
	limits     schema.ResourceLimits
}

// NewRunner constructs the docker backend. gate bounds concurrent container
// runs across the process and must not be nil.
func NewRunner(cfg Config, gate *core.RunGate) (*Runner, error) {
	if gate == nil {
		return nil, errors.New("dockerrun: run gate is required")
	}
	return &Runner{
		cfg:  cfg,
		gate: gate,
		sup: Supervisor{
			Binary:         cfg.Binary,
			PollInterval:   cfg.PollInterval,
			TerminateGrace: cfg.TerminateGrace,
		},
		uid: os.Geteuid(),
	}, nil
}

// GlobalInit detects host resources once per process. Later calls are no-ops.
func (r *Runner) GlobalInit(ctx context.Context) error {
	r.initLimits(logx.Ctx(ctx))
	return nil
}

// ResourceLimits reports the most this host can offer a single container.
func (r *Runner) ResourceLimits() schema.ResourceLimits {
	r.initLimits(nil)
	return r.limits
}

func (r *Runner) initLimits(logger pslog.Logger) {
	r.limitsOnce.Do(func() {
		r.limits = detectResourceLimits(logger)
	})
}

// Run plans mounts, waits for an execution slot, then spawns the engine and
// supervises it until the process is gone. The returned int is the raw task
// exit code for completed runs; non-zero is a normal result. Termination and
// failures come back as classified *core.TaskError values. Each call is an
// independent attempt, safe to repeat on the same task.
func (r *Runner) Run(ctx context.Context, task core.Task, command string) (int, error) {
	params := task.Runtime()
	log := logx.WithImage(logx.WithRun(ctx, task.ID()), params.Image)
	ctx = logx.ContextWithRunLogger(ctx, log, task.ID())
	log.Trace("container run created", "state", schema.RunStateCreated)

	if strings.TrimSpace(params.Image) == "" {
		return -1, core.NewRuntime("plan", schema.ErrImageRequired)
	}
	if task.HostDir() == "" {
		return -1, core.NewTaskError(core.TaskErrorInvalidMount, "plan", schema.ErrHostDirRequired)
	}
	if task.ContainerDir() == "" {
		return -1, core.NewTaskError(core.TaskErrorInvalidMount, "plan", schema.ErrContainerDirRequired)
	}
	mounts, err := PlanMounts(task, command)
	if err != nil {
		return -1, err
	}
	invocation := BuildInvocation(mounts, params, task.ContainerDir(), r.uid)
	log.Debug("container invocation planned", "mounts", len(mounts), "args", invocation)

	if err := r.gate.Acquire(ctx, task.Terminating); err != nil {
		log.Debug("container run aborted while queued", "err", err)
		return -1, core.NewCanceled("queue", true)
	}
	defer r.gate.Release()
	// The slot may have opened after termination was already requested.
	if task.Terminating() {
		log.Debug("container run aborted while queued")
		return -1, core.NewCanceled("queue", true)
	}

	log.Debug("container run spawning", "state", schema.RunStateSpawning)
	outcome := r.sup.Run(ctx, SuperviseRequest{
		Invocation: invocation,
		HostDir:    task.HostDir(),
		Cancel:     task.Terminating,
		PollStderr: task.PollStderr,
		OnRunning:  task.NotifyRunning,
	})
	switch outcome.Kind {
	case schema.OutcomeTerminated:
		log.Info("container run terminated", "state", outcome.State(), "graceful", outcome.Graceful)
		return outcome.ExitCode, core.NewCanceled("supervise", false)
	case schema.OutcomeFailed:
		log.Error("container run failed", "state", outcome.State(), "reason", outcome.Message)
		return -1, core.NewRuntime("supervise", errors.New(outcome.Message))
	default:
		log.Info("container run completed", "state", outcome.State(), "exit_code", outcome.ExitCode)
		return outcome.ExitCode, nil
	}
}

// CopyInputFiles copies every input to its reflected location under the run
// directory and marks the task, after which mount planning emits no input
// mounts. Directory inputs copy recursively; file modes are preserved.
func (r *Runner) CopyInputFiles(ctx context.Context, task core.Task) error {
	log := logx.WithRun(ctx, task.ID())
	hostDir := task.HostDir()
	containerDir := task.ContainerDir()
	inputs := task.Inputs()
	for _, hostPath := range sortedKeys(inputs) {
		rel, err := reflectedRel("copy_inputs", containerDir, inputs[hostPath])
		if err != nil {
			return err
		}
		if err := copyPath(strings.TrimSuffix(hostPath, "/"), filepath.Join(hostDir, rel)); err != nil {
			return core.NewRuntime("copy_inputs", err)
		}
	}
	task.MarkInputsCopied()
	log.Debug("task inputs copied", "count", len(inputs))
	return nil
}

// copyPath copies a file or directory tree from src to dest, creating parent
// directories as needed. Existing destination files are truncated so repeat
// attempts converge.
func copyPath(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dest, info.Mode().Perm())
	}
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		entry, err := d.Info()
		if err != nil {
			return err
		}
		if !entry.Mode().IsRegular() {
			return nil
		}
		return copyFile(p, target, entry.Mode().Perm())
	})
}

func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
