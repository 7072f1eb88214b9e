package dockerrun

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/stevedore/schema"
)

const (
	defaultEngineBinary   = "docker"
	defaultPollInterval   = time.Second
	defaultTerminateGrace = 10 * time.Second
)

// Supervisor spawns the engine process for one run and polls it to
// completion. Engine output goes to a log file inside the run directory,
// never to the supervisor's own streams.
type Supervisor struct {
	// Binary is the engine executable; "docker" when empty.
	Binary string
	// PollInterval bounds each wait on the engine process.
	PollInterval time.Duration
	// TerminateGrace is how long a TERM'd engine gets before KILL.
	TerminateGrace time.Duration
}

// SuperviseRequest describes one supervised engine run.
type SuperviseRequest struct {
	// Invocation is the full engine argument vector, binary excluded.
	Invocation []string
	// HostDir is the run directory; the engine log lives inside it and the
	// engine process runs from it.
	HostDir string
	// Cancel reports whether termination has been requested. Polled once
	// per interval and once more after exit.
	Cancel func() bool
	// PollStderr runs every poll interval and again after exit.
	PollStderr func()
	// OnRunning runs once, right after the engine process starts.
	OnRunning func()
}

// Run executes the engine invocation and supervises the process until it is
// gone. Cancellation escalates from TERM to KILL after the grace period, so
// Run never blocks forever on an unkillable child short of kernel trouble.
func (s *Supervisor) Run(ctx context.Context, req SuperviseRequest) schema.RunOutcome {
	log := pslog.Ctx(ctx)
	binary := s.Binary
	if binary == "" {
		binary = defaultEngineBinary
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	grace := s.TerminateGrace
	if grace <= 0 {
		grace = defaultTerminateGrace
	}

	logPath := EngineLogPath(req.HostDir)
	engineLog, err := os.Create(logPath)
	if err != nil {
		if log != nil {
			log.Error("engine log create failed", "path", logPath, "err", err)
		}
		return failedOutcome(err)
	}
	defer engineLog.Close()

	// The poll loop owns termination; exec.CommandContext would hard-kill
	// the engine on ctx cancel before TERM had a chance.
	cmd := exec.Command(binary, req.Invocation...)
	cmd.Dir = req.HostDir
	cmd.Stdout = engineLog
	cmd.Stderr = engineLog

	if err := cmd.Start(); err != nil {
		if log != nil {
			log.Error("container engine start failed", "binary", binary, "err", err)
		}
		return failedOutcome(err)
	}
	if log != nil {
		log.Info("container engine started", "pid", cmd.Process.Pid, "engine_log", logPath)
	}
	if req.OnRunning != nil {
		req.OnRunning()
	}

	started := time.Now()
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var (
		waitErr error
		exited  bool
		termAt  time.Time
		killed  bool
	)
	for !exited {
		if s.cancelRequested(ctx, req.Cancel) {
			switch {
			case termAt.IsZero():
				termAt = time.Now()
				if log != nil {
					log.Info("terminating container engine", "pid", cmd.Process.Pid)
				}
				_ = cmd.Process.Signal(syscall.SIGTERM)
			case !killed && time.Since(termAt) >= grace:
				killed = true
				if log != nil {
					log.Warn("container engine outlived termination grace, killing", "pid", cmd.Process.Pid)
				}
				_ = cmd.Process.Signal(syscall.SIGKILL)
			}
		}
		select {
		case waitErr = <-waitCh:
			exited = true
		case <-time.After(interval):
		}
		if req.PollStderr != nil {
			req.PollStderr()
		}
	}
	// Flush once more so output written just before exit is not lost.
	if req.PollStderr != nil {
		req.PollStderr()
	}

	// A cancellation that lands while the process is exiting still counts:
	// the final re-check decides, not the order of wait vs cancel.
	terminated := !termAt.IsZero() || s.cancelRequested(ctx, req.Cancel)

	exitCode := 0
	signal := ""
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			if terminated {
				return schema.RunOutcome{Kind: schema.OutcomeTerminated, ExitCode: -1, Graceful: !killed}
			}
			if log != nil {
				log.Error("container engine wait failed", "err", waitErr)
			}
			return failedOutcome(waitErr)
		}
		exitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			signal = status.Signal().String()
		}
	}
	if log != nil {
		fields := []any{
			"exit_code", exitCode,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		if signal != "" {
			fields = append(fields, "signal", signal)
		}
		if terminated {
			fields = append(fields, "terminated", true, "graceful", !killed)
		}
		log.Info("container engine finished", fields...)
	}
	if terminated {
		return schema.RunOutcome{Kind: schema.OutcomeTerminated, ExitCode: exitCode, Graceful: !killed}
	}
	return schema.RunOutcome{Kind: schema.OutcomeCompleted, ExitCode: exitCode}
}

func (s *Supervisor) cancelRequested(ctx context.Context, cancel func() bool) bool {
	if ctx.Err() != nil {
		return true
	}
	return cancel != nil && cancel()
}

func failedOutcome(err error) schema.RunOutcome {
	msg := "container run failed"
	if err != nil {
		msg = err.Error()
	}
	return schema.RunOutcome{Kind: schema.OutcomeFailed, ExitCode: -1, Message: msg}
}
