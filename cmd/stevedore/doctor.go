package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/stevedore/core"
	"pkt.systems/stevedore/internal/appconfig"
	"pkt.systems/stevedore/internal/dockerrun"
	"pkt.systems/stevedore/schema"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var skipRun bool
	var probeTimeout time.Duration
	var runTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run stevedore diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				defaultPath, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = defaultPath
			}
			logger.Info("doctor start", "config", configPath)

			enginePath, err := exec.LookPath(cfg.Engine.Binary)
			if err != nil {
				return fmt.Errorf("doctor engine binary: %w", err)
			}
			logger.Info("doctor engine binary ok", "binary", cfg.Engine.Binary, "path", enginePath)

			if err := probeEngine(ctx, cfg.Engine.Binary, probeTimeout); err != nil {
				return err
			}
			logger.Info("doctor engine ok", "binary", cfg.Engine.Binary)

			backend, err := dockerrun.NewRunner(dockerrun.Config{
				Binary:         cfg.Engine.Binary,
				PollInterval:   time.Duration(cfg.Engine.PollIntervalSeconds) * time.Second,
				TerminateGrace: time.Duration(cfg.Engine.TerminateGraceSeconds) * time.Second,
			}, core.NewRunGate(cfg.Engine.MaxConcurrent))
			if err != nil {
				return err
			}
			if err := backend.GlobalInit(ctx); err != nil {
				return err
			}
			limits := backend.ResourceLimits()
			logger.Info("doctor host resources ok", "cpu", limits.CPU, "memory_bytes", limits.MemoryBytes)

			if err := checkRunsRoot(cfg.RunsRoot); err != nil {
				return fmt.Errorf("doctor runs root: %w", err)
			}
			logger.Info("doctor runs root ok", "dir", cfg.RunsRoot)

			if skipRun {
				logger.Info("doctor complete")
				return nil
			}

			if err := runDoctorTask(ctx, backend, cfg, runTimeout); err != nil {
				return err
			}
			logger.Info("doctor container run ok", "image", cfg.Task.Image)

			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&skipRun, "skip-run", false, "skip the end-to-end container run check")
	cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 15*time.Second, "timeout for the engine probe")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 120*time.Second, "timeout for the container run check")
	return cmd
}

// probeEngine runs the engine's version subcommand through the supervisor;
// a non-zero exit usually means the daemon is unreachable.
func probeEngine(ctx context.Context, binary string, timeout time.Duration) error {
	probeCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		probeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	hostDir, err := os.MkdirTemp("", "stevedore-doctor-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(hostDir) }()

	sup := dockerrun.Supervisor{Binary: binary, PollInterval: 200 * time.Millisecond}
	outcome := sup.Run(probeCtx, dockerrun.SuperviseRequest{
		Invocation: []string{"version"},
		HostDir:    hostDir,
	})
	switch {
	case outcome.Kind == schema.OutcomeFailed:
		return fmt.Errorf("doctor engine probe: %s", outcome.Message)
	case outcome.Kind == schema.OutcomeTerminated:
		return errors.New("doctor engine probe interrupted")
	case outcome.ExitCode != 0:
		return fmt.Errorf("doctor engine probe exited %d", outcome.ExitCode)
	}
	return nil
}

// checkRunsRoot verifies the runs root exists and accepts writes.
func checkRunsRoot(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok\n"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// runDoctorTask exercises the whole backend path with a trivial command and
// verifies the task's stdout landed in the run directory.
func runDoctorTask(ctx context.Context, backend core.Backend, cfg appconfig.Config, timeout time.Duration) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	hostDir, err := os.MkdirTemp(cfg.RunsRoot, "doctor-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(hostDir) }()

	task := newCLITask(runCtx, schema.RunID(uuid.NewString()), hostDir, cfg, nil)
	code, err := backend.Run(runCtx, task, "echo stevedore doctor")
	if err != nil {
		return fmt.Errorf("doctor container run: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("doctor container run exited %d", code)
	}
	out, err := os.ReadFile(dockerrun.StdoutPath(hostDir))
	if err != nil {
		return fmt.Errorf("doctor container stdout: %w", err)
	}
	if !strings.Contains(string(out), "stevedore doctor") {
		return fmt.Errorf("doctor container run wrote unexpected stdout %q", out)
	}
	return nil
}
