package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
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

// terminatedExitCode mirrors the shell convention for interrupted commands.
const terminatedExitCode = 130

func newRunCmd() *cobra.Command {
	var (
		cfgPath       string
		image         string
		containerDir  string
		runsRoot      string
		runDir        string
		cpu           int
		memoryLimit   int64
		memoryReserve int64
		inputs        []string
		copyInputs    bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command>...",
		Short: "Run one task command inside a container",
		Long: "Run executes a single shell command inside a fresh container and\n" +
			"collects its stdout, stderr, and working directory under a per-run\n" +
			"host directory. The run directory path is printed on stdout and the\n" +
			"task's exit code becomes the process exit code.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("image") {
				cfg.Task.Image = image
			}
			if flags.Changed("container-dir") {
				cfg.Task.ContainerDir = containerDir
			}
			if flags.Changed("runs-root") {
				cfg.RunsRoot = runsRoot
			}
			if flags.Changed("cpu") {
				cfg.Task.CPU = cpu
			}
			if flags.Changed("memory") {
				cfg.Task.MemoryLimitBytes = memoryLimit
			}
			if flags.Changed("memory-reservation") {
				cfg.Task.MemoryReservationBytes = memoryReserve
			}
			if flags.Changed("copy-inputs") {
				cfg.Task.CopyInputs = copyInputs
			}

			runID := schema.RunID(uuid.NewString())
			hostDir := runDir
			if hostDir == "" {
				name := time.Now().UTC().Format("20060102_150405") + "_" + string(runID)[:8]
				hostDir = filepath.Join(cfg.RunsRoot, name)
			}
			if hostDir, err = filepath.Abs(hostDir); err != nil {
				return err
			}
			if err := os.MkdirAll(hostDir, 0o755); err != nil {
				return fmt.Errorf("create run directory: %w", err)
			}

			inputMap, err := parseInputs(cfg.Task.ContainerDir, inputs)
			if err != nil {
				return err
			}

			command := strings.Join(args, " ")
			task := newCLITask(ctx, runID, hostDir, cfg, inputMap)
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
			warnOvercommit(logger, backend.ResourceLimits(), task.Runtime())

			logger.Info("task starting",
				"run", runID,
				"image", cfg.Task.Image,
				"dir", hostDir,
			)

			if cfg.Task.CopyInputs {
				if err := backend.CopyInputFiles(ctx, task); err != nil {
					return err
				}
			}

			exitCode, err := backend.Run(ctx, task, command)
			if err != nil {
				if core.IsCanceled(err) {
					if !core.IsQuietCancel(err) {
						logger.Warn("task terminated before completion", "run", runID, "dir", hostDir)
					}
					return &exitCodeError{code: terminatedExitCode}
				}
				return err
			}

			logger.Info("task finished",
				"run", runID,
				"exit_code", exitCode,
				"stdout", dockerrun.StdoutPath(hostDir),
				"stderr", dockerrun.StderrPath(hostDir),
			)
			fmt.Fprintln(cmd.OutOrStdout(), hostDir)
			if exitCode != 0 {
				return &exitCodeError{code: exitCode}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to the config file")
	cmd.Flags().StringVarP(&image, "image", "i", "", "container image to run the command in")
	cmd.Flags().StringVar(&containerDir, "container-dir", "", "container-side mount root")
	cmd.Flags().StringVar(&runsRoot, "runs-root", "", "directory holding per-run host directories")
	cmd.Flags().StringVar(&runDir, "dir", "", "explicit run directory (default: a fresh directory under the runs root)")
	cmd.Flags().IntVar(&cpu, "cpu", 0, "cpu cores for the container (0 leaves the engine default)")
	cmd.Flags().Int64Var(&memoryLimit, "memory", 0, "hard memory limit in bytes (0 leaves the engine default)")
	cmd.Flags().Int64Var(&memoryReserve, "memory-reservation", 0, "advisory memory reservation in bytes")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "host input path, optionally host:container; repeatable")
	cmd.Flags().BoolVar(&copyInputs, "copy-inputs", false, "copy inputs into the run directory instead of mounting them")

	return cmd
}

// parseInputs resolves --input flags into the task's host to container path
// map. Entries without an explicit container path land under the container
// work directory, so the command can reach them by relative path in both
// mount and copy modes. Directory markers follow what the host path is.
func parseInputs(containerDir string, entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	inputs := make(map[string]string, len(entries))
	for i, entry := range entries {
		hostPart, containerPart, _ := strings.Cut(entry, ":")
		if hostPart == "" {
			return nil, fmt.Errorf("input %q: empty host path", entry)
		}
		host, err := filepath.Abs(strings.TrimSuffix(hostPart, "/"))
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(host)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", entry, err)
		}
		container := strings.TrimSuffix(containerPart, "/")
		if container == "" {
			container = path.Join(containerDir, "work", "_inputs", strconv.Itoa(i), filepath.Base(host))
		} else if !path.IsAbs(container) {
			return nil, fmt.Errorf("input %q: container path must be absolute", entry)
		}
		if info.IsDir() {
			host += "/"
			container += "/"
		}
		if prev, ok := inputs[host]; ok && prev != container {
			return nil, fmt.Errorf("input %q: host path already mapped to %s", entry, prev)
		}
		inputs[host] = container
	}
	return inputs, nil
}

// warnOvercommit flags runtime requests the host cannot satisfy; the engine
// would accept them and let the container starve or die later.
func warnOvercommit(logger pslog.Logger, limits schema.ResourceLimits, params schema.RuntimeParams) {
	if limits.CPU > 0 && params.CPU > limits.CPU {
		logger.Warn("requested cpu exceeds host capacity", "requested", params.CPU, "available", limits.CPU)
	}
	if limits.MemoryBytes > 0 && params.MemoryLimit > limits.MemoryBytes {
		logger.Warn("requested memory exceeds host capacity", "requested", params.MemoryLimit, "available", limits.MemoryBytes)
	}
}
