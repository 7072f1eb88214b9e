package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int          `mapstructure:"config_version" yaml:"config_version"`
	RunsRoot      string       `mapstructure:"runs_root" yaml:"runs_root"`
	Engine        EngineConfig `mapstructure:"engine" yaml:"engine"`
	Task          TaskConfig   `mapstructure:"task" yaml:"task"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig configures the container engine invocation and supervision.
type EngineConfig struct {
	Binary                string `mapstructure:"binary" yaml:"binary"`
	PollIntervalSeconds   int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	TerminateGraceSeconds int    `mapstructure:"terminate_grace_seconds" yaml:"terminate_grace_seconds"`
	MaxConcurrent         int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// TaskConfig carries defaults applied when a task leaves a value unset.
type TaskConfig struct {
	Image                  string `mapstructure:"image" yaml:"image"`
	ContainerDir           string `mapstructure:"container_dir" yaml:"container_dir"`
	CPU                    int    `mapstructure:"cpu" yaml:"cpu"`
	MemoryLimitBytes       int64  `mapstructure:"memory_limit_bytes" yaml:"memory_limit_bytes"`
	MemoryReservationBytes int64  `mapstructure:"memory_reservation_bytes" yaml:"memory_reservation_bytes"`
	CopyInputs             bool   `mapstructure:"copy_inputs" yaml:"copy_inputs"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		RunsRoot:      filepath.Join(home, ".stevedore", "runs"),
		Engine: EngineConfig{
			Binary:                "docker",
			PollIntervalSeconds:   1,
			TerminateGraceSeconds: 10,
			MaxConcurrent:         1,
		},
		Task: TaskConfig{
			Image:        "ubuntu:24.04",
			ContainerDir: "/mnt/task",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".stevedore", "config.yaml"), nil
}
