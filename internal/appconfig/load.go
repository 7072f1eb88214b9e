package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(configPath string) (Config, error) {
	if configPath == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		configPath = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	// config_version carries no default on purpose: a config file must state
	// the version it was written against.
	v.SetDefault("runs_root", cfg.RunsRoot)
	v.SetDefault("engine.binary", cfg.Engine.Binary)
	v.SetDefault("engine.poll_interval_seconds", cfg.Engine.PollIntervalSeconds)
	v.SetDefault("engine.terminate_grace_seconds", cfg.Engine.TerminateGraceSeconds)
	v.SetDefault("engine.max_concurrent", cfg.Engine.MaxConcurrent)
	v.SetDefault("task.image", cfg.Task.Image)
	v.SetDefault("task.container_dir", cfg.Task.ContainerDir)
	v.SetDefault("task.cpu", cfg.Task.CPU)
	v.SetDefault("task.memory_limit_bytes", cfg.Task.MemoryLimitBytes)
	v.SetDefault("task.memory_reservation_bytes", cfg.Task.MemoryReservationBytes)
	v.SetDefault("task.copy_inputs", cfg.Task.CopyInputs)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("engine.max_concurrent must be at least 1")
	}
	if cfg.Engine.PollIntervalSeconds < 1 {
		return fmt.Errorf("engine.poll_interval_seconds must be at least 1")
	}
	if cfg.Engine.TerminateGraceSeconds < 1 {
		return fmt.Errorf("engine.terminate_grace_seconds must be at least 1")
	}
	if !path.IsAbs(cfg.Task.ContainerDir) {
		return fmt.Errorf("task.container_dir must be an absolute path")
	}
	if cfg.Task.CPU < 0 {
		return fmt.Errorf("task.cpu must not be negative")
	}
	if cfg.Task.MemoryLimitBytes < 0 || cfg.Task.MemoryReservationBytes < 0 {
		return fmt.Errorf("task memory settings must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.RunsRoot = expandEnv(cfg.RunsRoot)
	cfg.Engine.Binary = expandEnv(cfg.Engine.Binary)
	cfg.Task.Image = expandEnv(cfg.Task.Image)
	cfg.Task.ContainerDir = expandEnv(cfg.Task.ContainerDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
