package dockerrun

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"pkt.systems/stevedore/core"
)

// Fixed names inside the per-run host directory and its container mirror.
const (
	stdoutFile    = "stdout.txt"
	stderrFile    = "stderr.txt"
	commandFile   = "command"
	workDirName   = "work"
	engineLogFile = "docker_run.log"
)

// StdoutPath returns the host file collecting task stdout for a run directory.
func StdoutPath(hostDir string) string { return filepath.Join(hostDir, stdoutFile) }

// StderrPath returns the host file collecting task stderr for a run directory.
func StderrPath(hostDir string) string { return filepath.Join(hostDir, stderrFile) }

// WorkDirPath returns the host side of the container working directory.
func WorkDirPath(hostDir string) string { return filepath.Join(hostDir, workDirName) }

// EngineLogPath returns the host file capturing container engine output.
func EngineLogPath(hostDir string) string { return filepath.Join(hostDir, engineLogFile) }

// MountSpec describes one host path bound into the container. Directory
// mounts carry a trailing separator on both sides until the bind descriptor
// is composed.
type MountSpec struct {
	HostPath      string
	ContainerPath string
	Writable      bool
}

// PlanMounts computes the bind mounts for one run and creates any missing
// mount-point placeholder under the task's host directory, so the engine
// never creates those paths root-owned. The order is fixed: stdout, stderr,
// work, command, then inputs (read-only). Inputs are skipped entirely when
// the task reports them already copied into the work directory.
func PlanMounts(task core.Task, command string) ([]MountSpec, error) {
	hostDir := task.HostDir()
	containerDir := task.ContainerDir()
	if !filepath.IsAbs(hostDir) {
		return nil, core.NewInvalidMount("plan", fmt.Sprintf("host directory %q must be an absolute path", hostDir))
	}
	if !path.IsAbs(containerDir) {
		return nil, core.NewInvalidMount("plan", fmt.Sprintf("container directory %q must be an absolute path", containerDir))
	}

	inputs := task.Inputs()
	specs := make([]MountSpec, 0, 4+len(inputs))
	targets := mapset.NewSet[string]()
	add := func(hostPath, containerPath string, writable bool) error {
		if strings.Contains(hostPath, ":") {
			return core.NewInvalidMount("plan", fmt.Sprintf("host path %q contains ':'", hostPath))
		}
		if strings.Contains(containerPath, ":") {
			return core.NewInvalidMount("plan", fmt.Sprintf("container path %q contains ':'", containerPath))
		}
		if !targets.Add(strings.TrimSuffix(containerPath, "/")) {
			return core.NewInvalidMount("plan", fmt.Sprintf("duplicate container path %q", containerPath))
		}
		specs = append(specs, MountSpec{HostPath: hostPath, ContainerPath: containerPath, Writable: writable})
		return nil
	}

	if err := touchMountPoint(hostDir, filepath.Join(hostDir, stdoutFile)); err != nil {
		return nil, err
	}
	if err := add(filepath.Join(hostDir, stdoutFile), path.Join(containerDir, stdoutFile), true); err != nil {
		return nil, err
	}
	if err := touchMountPoint(hostDir, filepath.Join(hostDir, stderrFile)); err != nil {
		return nil, err
	}
	if err := add(filepath.Join(hostDir, stderrFile), path.Join(containerDir, stderrFile), true); err != nil {
		return nil, err
	}
	if err := touchMountPoint(hostDir, filepath.Join(hostDir, workDirName)+"/"); err != nil {
		return nil, err
	}
	if err := add(filepath.Join(hostDir, workDirName)+"/", path.Join(containerDir, workDirName)+"/", true); err != nil {
		return nil, err
	}
	if err := writeCommandFile(filepath.Join(hostDir, commandFile), command); err != nil {
		return nil, err
	}
	if err := add(filepath.Join(hostDir, commandFile), path.Join(containerDir, commandFile), false); err != nil {
		return nil, err
	}

	if task.InputsCopied() {
		return specs, nil
	}
	for _, hostPath := range sortedKeys(inputs) {
		if err := planInput(hostDir, containerDir, hostPath, inputs[hostPath], add); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

func planInput(hostDir, containerDir, hostPath, containerPath string, add func(string, string, bool) error) error {
	isDir := strings.HasSuffix(containerPath, "/")
	if isDir {
		info, err := os.Stat(strings.TrimSuffix(hostPath, "/"))
		if err != nil || !info.IsDir() {
			return core.NewInvalidMount("plan", fmt.Sprintf("input directory %q does not exist on the host", hostPath))
		}
	}
	rel, err := reflectedRel("plan", containerDir, containerPath)
	if err != nil {
		return err
	}
	mountPoint := filepath.Join(hostDir, rel)
	if isDir {
		mountPoint += "/"
	}
	if err := touchMountPoint(hostDir, mountPoint); err != nil {
		return err
	}
	return add(strings.TrimSuffix(hostPath, "/"), strings.TrimSuffix(containerPath, "/"), false)
}

// reflectedRel maps a container path strictly below the mount root onto its
// run-relative form. Anything at or above the root is rejected.
func reflectedRel(op, containerDir, containerPath string) (string, error) {
	rel, err := filepath.Rel(containerDir, strings.TrimSuffix(containerPath, "/"))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", core.NewInvalidMount(op, fmt.Sprintf("input mount %q escapes the run directory", containerPath))
	}
	return rel, nil
}

// touchMountPoint pre-creates a bind target inside the run directory; a
// trailing separator marks a directory. Existing paths are left untouched
// so repeated attempts stay safe.
func touchMountPoint(hostDir, hostPath string) error {
	if !strings.HasPrefix(hostPath, hostDir+string(os.PathSeparator)) {
		return core.NewInvalidMount("plan", fmt.Sprintf("mount point %q is outside the run directory", hostPath))
	}
	if strings.HasSuffix(hostPath, "/") {
		if err := os.MkdirAll(hostPath, 0o755); err != nil {
			return core.NewRuntime("plan", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return core.NewRuntime("plan", err)
	}
	file, err := os.OpenFile(hostPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return core.NewRuntime("plan", err)
	}
	if err := file.Close(); err != nil {
		return core.NewRuntime("plan", err)
	}
	return nil
}

// writeCommandFile persists the task command byte for byte.
func writeCommandFile(dest, command string) error {
	if err := os.WriteFile(dest, []byte(command), 0o644); err != nil {
		return core.NewRuntime("plan", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
